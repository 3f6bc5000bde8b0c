package chunk

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lumflare/lumflare/engine/core"
)

var (
	newlinePattern   = regexp.MustCompile(`\r\n|\r`)
	paragraphPattern = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd      = regexp.MustCompile(`[.!?]\s+`)
)

// Settings configures the character budget and overlap carried between
// consecutive chunks.
type Settings struct {
	Size    int
	Overlap int
}

// Draft is a chunk produced from raw text, not yet embedded or persisted.
type Draft struct {
	Text      string
	Index     int
	CharCount int
	Metadata  map[string]any
}

// Chunker splits raw text into overlapping, bounded-size drafts. It works at
// three granularities: paragraphs first, sentences for paragraphs over the
// budget, and the raw character tail as the overlap fallback.
type Chunker struct {
	settings Settings
}

// NewChunker builds a chunker with validated settings.
func NewChunker(settings Settings) (*Chunker, error) {
	if settings.Size <= 0 {
		return nil, errors.New("chunk: size must be greater than zero")
	}
	if settings.Overlap < 0 {
		return nil, errors.New("chunk: overlap cannot be negative")
	}
	if settings.Overlap >= settings.Size {
		return nil, fmt.Errorf("chunk: overlap %d must be smaller than size %d", settings.Overlap, settings.Size)
	}
	return &Chunker{settings: settings}, nil
}

// Chunk splits text into ordered drafts carrying the supplied metadata.
// Empty or whitespace-only input yields no drafts.
func (c *Chunker) Chunk(text string, metadata map[string]any) []Draft {
	text = strings.TrimSpace(newlinePattern.ReplaceAllString(text, "\n"))
	if text == "" {
		return nil
	}
	b := builder{settings: c.settings, metadata: metadata}
	for _, para := range paragraphPattern.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.addParagraph(para)
	}
	b.flush()
	return b.drafts
}

type builder struct {
	settings Settings
	metadata map[string]any
	drafts   []Draft
	current  string
}

func (b *builder) addParagraph(para string) {
	if b.fits(b.current, para) {
		b.current = join(b.current, para, "\n\n")
		return
	}
	b.flush()
	if utf8.RuneCountInString(para) > b.settings.Size {
		b.addSentences(para)
		return
	}
	// Seed the new accumulator with overlap from the previous chunk so the
	// paragraph boundary is not a cold start.
	if len(b.drafts) > 0 {
		overlap := b.overlapText(b.drafts[len(b.drafts)-1].Text)
		b.current = join(overlap, para, "\n\n")
		return
	}
	b.current = para
}

func (b *builder) addSentences(para string) {
	for _, sentence := range splitSentences(para) {
		if b.fits(b.current, sentence) {
			b.current = join(b.current, sentence, " ")
			continue
		}
		if b.current == "" {
			// A single sentence over the budget is emitted oversized rather
			// than truncated mid-word.
			b.current = sentence
			continue
		}
		overlap := b.overlapText(b.current)
		b.flush()
		b.current = join(overlap, sentence, " ")
	}
}

func (b *builder) fits(current, unit string) bool {
	if current == "" {
		return utf8.RuneCountInString(unit) <= b.settings.Size
	}
	return utf8.RuneCountInString(current)+utf8.RuneCountInString(unit)+1 <= b.settings.Size
}

func (b *builder) flush() {
	text := strings.TrimSpace(b.current)
	b.current = ""
	if text == "" {
		return
	}
	b.drafts = append(b.drafts, Draft{
		Text:      text,
		Index:     len(b.drafts),
		CharCount: utf8.RuneCountInString(text),
		Metadata:  core.CloneMap(b.metadata),
	})
}

// overlapText extracts up to Overlap characters from the tail of text,
// preferring whole trailing sentences and falling back to the raw tail.
func (b *builder) overlapText(text string) string {
	if utf8.RuneCountInString(text) <= b.settings.Overlap {
		return text
	}
	sentences := splitSentences(text)
	overlap := ""
	for i := len(sentences) - 1; i >= 0; i-- {
		sentence := sentences[i]
		if utf8.RuneCountInString(overlap)+utf8.RuneCountInString(sentence) > b.settings.Overlap {
			break
		}
		overlap = join(sentence, overlap, " ")
	}
	if overlap == "" {
		runes := []rune(text)
		overlap = string(runes[len(runes)-b.settings.Overlap:])
	}
	return strings.TrimSpace(overlap)
}

// splitSentences splits on sentence-terminal punctuation followed by
// whitespace, keeping the punctuation with the preceding sentence.
func splitSentences(text string) []string {
	locs := sentenceEnd.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	out := make([]string, 0, len(locs)+1)
	start := 0
	for _, loc := range locs {
		out = append(out, text[start:loc[0]+1])
		start = loc[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func join(left, right, sep string) string {
	if left == "" {
		return right
	}
	if right == "" {
		return left
	}
	return left + sep + right
}
