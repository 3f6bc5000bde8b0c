// Package platformdocs serves curated product documentation sections to the
// retrieval pipeline. Sections are matched by keyword overlap rather than
// embeddings so the catalog works without any indexing step.
package platformdocs

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// SectionSeparator delimits documentation sections in the catalog file and in
// assembled context blocks.
const SectionSeparator = "\n\n---\n\n"

// DefaultSectionLimit caps how many sections a single question can pull in.
const DefaultSectionLimit = 3

// Source holds the parsed documentation catalog.
type Source struct {
	sections []string
}

// New parses a catalog from raw text. Blank sections are dropped.
func New(docs string) *Source {
	parts := strings.Split(docs, SectionSeparator)
	sections := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		sections = append(sections, part)
	}
	return &Source{sections: sections}
}

// Load reads a catalog file. A missing file yields an empty source so callers
// can run without platform documentation installed.
func Load(fs afero.Fs, path string) (*Source, error) {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return &Source{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("platformdocs: read %q: %w", path, err)
	}
	return New(string(data)), nil
}

// Len reports how many sections the catalog holds.
func (s *Source) Len() int {
	return len(s.sections)
}

// Match returns up to limit sections that share at least one keyword with the
// question, in catalog order. A keyword is any whitespace-separated token of
// the lowercased question; matching is plain substring containment.
func (s *Source) Match(question string, limit int) []string {
	if limit <= 0 {
		limit = DefaultSectionLimit
	}
	keywords := strings.Fields(strings.ToLower(question))
	if len(keywords) == 0 {
		return nil
	}
	matched := make([]string, 0, limit)
	for _, section := range s.sections {
		lowered := strings.ToLower(section)
		for _, keyword := range keywords {
			if strings.Contains(lowered, keyword) {
				matched = append(matched, section)
				break
			}
		}
		if len(matched) == limit {
			break
		}
	}
	return matched
}

// Context assembles the matched sections into a single block for prompt
// building. Returns the empty string when nothing matches.
func (s *Source) Context(question string, limit int) string {
	return strings.Join(s.Match(question, limit), SectionSeparator)
}
