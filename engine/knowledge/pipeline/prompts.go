package pipeline

import "strings"

// ContextSeparator joins retrieved chunk texts into the prompt context block.
const ContextSeparator = "\n\n---\n\n"

// noContextMarker replaces the context block when material generation has no
// retrieved chunks, so the prompt never silently reads as context-free.
const noContextMarker = "No specific context available."

const systemPrompt = `You are an AI teaching assistant for LümFlare, a platform designed to help teachers communicate, collaborate, and manage their teaching responsibilities.

Your role is to:
1. Answer questions about teaching materials, curriculum, and educational content
2. Help teachers create educational materials (worksheets, quizzes, tests, assignments)
3. Provide guidance on using LümFlare platform features
4. Assist with lesson planning and instructional design

You have access to:
- Uploaded instructional files (PDFs, DOCX, PPTX, TXT) that teachers have shared
- Platform documentation and feature guides
- General teaching knowledge

Always be helpful, professional, and focused on supporting teachers in their work.`

const qaPromptTemplate = `{system_prompt}

Context from uploaded documents:
{context}

User question: {question}

Please provide a helpful answer based on the context provided. If the context doesn't contain enough information, you can use your general knowledge but indicate when you're doing so.

Format your response using markdown syntax:
- Use ### three hashtags for section headers
- Use **double asterisks** for bold text
- Use bullet points or numbered lists where appropriate
- Use code blocks for any code snippets
`

const platformPromptTemplate = `You are helping a teacher understand LümFlare platform features. Here is the platform documentation:

{platform_docs}

User question about platform: {question}

Provide a clear, helpful answer about how to use the platform feature.`

const materialPromptTemplate = `{system_prompt}

Context from uploaded documents:
{context}

User request: {request}

Generate the material strictly following this structure. Do NOT include any intro or outro text, just the worksheet content.

Structure:
Title: [Topic] Worksheet

Part A: Multiple Choice
1. Question
A. Option
...

Part B: Fill in the Blank
...

Part C: Open-Ended Questions
...

Part D: Challenge Question (Optional)
...

Answer Key Summary (Optional)
...

Make sure to use standard numbering (1., 2., etc.) and lettered options (A., B., etc.). Use Times New Roman friendly formatting (no special emojis).

If the content includes any diagrams, code snippets, or ascii art, enclose them in triple backticks (` + "```" + `) to preserve formatting.
Do NOT use separate lines with just a backslash (\) for blank space, simply leave blank lines.`

const worksheetPromptTemplate = `Generate a worksheet based on the following context and requirements:

Context: {context}
Subject: {subject}
Grade Level: {grade_level}
Topic: {topic}
Number of Questions: {num_questions}
Format: {format}

Create a comprehensive worksheet with clear instructions, appropriate questions/exercises, and space for student responses.`

const quizPromptTemplate = `Generate a quiz based on the following context and requirements:

Context: {context}
Subject: {subject}
Grade Level: {grade_level}
Topic: {topic}
Number of Questions: {num_questions}
Question Types: {question_types}
Time Limit: {time_limit}

Create a quiz with clear questions, answer choices (if multiple choice), and an answer key.`

const testPromptTemplate = `Generate a test based on the following context and requirements:

Context: {context}
Subject: {subject}
Grade Level: {grade_level}
Topic: {topic}
Number of Questions: {num_questions}
Question Types: {question_types}
Total Points: {total_points}
Time Limit: {time_limit}

Create a comprehensive test with various question types, clear instructions, point values, and a detailed answer key.`

const assignmentPromptTemplate = `Generate an assignment based on the following context and requirements:

Context: {context}
Subject: {subject}
Grade Level: {grade_level}
Topic: {topic}
Assignment Type: {assignment_type}
Requirements: {requirements}
Due Date Guidance: {due_date_guidance}

Create a detailed assignment with clear objectives, instructions, requirements, and grading rubric.`

// MaterialType selects which structured generation template is used.
type MaterialType string

const (
	MaterialWorksheet  MaterialType = "worksheet"
	MaterialQuiz       MaterialType = "quiz"
	MaterialTest       MaterialType = "test"
	MaterialAssignment MaterialType = "assignment"
)

func formatQAPrompt(question, context string) string {
	return renderTemplate(qaPromptTemplate, map[string]string{
		"system_prompt": systemPrompt,
		"context":       context,
		"question":      question,
	})
}

func formatPlatformPrompt(question, platformDocs string) string {
	return renderTemplate(platformPromptTemplate, map[string]string{
		"platform_docs": platformDocs,
		"question":      question,
	})
}

func formatContextFreePrompt(question string) string {
	return systemPrompt + "\n\nUser question: " + question + "\n\nPlease provide a helpful answer."
}

// formatMaterialPrompt renders the template for the requested material type.
// Fields not present in params render as empty strings rather than failing,
// so a sparse request still yields a usable prompt.
func formatMaterialPrompt(request, context string, materialType MaterialType, params map[string]string) string {
	fields := map[string]string{"context": context}
	for key, value := range params {
		fields[key] = value
	}
	switch materialType {
	case MaterialWorksheet:
		return renderTemplate(worksheetPromptTemplate, fields)
	case MaterialQuiz:
		return renderTemplate(quizPromptTemplate, fields)
	case MaterialTest:
		return renderTemplate(testPromptTemplate, fields)
	case MaterialAssignment:
		return renderTemplate(assignmentPromptTemplate, fields)
	default:
		fields["system_prompt"] = systemPrompt
		fields["request"] = request
		return renderTemplate(materialPromptTemplate, fields)
	}
}

var templateFields = []string{
	"system_prompt", "context", "question", "request", "platform_docs",
	"subject", "grade_level", "topic", "num_questions", "format",
	"question_types", "time_limit", "total_points",
	"assignment_type", "requirements", "due_date_guidance",
}

func renderTemplate(template string, fields map[string]string) string {
	pairs := make([]string, 0, len(templateFields)*2)
	for _, field := range templateFields {
		pairs = append(pairs, "{"+field+"}", fields[field])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
