package quizgen

import "strings"

// MaxSourceChars caps how much of the source text is sent to the model.
const MaxSourceChars = 10000

// QuestionCount is how many questions the prompt asks for.
const QuestionCount = 20

const quizInstruction = `You are a teacher preparing a multiple-choice test.
Based on the study material below, write exactly 20 questions of mixed difficulty (easy, medium and hard).
Each question must have exactly 4 different options and exactly one correct answer.
The correct answer must be copied verbatim from one of the options.

Return ONLY a JSON object with this shape:
{"questions":[{"question":"...","options":["...","...","...","..."],"correctAnswer":"..."}]}
No Markdown, no code fences, no extra text before or after the JSON.`

// BuildPrompt renders the source text into the quiz instruction.
func BuildPrompt(source string) string {
	var b strings.Builder
	b.WriteString(quizInstruction)
	b.WriteString("\n\nMATERIAL:\n")
	b.WriteString(TruncateSource(source))
	b.WriteString("\n")
	return b.String()
}

// TruncateSource keeps the first MaxSourceChars runes of s.
func TruncateSource(s string) string {
	n := 0
	for i := range s {
		if n == MaxSourceChars {
			return s[:i]
		}
		n++
	}
	return s
}
