package quizgen

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const fence = "```"

// Normalize strips surrounding whitespace and code fence markers (an opening
// ``` or ```json, a closing ```) from a model reply. Interior text is left
// as is. Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		prev := s
		if strings.HasPrefix(s, fence) {
			s = s[len(fence):]
			if isJSONTag(s) {
				s = s[4:]
			}
		}
		if strings.HasSuffix(s, fence) {
			s = s[:len(s)-len(fence)]
		}
		s = strings.TrimSpace(s)
		if s == prev {
			return s
		}
	}
}

// isJSONTag reports whether s opens with a "json" info string. A tag that
// runs on into a longer word, like "jsonl", is not one.
func isJSONTag(s string) bool {
	if len(s) < 4 || !strings.EqualFold(s[:4], "json") {
		return false
	}
	if len(s) == 4 {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[4:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}
