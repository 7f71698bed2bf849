// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// codeBlockRegex extracts content wrapped in a markdown fence, with or without a language tag.
	codeBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\n?(.*?)\x60\x60\x60")
)

// ExtractCodeBlock returns the body of the first fenced block in a model response. Models
// often wrap the requested document in a fence; ok is false when there is none.
func ExtractCodeBlock(response string) (body string, ok bool) {
	m := codeBlockRegex.FindStringSubmatch(response)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// Truncate shortens text to at most max runes, marking the cut with "...".
func Truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// FormatDate renders t using the tokens YYYY, MM, DD, HH, mm and ss. Each token is
// replaced once, left to right.
func FormatDate(t time.Time, layout string) string {
	r := []struct{ token, value string }{
		{"YYYY", fmt.Sprintf("%04d", t.Year())},
		{"MM", fmt.Sprintf("%02d", int(t.Month()))},
		{"DD", fmt.Sprintf("%02d", t.Day())},
		{"HH", fmt.Sprintf("%02d", t.Hour())},
		{"mm", fmt.Sprintf("%02d", t.Minute())},
		{"ss", fmt.Sprintf("%02d", t.Second())},
	}
	out := layout
	for _, p := range r {
		out = strings.Replace(out, p.token, p.value, 1)
	}
	return out
}

// JapaneseDate renders t as YYYY年MM月DD日.
func JapaneseDate(t time.Time) string {
	return FormatDate(t, "YYYY年MM月DD日")
}
