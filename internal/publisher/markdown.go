package publisher

import (
	"regexp"
	"strings"
)

// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.
var plainTextRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?m)^#{1,6}[ \t]+`), ""},
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "$1"},
	{regexp.MustCompile(`\*(.*?)\*`), "$1"},
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`), "$1"},
	{regexp.MustCompile(`(?m)^[-*+][ \t]+`), "• "},
	{regexp.MustCompile(`(?m)^>[ \t]+`), ""},
	// Fences go before inline code, otherwise the inline rule eats the fence markers.
	{regexp.MustCompile("(?s)\x60\x60\x60.*?\x60\x60\x60"), ""},
	{regexp.MustCompile("\x60([^\x60]+)\x60"), "$1"},
}

// PlainText renders Markdown as the text typed into the editor body. Headers, emphasis,
// blockquote markers and code are stripped, links keep their label, list items get a
// bullet, and blank lines are dropped. The transform is lossy and deterministic.
func PlainText(markdown string) string {
	text := strings.ReplaceAll(markdown, "\r\n", "\n")
	for _, rule := range plainTextRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
