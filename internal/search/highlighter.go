package search

import (
	"strings"
	"unicode/utf8"
)

// Highlight returns a snippet of at most maxLen runes from content, centred on the
// first occurrence of any query term, with "..." marking cut ends. maxLen <= 0 returns
// content unchanged.
func Highlight(content, query string, maxLen int) string {
	content = strings.Join(strings.Fields(content), " ")
	if maxLen <= 0 || utf8.RuneCountInString(content) <= maxLen {
		return content
	}
	runes := []rune(content)
	lower := strings.ToLower(content)

	start := 0
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if i := strings.Index(lower, term); i >= 0 {
			// byte offset to rune offset; lowercasing can change byte lengths, so clamp
			if i > len(content) {
				i = len(content)
			}
			start = utf8.RuneCountInString(content[:i]) - maxLen/4
			break
		}
	}
	if start < 0 {
		start = 0
	}
	if start+maxLen > len(runes) {
		start = len(runes) - maxLen
	}

	snippet := string(runes[start : start+maxLen])
	if start > 0 {
		snippet = "..." + snippet
	}
	if start+maxLen < len(runes) {
		snippet += "..."
	}
	return snippet
}
