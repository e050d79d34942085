package search

import (
	"strings"
	"testing"
)

func TestHighlight(t *testing.T) {
	tests := []struct {
		name    string
		content string
		query   string
		maxLen  int
		want    string
	}{
		{"short unchanged", "short", "x", 10, "short"},
		{"whitespace collapsed", "a\n\n  b", "", 10, "a b"},
		{"no limit", "long text here", "", 0, "long text here"},
		{"head when no match", "long text here", "zzz", 4, "long..."},
		{"centred on term", "one two three four five six seven", "five", 8, "...r five s..."},
		{"tail", "one two three four five", "five", 6, "...r five"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Highlight(tt.content, tt.query, tt.maxLen); got != tt.want {
				t.Errorf("Highlight() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHighlight_MultiByte(t *testing.T) {
	content := strings.Repeat("夢", 50) + " 森 " + strings.Repeat("鏡", 50)
	got := Highlight(content, "森", 10)
	if !strings.Contains(got, "森") {
		t.Errorf("snippet should contain the term: %q", got)
	}
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet should be cut on both ends: %q", got)
	}
}
