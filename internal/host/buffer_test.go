package host

import (
	"testing"
)

func TestSplitJoinRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		lines []string
		back  string
	}{
		{"terminated", "a\nb\n", []string{"a", "b"}, "a\nb\n"},
		{"unterminated", "a\nb", []string{"a", "b"}, "a\nb\n"},
		{"trailing blank line", "a\n\n", []string{"a", ""}, "a\n\n"},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}, "a\nb\n"},
		{"empty", "", []string{""}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := splitLines(tt.text)
			if len(lines) != len(tt.lines) {
				t.Fatalf("splitLines(%q) = %d lines, want %d", tt.text, len(lines), len(tt.lines))
			}
			for i := range lines {
				if string(lines[i]) != tt.lines[i] {
					t.Errorf("line %d = %q, want %q", i, lines[i], tt.lines[i])
				}
			}
			if got := joinLines(lines, true); got != tt.back {
				t.Errorf("joinLines = %q, want %q", got, tt.back)
			}
		})
	}
}

func TestJoinLinesNoLines(t *testing.T) {
	if got := joinLines(nil, true); got != "" {
		t.Errorf("joinLines(nil) = %q", got)
	}
}

func TestJoinLinesWithoutEOL(t *testing.T) {
	lines := splitLines("a\nb")
	if got := joinLines(lines, false); got != "a\nb" {
		t.Errorf("joinLines(noeol) = %q, want %q", got, "a\nb")
	}
}

func TestVimString(t *testing.T) {
	if got := vimString(`it's "fine"`); got != `'it''s "fine"'` {
		t.Errorf("vimString = %s", got)
	}
}
