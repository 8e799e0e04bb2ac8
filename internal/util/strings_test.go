package util

import (
	"github.com/charmbracelet/lipgloss"
	"testing"
)

func TestJoinWithEqualSpacing(t *testing.T) {
	tests := []struct {
		name     string
		width    int
		items    []string
		expected string
	}{
		{name: "no items", width: 10, items: nil, expected: ""},
		{name: "zero width", width: 0, items: []string{"a"}, expected: ""},
		{name: "single item", width: 10, items: []string{"abc"}, expected: "abc"},
		{name: "two items", width: 10, items: []string{"ab", "cd"}, expected: "ab      cd"},
		{name: "three items uneven spacing", width: 10, items: []string{"a", "b", "c"}, expected: "a    b   c"},
		{name: "truncated", width: 5, items: []string{"abc", "def"}, expected: "abcde"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := JoinWithEqualSpacing(tt.width, tt.items...)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
			if tt.expected != "" && lipgloss.Width(result) > tt.width {
				t.Errorf("result %q wider than %d", result, tt.width)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s        string
		width    int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.width); got != tt.expected {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.width, got, tt.expected)
		}
	}
}

func TestTruncateChars(t *testing.T) {
	if got := TruncateChars("abcdef", 3); got != "abc..." {
		t.Errorf("got %q", got)
	}
	if got := TruncateChars("abc", 3); got != "abc" {
		t.Errorf("got %q", got)
	}
}
