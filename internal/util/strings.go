package util

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"strings"
)

// JoinWithEqualSpacing spreads items across width with equal gaps, truncating from the right if they don't fit
func JoinWithEqualSpacing(width int, items ...string) string {
	if len(items) == 0 || width <= 0 {
		return ""
	}

	totalContentWidth := 0
	for _, item := range items {
		totalContentWidth += lipgloss.Width(item)
	}

	if totalContentWidth > width {
		var result strings.Builder
		remainingWidth := width
		for _, item := range items {
			if remainingWidth <= 0 {
				break
			}
			itemWidth := lipgloss.Width(item)
			if itemWidth > remainingWidth {
				result.WriteString(lipgloss.NewStyle().MaxWidth(remainingWidth).Render(item))
				break
			}
			result.WriteString(item)
			remainingWidth -= itemWidth
		}
		return result.String()
	}

	if len(items) == 1 {
		return items[0]
	}
	gaps := len(items) - 1
	totalSpacing := width - totalContentWidth
	var result strings.Builder
	for i, item := range items {
		result.WriteString(item)
		if i < gaps {
			spaces := totalSpacing / gaps
			if i < totalSpacing%gaps {
				spaces++
			}
			result.WriteString(strings.Repeat(" ", spaces))
		}
	}
	return result.String()
}

// Truncate shortens s to at most width terminal cells, ending in "..." when cut
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

// TruncateChars shortens s to at most n characters, ending in "..." when cut
func TruncateChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// OrDefault returns s, or def when s is empty
func OrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
