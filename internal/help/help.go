package help

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

const rowsPerCol = 10

// MakeHelp lays out the bindings of a page, page-specific first, in columns under a bordered title
func MakeHelp(title string, global, local []key.Binding, keyColStyle lipgloss.Style) string {
	heading := lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1).Render(title + " Help (press any key to hide)")
	sections := []string{heading}
	if len(local) > 0 {
		sections = append(sections, "", formatKeyBindings(local, rowsPerCol, keyColStyle))
	}
	sections = append(sections, "", formatKeyBindings(global, rowsPerCol, keyColStyle))
	return lipgloss.JoinVertical(lipgloss.Center, sections...)
}

func formatKeyBindings(bindings []key.Binding, maxRowsPerCol int, keyColStyle lipgloss.Style) string {
	var enabled []key.Binding
	for _, b := range bindings {
		if b.Enabled() {
			enabled = append(enabled, b)
		}
	}
	if len(enabled) == 0 {
		return ""
	}
	numColumns := (len(enabled) + maxRowsPerCol - 1) / maxRowsPerCol
	var formattedCols []string
	for colIndex := 0; colIndex < numColumns; colIndex++ {
		start := colIndex * maxRowsPerCol
		end := min(start+maxRowsPerCol, len(enabled))
		formattedCol := formatColumn(enabled[start:end], keyColStyle)
		if colIndex != numColumns-1 {
			formattedCol += "   "
		}
		formattedCols = append(formattedCols, formattedCol)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, formattedCols...)
}

func formatColumn(bindings []key.Binding, keyColStyle lipgloss.Style) string {
	var keys []string
	var help []string
	for _, b := range bindings {
		k := b.Help().Key
		if len(k) > 0 {
			keys = append(keys, " "+k+" ")
		} else {
			keys = append(keys, "")
		}

		d := b.Help().Desc
		if len(d) > 0 {
			help = append(help, " "+d)
		} else {
			help = append(help, "")
		}
	}
	keyCol := keyColStyle.Render(lipgloss.JoinVertical(lipgloss.Right, keys...))
	helpCol := lipgloss.JoinVertical(lipgloss.Left, help...)
	return lipgloss.JoinHorizontal(lipgloss.Left, keyCol, helpCol)
}
