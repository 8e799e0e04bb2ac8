package style

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"strings"
)

var (
	foreground = lipgloss.AdaptiveColor{Light: "#1F1F1F", Dark: "#E4E4E4"}
	background = lipgloss.AdaptiveColor{Light: "#FAFAFA", Dark: "#1A1A1A"}
	// altForeground is a muted foreground for secondary text
	altForeground = lipgloss.AdaptiveColor{Light: "#7A7A7A", Dark: "#8A8A8A"}
	// altBackground marks applied filters and selected-but-unfocused rows
	altBackground = lipgloss.AdaptiveColor{Light: "#DADADA", Dark: "#3A3A3A"}
	accent        = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#60A5FA"}
	green         = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	yellow        = lipgloss.AdaptiveColor{Light: "#A16207", Dark: "#FACC15"}
	red           = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
)

// DebugColors logs which variant of the adaptive colors the terminal gets
func DebugColors() {
	dev.Debug("terminal colors", "darkBackground", termenv.HasDarkBackground())
}

var (
	Regular       = lipgloss.NewStyle().Foreground(foreground)
	Bold          = Regular.Bold(true)
	Inverse       = Regular.Foreground(background).Background(foreground)
	AltInverse    = Regular.Foreground(foreground).Background(altBackground)
	Muted         = Regular.Foreground(altForeground)
	Accent        = Bold.Foreground(accent)
	Green         = Regular.Foreground(green)
	Yellow        = Regular.Foreground(yellow)
	Red           = Regular.Foreground(red)
	ErrorStyle    = Bold.Foreground(red)
	TitleStyle    = Bold.Padding(0, 1)
	SkeletonStyle = Muted.Faint(true)
	Marked        = Bold.Foreground(accent)
	TabStyle      = Muted.Padding(0, 1)
	ActiveTab     = Inverse.Padding(0, 1)
	ModalOption   = Regular.Margin(0, 1).Padding(0, 1)
	ModalSelected = Inverse.Margin(0, 1).Padding(0, 1)
	KeyHelpStyle  = Bold.Foreground(background).Background(foreground).Underline(true)
	Toast         = Regular.Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1)
	ToastError    = Regular.Border(lipgloss.RoundedBorder()).BorderForeground(red).Padding(0, 1)
)

// Table styles the bubbles table like the rest of the app
func Table() table.Styles {
	s := table.DefaultStyles()
	s.Header = Bold.Padding(0, 1).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(altForeground)
	s.Cell = lipgloss.NewStyle().Padding(0, 1)
	s.Selected = lipgloss.NewStyle().Foreground(background).Background(foreground)
	return s
}

// Status colors a resource status the way kubectl users read it: green when healthy, yellow while in
// progress and red on failure
func Status(status string) lipgloss.Style {
	switch strings.ToLower(status) {
	case "running", "active", "bound", "ready", "complete", "succeeded", "available", "normal":
		return Green
	case "pending", "containercreating", "terminating", "progressing", "suspended", "released":
		return Yellow
	case "failed", "error", "crashloopbackoff", "imagepullbackoff", "errimagepull", "notready", "lost", "warning", "evicted":
		return Red
	}
	return Regular
}
