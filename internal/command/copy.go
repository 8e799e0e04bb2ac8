package command

import (
	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"strings"
)

type ContentCopiedToClipboardMsg struct {
	// What names the copied content in the confirmation, e.g. "YAML of pods/web"
	What  string
	Lines int
	Err   error
}

func CopyContentToClipboardCmd(what string, lines []string) tea.Cmd {
	return func() tea.Msg {
		err := clipboard.WriteAll(strings.Join(lines, "\n"))
		return ContentCopiedToClipboardMsg{What: what, Lines: len(lines), Err: err}
	}
}
