package search

import (
	tea "github.com/charmbracelet/bubbletea"
	"time"
)

const (
	SearchDelay = 300 * time.Millisecond
	ScrollDelay = 100 * time.Millisecond
)

// Debouncer numbers triggers so that only the message of the most recent one is acted upon
type Debouncer struct {
	Delay time.Duration
	seq   int
}

func NewDebouncer(delay time.Duration) Debouncer {
	return Debouncer{Delay: delay}
}

// Trigger returns a command that delivers msgFor(seq) after the delay
func (d *Debouncer) Trigger(msgFor func(seq int) tea.Msg) tea.Cmd {
	d.seq++
	seq := d.seq
	return tea.Tick(d.Delay, func(time.Time) tea.Msg {
		return msgFor(seq)
	})
}

// IsLatest reports whether seq belongs to the most recent trigger
func (d *Debouncer) IsLatest(seq int) bool {
	return seq == d.seq
}
