package command

import (
	"context"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestrix-io/orchestrix/internal/k8s/portforward"
)

type PortForwardStartedMsg struct {
	Spec    portforward.Spec
	Forward portforward.Forward
	Err     error
}

// StartPortForwardCmd blocks until the forward is ready or failed; the forward itself keeps running afterwards
func StartPortForwardCmd(ctx context.Context, m *portforward.Manager, spec portforward.Spec) tea.Cmd {
	return func() tea.Msg {
		fwd, err := m.Start(ctx, spec)
		return PortForwardStartedMsg{Spec: spec, Forward: fwd, Err: err}
	}
}

type PortForwardStoppedMsg struct {
	Key string
	Err error
}

func StopPortForwardCmd(m *portforward.Manager, key string) tea.Cmd {
	return func() tea.Msg {
		return PortForwardStoppedMsg{Key: key, Err: m.Stop(key)}
	}
}
