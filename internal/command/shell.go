package command

import (
	"context"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestrix-io/orchestrix/internal/k8s/client"
	"github.com/orchestrix-io/orchestrix/internal/k8s/exec"
	"github.com/orchestrix-io/orchestrix/internal/model"
)

type ShellExitedMsg struct {
	Container model.ContainerRef
	Err       error
}

// ShellCmd suspends the UI and attaches the terminal to a shell in the first container of pod
func ShellCmd(ctx context.Context, c *client.Client, pod model.ObjectRef) tea.Cmd {
	return func() tea.Msg {
		containers, err := c.PodContainers(ctx, pod.Namespace, pod.Name)
		if err != nil {
			return ShellExitedMsg{Container: model.ContainerRef{Namespace: pod.Namespace, Pod: pod.Name}, Err: err}
		}
		ref := model.ContainerRef{Namespace: pod.Namespace, Pod: pod.Name}
		if len(containers) > 0 {
			ref.Container = containers[0]
		}
		shell := exec.NewShellCommand(ctx, c.RESTConfig(), c.Clientset().CoreV1().RESTClient(), ref)
		// running the returned command hands the exec over to the program
		return tea.Exec(shell, func(err error) tea.Msg {
			return ShellExitedMsg{Container: ref, Err: err}
		})()
	}
}
