package command

import (
	"context"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/client"
	"github.com/orchestrix-io/orchestrix/internal/k8s/events"
	"github.com/orchestrix-io/orchestrix/internal/k8s/overview"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	"sort"
	"time"
)

type OverviewLoadedMsg struct {
	Overview overview.Overview
	// Critical are the recent issues whose reason is known to need attention
	Critical []events.Event
	Err      error
}

func GetOverviewCmd(ctx context.Context, cs kubernetes.Interface, namespace string, now time.Time) tea.Cmd {
	return func() tea.Msg {
		var msg OverviewLoadedMsg
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			o, err := overview.Collect(gctx, cs, namespace, now)
			msg.Overview = o
			return err
		})
		g.Go(func() error {
			issues, err := events.Issues(gctx, cs, namespace, now)
			if err != nil {
				// the overview is still useful without the issue list
				dev.Debug("listing issues failed", "err", err.Error())
				return nil
			}
			msg.Critical = events.Critical(issues)
			return nil
		})
		msg.Err = g.Wait()
		return msg
	}
}

type ContextSwitchedMsg struct {
	Client        *client.Client
	ServerVersion string
	Err           error
}

// SwitchContextCmd builds a client for another kubeconfig context and only hands it over once the cluster answered
// within timeout
func SwitchContextCmd(ctx context.Context, opts client.Options, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		c, err := client.NewClient(opts)
		if err != nil {
			return ContextSwitchedMsg{Err: err}
		}
		info, err := c.CheckConnectivity(ctx, timeout)
		if err != nil {
			return ContextSwitchedMsg{Err: err}
		}
		dev.Debug("switched context", "context", c.Context(), "server", info.GitVersion)
		return ContextSwitchedMsg{Client: c, ServerVersion: info.GitVersion}
	}
}

type ConnectivityCheckedMsg struct {
	ServerVersion string
	Err           error
}

// CheckConnectivityCmd confirms the startup cluster is reachable without holding up the first render
func CheckConnectivityCmd(ctx context.Context, c *client.Client, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		info, err := c.CheckConnectivity(ctx, timeout)
		if err != nil {
			return ConnectivityCheckedMsg{Err: err}
		}
		return ConnectivityCheckedMsg{ServerVersion: info.GitVersion}
	}
}

type ContextsListedMsg struct {
	Contexts []client.ContextInfo
	Err      error
}

// ListContextsCmd reads the contexts of the kubeconfig for the contexts page
func ListContextsCmd(kubeConfigPath string) tea.Cmd {
	return func() tea.Msg {
		contexts, err := client.ListContexts(kubeConfigPath)
		return ContextsListedMsg{Contexts: contexts, Err: err}
	}
}

type NamespaceCheckedMsg struct {
	Namespace string
	// Exists is false only when the cluster listed its namespaces and this one was not among them
	Exists bool
}

// CheckNamespaceCmd looks namespace up before it is switched to. A user allowed into a namespace is not
// necessarily allowed to list namespaces, so a failed listing lets the switch go ahead.
func CheckNamespaceCmd(ctx context.Context, c *client.Client, namespace string, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		names, err := c.Namespaces(ctx)
		if err != nil {
			dev.Debug("listing namespaces failed, switching unchecked", "namespace", namespace, "err", err.Error())
			return NamespaceCheckedMsg{Namespace: namespace, Exists: true}
		}
		i := sort.SearchStrings(names, namespace)
		return NamespaceCheckedMsg{Namespace: namespace, Exists: i < len(names) && names[i] == namespace}
	}
}
