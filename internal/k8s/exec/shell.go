// Package exec opens an interactive shell in a container. ShellCommand satisfies tea.ExecCommand, so the program
// releases the terminal while the shell runs.
package exec

import (
	"context"
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"golang.org/x/term"
	"io"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	"net/url"
	"os"
)

// DefaultShell prefers bash and falls back to sh
var DefaultShell = []string{"sh", "-c", "command -v bash >/dev/null && exec bash || exec sh"}

// ExecutorFactory builds the stream executor for an exec URL
type ExecutorFactory func(config *rest.Config, method string, u *url.URL) (remotecommand.Executor, error)

type ShellCommand struct {
	Ref     model.ContainerRef
	Command []string

	ctx         context.Context
	config      *rest.Config
	restClient  rest.Interface
	newExecutor ExecutorFactory

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewShellCommand prepares a shell in ref. restClient is the core/v1 REST client of the cluster.
func NewShellCommand(ctx context.Context, config *rest.Config, restClient rest.Interface, ref model.ContainerRef) *ShellCommand {
	return &ShellCommand{
		Ref:         ref,
		Command:     DefaultShell,
		ctx:         ctx,
		config:      config,
		restClient:  restClient,
		newExecutor: remotecommand.NewSPDYExecutor,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
}

// WithExecutorFactory replaces the SPDY executor, e.g. in tests
func (s *ShellCommand) WithExecutorFactory(f ExecutorFactory) *ShellCommand {
	s.newExecutor = f
	return s
}

func (s *ShellCommand) SetStdin(r io.Reader) { s.stdin = r }

func (s *ShellCommand) SetStdout(w io.Writer) { s.stdout = w }

func (s *ShellCommand) SetStderr(w io.Writer) { s.stderr = w }

// URL is the exec subresource URL of the container
func (s *ShellCommand) URL() *url.URL {
	return s.restClient.Post().
		Resource("pods").
		Namespace(s.Ref.Namespace).
		Name(s.Ref.Pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: s.Ref.Container,
			Command:   s.Command,
			Stdin:     true,
			Stdout:    true,
			Stderr:    false,
			TTY:       true,
		}, scheme.ParameterCodec).
		URL()
}

// Run streams the session until the remote shell exits
func (s *ShellCommand) Run() error {
	executor, err := s.newExecutor(s.config, "POST", s.URL())
	if err != nil {
		return kerrors.Wrap(kerrors.CodeInternal, fmt.Sprintf("failed to create executor for %s", s.Ref.StreamKey()), err)
	}

	sizes := &initialSize{}
	if f, ok := s.stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, h, err := term.GetSize(int(f.Fd())); err == nil {
			sizes.size = &remotecommand.TerminalSize{Width: uint16(w), Height: uint16(h)}
		}
	}
	if f, ok := s.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return kerrors.Wrap(kerrors.CodeInternal, "failed to put terminal in raw mode", err)
		}
		defer func() { _ = term.Restore(int(f.Fd()), state) }()
	}

	dev.Debug("starting shell", "container", s.Ref.StreamKey())
	err = executor.StreamWithContext(s.ctx, remotecommand.StreamOptions{
		Stdin:             s.stdin,
		Stdout:            s.stdout,
		Stderr:            s.stderr,
		Tty:               true,
		TerminalSizeQueue: sizes,
	})
	if err != nil {
		return kerrors.Classify(err, fmt.Sprintf("shell in %s ended", s.Ref.StreamKey()))
	}
	return nil
}

// initialSize reports the terminal size once, then ends the queue
type initialSize struct {
	size *remotecommand.TerminalSize
	sent bool
}

func (q *initialSize) Next() *remotecommand.TerminalSize {
	if q.sent {
		return nil
	}
	q.sent = true
	return q.size
}
