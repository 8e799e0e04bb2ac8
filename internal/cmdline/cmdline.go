// Package cmdline parses what is typed after ":" into a navigation command.
package cmdline

import (
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"strconv"
	"strings"
)

// Prefix opens the command line
const Prefix = ":"

type Type int

const (
	TypeResource Type = iota
	TypeNamespace
	TypeContext
	TypePortForward
	TypeOverview
	TypeForwards
	TypeKinds
	TypeContexts
	TypeQuit
)

type Command struct {
	Type Type
	// Kind is set for TypeResource
	Kind resource.Kind
	// Namespace is set for TypeNamespace; empty together with AllNamespaces
	Namespace     string
	AllNamespaces bool
	// Context is set for TypeContext
	Context string
	// LocalPort and RemotePort are set for TypePortForward. LocalPort 0 lets the system pick.
	LocalPort  int
	RemotePort int
}

func invalid(format string, args ...any) error {
	return kerrors.New(kerrors.CodeInvalidRequest, fmt.Sprintf(format, args...))
}

// Parse reads a command line such as ":deploy", ":ns kube-system" or ":pf 8080:80"
func Parse(input string, catalog resource.Catalog) (Command, error) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(input), Prefix))
	if len(fields) == 0 {
		return Command{}, invalid("empty command")
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	switch verb {
	case "q", "quit":
		return noArgs(Command{Type: TypeQuit}, verb, args)
	case "overview":
		return noArgs(Command{Type: TypeOverview}, verb, args)
	case "forwards":
		return noArgs(Command{Type: TypeForwards}, verb, args)
	case "kinds", "types":
		return noArgs(Command{Type: TypeKinds}, verb, args)
	case "ns":
		if len(args) == 0 {
			// bare "ns" lists namespaces
			break
		}
		if len(args) != 1 {
			return Command{}, invalid("usage: ns <name>|all")
		}
		if args[0] == "all" || args[0] == "*" {
			return Command{Type: TypeNamespace, AllNamespaces: true}, nil
		}
		return Command{Type: TypeNamespace, Namespace: args[0]}, nil
	case "ctx", "contexts":
		if len(args) == 0 {
			return Command{Type: TypeContexts}, nil
		}
		if len(args) != 1 || verb == "contexts" {
			return Command{}, invalid("usage: ctx [name]")
		}
		return Command{Type: TypeContext, Context: args[0]}, nil
	case "pf":
		if len(args) != 1 {
			return Command{}, invalid("usage: pf <local>:<remote> or pf <port>")
		}
		local, remote, err := parsePorts(args[0])
		if err != nil {
			return Command{}, err
		}
		return Command{Type: TypePortForward, LocalPort: local, RemotePort: remote}, nil
	}

	kind, err := catalog.Lookup(verb)
	if err != nil {
		return Command{}, invalid("unknown command or resource type %q", fields[0])
	}
	return noArgs(Command{Type: TypeResource, Kind: kind}, verb, args)
}

func noArgs(c Command, verb string, args []string) (Command, error) {
	if len(args) > 0 {
		return Command{}, invalid("%s takes no arguments", verb)
	}
	return c, nil
}

// parsePorts accepts "remote", "local:remote" and ":remote"
func parsePorts(s string) (int, int, error) {
	localText, remoteText, found := strings.Cut(s, ":")
	if !found {
		remote, err := port(localText, false)
		if err != nil {
			return 0, 0, err
		}
		return remote, remote, nil
	}
	local, err := port(localText, true)
	if err != nil {
		return 0, 0, err
	}
	remote, err := port(remoteText, false)
	if err != nil {
		return 0, 0, err
	}
	return local, remote, nil
}

func port(s string, allowZero bool) (int, error) {
	if s == "" && allowZero {
		return 0, nil
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, invalid("invalid port %q", s)
	}
	if p < 0 || p > 65535 || (p == 0 && !allowZero) {
		return 0, invalid("port %d out of range", p)
	}
	return p, nil
}
