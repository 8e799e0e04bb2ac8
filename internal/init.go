package internal

import (
	"context"
	"flag"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestrix-io/orchestrix/internal/command"
	"github.com/orchestrix-io/orchestrix/internal/constants"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/client"
	"github.com/orchestrix-io/orchestrix/internal/k8s/deleter"
	"github.com/orchestrix-io/orchestrix/internal/k8s/loader"
	"github.com/orchestrix-io/orchestrix/internal/k8s/portforward"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/page"
	_ "k8s.io/client-go/plugin/pkg/client/auth/oidc" // register OIDC auth provider
	"k8s.io/klog/v2"
	"time"
)

func (m Model) initialize() (Model, tea.Cmd) {
	dev.Debug("initializing")
	defer dev.Debug("done initializing")
	dev.Debug("------------")

	// disable kubernetes client warning/logging
	klog.InitFlags(nil)
	_ = flag.Set("logtostderr", "false")
	_ = flag.Set("stderrthreshold", "FATAL") // Set threshold to FATAL to suppress most kubernetes client logs
	_ = flag.Set("v", "0")                   // Set verbosity level to 0

	kind, err := m.catalog.Lookup(m.config.Resource)
	if err != nil {
		m.err = err
		return m, nil
	}

	c, err := client.NewClient(m.clientOptions(m.config.Context))
	if err != nil {
		m.err = err
		return m, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.ctx, m.cancel = ctx, cancel
	m = m.withClient(c)

	m.pages = make(map[page.Type]page.GenericPage)
	m.topBarHeight = lipgloss.Height(m.topBar())
	m.initialized = true

	var cmd tea.Cmd
	m, cmd = m.showKind(kind)
	return m, tea.Batch(cmd, command.CheckConnectivityCmd(m.ctx, m.client, constants.ContextSwitchTimeout))
}

func (m Model) clientOptions(contextName string) client.Options {
	return client.Options{
		KubeConfigPath:   m.config.KubeConfigPath,
		Context:          contextName,
		Namespace:        m.config.Namespace,
		AllNamespaces:    m.config.AllNamespaces,
		GKEAuthPluginDir: m.config.GKEAuthPluginDir,
	}
}

// withClient points every cluster-facing component at c. Caches of the previous client are dropped with it.
func (m Model) withClient(c *client.Client) Model {
	m.client = c
	m.namespace = c.Namespace()

	cfg := loader.DefaultConfig()
	if ttl := m.config.CacheTTL; ttl > 0 {
		cfg.TTLs = map[resource.Frequency]time.Duration{
			resource.FrequencyHigh:   ttl / 5,
			resource.FrequencyMedium: ttl,
			resource.FrequencyLow:    ttl * 3,
		}
	}
	cfg.Now = m.now
	m.loader = loader.New(loader.DynamicLister{Client: c.Dynamic()}, cfg)
	m.deleter = deleter.New(c.Dynamic())
	m.forwards = portforward.NewManager(c.Clientset(), c.RESTConfig(), c.Clientset().CoreV1().RESTClient())
	return m
}
