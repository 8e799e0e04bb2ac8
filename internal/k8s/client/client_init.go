package client

import (
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"os"
	"sort"
	"strings"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

// ContextInfo describes one kubeconfig context
type ContextInfo struct {
	Name      string
	Cluster   string
	Namespace string
	Current   bool
}

// ListContexts returns every context of the kubeconfig, sorted by name
func ListContexts(kubeConfigPath string) ([]ContextInfo, error) {
	rawKubeConfig, _, err := getKubeConfig(kubeConfigPath)
	if err != nil {
		return nil, err
	}
	var out []ContextInfo
	for name, c := range rawKubeConfig.Contexts {
		out = append(out, ContextInfo{
			Name:      name,
			Cluster:   c.Cluster,
			Namespace: c.Namespace,
			Current:   name == rawKubeConfig.CurrentContext,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Options select the context and namespace a client works against
type Options struct {
	KubeConfigPath string
	// Context defaults to the kubeconfig's current context
	Context string
	// Namespace defaults to the context's namespace, then "default"
	Namespace     string
	AllNamespaces bool
	// GKEAuthPluginDir is an extra directory searched for exec auth plugins
	GKEAuthPluginDir string
}

func NewClient(opts Options) (*Client, error) {
	rawKubeConfig, loadingRules, err := getKubeConfig(opts.KubeConfigPath)
	if err != nil {
		return nil, err
	}

	contextName := opts.Context
	if contextName == "" {
		if rawKubeConfig.CurrentContext == "" {
			return nil, kerrors.New(kerrors.CodeInvalidRequest, "no context specified and no current context found in kubeconfig")
		}
		contextName = rawKubeConfig.CurrentContext
		dev.Debug(fmt.Sprintf("no context specified, using current context %s", contextName))
	}
	kubeContext, exists := rawKubeConfig.Contexts[contextName]
	if !exists {
		return nil, kerrors.New(kerrors.CodeInvalidRequest, fmt.Sprintf("context %s not found in kubeconfig", contextName))
	}

	if err := ValidateAuthPlugin(rawKubeConfig.AuthInfos[kubeContext.AuthInfo], contextName, opts.GKEAuthPluginDir); err != nil {
		return nil, err
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = kubeContext.Namespace
	}
	if namespace == "" {
		namespace = "default"
	}
	if opts.AllNamespaces {
		namespace = ""
	}
	dev.Debug(fmt.Sprintf("using context '%s' cluster '%s' namespace '%s'", contextName, kubeContext.Cluster, namespace))

	overrides := &clientcmd.ConfigOverrides{CurrentContext: contextName}
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)
	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get client config for context %s: %w", contextName, err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset for context %s: %w", contextName, err)
	}
	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client for context %s: %w", contextName, err)
	}

	return &Client{
		clientset:   clientset,
		dynamic:     dynamicClient,
		restConfig:  restConfig,
		contextName: contextName,
		cluster:     kubeContext.Cluster,
		namespace:   namespace,
	}, nil
}

// getKubeConfig gets kubeconfig, accounting for multiple file paths
func getKubeConfig(kubeConfigPath string) (api.Config, *clientcmd.ClientConfigLoadingRules, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeConfigPath != "" {
		kubeconfigPaths := strings.Split(kubeConfigPath, string(os.PathListSeparator))
		dev.Debug(fmt.Sprintf("kubeconfig paths: %v", kubeconfigPaths))
		loadingRules.Precedence = kubeconfigPaths
	}
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, nil)
	rawKubeConfig, err := clientConfig.RawConfig()
	if err != nil {
		return api.Config{}, loadingRules, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	return rawKubeConfig, loadingRules, nil
}
