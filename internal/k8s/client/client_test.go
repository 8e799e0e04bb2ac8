package client

import (
	"context"
	"errors"
	"github.com/google/go-cmp/cmp"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/version"
	"k8s.io/client-go/discovery"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeKubeConfig(t *testing.T, current string) string {
	t.Helper()
	cfg := clientcmdapi.NewConfig()
	cfg.Clusters["dev-cluster"] = &clientcmdapi.Cluster{Server: "https://dev.example.com"}
	cfg.Clusters["prod-cluster"] = &clientcmdapi.Cluster{Server: "https://prod.example.com"}
	cfg.AuthInfos["user"] = &clientcmdapi.AuthInfo{Token: "token"}
	cfg.AuthInfos["plugin-user"] = &clientcmdapi.AuthInfo{Exec: &clientcmdapi.ExecConfig{
		Command:     "orchestrix-test-missing-plugin",
		APIVersion:  "client.authentication.k8s.io/v1",
		InstallHint: "install the plugin",
	}}
	cfg.Contexts["dev"] = &clientcmdapi.Context{Cluster: "dev-cluster", AuthInfo: "user", Namespace: "team-a"}
	cfg.Contexts["prod"] = &clientcmdapi.Context{Cluster: "prod-cluster", AuthInfo: "user"}
	cfg.Contexts["broken"] = &clientcmdapi.Context{Cluster: "prod-cluster", AuthInfo: "plugin-user"}
	cfg.CurrentContext = current

	path := filepath.Join(t.TempDir(), "config")
	if err := clientcmd.WriteToFile(*cfg, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestListContexts(t *testing.T) {
	path := writeKubeConfig(t, "prod")
	got, err := ListContexts(path)
	if err != nil {
		t.Fatal(err)
	}
	expected := []ContextInfo{
		{Name: "broken", Cluster: "prod-cluster"},
		{Name: "dev", Cluster: "dev-cluster", Namespace: "team-a"},
		{Name: "prod", Cluster: "prod-cluster", Current: true},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("contexts mismatch (-want +got):\n%s", diff)
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name          string
		current       string
		opts          Options
		wantContext   string
		wantNamespace string
		wantErr       string
	}{
		{name: "current context", current: "prod", wantContext: "prod", wantNamespace: "default"},
		{name: "context namespace", current: "prod", opts: Options{Context: "dev"}, wantContext: "dev", wantNamespace: "team-a"},
		{name: "explicit namespace", current: "dev", opts: Options{Namespace: "kube-system"}, wantContext: "dev", wantNamespace: "kube-system"},
		{name: "all namespaces", current: "dev", opts: Options{AllNamespaces: true}, wantContext: "dev", wantNamespace: ""},
		{name: "no current context", wantErr: "no context specified"},
		{name: "unknown context", current: "dev", opts: Options{Context: "staging"}, wantErr: "context staging not found"},
		{name: "missing auth plugin", current: "dev", opts: Options{Context: "broken"}, wantErr: "orchestrix-test-missing-plugin not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.KubeConfigPath = writeKubeConfig(t, tt.current)
			c, err := NewClient(opts)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if c.Context() != tt.wantContext || c.Namespace() != tt.wantNamespace {
				t.Errorf("context %q namespace %q", c.Context(), c.Namespace())
			}
			if c.Clientset() == nil || c.Dynamic() == nil || c.RESTConfig() == nil {
				t.Error("clients not built")
			}
		})
	}
}

func TestValidateAuthPluginCustomDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "orchestrix-test-plugin"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", os.Getenv("PATH"))
	authInfo := &clientcmdapi.AuthInfo{Exec: &clientcmdapi.ExecConfig{Command: "orchestrix-test-plugin"}}

	if err := ValidateAuthPlugin(authInfo, "ctx", ""); err == nil {
		t.Fatal("expected error without plugin dir")
	}
	if err := ValidateAuthPlugin(authInfo, "ctx", dir); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(os.Getenv("PATH"), dir) {
		t.Error("plugin dir not prepended to PATH")
	}
	if err := ValidateAuthPlugin(&clientcmdapi.AuthInfo{Token: "x"}, "ctx", ""); err != nil {
		t.Errorf("token auth rejected: %v", err)
	}
}

func TestCheckConnectivity(t *testing.T) {
	cs := fake.NewSimpleClientset()
	c := NewFromInterfaces("dev", "dev-cluster", "default", cs, dynamicfake.NewSimpleDynamicClient(runtime.NewScheme()))
	if _, err := c.CheckConnectivity(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFromInterfaces("dev", "", "", blockingDiscovery(t, cs), nil).CheckConnectivity(ctx, time.Minute)
	if !kerrors.IsCanceled(err) {
		t.Errorf("expected canceled, got %v", err)
	}
	_, err = NewFromInterfaces("dev", "", "", blockingDiscovery(t, cs), nil).CheckConnectivity(context.Background(), 10*time.Millisecond)
	if !kerrors.IsTimeout(err) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestNamespacesAndContainers(t *testing.T) {
	cs := fake.NewSimpleClientset(
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "prod"}},
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "default"}},
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "web-1", Namespace: "prod"},
			Spec: corev1.PodSpec{
				InitContainers: []corev1.Container{{Name: "migrate"}},
				Containers:     []corev1.Container{{Name: "app"}, {Name: "sidecar"}},
			},
		},
	)
	c := NewFromInterfaces("dev", "dev-cluster", "", cs, nil)

	namespaces, err := c.Namespaces(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"default", "prod"}, namespaces); diff != "" {
		t.Errorf("namespaces (-want +got):\n%s", diff)
	}

	containers, err := c.PodContainers(context.Background(), "prod", "web-1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"app", "sidecar", "migrate"}, containers); diff != "" {
		t.Errorf("containers (-want +got):\n%s", diff)
	}

	_, err = c.PodContainers(context.Background(), "prod", "missing")
	if kerrors.CodeOf(err) != kerrors.CodeNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestPodLogOptions(t *testing.T) {
	since := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	opts := LogOptions{TailLines: 200, SinceTime: since, Follow: true}.podLogOptions("app")
	if opts.Container != "app" || !opts.Timestamps || !opts.Follow || opts.Previous {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.TailLines == nil || *opts.TailLines != 200 {
		t.Errorf("tail lines %v", opts.TailLines)
	}
	if opts.SinceTime == nil || !opts.SinceTime.Time.Equal(since) {
		t.Errorf("since time %v", opts.SinceTime)
	}
	if opts := (LogOptions{}).podLogOptions("app"); opts.TailLines != nil || opts.SinceTime != nil {
		t.Errorf("zero options should stream everything: %+v", opts)
	}
}

var errUnreachable = errors.New("unreachable")

type slowDiscovery struct {
	discovery.DiscoveryInterface
	release chan struct{}
}

func (d slowDiscovery) ServerVersion() (*version.Info, error) {
	<-d.release
	return nil, errUnreachable
}

type slowClientset struct {
	*fake.Clientset
	discovery discovery.DiscoveryInterface
}

func (c slowClientset) Discovery() discovery.DiscoveryInterface {
	return c.discovery
}

// blockingDiscovery answers ServerVersion only once the test has finished
func blockingDiscovery(t *testing.T, cs *fake.Clientset) slowClientset {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return slowClientset{Clientset: cs, discovery: slowDiscovery{DiscoveryInterface: cs.Discovery(), release: release}}
}
