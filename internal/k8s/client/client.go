package client

import (
	"bufio"
	"context"
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/model"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/version"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"sort"
	"time"
)

// Client is a connection to a single kubeconfig context
type Client struct {
	clientset   kubernetes.Interface
	dynamic     dynamic.Interface
	restConfig  *rest.Config
	contextName string
	cluster     string
	namespace   string
}

// NewFromInterfaces wraps existing clients, e.g. fakes in tests
func NewFromInterfaces(contextName, cluster, namespace string, cs kubernetes.Interface, dyn dynamic.Interface) *Client {
	return &Client{
		clientset:   cs,
		dynamic:     dyn,
		restConfig:  &rest.Config{},
		contextName: contextName,
		cluster:     cluster,
		namespace:   namespace,
	}
}

func (c *Client) Clientset() kubernetes.Interface { return c.clientset }

func (c *Client) Dynamic() dynamic.Interface { return c.dynamic }

func (c *Client) RESTConfig() *rest.Config { return c.restConfig }

func (c *Client) Context() string { return c.contextName }

func (c *Client) Cluster() string { return c.cluster }

// Namespace is empty when every namespace is shown
func (c *Client) Namespace() string { return c.namespace }

// WithNamespace returns a copy of the client scoped to namespace
func (c *Client) WithNamespace(namespace string) *Client {
	cp := *c
	cp.namespace = namespace
	return &cp
}

// CheckConnectivity asks the API server for its version, giving up after timeout
func (c *Client) CheckConnectivity(ctx context.Context, timeout time.Duration) (*version.Info, error) {
	type result struct {
		info *version.Info
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := c.clientset.Discovery().ServerVersion()
		done <- result{info, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, kerrors.Classify(r.err, fmt.Sprintf("failed to reach cluster for context %s", c.contextName))
		}
		return r.info, nil
	case <-timer.C:
		return nil, kerrors.New(kerrors.CodeTimeout, fmt.Sprintf("timed out after %s connecting to context %s", timeout, c.contextName))
	case <-ctx.Done():
		return nil, kerrors.Classify(ctx.Err(), "connectivity check canceled")
	}
}

// Namespaces lists namespace names, sorted
func (c *Client) Namespaces(ctx context.Context) ([]string, error) {
	list, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, kerrors.Classify(err, "failed to list namespaces")
	}
	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	sort.Strings(names)
	return names, nil
}

// PodContainers lists the regular containers of a pod followed by its init containers
func (c *Client) PodContainers(ctx context.Context, namespace, pod string) ([]string, error) {
	p, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		return nil, kerrors.Classify(err, fmt.Sprintf("error getting pod %s in namespace %s", pod, namespace))
	}
	var names []string
	for _, ct := range p.Spec.Containers {
		names = append(names, ct.Name)
	}
	for _, ct := range p.Spec.InitContainers {
		names = append(names, ct.Name)
	}
	return names, nil
}

type LogOptions struct {
	// TailLines of 0 streams the whole log
	TailLines int64
	SinceTime time.Time
	Follow    bool
	Previous  bool
}

func (o LogOptions) podLogOptions(container string) *v1.PodLogOptions {
	opts := &v1.PodLogOptions{
		Container:  container,
		Timestamps: true,
		Follow:     o.Follow,
		Previous:   o.Previous,
	}
	if o.TailLines > 0 {
		tail := o.TailLines
		opts.TailLines = &tail
	}
	if !o.SinceTime.IsZero() {
		opts.SinceTime = &metav1.Time{Time: o.SinceTime}
	}
	return opts
}

// GetLogStream returns a scanner that reads lines from a container's log stream, and the function that closes it
func (c *Client) GetLogStream(ctx context.Context, ref model.ContainerRef, opts LogOptions) (*bufio.Scanner, context.CancelFunc, error) {
	logs := c.clientset.CoreV1().Pods(ref.Namespace).GetLogs(ref.Pod, opts.podLogOptions(ref.Container))
	childCtx, cancel := context.WithCancel(ctx)
	logStream, err := logs.Stream(childCtx)
	if err != nil {
		cancel()
		return nil, nil, kerrors.Classify(err, fmt.Sprintf("error getting log stream for %s", ref.StreamKey()))
	}

	// create a scanner that reads lines from the log stream
	scanner := bufio.NewScanner(logStream)
	maxLineLength := 1024 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	scanner.Split(bufio.ScanLines)
	return scanner, func() {
		cancel()
		_ = logStream.Close()
	}, nil
}
