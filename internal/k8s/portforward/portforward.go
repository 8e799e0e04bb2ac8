// Package portforward keeps track of port forwards to pods, resolving services to one of their running pods.
package portforward

import (
	"context"
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/metrics"
	"io"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
	"net/http"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusStarting Status = "Starting"
	StatusActive   Status = "Active"
	StatusError    Status = "Error"
	StatusStopped  Status = "Stopped"
)

const readyTimeout = 30 * time.Second

// Spec asks for a forward to a pod or service
type Spec struct {
	// Kind is "pods" or "services"
	Kind       string
	Namespace  string
	Name       string
	LocalPort  int
	RemotePort int
}

func (s Spec) Key() string {
	return fmt.Sprintf("%s/%s/%s:%d", s.Namespace, s.Kind, s.Name, s.RemotePort)
}

// Forward is a snapshot of a running or finished forward
type Forward struct {
	Spec
	Key string
	// Pod and TargetPort are what the forward actually connects to
	Pod        string
	TargetPort int
	// LocalPort is the bound port, which differs from Spec.LocalPort when that was 0
	LocalPort int
	Status    Status
	Err       error
	StartedAt time.Time
}

// Forwarder is the running half of client-go's PortForwarder
type Forwarder interface {
	ForwardPorts() error
	GetPorts() ([]portforward.ForwardedPort, error)
}

// ForwarderFactory creates a forwarder for ports ("local:remote") of pod
type ForwarderFactory func(namespace, pod string, ports []string, stopCh <-chan struct{}, readyCh chan struct{}) (Forwarder, error)

type entry struct {
	fwd    Forward
	stopCh chan struct{}
	once   sync.Once
}

func (e *entry) stop() {
	e.once.Do(func() { close(e.stopCh) })
}

type Manager struct {
	cs           kubernetes.Interface
	newForwarder ForwarderFactory
	now          func() time.Time

	mu       sync.Mutex
	forwards map[string]*entry
}

// NewManager forwards over SPDY using config. restClient is the core/v1 REST client of the cluster.
func NewManager(cs kubernetes.Interface, config *rest.Config, restClient rest.Interface) *Manager {
	return NewManagerWithFactory(cs, SPDYForwarderFactory(config, restClient))
}

func NewManagerWithFactory(cs kubernetes.Interface, factory ForwarderFactory) *Manager {
	return &Manager{
		cs:           cs,
		newForwarder: factory,
		now:          time.Now,
		forwards:     make(map[string]*entry),
	}
}

// SPDYForwarderFactory dials the portforward subresource of pods
func SPDYForwarderFactory(config *rest.Config, restClient rest.Interface) ForwarderFactory {
	return func(namespace, pod string, ports []string, stopCh <-chan struct{}, readyCh chan struct{}) (Forwarder, error) {
		transport, upgrader, err := spdy.RoundTripperFor(config)
		if err != nil {
			return nil, err
		}
		u := restClient.Post().Resource("pods").Namespace(namespace).Name(pod).SubResource("portforward").URL()
		dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, u)
		return portforward.New(dialer, ports, stopCh, readyCh, io.Discard, io.Discard)
	}
}

// Start resolves spec to a pod and port and begins forwarding. It returns once the forward is ready.
func (m *Manager) Start(ctx context.Context, spec Spec) (Forward, error) {
	if spec.RemotePort <= 0 {
		return Forward{}, kerrors.New(kerrors.CodeInvalidRequest, "remote port is required")
	}
	if spec.LocalPort < 0 || spec.LocalPort > 65535 {
		return Forward{}, kerrors.New(kerrors.CodeInvalidRequest, fmt.Sprintf("invalid local port %d", spec.LocalPort))
	}

	pod, targetPort, err := m.resolve(ctx, spec)
	if err != nil {
		return Forward{}, err
	}

	key := spec.Key()
	e := &entry{
		fwd: Forward{
			Spec:       spec,
			Key:        key,
			Pod:        pod,
			TargetPort: targetPort,
			Status:     StatusStarting,
			StartedAt:  m.now(),
		},
		stopCh: make(chan struct{}),
	}
	m.mu.Lock()
	if existing, ok := m.forwards[key]; ok && (existing.fwd.Status == StatusActive || existing.fwd.Status == StatusStarting) {
		m.mu.Unlock()
		return Forward{}, kerrors.New(kerrors.CodeConflict, fmt.Sprintf("port forward %s already exists", key))
	}
	m.forwards[key] = e
	m.mu.Unlock()

	local := ""
	if spec.LocalPort > 0 {
		local = fmt.Sprint(spec.LocalPort)
	}
	readyCh := make(chan struct{})
	fw, err := m.newForwarder(spec.Namespace, pod, []string{fmt.Sprintf("%s:%d", local, targetPort)}, e.stopCh, readyCh)
	if err != nil {
		m.finish(key, e, err)
		return Forward{}, kerrors.Wrap(kerrors.CodeInternal, fmt.Sprintf("failed to create port forward %s", key), err)
	}

	errCh := make(chan error, 1)
	go func() {
		err := fw.ForwardPorts()
		m.finish(key, e, err)
		errCh <- err
	}()

	select {
	case <-readyCh:
	case err := <-errCh:
		if err == nil {
			err = fmt.Errorf("forward ended before becoming ready")
		}
		return Forward{}, kerrors.Classify(err, fmt.Sprintf("port forward %s failed", key))
	case <-ctx.Done():
		e.stop()
		return Forward{}, kerrors.Classify(ctx.Err(), fmt.Sprintf("port forward %s canceled", key))
	case <-time.After(readyTimeout):
		e.stop()
		return Forward{}, kerrors.New(kerrors.CodeTimeout, fmt.Sprintf("port forward %s not ready after %s", key, readyTimeout))
	}

	m.mu.Lock()
	if ports, err := fw.GetPorts(); err == nil && len(ports) > 0 {
		e.fwd.LocalPort = int(ports[0].Local)
	} else {
		e.fwd.LocalPort = spec.LocalPort
	}
	if e.fwd.Status == StatusStarting {
		e.fwd.Status = StatusActive
	}
	fwd := e.fwd
	m.updateMetricLocked()
	m.mu.Unlock()

	dev.Debug("port forward ready", "key", key, "pod", pod, "local", fwd.LocalPort, "remote", targetPort)
	return fwd, nil
}

// finish records how a forward ended
func (m *Manager) finish(key string, e *entry, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		e.fwd.Status = StatusError
		e.fwd.Err = err
		dev.Debug("port forward failed", "key", key, "err", err.Error())
	} else {
		e.fwd.Status = StatusStopped
	}
	m.updateMetricLocked()
}

func (m *Manager) updateMetricLocked() {
	var active int
	for _, e := range m.forwards {
		if e.fwd.Status == StatusActive {
			active++
		}
	}
	metrics.SetActivePortForwards(active)
}

// Stop ends the forward with key and forgets it
func (m *Manager) Stop(key string) error {
	m.mu.Lock()
	e, ok := m.forwards[key]
	if ok {
		delete(m.forwards, key)
		e.fwd.Status = StatusStopped
		m.updateMetricLocked()
	}
	m.mu.Unlock()
	if !ok {
		return kerrors.New(kerrors.CodeNotFound, fmt.Sprintf("port forward %s not found", key))
	}
	e.stop()
	return nil
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	entries := m.forwards
	m.forwards = make(map[string]*entry)
	m.updateMetricLocked()
	m.mu.Unlock()
	for _, e := range entries {
		e.stop()
	}
}

// List returns every known forward sorted by key
func (m *Manager) List() []Forward {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Forward, 0, len(m.forwards))
	for _, e := range m.forwards {
		out = append(out, e.fwd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (m *Manager) resolve(ctx context.Context, spec Spec) (string, int, error) {
	switch spec.Kind {
	case "pods":
		pod, err := m.cs.CoreV1().Pods(spec.Namespace).Get(ctx, spec.Name, metav1.GetOptions{})
		if err != nil {
			return "", 0, kerrors.Classify(err, fmt.Sprintf("failed to get pod %s", spec.Name))
		}
		if pod.Status.Phase != corev1.PodRunning {
			return "", 0, kerrors.New(kerrors.CodeInvalidRequest, fmt.Sprintf("pod %s is %s, not Running", pod.Name, pod.Status.Phase))
		}
		return pod.Name, spec.RemotePort, nil
	case "services":
		return m.resolveService(ctx, spec)
	default:
		return "", 0, kerrors.New(kerrors.CodeInvalidRequest, fmt.Sprintf("cannot port forward to %s", spec.Kind))
	}
}

func (m *Manager) resolveService(ctx context.Context, spec Spec) (string, int, error) {
	svc, err := m.cs.CoreV1().Services(spec.Namespace).Get(ctx, spec.Name, metav1.GetOptions{})
	if err != nil {
		return "", 0, kerrors.Classify(err, fmt.Sprintf("failed to get service %s", spec.Name))
	}
	if len(svc.Spec.Selector) == 0 {
		return "", 0, kerrors.New(kerrors.CodeInvalidRequest, fmt.Sprintf("service %s has no selector", svc.Name))
	}

	target := intstr.FromInt32(int32(spec.RemotePort))
	for _, p := range svc.Spec.Ports {
		if int(p.Port) == spec.RemotePort {
			if p.TargetPort.IntValue() != 0 || p.TargetPort.Type == intstr.String {
				target = p.TargetPort
			}
			break
		}
	}

	pods, err := m.cs.CoreV1().Pods(spec.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.SelectorFromSet(svc.Spec.Selector).String(),
	})
	if err != nil {
		return "", 0, kerrors.Classify(err, fmt.Sprintf("failed to list pods of service %s", svc.Name))
	}
	for _, pod := range pods.Items {
		if pod.Status.Phase != corev1.PodRunning || pod.DeletionTimestamp != nil {
			continue
		}
		port, ok := containerPort(pod, target)
		if !ok {
			continue
		}
		return pod.Name, port, nil
	}
	return "", 0, kerrors.New(kerrors.CodeNotFound, fmt.Sprintf("no running pod of service %s exposes port %s", svc.Name, target.String()))
}

// containerPort resolves a numeric or named target port against the pod's containers
func containerPort(pod corev1.Pod, target intstr.IntOrString) (int, bool) {
	if target.Type == intstr.Int {
		return target.IntValue(), true
	}
	for _, c := range pod.Spec.Containers {
		for _, p := range c.Ports {
			if p.Name == target.StrVal {
				return int(p.ContainerPort), true
			}
		}
	}
	return 0, false
}
