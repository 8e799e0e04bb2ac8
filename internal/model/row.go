package model

import (
	"strings"
	"time"
)

// Row is one Kubernetes object flattened for display in a table
type Row struct {
	UID       string
	Name      string
	Namespace string
	Kind      string
	Status    string
	Created   time.Time
	Labels    map[string]string
	// Cells align with the columns of the row's kind
	Cells []string
	// Message and Reason are populated for kinds that carry them, e.g. events
	Message string
	Reason  string
	Type    string
}

// Ref identifies the object the row was built from
func (r Row) Ref() ObjectRef {
	return ObjectRef{Kind: r.Kind, Namespace: r.Namespace, Name: r.Name}
}

// Key is unique per object within a cluster, falling back to namespace/name when the UID is unknown
func (r Row) Key() string {
	if r.UID != "" {
		return r.UID
	}
	return r.Namespace + "/" + r.Name
}

// ObjectRef names a single object of a kind
type ObjectRef struct {
	Kind      string
	Namespace string
	Name      string
}

func (o ObjectRef) String() string {
	if o.Namespace == "" {
		return o.Kind + "/" + o.Name
	}
	return o.Kind + "/" + o.Namespace + "/" + o.Name
}

// ContainerRef names a single container of a pod
type ContainerRef struct {
	Namespace string
	Pod       string
	Container string
}

// StreamKey identifies a log stream, e.g. "ns/pod" or "ns/pod/container"
func (c ContainerRef) StreamKey() string {
	parts := []string{c.Namespace, c.Pod}
	if c.Container != "" {
		parts = append(parts, c.Container)
	}
	return strings.Join(parts, "/")
}
