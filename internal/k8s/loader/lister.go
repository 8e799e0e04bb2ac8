package loader

import (
	"context"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
)

// Lister fetches one page of objects of a kind
type Lister interface {
	List(ctx context.Context, kind resource.Kind, namespace string, opts metav1.ListOptions) (*unstructured.UnstructuredList, error)
}

// DynamicLister lists any kind through the dynamic client
type DynamicLister struct {
	Client dynamic.Interface
}

func (d DynamicLister) List(ctx context.Context, kind resource.Kind, namespace string, opts metav1.ListOptions) (*unstructured.UnstructuredList, error) {
	if kind.Namespaced && namespace != "" {
		return d.Client.Resource(kind.GVR).Namespace(namespace).List(ctx, opts)
	}
	return d.Client.Resource(kind.GVR).List(ctx, opts)
}
