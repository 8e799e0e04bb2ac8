// Package detail fetches a single object and renders it for the detail page.
package detail

import (
	"context"
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/util"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/yaml"
	"sort"
	"strings"
	"time"
)

// Field is one labelled line of the overview tab
type Field struct {
	Label string
	Value string
}

func Get(ctx context.Context, client dynamic.Interface, kind resource.Kind, namespace, name string) (*unstructured.Unstructured, error) {
	var ri dynamic.ResourceInterface
	if kind.Namespaced {
		ri = client.Resource(kind.GVR).Namespace(namespace)
	} else {
		ri = client.Resource(kind.GVR)
	}
	obj, err := ri.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, kerrors.Classify(err, fmt.Sprintf("failed to get %s %s", kind.Singular, name))
	}
	return obj, nil
}

// RenderYAML renders obj without metadata.managedFields. obj is not modified.
func RenderYAML(obj *unstructured.Unstructured) (string, error) {
	if obj == nil {
		return "", nil
	}
	cp := obj.DeepCopy()
	unstructured.RemoveNestedField(cp.Object, "metadata", "managedFields")
	b, err := yaml.Marshal(cp.Object)
	if err != nil {
		return "", kerrors.Wrap(kerrors.CodeInternal, "failed to render yaml", err)
	}
	return string(b), nil
}

// Overview lists the common metadata of obj followed by the status columns of its kind
func Overview(kind resource.Kind, obj *unstructured.Unstructured, now time.Time) []Field {
	if obj == nil {
		return nil
	}
	created := obj.GetCreationTimestamp().Time
	createdValue := "<unknown>"
	if !created.IsZero() {
		createdValue = fmt.Sprintf("%s (%s ago)", created.UTC().Format(time.RFC3339), util.FormatAge(created, now))
	}

	fields := []Field{
		{"Kind", util.OrDefault(obj.GetKind(), kind.Title)},
		{"Name", obj.GetName()},
	}
	if kind.Namespaced {
		fields = append(fields, Field{"Namespace", obj.GetNamespace()})
	}
	fields = append(fields,
		Field{"UID", string(obj.GetUID())},
		Field{"Created", createdValue},
		Field{"Labels", formatMap(obj.GetLabels())},
		Field{"Annotations", formatMap(obj.GetAnnotations())},
		Field{"Owners", formatOwners(obj.GetOwnerReferences())},
	)
	if conds := conditions(obj); conds != "" {
		fields = append(fields, Field{"Conditions", conds})
	}

	row, err := resource.NewRow(kind, obj, now)
	if err != nil {
		return fields
	}
	for i, col := range kind.Columns {
		if i >= len(row.Cells) {
			break
		}
		// name and age are already shown above
		if col == "NAME" || col == "NAMESPACE" || col == "AGE" {
			continue
		}
		fields = append(fields, Field{titleCase(col), row.Cells[i]})
	}
	return fields
}

func formatMap(m map[string]string) string {
	if len(m) == 0 {
		return "<none>"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + util.TruncateChars(m[k], 80)
	}
	return strings.Join(parts, ", ")
}

func formatOwners(refs []metav1.OwnerReference) string {
	if len(refs) == 0 {
		return "<none>"
	}
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.Kind + "/" + r.Name
	}
	return strings.Join(parts, ", ")
}

func conditions(obj *unstructured.Unstructured) string {
	raw, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if !found || err != nil {
		return ""
	}
	var parts []string
	for _, c := range raw {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		t, _ := m["type"].(string)
		s, _ := m["status"].(string)
		if t == "" {
			continue
		}
		parts = append(parts, t+"="+s)
	}
	return strings.Join(parts, ", ")
}

func titleCase(col string) string {
	words := strings.Fields(strings.ToLower(col))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
