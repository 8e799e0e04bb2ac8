// Package resource describes the Kubernetes kinds the dashboard can browse and flattens their objects into table rows.
package resource

import (
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sort"
	"strings"
)

type Category string

const (
	CategoryWorkloads     Category = "Workloads"
	CategoryNetwork       Category = "Network"
	CategoryConfig        Category = "Config"
	CategoryStorage       Category = "Storage"
	CategoryAccessControl Category = "Access Control"
	CategoryCluster       Category = "Cluster"
	CategoryHelm          Category = "Helm"
)

// Categories in display order
var Categories = []Category{
	CategoryWorkloads,
	CategoryNetwork,
	CategoryConfig,
	CategoryStorage,
	CategoryAccessControl,
	CategoryCluster,
	CategoryHelm,
}

// Frequency is how quickly objects of a kind tend to change, which drives how long a listing stays cached
type Frequency int

const (
	FrequencyMedium Frequency = iota
	FrequencyHigh
	FrequencyLow
)

type Kind struct {
	// Name is the lowercase plural resource name, e.g. "pods"
	Name       string
	Singular   string
	Title      string
	ShortNames []string
	GVR        schema.GroupVersionResource
	Namespaced bool
	Category   Category
	Frequency  Frequency
	// Columns are the kind-specific headers shown after NAME (and NAMESPACE)
	Columns []string
	// LabelSelector narrows every listing of the kind, e.g. to the secrets helm owns
	LabelSelector string
	// Managed kinds are owned by another tool and are never deleted from here
	Managed bool
}

func (k Kind) String() string {
	return k.Name
}

// Aliases are all the names the kind can be looked up by
func (k Kind) Aliases() []string {
	return append([]string{k.Name, k.Singular}, k.ShortNames...)
}

// HasLogs reports whether objects of the kind have containers whose logs can be streamed
func (k Kind) HasLogs() bool {
	return k.Name == "pods"
}

// CanForward reports whether objects of the kind can be the target of a port forward
func (k Kind) CanForward() bool {
	return k.Name == "pods" || k.Name == "services"
}

type Catalog struct {
	kinds   []Kind
	byAlias map[string]Kind
}

func NewCatalog(kinds ...Kind) (Catalog, error) {
	c := Catalog{byAlias: make(map[string]Kind)}
	for _, k := range kinds {
		for _, alias := range k.Aliases() {
			alias = strings.ToLower(alias)
			if alias == "" {
				continue
			}
			if existing, ok := c.byAlias[alias]; ok && existing.Name != k.Name {
				return Catalog{}, fmt.Errorf("alias %q used by both %s and %s", alias, existing.Name, k.Name)
			}
			c.byAlias[alias] = k
		}
		c.kinds = append(c.kinds, k)
	}
	return c, nil
}

// Lookup finds a kind by plural, singular or short name, case-insensitively
func (c Catalog) Lookup(name string) (Kind, error) {
	k, ok := c.byAlias[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Kind{}, kerrors.New(kerrors.CodeInvalidRequest, fmt.Sprintf("unknown resource type %q", name))
	}
	return k, nil
}

func (c Catalog) MustLookup(name string) Kind {
	k, err := c.Lookup(name)
	if err != nil {
		panic(err)
	}
	return k
}

// Kinds returns every kind in catalog order
func (c Catalog) Kinds() []Kind {
	return append([]Kind(nil), c.kinds...)
}

// ByCategory groups kinds by category, each group sorted by title
func (c Catalog) ByCategory() map[Category][]Kind {
	out := make(map[Category][]Kind)
	for _, k := range c.kinds {
		out[k.Category] = append(out[k.Category], k)
	}
	for cat := range out {
		sort.Slice(out[cat], func(i, j int) bool { return out[cat][i].Title < out[cat][j].Title })
	}
	return out
}

func core(resource string) schema.GroupVersionResource {
	return schema.GroupVersionResource{Version: "v1", Resource: resource}
}

func gvr(group, version, resource string) schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: group, Version: version, Resource: resource}
}

var defaultKinds = []Kind{
	// workloads
	{Name: "pods", Singular: "pod", Title: "Pods", ShortNames: []string{"po"}, GVR: core("pods"), Namespaced: true, Category: CategoryWorkloads, Frequency: FrequencyHigh,
		Columns: []string{"READY", "STATUS", "RESTARTS", "IP", "NODE", "AGE"}},
	{Name: "deployments", Singular: "deployment", Title: "Deployments", ShortNames: []string{"deploy"}, GVR: gvr("apps", "v1", "deployments"), Namespaced: true, Category: CategoryWorkloads,
		Columns: []string{"READY", "UP-TO-DATE", "AVAILABLE", "AGE"}},
	{Name: "statefulsets", Singular: "statefulset", Title: "StatefulSets", ShortNames: []string{"sts"}, GVR: gvr("apps", "v1", "statefulsets"), Namespaced: true, Category: CategoryWorkloads,
		Columns: []string{"READY", "AGE"}},
	{Name: "daemonsets", Singular: "daemonset", Title: "DaemonSets", ShortNames: []string{"ds"}, GVR: gvr("apps", "v1", "daemonsets"), Namespaced: true, Category: CategoryWorkloads,
		Columns: []string{"DESIRED", "CURRENT", "READY", "AVAILABLE", "AGE"}},
	{Name: "replicasets", Singular: "replicaset", Title: "ReplicaSets", ShortNames: []string{"rs"}, GVR: gvr("apps", "v1", "replicasets"), Namespaced: true, Category: CategoryWorkloads,
		Columns: []string{"DESIRED", "CURRENT", "READY", "AGE"}},
	{Name: "jobs", Singular: "job", Title: "Jobs", GVR: gvr("batch", "v1", "jobs"), Namespaced: true, Category: CategoryWorkloads,
		Columns: []string{"COMPLETIONS", "STATUS", "AGE"}},
	{Name: "cronjobs", Singular: "cronjob", Title: "CronJobs", ShortNames: []string{"cj"}, GVR: gvr("batch", "v1", "cronjobs"), Namespaced: true, Category: CategoryWorkloads,
		Columns: []string{"SCHEDULE", "SUSPEND", "ACTIVE", "LAST SCHEDULE", "AGE"}},

	// network
	{Name: "services", Singular: "service", Title: "Services", ShortNames: []string{"svc"}, GVR: core("services"), Namespaced: true, Category: CategoryNetwork,
		Columns: []string{"TYPE", "CLUSTER-IP", "EXTERNAL-IP", "PORT(S)", "AGE"}},
	{Name: "endpoints", Singular: "endpoint", Title: "Endpoints", ShortNames: []string{"ep"}, GVR: core("endpoints"), Namespaced: true, Category: CategoryNetwork, Frequency: FrequencyHigh,
		Columns: []string{"ENDPOINTS", "AGE"}},
	{Name: "ingresses", Singular: "ingress", Title: "Ingresses", ShortNames: []string{"ing"}, GVR: gvr("networking.k8s.io", "v1", "ingresses"), Namespaced: true, Category: CategoryNetwork,
		Columns: []string{"CLASS", "HOSTS", "ADDRESS", "AGE"}},
	{Name: "ingressclasses", Singular: "ingressclass", Title: "Ingress Classes", GVR: gvr("networking.k8s.io", "v1", "ingressclasses"), Category: CategoryNetwork, Frequency: FrequencyLow,
		Columns: []string{"CONTROLLER", "AGE"}},
	{Name: "networkpolicies", Singular: "networkpolicy", Title: "Network Policies", ShortNames: []string{"netpol"}, GVR: gvr("networking.k8s.io", "v1", "networkpolicies"), Namespaced: true, Category: CategoryNetwork,
		Columns: []string{"POD-SELECTOR", "AGE"}},

	// config
	{Name: "configmaps", Singular: "configmap", Title: "Config Maps", ShortNames: []string{"cm"}, GVR: core("configmaps"), Namespaced: true, Category: CategoryConfig,
		Columns: []string{"DATA", "AGE"}},
	{Name: "secrets", Singular: "secret", Title: "Secrets", GVR: core("secrets"), Namespaced: true, Category: CategoryConfig,
		Columns: []string{"TYPE", "DATA", "AGE"}},
	{Name: "resourcequotas", Singular: "resourcequota", Title: "Resource Quotas", ShortNames: []string{"quota"}, GVR: core("resourcequotas"), Namespaced: true, Category: CategoryConfig,
		Columns: []string{"AGE"}},
	{Name: "limitranges", Singular: "limitrange", Title: "Limit Ranges", ShortNames: []string{"limits"}, GVR: core("limitranges"), Namespaced: true, Category: CategoryConfig,
		Columns: []string{"AGE"}},
	{Name: "horizontalpodautoscalers", Singular: "horizontalpodautoscaler", Title: "Horizontal Pod Autoscalers", ShortNames: []string{"hpa"}, GVR: gvr("autoscaling", "v2", "horizontalpodautoscalers"), Namespaced: true, Category: CategoryConfig,
		Columns: []string{"REFERENCE", "MINPODS", "MAXPODS", "REPLICAS", "AGE"}},
	{Name: "poddisruptionbudgets", Singular: "poddisruptionbudget", Title: "Pod Disruption Budgets", ShortNames: []string{"pdb"}, GVR: gvr("policy", "v1", "poddisruptionbudgets"), Namespaced: true, Category: CategoryConfig,
		Columns: []string{"MIN AVAILABLE", "MAX UNAVAILABLE", "ALLOWED DISRUPTIONS", "AGE"}},

	// storage
	{Name: "persistentvolumeclaims", Singular: "persistentvolumeclaim", Title: "Persistent Volume Claims", ShortNames: []string{"pvc"}, GVR: core("persistentvolumeclaims"), Namespaced: true, Category: CategoryStorage,
		Columns: []string{"STATUS", "VOLUME", "CAPACITY", "ACCESS MODES", "STORAGECLASS", "AGE"}},
	{Name: "persistentvolumes", Singular: "persistentvolume", Title: "Persistent Volumes", ShortNames: []string{"pv"}, GVR: core("persistentvolumes"), Category: CategoryStorage,
		Columns: []string{"CAPACITY", "ACCESS MODES", "RECLAIM POLICY", "STATUS", "CLAIM", "STORAGECLASS", "AGE"}},
	{Name: "storageclasses", Singular: "storageclass", Title: "Storage Classes", ShortNames: []string{"sc"}, GVR: gvr("storage.k8s.io", "v1", "storageclasses"), Category: CategoryStorage, Frequency: FrequencyLow,
		Columns: []string{"PROVISIONER", "RECLAIMPOLICY", "VOLUMEBINDINGMODE", "AGE"}},

	// access control
	{Name: "serviceaccounts", Singular: "serviceaccount", Title: "Service Accounts", ShortNames: []string{"sa"}, GVR: core("serviceaccounts"), Namespaced: true, Category: CategoryAccessControl,
		Columns: []string{"SECRETS", "AGE"}},
	{Name: "roles", Singular: "role", Title: "Roles", GVR: gvr("rbac.authorization.k8s.io", "v1", "roles"), Namespaced: true, Category: CategoryAccessControl,
		Columns: []string{"AGE"}},
	{Name: "rolebindings", Singular: "rolebinding", Title: "Role Bindings", GVR: gvr("rbac.authorization.k8s.io", "v1", "rolebindings"), Namespaced: true, Category: CategoryAccessControl,
		Columns: []string{"ROLE", "AGE"}},
	{Name: "clusterroles", Singular: "clusterrole", Title: "Cluster Roles", GVR: gvr("rbac.authorization.k8s.io", "v1", "clusterroles"), Category: CategoryAccessControl, Frequency: FrequencyLow,
		Columns: []string{"AGE"}},
	{Name: "clusterrolebindings", Singular: "clusterrolebinding", Title: "Cluster Role Bindings", GVR: gvr("rbac.authorization.k8s.io", "v1", "clusterrolebindings"), Category: CategoryAccessControl, Frequency: FrequencyLow,
		Columns: []string{"ROLE", "AGE"}},

	// cluster
	{Name: "nodes", Singular: "node", Title: "Nodes", ShortNames: []string{"no"}, GVR: core("nodes"), Category: CategoryCluster, Frequency: FrequencyHigh,
		Columns: []string{"STATUS", "ROLES", "VERSION", "MEMORY", "TAINTS", "AGE"}},
	{Name: "namespaces", Singular: "namespace", Title: "Namespaces", ShortNames: []string{"ns"}, GVR: core("namespaces"), Category: CategoryCluster, Frequency: FrequencyLow,
		Columns: []string{"STATUS", "AGE"}},
	{Name: "events", Singular: "event", Title: "Events", ShortNames: []string{"ev"}, GVR: core("events"), Namespaced: true, Category: CategoryCluster, Frequency: FrequencyHigh,
		Columns: []string{"TYPE", "REASON", "OBJECT", "COUNT", "MESSAGE", "LAST SEEN"}},
	{Name: "customresourcedefinitions", Singular: "customresourcedefinition", Title: "Custom Resource Definitions", ShortNames: []string{"crd", "crds"}, GVR: gvr("apiextensions.k8s.io", "v1", "customresourcedefinitions"), Category: CategoryCluster, Frequency: FrequencyLow,
		Columns: []string{"GROUP", "KIND", "SCOPE", "AGE"}},

	// helm
	{Name: "helmreleases", Singular: "helmrelease", Title: "Helm Releases", ShortNames: []string{"helm", "releases"}, GVR: core("secrets"), Namespaced: true, Category: CategoryHelm,
		Columns: []string{"RELEASE", "CHART", "REVISION", "APP VERSION", "STATUS", "UPDATED"}, LabelSelector: HelmReleaseSelector, Managed: true},
}

// DefaultCatalog covers the built-in kinds shown in the sidebar of the dashboard
func DefaultCatalog() Catalog {
	c, err := NewCatalog(defaultKinds...)
	if err != nil {
		panic(err)
	}
	return c
}
