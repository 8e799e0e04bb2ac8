package resource

import (
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"github.com/orchestrix-io/orchestrix/internal/util"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sort"
	"strconv"
	"strings"
	"time"
)

const none = "<none>"

// waiting reasons that replace the pod phase as its displayed status
var overridingWaitingReasons = map[string]bool{
	"CrashLoopBackOff": true,
	"ImagePullBackOff": true,
	"ErrImagePull":     true,
}

// NewRow flattens obj into a table row whose cells line up with kind.Columns
func NewRow(kind Kind, obj *unstructured.Unstructured, now time.Time) (model.Row, error) {
	row := model.Row{
		UID:       string(obj.GetUID()),
		Name:      obj.GetName(),
		Namespace: obj.GetNamespace(),
		Kind:      kind.Name,
		Created:   obj.GetCreationTimestamp().Time,
		Labels:    obj.GetLabels(),
	}
	age := util.FormatAge(row.Created, now)

	var err error
	switch kind.Name {
	case "pods":
		err = podRow(obj, &row, age)
	case "deployments":
		err = deploymentRow(obj, &row, age)
	case "statefulsets":
		err = statefulSetRow(obj, &row, age)
	case "daemonsets":
		err = daemonSetRow(obj, &row, age)
	case "replicasets":
		err = replicaSetRow(obj, &row, age)
	case "jobs":
		err = jobRow(obj, &row, age)
	case "cronjobs":
		err = cronJobRow(obj, &row, age, now)
	case "services":
		err = serviceRow(obj, &row, age)
	case "nodes":
		err = nodeRow(obj, &row, age)
	case "events":
		err = eventRow(obj, &row, now)
	case "helmreleases":
		helmReleaseRow(obj, &row, now)
	default:
		row.Cells = genericCells(kind, obj, &row, age)
	}
	if err != nil {
		return model.Row{}, fmt.Errorf("failed to build %s row for %s: %w", kind.Singular, obj.GetName(), err)
	}
	return row, nil
}

// NewRows builds rows for every item of a list, skipping nothing: a malformed item is an error for the whole page
func NewRows(kind Kind, items []unstructured.Unstructured, now time.Time) ([]model.Row, error) {
	rows := make([]model.Row, 0, len(items))
	for i := range items {
		row, err := NewRow(kind, &items[i], now)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func fromUnstructured(obj *unstructured.Unstructured, into any) error {
	return runtime.DefaultUnstructuredConverter.FromUnstructured(obj.UnstructuredContent(), into)
}

func podRow(obj *unstructured.Unstructured, row *model.Row, age string) error {
	var pod corev1.Pod
	if err := fromUnstructured(obj, &pod); err != nil {
		return err
	}
	ready, total, restarts := 0, len(pod.Spec.Containers), int32(0)
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Ready {
			ready++
		}
		restarts += cs.RestartCount
	}
	row.Status = PodStatus(pod)
	row.Cells = []string{
		fmt.Sprintf("%d/%d", ready, total),
		row.Status,
		strconv.Itoa(int(restarts)),
		util.OrDefault(pod.Status.PodIP, none),
		util.OrDefault(pod.Spec.NodeName, none),
		age,
	}
	return nil
}

// PodStatus is the phase of the pod, unless a container is stuck in a well known waiting reason or exited with an error
func PodStatus(pod corev1.Pod) string {
	if pod.DeletionTimestamp != nil {
		return "Terminating"
	}
	status := string(pod.Status.Phase)
	if status == "" {
		status = "Unknown"
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if w := cs.State.Waiting; w != nil && overridingWaitingReasons[w.Reason] {
			return w.Reason
		}
		if t := cs.State.Terminated; t != nil && t.ExitCode != 0 {
			status = "Error"
		}
	}
	return status
}

func deploymentRow(obj *unstructured.Unstructured, row *model.Row, age string) error {
	var d appsv1.Deployment
	if err := fromUnstructured(obj, &d); err != nil {
		return err
	}
	desired := replicas(d.Spec.Replicas)
	row.Status = fmt.Sprintf("%d/%d", d.Status.ReadyReplicas, desired)
	row.Cells = []string{
		row.Status,
		strconv.Itoa(int(d.Status.UpdatedReplicas)),
		strconv.Itoa(int(d.Status.AvailableReplicas)),
		age,
	}
	return nil
}

func statefulSetRow(obj *unstructured.Unstructured, row *model.Row, age string) error {
	var s appsv1.StatefulSet
	if err := fromUnstructured(obj, &s); err != nil {
		return err
	}
	row.Status = fmt.Sprintf("%d/%d", s.Status.ReadyReplicas, replicas(s.Spec.Replicas))
	row.Cells = []string{row.Status, age}
	return nil
}

func daemonSetRow(obj *unstructured.Unstructured, row *model.Row, age string) error {
	var ds appsv1.DaemonSet
	if err := fromUnstructured(obj, &ds); err != nil {
		return err
	}
	row.Status = fmt.Sprintf("%d/%d", ds.Status.NumberReady, ds.Status.DesiredNumberScheduled)
	row.Cells = []string{
		strconv.Itoa(int(ds.Status.DesiredNumberScheduled)),
		strconv.Itoa(int(ds.Status.CurrentNumberScheduled)),
		strconv.Itoa(int(ds.Status.NumberReady)),
		strconv.Itoa(int(ds.Status.NumberAvailable)),
		age,
	}
	return nil
}

func replicaSetRow(obj *unstructured.Unstructured, row *model.Row, age string) error {
	var rs appsv1.ReplicaSet
	if err := fromUnstructured(obj, &rs); err != nil {
		return err
	}
	desired := replicas(rs.Spec.Replicas)
	row.Status = fmt.Sprintf("%d/%d", rs.Status.ReadyReplicas, desired)
	row.Cells = []string{
		strconv.Itoa(int(desired)),
		strconv.Itoa(int(rs.Status.Replicas)),
		strconv.Itoa(int(rs.Status.ReadyReplicas)),
		age,
	}
	return nil
}

func jobRow(obj *unstructured.Unstructured, row *model.Row, age string) error {
	var j batchv1.Job
	if err := fromUnstructured(obj, &j); err != nil {
		return err
	}
	completions := int32(1)
	if j.Spec.Completions != nil {
		completions = *j.Spec.Completions
	}
	row.Status = "Running"
	for _, c := range j.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}
		switch c.Type {
		case batchv1.JobComplete:
			row.Status = "Complete"
		case batchv1.JobFailed:
			row.Status = "Failed"
		}
	}
	row.Cells = []string{fmt.Sprintf("%d/%d", j.Status.Succeeded, completions), row.Status, age}
	return nil
}

func cronJobRow(obj *unstructured.Unstructured, row *model.Row, age string, now time.Time) error {
	var cj batchv1.CronJob
	if err := fromUnstructured(obj, &cj); err != nil {
		return err
	}
	suspend := cj.Spec.Suspend != nil && *cj.Spec.Suspend
	last := none
	if cj.Status.LastScheduleTime != nil {
		last = util.FormatAge(cj.Status.LastScheduleTime.Time, now)
	}
	row.Status = "Active"
	if suspend {
		row.Status = "Suspended"
	}
	row.Cells = []string{cj.Spec.Schedule, strconv.FormatBool(suspend), strconv.Itoa(len(cj.Status.Active)), last, age}
	return nil
}

func serviceRow(obj *unstructured.Unstructured, row *model.Row, age string) error {
	var svc corev1.Service
	if err := fromUnstructured(obj, &svc); err != nil {
		return err
	}
	row.Status = string(svc.Spec.Type)
	row.Cells = []string{
		string(svc.Spec.Type),
		util.OrDefault(svc.Spec.ClusterIP, none),
		ServiceExternalIP(svc),
		ServicePorts(svc),
		age,
	}
	return nil
}

// ServiceExternalIP lists the external IPs, else the load balancer ingress addresses, else <none>
func ServiceExternalIP(svc corev1.Service) string {
	if len(svc.Spec.ExternalIPs) > 0 {
		return strings.Join(svc.Spec.ExternalIPs, ",")
	}
	var ips []string
	for _, ing := range svc.Status.LoadBalancer.Ingress {
		if ing.IP != "" {
			ips = append(ips, ing.IP)
		} else if ing.Hostname != "" {
			ips = append(ips, ing.Hostname)
		}
	}
	if len(ips) > 0 {
		return strings.Join(ips, ",")
	}
	return none
}

// ServicePorts renders ports as port[:nodePort]/protocol, comma separated
func ServicePorts(svc corev1.Service) string {
	if len(svc.Spec.Ports) == 0 {
		return none
	}
	var ports []string
	for _, p := range svc.Spec.Ports {
		protocol := p.Protocol
		if protocol == "" {
			protocol = corev1.ProtocolTCP
		}
		if p.NodePort != 0 {
			ports = append(ports, fmt.Sprintf("%d:%d/%s", p.Port, p.NodePort, protocol))
		} else {
			ports = append(ports, fmt.Sprintf("%d/%s", p.Port, protocol))
		}
	}
	return strings.Join(ports, ",")
}

func nodeRow(obj *unstructured.Unstructured, row *model.Row, age string) error {
	var node corev1.Node
	if err := fromUnstructured(obj, &node); err != nil {
		return err
	}
	row.Status = NodeStatus(node)
	memory := none
	if q, ok := node.Status.Capacity[corev1.ResourceMemory]; ok {
		memory = FormatMemory(q.String())
	}
	row.Cells = []string{
		row.Status,
		NodeRoles(node.Labels),
		util.OrDefault(node.Status.NodeInfo.KubeletVersion, none),
		memory,
		strconv.Itoa(len(node.Spec.Taints)),
		age,
	}
	return nil
}

func NodeStatus(node corev1.Node) string {
	for _, c := range node.Status.Conditions {
		if c.Type == corev1.NodeReady {
			if c.Status == corev1.ConditionTrue {
				return "Ready"
			}
			return "NotReady"
		}
	}
	return "Unknown"
}

// NodeRoles collects roles from node-role.kubernetes.io/<role> labels
func NodeRoles(labels map[string]string) string {
	const prefix = "node-role.kubernetes.io/"
	var roles []string
	for k := range labels {
		if strings.HasPrefix(k, prefix) && len(k) > len(prefix) {
			roles = append(roles, strings.TrimPrefix(k, prefix))
		}
	}
	if len(roles) == 0 {
		return none
	}
	sort.Strings(roles)
	return strings.Join(roles, ",")
}

// FormatMemory converts a Ki quantity to GB with one decimal place, leaving other formats untouched
func FormatMemory(quantity string) string {
	if !strings.HasSuffix(quantity, "Ki") {
		return quantity
	}
	ki, err := strconv.ParseFloat(strings.TrimSuffix(quantity, "Ki"), 64)
	if err != nil {
		return quantity
	}
	return fmt.Sprintf("%.1fGB", ki/1024/1024)
}

func eventRow(obj *unstructured.Unstructured, row *model.Row, now time.Time) error {
	var ev corev1.Event
	if err := fromUnstructured(obj, &ev); err != nil {
		return err
	}
	row.Status = ev.Type
	row.Type = ev.Type
	row.Reason = ev.Reason
	row.Message = ev.Message
	object := strings.ToLower(ev.InvolvedObject.Kind) + "/" + ev.InvolvedObject.Name
	row.Cells = []string{
		ev.Type,
		ev.Reason,
		object,
		strconv.Itoa(int(ev.Count)),
		util.TruncateChars(ev.Message, 200),
		util.FormatAge(EventTime(ev), now),
	}
	return nil
}

// EventTime is the most recent time the event was observed
func EventTime(ev corev1.Event) time.Time {
	switch {
	case !ev.LastTimestamp.IsZero():
		return ev.LastTimestamp.Time
	case ev.Series != nil && !ev.Series.LastObservedTime.IsZero():
		return ev.Series.LastObservedTime.Time
	case !ev.EventTime.IsZero():
		return ev.EventTime.Time
	case !ev.FirstTimestamp.IsZero():
		return ev.FirstTimestamp.Time
	default:
		return ev.CreationTimestamp.Time
	}
}

// genericCells reads the remaining kinds straight from unstructured content
func genericCells(kind Kind, obj *unstructured.Unstructured, row *model.Row, age string) []string {
	str := func(fields ...string) string {
		v, _, _ := unstructured.NestedString(obj.Object, fields...)
		return util.OrDefault(v, none)
	}
	count := func(fields ...string) string {
		m, _, _ := unstructured.NestedMap(obj.Object, fields...)
		return strconv.Itoa(len(m))
	}
	num := func(fields ...string) string {
		v, found, _ := unstructured.NestedInt64(obj.Object, fields...)
		if !found {
			return none
		}
		return strconv.FormatInt(v, 10)
	}
	intOrString := func(fields ...string) string {
		v, found, _ := unstructured.NestedFieldNoCopy(obj.Object, fields...)
		if !found || v == nil {
			return "N/A"
		}
		return fmt.Sprintf("%v", v)
	}

	switch kind.Name {
	case "namespaces":
		row.Status = str("status", "phase")
		return []string{row.Status, age}
	case "configmaps":
		n := len(asMap(obj.Object["data"])) + len(asMap(obj.Object["binaryData"]))
		return []string{strconv.Itoa(n), age}
	case "secrets":
		row.Status = str("type")
		return []string{row.Status, count("data"), age}
	case "persistentvolumeclaims":
		row.Status = str("status", "phase")
		return []string{row.Status, str("spec", "volumeName"), str("status", "capacity", "storage"), accessModes(obj, "status", "accessModes"), str("spec", "storageClassName"), age}
	case "persistentvolumes":
		row.Status = str("status", "phase")
		claim := none
		if ns, name := str("spec", "claimRef", "namespace"), str("spec", "claimRef", "name"); name != none {
			claim = ns + "/" + name
		}
		return []string{str("spec", "capacity", "storage"), accessModes(obj, "spec", "accessModes"), str("spec", "persistentVolumeReclaimPolicy"), row.Status, claim, str("spec", "storageClassName"), age}
	case "storageclasses":
		return []string{str("provisioner"), str("reclaimPolicy"), str("volumeBindingMode"), age}
	case "ingresses":
		var hosts []string
		rules, _, _ := unstructured.NestedSlice(obj.Object, "spec", "rules")
		for _, r := range rules {
			if h, ok := asMap(r)["host"].(string); ok && h != "" {
				hosts = append(hosts, h)
			}
		}
		hostStr := "*"
		if len(hosts) > 0 {
			hostStr = strings.Join(hosts, ",")
		}
		var addrs []string
		lbs, _, _ := unstructured.NestedSlice(obj.Object, "status", "loadBalancer", "ingress")
		for _, lb := range lbs {
			m := asMap(lb)
			if ip, ok := m["ip"].(string); ok && ip != "" {
				addrs = append(addrs, ip)
			} else if h, ok := m["hostname"].(string); ok && h != "" {
				addrs = append(addrs, h)
			}
		}
		addr := none
		if len(addrs) > 0 {
			addr = strings.Join(addrs, ",")
		}
		return []string{str("spec", "ingressClassName"), hostStr, addr, age}
	case "ingressclasses":
		return []string{str("spec", "controller"), age}
	case "networkpolicies":
		sel, _, _ := unstructured.NestedStringMap(obj.Object, "spec", "podSelector", "matchLabels")
		return []string{selectorString(sel), age}
	case "endpoints":
		var addrs []string
		subsets, _, _ := unstructured.NestedSlice(obj.Object, "subsets")
		for _, s := range subsets {
			sm := asMap(s)
			ports, _ := sm["ports"].([]any)
			addresses, _ := sm["addresses"].([]any)
			for _, a := range addresses {
				ip, _ := asMap(a)["ip"].(string)
				if len(ports) == 0 {
					addrs = append(addrs, ip)
				}
				for _, p := range ports {
					addrs = append(addrs, fmt.Sprintf("%s:%v", ip, asMap(p)["port"]))
				}
			}
		}
		ep := none
		if len(addrs) > 0 {
			ep = util.TruncateChars(strings.Join(addrs, ","), 60)
		}
		return []string{ep, age}
	case "horizontalpodautoscalers":
		ref := str("spec", "scaleTargetRef", "kind") + "/" + str("spec", "scaleTargetRef", "name")
		return []string{ref, num("spec", "minReplicas"), num("spec", "maxReplicas"), num("status", "currentReplicas"), age}
	case "poddisruptionbudgets":
		return []string{intOrString("spec", "minAvailable"), intOrString("spec", "maxUnavailable"), num("status", "disruptionsAllowed"), age}
	case "serviceaccounts":
		secrets, _, _ := unstructured.NestedSlice(obj.Object, "secrets")
		return []string{strconv.Itoa(len(secrets)), age}
	case "rolebindings", "clusterrolebindings":
		return []string{str("roleRef", "kind") + "/" + str("roleRef", "name"), age}
	case "customresourcedefinitions":
		return []string{str("spec", "group"), str("spec", "names", "kind"), str("spec", "scope"), age}
	}

	cells := make([]string, len(kind.Columns))
	for i := range cells {
		cells[i] = none
	}
	if len(cells) > 0 {
		cells[len(cells)-1] = age
	}
	return cells
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func accessModes(obj *unstructured.Unstructured, fields ...string) string {
	modes, _, _ := unstructured.NestedStringSlice(obj.Object, fields...)
	short := map[string]string{
		"ReadWriteOnce":    "RWO",
		"ReadOnlyMany":     "ROX",
		"ReadWriteMany":    "RWX",
		"ReadWriteOncePod": "RWOP",
	}
	var out []string
	for _, m := range modes {
		out = append(out, util.OrDefault(short[m], m))
	}
	if len(out) == 0 {
		return none
	}
	return strings.Join(out, ",")
}

func selectorString(sel map[string]string) string {
	if len(sel) == 0 {
		return none
	}
	keys := make([]string, 0, len(sel))
	for k := range sel {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+sel[k])
	}
	return strings.Join(parts, ",")
}

func replicas(r *int32) int32 {
	if r == nil {
		return 1
	}
	return *r
}
