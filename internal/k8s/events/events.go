// Package events reads Kubernetes events for a single object or a whole namespace and summarizes them.
package events

import (
	"context"
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/util"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/kubernetes"
	"sort"
	"strings"
	"time"
)

const (
	batchSize        = 100
	maxObjectEvents  = 50
	maxIssues        = 50
	maxCritical      = 25
	maxTopReasons    = 5
	maxMessageLength = 200
	issueWindow      = 24 * time.Hour
	recentWindow     = time.Hour
)

var criticalReasons = []string{
	"Failed", "FailedMount", "FailedScheduling", "FailedCreate", "FailedDelete", "FailedUpdate",
	"Unhealthy", "BackOff", "FailedSync", "NetworkNotReady", "NodeNotReady",
}

type Event struct {
	Type      string
	Reason    string
	Message   string
	Object    string
	Namespace string
	Count     int32
	Time      time.Time
}

func (e Event) IsWarning() bool {
	return e.Type != corev1.EventTypeNormal
}

// Age of the event relative to now
func (e Event) Age(now time.Time) string {
	return util.FormatAge(e.Time, now)
}

func fromCore(ev corev1.Event) Event {
	count := ev.Count
	if count == 0 {
		count = 1
	}
	object := "Unknown"
	if ev.InvolvedObject.Name != "" {
		object = ev.InvolvedObject.Kind + "/" + ev.InvolvedObject.Name
	}
	return Event{
		Type:      util.OrDefault(ev.Type, corev1.EventTypeNormal),
		Reason:    util.OrDefault(ev.Reason, "Unknown"),
		Message:   util.TruncateChars(util.OrDefault(ev.Message, "No message"), maxMessageLength),
		Object:    object,
		Namespace: ev.Namespace,
		Count:     count,
		Time:      resource.EventTime(ev),
	}
}

func sortRecentFirst(evs []Event) {
	sort.SliceStable(evs, func(i, j int) bool {
		return evs[i].Time.After(evs[j].Time)
	})
}

// ForObject returns the events of one object, most recent first. objectKind is the API kind, e.g. "Pod".
func ForObject(ctx context.Context, cs kubernetes.Interface, objectKind, namespace, name string) ([]Event, error) {
	selector := fields.AndSelectors(
		fields.OneTermEqualSelector("involvedObject.kind", objectKind),
		fields.OneTermEqualSelector("involvedObject.name", name),
	)
	list, err := cs.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: selector.String(),
		Limit:         maxObjectEvents,
	})
	if err != nil {
		return nil, kerrors.Classify(err, fmt.Sprintf("failed to list events for %s/%s", objectKind, name))
	}

	var out []Event
	for _, ev := range list.Items {
		if ev.InvolvedObject.Name != name || !strings.EqualFold(ev.InvolvedObject.Kind, objectKind) {
			continue
		}
		out = append(out, fromCore(ev))
	}
	sortRecentFirst(out)
	if len(out) > maxObjectEvents {
		out = out[:maxObjectEvents]
	}
	return out, nil
}

// listNonNormal asks the server for non-Normal events, retrying without the field selector if the server rejects it
func listNonNormal(ctx context.Context, cs kubernetes.Interface, namespace string, limit int64) ([]corev1.Event, error) {
	list, err := cs.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermNotEqualSelector("type", corev1.EventTypeNormal).String(),
		Limit:         limit,
	})
	if err != nil {
		dev.Debug("event field selector rejected, listing all", "err", err.Error())
		list, err = cs.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{Limit: limit})
		if err != nil {
			return nil, kerrors.Classify(err, "failed to list events")
		}
	}
	return list.Items, nil
}

// Issues returns the non-Normal events of the last day, most recent first
func Issues(ctx context.Context, cs kubernetes.Interface, namespace string, now time.Time) ([]Event, error) {
	items, err := listNonNormal(ctx, cs, namespace, batchSize)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, ev := range items {
		if ev.Type == corev1.EventTypeNormal {
			continue
		}
		e := fromCore(ev)
		if !e.Time.IsZero() && now.Sub(e.Time) > issueWindow {
			continue
		}
		out = append(out, e)
	}
	sortRecentFirst(out)
	if len(out) > maxIssues {
		out = out[:maxIssues]
	}
	return out, nil
}

// Critical keeps the events whose reason points at a failure that needs attention
func Critical(evs []Event) []Event {
	var out []Event
	for _, e := range evs {
		for _, r := range criticalReasons {
			if strings.Contains(e.Reason, r) {
				out = append(out, e)
				break
			}
		}
	}
	sortRecentFirst(out)
	if len(out) > maxCritical {
		out = out[:maxCritical]
	}
	return out
}

type ReasonCount struct {
	Reason string
	Count  int
}

type Summary struct {
	Total   int
	Warning int
	Normal  int
	// LastHour counts events seen within the last hour
	LastHour   int
	TopReasons []ReasonCount
	// WarningNamespaces is sorted
	WarningNamespaces []string
}

func Summarize(evs []Event, now time.Time) Summary {
	var s Summary
	reasons := make(map[string]int)
	namespaces := make(map[string]bool)
	for _, e := range evs {
		s.Total++
		if e.IsWarning() {
			s.Warning++
			if e.Namespace != "" {
				namespaces[e.Namespace] = true
			}
		} else {
			s.Normal++
		}
		if !e.Time.IsZero() && now.Sub(e.Time) <= recentWindow {
			s.LastHour++
		}
		reasons[e.Reason]++
	}

	for r, c := range reasons {
		s.TopReasons = append(s.TopReasons, ReasonCount{Reason: r, Count: c})
	}
	sort.Slice(s.TopReasons, func(i, j int) bool {
		if s.TopReasons[i].Count != s.TopReasons[j].Count {
			return s.TopReasons[i].Count > s.TopReasons[j].Count
		}
		return s.TopReasons[i].Reason < s.TopReasons[j].Reason
	})
	if len(s.TopReasons) > maxTopReasons {
		s.TopReasons = s.TopReasons[:maxTopReasons]
	}

	for ns := range namespaces {
		s.WarningNamespaces = append(s.WarningNamespaces, ns)
	}
	sort.Strings(s.WarningNamespaces)
	return s
}

// List returns up to limit events of namespace, most recent first, for summaries
func List(ctx context.Context, cs kubernetes.Interface, namespace string, limit int64) ([]Event, error) {
	list, err := cs.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{Limit: limit})
	if err != nil {
		return nil, kerrors.Classify(err, "failed to list events")
	}
	out := make([]Event, 0, len(list.Items))
	for _, ev := range list.Items {
		out = append(out, fromCore(ev))
	}
	sortRecentFirst(out)
	return out, nil
}
