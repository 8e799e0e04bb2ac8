package page

import (
	"errors"
	"fmt"
	"github.com/google/go-cmp/cmp"
	"github.com/orchestrix-io/orchestrix/internal/constants"
	"github.com/orchestrix-io/orchestrix/internal/k8s/k8s_log"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"strings"
	"testing"
	"time"
)

func newTestLogsPage() LogsPage {
	pod := model.ObjectRef{Kind: "pods", Namespace: "default", Name: "web-0"}
	return NewLogsPage(keymap.DefaultKeyMap, pod, 120, 30)
}

func logLine(container string, offset time.Duration, content string) k8s_log.Log {
	return k8s_log.Log{
		Timestamp: testNow.Add(offset),
		Content:   content,
		Container: model.ContainerRef{Namespace: "default", Pod: "web-0", Container: container},
	}
}

func updateLogs(t *testing.T, p LogsPage, k string) LogsPage {
	t.Helper()
	gp, _ := p.Update(keyMsg(k))
	return gp.(LogsPage)
}

func TestLogsPageFlushOrdersByTimestamp(t *testing.T) {
	p := newTestLogsPage().WithStreamStarted("app").WithStreamStarted("sidecar")
	p = p.WithPendingLogs([]k8s_log.Log{logLine("app", 2*time.Second, "second"), logLine("app", 3*time.Second, "third")})
	p = p.WithPendingLogs([]k8s_log.Log{logLine("sidecar", time.Second, "first")})
	if !strings.Contains(p.View(), "No logs yet") {
		t.Errorf("pending logs shown before a flush")
	}

	p = p.Flush()
	want := []string{"sidecar first", "app second", "app third"}
	if diff := cmp.Diff(want, p.ContentForFile()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestLogsPagePause(t *testing.T) {
	p := newTestLogsPage().WithStreamStarted("app")
	p = updateLogs(t, p, "p")
	if !p.Paused() || !strings.Contains(p.View(), "[PAUSED]") {
		t.Fatal("expected the page to be paused")
	}
	p = p.WithPendingLogs([]k8s_log.Log{logLine("app", 0, "held back")}).Flush()
	if len(p.ContentForFile()) != 0 {
		t.Errorf("logs flushed while paused")
	}
	p = updateLogs(t, p, "p")
	if diff := cmp.Diff([]string{"held back"}, p.ContentForFile()); diff != "" {
		t.Errorf("resuming should flush held logs (-want +got):\n%s", diff)
	}
}

func TestLogsPageCapsLines(t *testing.T) {
	p := newTestLogsPage().WithStreamStarted("app")
	var logs []k8s_log.Log
	for i := 0; i < constants.MaxLogLines+5; i++ {
		logs = append(logs, logLine("app", time.Duration(i)*time.Millisecond, fmt.Sprintf("line %d", i)))
	}
	p = p.WithPendingLogs(logs).Flush()
	lines := p.ContentForFile()
	if len(lines) != constants.MaxLogLines {
		t.Fatalf("expected %d lines, got %d", constants.MaxLogLines, len(lines))
	}
	if lines[0] != "line 5" {
		t.Errorf("expected the oldest lines dropped, first is %q", lines[0])
	}
	if !strings.Contains(p.View(), "5 dropped") {
		t.Errorf("expected the dropped count in the header")
	}
}

func TestLogsPageTimestampsAndFilter(t *testing.T) {
	p := newTestLogsPage().WithStreamStarted("app")
	p = p.WithPendingLogs([]k8s_log.Log{
		logLine("app", 0, "GET /healthz 200"),
		logLine("app", time.Second, "POST /login 500"),
	}).Flush()

	p = updateLogs(t, p, "t")
	lines := p.ContentForFile()
	ts := testNow.Local().Format(logTimestampFormat)
	if len(lines) != 2 || !strings.HasPrefix(lines[0], ts+" ") {
		t.Fatalf("expected timestamps, got %q", lines)
	}
	p = updateLogs(t, p, "t")

	p = updateLogs(t, p, "/")
	if !p.HighjackingInput() {
		t.Fatal("expected the filter to take input")
	}
	for _, r := range "login" {
		p = updateLogs(t, p, string(r))
	}
	if diff := cmp.Diff([]string{"POST /login 500"}, p.ContentForFile()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	p = updateLogs(t, p, "esc")
	if len(p.ContentForFile()) != 2 {
		t.Errorf("expected esc to clear the filter")
	}
}

func TestLogsPageStreamStatus(t *testing.T) {
	p := newTestLogsPage().WithStreamStarted("app").WithStreamStarted("init")
	p = p.WithStreamEnded("init", nil).WithStreamEnded("app", errors.New("EOF"))
	header := p.View()
	if !strings.Contains(header, "init ended") || !strings.Contains(header, "app error: EOF") {
		t.Errorf("unexpected header\n%s", header)
	}
}
