package command

import (
	"context"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/client"
	"github.com/orchestrix-io/orchestrix/internal/k8s/k8s_log"
	"github.com/orchestrix-io/orchestrix/internal/metrics"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"time"
)

type StartedLogScannersMsg struct {
	Pod         model.ObjectRef
	LogScanners []k8s_log.LogScanner
	Err         error
}

// StartLogScannersCmd opens a log stream for every container of a pod. A stream that fails to open fails the
// whole command and closes the streams opened so far.
func StartLogScannersCmd(ctx context.Context, c *client.Client, pod model.ObjectRef, opts client.LogOptions) tea.Cmd {
	return func() tea.Msg {
		dev.Debug("starting log scanners", "pod", pod.String())
		containers, err := c.PodContainers(ctx, pod.Namespace, pod.Name)
		if err != nil {
			return StartedLogScannersMsg{Pod: pod, Err: err}
		}

		var scanners []k8s_log.LogScanner
		for _, name := range containers {
			ref := model.ContainerRef{Namespace: pod.Namespace, Pod: pod.Name, Container: name}
			scanner, cancel, err := c.GetLogStream(ctx, ref, opts)
			if err != nil {
				for _, ls := range scanners {
					ls.Cancel()
				}
				return StartedLogScannersMsg{Pod: pod, Err: err}
			}
			ls := k8s_log.NewLogScanner(ref, scanner, cancel)
			ls.StartReadingLogs()
			scanners = append(scanners, ls)
		}
		return StartedLogScannersMsg{Pod: pod, LogScanners: scanners}
	}
}

type GetNewLogsMsg struct {
	LogScanner   k8s_log.LogScanner
	NewLogs      []k8s_log.Log
	DoneScanning bool
	Err          error
}

func GetNextLogsCmd(ls k8s_log.LogScanner, duration time.Duration) tea.Cmd {
	return func() tea.Msg {
		for {
			logs := collectLogsForDuration(ls, duration)
			metrics.AddLogLines(len(logs.collectedLogs))
			if logs.err != nil {
				return GetNewLogsMsg{LogScanner: ls, NewLogs: logs.collectedLogs, DoneScanning: true, Err: logs.err}
			}
			if len(logs.collectedLogs) > 0 || logs.doneScanning {
				return GetNewLogsMsg{LogScanner: ls, NewLogs: logs.collectedLogs, DoneScanning: logs.doneScanning}
			}
		}
	}
}

type collectedLogsResult struct {
	collectedLogs []k8s_log.Log
	doneScanning  bool
	err           error
}

func collectLogsForDuration(ls k8s_log.LogScanner, duration time.Duration) collectedLogsResult {
	var collectedLogs []k8s_log.Log
	timeout := time.After(duration)

	for {
		select {
		case log, ok := <-ls.LogChan:
			if !ok {
				// channel is closed, but an error may be waiting
				if err, ok := <-ls.ErrChan; ok && err != nil {
					return collectedLogsResult{collectedLogs: collectedLogs, doneScanning: true, err: err}
				}
				return collectedLogsResult{collectedLogs: collectedLogs, doneScanning: true}
			}
			collectedLogs = append(collectedLogs, log)
		case <-timeout:
			return collectedLogsResult{collectedLogs: collectedLogs}
		}
	}
}

type StoppedLogScannersMsg struct {
	Count int
}

// StopLogScannersCmd closes the streams of the logs page, e.g. when it is left
func StopLogScannersCmd(scanners []k8s_log.LogScanner) tea.Cmd {
	return func() tea.Msg {
		for _, ls := range scanners {
			ls.Cancel()
		}
		return StoppedLogScannersMsg{Count: len(scanners)}
	}
}
