package k8s_log

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"strings"
	"time"
	"unicode"
)

type Log struct {
	Timestamp time.Time
	Content   string
	Container model.ContainerRef
}

type LogScanner struct {
	Container      model.ContainerRef
	LogChan        chan Log
	ErrChan        chan error
	// ctx is done once the scanner is cancelled, so the reader never blocks on a consumer that left
	ctx            context.Context
	cancel         context.CancelFunc
	uuid           string
	logLineScanner *bufio.Scanner
	now            func() time.Time
}

func NewLogScanner(ct model.ContainerRef, scanner *bufio.Scanner, cancelK8sStream context.CancelFunc) LogScanner {
	ctx, cancel := context.WithCancel(context.Background())
	return LogScanner{
		Container: ct,
		LogChan:   make(chan Log, 1),
		ErrChan:   make(chan error, 1),
		ctx:       ctx,
		cancel: func() {
			cancel()
			if cancelK8sStream != nil {
				cancelK8sStream()
			}
		},
		uuid:           uuid.New().String(),
		logLineScanner: scanner,
		now:            time.Now,
	}
}

// ParseLine splits a timestamped log line. Lines without a leading RFC3339 timestamp are kept whole and stamped with
// received.
func ParseLine(bs []byte, received time.Time) (time.Time, string) {
	content := string(bs)
	ts := received
	if firstSpace := bytes.IndexByte(bs, ' '); firstSpace > 0 {
		if parsed, err := time.Parse(time.RFC3339Nano, string(bs[:firstSpace])); err == nil {
			ts = parsed
			content = string(bs[firstSpace+1:])
		}
	}
	content = strings.TrimRightFunc(content, unicode.IsSpace)
	content = strings.ReplaceAll(content, "\t", "    ")
	return ts, content
}

// StartReadingLogs starts a goroutine that reads logs from the scanner and sends them to the LogChan until the stream
// ends or the scanner is cancelled
func (ls LogScanner) StartReadingLogs() {
	go func() {
	scan:
		for ls.logLineScanner != nil && ls.logLineScanner.Scan() {
			ts, content := ParseLine(ls.logLineScanner.Bytes(), ls.now())
			select {
			case ls.LogChan <- Log{Timestamp: ts, Content: content, Container: ls.Container}:
			case <-ls.ctx.Done():
				break scan
			}
		}

		var err error
		if ls.logLineScanner != nil && ls.ctx.Err() == nil {
			err = ls.logLineScanner.Err()
		}
		// a canceled stream was stopped by the user
		if err != nil && !errors.Is(err, context.Canceled) && err.Error() != "context canceled" {
			dev.Debug("log stream ended with error", "container", ls.Container.StreamKey(), "err", err.Error())
			ls.ErrChan <- err
		}

		ls.Cancel()
		close(ls.LogChan)
		close(ls.ErrChan)
	}()
}

func (ls LogScanner) Cancel() {
	ls.cancel()
}

func (ls LogScanner) Equals(other LogScanner) bool {
	return ls.uuid == other.uuid
}
