package dev

import (
	"fmt"
	"github.com/charmbracelet/bubbles/cursor"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestrix-io/orchestrix/internal/message"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	debugSet  = os.Getenv("ORCHESTRIX_DEBUG")
	debugPath = os.Getenv("ORCHESTRIX_DEBUG_PATH")

	loggerOnce sync.Once
	logger     *slog.Logger
)

// Enable turns on debug logging regardless of ORCHESTRIX_DEBUG, e.g. from the --debug flag
func Enable() {
	debugSet = "1"
}

// Logger returns a JSON structured logger that writes to the debug file, or discards when debugging is off.
// The terminal belongs to the UI, so nothing is ever written to stdout or stderr.
func Logger() *slog.Logger {
	loggerOnce.Do(func() {
		var w io.Writer = io.Discard
		if debugSet != "" {
			if debugPath == "" {
				debugPath = "orchestrix.log"
			}
			file, err := os.OpenFile(debugPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err == nil {
				w = file
			}
		}
		logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})
	return logger
}

func Debug(msg string, args ...any) {
	if debugSet == "" {
		return
	}
	Logger().Debug(msg, args...)
}

func DebugUpdateMsg(component string, msg tea.Msg) {
	if debugSet == "" {
		return
	}
	switch msg.(type) {
	case message.BatchUpdateLogsMsg, message.RenderBatchMsg, cursor.BlinkMsg:
	// skip logging messages that are too frequent
	default:
		Debug(fmt.Sprintf("Update %s: %T", component, msg))
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			Debug("key", "component", component, "key", keyMsg.String())
		}
	}
}
