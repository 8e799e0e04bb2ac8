package fileio

import (
	"fmt"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type SaveCompleteMsg struct {
	FullPath, SuccessMessage, ErrMessage string
}

// GetSaveCommand writes content, one line per entry, to a file named after what is being saved, e.g.
// "pods_prod" becomes ./pods_prod_20240501T120000Z.txt
func GetSaveCommand(name string, content []string) tea.Cmd {
	return func() tea.Msg {
		path, err := SaveToFile(".", name, content, time.Now())
		if err != nil {
			dev.Debug("save failed", "name", name, "err", err.Error())
			return SaveCompleteMsg{ErrMessage: fmt.Sprintf("Error saving file: %v", err)}
		}
		return SaveCompleteMsg{
			FullPath:       path,
			SuccessMessage: fmt.Sprintf("Saved %d lines to %s", len(content), path),
		}
	}
}

// SaveToFile creates dir if needed and writes content to a new file there. An existing file is never overwritten.
func SaveToFile(dir, name string, content []string, now time.Time) (string, error) {
	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return "", err
	}

	ts := now.UTC().Format("20060102T150405Z")
	base := strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_")
	if base == "" {
		base = "orchestrix"
	}
	path := filepath.Join(absDir, base+"_"+ts+".txt")
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(absDir, fmt.Sprintf("%s_%s_%d.txt", base, ts, i))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	for _, line := range content {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return "", err
		}
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
