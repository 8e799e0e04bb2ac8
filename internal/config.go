package internal

import (
	"time"
)

type Config struct {
	KubeConfigPath   string
	Context          string
	Namespace        string
	AllNamespaces    bool
	// Resource is the kind shown on startup, by name or alias
	Resource         string
	PageSize         int64
	CacheTTL         time.Duration
	LogTail          int64
	ReadOnly         bool
	GKEAuthPluginDir string
	Version          string
}
