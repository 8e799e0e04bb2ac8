package constants

import (
	"time"
)

// *********************************************************************************************************************
// THESE ARE KEY TO A RESPONSIVE TABLE AND LOG VIEW ON LARGE CLUSTERS (EXACT VALUES DETERMINED BY FEEL)

// SingleContainerLogCollectionDuration controls the amount of time a container's log scanner will collect logs for
// before returning them to the main Model via a tea.Msg
var SingleContainerLogCollectionDuration = 150 * time.Millisecond

// BatchUpdateLogsInterval controls the cadence at which the main Model actually updates the logs page with all
// the newly acquired logs. In between updates, it accumulates logs from received messages
var BatchUpdateLogsInterval = 200 * time.Millisecond

// RenderBatchSize is the number of rows added to the table per render tick while a large page is shown
const RenderBatchSize = 50

// RenderBatchInterval is the delay between render ticks, about one frame
var RenderBatchInterval = 16 * time.Millisecond

// LoadMoreThreshold is how close to the last row, in rows, the cursor must come before the next page is requested
const LoadMoreThreshold = 10

// *********************************************************************************************************************

// MaxLogLines caps the lines kept by the logs page; the oldest are dropped first
const MaxLogLines = 10000

// SkeletonRows is the number of placeholder rows shown while the first page loads
const SkeletonRows = 8

// ToastDuration is how long a toast stays visible
var ToastDuration = 5 * time.Second

// ContextSwitchTimeout bounds the connectivity check after switching kubeconfig context
var ContextSwitchTimeout = 10 * time.Second

var NamespaceCheckTimeout = 5 * time.Second

// OverviewRefreshInterval controls how often the overview page collects fresh numbers while shown
var OverviewRefreshInterval = 30 * time.Second
