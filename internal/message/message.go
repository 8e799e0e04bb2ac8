package message

type ErrMsg struct{ Err error }

func (e ErrMsg) Error() string { return e.Err.Error() }

type CleanupCompleteMsg struct{}

type BatchUpdateLogsMsg struct{}

// RenderBatchMsg asks a resources page to render its next batch of rows
type RenderBatchMsg struct {
	Generation int
}

// SearchDebounceMsg fires after the search input has been idle; only the latest Seq is applied
type SearchDebounceMsg struct {
	Seq int
}

// ScrollDebounceMsg fires after the cursor has settled; only the latest Seq may trigger a load
type ScrollDebounceMsg struct {
	Seq int
}

type ToastMsg struct {
	Message string
	IsError bool
}

// RefreshOverviewMsg re-collects the cluster overview while it is shown; ticks of an older Seq stop the loop
type RefreshOverviewMsg struct {
	Seq int
}
