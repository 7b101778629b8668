package domain

// DownloadState represents the states a download can be in.
type DownloadState string

const (
	StatePending    DownloadState = "pending"
	StateInProgress DownloadState = "in_progress"
	StateCompleted  DownloadState = "completed"
	StateFailed     DownloadState = "failed"
	StateCancelled  DownloadState = "cancelled"
)

// IsTerminal returns true if no further state transitions are expected.
// A transfer that never observes its cancel flag may still overwrite a
// Cancelled status with its own outcome; see downloads.Orchestrator.
func (s DownloadState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// DownloadStatus is the externally visible snapshot of one download task.
// Statuses are created by Orchestrator.Start and retained for the life of
// the process.
type DownloadStatus struct {
	ID              string        `json:"id"`
	ActivityID      string        `json:"activity_id"`
	State           DownloadState `json:"state"`
	Error           string        `json:"error,omitempty"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	TotalBytes      *int64        `json:"total_bytes,omitempty"`
	Path            *string       `json:"path,omitempty"`
}

// Progress is one update pushed by a transfer while it runs. Sends are
// non-blocking and lossy: a slow consumer drops updates, it never stalls
// the transfer.
type Progress struct {
	BytesDownloaded int64
	TotalBytes      *int64
}
