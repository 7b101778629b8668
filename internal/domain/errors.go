package domain

import "fmt"

// DownloadNotFoundError is returned when a download ID does not exist.
type DownloadNotFoundError struct {
	DownloadID string
}

func (e *DownloadNotFoundError) Error() string {
	return fmt.Sprintf("download not found: %s", e.DownloadID)
}

// ValidationError is returned when caller-supplied parameters are
// insufficient to issue a request. It is produced locally, before any
// remote call, and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameters: %s", e.Reason)
}
