package downloads_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkoval/go-fit-bridge/internal/domain"
	"github.com/nkoval/go-fit-bridge/internal/downloads"
)

// fakeTransfer drives the orchestrator without any network. The hooks let
// individual tests decide when to report progress, block, or fail.
type fakeTransfer struct {
	run func(ctx context.Context, activityID, destKey string, progress chan<- domain.Progress, cancelled *domain.CancelFlag) (string, error)
}

func (f *fakeTransfer) Transfer(ctx context.Context, activityID, destKey string, progress chan<- domain.Progress, cancelled *domain.CancelFlag) (string, error) {
	return f.run(ctx, activityID, destKey, progress, cancelled)
}

func waitForState(t *testing.T, o *downloads.Orchestrator, id string, want domain.DownloadState) domain.DownloadStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, ok := o.GetStatus(id)
		require.True(t, ok)
		if status.State == want {
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	status, _ := o.GetStatus(id)
	t.Fatalf("download %s never reached state %s (last: %s)", id, want, status.State)
	return domain.DownloadStatus{}
}

func TestOrchestrator_CompletedLifecycle(t *testing.T) {
	total := int64(100)
	ft := &fakeTransfer{
		run: func(_ context.Context, _, _ string, progress chan<- domain.Progress, _ *domain.CancelFlag) (string, error) {
			progress <- domain.Progress{BytesDownloaded: 50, TotalBytes: &total}
			progress <- domain.Progress{BytesDownloaded: 100, TotalBytes: &total}
			return "bucket/act-1.fit", nil
		},
	}
	o := downloads.NewOrchestrator(ft)

	id := o.Start("act-1", "act-1.fit")
	require.NotEmpty(t, id)

	status := waitForState(t, o, id, domain.StateCompleted)
	assert.Equal(t, "act-1", status.ActivityID)
	assert.Equal(t, int64(100), status.BytesDownloaded)
	require.NotNil(t, status.TotalBytes)
	assert.Equal(t, int64(100), *status.TotalBytes)
	require.NotNil(t, status.Path)
	assert.Equal(t, "bucket/act-1.fit", *status.Path)
	assert.Empty(t, status.Error)
}

func TestOrchestrator_StatusVisibleImmediately(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ft := &fakeTransfer{
		run: func(context.Context, string, string, chan<- domain.Progress, *domain.CancelFlag) (string, error) {
			close(started)
			<-release
			return "p", nil
		},
	}
	o := downloads.NewOrchestrator(ft)

	id := o.Start("act-2", "")
	status, ok := o.GetStatus(id)
	require.True(t, ok, "status must exist as soon as Start returns")
	assert.Contains(t, []domain.DownloadState{domain.StatePending, domain.StateInProgress}, status.State)

	<-started
	close(release)
	waitForState(t, o, id, domain.StateCompleted)
}

func TestOrchestrator_FailedTransfer(t *testing.T) {
	ft := &fakeTransfer{
		run: func(context.Context, string, string, chan<- domain.Progress, *domain.CancelFlag) (string, error) {
			return "", errors.New("upstream returned status 500")
		},
	}
	o := downloads.NewOrchestrator(ft)

	id := o.Start("act-3", "")
	status := waitForState(t, o, id, domain.StateFailed)
	assert.Contains(t, status.Error, "status 500")
	assert.Nil(t, status.Path)
}

func TestOrchestrator_GetStatusUnknown(t *testing.T) {
	o := downloads.NewOrchestrator(&fakeTransfer{})
	_, ok := o.GetStatus("nope")
	assert.False(t, ok)
}

func TestOrchestrator_CancelUnknown(t *testing.T) {
	o := downloads.NewOrchestrator(&fakeTransfer{})
	assert.False(t, o.Cancel("nope"))
}

func TestOrchestrator_CancelCooperative(t *testing.T) {
	polled := make(chan struct{})
	ft := &fakeTransfer{
		run: func(_ context.Context, _, _ string, _ chan<- domain.Progress, cancelled *domain.CancelFlag) (string, error) {
			close(polled)
			for !cancelled.IsSet() {
				time.Sleep(time.Millisecond)
			}
			return "", errors.New("download cancelled")
		},
	}
	o := downloads.NewOrchestrator(ft)

	id := o.Start("act-4", "act-4.fit")
	<-polled
	require.True(t, o.Cancel(id))

	// The transfer observes the flag, returns a cancellation error, and
	// the terminal write lands on Failed with the cancellation message.
	status := waitForState(t, o, id, domain.StateFailed)
	assert.Contains(t, status.Error, "cancelled")
}

// A transfer that never polls the flag finishes normally and overwrites
// the Cancelled status with Completed. That ordering is part of the
// contract, not a bug to paper over.
func TestOrchestrator_LateCompletionOverwritesCancelled(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ft := &fakeTransfer{
		run: func(context.Context, string, string, chan<- domain.Progress, *domain.CancelFlag) (string, error) {
			close(started)
			<-release
			return "done.fit", nil
		},
	}
	o := downloads.NewOrchestrator(ft)

	id := o.Start("act-5", "done.fit")
	<-started // InProgress already recorded; the transfer is now parked
	require.True(t, o.Cancel(id))

	status, ok := o.GetStatus(id)
	require.True(t, ok)
	require.Equal(t, domain.StateCancelled, status.State)

	close(release)
	status = waitForState(t, o, id, domain.StateCompleted)
	require.NotNil(t, status.Path)
	assert.Equal(t, "done.fit", *status.Path)
}

func TestOrchestrator_List(t *testing.T) {
	ft := &fakeTransfer{
		run: func(context.Context, string, string, chan<- domain.Progress, *domain.CancelFlag) (string, error) {
			return "p", nil
		},
	}
	o := downloads.NewOrchestrator(ft)

	id1 := o.Start("act-6", "")
	id2 := o.Start("act-7", "")
	waitForState(t, o, id1, domain.StateCompleted)
	waitForState(t, o, id2, domain.StateCompleted)

	list := o.List()
	require.Len(t, list, 2)
	seen := map[string]bool{}
	for _, s := range list {
		seen[s.ID] = true
	}
	assert.True(t, seen[id1])
	assert.True(t, seen[id2])
}

type recordingArchive struct {
	ch chan domain.DownloadStatus
}

func (a *recordingArchive) RecordDownload(_ context.Context, status domain.DownloadStatus) error {
	a.ch <- status
	return nil
}

func TestOrchestrator_ArchivesTerminalOutcome(t *testing.T) {
	ft := &fakeTransfer{
		run: func(context.Context, string, string, chan<- domain.Progress, *domain.CancelFlag) (string, error) {
			return "archived.fit", nil
		},
	}
	archive := &recordingArchive{ch: make(chan domain.DownloadStatus, 1)}
	o := downloads.NewOrchestrator(ft, downloads.WithArchive(archive))

	id := o.Start("act-8", "archived.fit")

	select {
	case status := <-archive.ch:
		assert.Equal(t, id, status.ID)
		assert.Equal(t, domain.StateCompleted, status.State)
	case <-time.After(2 * time.Second):
		t.Fatal("archive was never called")
	}
}
