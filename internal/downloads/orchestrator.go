// Package downloads owns the lifecycle of background activity-file
// downloads: creation, execution through a transfer port, progress
// aggregation, cooperative cancellation and status queries.
package downloads

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nkoval/go-fit-bridge/internal/domain"
	"github.com/nkoval/go-fit-bridge/pkg/telemetry"
)

// TransferPort performs the actual byte transfer for one activity file.
// Implementations must poll the cancel flag and abort promptly when it is
// set, and must push progress updates without blocking.
type TransferPort interface {
	Transfer(ctx context.Context, activityID, destKey string, progress chan<- domain.Progress, cancelled *domain.CancelFlag) (string, error)
}

// Archive records terminal download outcomes for auditing. Recording is
// best-effort; failures are logged and never affect the download itself.
type Archive interface {
	RecordDownload(ctx context.Context, status domain.DownloadStatus) error
}

const progressBuffer = 8

// Orchestrator tracks download tasks in an in-process status store.
// Statuses are never removed; they live for the life of the process.
type Orchestrator struct {
	transfer TransferPort
	archive  Archive
	logger   *slog.Logger

	mu       sync.Mutex
	statuses map[string]*domain.DownloadStatus

	cancelMu sync.Mutex
	cancels  map[string]*domain.CancelFlag
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }
func WithArchive(a Archive) Option     { return func(o *Orchestrator) { o.archive = a } }

// NewOrchestrator creates an Orchestrator that runs transfers through port.
func NewOrchestrator(port TransferPort, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transfer: port,
		logger:   slog.Default(),
		statuses: make(map[string]*domain.DownloadStatus),
		cancels:  make(map[string]*domain.CancelFlag),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start registers a new download in Pending state and launches its
// transfer in the background, returning the new download id immediately.
// destKey may be empty, in which case the transfer returns the payload
// in memory and the status path holds the encoded result.
func (o *Orchestrator) Start(activityID, destKey string) string {
	id := uuid.New().String()

	o.mu.Lock()
	o.statuses[id] = &domain.DownloadStatus{
		ID:         id,
		ActivityID: activityID,
		State:      domain.StatePending,
	}
	o.mu.Unlock()

	flag := &domain.CancelFlag{}
	o.cancelMu.Lock()
	o.cancels[id] = flag
	o.cancelMu.Unlock()

	telemetry.DownloadsStarted.Inc()
	o.logger.Info("download started",
		slog.String("download_id", id),
		slog.String("activity_id", activityID),
	)

	// Fire-and-forget: the orchestrator never joins this goroutine, so
	// process shutdown abandons in-flight downloads. Known gap; callers
	// needing graceful shutdown must supervise externally.
	go o.run(id, activityID, destKey, flag)

	return id
}

func (o *Orchestrator) run(id, activityID, destKey string, flag *domain.CancelFlag) {
	ctx, span := otel.Tracer("downloads").Start(context.Background(), "downloads.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("download.id", id),
		attribute.String("activity.id", activityID),
	)

	o.setState(id, func(s *domain.DownloadStatus) {
		s.State = domain.StateInProgress
	})

	telemetry.DownloadsInFlight.Inc()
	defer telemetry.DownloadsInFlight.Dec()

	progress := make(chan domain.Progress, progressBuffer)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		var last int64
		for p := range progress {
			if delta := p.BytesDownloaded - last; delta > 0 {
				telemetry.DownloadBytes.Add(float64(delta))
				last = p.BytesDownloaded
			}
			o.setState(id, func(s *domain.DownloadStatus) {
				s.BytesDownloaded = p.BytesDownloaded
				s.TotalBytes = p.TotalBytes
			})
		}
	}()

	path, err := o.transfer.Transfer(ctx, activityID, destKey, progress, flag)
	close(progress)
	<-drained

	// The transfer outcome is written unconditionally: if the transfer
	// never observed the cancel flag, it can overwrite a Cancelled status
	// with Completed or Failed. Accepted race, kept deliberately.
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer failed")
		o.setState(id, func(s *domain.DownloadStatus) {
			s.State = domain.StateFailed
			s.Error = err.Error()
		})
		telemetry.DownloadsFinished.WithLabelValues(string(domain.StateFailed)).Inc()
		o.logger.Error("download failed",
			slog.String("download_id", id),
			slog.String("error", err.Error()),
		)
	} else {
		o.setState(id, func(s *domain.DownloadStatus) {
			s.State = domain.StateCompleted
			s.Path = &path
		})
		telemetry.DownloadsFinished.WithLabelValues(string(domain.StateCompleted)).Inc()
		o.logger.Info("download completed",
			slog.String("download_id", id),
			slog.String("path", path),
		)
	}

	if o.archive != nil {
		if status, ok := o.GetStatus(id); ok {
			if err := o.archive.RecordDownload(ctx, status); err != nil {
				o.logger.Error("failed to archive download outcome",
					slog.String("download_id", id),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// GetStatus returns a snapshot of the download's status.
func (o *Orchestrator) GetStatus(id string) (domain.DownloadStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.statuses[id]
	if !ok {
		return domain.DownloadStatus{}, false
	}
	return *s, true
}

// List returns snapshots of every download the process has seen.
func (o *Orchestrator) List() []domain.DownloadStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.DownloadStatus, 0, len(o.statuses))
	for _, s := range o.statuses {
		out = append(out, *s)
	}
	return out
}

// Cancel requests cancellation of a download. For a known id it sets the
// cancel flag, immediately marks the status Cancelled and returns true;
// for an unknown id it returns false. The request is advisory: the
// transfer stops only when its loop next polls the flag, and a transfer
// that finishes without polling overwrites the Cancelled state with its
// own outcome.
func (o *Orchestrator) Cancel(id string) bool {
	o.cancelMu.Lock()
	flag, ok := o.cancels[id]
	o.cancelMu.Unlock()
	if !ok {
		return false
	}

	flag.Set()
	o.setState(id, func(s *domain.DownloadStatus) {
		s.State = domain.StateCancelled
	})
	telemetry.DownloadsFinished.WithLabelValues(string(domain.StateCancelled)).Inc()
	o.logger.Info("download cancelled", slog.String("download_id", id))
	return true
}

// setState applies fn to the stored status under the store lock. The lock
// is held only for the mutation, never across I/O.
func (o *Orchestrator) setState(id string, fn func(*domain.DownloadStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.statuses[id]; ok {
		fn(s)
	}
}
