// Package postgres persists an audit trail of accepted webhook events
// and terminal download outcomes. Writes are best-effort: the in-process
// stores are the primary flow and a failed archive write is only logged.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkoval/go-fit-bridge/internal/domain"
)

// Archive writes audit rows for events and downloads.
type Archive struct {
	pool *pgxpool.Pool
}

// NewArchive wraps a pgxpool.
func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// RecordEvent inserts one accepted webhook event. Conflicting ids are
// ignored so re-archiving after a crash stays idempotent.
func (a *Archive) RecordEvent(ctx context.Context, evt domain.WebhookEvent) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO webhook_events (id, payload, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, []byte(evt.Payload), evt.ReceivedAt)
	if err != nil {
		return fmt.Errorf("archive event %s: %w", evt.ID, err)
	}
	return nil
}

// RecordDownload inserts one terminal download outcome.
func (a *Archive) RecordDownload(ctx context.Context, status domain.DownloadStatus) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO download_outcomes
			(id, activity_id, state, error, bytes_downloaded, total_bytes, path, finished_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			error = EXCLUDED.error,
			bytes_downloaded = EXCLUDED.bytes_downloaded,
			total_bytes = EXCLUDED.total_bytes,
			path = EXCLUDED.path,
			finished_at = EXCLUDED.finished_at
	`,
		status.ID, status.ActivityID, string(status.State), status.Error,
		status.BytesDownloaded, status.TotalBytes, status.Path, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("archive download %s: %w", status.ID, err)
	}
	return nil
}
