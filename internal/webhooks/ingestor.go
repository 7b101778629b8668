// Package webhooks verifies inbound signed events from the upstream
// service and guarantees at-most-once processing per event identity.
package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nkoval/go-fit-bridge/internal/domain"
	"github.com/nkoval/go-fit-bridge/pkg/telemetry"
)

var (
	// ErrSecretNotConfigured is returned by Process before SetSecret has
	// been called.
	ErrSecretNotConfigured = errors.New("webhook secret not configured")
	// ErrSignatureMismatch is returned when the supplied signature does
	// not match the HMAC-SHA256 of the payload under the current secret.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// Result reports the outcome of processing one delivery.
type Result struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// Publisher forwards accepted events onward. Forwarding is best-effort;
// a publish failure never fails the delivery.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Archive records accepted events for auditing, best-effort.
type Archive interface {
	RecordEvent(ctx context.Context, evt domain.WebhookEvent) error
}

// Ingestor verifies webhook signatures and deduplicates deliveries by
// event identity.
type Ingestor struct {
	store     EventStore
	publisher Publisher
	archive   Archive
	logger    *slog.Logger

	secretMu sync.Mutex
	secret   string
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

func WithPublisher(p Publisher) IngestorOption { return func(i *Ingestor) { i.publisher = p } }
func WithArchive(a Archive) IngestorOption     { return func(i *Ingestor) { i.archive = a } }
func WithLogger(l *slog.Logger) IngestorOption { return func(i *Ingestor) { i.logger = l } }

// NewIngestor creates an Ingestor backed by store.
func NewIngestor(store EventStore, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// SetSecret replaces the shared secret. Last write wins; there is no
// versioning, so deliveries signed under an older secret are rejected.
func (i *Ingestor) SetSecret(secret string) {
	i.secretMu.Lock()
	i.secret = secret
	i.secretMu.Unlock()
}

// Process verifies signatureHex against the payload bytes and records the
// event. A re-delivered id yields Duplicate=true without reprocessing or
// overwriting the stored record.
func (i *Ingestor) Process(ctx context.Context, signatureHex string, payload json.RawMessage) (Result, error) {
	ctx, span := otel.Tracer("webhooks").Start(ctx, "webhooks.process")
	defer span.End()

	i.secretMu.Lock()
	secret := i.secret
	i.secretMu.Unlock()
	if secret == "" {
		telemetry.WebhookEvents.WithLabelValues("rejected").Inc()
		return Result{}, ErrSecretNotConfigured
	}

	if err := verifySignature(secret, signatureHex, payload); err != nil {
		telemetry.WebhookEvents.WithLabelValues("rejected").Inc()
		span.RecordError(err)
		return Result{}, err
	}

	id := extractEventID(payload)
	span.SetAttributes(attribute.String("event.id", id))

	evt := domain.WebhookEvent{
		ID:         id,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}

	inserted, err := i.store.Insert(ctx, evt)
	if err != nil {
		return Result{}, fmt.Errorf("store event %s: %w", id, err)
	}
	if !inserted {
		telemetry.WebhookEvents.WithLabelValues("duplicate").Inc()
		i.logger.Info("duplicate webhook delivery", slog.String("event_id", id))
		return Result{ID: id, Duplicate: true}, nil
	}

	telemetry.WebhookEvents.WithLabelValues("ok").Inc()
	i.logger.Info("webhook event accepted", slog.String("event_id", id))

	if i.publisher != nil {
		if err := i.publisher.Publish(ctx, id, payload); err != nil {
			i.logger.Error("failed to forward webhook event",
				slog.String("event_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if i.archive != nil {
		if err := i.archive.RecordEvent(ctx, evt); err != nil {
			i.logger.Error("failed to archive webhook event",
				slog.String("event_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	return Result{ID: id}, nil
}

// verifySignature computes HMAC-SHA256 over the payload bytes with the
// secret and compares it, constant-time, against the hex signature.
func verifySignature(secret, signatureHex string, payload []byte) error {
	supplied, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrSignatureMismatch
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), supplied) {
		return ErrSignatureMismatch
	}
	return nil
}

// extractEventID takes the payload's "id" field when present. Otherwise
// it synthesizes a wall-clock identity; rapid id-less deliveries within
// the same millisecond collide and dedupe as one event. Known limitation,
// preserved for callers that rely on it.
func extractEventID(payload json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil && probe.ID != "" {
		return probe.ID
	}
	return fmt.Sprintf("ts-%d", time.Now().UnixMilli())
}
