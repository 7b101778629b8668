// Package efforts resolves "best effort" queries whose parameters are
// not fully specified, by searching an ordered candidate space of stream
// and parameter-set combinations against the upstream query port.
package efforts

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nkoval/go-fit-bridge/internal/domain"
	"github.com/nkoval/go-fit-bridge/internal/intervals"
	"github.com/nkoval/go-fit-bridge/pkg/telemetry"
)

// QueryPort issues best-efforts queries and stream-discovery queries
// against the upstream service.
type QueryPort interface {
	BestEfforts(ctx context.Context, activityID string, opts intervals.BestEffortOptions) (json.RawMessage, error)
	Streams(ctx context.Context, activityID string) (json.RawMessage, error)
}

const (
	primaryStream     = "power"
	primaryDuration   = 60   // seconds
	primaryDistance   = 1000 // meters
	secondaryDuration = 300  // seconds
	fallbackCount     = 8
)

// preferredStreams is consulted first when ordering discovered streams;
// any discovered stream not listed here follows in discovery order.
var preferredStreams = []string{"power", "speed", "pace", "distance", "hr", "watts"}

// Resolver performs the ordered fallback search. The candidate order is
// part of its contract: explicit parameters beat defaults, defaults beat
// discovered streams, and within one stream the attempts go short
// duration, distance, longer duration, count-only, bare. The order
// decides which result wins when several candidates would succeed.
type Resolver struct {
	port   QueryPort
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

func WithLogger(l *slog.Logger) ResolverOption { return func(r *Resolver) { r.logger = l } }

// NewResolver creates a Resolver over port.
func NewResolver(port QueryPort, opts ...ResolverOption) *Resolver {
	r := &Resolver{port: port, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the best-efforts payload for the activity. With
// explicit opts it issues exactly one query (after local validation);
// with nil opts it walks the default candidates and, if those exhaust
// with validation failures, discovers the activity's streams and
// searches them in preference order.
func (r *Resolver) Resolve(ctx context.Context, activityID string, opts *intervals.BestEffortOptions) (json.RawMessage, error) {
	ctx, span := otel.Tracer("efforts").Start(ctx, "efforts.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("activity.id", activityID))

	if opts != nil {
		if opts.Stream == "" {
			return nil, &domain.ValidationError{Reason: "missing stream in best-efforts options"}
		}
		if opts.Duration == nil && opts.Distance == nil {
			return nil, &domain.ValidationError{Reason: "missing duration or distance in best-efforts options"}
		}
		return r.query(ctx, activityID, *opts)
	}

	for _, cand := range defaultCandidates() {
		result, err := r.query(ctx, activityID, cand)
		if err == nil {
			return result, nil
		}
		if intervals.IsValidation(err) {
			continue
		}
		return nil, err
	}

	return r.resolveByDiscovery(ctx, activityID)
}

// resolveByDiscovery runs after every default candidate failed with a
// validation-class error.
func (r *Resolver) resolveByDiscovery(ctx context.Context, activityID string) (json.RawMessage, error) {
	telemetry.EffortDiscoveries.Inc()
	discovery, err := r.port.Streams(ctx, activityID)
	if err != nil {
		if intervals.IsNotFound(err) {
			// No streams at all is the same condition as no valid
			// parameters; report it as the original validation failure.
			return nil, &domain.ValidationError{Reason: "activity has no streams"}
		}
		return nil, err
	}

	discovered, err := availableStreams(discovery)
	if err != nil {
		return nil, err
	}

	for _, stream := range orderStreams(discovered) {
		for _, cand := range streamAttempts(stream) {
			result, err := r.query(ctx, activityID, cand)
			if err == nil {
				return result, nil
			}
			// Within discovery both unprocessable and not-found responses
			// move on to the next attempt; anything else is fatal.
			if intervals.IsValidation(err) || intervals.IsNotFound(err) {
				r.logger.Debug("best-efforts candidate rejected",
					slog.String("activity_id", activityID),
					slog.String("stream", stream),
					slog.String("error", err.Error()),
				)
				continue
			}
			return nil, err
		}
	}

	return nil, &domain.ValidationError{Reason: "no suitable best efforts parameters found"}
}

func (r *Resolver) query(ctx context.Context, activityID string, opts intervals.BestEffortOptions) (json.RawMessage, error) {
	telemetry.EffortQueryAttempts.Inc()
	return r.port.BestEfforts(ctx, activityID, opts)
}

func defaultCandidates() []intervals.BestEffortOptions {
	return []intervals.BestEffortOptions{
		{Stream: primaryStream, Duration: intPtr(primaryDuration)},
		{Stream: primaryStream, Distance: intPtr(primaryDistance)},
		{Stream: primaryStream, Duration: intPtr(secondaryDuration)},
	}
}

// streamAttempts is the per-stream parameter order: short duration,
// distance, longer duration, count-only, bare.
func streamAttempts(stream string) []intervals.BestEffortOptions {
	return []intervals.BestEffortOptions{
		{Stream: stream, Duration: intPtr(primaryDuration)},
		{Stream: stream, Distance: intPtr(primaryDistance)},
		{Stream: stream, Duration: intPtr(secondaryDuration)},
		{Stream: stream, Count: intPtr(fallbackCount)},
		{Stream: stream},
	}
}

// orderStreams puts preferred streams that were actually discovered
// first, in preference order, followed by the remaining discovered
// streams in discovery order.
func orderStreams(discovered []string) []string {
	ordered := make([]string, 0, len(discovered))
	for _, pref := range preferredStreams {
		if slices.Contains(discovered, pref) {
			ordered = append(ordered, pref)
		}
	}
	for _, s := range discovered {
		if !slices.Contains(ordered, s) {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

func intPtr(v int) *int { return &v }
