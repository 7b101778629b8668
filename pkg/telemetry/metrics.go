package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Downloads ───────────────────────────────────────────────────────────────

	DownloadsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fitbridge",
		Subsystem: "downloads",
		Name:      "started_total",
		Help:      "Total download tasks started.",
	})

	DownloadsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitbridge",
		Subsystem: "downloads",
		Name:      "finished_total",
		Help:      "Total download tasks that reached a terminal state, labelled by state.",
	}, []string{"state"})

	DownloadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitbridge",
		Subsystem: "downloads",
		Name:      "inflight",
		Help:      "Download transfers currently running.",
	})

	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fitbridge",
		Subsystem: "downloads",
		Name:      "bytes_total",
		Help:      "Total bytes fetched across all download tasks.",
	})

	// ─── Webhooks ────────────────────────────────────────────────────────────────

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitbridge",
		Subsystem: "webhooks",
		Name:      "events_total",
		Help:      "Total webhook deliveries processed, labelled by result (ok, duplicate, rejected).",
	}, []string{"result"})

	// ─── Effort resolution ───────────────────────────────────────────────────────

	EffortQueryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fitbridge",
		Subsystem: "efforts",
		Name:      "query_attempts_total",
		Help:      "Total best-efforts query attempts, including fallback candidates.",
	})

	EffortDiscoveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fitbridge",
		Subsystem: "efforts",
		Name:      "stream_discoveries_total",
		Help:      "Total stream-discovery queries issued after default candidates were exhausted.",
	})

	// ─── Upstream client ─────────────────────────────────────────────────────────

	UpstreamRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fitbridge",
		Subsystem: "upstream",
		Name:      "retries_total",
		Help:      "Total retry attempts against the upstream API.",
	})
)
