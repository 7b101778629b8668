package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/nkoval/go-fit-bridge/internal/downloads"
	"github.com/nkoval/go-fit-bridge/internal/efforts"
	"github.com/nkoval/go-fit-bridge/internal/intervals"
	"github.com/nkoval/go-fit-bridge/internal/kafka"
	"github.com/nkoval/go-fit-bridge/internal/postgres"
	"github.com/nkoval/go-fit-bridge/internal/redisstore"
	"github.com/nkoval/go-fit-bridge/internal/webhooks"
	"github.com/nkoval/go-fit-bridge/pkg/retry"
	"github.com/nkoval/go-fit-bridge/pkg/telemetry"
	"github.com/nkoval/go-fit-bridge/services/bridge/config"
	"github.com/nkoval/go-fit-bridge/services/bridge/handler"
	"github.com/nkoval/go-fit-bridge/services/bridge/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("api-base-url", "https://intervals.icu", "intervals.icu base URL")
	serveCmd.Flags().String("athlete-id", "", "intervals.icu athlete id")
	serveCmd.Flags().String("api-key", "", "intervals.icu API key")
	serveCmd.Flags().String("bucket-url", "", "blob bucket URL for downloads (e.g. file:///var/lib/fitbridge); empty keeps downloads in memory")
	serveCmd.Flags().Int("max-retries", 3, "max retries for upstream requests")
	serveCmd.Flags().Duration("retry-base-delay", 100*time.Millisecond, "base delay for retry backoff")
	serveCmd.Flags().String("webhook-secret", "", "HMAC secret for webhook signatures; empty rejects webhooks until set at runtime")
	serveCmd.Flags().String("event-store", "memory", "webhook event store: memory | redis")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("kafka-brokers", "", "comma-separated Kafka broker addresses; empty disables event fan-out")
	serveCmd.Flags().String("kafka-topic", "fitbridge.webhook-events", "Kafka topic for accepted webhook events")
	serveCmd.Flags().String("postgres-dsn", "", "Postgres DSN for the audit archive; empty disables archiving")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("api_base_url", serveCmd.Flags(), "api-base-url")
	bindFlag("athlete_id", serveCmd.Flags(), "athlete-id")
	bindFlag("api_key", serveCmd.Flags(), "api-key")
	bindFlag("bucket_url", serveCmd.Flags(), "bucket-url")
	bindFlag("max_retries", serveCmd.Flags(), "max-retries")
	bindFlag("retry_base_delay", serveCmd.Flags(), "retry-base-delay")
	bindFlag("webhook_secret", serveCmd.Flags(), "webhook-secret")
	bindFlag("event_store", serveCmd.Flags(), "event-store")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("kafka_topic", serveCmd.Flags(), "kafka-topic")
	bindFlag("postgres_dsn", serveCmd.Flags(), "postgres-dsn")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("api_key", "INTERVALS_API_KEY")
	_ = viper.BindEnv("webhook_secret", "FITBRIDGE_WEBHOOK_SECRET")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "bridge")

	if cfg.AthleteID == "" || cfg.APIKey == "" {
		return fmt.Errorf("athlete_id and api_key are required")
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "bridge", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// ── upstream client ───────────────────────────────────────────────────────
	clientOpts := []intervals.Option{
		intervals.WithLogger(logger),
		intervals.WithRetry(retry.Config{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay}),
	}
	var bucket *blob.Bucket
	if cfg.BucketURL != "" {
		bucket, err = blob.OpenBucket(initCtx, cfg.BucketURL)
		if err != nil {
			return fmt.Errorf("open bucket: %w", err)
		}
		defer func() { _ = bucket.Close() }()
		clientOpts = append(clientOpts, intervals.WithBucket(bucket))
	}
	client := intervals.NewClient(cfg.APIBaseURL, cfg.AthleteID, cfg.APIKey, clientOpts...)

	// ── webhook event store ───────────────────────────────────────────────────
	var eventStore webhooks.EventStore
	switch cfg.EventStore {
	case "redis":
		redisClient := redisstore.NewClient(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(initCtx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		eventStore = redisstore.NewEventStore(redisClient)
	case "memory", "":
		eventStore = webhooks.NewMemoryStore()
	default:
		return fmt.Errorf("unknown event_store %q", cfg.EventStore)
	}

	// ── optional fan-out and archive ──────────────────────────────────────────
	ingestorOpts := []webhooks.IngestorOption{webhooks.WithLogger(logger)}
	orchOpts := []downloads.Option{downloads.WithLogger(logger)}

	if cfg.KafkaBrokers != "" {
		producer := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
		defer func() { _ = producer.Close() }()
		ingestorOpts = append(ingestorOpts, webhooks.WithPublisher(producer))
	}

	if cfg.PostgresDSN != "" {
		pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		archive := postgres.NewArchive(pool)
		ingestorOpts = append(ingestorOpts, webhooks.WithArchive(archive))
		orchOpts = append(orchOpts, downloads.WithArchive(archive))
	}

	ingestor := webhooks.NewIngestor(eventStore, ingestorOpts...)
	if cfg.WebhookSecret != "" {
		ingestor.SetSecret(cfg.WebhookSecret)
	}

	orch := downloads.NewOrchestrator(client, orchOpts...)
	resolver := efforts.NewResolver(client, efforts.WithLogger(logger))

	restHandler := handler.NewREST(orch, resolver, ingestor, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1MB limit
	r.Get("/healthz", restHandler.Healthz)
	r.Post("/webhooks/intervals", restHandler.Webhook)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/downloads", restHandler.StartDownload)
		r.Get("/downloads", restHandler.ListDownloads)
		r.Get("/downloads/{id}", restHandler.GetDownload)
		r.Delete("/downloads/{id}", restHandler.CancelDownload)
		r.Get("/activities/{id}/best-efforts", restHandler.BestEfforts)
		r.Put("/admin/webhook-secret", restHandler.SetWebhookSecret)
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	go func() {
		logger.Info("bridge HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
