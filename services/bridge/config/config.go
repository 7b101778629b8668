package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the bridge service.
type Config struct {
	LogLevel     string
	HTTPPort     string
	MetricsAddr  string
	OTelEndpoint string

	APIBaseURL string
	AthleteID  string
	APIKey     string

	BucketURL      string
	MaxRetries     int
	RetryBaseDelay time.Duration

	WebhookSecret string
	EventStore    string // memory | redis
	RedisAddr     string

	KafkaBrokers string
	KafkaTopic   string
	PostgresDSN  string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:       v.GetString("log_level"),
		HTTPPort:       v.GetString("http_port"),
		MetricsAddr:    v.GetString("metrics_addr"),
		OTelEndpoint:   v.GetString("otel_endpoint"),
		APIBaseURL:     v.GetString("api_base_url"),
		AthleteID:      v.GetString("athlete_id"),
		APIKey:         v.GetString("api_key"),
		BucketURL:      v.GetString("bucket_url"),
		MaxRetries:     v.GetInt("max_retries"),
		RetryBaseDelay: v.GetDuration("retry_base_delay"),
		WebhookSecret:  v.GetString("webhook_secret"),
		EventStore:     v.GetString("event_store"),
		RedisAddr:      v.GetString("redis_addr"),
		KafkaBrokers:   v.GetString("kafka_brokers"),
		KafkaTopic:     v.GetString("kafka_topic"),
		PostgresDSN:    v.GetString("postgres_dsn"),
	}
}
