// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP/WebSocket server listens on (e.g. :3035).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for device records; when empty the
	// file-based device store under DataDir is used instead.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DataDir is the base directory for tenant-scoped connection-client
	// storage and the file device store.
	DataDir string `mapstructure:"DATA_DIR"`
	// ReconnectDelay is the wait before recreating a session after a
	// recoverable disconnect (e.g. "5s").
	ReconnectDelay string `mapstructure:"RECONNECT_DELAY"`
	// SessionQueueSize is the per-session inbound event queue depth.
	SessionQueueSize int `mapstructure:"SESSION_QUEUE_SIZE"`
	// ObserverQueueSize is the per-observer broadcast queue depth.
	ObserverQueueSize int `mapstructure:"OBSERVER_QUEUE_SIZE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Event pipeline (optional). When Kafka brokers are set, broadcast
	// events are also published to Kafka.
	// KafkaBrokers is a comma-separated list of broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EventsKafkaTopic is the Kafka topic for session events (default botfleet-events).
	EventsKafkaTopic string `mapstructure:"EVENTS_KAFKA_TOPIC"`
	// OTLPEndpoint enables OTel export of events and metrics when set
	// (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// Worker-only: Loki URL for the event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored (e.g. in CI). Env vars
// override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3035")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("RECONNECT_DELAY", "5s")
	v.SetDefault("SESSION_QUEUE_SIZE", 64)
	v.SetDefault("OBSERVER_QUEUE_SIZE", 32)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "botfleet-events")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "botfleet-events-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("config: DATA_DIR must be set")
	}
	if cfg.SessionQueueSize < 0 || cfg.ObserverQueueSize < 0 {
		return nil, errors.New("config: queue sizes must not be negative")
	}

	return &cfg, nil
}

// ReconnectDelayDuration parses ReconnectDelay as a time.Duration. Returns
// 5s if unset or invalid.
func (c *Config) ReconnectDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.ReconnectDelay)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// KafkaBrokersList returns broker addresses from the comma-separated
// config. Used to decide if the Kafka event sink is enabled (non-empty
// list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
