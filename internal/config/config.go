// Package config provides runtime configuration for the dashboard service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// KafkaConfig holds settings for the storefront event consumer.
type KafkaConfig struct {
	// Brokers to connect to. An empty list disables ingestion.
	Brokers []string
	// Topic carrying storefront business events (sales, expenses, products)
	Topic string
	// GroupID for the consumer group
	GroupID string
}

// Config holds runtime configuration for the service.
type Config struct {
	// HTTP listen address for the dashboard API
	HTTPAddr string
	// Path to the SQLite database file
	DBPath string
	// Log level: debug, info, warn, error
	LogLevel string
	// Kafka ingestion settings
	Kafka KafkaConfig
	// EvalDebounce is how long to wait after a data change before evaluating,
	// so a burst of events triggers a single pass.
	EvalDebounce time.Duration
	// EvalInterval is the periodic re-evaluation interval (stale-sale and
	// monthly-goal rules depend on wall-clock time, not only on data changes).
	EvalInterval time.Duration
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		HTTPAddr: ":8080",
		DBPath:   "centinela.db",
		LogLevel: "info",
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "storefront.events",
			GroupID: "centinela-dashboard",
		},
		EvalDebounce: 2 * time.Second,
		EvalInterval: 15 * time.Minute,
	}
}

// Load collects configuration from environment with defaults.
func Load() *Config {
	cfg := Default()

	cfg.HTTPAddr = getenv("CENTINELA_HTTP_ADDR", cfg.HTTPAddr)
	cfg.DBPath = getenv("CENTINELA_DB_PATH", cfg.DBPath)
	cfg.LogLevel = getenv("CENTINELA_LOG_LEVEL", cfg.LogLevel)

	if v := os.Getenv("CENTINELA_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCSV(v)
	}
	if v := os.Getenv("CENTINELA_KAFKA_DISABLED"); v == "1" || strings.EqualFold(v, "true") {
		cfg.Kafka.Brokers = nil
	}
	cfg.Kafka.Topic = getenv("CENTINELA_KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.GroupID = getenv("CENTINELA_KAFKA_GROUP", cfg.Kafka.GroupID)

	cfg.EvalDebounce = durenvs("CENTINELA_EVAL_DEBOUNCE_SEC", cfg.EvalDebounce)
	cfg.EvalInterval = durenvs("CENTINELA_EVAL_INTERVAL_SEC", cfg.EvalInterval)

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durenvs(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return def
	}
	return time.Duration(sec) * time.Second
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
