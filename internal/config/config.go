// Package config reads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	otelad "github.com/anees-mohamed-ar/logistic/internal/adapter/otel"
)

// Config is the full service configuration.
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	DatabasePath    string        `env:"DATABASE_PATH" envDefault:"logistic.db"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// LeaseTTL is the single lease lifetime used by lock contention,
	// lock checks, open-draft visibility and the sweeper.
	LeaseTTL           time.Duration `env:"LEASE_TTL" envDefault:"10m"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
	StreamPingInterval time.Duration `env:"STREAM_PING_INTERVAL" envDefault:"25s"`
	EditWindow         time.Duration `env:"EDIT_WINDOW" envDefault:"24h"`

	// RedisURL enables the cross-instance notification relay.
	RedisURL string `env:"REDIS_URL"`

	// KafkaBrokers enables export of converted records.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"logistic.records.converted"`

	Telemetry otelad.Config `envPrefix:"OTEL_"`
}

// Load parses the environment and checks the durations are usable.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	for name, d := range map[string]time.Duration{
		"LEASE_TTL":            c.LeaseTTL,
		"SWEEP_INTERVAL":       c.SweepInterval,
		"STREAM_PING_INTERVAL": c.StreamPingInterval,
		"EDIT_WINDOW":          c.EditWindow,
		"SHUTDOWN_TIMEOUT":     c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("load config: %s must be positive, got %s", name, d)
		}
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return ":" + c.Port }
