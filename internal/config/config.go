// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package config loads layered configuration: built-in defaults, an
// optional YAML file, then environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/fleetwright/internal/factor"
)

// Config is the root configuration for the server.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Store      StoreConfig      `koanf:"store"`
	Engine     EngineConfig     `koanf:"engine"`
	Scoring    ScoringConfig    `koanf:"scoring"`
	Normalizer NormalizerConfig `koanf:"normalizer"`
	Providers  ProvidersConfig  `koanf:"providers"`
	Feedback   FeedbackConfig   `koanf:"feedback"`
	API        APIConfig        `koanf:"api"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// StoreConfig holds the embedded store settings. The ledger and the
// weight profiles share one Badger instance.
type StoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// EngineConfig holds evaluation cycle settings.
type EngineConfig struct {
	CycleInterval    time.Duration `koanf:"cycle_interval"`
	ReevalInterval   time.Duration `koanf:"reeval_interval"`
	EvaluationWindow time.Duration `koanf:"evaluation_window"`
	MaxParallel      int           `koanf:"max_parallel"`
	ExplainTopN      int           `koanf:"explain_top_n"`
}

// ScoringConfig seeds new weight profiles.
type ScoringConfig struct {
	RawThreshold       float64 `koanf:"raw_threshold"`
	MinActionableScore float64 `koanf:"min_actionable_score"`
	LearningRate       float64 `koanf:"learning_rate"`
}

// NormalizerConfig overrides the built-in per-kind normalization
// transforms. Keys are factor kind names (demand, utilization, ...);
// kinds left out keep their built-in transform.
type NormalizerConfig struct {
	Transforms map[string]factor.Transform `koanf:"transforms"`
}

// KindTransforms parses the configured kind names into factor kinds.
func (n NormalizerConfig) KindTransforms() (map[factor.Kind]factor.Transform, error) {
	if len(n.Transforms) == 0 {
		return nil, nil
	}
	out := make(map[factor.Kind]factor.Transform, len(n.Transforms))
	for name, t := range n.Transforms {
		kind, err := factor.ParseKind(name)
		if err != nil {
			return nil, err
		}
		out[kind] = t
	}
	return out, nil
}

// ProvidersConfig guards signal provider calls.
type ProvidersConfig struct {
	Timeout                 time.Duration `koanf:"timeout"`
	RatePerSecond           float64       `koanf:"rate_per_second"`
	RateBurst               int           `koanf:"rate_burst"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
}

// FeedbackConfig holds feedback pipeline settings.
type FeedbackConfig struct {
	NudgeMaxRetries      int           `koanf:"nudge_max_retries"`
	RetryMaxRetries      int           `koanf:"retry_max_retries"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`
	BusCloseTimeout      time.Duration `koanf:"bus_close_timeout"`
	BusChannelBuffer     int64         `koanf:"bus_channel_buffer"`
}

// APIConfig holds API surface settings.
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size"`
	MaxPageSize     int           `koanf:"max_page_size"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Store.Path == "" && !c.Store.InMemory {
		return fmt.Errorf("store path required unless in-memory mode is set")
	}
	if c.Engine.CycleInterval <= 0 {
		return fmt.Errorf("engine cycle interval must be positive")
	}
	if c.Engine.ReevalInterval <= 0 {
		return fmt.Errorf("engine reeval interval must be positive")
	}
	if c.Engine.EvaluationWindow <= 0 {
		return fmt.Errorf("engine evaluation window must be positive")
	}
	if c.Engine.MaxParallel < 1 {
		return fmt.Errorf("engine max parallel must be at least 1")
	}
	if c.Scoring.RawThreshold <= 0 {
		return fmt.Errorf("scoring raw threshold must be positive")
	}
	if c.Scoring.MinActionableScore <= 50 || c.Scoring.MinActionableScore > 100 {
		return fmt.Errorf("scoring min actionable score must be in (50, 100]")
	}
	if c.Scoring.LearningRate <= 0 || c.Scoring.LearningRate > 0.5 {
		return fmt.Errorf("scoring learning rate must be in (0, 0.5]")
	}
	transforms, err := c.Normalizer.KindTransforms()
	if err != nil {
		return fmt.Errorf("normalizer: %w", err)
	}
	for kind, t := range transforms {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("normalizer transform %s: %w", kind, err)
		}
	}
	if c.API.DefaultPageSize < 1 || c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api default page size must be in [1, max_page_size]")
	}
	return nil
}
