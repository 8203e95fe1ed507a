// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order. The
// first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fleetwright/config.yaml",
	"/etc/fleetwright/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. They are applied first,
// then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8620,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Store: StoreConfig{
			Path:     "/data/fleetwright",
			InMemory: false,
		},
		Engine: EngineConfig{
			CycleInterval:    15 * time.Minute,
			ReevalInterval:   6 * time.Hour,
			EvaluationWindow: 24 * time.Hour,
			MaxParallel:      8,
			ExplainTopN:      4,
		},
		Scoring: ScoringConfig{
			RawThreshold:       30.0,
			MinActionableScore: 65.0,
			LearningRate:       0.05,
		},
		Providers: ProvidersConfig{
			Timeout:                 2 * time.Second,
			RatePerSecond:           50,
			RateBurst:               100,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
		},
		Feedback: FeedbackConfig{
			NudgeMaxRetries:      5,
			RetryMaxRetries:      5,
			RetryInitialInterval: time.Second,
			RetryMaxInterval:     time.Minute,
			BusCloseTimeout:      30 * time.Second,
			BusChannelBuffer:     256,
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
	}
}

// Load builds the configuration from layered sources: defaults, then an
// optional YAML file, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated values when they arrive
// as env var strings.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables are dropped so stray environment noise cannot leak
// into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"http_host":          "server.host",
		"http_port":          "server.port",
		"http_read_timeout":  "server.read_timeout",
		"http_write_timeout": "server.write_timeout",
		"http_idle_timeout":  "server.idle_timeout",
		"shutdown_timeout":   "server.shutdown_timeout",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		"store_path":      "store.path",
		"store_in_memory": "store.in_memory",

		"engine_cycle_interval":  "engine.cycle_interval",
		"engine_reeval_interval": "engine.reeval_interval",
		"engine_window":          "engine.evaluation_window",
		"engine_max_parallel":    "engine.max_parallel",
		"engine_explain_top_n":   "engine.explain_top_n",

		"scoring_raw_threshold":        "scoring.raw_threshold",
		"scoring_min_actionable_score": "scoring.min_actionable_score",
		"scoring_learning_rate":        "scoring.learning_rate",

		"provider_timeout":           "providers.timeout",
		"provider_rate_per_second":   "providers.rate_per_second",
		"provider_rate_burst":        "providers.rate_burst",
		"provider_breaker_threshold": "providers.breaker_failure_threshold",
		"provider_breaker_timeout":   "providers.breaker_timeout",

		"feedback_nudge_retries":  "feedback.nudge_max_retries",
		"feedback_retry_count":    "feedback.retry_max_retries",
		"feedback_retry_interval": "feedback.retry_initial_interval",
		"feedback_retry_max":      "feedback.retry_max_interval",
		"feedback_close_timeout":  "feedback.bus_close_timeout",
		"feedback_buffer":         "feedback.bus_channel_buffer",

		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"rate_limit_requests":   "api.rate_limit_reqs",
		"rate_limit_window":     "api.rate_limit_window",
		"cors_origins":          "api.cors_origins",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
