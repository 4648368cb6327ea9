// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds the runtime configuration for the analytics
// service: concurrency and cache policy for the orchestration core,
// generation parameters for the LLM backends, and health thresholds.
//
// Values come from the environment (FromEnv), optionally overlaid with a
// YAML file (ApplyFile) for deployments that prefer config files over
// long env lists.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Resource usage thresholds for the health monitor. Percentages are of
// total capacity; the cache threshold is in bytes.
type ResourceThresholds struct {
	MemoryWarningPct  float64 `yaml:"memory_warning_pct"`
	MemoryCriticalPct float64 `yaml:"memory_critical_pct"`
	DiskWarningPct    float64 `yaml:"disk_warning_pct"`
	DiskCriticalPct   float64 `yaml:"disk_critical_pct"`
	CacheWarningBytes int64   `yaml:"cache_warning_bytes"`
}

// Config is the full configuration surface of the analytics service.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// LLMBackend selects the invoker: "gemini" (default) or "openai".
	LLMBackend string

	// Orchestration core policy.
	MaxConcurrentAnalyses int
	AdmissionWait         time.Duration
	FailFastAdmission     bool
	RequestTimeout        time.Duration
	CacheTTL              time.Duration
	StuckJobThreshold     time.Duration

	// History ledger policy.
	RetentionDays  int
	HistoryLimit   int
	MetricsDir     string

	// Client-side smoothing of upstream calls.
	RateLimitPerMinute int
	RateLimitBurst     int

	// Generation parameters passed to the invoker.
	Temperature     float32
	TopP            float32
	TopK            int
	MaxOutputTokens int

	// LogDir enables file logging when non-empty.
	LogDir string

	Thresholds ResourceThresholds

	// CostPerToken maps model name to estimated USD per token.
	CostPerToken map[string]float64
}

// Default returns the deployment defaults, matching the dashboard's
// historical tuning: three concurrent analyses, one-hour cache, 30-day
// retention.
func Default() Config {
	return Config{
		Port:                  "8050",
		LLMBackend:            "gemini",
		MaxConcurrentAnalyses: 3,
		AdmissionWait:         60 * time.Second,
		RequestTimeout:        300 * time.Second,
		CacheTTL:              time.Hour,
		StuckJobThreshold:     300 * time.Second,
		RetentionDays:         30,
		HistoryLimit:          1000,
		MetricsDir:            "data/metrics",
		RateLimitPerMinute:    30,
		RateLimitBurst:        3,
		Temperature:           0.1,
		TopP:                  0.95,
		TopK:                  40,
		MaxOutputTokens:       8192,
		Thresholds: ResourceThresholds{
			MemoryWarningPct:  80,
			MemoryCriticalPct: 90,
			DiskWarningPct:    85,
			DiskCriticalPct:   95,
			CacheWarningBytes: 1 << 30, // 1 GiB
		},
		CostPerToken: map[string]float64{
			"gemini-2.0-flash-exp": 0.00001,
			"gemini-1.5-pro":       0.000015,
			"gemini-1.5-flash":     0.000005,
			"gpt-4o":               0.00001,
			"gpt-4o-mini":          0.0000006,
		},
	}
}

// FromEnv builds a Config from the environment on top of Default.
func FromEnv() Config {
	cfg := Default()

	if v := os.Getenv("ANALYTICS_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LLM_BACKEND_TYPE"); v != "" {
		cfg.LLMBackend = v
	}
	cfg.MaxConcurrentAnalyses = envInt("MAX_CONCURRENT_ANALYSES", cfg.MaxConcurrentAnalyses)
	cfg.AdmissionWait = envSeconds("AI_ADMISSION_WAIT", cfg.AdmissionWait)
	cfg.FailFastAdmission = envBool("AI_ADMISSION_FAIL_FAST", cfg.FailFastAdmission)
	cfg.RequestTimeout = envSeconds("AI_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.CacheTTL = envSeconds("AI_CACHE_TIMEOUT", cfg.CacheTTL)
	cfg.StuckJobThreshold = envSeconds("AI_STUCK_JOB_THRESHOLD", cfg.StuckJobThreshold)
	cfg.RetentionDays = envInt("AI_RETENTION_DAYS", cfg.RetentionDays)
	cfg.HistoryLimit = envInt("AI_HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.RateLimitPerMinute = envInt("AI_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.RateLimitBurst = envInt("AI_RATE_LIMIT_BURST", cfg.RateLimitBurst)
	if v := os.Getenv("METRICS_DIRECTORY"); v != "" {
		cfg.MetricsDir = v
	}
	if v := os.Getenv("ANALYTICS_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}

	return cfg
}

// ApplyFile overlays a YAML config file onto cfg. A missing file is not
// an error so that deployments without one run on env/defaults alone.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var overlay fileConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	overlay.apply(c)
	return nil
}

// Validate checks the configuration and returns problems grouped by
// area, in the same shape the dashboard's settings page expects. An
// empty map means the configuration is usable.
func (c Config) Validate() map[string][]string {
	problems := make(map[string][]string)

	if c.LLMBackend != "gemini" && c.LLMBackend != "openai" {
		problems["backend"] = append(problems["backend"],
			fmt.Sprintf("unknown LLM backend %q (expected gemini or openai)", c.LLMBackend))
	}
	if c.MaxConcurrentAnalyses <= 0 {
		problems["limits"] = append(problems["limits"], "max_concurrent_analyses must be greater than 0")
	}
	if c.RequestTimeout <= 0 {
		problems["limits"] = append(problems["limits"], "request_timeout must be greater than 0")
	}
	if c.CacheTTL <= 0 {
		problems["limits"] = append(problems["limits"], "cache_ttl must be greater than 0")
	}
	if c.RetentionDays <= 0 {
		problems["limits"] = append(problems["limits"], "retention_days must be greater than 0")
	}
	if c.Thresholds.MemoryWarningPct >= c.Thresholds.MemoryCriticalPct {
		problems["thresholds"] = append(problems["thresholds"],
			"memory warning threshold must be below the critical threshold")
	}
	if c.Thresholds.DiskWarningPct >= c.Thresholds.DiskCriticalPct {
		problems["thresholds"] = append(problems["thresholds"],
			"disk warning threshold must be below the critical threshold")
	}

	return problems
}

// CostFor estimates the USD cost of totalTokens on the given model,
// falling back to a conservative default rate for unknown models.
func (c Config) CostFor(model string, totalTokens int) float64 {
	rate, ok := c.CostPerToken[model]
	if !ok {
		rate = 0.00001
	}
	return float64(totalTokens) * rate
}

// fileConfig mirrors Config for YAML with pointer fields so absent keys
// leave the existing value untouched. Durations are plain seconds.
type fileConfig struct {
	Port                  *string             `yaml:"port"`
	LLMBackend            *string             `yaml:"llm_backend"`
	MaxConcurrentAnalyses *int                `yaml:"max_concurrent_analyses"`
	AdmissionWaitSecs     *int                `yaml:"admission_wait_seconds"`
	FailFastAdmission     *bool               `yaml:"admission_fail_fast"`
	RequestTimeoutSecs    *int                `yaml:"request_timeout_seconds"`
	CacheTTLSecs          *int                `yaml:"cache_ttl_seconds"`
	StuckJobSecs          *int                `yaml:"stuck_job_threshold_seconds"`
	RetentionDays         *int                `yaml:"retention_days"`
	HistoryLimit          *int                `yaml:"history_limit"`
	MetricsDir            *string             `yaml:"metrics_directory"`
	RateLimitPerMinute    *int                `yaml:"rate_limit_per_minute"`
	RateLimitBurst        *int                `yaml:"rate_limit_burst"`
	LogDir                *string             `yaml:"log_directory"`
	Thresholds            *ResourceThresholds `yaml:"thresholds"`
	CostPerToken          map[string]float64  `yaml:"cost_per_token"`
}

func (f fileConfig) apply(c *Config) {
	if f.Port != nil {
		c.Port = *f.Port
	}
	if f.LLMBackend != nil {
		c.LLMBackend = *f.LLMBackend
	}
	if f.MaxConcurrentAnalyses != nil {
		c.MaxConcurrentAnalyses = *f.MaxConcurrentAnalyses
	}
	if f.AdmissionWaitSecs != nil {
		c.AdmissionWait = time.Duration(*f.AdmissionWaitSecs) * time.Second
	}
	if f.FailFastAdmission != nil {
		c.FailFastAdmission = *f.FailFastAdmission
	}
	if f.RequestTimeoutSecs != nil {
		c.RequestTimeout = time.Duration(*f.RequestTimeoutSecs) * time.Second
	}
	if f.CacheTTLSecs != nil {
		c.CacheTTL = time.Duration(*f.CacheTTLSecs) * time.Second
	}
	if f.StuckJobSecs != nil {
		c.StuckJobThreshold = time.Duration(*f.StuckJobSecs) * time.Second
	}
	if f.RetentionDays != nil {
		c.RetentionDays = *f.RetentionDays
	}
	if f.HistoryLimit != nil {
		c.HistoryLimit = *f.HistoryLimit
	}
	if f.MetricsDir != nil {
		c.MetricsDir = *f.MetricsDir
	}
	if f.RateLimitPerMinute != nil {
		c.RateLimitPerMinute = *f.RateLimitPerMinute
	}
	if f.RateLimitBurst != nil {
		c.RateLimitBurst = *f.RateLimitBurst
	}
	if f.LogDir != nil {
		c.LogDir = *f.LogDir
	}
	if f.Thresholds != nil {
		c.Thresholds = *f.Thresholds
	}
	for model, rate := range f.CostPerToken {
		c.CostPerToken[model] = rate
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
