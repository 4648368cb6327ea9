// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jfbm74/glpi-analytics/services/analytics/config"
	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
	"github.com/jfbm74/glpi-analytics/services/analytics/history"
)

// JobSource exposes the orchestrator state the monitor needs.
type JobSource interface {
	ActiveJobs() []datatypes.Job
	AtCapacity() bool
	CacheSizeBytes() int64
}

// Monitor derives health and status reports from live service state.
type Monitor struct {
	jobs       JobSource
	ledger     *history.Ledger
	sampler    Sampler
	thresholds config.ResourceThresholds
	stuckAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New builds a Monitor.
func New(jobs JobSource, ledger *history.Ledger, sampler Sampler, cfg config.Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		jobs:       jobs,
		ledger:     ledger,
		sampler:    sampler,
		thresholds: cfg.Thresholds,
		stuckAfter: cfg.StuckJobThreshold,
		logger:     logger,
		now:        time.Now,
	}
}

// minRecentSample is how many jobs the last hour needs before the error
// rate is meaningful enough to flag.
const minRecentSample = 5

// Check inspects jobs, recent failures, and host resources. Stuck jobs
// and critical resource pressure make the system critical; elevated
// error rates or warning-level pressure make it a warning; a saturated
// but otherwise clean system reports busy.
func (m *Monitor) Check(ctx context.Context) datatypes.HealthReport {
	now := m.now().UTC()
	report := datatypes.HealthReport{
		Status:    datatypes.HealthHealthy,
		Issues:    []string{},
		Warnings:  []string{},
		StuckJobs: []datatypes.Job{},
		Timestamp: now,
	}

	jobs := m.jobs.ActiveJobs()
	report.ActiveCount = len(jobs)
	for _, j := range jobs {
		if j.DurationSeconds > m.stuckAfter.Seconds() {
			report.StuckJobs = append(report.StuckJobs, j)
			report.Issues = append(report.Issues,
				fmt.Sprintf("job %s (%s) running for %.0fs, threshold %.0fs",
					j.ID, j.Type, j.DurationSeconds, m.stuckAfter.Seconds()))
		}
	}

	recent := m.ledger.StatsSince(now.Add(-time.Hour), "last_hour")
	if recent.Count >= minRecentSample {
		failureRate := 100 - recent.SuccessRate
		switch {
		case failureRate > 50:
			report.Issues = append(report.Issues,
				fmt.Sprintf("failure rate %.0f%% over the last hour (%d analyses)", failureRate, recent.Count))
		case failureRate > 20:
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("elevated failure rate %.0f%% over the last hour", failureRate))
		}
	}

	if snapshot, err := m.sampler.Sample(ctx); err != nil {
		m.logger.Warn("resource sampling failed", "error", err)
	} else {
		snapshot.CacheSizeBytes = m.jobs.CacheSizeBytes()
		m.checkResources(snapshot, &report)
	}

	switch {
	case len(report.Issues) > 0:
		report.Status = datatypes.HealthCritical
	case len(report.Warnings) > 0:
		report.Status = datatypes.HealthWarning
	case m.jobs.AtCapacity():
		report.Status = datatypes.HealthBusy
	}
	return report
}

func (m *Monitor) checkResources(s datatypes.SystemSnapshot, report *datatypes.HealthReport) {
	switch {
	case s.MemoryPercent >= m.thresholds.MemoryCriticalPct:
		report.Issues = append(report.Issues,
			fmt.Sprintf("memory usage %.1f%% above critical threshold %.0f%%", s.MemoryPercent, m.thresholds.MemoryCriticalPct))
	case s.MemoryPercent >= m.thresholds.MemoryWarningPct:
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("memory usage %.1f%% above warning threshold %.0f%%", s.MemoryPercent, m.thresholds.MemoryWarningPct))
	}

	switch {
	case s.DiskPercent >= m.thresholds.DiskCriticalPct:
		report.Issues = append(report.Issues,
			fmt.Sprintf("disk usage %.1f%% above critical threshold %.0f%%", s.DiskPercent, m.thresholds.DiskCriticalPct))
	case s.DiskPercent >= m.thresholds.DiskWarningPct:
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("disk usage %.1f%% above warning threshold %.0f%%", s.DiskPercent, m.thresholds.DiskWarningPct))
	}

	if m.thresholds.CacheWarningBytes > 0 && s.CacheSizeBytes >= m.thresholds.CacheWarningBytes {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("result cache at %d bytes, above %d", s.CacheSizeBytes, m.thresholds.CacheWarningBytes))
	}
}

// Status assembles the operational overview for the status endpoint.
func (m *Monitor) Status(ctx context.Context) datatypes.StatusReport {
	now := m.now().UTC()
	report := datatypes.StatusReport{
		Status:     "healthy",
		Timestamp:  now,
		ActiveJobs: m.jobs.ActiveJobs(),
		TodayStats: m.ledger.TodayStats(),
		Last24h:    m.ledger.StatsSince(now.Add(-24*time.Hour), "last_24h"),
		ModelUsage: m.ledger.ModelUsage(),
		TopErrors:  m.ledger.TopErrors(5),
	}
	report.ActiveCount = len(report.ActiveJobs)
	if m.jobs.AtCapacity() {
		report.Status = "busy"
	}

	if snapshot, err := m.sampler.Sample(ctx); err != nil {
		m.logger.Warn("resource sampling failed", "error", err)
	} else {
		snapshot.CacheSizeBytes = m.jobs.CacheSizeBytes()
		report.System = &snapshot
	}
	return report
}
