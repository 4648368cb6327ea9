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
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jfbm74/glpi-analytics/services/analytics/config"
	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
	"github.com/jfbm74/glpi-analytics/services/analytics/history"
)

var testClock = time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)

type stubJobs struct {
	jobs       []datatypes.Job
	atCapacity bool
	cacheBytes int64
}

func (s *stubJobs) ActiveJobs() []datatypes.Job { return s.jobs }
func (s *stubJobs) AtCapacity() bool            { return s.atCapacity }
func (s *stubJobs) CacheSizeBytes() int64       { return s.cacheBytes }

type stubSampler struct {
	snapshot datatypes.SystemSnapshot
	err      error
}

func (s *stubSampler) Sample(context.Context) (datatypes.SystemSnapshot, error) {
	return s.snapshot, s.err
}

func newTestMonitor(jobs *stubJobs, sampler *stubSampler, ledger *history.Ledger) *Monitor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if ledger == nil {
		ledger = history.NewLedger(100, 30, logger,
			history.WithClock(func() time.Time { return testClock }))
	}
	m := New(jobs, ledger, sampler, config.Default(), logger)
	m.now = func() time.Time { return testClock }
	return m
}

func healthySnapshot() datatypes.SystemSnapshot {
	return datatypes.SystemSnapshot{CPUPercent: 10, MemoryPercent: 40, DiskPercent: 50}
}

func TestCheckHealthy(t *testing.T) {
	m := newTestMonitor(&stubJobs{}, &stubSampler{snapshot: healthySnapshot()}, nil)

	report := m.Check(context.Background())
	if report.Status != datatypes.HealthHealthy {
		t.Errorf("Status = %s, want healthy (issues: %v, warnings: %v)",
			report.Status, report.Issues, report.Warnings)
	}
	if len(report.StuckJobs) != 0 || report.ActiveCount != 0 {
		t.Errorf("unexpected job state: %+v", report)
	}
}

func TestCheckStuckJobIsCritical(t *testing.T) {
	jobs := &stubJobs{jobs: []datatypes.Job{
		{ID: "fast", Type: datatypes.AnalysisQuick, DurationSeconds: 20},
		{ID: "stuck", Type: datatypes.AnalysisComprehensive, DurationSeconds: 400},
	}}
	m := newTestMonitor(jobs, &stubSampler{snapshot: healthySnapshot()}, nil)

	report := m.Check(context.Background())
	if report.Status != datatypes.HealthCritical {
		t.Errorf("Status = %s, want critical", report.Status)
	}
	if len(report.StuckJobs) != 1 || report.StuckJobs[0].ID != "stuck" {
		t.Errorf("StuckJobs = %+v", report.StuckJobs)
	}
	if report.ActiveCount != 2 {
		t.Errorf("ActiveCount = %d, want 2", report.ActiveCount)
	}
}

func TestCheckErrorRates(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		total    int
		want     datatypes.HealthStatus
	}{
		{"majority failing", 4, 6, datatypes.HealthCritical},
		{"elevated failures", 2, 6, datatypes.HealthWarning},
		{"mostly fine", 1, 10, datatypes.HealthHealthy},
		{"too few to judge", 3, 3, datatypes.HealthHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			ledger := history.NewLedger(100, 30, logger,
				history.WithClock(func() time.Time { return testClock }))
			for i := range tt.total {
				ledger.Append(datatypes.HistoryRecord{
					JobID:     fmt.Sprintf("job-%d", i),
					Model:     "m",
					StartedAt: testClock.Add(-30 * time.Minute),
					Success:   i >= tt.failures,
					ErrorClass: map[bool]string{true: "network_timeout", false: ""}[i < tt.failures],
				})
			}
			m := newTestMonitor(&stubJobs{}, &stubSampler{snapshot: healthySnapshot()}, ledger)
			if got := m.Check(context.Background()).Status; got != tt.want {
				t.Errorf("Status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheckResourceThresholds(t *testing.T) {
	tests := []struct {
		name     string
		snapshot datatypes.SystemSnapshot
		cache    int64
		want     datatypes.HealthStatus
	}{
		{"memory critical", datatypes.SystemSnapshot{MemoryPercent: 92, DiskPercent: 50}, 0, datatypes.HealthCritical},
		{"memory warning", datatypes.SystemSnapshot{MemoryPercent: 85, DiskPercent: 50}, 0, datatypes.HealthWarning},
		{"disk critical", datatypes.SystemSnapshot{MemoryPercent: 40, DiskPercent: 96}, 0, datatypes.HealthCritical},
		{"disk warning", datatypes.SystemSnapshot{MemoryPercent: 40, DiskPercent: 90}, 0, datatypes.HealthWarning},
		{"cache oversized", healthySnapshot(), 2 << 30, datatypes.HealthWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &stubJobs{cacheBytes: tt.cache}
			m := newTestMonitor(jobs, &stubSampler{snapshot: tt.snapshot}, nil)
			if got := m.Check(context.Background()).Status; got != tt.want {
				t.Errorf("Status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheckBusyAtCapacity(t *testing.T) {
	m := newTestMonitor(&stubJobs{atCapacity: true}, &stubSampler{snapshot: healthySnapshot()}, nil)
	if got := m.Check(context.Background()).Status; got != datatypes.HealthBusy {
		t.Errorf("Status = %s, want busy", got)
	}
}

func TestCheckSamplerFailureIsNotFatal(t *testing.T) {
	m := newTestMonitor(&stubJobs{}, &stubSampler{err: fmt.Errorf("no /proc here")}, nil)
	if got := m.Check(context.Background()).Status; got != datatypes.HealthHealthy {
		t.Errorf("Status = %s, want healthy despite sampler failure", got)
	}
}

func TestStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := history.NewLedger(100, 30, logger,
		history.WithClock(func() time.Time { return testClock }))
	ledger.Append(datatypes.HistoryRecord{
		JobID: "today", Model: "gemini-2.0-flash-exp",
		StartedAt: testClock.Add(-2 * time.Hour), Success: true,
	})
	ledger.Append(datatypes.HistoryRecord{
		JobID: "failed", Model: "gemini-2.0-flash-exp",
		StartedAt: testClock.Add(-3 * time.Hour), ErrorClass: "quota_exceeded",
	})

	jobs := &stubJobs{jobs: []datatypes.Job{{ID: "j1"}}, cacheBytes: 512}
	m := newTestMonitor(jobs, &stubSampler{snapshot: healthySnapshot()}, ledger)

	report := m.Status(context.Background())
	if report.Status != "healthy" {
		t.Errorf("Status = %q", report.Status)
	}
	if report.ActiveCount != 1 {
		t.Errorf("ActiveCount = %d, want 1", report.ActiveCount)
	}
	if report.TodayStats.Count != 2 {
		t.Errorf("TodayStats.Count = %d, want 2", report.TodayStats.Count)
	}
	if report.Last24h.Date != "last_24h" || report.Last24h.Count != 2 {
		t.Errorf("Last24h = %+v", report.Last24h)
	}
	if report.System == nil || report.System.CacheSizeBytes != 512 {
		t.Errorf("System = %+v", report.System)
	}
	if len(report.TopErrors) != 1 || report.TopErrors[0].Class != "quota_exceeded" {
		t.Errorf("TopErrors = %+v", report.TopErrors)
	}
	if report.ModelUsage["gemini-2.0-flash-exp"] != 2 {
		t.Errorf("ModelUsage = %v", report.ModelUsage)
	}
}

func TestStatusBusy(t *testing.T) {
	m := newTestMonitor(&stubJobs{atCapacity: true}, &stubSampler{snapshot: healthySnapshot()}, nil)
	if got := m.Status(context.Background()).Status; got != "busy" {
		t.Errorf("Status = %q, want busy", got)
	}
}
