// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history keeps the append-only ledger of terminal analysis
// jobs and derives the daily statistics, trend, and error reports served
// by the API. The working set lives in memory, bounded by the history
// limit; an optional store persists records across restarts.
package history

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
)

// Store persists ledger records beyond process lifetime.
type Store interface {
	Append(datatypes.HistoryRecord) error
	Load(limit int) ([]datatypes.HistoryRecord, error)
	Close() error
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithStore attaches a persistence backend. Records already in the
// store are loaded into the working set immediately.
func WithStore(s Store) Option {
	return func(l *Ledger) { l.store = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger is the in-memory record of terminal jobs, oldest first.
type Ledger struct {
	mu        sync.RWMutex
	records   []datatypes.HistoryRecord
	limit     int
	retention time.Duration
	store     Store
	logger    *slog.Logger
	now       func() time.Time
}

// NewLedger builds a Ledger bounded to limit records with the given
// retention window in days.
func NewLedger(limit, retentionDays int, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		limit:     limit,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store != nil {
		restored, err := l.store.Load(l.limit)
		if err != nil {
			l.logger.Warn("could not restore history", "error", err)
		} else if len(restored) > 0 {
			l.records = restored
			l.logger.Info("history restored", "records", len(restored))
		}
	}
	return l
}

// Append records one terminal job. Persistence failures are logged and
// swallowed: a broken disk must not fail the analysis that produced the
// record.
func (l *Ledger) Append(rec datatypes.HistoryRecord) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	if overflow := len(l.records) - l.limit; overflow > 0 {
		l.records = append(l.records[:0:0], l.records[overflow:]...)
	}
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Append(rec); err != nil {
			l.logger.Warn("could not persist history record",
				"job_id", rec.JobID, "error", err)
		}
	}
}

// Recent returns up to n records, newest first.
func (l *Ledger) Recent(n int) []datatypes.HistoryRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]datatypes.HistoryRecord, n)
	for i := range n {
		out[i] = l.records[len(l.records)-1-i]
	}
	return out
}

// Len returns the working-set size.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// TodayStats aggregates the current UTC day.
func (l *Ledger) TodayStats() datatypes.DailyStats {
	day := l.now().UTC().Format("2006-01-02")
	return l.DailyStats(day)
}

// DailyStats aggregates one UTC day bucket ("2006-01-02").
func (l *Ledger) DailyStats(day string) datatypes.DailyStats {
	return l.aggregate(day, func(rec datatypes.HistoryRecord) bool {
		return rec.Day() == day
	})
}

// StatsSince aggregates every record started at or after cutoff, under
// the given report label.
func (l *Ledger) StatsSince(cutoff time.Time, label string) datatypes.DailyStats {
	return l.aggregate(label, func(rec datatypes.HistoryRecord) bool {
		return !rec.StartedAt.Before(cutoff)
	})
}

func (l *Ledger) aggregate(label string, keep func(datatypes.HistoryRecord) bool) datatypes.DailyStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := datatypes.DailyStats{Date: label}
	var totalDuration float64
	for _, rec := range l.records {
		if !keep(rec) {
			continue
		}
		stats.Count++
		if rec.Success {
			stats.SuccessCount++
		}
		totalDuration += rec.DurationSeconds
		stats.TotalTokens += rec.TotalTokens()
		stats.TotalCost += rec.Cost
	}
	if stats.Count > 0 {
		stats.SuccessRate = 100 * float64(stats.SuccessCount) / float64(stats.Count)
		stats.AvgDurationSecs = totalDuration / float64(stats.Count)
	}
	return stats
}

// Trends reports per-day statistics for the trailing window of days,
// oldest day first, plus a rolled-up summary. Days without records are
// omitted.
func (l *Ledger) Trends(days int) datatypes.TrendReport {
	cutoff := l.now().UTC().AddDate(0, 0, -days)

	l.mu.RLock()
	seen := make(map[string]bool)
	for _, rec := range l.records {
		if rec.StartedAt.Before(cutoff) {
			continue
		}
		seen[rec.Day()] = true
	}
	l.mu.RUnlock()

	dayKeys := make([]string, 0, len(seen))
	for day := range seen {
		dayKeys = append(dayKeys, day)
	}
	sort.Strings(dayKeys)

	report := datatypes.TrendReport{PeriodDays: days}
	for _, day := range dayKeys {
		daily := l.DailyStats(day)
		report.Daily = append(report.Daily, daily)
		report.Summary.TotalAnalyses += daily.Count
		report.Summary.TotalCost += daily.TotalCost
	}
	if report.Summary.TotalAnalyses > 0 {
		successes := 0
		for _, daily := range report.Daily {
			successes += daily.SuccessCount
		}
		report.Summary.OverallSuccessRate = 100 * float64(successes) / float64(report.Summary.TotalAnalyses)
		report.Summary.AvgCostPerAnalysis = report.Summary.TotalCost / float64(report.Summary.TotalAnalyses)
	}
	if len(report.Daily) > 0 {
		report.Summary.AvgDailyAnalyses = float64(report.Summary.TotalAnalyses) / float64(len(report.Daily))
	}
	return report
}

// TopErrors ranks failure classes by count, descending. Ties break
// alphabetically so the ranking is stable.
func (l *Ledger) TopErrors(limit int) []datatypes.ErrorCount {
	l.mu.RLock()
	counts := make(map[string]int)
	for _, rec := range l.records {
		if rec.ErrorClass != "" {
			counts[rec.ErrorClass]++
		}
	}
	l.mu.RUnlock()

	out := make([]datatypes.ErrorCount, 0, len(counts))
	for class, count := range counts {
		out = append(out, datatypes.ErrorCount{Class: class, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Class < out[j].Class
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ModelUsage counts records per model.
func (l *Ledger) ModelUsage() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	usage := make(map[string]int)
	for _, rec := range l.records {
		usage[rec.Model]++
	}
	return usage
}

// Prune drops records older than the retention window and returns how
// many were removed. Intended to run on a daily ticker.
func (l *Ledger) Prune() int {
	cutoff := l.now().Add(-l.retention)

	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.records[:0]
	for _, rec := range l.records {
		if !rec.StartedAt.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	dropped := len(l.records) - len(kept)
	l.records = kept
	return dropped
}

// Close releases the persistence backend, if any.
func (l *Ledger) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}
