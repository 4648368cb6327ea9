// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the request, result, and reporting types
// shared between the analytics engine, handlers, and monitoring.
package datatypes

import "time"

// AnalysisType identifies one of the fixed strategic report flavors.
type AnalysisType string

const (
	AnalysisComprehensive AnalysisType = "comprehensive"
	AnalysisQuick         AnalysisType = "quick"
	AnalysisTechnician    AnalysisType = "technician"
	AnalysisSLA           AnalysisType = "sla"
	AnalysisTrends        AnalysisType = "trends"
	AnalysisCost          AnalysisType = "cost"
	AnalysisCustom        AnalysisType = "custom"
)

// AnalysisTypes lists every supported type in a stable order.
func AnalysisTypes() []AnalysisType {
	return []AnalysisType{
		AnalysisComprehensive,
		AnalysisQuick,
		AnalysisTechnician,
		AnalysisSLA,
		AnalysisTrends,
		AnalysisCost,
		AnalysisCustom,
	}
}

// Valid reports whether t is a known analysis type.
func (t AnalysisType) Valid() bool {
	switch t {
	case AnalysisComprehensive, AnalysisQuick, AnalysisTechnician,
		AnalysisSLA, AnalysisTrends, AnalysisCost, AnalysisCustom:
		return true
	}
	return false
}

// Description returns the operator-facing description shown by the
// available-types endpoint.
func (t AnalysisType) Description() string {
	switch t {
	case AnalysisComprehensive:
		return "Full strategic review of every dashboard KPI"
	case AnalysisQuick:
		return "Fast summary of the main KPIs"
	case AnalysisTechnician:
		return "Per-technician workload and performance breakdown"
	case AnalysisSLA:
		return "SLA compliance review for a clinical environment"
	case AnalysisTrends:
		return "Temporal trend analysis and forecast"
	case AnalysisCost:
		return "Cost optimization opportunities"
	case AnalysisCustom:
		return "Custom analysis driven by a caller-supplied focus"
	default:
		return "Unknown analysis type"
	}
}

// MetricsSnapshot is the structured numeric summary produced by the
// dashboard's metrics engine. It is treated as opaque by the orchestration
// core except for fingerprint normalization.
//
// The Timestamp field records when the snapshot was taken and is excluded
// from fingerprints: two snapshots with identical numbers taken a second
// apart must collapse to the same cache key.
type MetricsSnapshot struct {
	Timestamp      time.Time                 `json:"timestamp,omitempty"`
	TotalTickets   int                       `json:"total_tickets"`
	ResolutionRate float64                   `json:"resolution_rate"`
	SLACompliance  float64                   `json:"sla_compliance"`
	AverageCSAT    float64                   `json:"average_csat"`
	Distributions  map[string]map[string]int `json:"distributions,omitempty"`
	DataQuality    map[string]float64        `json:"data_quality,omitempty"`
}

// AnalysisRequest describes one ask for a strategic report. Immutable
// once created.
type AnalysisRequest struct {
	Type              AnalysisType    `json:"analysis_type" binding:"required,analysistype"`
	Metrics           MetricsSnapshot `json:"metrics" binding:"required"`
	CustomFocus       string          `json:"custom_focus,omitempty"`
	SpecificQuestions []string        `json:"specific_questions,omitempty"`
}

// AnalysisResult is the materialized output of one upstream call. Shared
// by reference among every waiter of the job that produced it, and stored
// in the result cache keyed by fingerprint.
type AnalysisResult struct {
	Fingerprint    string       `json:"fingerprint"`
	Type           AnalysisType `json:"analysis_type"`
	Text           string       `json:"analysis"`
	ModelUsed      string       `json:"model_used"`
	PromptTokens   int          `json:"prompt_tokens"`
	ResponseTokens int          `json:"response_tokens"`
	CostEstimate   float64      `json:"cost_estimate"`
	ProducedAt     time.Time    `json:"produced_at"`
}

// Job is a point-in-time snapshot of one in-flight analysis, used by the
// status and health endpoints.
type Job struct {
	ID              string       `json:"id"`
	Fingerprint     string       `json:"fingerprint"`
	Type            AnalysisType `json:"analysis_type"`
	Model           string       `json:"model"`
	StartedAt       time.Time    `json:"started_at"`
	DurationSeconds float64      `json:"duration_seconds"`
	Waiters         int          `json:"waiters"`
}

// HistoryRecord is the append-only ledger entry for one terminal job.
type HistoryRecord struct {
	JobID           string       `json:"job_id"`
	Type            AnalysisType `json:"analysis_type"`
	Model           string       `json:"model"`
	StartedAt       time.Time    `json:"started_at"`
	DurationSeconds float64      `json:"duration_seconds"`
	Success         bool         `json:"success"`
	ErrorClass      string       `json:"error_class,omitempty"`
	PromptTokens    int          `json:"prompt_tokens"`
	ResponseTokens  int          `json:"response_tokens"`
	Cost            float64      `json:"cost"`
}

// TotalTokens returns prompt plus response tokens.
func (r HistoryRecord) TotalTokens() int {
	return r.PromptTokens + r.ResponseTokens
}

// Day returns the record's UTC day bucket in "2006-01-02" form.
func (r HistoryRecord) Day() string {
	return r.StartedAt.UTC().Format("2006-01-02")
}

// DailyStats aggregates one day of ledger records.
type DailyStats struct {
	Date            string  `json:"date"`
	Count           int     `json:"total_analyses"`
	SuccessCount    int     `json:"successful_analyses"`
	SuccessRate     float64 `json:"success_rate"`
	AvgDurationSecs float64 `json:"avg_processing_time"`
	TotalTokens     int     `json:"total_tokens"`
	TotalCost       float64 `json:"total_cost"`
}

// TrendSummary rolls the per-day stats of a trend window into totals.
type TrendSummary struct {
	TotalAnalyses      int     `json:"total_analyses"`
	OverallSuccessRate float64 `json:"overall_success_rate"`
	AvgDailyAnalyses   float64 `json:"avg_daily_analyses"`
	TotalCost          float64 `json:"total_cost"`
	AvgCostPerAnalysis float64 `json:"avg_cost_per_analysis"`
}

// TrendReport is the trends endpoint payload.
type TrendReport struct {
	PeriodDays int          `json:"period_days"`
	Daily      []DailyStats `json:"daily_trends"`
	Summary    TrendSummary `json:"summary"`
}

// ErrorCount is one entry of the top-errors ranking.
type ErrorCount struct {
	Class string `json:"error_class"`
	Count int    `json:"count"`
}

// SystemSnapshot captures host and process resource usage at one instant.
type SystemSnapshot struct {
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	DiskPercent    float64   `json:"disk_percent"`
	CacheSizeBytes int64     `json:"cache_size_bytes"`
	Timestamp      time.Time `json:"timestamp"`
}

// HealthStatus classifies overall system health.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthBusy     HealthStatus = "busy"
)

// HealthReport is the health endpoint payload.
type HealthReport struct {
	Status      HealthStatus `json:"status"`
	Issues      []string     `json:"issues"`
	Warnings    []string     `json:"warnings"`
	StuckJobs   []Job        `json:"stuck_jobs"`
	ActiveCount int          `json:"active_analyses_count"`
	Timestamp   time.Time    `json:"timestamp"`
}

// StatusReport is the system-status endpoint payload.
type StatusReport struct {
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	ActiveCount int             `json:"active_count"`
	ActiveJobs  []Job           `json:"active_jobs"`
	TodayStats  DailyStats      `json:"today_stats"`
	Last24h     DailyStats      `json:"last_24h_stats"`
	System      *SystemSnapshot `json:"system_metrics,omitempty"`
	ModelUsage  map[string]int  `json:"model_usage"`
	TopErrors   []ErrorCount    `json:"top_errors"`
}
