// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability defines the Prometheus metrics exported by the
// analytics service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "glpi_analytics"
	subsystem = "ai"
)

// Metrics bundles every collector the service exports. A nil *Metrics is
// safe to call: all record methods no-op, which keeps tests free of
// registry bookkeeping.
type Metrics struct {
	analysesTotal   *prometheus.CounterVec
	analysisSeconds *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	dedupTotal      prometheus.Counter
	tokensTotal     *prometheus.CounterVec
	costTotal       *prometheus.CounterVec
	activeJobs      prometheus.Gauge
}

// NewMetrics registers the service collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		analysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "analyses_total",
			Help:      "Completed analyses by type and outcome.",
		}, []string{"analysis_type", "status"}),
		analysisSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end analysis duration, admission wait included.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"analysis_type", "status"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"result"}),
		dedupTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deduplicated_requests_total",
			Help:      "Requests attached as waiters to an in-flight job.",
		}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tokens_total",
			Help:      "Tokens exchanged with the LLM backend.",
		}, []string{"model", "direction"}),
		costTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cost_usd_total",
			Help:      "Estimated upstream spend in USD.",
		}, []string{"model"}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_jobs",
			Help:      "Analyses currently holding an upstream slot.",
		}),
	}
}

// RecordAnalysis counts one terminal job and observes its duration.
func (m *Metrics) RecordAnalysis(analysisType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.analysesTotal.WithLabelValues(analysisType, status).Inc()
	m.analysisSeconds.WithLabelValues(analysisType, status).Observe(seconds)
}

// RecordCacheLookup counts a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordDedup counts a request folded into an in-flight job.
func (m *Metrics) RecordDedup() {
	if m == nil {
		return
	}
	m.dedupTotal.Inc()
}

// RecordTokens accounts the tokens of one completed upstream call.
func (m *Metrics) RecordTokens(model string, promptTokens, responseTokens int) {
	if m == nil {
		return
	}
	m.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	m.tokensTotal.WithLabelValues(model, "response").Add(float64(responseTokens))
}

// RecordCost adds the estimated USD cost of one call.
func (m *Metrics) RecordCost(model string, usd float64) {
	if m == nil {
		return
	}
	m.costTotal.WithLabelValues(model).Add(usd)
}

// SetActiveJobs publishes the current admitted-job count.
func (m *Metrics) SetActiveJobs(n int) {
	if m == nil {
		return
	}
	m.activeJobs.Set(float64(n))
}
