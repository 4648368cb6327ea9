// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the analysis orchestration core: request
// fingerprinting, the TTL result cache, in-flight deduplication, and
// bounded admission to the LLM backend.
//
// The flow for one submission is: fingerprint, cache lookup, registry
// claim, admission, upstream call, then publication. Publication order
// is fixed — cache write, history append, registry removal, slot
// release, waiter wake-up — so a request arriving after its waiters are
// released always finds the result in the cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jfbm74/glpi-analytics/services/analytics/config"
	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
	"github.com/jfbm74/glpi-analytics/services/analytics/observability"
	"github.com/jfbm74/glpi-analytics/services/analytics/prompts"
	"github.com/jfbm74/glpi-analytics/services/llm"
)

// HistorySink receives one record per terminal job.
type HistorySink interface {
	Append(datatypes.HistoryRecord)
}

// Options configures a new Orchestrator. Ledger and Metrics may be nil.
type Options struct {
	Invoker llm.Client
	Prompts *prompts.Builder
	Ledger  HistorySink
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Config  config.Config
}

// Orchestrator coordinates analysis jobs end to end.
type Orchestrator struct {
	invoker   llm.Client
	prompts   *prompts.Builder
	cache     *ResultCache
	registry  *Registry
	admission *Admission
	ledger    HistorySink
	metrics   *observability.Metrics
	logger    *slog.Logger
	cfg       config.Config
	genParams llm.GenerationParams
	now       func() time.Time
}

// New builds an Orchestrator from opts.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config

	temperature := cfg.Temperature
	topP := cfg.TopP
	topK := cfg.TopK
	maxTokens := cfg.MaxOutputTokens

	return &Orchestrator{
		invoker:   opts.Invoker,
		prompts:   opts.Prompts,
		cache:     NewResultCache(cfg.CacheTTL),
		registry:  NewRegistry(),
		admission: NewAdmission(cfg.MaxConcurrentAnalyses, cfg.AdmissionWait, cfg.FailFastAdmission),
		ledger:    opts.Ledger,
		metrics:   opts.Metrics,
		logger:    logger,
		cfg:       cfg,
		genParams: llm.GenerationParams{
			Temperature: &temperature,
			TopP:        &topP,
			TopK:        &topK,
			MaxTokens:   &maxTokens,
		},
		now: time.Now,
	}
}

// Submit runs one analysis request through the full pipeline. Concurrent
// submissions with the same fingerprint share a single upstream call and
// receive the same *AnalysisResult.
func (o *Orchestrator) Submit(ctx context.Context, req datatypes.AnalysisRequest) (*datatypes.AnalysisResult, error) {
	fingerprint, err := Fingerprint(req)
	if err != nil {
		return nil, err
	}

	if cached, ok := o.cache.Get(fingerprint); ok {
		o.metrics.RecordCacheLookup(true)
		o.logger.Debug("cache hit", "fingerprint", fingerprint, "analysis_type", req.Type)
		return cached, nil
	}
	o.metrics.RecordCacheLookup(false)

	j, owner, err := o.registry.Claim(fingerprint, req.Type, o.invoker.Model())
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", fingerprint, err)
	}
	if !owner {
		o.metrics.RecordDedup()
		o.logger.Debug("attached to in-flight job",
			"fingerprint", fingerprint, "job_id", j.id)
		return o.await(ctx, j)
	}
	return o.run(ctx, j, req)
}

// await blocks until the shared job completes or the waiter's own
// context expires. A waiter giving up never affects the job itself.
func (o *Orchestrator) await(ctx context.Context, j *job) (*datatypes.AnalysisResult, error) {
	j.waiters.Add(1)
	defer j.waiters.Add(-1)

	select {
	case <-j.done:
		if j.err != nil {
			return nil, j.err
		}
		return j.result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("waiter gave up on job %s: %w", j.id, ErrCancelled)
		}
		return nil, fmt.Errorf("waiter deadline on job %s: %w", j.id, ErrAdmissionTimeout)
	}
}

// run executes the owned job: build the prompt, get admitted, call the
// backend, publish. The upstream call is detached from the caller's
// cancellation: once admitted, an analysis runs to completion so its
// result can still be cached for the next identical request.
func (o *Orchestrator) run(ctx context.Context, j *job, req datatypes.AnalysisRequest) (*datatypes.AnalysisResult, error) {
	prompt, err := o.prompts.Build(req)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		o.abandon(j, err)
		return nil, err
	}

	if err := o.admission.Acquire(ctx); err != nil {
		o.logger.Warn("admission rejected",
			"fingerprint", j.fingerprint, "error", err,
			"in_flight", o.admission.InFlight())
		o.abandon(j, err)
		return nil, err
	}
	j.admitted.Store(true)
	o.metrics.SetActiveJobs(o.admission.InFlight())
	o.logger.Info("analysis started",
		"job_id", j.id, "analysis_type", j.typ,
		"model", j.model, "fingerprint", j.fingerprint)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.RequestTimeout)
	defer cancel()
	completion, callErr := o.invoker.Generate(callCtx, prompt, o.genParams)
	duration := o.now().Sub(j.startedAt)

	if callErr != nil {
		callErr = llm.Classify(j.model, callErr)
		o.logger.Error("analysis failed",
			"job_id", j.id, "analysis_type", j.typ,
			"duration_seconds", duration.Seconds(), "error", callErr)
		o.publish(j, nil, callErr, duration)
		return nil, callErr
	}

	result := &datatypes.AnalysisResult{
		Fingerprint:    j.fingerprint,
		Type:           j.typ,
		Text:           completion.Text,
		ModelUsed:      completion.Model,
		PromptTokens:   completion.PromptTokens,
		ResponseTokens: completion.ResponseTokens,
		CostEstimate:   o.cfg.CostFor(completion.Model, completion.PromptTokens+completion.ResponseTokens),
		ProducedAt:     o.now(),
	}
	o.logger.Info("analysis completed",
		"job_id", j.id, "analysis_type", j.typ,
		"duration_seconds", duration.Seconds(),
		"tokens", completion.PromptTokens+completion.ResponseTokens,
		"cost_estimate", result.CostEstimate)
	o.publish(j, result, nil, duration)
	return result, nil
}

// publish finishes an admitted job in the fixed order: cache, history,
// registry, slot, waiters. Failed jobs are never cached.
func (o *Orchestrator) publish(j *job, result *datatypes.AnalysisResult, err error, duration time.Duration) {
	if err == nil {
		o.cache.Put(j.fingerprint, result)
	}
	o.appendHistory(j, result, err, duration)
	o.registry.Complete(j, result, err)
	o.admission.Release()
	o.metrics.SetActiveJobs(o.admission.InFlight())
	close(j.done)
}

// abandon finishes a job that never got admitted. No slot to release.
func (o *Orchestrator) abandon(j *job, err error) {
	duration := o.now().Sub(j.startedAt)
	o.appendHistory(j, nil, err, duration)
	o.registry.Complete(j, nil, err)
	close(j.done)
}

func (o *Orchestrator) appendHistory(j *job, result *datatypes.AnalysisResult, err error, duration time.Duration) {
	rec := datatypes.HistoryRecord{
		JobID:           j.id,
		Type:            j.typ,
		Model:           j.model,
		StartedAt:       j.startedAt,
		DurationSeconds: duration.Seconds(),
		Success:         err == nil,
	}
	if err != nil {
		rec.ErrorClass = ErrorClass(err)
	}
	if result != nil {
		rec.PromptTokens = result.PromptTokens
		rec.ResponseTokens = result.ResponseTokens
		rec.Cost = result.CostEstimate
	}
	if o.ledger != nil {
		o.ledger.Append(rec)
	}

	status := "success"
	if err != nil {
		status = rec.ErrorClass
	}
	o.metrics.RecordAnalysis(string(j.typ), status, duration.Seconds())
	if result != nil {
		o.metrics.RecordTokens(result.ModelUsed, result.PromptTokens, result.ResponseTokens)
		o.metrics.RecordCost(result.ModelUsed, result.CostEstimate)
	}
}

// Cancel marks the in-flight job for fingerprint as cancelled. New
// submissions for that fingerprint are rejected until the job finishes;
// an admitted upstream call still runs to completion.
func (o *Orchestrator) Cancel(fingerprint string) bool {
	ok := o.registry.Cancel(fingerprint)
	if ok {
		o.logger.Info("job cancelled", "fingerprint", fingerprint)
	}
	return ok
}

// ActiveJobs returns snapshots of every admitted job.
func (o *Orchestrator) ActiveJobs() []datatypes.Job {
	return o.registry.Snapshot()
}

// ActiveCount returns how many analyses hold an upstream slot.
func (o *Orchestrator) ActiveCount() int {
	return o.admission.InFlight()
}

// AtCapacity reports whether the admission ceiling is reached.
func (o *Orchestrator) AtCapacity() bool {
	return o.admission.AtCapacity()
}

// CacheStats exposes result-cache counters.
func (o *Orchestrator) CacheStats() CacheStats {
	return o.cache.Stats()
}

// CacheSizeBytes estimates the result cache footprint.
func (o *Orchestrator) CacheSizeBytes() int64 {
	return o.cache.SizeBytes()
}

// InvalidateCached drops one cached result.
func (o *Orchestrator) InvalidateCached(fingerprint string) bool {
	return o.cache.Invalidate(fingerprint)
}

// ClearCache drops every cached result and returns the count removed.
func (o *Orchestrator) ClearCache() int {
	return o.cache.Clear()
}

// SweepCache removes expired cache entries.
func (o *Orchestrator) SweepCache() int {
	return o.cache.Sweep()
}

// Model returns the configured backend model name.
func (o *Orchestrator) Model() string {
	return o.invoker.Model()
}

// TestConnection sends a minimal prompt to the backend to verify
// credentials and reachability. The probe bypasses cache, registry, and
// admission: it must work even when the service is saturated.
func (o *Orchestrator) TestConnection(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	maxTokens := 16
	_, err := o.invoker.Generate(probeCtx, "Reply with the single word: ok", llm.GenerationParams{
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return llm.Classify(o.invoker.Model(), err)
	}
	return nil
}
