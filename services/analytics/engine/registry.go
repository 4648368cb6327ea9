// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
)

// job is the registry's record of one in-flight analysis. The owning
// goroutine fills result/err and closes done exactly once; waiters read
// those fields only after done is closed.
type job struct {
	id          string
	fingerprint string
	typ         datatypes.AnalysisType
	model       string
	startedAt   time.Time

	admitted  atomic.Bool
	cancelled atomic.Bool
	waiters   atomic.Int32

	done   chan struct{}
	result *datatypes.AnalysisResult
	err    error
}

// Registry tracks in-flight jobs by fingerprint so that concurrent
// identical requests share one upstream call.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*job
	now  func() time.Time
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*job),
		now:  time.Now,
	}
}

// Claim registers fingerprint if it is free and returns (job, true).
// If a job already exists, the caller becomes a waiter and gets
// (job, false) — unless that job was cancelled, in which case the claim
// is rejected with ErrCancelled.
func (r *Registry) Claim(fingerprint string, typ datatypes.AnalysisType, model string) (*job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.jobs[fingerprint]; ok {
		if existing.cancelled.Load() {
			return nil, false, ErrCancelled
		}
		return existing, false, nil
	}

	j := &job{
		id:          uuid.NewString(),
		fingerprint: fingerprint,
		typ:         typ,
		model:       model,
		startedAt:   r.now(),
		done:        make(chan struct{}),
	}
	r.jobs[fingerprint] = j
	return j, true, nil
}

// Complete records the job's outcome and removes it from the registry.
// The owner must close j.done after Complete returns; that close is what
// publishes result and err to waiters.
func (r *Registry) Complete(j *job, result *datatypes.AnalysisResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.jobs[j.fingerprint]; ok && current == j {
		delete(r.jobs, j.fingerprint)
	}
	j.result = result
	j.err = err
}

// Cancel marks the job for fingerprint as cancelled so that no new
// waiters can attach. The upstream call, if already admitted, runs to
// completion and its result is still cached.
func (r *Registry) Cancel(fingerprint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[fingerprint]
	if !ok {
		return false
	}
	j.cancelled.Store(true)
	return true
}

// Get returns the in-flight job for fingerprint, if any.
func (r *Registry) Get(fingerprint string) (*job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[fingerprint]
	return j, ok
}

// Snapshot returns point-in-time views of every admitted job. Jobs still
// queued for admission are excluded: they hold no upstream slot yet.
func (r *Registry) Snapshot() []datatypes.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]datatypes.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if !j.admitted.Load() {
			continue
		}
		out = append(out, datatypes.Job{
			ID:              j.id,
			Fingerprint:     j.fingerprint,
			Type:            j.typ,
			Model:           j.model,
			StartedAt:       j.startedAt,
			DurationSeconds: now.Sub(j.startedAt).Seconds(),
			Waiters:         int(j.waiters.Load()),
		})
	}
	return out
}

// Len returns the number of registered jobs, queued ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
