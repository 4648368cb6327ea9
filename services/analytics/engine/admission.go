// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Admission bounds how many analyses may hold an upstream slot at once.
// Callers either wait up to maxWait for a slot or, in fail-fast mode,
// are rejected immediately when the ceiling is reached.
type Admission struct {
	sem      *semaphore.Weighted
	limit    int64
	inFlight atomic.Int64
	maxWait  time.Duration
	failFast bool
}

// NewAdmission builds an Admission with the given concurrency ceiling.
func NewAdmission(limit int, maxWait time.Duration, failFast bool) *Admission {
	return &Admission{
		sem:      semaphore.NewWeighted(int64(limit)),
		limit:    int64(limit),
		maxWait:  maxWait,
		failFast: failFast,
	}
}

// Acquire claims one slot. It returns ErrAdmissionTimeout when no slot
// frees up within the wait budget and ErrCancelled when the caller's
// context is cancelled while queued.
func (a *Admission) Acquire(ctx context.Context) error {
	if a.failFast {
		if !a.sem.TryAcquire(1) {
			return fmt.Errorf("%w: all %d slots busy", ErrAdmissionTimeout, a.limit)
		}
		a.inFlight.Add(1)
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.maxWait)
	defer cancel()
	if err := a.sem.Acquire(waitCtx, 1); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("caller abandoned admission queue: %w", ErrCancelled)
		}
		return fmt.Errorf("%w after %s", ErrAdmissionTimeout, a.maxWait)
	}
	a.inFlight.Add(1)
	return nil
}

// Release returns a slot claimed by a successful Acquire.
func (a *Admission) Release() {
	a.inFlight.Add(-1)
	a.sem.Release(1)
}

// InFlight returns how many slots are currently held.
func (a *Admission) InFlight() int {
	return int(a.inFlight.Load())
}

// Limit returns the concurrency ceiling.
func (a *Admission) Limit() int {
	return int(a.limit)
}

// AtCapacity reports whether every slot is held.
func (a *Admission) AtCapacity() bool {
	return a.inFlight.Load() >= a.limit
}
