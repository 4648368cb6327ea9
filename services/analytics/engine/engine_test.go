// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfbm74/glpi-analytics/services/analytics/config"
	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
	"github.com/jfbm74/glpi-analytics/services/analytics/prompts"
	"github.com/jfbm74/glpi-analytics/services/llm"
)

// mockClient is an instrumented backend. When block is non-nil, Generate
// parks until the channel closes so tests can hold jobs in flight.
type mockClient struct {
	calls atomic.Int32
	block chan struct{}
	err   error
}

func (m *mockClient) Generate(ctx context.Context, prompt string, _ llm.GenerationParams) (*llm.Completion, error) {
	m.calls.Add(1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Completion{
		Text:           "strategic analysis for: " + prompt[:20],
		Model:          "mock-model",
		PromptTokens:   100,
		ResponseTokens: 50,
	}, nil
}

func (m *mockClient) Model() string { return "mock-model" }

type recordingSink struct {
	mu      sync.Mutex
	records []datatypes.HistoryRecord
}

func (s *recordingSink) Append(rec datatypes.HistoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *recordingSink) all() []datatypes.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]datatypes.HistoryRecord(nil), s.records...)
}

func newTestOrchestrator(client llm.Client, mutate func(*config.Config)) (*Orchestrator, *recordingSink) {
	cfg := config.Default()
	cfg.AdmissionWait = 200 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	sink := &recordingSink{}
	return New(Options{
		Invoker: client,
		Prompts: prompts.NewBuilder(),
		Ledger:  sink,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  cfg,
	}), sink
}

func requestWithTickets(n int) datatypes.AnalysisRequest {
	return datatypes.AnalysisRequest{
		Type: datatypes.AnalysisComprehensive,
		Metrics: datatypes.MetricsSnapshot{
			Timestamp:      time.Now(),
			TotalTickets:   n,
			ResolutionRate: 90,
			SLACompliance:  97,
			AverageCSAT:    4.1,
		},
	}
}

func TestSubmitCachesResult(t *testing.T) {
	client := &mockClient{}
	orc, sink := newTestOrchestrator(client, nil)

	first, err := orc.Submit(context.Background(), requestWithTickets(10))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "mock-model", first.ModelUsed)
	assert.InDelta(t, 150*0.00001, first.CostEstimate, 1e-12)

	// Same metrics, new timestamp: must come straight from the cache.
	second, err := orc.Submit(context.Background(), requestWithTickets(10))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), client.calls.Load())
	assert.Len(t, sink.all(), 1)
}

func TestConcurrentIdenticalRequestsShareOneCall(t *testing.T) {
	client := &mockClient{block: make(chan struct{})}
	orc, sink := newTestOrchestrator(client, nil)

	const submitters = 5
	results := make([]*datatypes.AnalysisResult, submitters)
	errs := make([]error, submitters)
	var wg sync.WaitGroup
	for i := range submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = orc.Submit(context.Background(), requestWithTickets(10))
		}()
	}

	// Wait for the owner to reach the backend and the rest to attach.
	require.Eventually(t, func() bool {
		jobs := orc.ActiveJobs()
		return len(jobs) == 1 && jobs[0].Waiters == submitters-1
	}, 2*time.Second, 5*time.Millisecond)

	close(client.block)
	wg.Wait()

	for i := range submitters {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i], "submitter %d got a different result", i)
	}
	assert.Equal(t, int32(1), client.calls.Load())
	assert.Len(t, sink.all(), 1)
	assert.Empty(t, orc.ActiveJobs())
	assert.Zero(t, orc.ActiveCount())
}

func TestAdmissionCeilingRejectsDistinctRequest(t *testing.T) {
	client := &mockClient{block: make(chan struct{})}
	orc, sink := newTestOrchestrator(client, func(c *config.Config) {
		c.MaxConcurrentAnalyses = 1
		c.FailFastAdmission = true
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := orc.Submit(context.Background(), requestWithTickets(1))
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return orc.AtCapacity() }, 2*time.Second, 5*time.Millisecond)

	_, err := orc.Submit(context.Background(), requestWithTickets(2))
	require.ErrorIs(t, err, ErrAdmissionTimeout)

	close(client.block)
	<-done

	records := sink.all()
	require.Len(t, records, 2)
	classes := map[string]bool{}
	for _, rec := range records {
		classes[rec.ErrorClass] = true
	}
	assert.True(t, classes["admission_timeout"], "rejection missing from history: %+v", records)
	assert.True(t, classes[""], "success missing from history: %+v", records)
}

func TestFailureIsNotCached(t *testing.T) {
	client := &mockClient{err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}}
	orc, sink := newTestOrchestrator(client, nil)

	_, err := orc.Submit(context.Background(), requestWithTickets(10))
	require.Error(t, err)
	assert.Equal(t, string(llm.FailureQuota), ErrorClass(err))

	// A retry must reach the backend again.
	_, err = orc.Submit(context.Background(), requestWithTickets(10))
	require.Error(t, err)
	assert.Equal(t, int32(2), client.calls.Load())

	for _, rec := range sink.all() {
		assert.False(t, rec.Success)
		assert.Equal(t, string(llm.FailureQuota), rec.ErrorClass)
	}
	assert.Empty(t, orc.ActiveJobs())
	assert.Zero(t, orc.ActiveCount())
}

func TestWaiterCancellationLeavesJobRunning(t *testing.T) {
	client := &mockClient{block: make(chan struct{})}
	orc, _ := newTestOrchestrator(client, nil)

	ownerDone := make(chan *datatypes.AnalysisResult, 1)
	go func() {
		res, err := orc.Submit(context.Background(), requestWithTickets(10))
		assert.NoError(t, err)
		ownerDone <- res
	}()
	require.Eventually(t, func() bool { return len(orc.ActiveJobs()) == 1 }, 2*time.Second, 5*time.Millisecond)

	waiterCtx, cancelWaiter := context.WithCancel(context.Background())
	waiterErr := make(chan error, 1)
	go func() {
		_, err := orc.Submit(waiterCtx, requestWithTickets(10))
		waiterErr <- err
	}()
	require.Eventually(t, func() bool {
		jobs := orc.ActiveJobs()
		return len(jobs) == 1 && jobs[0].Waiters == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancelWaiter()
	require.ErrorIs(t, <-waiterErr, ErrCancelled)

	close(client.block)
	res := <-ownerDone
	require.NotNil(t, res)

	// The abandoned waiter's retry is now a pure cache hit.
	again, err := orc.Submit(context.Background(), requestWithTickets(10))
	require.NoError(t, err)
	assert.Same(t, res, again)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestCancelRejectsNewSubmissions(t *testing.T) {
	client := &mockClient{block: make(chan struct{})}
	orc, _ := newTestOrchestrator(client, nil)

	ownerDone := make(chan error, 1)
	go func() {
		_, err := orc.Submit(context.Background(), requestWithTickets(10))
		ownerDone <- err
	}()
	require.Eventually(t, func() bool { return len(orc.ActiveJobs()) == 1 }, 2*time.Second, 5*time.Millisecond)

	fp := orc.ActiveJobs()[0].Fingerprint
	require.True(t, orc.Cancel(fp))
	assert.False(t, orc.Cancel("no-such-fingerprint"))

	_, err := orc.Submit(context.Background(), requestWithTickets(10))
	require.ErrorIs(t, err, ErrCancelled)

	// The admitted call still runs to completion and lands in the cache.
	close(client.block)
	require.NoError(t, <-ownerDone)
	res, err := orc.Submit(context.Background(), requestWithTickets(10))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestOwnerCancellationDetachedFromUpstream(t *testing.T) {
	client := &mockClient{block: make(chan struct{})}
	orc, _ := newTestOrchestrator(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := orc.Submit(ctx, requestWithTickets(10))
		done <- err
	}()
	require.Eventually(t, func() bool { return len(orc.ActiveJobs()) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Cancelling the submitter after admission must not kill the call.
	cancel()
	close(client.block)
	require.NoError(t, <-done)

	res, err := orc.Submit(context.Background(), requestWithTickets(10))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestCacheTTLExpiryReinvokes(t *testing.T) {
	client := &mockClient{}
	orc, _ := newTestOrchestrator(client, nil)
	clock := time.Now()
	orc.cache.now = func() time.Time { return clock }

	_, err := orc.Submit(context.Background(), requestWithTickets(10))
	require.NoError(t, err)
	_, err = orc.Submit(context.Background(), requestWithTickets(10))
	require.NoError(t, err)
	require.Equal(t, int32(1), client.calls.Load())

	clock = clock.Add(2 * time.Hour)
	_, err = orc.Submit(context.Background(), requestWithTickets(10))
	require.NoError(t, err)
	assert.Equal(t, int32(2), client.calls.Load(), "expired entry must trigger a fresh call")
}

func TestDistinctFingerprintsRunConcurrently(t *testing.T) {
	client := &mockClient{block: make(chan struct{})}
	orc, _ := newTestOrchestrator(client, nil)

	var wg sync.WaitGroup
	for _, tickets := range []int{1, 2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orc.Submit(context.Background(), requestWithTickets(tickets))
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return orc.ActiveCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, orc.ActiveJobs(), 2)

	close(client.block)
	wg.Wait()
	assert.Equal(t, int32(2), client.calls.Load())
	assert.Zero(t, orc.ActiveCount())
}

func TestSubmitInvalidRequest(t *testing.T) {
	client := &mockClient{}
	orc, sink := newTestOrchestrator(client, nil)

	req := requestWithTickets(10)
	req.Type = "made-up"
	_, err := orc.Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, client.calls.Load())
	assert.Empty(t, sink.all(), "rejected requests never touch the ledger")
}

func TestTestConnection(t *testing.T) {
	orc, _ := newTestOrchestrator(&mockClient{}, nil)
	require.NoError(t, orc.TestConnection(context.Background()))

	failing, _ := newTestOrchestrator(&mockClient{
		err: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized},
	}, nil)
	err := failing.TestConnection(context.Background())
	require.Error(t, err)
	assert.Equal(t, llm.FailureAuth, llm.ClassOf(err))
}
