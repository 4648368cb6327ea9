// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"sync"
	"time"

	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
)

// CacheStats summarizes cache effectiveness for the status endpoint.
type CacheStats struct {
	Entries   int     `json:"entries"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	SizeBytes int64   `json:"size_bytes"`
}

type cacheEntry struct {
	result    *datatypes.AnalysisResult
	expiresAt time.Time
}

// ResultCache is a TTL cache of completed analysis results, keyed by
// request fingerprint. Expired entries are dropped lazily on read and by
// the periodic Sweep.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	hits    int64
	misses  int64
	now     func() time.Time
}

// NewResultCache builds a cache whose entries live for ttl.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the live entry for fingerprint, if any. Expired entries
// count as misses and are removed.
func (c *ResultCache) Get(fingerprint string) (*datatypes.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, fingerprint)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.result, true
}

// Put stores result under fingerprint with the default TTL, replacing
// any previous entry.
func (c *ResultCache) Put(fingerprint string, result *datatypes.AnalysisResult) {
	c.PutWithTTL(fingerprint, result, c.ttl)
}

// PutWithTTL stores result with an explicit lifetime.
func (c *ResultCache) PutWithTTL(fingerprint string, result *datatypes.AnalysisResult, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = cacheEntry{result: result, expiresAt: c.now().Add(ttl)}
}

// Invalidate removes one entry, reporting whether it existed.
func (c *ResultCache) Invalidate(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[fingerprint]
	delete(c.entries, fingerprint)
	return ok
}

// Clear drops every entry and returns how many were removed.
func (c *ResultCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]cacheEntry)
	return n
}

// Sweep removes expired entries and returns how many were dropped.
func (c *ResultCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	dropped := 0
	for fp, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, fp)
			dropped++
		}
	}
	return dropped
}

// Len returns the current entry count, expired entries included.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SizeBytes estimates the cache's memory footprint from the stored
// analysis texts. Used by the health monitor's cache threshold.
func (c *ResultCache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for fp, entry := range c.entries {
		total += int64(len(fp)) + int64(len(entry.result.Text)) + int64(len(entry.result.ModelUsed))
	}
	return total
}

// Stats returns a point-in-time snapshot of cache counters.
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		stats.HitRate = float64(c.hits) / float64(lookups)
	}
	for fp, entry := range c.entries {
		stats.SizeBytes += int64(len(fp)) + int64(len(entry.result.Text)) + int64(len(entry.result.ModelUsed))
	}
	return stats
}
