// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
)

const recordPrefix = "history/"

// BadgerConfig configures the on-disk history store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// Retention is applied as a TTL on every record so badger garbage
	// collects expired history without an explicit sweep.
	Retention time.Duration

	Logger *slog.Logger
}

// DefaultBadgerConfig returns the production configuration.
func DefaultBadgerConfig(path string, retentionDays int) BadgerConfig {
	return BadgerConfig{
		Path:      path,
		Retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// InMemoryBadgerConfig returns a config suitable for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true, Retention: 30 * 24 * time.Hour}
}

// BadgerStore persists history records in a badger key-value store.
// Keys are ordered by start time so Load streams records oldest first.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
}

// OpenBadger opens (or creates) the store described by cfg.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(badgerLogger{logger})
	if cfg.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store at %q: %w", cfg.Path, err)
	}
	return &BadgerStore{db: db, retention: cfg.Retention}, nil
}

// Append persists one record under a time-ordered key.
func (s *BadgerStore) Append(rec datatypes.HistoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode history record %s: %w", rec.JobID, err)
	}
	key := fmt.Sprintf("%s%s/%s", recordPrefix, rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.JobID)

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if s.retention > 0 {
			entry = entry.WithTTL(s.retention)
		}
		return txn.SetEntry(entry)
	})
}

// Load returns up to limit of the most recent records, oldest first.
func (s *BadgerStore) Load(limit int) ([]datatypes.HistoryRecord, error) {
	var records []datatypes.HistoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(recordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec datatypes.HistoryRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("decode history record %s: %w", it.Item().Key(), err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// Close flushes and closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger adapts badger's logging interface onto slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
