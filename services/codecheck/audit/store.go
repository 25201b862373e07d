// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists validation audit records.
//
// Records are stored in an embedded BadgerDB keyed by creation time so that
// listing newest-first is a reverse prefix scan. Each record may carry a
// retention TTL; Badger drops expired entries on read and compaction.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

// ErrStoreClosed is returned by operations on a closed Store.
var ErrStoreClosed = errors.New("audit store closed")

const (
	// DefaultListLimit is used when Filter.Limit is zero.
	DefaultListLimit = 50

	// MaxListLimit caps Filter.Limit.
	MaxListLimit = 1000
)

var recordPrefix = []byte("audit/")

// Config holds configuration for the audit store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps records in memory only. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Retention is the TTL applied to each record. Zero keeps records forever.
	Retention time.Duration

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable ratio before GC rewrites a file.
	GCDiscardRatio float64

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		Retention:      30 * 24 * time.Hour,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Filter selects records for List.
type Filter struct {
	// ActorID restricts results to one actor. Empty matches all.
	ActorID string

	// Limit bounds the number of records. Zero selects DefaultListLimit.
	Limit int
}

// Store is a BadgerDB-backed audit store. It implements validate.AuditSink.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db        *badger.DB
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	closed bool

	stopGC chan struct{}
	gcDone chan struct{}
}

var _ validate.AuditSink = (*Store)(nil)

// Open opens the audit store.
//
// Description:
//
//	Opens BadgerDB at cfg.Path, creating the directory if needed, or in
//	memory when cfg.InMemory is set. Starts value log GC when configured
//	for a persistent store.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The store. Caller must Close it.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent audit store")
	}
	if cfg.Retention < 0 {
		return nil, fmt.Errorf("retention must not be negative, got %s", cfg.Retention)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create audit directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	s := &Store{
		db:        db,
		retention: cfg.Retention,
		logger:    logger,
		now:       time.Now,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return s, nil
}

// OpenInMemory opens an in-memory store with no retention.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing to collect.
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("audit value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// recordKey orders records by creation time; the ID breaks ties.
func recordKey(createdAt time.Time, id string) []byte {
	key := make([]byte, 0, len(recordPrefix)+8+1+len(id))
	key = append(key, recordPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(createdAt.UnixNano()))
	key = append(key, '/')
	return append(key, id...)
}

// Record stores one audit record.
//
// Description:
//
//	Assigns an ID and CreatedAt when missing, then writes the record as
//	JSON with the configured retention TTL.
//
// Inputs:
//
//	ctx - Checked for cancellation before the write.
//	rec - The record.
//
// Outputs:
//
//	error - Non-nil if the store is closed or the write fails.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Record(ctx context.Context, rec validate.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	entry := badger.NewEntry(recordKey(rec.CreatedAt, rec.ID), data)
	if s.retention > 0 {
		entry = entry.WithTTL(s.retention)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	}); err != nil {
		return fmt.Errorf("write audit record %s: %w", rec.ID, err)
	}
	return nil
}

// List returns records newest first.
//
// Inputs:
//
//	ctx - Checked between records.
//	f - Actor filter and limit.
//
// Outputs:
//
//	[]validate.AuditRecord - Matching records, never nil.
//	error - Non-nil if the store is closed or a record cannot be decoded.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) List(ctx context.Context, f Filter) ([]validate.AuditRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	records := make([]validate.AuditRecord, 0, min(limit, 64))
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = recordPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, recordPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(recordPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("context cancelled: %w", err)
			}

			var rec validate.AuditRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode audit record %q: %w", it.Item().Key(), err)
			}

			if f.ActorID != "" && rec.ActorID != f.ActorID {
				continue
			}
			records = append(records, rec)
			if len(records) == limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
	}
	return s.db.Close()
}
