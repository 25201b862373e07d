// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(actor string, at time.Time) validate.AuditRecord {
	return validate.AuditRecord{
		ActorID:     actor,
		CodeSnippet: "x = 1",
		Stage:       validate.StageInitialSkeleton,
		Valid:       true,
		Diagnostics: []validate.Diagnostic{},
		Suggestions: []validate.Suggestion{},
		CreatedAt:   at,
	}
}

func TestStore_RecordAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, record("alice", base)))
	require.NoError(t, s.Record(ctx, record("bob", base.Add(time.Second))))
	require.NoError(t, s.Record(ctx, record("alice", base.Add(2*time.Second))))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, base.Add(2*time.Second), all[0].CreatedAt)
	assert.Equal(t, base, all[2].CreatedAt)
	for _, rec := range all {
		assert.NotEmpty(t, rec.ID)
	}

	alice, err := s.List(ctx, Filter{ActorID: "alice"})
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.True(t, alice[0].CreatedAt.After(alice[1].CreatedAt))

	limited, err := s.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "alice", limited[0].ActorID)

	none, err := s.List(ctx, Filter{ActorID: "carol"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestStore_PreservesFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wf := int64(9)
	rec := record("alice", time.Time{})
	rec.ID = "fixed-id"
	rec.WorkflowID = &wf
	rec.Valid = false
	rec.Diagnostics = []validate.Diagnostic{{Line: 1, Message: "m", Severity: validate.SeverityError, Rule: validate.RuleHardcodedSecret}}
	rec.Suggestions = []validate.Suggestion{{Category: validate.CategoryCritical, Message: "fix"}}

	require.NoError(t, s.Record(ctx, rec))

	got, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fixed-id", got[0].ID)
	require.NotNil(t, got[0].WorkflowID)
	assert.Equal(t, int64(9), *got[0].WorkflowID)
	assert.False(t, got[0].CreatedAt.IsZero())
	assert.Equal(t, rec.Diagnostics, got[0].Diagnostics)
	assert.Equal(t, rec.Suggestions, got[0].Suggestions)
}

func TestStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), record("alice", time.Now())))
	require.NoError(t, s.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_Closed(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.Record(context.Background(), record("a", time.Now()))
	assert.True(t, errors.Is(err, ErrStoreClosed))

	_, err = s.List(context.Background(), Filter{})
	assert.True(t, errors.Is(err, ErrStoreClosed))
}

func TestStore_CancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Record(ctx, record("a", time.Now()))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)

	_, err = Open(Config{InMemory: true, Retention: -time.Second})
	assert.Error(t, err)
}

func TestSinks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	rec := record("alice", time.Now())
	require.NoError(t, NopSink{}.Record(context.Background(), rec))
	require.NoError(t, LogSink{Logger: logger}.Record(context.Background(), rec))
	assert.Contains(t, buf.String(), `"actor_id":"alice"`)
	assert.NotContains(t, buf.String(), "x = 1")

	failing := sinkFunc(func(context.Context, validate.AuditRecord) error { return errors.New("down") })
	err := MultiSink{NopSink{}, failing}.Record(context.Background(), rec)
	assert.EqualError(t, err, "down")
}

type sinkFunc func(context.Context, validate.AuditRecord) error

func (f sinkFunc) Record(ctx context.Context, rec validate.AuditRecord) error { return f(ctx, rec) }
