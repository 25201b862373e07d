// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/codecheck/services/codecheck/audit"
	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestCheckFiles_OrderAndConcurrency(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, src := range []string{"import imp\n", "x = 1\n", `password = "supersecret123"`} {
		paths = append(paths, writeSource(t, dir, string(rune('a'+i))+".py", src))
	}

	v := validate.NewValidator(validate.Options{})
	results, err := checkFiles(context.Background(), v, validate.StageInitialSkeleton, paths, nil, 1<<20)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
	}
	assert.True(t, results[0].Result.Valid)
	assert.Len(t, results[0].Result.Diagnostics, 1)
	assert.True(t, results[1].Result.Valid)
	assert.False(t, results[2].Result.Valid)
}

func TestCheckFiles_Errors(t *testing.T) {
	dir := t.TempDir()
	v := validate.NewValidator(validate.Options{})
	ctx := context.Background()

	_, err := checkFiles(ctx, v, validate.StageInitialSkeleton, []string{filepath.Join(dir, "missing.py")}, nil, 1<<20)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	big := writeSource(t, dir, "big.py", strings.Repeat("x = 1\n", 100))
	_, err = checkFiles(ctx, v, validate.StageInitialSkeleton, []string{big}, nil, 64)
	assert.ErrorContains(t, err, "exceeds 64 bytes")

	_, err = checkFiles(ctx, v, validate.StageInitialSkeleton, []string{"-", "-"}, strings.NewReader(""), 1<<20)
	assert.Error(t, err)
}

func TestCheckCommand_Stdin(t *testing.T) {
	out, _, err := runCLI(t, "eval(x)\n", "check", "--no-color", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "<stdin>: ✓ valid")
	assert.Contains(t, out, "Potentially dangerous function 'eval'")
	assert.Contains(t, out, "1 file(s) checked, 0 invalid")
}

func TestCheckCommand_InvalidExitSignal(t *testing.T) {
	path := writeSource(t, t.TempDir(), "creds.py", `password = "supersecret123"`)

	out, _, err := runCLI(t, "", "check", "--json", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errInvalidCode))

	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.False(t, results[0].Result.Valid)
	assert.Equal(t, validate.RuleHardcodedSecret, results[0].Result.Diagnostics[0].Rule)
}

func TestCheckCommand_FinalStage(t *testing.T) {
	out, _, err := runCLI(t, "x = 1\n", "check", "--json", "--stage", "final_with_credentials", "-")
	require.NoError(t, err)

	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Len(t, results[0].Result.Diagnostics, 2)
}

func TestCheckCommand_BadStage(t *testing.T) {
	_, _, err := runCLI(t, "x = 1", "check", "--stage", "staging", "-")
	assert.True(t, errors.Is(err, validate.ErrInvalidStage))
}

func TestRulesCommand(t *testing.T) {
	out, _, err := runCLI(t, "", "rules")
	require.NoError(t, err)

	var spec validate.CatalogSpec
	require.NoError(t, yaml.Unmarshal([]byte(out), &spec))
	assert.Equal(t, validate.CatalogVersion, spec.Version)
	assert.Len(t, spec.DeprecatedModules, 6)

	out, _, err = runCLI(t, "", "rules", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &spec))
	assert.Contains(t, spec.DangerousFunctions, "open")
}

func TestAuditListCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := audit.DefaultConfig(dir)
	cfg.GCInterval = 0
	store, err := audit.Open(cfg)
	require.NoError(t, err)

	wf := int64(3)
	for _, actor := range []string{"alice", "bob"} {
		require.NoError(t, store.Record(context.Background(), validate.AuditRecord{
			ActorID:     actor,
			WorkflowID:  &wf,
			Stage:       validate.StageInitialSkeleton,
			Valid:       true,
			Diagnostics: []validate.Diagnostic{},
			Suggestions: []validate.Suggestion{},
			CreatedAt:   time.Now(),
		}))
	}
	require.NoError(t, store.Close())

	out, _, err := runCLI(t, "", "audit", "list", "--path", dir, "--actor", "alice", "--json")
	require.NoError(t, err)
	var records []validate.AuditRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].ActorID)

	out, _, err = runCLI(t, "", "audit", "list", "--path", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ACTOR")
	assert.Contains(t, out, "bob")
}
