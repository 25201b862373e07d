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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

// errInvalidCode signals that at least one input failed validation.
var errInvalidCode = errors.New("validation failed")

// fileResult is the outcome for one checked input.
type fileResult struct {
	Path   string                     `json:"path"`
	Result *validate.ValidationResult `json:"result"`
}

func newCheckCmd(a *app) *cobra.Command {
	var (
		stage   string
		asJSON  bool
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "check [flags] FILE... | -",
		Short: "Validate Python files and print a report",
		Long: `Validate one or more Python files. Use "-" to read from stdin.
Exits 1 if any input is invalid and 2 on usage or I/O errors.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := validate.ParseStage(stage)
			if err != nil {
				return err
			}
			opts, err := a.validatorOptions()
			if err != nil {
				return err
			}
			v := validate.NewValidator(opts)

			results, err := checkFiles(cmd.Context(), v, st, args, cmd.InOrStdin(), a.cfg.Limits.MaxSourceBytes)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				newReporter(out, !noColor).render(results)
			}

			for _, r := range results {
				if !r.Result.Valid {
					return errInvalidCode
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", string(validate.StageInitialSkeleton), "validation stage (initial_skeleton, final_with_credentials)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

// checkFiles validates every path concurrently and returns results in
// argument order. "-" reads stdin and may appear at most once.
func checkFiles(ctx context.Context, v *validate.Validator, stage validate.Stage, paths []string, stdin io.Reader, maxBytes int64) ([]fileResult, error) {
	stdinSeen := false
	for _, p := range paths {
		if p == "-" {
			if stdinSeen {
				return nil, errors.New(`"-" may be given only once`)
			}
			stdinSeen = true
		}
	}

	results := make([]fileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, path := range paths {
		g.Go(func() error {
			source, err := readSource(path, stdin, maxBytes)
			if err != nil {
				return err
			}
			res, err := v.Validate(gctx, validate.Request{Source: source, Stage: stage})
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = fileResult{Path: path, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func readSource(path string, stdin io.Reader, maxBytes int64) (string, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%s: source exceeds %d bytes", path, maxBytes)
	}
	return string(data), nil
}
