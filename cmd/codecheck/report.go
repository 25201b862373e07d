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
	"fmt"
	"io"
	"strings"

	"github.com/AleutianAI/codecheck/pkg/ux"
	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

// reporter renders human-readable check results.
type reporter struct {
	w     io.Writer
	theme ux.Theme
}

// newReporter styles output only when color is requested and w is a terminal.
func newReporter(w io.Writer, color bool) *reporter {
	return &reporter{w: w, theme: ux.ThemeFor(w, color)}
}

func (r *reporter) render(results []fileResult) {
	th := r.theme
	invalid := 0
	for _, fr := range results {
		res := fr.Result
		status := th.Icon(ux.IconSuccess) + " " + th.Success.Render("valid")
		if !res.Valid {
			status = th.Icon(ux.IconError) + " " + th.Error.Render("invalid")
			invalid++
		}
		fmt.Fprintf(r.w, "%s: %s\n", th.Bold.Render(displayPath(fr.Path)), status)

		for _, d := range res.Diagnostics {
			loc := "-"
			if d.Line > 0 {
				loc = fmt.Sprintf("%d", d.Line)
			}
			sev := th.Level(string(d.Severity)).Render(fmt.Sprintf("%-7s", d.Severity))
			fmt.Fprintf(r.w, "  %4s  %s  %s %s\n", loc, sev, d.Message, th.Muted.Render("["+d.Rule+"]"))
		}
		for _, s := range res.Suggestions {
			fmt.Fprintf(r.w, "  %s %s %s\n", th.Icon(ux.IconBullet), th.Muted.Render(string(s.Category)+":"), s.Message)
			if s.Example != "" {
				for _, line := range strings.Split(s.Example, "\n") {
					fmt.Fprintf(r.w, "        %s\n", th.Muted.Render(line))
				}
			}
		}
	}
	fmt.Fprintf(r.w, "\n%d file(s) checked, %d invalid\n", len(results), invalid)
}

func displayPath(p string) string {
	if p == "-" {
		return "<stdin>"
	}
	return p
}
