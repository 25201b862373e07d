// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package ux provides terminal styling for codecheck reports.
package ux

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette
var (
	ColorTealBright = lipgloss.Color("#2CD7C7") // Bright teal - highlights
	ColorTealDeep   = lipgloss.Color("#16858E") // Deep teal - borders, accents

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
)

// Icon is a status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Theme holds the styles used to render a report. A plain theme renders
// text unchanged, so output piped to files stays free of escape codes.
type Theme struct {
	Colored bool

	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Border  lipgloss.Style
}

// NewTheme returns a theme. When colored is false every style is empty.
func NewTheme(colored bool) Theme {
	plain := lipgloss.NewStyle()
	t := Theme{
		Colored: colored,
		Title:   plain,
		Bold:    plain,
		Muted:   plain,
		Success: plain,
		Warning: plain,
		Error:   plain,
		Border:  plain,
	}
	if !colored {
		return t
	}
	t.Title = plain.Bold(true).Foreground(ColorTealBright)
	t.Bold = plain.Bold(true)
	t.Muted = plain.Foreground(ColorMuted)
	t.Success = plain.Foreground(ColorSuccess)
	t.Warning = plain.Foreground(ColorWarning)
	t.Error = plain.Foreground(ColorError).Bold(true)
	t.Border = plain.Foreground(ColorTealDeep)
	return t
}

// ThemeFor picks a colored theme only when want is true and w is a terminal.
func ThemeFor(w io.Writer, want bool) Theme {
	return NewTheme(want && IsTerminal(w))
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Icon renders an icon in its theme color.
func (t Theme) Icon(i Icon) string {
	switch i {
	case IconSuccess:
		return t.Success.Render(string(i))
	case IconWarning:
		return t.Warning.Render(string(i))
	case IconError:
		return t.Error.Render(string(i))
	default:
		return t.Muted.Render(string(i))
	}
}

// Level returns the style for a diagnostic severity name.
func (t Theme) Level(level string) lipgloss.Style {
	switch level {
	case "error":
		return t.Error
	case "warning":
		return t.Warning
	default:
		return t.Muted
	}
}
