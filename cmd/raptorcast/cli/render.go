// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

// Renderer styles text output for one writer. Styles degrade to plain
// text when the writer is not a terminal, so piped output and test
// buffers contain no escape sequences.
type Renderer struct {
	Header lipgloss.Style
	Faint  lipgloss.Style
	Good   lipgloss.Style
	Bad    lipgloss.Style
	Accent lipgloss.Style

	renderer *lipgloss.Renderer
}

// NewRenderer returns a renderer for w. Terminals get the ANSI 256
// color profile; everything else gets termenv.Ascii.
func NewRenderer(w io.Writer) *Renderer {
	profile := termenv.Ascii
	if IsTerminal(w) {
		profile = termenv.ANSI256
	}
	// lipgloss re-detects the profile from the writer unless it is set
	// explicitly after construction.
	renderer := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)

	return &Renderer{
		Header:   renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
		Faint:    renderer.NewStyle().Foreground(lipgloss.Color("245")),
		Good:     renderer.NewStyle().Foreground(lipgloss.Color("42")),
		Bad:      renderer.NewStyle().Foreground(lipgloss.Color("203")),
		Accent:   renderer.NewStyle().Foreground(lipgloss.Color("214")),
		renderer: renderer,
	}
}

// NewStyle returns an unstyled lipgloss.Style bound to this renderer's
// color profile.
func (r *Renderer) NewStyle() lipgloss.Style {
	return r.renderer.NewStyle()
}

// Table writes header and rows as left-aligned columns separated by
// two spaces. Cells may already contain styling; widths are measured
// on the visible text.
func (r *Renderer) Table(w io.Writer, header []string, rows [][]string) error {
	widths := make([]int, len(header))
	for i, cell := range header {
		widths[i] = ansi.StringWidth(cell)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], ansi.StringWidth(cell))
			}
		}
	}

	styled := make([]string, len(header))
	for i, cell := range header {
		styled[i] = r.Header.Render(cell)
	}
	if _, err := fmt.Fprintln(w, joinPadded(styled, widths)); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, joinPadded(row, widths)); err != nil {
			return err
		}
	}
	return nil
}

// KeyValues writes label/value pairs with the labels padded to one
// width.
func (r *Renderer) KeyValues(w io.Writer, pairs [][2]string) error {
	width := 0
	for _, pair := range pairs {
		width = max(width, ansi.StringWidth(pair[0]))
	}
	for _, pair := range pairs {
		label := r.Faint.Render(Pad(pair[0]+":", width+1))
		if _, err := fmt.Fprintf(w, "%s %s\n", label, pair[1]); err != nil {
			return err
		}
	}
	return nil
}

func joinPadded(cells []string, widths []int) string {
	var line strings.Builder
	for i, cell := range cells {
		if i > 0 {
			line.WriteString("  ")
		}
		if i == len(cells)-1 {
			line.WriteString(cell)
			break
		}
		line.WriteString(Pad(cell, widths[i]))
	}
	return line.String()
}

// Pad right-pads s with spaces to the given visible width. Escape
// sequences in s take no width.
func Pad(s string, width int) string {
	if gap := width - ansi.StringWidth(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}
