// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger writing to w. When w is
// a terminal it uses slog.TextHandler for human-readable output;
// otherwise slog.JSONHandler, so piped runs (CI, scripts) produce
// machine-parseable logs.
//
// Callers scope the logger with command-specific context via With():
//
//	logger := cli.NewCommandLogger(os.Stderr, slog.LevelInfo).With(
//	    "command", "propagate",
//	    "subject", subjectID,
//	)
func NewCommandLogger(w io.Writer, level slog.Level) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if IsTerminal(w) {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
