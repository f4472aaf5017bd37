// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/bureau-foundation/raptorcast/cmd/raptorcast/cli"
)

// commonParams are the flags every engine-backed command accepts.
type commonParams struct {
	cli.JSONOutput
	ConfigPath string `json:"-" flag:"config,c" desc:"configuration file (default: $RAPTORCAST_CONFIG, then built-in defaults)"`
	Verbose    bool   `json:"-" flag:"verbose,v" desc:"log engine activity to stderr"`
}

// env carries the output streams for one invocation.
type env struct {
	stdout io.Writer
	stderr io.Writer
}

// open loads configuration and starts an engine session. The caller
// closes the session.
func (e env) open(ctx context.Context, params *commonParams) (*session, error) {
	level := slog.LevelWarn
	if params.Verbose {
		level = slog.LevelDebug
	}
	logger := cli.NewCommandLogger(e.stderr, level)

	cfg, err := loadConfig(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	return openSession(ctx, cfg, logger)
}

// Root builds the raptorcast command tree writing to stdout and stderr.
func Root(stdout, stderr io.Writer) *cli.Command {
	e := env{stdout: stdout, stderr: stderr}
	return &cli.Command{
		Name:    "raptorcast",
		Summary: "Reliable broadcast engine",
		Description: `Encode payloads into erasure-coded chunks, distribute them over a
weighted two-level broadcast tree, and keep a provenance trail of
every broadcast.

Every command opens the provenance store named by the configuration.
Configuration comes from --config, then $RAPTORCAST_CONFIG, then the
built-in defaults (a SQLite store under ~/.cache/raptorcast).`,
		HelpOutput: stderr,
		Subcommands: []*cli.Command{
			propagateCommand(e),
			verifyCommand(e),
			treeCommand(e),
			evolveCommand(e),
			historyCommand(e),
			nodesCommand(e),
			versionCommand(e),
		},
		Examples: []cli.Example{
			{
				Description: "Broadcast a file on behalf of an artifact and wait for confirmation",
				Command:     "raptorcast propagate --subject card-7 --payload-file card.bin --wait",
			},
			{
				Description: "Check whether a broadcast reached enough of the tree",
				Command:     "raptorcast verify msg-3f9a2c01d4e5b6a7",
			},
		},
	}
}
