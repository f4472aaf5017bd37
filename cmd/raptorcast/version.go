// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/raptorcast/cmd/raptorcast/cli"
	"github.com/bureau-foundation/raptorcast/lib/version"
)

type versionParams struct {
	cli.JSONOutput
}

func versionCommand(e env) *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print build version information",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("version", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			build := version.Current()
			if done, err := params.EmitJSON(e.stdout, build); done {
				return err
			}
			_, err := fmt.Fprintf(e.stdout, "raptorcast %s\n", build.Full())
			return err
		},
	}
}
