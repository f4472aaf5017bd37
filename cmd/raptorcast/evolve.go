// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/raptorcast/cmd/raptorcast/cli"
	"github.com/bureau-foundation/raptorcast/lib/propagation"
)

type evolveParams struct {
	commonParams
}

func evolveCommand(e env) *cli.Command {
	var params evolveParams
	return &cli.Command{
		Name:    "evolve",
		Summary: "Show the artifact a broadcast evolved into",
		Description: `Derive the evolved artifact from a broadcast's evolution factor.
Broadcasts whose score did not cross the evolution threshold have no
evolved artifact; --json prints null for them.`,
		Usage: "raptorcast evolve <message-id> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("evolve", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("usage: raptorcast evolve <message-id>")
			}

			s, err := e.open(ctx, &params.commonParams)
			if err != nil {
				return err
			}
			defer s.Close()

			artifact, err := s.engine.Evolve(ctx, args[0])
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(e.stdout, artifact); done {
				return err
			}

			if artifact == nil {
				_, err := fmt.Fprintf(e.stdout, "%s did not evolve its subject\n", args[0])
				return err
			}
			return cli.NewRenderer(e.stdout).KeyValues(e.stdout, artifactPairs(artifact))
		},
	}
}

func artifactPairs(artifact *propagation.Artifact) [][2]string {
	pairs := [][2]string{
		{"id", artifact.ID},
	}
	if artifact.Name != "" {
		pairs = append(pairs, [2]string{"name", artifact.Name})
	}
	pairs = append(pairs,
		[2]string{"quality", strconv.Itoa(artifact.Quality)},
		[2]string{"generation", strconv.Itoa(artifact.Generation)},
		[2]string{"parent", artifact.ParentID},
	)
	keys := make([]string, 0, len(artifact.Attributes))
	for key := range artifact.Attributes {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		pairs = append(pairs, [2]string{key, artifact.Attributes[key]})
	}
	return pairs
}
