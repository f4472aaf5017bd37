// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/raptorcast/cmd/raptorcast/cli"
)

type nodesParams struct {
	commonParams
}

func nodesCommand(e env) *cli.Command {
	var params nodesParams
	return &cli.Command{
		Name:    "nodes",
		Summary: "List the configured participant nodes",
		Description: `List the nodes the engine builds broadcast trees from, in
registration order. Offline nodes are kept out of every tree.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("nodes", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			s, err := e.open(ctx, &params.commonParams)
			if err != nil {
				return err
			}
			defer s.Close()

			nodes := s.engine.Nodes()
			if done, err := params.EmitJSON(e.stdout, nodes); done {
				return err
			}

			renderer := cli.NewRenderer(e.stdout)
			rows := make([][]string, len(nodes))
			for i, node := range nodes {
				status := renderer.Good.Render("online")
				if !node.Online {
					status = renderer.Bad.Render("offline")
				}
				rows[i] = []string{node.ID, strconv.FormatFloat(node.Weight, 'f', -1, 64), status}
			}
			return renderer.Table(e.stdout, []string{"ID", "WEIGHT", "STATUS"}, rows)
		},
	}
}
