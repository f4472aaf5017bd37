// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/raptorcast/cmd/raptorcast/cli"
	"github.com/bureau-foundation/raptorcast/lib/codec"
	"github.com/bureau-foundation/raptorcast/lib/provenance"
)

type historyParams struct {
	commonParams
	Limit    int  `json:"-" flag:"limit,n" desc:"show only the most recent N entries (0 for all)"`
	Diagnose bool `json:"-" flag:"diagnose" desc:"print each value in CBOR diagnostic notation"`
}

// historyEntry is the JSON form of a provenance entry with its value
// decoded.
type historyEntry struct {
	provenance.Entry
	Value any `json:"value"`
}

func historyCommand(e env) *cli.Command {
	var params historyParams
	return &cli.Command{
		Name:    "history",
		Summary: "List provenance entries",
		Description: `List the entries of a provenance namespace. The default namespace,
history-by-time, lists broadcasts in chronological order.

Namespaces: broadcasts, propagations, propagation-by-subject,
history-by-time, trees, artifacts.`,
		Usage: "raptorcast history [namespace] [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("history", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			namespace := provenance.NamespaceHistoryByTime
			switch len(args) {
			case 0:
			case 1:
				namespace = args[0]
			default:
				return fmt.Errorf("unexpected argument: %s", args[1])
			}
			if params.Limit < 0 {
				return fmt.Errorf("--limit must not be negative, got %d", params.Limit)
			}

			s, err := e.open(ctx, &params.commonParams)
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.engine.History(ctx, namespace)
			if err != nil {
				return err
			}
			if params.Limit > 0 && len(entries) > params.Limit {
				entries = entries[len(entries)-params.Limit:]
			}

			if params.OutputJSON {
				decoded := make([]historyEntry, len(entries))
				for i := range entries {
					decoded[i].Entry = entries[i]
					if err := entries[i].Decode(&decoded[i].Value); err != nil {
						return err
					}
				}
				_, err := params.EmitJSON(e.stdout, decoded)
				return err
			}

			if params.Diagnose {
				for _, entry := range entries {
					notation, err := codec.Diagnose(entry.Value)
					if err != nil {
						return fmt.Errorf("diagnosing %s/%s: %w", entry.Namespace, entry.Key, err)
					}
					if _, err := fmt.Fprintf(e.stdout, "%s\n  %s\n", entry.Key, notation); err != nil {
						return err
					}
				}
				return nil
			}

			if len(entries) == 0 {
				_, err := fmt.Fprintf(e.stdout, "no entries in %s\n", namespace)
				return err
			}
			renderer := cli.NewRenderer(e.stdout)
			rows := make([][]string, len(entries))
			for i, entry := range entries {
				rows[i] = []string{
					entry.Key,
					renderStatus(renderer, entry.Status),
					strconv.FormatUint(entry.Sequence, 10),
					entry.Root.String()[:16],
					entry.UpdatedAt.UTC().Format(time.RFC3339),
				}
			}
			return renderer.Table(e.stdout, []string{"KEY", "STATUS", "SEQ", "ROOT", "UPDATED"}, rows)
		},
	}
}
