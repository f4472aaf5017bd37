// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/raptorcast/cmd/raptorcast/cli"
	"github.com/bureau-foundation/raptorcast/lib/propagation"
	"github.com/bureau-foundation/raptorcast/lib/provenance"
	"github.com/bureau-foundation/raptorcast/lib/raptorcast"
)

type propagateParams struct {
	commonParams
	Subject     string `json:"-" flag:"subject" required:"true" desc:"artifact id to propagate"`
	Name        string `json:"-" flag:"name" desc:"artifact display name"`
	Quality     int    `json:"-" flag:"quality" default:"50" desc:"artifact quality, 0-100"`
	Payload     string `json:"-" flag:"payload" desc:"payload text"`
	PayloadFile string `json:"-" flag:"payload-file" desc:"read the payload from a file ('-' for stdin)"`
	Redundancy  int    `json:"-" flag:"redundancy" desc:"override the configured redundancy factor"`
	ChunkSize   int    `json:"-" flag:"chunk-size" desc:"override the configured chunk size in bytes"`
	Wait        bool   `json:"-" flag:"wait,w" desc:"wait for the provenance entries to confirm before exiting"`
}

type propagateResult struct {
	Record *propagation.Record `json:"record"`
	Status provenance.Status   `json:"status"`
}

func propagateCommand(e env) *cli.Command {
	var params propagateParams
	return &cli.Command{
		Name:    "propagate",
		Summary: "Encode and broadcast a payload for an artifact",
		Description: `Encode the payload into chunks, distribute them over the broadcast
tree of online nodes, score the result, and record it.

An artifact is propagated at most once. Repeating the command for the
same --subject prints the original record whatever the payload.`,
		Usage: "raptorcast propagate --subject <id> [--payload <text> | --payload-file <path>] [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("propagate", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			payload, err := readPayload(params.Payload, params.PayloadFile)
			if err != nil {
				return err
			}

			s, err := e.open(ctx, &params.commonParams)
			if err != nil {
				return err
			}
			defer s.Close()

			subject := propagation.Artifact{
				ID:      params.Subject,
				Name:    params.Name,
				Quality: params.Quality,
			}
			record, err := s.engine.Propagate(ctx, subject, payload, &raptorcast.Options{
				RedundancyFactor: params.Redundancy,
				ChunkSize:        params.ChunkSize,
			})
			if err != nil {
				return err
			}
			if params.Wait {
				s.engine.AwaitConfirmations()
			}
			status, err := s.engine.Status(ctx, record.MessageID)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(e.stdout, propagateResult{Record: record, Status: status}); done {
				return err
			}

			renderer := cli.NewRenderer(e.stdout)
			pairs := [][2]string{
				{"message", renderer.Accent.Render(record.MessageID)},
				{"subject", record.Subject.ID},
				{"root", record.CommitmentRoot.String()},
				{"chunks", fmt.Sprintf("%d sent of %d generated", record.ChunksSent, record.ChunksGenerated)},
				{"recipients", strconv.Itoa(record.RecipientCount)},
				{"speed", strconv.FormatFloat(record.PropagationSpeed, 'f', 2, 64)},
				{"replication", strconv.FormatFloat(record.ReplicationFactor, 'f', 4, 64)},
			}
			if record.EvolutionFactor != nil {
				pairs = append(pairs, [2]string{"evolution", strconv.FormatFloat(*record.EvolutionFactor, 'f', 4, 64)})
			}
			pairs = append(pairs,
				[2]string{"path", strings.Join(record.PropagationPath, " -> ")},
				[2]string{"status", renderStatus(renderer, status)},
			)
			return renderer.KeyValues(e.stdout, pairs)
		},
	}
}

// readPayload returns the inline payload or the contents of path.
// Setting both is an error; setting neither gives an empty payload.
func readPayload(inline, path string) ([]byte, error) {
	switch {
	case inline != "" && path != "":
		return nil, errors.New("--payload and --payload-file are mutually exclusive")
	case path == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading payload from stdin: %w", err)
		}
		return data, nil
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
		return data, nil
	default:
		return []byte(inline), nil
	}
}

func renderStatus(renderer *cli.Renderer, status provenance.Status) string {
	switch status {
	case provenance.StatusConfirmed:
		return renderer.Good.Render(status.String())
	case provenance.StatusFailed:
		return renderer.Bad.Render(status.String())
	default:
		return renderer.Faint.Render(status.String())
	}
}
