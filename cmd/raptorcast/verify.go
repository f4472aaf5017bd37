// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/raptorcast/cmd/raptorcast/cli"
	"github.com/bureau-foundation/raptorcast/lib/delivery"
	"github.com/bureau-foundation/raptorcast/lib/provenance"
)

type verifyParams struct {
	commonParams
}

type verifyResult struct {
	delivery.Verification
	Status provenance.Status `json:"status"`
}

func verifyCommand(e env) *cli.Command {
	var params verifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check whether a broadcast reached enough of its tree",
		Description: `Compare the chunks a broadcast sent against what its tree could carry
and report whether the confirmation rate meets the configured minimum.

Exits 1 when verification fails, so scripts can test the result
without parsing output.`,
		Usage: "raptorcast verify <message-id> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("usage: raptorcast verify <message-id>")
			}

			s, err := e.open(ctx, &params.commonParams)
			if err != nil {
				return err
			}
			defer s.Close()

			verification, err := s.engine.Verify(ctx, args[0])
			if err != nil {
				return err
			}
			status, err := s.engine.Status(ctx, args[0])
			if err != nil {
				return err
			}

			done, err := params.EmitJSON(e.stdout, verifyResult{Verification: verification, Status: status})
			if !done {
				renderer := cli.NewRenderer(e.stdout)
				outcome := renderer.Good.Render("delivered")
				if !verification.Success {
					outcome = renderer.Bad.Render("insufficient")
				}
				err = renderer.KeyValues(e.stdout, [][2]string{
					{"message", verification.MessageID},
					{"result", outcome},
					{"rate", strconv.FormatFloat(verification.ConfirmationRate, 'f', 4, 64)},
					{"checked", verification.Timestamp.UTC().Format(time.RFC3339)},
					{"status", renderStatus(renderer, status)},
				})
			}
			if err != nil {
				return err
			}
			if !verification.Success {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
