// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework behind the raptorcast binary.
//
// A [Command] tree is built in cmd/raptorcast and run with
// [Command.Execute]. Leaves declare their flags as tagged parameter
// structs through [FlagsFromParams]; a required tag is enforced before
// Run is called. Typos in command and flag names get a "did you mean"
// hint when an optimal string alignment distance of at most 3 reaches a
// known name, so a transposed pair of letters costs one edit.
//
// [Renderer] styles help and command output with lipgloss and writes
// plain text when the destination is not a terminal. Embedding
// [JSONOutput] gives a command --json.
package cli
