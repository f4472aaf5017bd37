// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss/tree"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/raptorcast/cmd/raptorcast/cli"
	"github.com/bureau-foundation/raptorcast/lib/broadcasttree"
)

type treeParams struct {
	commonParams
}

func treeCommand(e env) *cli.Command {
	var params treeParams
	return &cli.Command{
		Name:    "tree",
		Summary: "Render the broadcast tree of a message",
		Description: `Print the two-level broadcast tree a message was distributed over,
with each node's weight and the chunk range it was assigned.`,
		Usage: "raptorcast tree <message-id> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("tree", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("usage: raptorcast tree <message-id>")
			}

			s, err := e.open(ctx, &params.commonParams)
			if err != nil {
				return err
			}
			defer s.Close()

			broadcast, err := s.engine.GetTree(ctx, args[0])
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(e.stdout, broadcast); done {
				return err
			}

			renderer := cli.NewRenderer(e.stdout)
			_, err = fmt.Fprintln(e.stdout, renderTree(renderer, broadcast))
			return err
		},
	}
}

// renderTree draws the arena as a lipgloss tree. Node labels are
// aligned in columns across the whole tree.
func renderTree(renderer *cli.Renderer, broadcast *broadcasttree.Tree) string {
	idWidth, weightWidth := 0, 0
	for i := range broadcast.Nodes {
		node := &broadcast.Nodes[i]
		idWidth = max(idWidth, ansi.StringWidth(node.ID))
		weightWidth = max(weightWidth, len(formatWeight(node.Weight)))
	}

	label := func(node *broadcasttree.Node) string {
		id := cli.Pad(node.ID, idWidth)
		weight := cli.Pad(formatWeight(node.Weight), weightWidth)
		return fmt.Sprintf("%s  %s  %s", id, renderer.Faint.Render(weight), formatRange(node))
	}

	var build func(index int) *tree.Tree
	build = func(index int) *tree.Tree {
		node := &broadcast.Nodes[index]
		branch := tree.Root(label(node))
		for _, child := range node.Children {
			if len(broadcast.Nodes[child].Children) > 0 {
				branch.Child(build(child))
			} else {
				branch.Child(label(&broadcast.Nodes[child]))
			}
		}
		return branch
	}

	return tree.Root(renderer.Header.Render(broadcast.MessageID)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(renderer.Faint.PaddingRight(1)).
		Child(build(0)).
		String()
}

func formatWeight(weight float64) string {
	return "w=" + strconv.FormatFloat(weight, 'f', -1, 64)
}

func formatRange(node *broadcasttree.Node) string {
	switch n := node.Len(); {
	case n <= 0:
		return "no chunks"
	case n == 1:
		return fmt.Sprintf("chunk %d (1)", node.Start)
	default:
		return fmt.Sprintf("chunks %d-%d (%d)", node.Start, node.End, n)
	}
}
