// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/pflag"
)

// Command is one node of the command tree. A command with Subcommands
// dispatches on its first argument; a leaf parses its flags and calls
// Run with what is left.
type Command struct {
	Name string

	// Summary is the one-line description in the parent's command list.
	Summary string

	// Description is the help text. Summary is used when it is empty.
	Description string

	// Usage overrides the synthesized usage line.
	Usage string

	Examples []Example

	// Flags builds a fresh flag set. Nil means the command takes no
	// flags.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run handles a leaf invocation. A command with both Run and
	// Subcommands runs when the first argument is not a subcommand.
	Run func(ctx context.Context, args []string) error

	// HelpOutput receives help text for the whole tree. Only the root's
	// value is used; nil means os.Stderr.
	HelpOutput io.Writer
}

// Example is one annotated command line in help output.
type Example struct {
	Description string
	Command     string
}

// maxSuggestDistance is the largest edit distance for which an unknown
// command or flag gets a "did you mean" hint.
const maxSuggestDistance = 3

// invocation is the command path walked so far and where help goes.
type invocation struct {
	path []string
	help io.Writer
}

func (inv invocation) name() string {
	return strings.Join(inv.path, " ")
}

func (inv invocation) enter(name string) invocation {
	path := make([]string, len(inv.path), len(inv.path)+1)
	copy(path, inv.path)
	return invocation{path: append(path, name), help: inv.help}
}

// usageError formats a message followed by a pointer to --help.
func (inv invocation) usageError(format string, args ...any) error {
	return fmt.Errorf("%s\n\nRun '%s --help' for usage.", fmt.Sprintf(format, args...), inv.name())
}

// Execute runs args against the tree rooted at c.
func (c *Command) Execute(ctx context.Context, args []string) error {
	help := c.HelpOutput
	if help == nil {
		help = os.Stderr
	}
	return c.execute(ctx, invocation{path: []string{c.Name}, help: help}, args)
}

func (c *Command) execute(ctx context.Context, inv invocation, args []string) error {
	if len(args) > 0 && isHelpArg(args[0]) {
		return c.writeHelp(inv.help, inv.name())
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		if sub := c.subcommand(args[0]); sub != nil {
			return sub.execute(ctx, inv.enter(sub.Name), args[1:])
		}
		if c.Run == nil {
			names := make([]string, len(c.Subcommands))
			for i, sub := range c.Subcommands {
				names[i] = sub.Name
			}
			if match := closest(args[0], names); match != "" {
				return inv.usageError("unknown command %q (did you mean %q?)", args[0], match)
			}
			return inv.usageError("unknown command %q", args[0])
		}
	}

	if c.Run == nil {
		c.writeHelp(inv.help, inv.name())
		if len(args) == 0 {
			return errors.New("subcommand required")
		}
		return fmt.Errorf("subcommand required (got flag %q)", args[0])
	}

	if c.Flags != nil {
		flags := c.Flags()
		flags.SetOutput(io.Discard)
		if err := flags.Parse(args); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				return c.writeHelp(inv.help, inv.name())
			}
			return c.flagError(inv, err)
		}
		if missing := missingRequired(flags); len(missing) > 0 {
			return inv.usageError("required flag %s not set", strings.Join(missing, ", "))
		}
		args = flags.Args()
	}
	return c.Run(ctx, args)
}

func (c *Command) subcommand(name string) *Command {
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

// flagError adds a suggestion to pflag's unknown-flag error when a
// defined long flag is close to the one typed.
func (c *Command) flagError(inv invocation, err error) error {
	message := err.Error()
	typed, ok := strings.CutPrefix(message, "unknown flag: --")
	if !ok {
		return inv.usageError("%s", message)
	}
	var names []string
	c.Flags().VisitAll(func(flag *pflag.Flag) {
		names = append(names, flag.Name)
	})
	if match := closest(typed, names); match != "" {
		return inv.usageError("%s (did you mean --%s?)", message, match)
	}
	return inv.usageError("%s", message)
}

// PrintHelp writes c's help to w as a top-level command.
func (c *Command) PrintHelp(w io.Writer) {
	c.writeHelp(w, c.Name)
}

// writeHelp renders help for the command invoked as name. Section
// titles use the renderer's header style, which is plain text when w
// is not a terminal.
func (c *Command) writeHelp(w io.Writer, name string) error {
	renderer := NewRenderer(w)
	var out strings.Builder
	section := func(title string) {
		out.WriteString("\n" + renderer.Header.Render(title) + "\n")
	}

	description := c.Description
	if description == "" {
		description = c.Summary
	}
	if description != "" {
		out.WriteString(description + "\n")
	}

	section("Usage:")
	switch {
	case c.Usage != "":
		out.WriteString("  " + c.Usage + "\n")
	case len(c.Subcommands) > 0:
		out.WriteString("  " + name + " <command> [flags]\n")
	default:
		out.WriteString("  " + name + " [flags]\n")
	}

	if len(c.Subcommands) > 0 {
		section("Commands:")
		width := 0
		for _, sub := range c.Subcommands {
			width = max(width, ansi.StringWidth(sub.Name))
		}
		for _, sub := range c.Subcommands {
			out.WriteString("  " + Pad(sub.Name, width) + "   " + sub.Summary + "\n")
		}
	}

	if c.Flags != nil {
		if usages := c.Flags().FlagUsages(); usages != "" {
			section("Flags:")
			out.WriteString(usages)
		}
	}

	if len(c.Examples) > 0 {
		section("Examples:")
		for i, example := range c.Examples {
			if i > 0 {
				out.WriteString("\n")
			}
			if example.Description != "" {
				out.WriteString("  " + renderer.Faint.Render("# "+example.Description) + "\n")
			}
			out.WriteString("  " + example.Command + "\n")
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(&out, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}

	_, err := io.WriteString(w, out.String())
	return err
}

func isHelpArg(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	}
	return false
}

// closest returns the candidate nearest to typed, or "" when none is
// within maxSuggestDistance. Ties go to the earlier candidate.
func closest(typed string, candidates []string) string {
	best, bestDistance := "", maxSuggestDistance+1
	for _, candidate := range candidates {
		if distance := editDistance(typed, candidate); distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	return best
}

// editDistance is the optimal string alignment distance between a and
// b: inserting, deleting or replacing a rune costs one, and so does
// swapping two adjacent runes, the most common typo.
func editDistance(a, b string) int {
	s, t := []rune(a), []rune(b)
	d := make([][]int, len(s)+1)
	for i := range d {
		d[i] = make([]int, len(t)+1)
		d[i][0] = i
	}
	for j := range d[0] {
		d[0][j] = j
	}
	for i := 1; i <= len(s); i++ {
		for j := 1; j <= len(t); j++ {
			cost := 1
			if s[i-1] == t[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && s[i-1] == t[j-2] && s[i-2] == t[j-1] {
				d[i][j] = min(d[i][j], d[i-2][j-2]+1)
			}
		}
	}
	return d[len(s)][len(t)]
}
