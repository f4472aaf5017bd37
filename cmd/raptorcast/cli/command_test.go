// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "raptorcast",
		Subcommands: []*Command{
			{
				Name: "verify",
				Run: func(ctx context.Context, args []string) error {
					called = "verify"
					return nil
				},
			},
			{
				Name: "tree",
				Run: func(ctx context.Context, args []string) error {
					called = "tree"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"tree"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "tree" {
		t.Errorf("dispatched to %q, want %q", called, "tree")
	}
}

func TestCommand_Execute_PassesContextAndArgs(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "marker")

	var gotValue any
	var gotArgs []string
	root := &Command{
		Name: "raptorcast",
		Subcommands: []*Command{{
			Name: "verify",
			Run: func(ctx context.Context, args []string) error {
				gotValue = ctx.Value(key{})
				gotArgs = args
				return nil
			},
		}},
	}

	if err := root.Execute(ctx, []string{"verify", "msg-1234"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if gotValue != "marker" {
		t.Errorf("context value = %v, want marker", gotValue)
	}
	if len(gotArgs) != 1 || gotArgs[0] != "msg-1234" {
		t.Errorf("args = %v, want [msg-1234]", gotArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var configPath string
	var target string

	command := &Command{
		Name: "tree",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("tree", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--config", "/etc/raptorcast.yaml", "msg-ab"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if configPath != "/etc/raptorcast.yaml" {
		t.Errorf("configPath = %q", configPath)
	}
	if target != "msg-ab" {
		t.Errorf("target = %q, want msg-ab", target)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "propagate",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("propagate", pflag.ContinueOnError)
			flagSet.Bool("wait", false, "wait for confirmation")
			flagSet.String("subject", "", "artifact id")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--subjcet", "card-1"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --subject") {
		t.Errorf("error = %q, want suggestion for '--subject'", errStr)
	}
	if !strings.Contains(errStr, "subjcet") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "propagate",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("propagate", pflag.ContinueOnError)
			flagSet.Bool("wait", false, "wait for confirmation")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "raptorcast",
		Subcommands: []*Command{
			{Name: "propagate"},
			{Name: "verify"},
			{Name: "history"},
		},
	}

	err := root.Execute(context.Background(), []string{"verfy"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"verify\"") {
		t.Errorf("error = %q, want suggestion for 'verify'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name:        "raptorcast",
		Subcommands: []*Command{{Name: "propagate"}, {Name: "verify"}},
	}

	err := root.Execute(context.Background(), []string{"zzzzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			var help bytes.Buffer
			root := &Command{
				Name:       "raptorcast",
				Summary:    "Reliable broadcast engine",
				HelpOutput: &help,
				Subcommands: []*Command{
					{Name: "verify", Summary: "Check delivery of a broadcast"},
				},
			}

			if err := root.Execute(context.Background(), []string{helpArg}); err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
			if !strings.Contains(help.String(), "Check delivery of a broadcast") {
				t.Errorf("help output = %q", help.String())
			}
		})
	}
}

func TestCommand_Execute_SubcommandHelpUsesRootOutput(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:       "raptorcast",
		HelpOutput: &help,
		Subcommands: []*Command{{
			Name:    "tree",
			Summary: "Render a broadcast tree",
			Run:     func(ctx context.Context, args []string) error { return nil },
		}},
	}

	if err := root.Execute(context.Background(), []string{"tree", "--help"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(help.String(), "raptorcast tree [flags]") {
		t.Errorf("help output = %q, want the subcommand's usage", help.String())
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:        "raptorcast",
		HelpOutput:  &help,
		Subcommands: []*Command{{Name: "verify", Summary: "Check delivery"}},
	}

	err := root.Execute(context.Background(), []string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
	if !strings.Contains(help.String(), "Commands:") {
		t.Errorf("help not printed: %q", help.String())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "raptorcast",
		Description: "Reliable broadcast engine.",
		Subcommands: []*Command{
			{Name: "propagate", Summary: "Encode and broadcast a payload"},
			{Name: "history", Summary: "List provenance entries"},
		},
		Examples: []Example{
			{
				Description: "Broadcast a file for an artifact",
				Command:     "raptorcast propagate --subject card-7 --payload-file card.bin",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Reliable broadcast engine.",
		"Usage:",
		"raptorcast <command> [flags]",
		"Commands:",
		"propagate",
		"Encode and broadcast a payload",
		"Examples:",
		"# Broadcast a file for an artifact",
		"raptorcast propagate --subject card-7",
		"Run 'raptorcast <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "history",
		Summary: "List provenance entries",
		Usage:   "raptorcast history [namespace] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.Int("limit", 0, "maximum entries")
			flagSet.Bool("diagnose", false, "print CBOR diagnostic notation")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{"raptorcast history [namespace] [flags]", "Flags:", "limit", "diagnose"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_Execute_NestedUsageError(t *testing.T) {
	var limit int
	root := &Command{
		Name:       "raptorcast",
		HelpOutput: &bytes.Buffer{},
		Subcommands: []*Command{{
			Name: "history",
			Flags: func() *pflag.FlagSet {
				flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
				flagSet.IntVar(&limit, "limit", 0, "maximum entries")
				return flagSet
			},
			Run: func(ctx context.Context, args []string) error { return nil },
		}},
	}

	err := root.Execute(context.Background(), []string{"history", "--bogus"})
	if err == nil || !strings.Contains(err.Error(), "Run 'raptorcast history --help' for usage.") {
		t.Errorf("error = %v, want a pointer to the nested command's help", err)
	}
}

func TestCommand_Execute_HelpAfterFlags(t *testing.T) {
	var buffer bytes.Buffer
	ran := false
	command := &Command{
		Name:       "history",
		HelpOutput: &buffer,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.Int("limit", 0, "maximum entries")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			ran = true
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--limit", "3", "--help"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if ran {
		t.Error("Run was called for --help")
	}
	if !strings.Contains(buffer.String(), "limit") {
		t.Errorf("help output:\n%s", buffer.String())
	}
}

func TestCommand_Execute_RequiredFlag(t *testing.T) {
	type params struct {
		Subject string `flag:"subject" required:"true"`
	}
	var p params
	ran := false
	command := &Command{
		Name:  "propagate",
		Flags: func() *pflag.FlagSet { return FlagsFromParams("propagate", &p) },
		Run: func(ctx context.Context, args []string) error {
			ran = true
			return nil
		},
	}

	err := command.Execute(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "required flag --subject not set") {
		t.Errorf("error = %v, want a missing --subject error", err)
	}
	if ran {
		t.Error("Run was called without a required flag")
	}

	if err := command.Execute(context.Background(), []string{"--subject", "card-7"}); err != nil || !ran {
		t.Errorf("Execute with --subject = %v, ran %v", err, ran)
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"verify", "verify", 0},
		{"verfy", "verify", 1},
		{"tere", "tree", 1},
		{"histroy", "history", 1},
		{"", "nodes", 5},
		{"nodes", "tree", 4},
	}
	for _, test := range tests {
		if got := editDistance(test.a, test.b); got != test.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestClosest(t *testing.T) {
	names := []string{"propagate", "verify", "tree", "history"}
	tests := []struct {
		typed, want string
	}{
		{"tere", "tree"},
		{"histroy", "history"},
		{"propgate", "propagate"},
		{"zzzzzzzz", ""},
	}
	for _, test := range tests {
		if got := closest(test.typed, names); got != test.want {
			t.Errorf("closest(%q) = %q, want %q", test.typed, got, test.want)
		}
	}
}
