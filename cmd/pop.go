// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbenkstein/stgit/internal/stack"
	"github.com/fbenkstein/stgit/internal/transaction"
)

var popCommand = &cobra.Command{
	Use:   "pop [patch]",
	Short: "Pop the top applied patch, or down to a named one, off the stack",
	Args:  cobra.MaximumNArgs(1),
}

// PopConfig holds the configuration for the pop command.
type PopConfig struct {
	All bool
}

// Pop creates the `stg pop` cobra.Command.
func Pop() *cobra.Command {
	var cfg PopConfig
	cmd := *popCommand
	cmd.Flags().BoolVarP(&cfg.All, "all", "a", false, "pop all applied patches")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runPop(cmd, args, cfg)
	}
	return &cmd
}

func runPop(cmd *cobra.Command, args []string, cfg PopConfig) error {
	client, branch, err := currentClientAndBranch()
	if err != nil {
		return err
	}
	baseline, baselineCommit, err := stack.LoadWithCommit(client, branch)
	if err != nil {
		return err
	}
	if len(baseline.Applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No patches to pop")
		return nil
	}

	var toPop []string
	switch {
	case cfg.All:
		toPop = reversed(baseline.Applied)
	case len(args) == 1:
		idx := indexOf(baseline.Applied, args[0])
		if idx < 0 {
			return fmt.Errorf("pop %q: not an applied patch", args[0])
		}
		toPop = reversed(baseline.Applied[idx:])
	default:
		toPop = []string{baseline.Applied[len(baseline.Applied)-1]}
	}

	txn := transaction.New(client, branch, baselineCommit, baseline, transaction.Options{
		UseIndexAndWorktree: true,
	})
	for _, name := range toPop {
		txn.Pop(name)
	}
	if err := txn.Err(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, err = txn.Execute(fmt.Sprintf("stg pop: %v", toPop), func(l transaction.StatusLine) {
		fmt.Fprintf(out, "%c %s\n", l.Kind, l.Patch)
	})
	return err
}

func reversed(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[len(names)-1-i] = n
	}
	return out
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func newPopCommand() *cobra.Command {
	return Pop()
}
