// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbenkstein/stgit/internal/stack"
	"github.com/fbenkstein/stgit/internal/transaction"
)

var commitCommand = &cobra.Command{
	Use:   "commit",
	Short: "Commit the bottom applied patches into permanent history",
	Long: `Commit turns applied patches at the bottom of the stack into regular,
permanent history: their commits are left untouched, but they are removed
from the stack's bookkeeping and the stack's base (head) advances past
them. Once committed, a patch can no longer be popped, edited, or
refreshed through the stack.`,
	Args: cobra.NoArgs,
}

// CommitConfig holds the configuration for the commit command.
type CommitConfig struct {
	Count int
	All   bool
}

// Commit creates the `stg commit` cobra.Command.
func Commit() *cobra.Command {
	var cfg CommitConfig
	cmd := *commitCommand
	cmd.Flags().IntVar(&cfg.Count, "count", 1, "number of bottom patches to commit")
	cmd.Flags().BoolVarP(&cfg.All, "all", "a", false, "commit every applied patch")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCommit(cmd, cfg)
	}
	return &cmd
}

func runCommit(cmd *cobra.Command, cfg CommitConfig) error {
	client, branch, err := currentClientAndBranch()
	if err != nil {
		return err
	}
	baseline, baselineCommit, err := stack.LoadWithCommit(client, branch)
	if err != nil {
		return err
	}
	if len(baseline.Applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No patches to commit")
		return nil
	}

	count := cfg.Count
	if cfg.All {
		count = len(baseline.Applied)
	}
	if count <= 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No patches to commit")
		return nil
	}
	if count > len(baseline.Applied) {
		return fmt.Errorf("--count %d greater than applied patch count %d", count, len(baseline.Applied))
	}

	toCommit := append([]string(nil), baseline.Applied[:count]...)
	fmt.Fprintf(cmd.OutOrStdout(), "Committing %d patch%s\n", len(toCommit), pluralize(toCommit, "es"))

	txn := transaction.New(client, branch, baselineCommit, baseline, transaction.Options{})
	txn.Commit(count)
	if err := txn.Err(); err != nil {
		return err
	}
	if _, err := txn.Execute(fmt.Sprintf("stg commit: %v", toCommit), nil); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range toCommit {
		fmt.Fprintf(out, "+ %s\n", name)
	}
	return nil
}

func newCommitCommand() *cobra.Command {
	return Commit()
}
