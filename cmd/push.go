// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbenkstein/stgit/internal/stack"
	"github.com/fbenkstein/stgit/internal/transaction"
)

func newPushCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "push [patch]",
		Short: "Push the next unapplied patch, or a named one, onto the stack",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "push all unapplied patches")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		client, branch, err := currentClientAndBranch()
		if err != nil {
			return err
		}
		baseline, baselineCommit, err := stack.LoadWithCommit(client, branch)
		if err != nil {
			return err
		}

		var toPush []string
		switch {
		case all:
			toPush = append(toPush, baseline.Unapplied...)
		case len(args) == 1:
			toPush = []string{args[0]}
		case len(baseline.Unapplied) > 0:
			toPush = []string{baseline.Unapplied[0]}
		default:
			fmt.Fprintln(cmd.OutOrStdout(), "No patches to push")
			return nil
		}

		txn := transaction.New(client, branch, baselineCommit, baseline, transaction.Options{
			UseIndexAndWorktree: true,
			AllowConflicts:      true,
		})
		for _, name := range toPush {
			txn.Push(name)
		}
		if err := txn.Err(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, err = txn.Execute(fmt.Sprintf("stg push: %v", toPush), func(l transaction.StatusLine) {
			fmt.Fprintf(out, "%c %s\n", l.Kind, l.Patch)
		})
		return err
	}
	return cmd
}
