// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fbenkstein/stgit/internal/patchname"
	"github.com/fbenkstein/stgit/internal/stack"
	"github.com/fbenkstein/stgit/internal/transaction"
)

func newNewCommand() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a new, empty patch on top of the stack",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "patch commit message")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		client, branch, err := currentClientAndBranch()
		if err != nil {
			return err
		}
		baseline, baselineCommit, err := stack.LoadWithCommit(client, branch)
		if err != nil {
			return err
		}

		limit := patchname.LengthLimit(func(key string) (string, bool) {
			value, ok, _ := client.ConfigGet(key)
			return value, ok
		})
		var candidate string
		switch {
		case len(args) == 1:
			candidate = args[0]
		case message != "":
			candidate = patchname.Make(message, false, limit)
		default:
			candidate = patchname.Make("patch", false, limit)
		}
		if !patchname.Valid(candidate) {
			return fmt.Errorf("invalid patch name %q", candidate)
		}
		name := patchname.Uniquify(candidate, baseline.Applied, baseline.AllPatches())

		authorName, _, _ := client.ConfigGet("user.name")
		authorEmail, _, _ := client.ConfigGet("user.email")
		date := time.Now().Format("2006-01-02T15:04:05Z07:00")

		tip := baseline.Top()
		tipTree, err := client.CommitTreeOid(tip)
		if err != nil {
			return fmt.Errorf("reading tree of %s: %w", tip, err)
		}
		subject := message
		if subject == "" {
			subject = name
		}
		newCommit, err := client.CommitTree(tipTree, []string{tip}, subject, authorName, authorEmail, date)
		if err != nil {
			return fmt.Errorf("creating patch commit: %w", err)
		}

		txn := transaction.New(client, branch, baselineCommit, baseline, transaction.Options{
			UseIndexAndWorktree: true,
		})
		txn.NewApplied(name, newCommit)
		if err := txn.Err(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, err = txn.Execute(fmt.Sprintf("stg new: %s", name), func(l transaction.StatusLine) {
			fmt.Fprintf(out, "%c %s\n", l.Kind, l.Patch)
		})
		return err
	}
	return cmd
}
