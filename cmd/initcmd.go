// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbenkstein/stgit/internal/stack"
)

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialise a patch stack on the current branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, branch, err := currentClientAndBranch()
			if err != nil {
				return err
			}
			if _, ok, err := client.ResolveRef(stack.Ref(branch)); err != nil {
				return err
			} else if ok {
				return fmt.Errorf("stack already initialised on branch %q", branch)
			}
			head, ok, err := client.ResolveRef("refs/heads/" + branch)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("branch %q has no commits yet", branch)
			}
			state := stack.New(head)
			if _, err := stack.Persist(client, branch, state, "stg init"); err != nil {
				return fmt.Errorf("initialising stack: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialised empty patch stack on %q\n", branch)
			return nil
		},
	}
}
