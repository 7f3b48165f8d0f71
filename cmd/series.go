// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbenkstein/stgit/internal/stack"
)

func newSeriesCommand() *cobra.Command {
	var showHidden bool
	cmd := &cobra.Command{
		Use:   "series",
		Short: "List the patches in the stack, applied patches marked with '+', the top with '>'",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&showHidden, "hidden", false, "also list hidden patches")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		client, branch, err := currentClientAndBranch()
		if err != nil {
			return err
		}
		state, err := stack.Load(client, branch)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for i, name := range state.Applied {
			marker := "+"
			if i == len(state.Applied)-1 {
				marker = ">"
			}
			fmt.Fprintf(out, "%s %s\n", marker, name)
		}
		for _, name := range state.Unapplied {
			fmt.Fprintf(out, "- %s\n", name)
		}
		if showHidden {
			for _, name := range state.Hidden {
				fmt.Fprintf(out, "! %s\n", name)
			}
		}
		return nil
	}
	return cmd
}
