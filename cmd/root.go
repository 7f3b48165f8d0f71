// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the stg command-line surface: one cobra
// subcommand per stack operation, a shared IO sink, and the top-level
// exit-code mapping between internal error types and the process exit
// status.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fbenkstein/stgit/internal/gitadapter"
	"github.com/fbenkstein/stgit/internal/transaction"
)

// Exit codes, in the taxonomy every subcommand is mapped into by Execute.
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitCommandError  = 2
	ExitConflictError = 3
)

// IO bundles the output streams a command writes to.
type IO struct {
	Out io.Writer
	Err io.Writer
}

// Root constructs a fresh stg root command, one new cobra.Command tree
// per call so callers (notably the scenario test runner) can execute
// several invocations in a row without carrying over flag state.
func Root() *cobra.Command {
	return newRootCommand()
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "stg",
		Short:         "Maintain a stack of patches on top of a Git branch",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var changeDir string
	root.PersistentFlags().StringVarP(&changeDir, "change-dir", "C", "", "run as if stg was started in <path>")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if changeDir != "" {
			if err := os.Chdir(changeDir); err != nil {
				return fmt.Errorf("cannot change to %q: %w", changeDir, err)
			}
		}
		return nil
	}

	root.AddCommand(
		newInitCommand(),
		newPushCommand(),
		newPopCommand(),
		newCommitCommand(),
		newNewCommand(),
		newSeriesCommand(),
		newImportCommand(),
	)
	return root
}

// Execute runs the stg command line, returning the exit code the
// process should report: 0 on success, 1 on CLI/argument error, 2 on
// command execution error, 3 on transaction halt due to merge
// conflicts.
func Execute() int {
	root := newRootCommand()
	// Errors returned before a subcommand's RunE starts come from command
	// lookup, flag parsing, or argument validation.
	running := false
	for _, sub := range root.Commands() {
		if run := sub.RunE; run != nil {
			sub.RunE = func(cmd *cobra.Command, args []string) error {
				running = true
				return run(cmd, args)
			}
		}
	}
	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if !running {
		return ExitGeneralError
	}

	var haltErr *transaction.HaltError
	var conflictErr *transaction.CheckoutConflictsError
	if errors.As(err, &haltErr) || errors.As(err, &conflictErr) {
		return ExitConflictError
	}
	return ExitCommandError
}

// currentClientAndBranch opens a gitadapter.Client rooted at the
// current working directory and resolves the current branch name, the
// preamble every stack subcommand needs before touching stack state.
func currentClientAndBranch() (*gitadapter.Client, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	client := gitadapter.NewClient(cwd)
	branch, err := client.CurrentBranch()
	if err != nil {
		return nil, "", fmt.Errorf("determining current branch: %w", err)
	}
	return client, branch, nil
}
