// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbenkstein/stgit/internal/importpipeline"
	"github.com/fbenkstein/stgit/internal/patchname"
	"github.com/fbenkstein/stgit/internal/transaction"
)

func newImportCommand() *cobra.Command {
	var (
		mail, mbox, series  bool
		fromURL             bool
		name                string
		strip               int
		stripSet            bool
		stripName           bool
		contextLines        int
		ignore, replace     bool
		base                string
		reject              bool
		keepCR              bool
		messageID           bool
	)

	cmd := &cobra.Command{
		Use:   "import [source]",
		Short: "Import patches to the stack from a diff, mail, mbox, series, or URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ignore && replace {
				return fmt.Errorf("--ignore and --replace are mutually exclusive")
			}
			if stripSet && strip < 0 {
				return fmt.Errorf("--strip must be a non-negative integer, got %d", strip)
			}
			client, branch, err := currentClientAndBranch()
			if err != nil {
				return err
			}

			var source string
			if len(args) == 1 {
				source = args[0]
			}

			limit := patchname.LengthLimit(func(key string) (string, bool) {
				value, ok, _ := client.ConfigGet(key)
				return value, ok
			})
			authorName, _, _ := client.ConfigGet("user.name")
			authorEmail, _, _ := client.ConfigGet("user.email")
			messageIDDefault, _, _ := client.ConfigGet("stgit.import.message-id")

			policy := importpipeline.NamingUniquify
			switch {
			case ignore:
				policy = importpipeline.NamingIgnore
			case replace:
				policy = importpipeline.NamingReplace
			}

			opts := importpipeline.Options{
				Mode:          importpipeline.ClassifyMode(mail, mbox, series),
				Name:          name,
				StripName:     stripName,
				Policy:        policy,
				Strip:         strip,
				StripSet:      stripSet,
				ContextLines:  contextLines,
				Reject:        reject,
				KeepCR:        keepCR,
				MessageID:     messageID || messageIDDefault == "true",
				Base:          base,
			}

			out := cmd.OutOrStdout()
			im := &importpipeline.Importer{
				Client:             client,
				Branch:             branch,
				NameLen:            limit,
				DefaultAuthorName:  authorName,
				DefaultAuthorEmail: authorEmail,
				Status: func(l transaction.StatusLine) {
					fmt.Fprintf(out, "%c %s\n", l.Kind, l.Patch)
				},
			}

			if fromURL {
				if source == "" {
					return fmt.Errorf("--url requires a source")
				}
				return im.ImportURL(opts, source)
			}

			switch opts.Mode {
			case importpipeline.ModeSeries:
				return im.ImportSeries(opts, source)
			case importpipeline.ModeMbox:
				return im.ImportMbox(opts, source)
			case importpipeline.ModeMail:
				return im.ImportMail(opts, source)
			default:
				return im.ImportFile(opts, source, -1)
			}
		},
	}

	cmd.Flags().BoolVarP(&mail, "mail", "m", false, "import patch from an email file")
	cmd.Flags().BoolVarP(&mbox, "mbox", "M", false, "import patch series from an mbox file")
	cmd.Flags().BoolVarP(&series, "series", "s", false, "import patch series from a series file or tar archive")
	cmd.MarkFlagsMutuallyExclusive("mail", "mbox", "series")
	cmd.Flags().BoolVarP(&fromURL, "url", "u", false, "retrieve source from a url instead of a local file")

	cmd.Flags().StringVarP(&name, "name", "n", "", "use NAME as the patch name")
	cmd.Flags().IntVarP(&strip, "strip", "p", 0, "remove N leading components from diff paths (default 1)")
	cmd.Flags().BoolVarP(&stripName, "stripname", "t", false, "strip number and extension from patch name")
	cmd.Flags().IntVarP(&contextLines, "context-lines", "C", 0, "ensure N lines of matching context for each change")
	cmd.Flags().BoolVarP(&ignore, "ignore", "i", false, "ignore already-applied patches in the series")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace unapplied patches of the same name")
	cmd.Flags().StringVarP(&base, "base", "b", "", "use BASE instead of the stack head for file importing")
	cmd.Flags().BoolVar(&reject, "reject", false, "leave rejected hunks in .rej files")
	cmd.Flags().BoolVar(&keepCR, "keep-cr", false, "do not strip trailing \\r from mail lines")
	cmd.Flags().BoolVar(&messageID, "message-id", false, "create a Message-Id trailer from the Message-ID header")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		stripSet = cmd.Flags().Changed("strip")
		return nil
	}

	return cmd
}
