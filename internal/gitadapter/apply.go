// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package gitadapter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// FailedPatchFile is the name of the residue file left in the worktree
// root when ApplyToWorktreeAndIndex cannot apply a diff cleanly.
const FailedPatchFile = ".stgit-failed.patch"

// ApplyOptions controls how a diff is applied to the worktree and
// index.
type ApplyOptions struct {
	// Strip is the number of leading path components to strip, as in
	// patch(1)'s -p.
	Strip int
	// ContextLines, if non-zero, overrides the number of context lines
	// git uses when looking for a fuzzy match.
	ContextLines int
	// Reject, if true, asks git to write a .rej file per hunk that
	// fails to apply rather than failing the whole apply.
	Reject bool
}

// ApplyResult reports the outcome of ApplyToWorktreeAndIndex.
type ApplyResult struct {
	// Conflicted is true if the diff could not be applied cleanly and
	// was left as a three-way merge with conflict markers in the
	// worktree and index.
	Conflicted bool
}

// ApplyToWorktreeAndIndex applies diff to both the worktree and the
// index, attempting a three-way merge if a direct apply fails. On
// failure it writes the rejected diff to FailedPatchFile in the
// worktree root and reports Conflicted.
func (c *Client) ApplyToWorktreeAndIndex(diff []byte, opts ApplyOptions) (ApplyResult, error) {
	if len(bytes.TrimSpace(diff)) == 0 {
		return ApplyResult{}, nil
	}

	args := []string{"apply", "--index"}
	args = append(args, applyCommonArgs(opts)...)

	if _, err := c.run(diff, args...); err == nil {
		return ApplyResult{}, nil
	}

	threeWayArgs := []string{"apply", "--index", "--3way"}
	threeWayArgs = append(threeWayArgs, applyCommonArgs(opts)...)
	if _, err := c.run(diff, threeWayArgs...); err == nil {
		return ApplyResult{}, nil
	}

	unmerged, err := c.DiffUnmergedNames()
	if err != nil {
		return ApplyResult{}, fmt.Errorf("applying diff: three-way apply failed and conflict detection failed: %w", err)
	}

	residue := filepath.Join(c.root, FailedPatchFile)
	if werr := os.WriteFile(residue, diff, 0644); werr != nil {
		return ApplyResult{}, fmt.Errorf("applying diff: apply failed and writing residue %s failed: %w", residue, werr)
	}
	if len(unmerged) == 0 {
		return ApplyResult{}, fmt.Errorf("diff did not apply cleanly; rejected diff written to %s", residue)
	}

	return ApplyResult{Conflicted: true}, nil
}

func applyCommonArgs(opts ApplyOptions) []string {
	var args []string
	args = append(args, fmt.Sprintf("-p%d", opts.Strip))
	if opts.ContextLines > 0 {
		args = append(args, fmt.Sprintf("-C%d", opts.ContextLines))
	}
	if opts.Reject {
		args = append(args, "--reject")
	}
	return args
}

// WriteTree writes the current index contents to a tree object and
// returns its oid.
func (c *Client) WriteTree() (string, error) {
	out, err := c.runText(nil, "write-tree")
	if err != nil {
		return "", fmt.Errorf("writing tree from index: %w", err)
	}
	return out, nil
}

// DiffTree returns the unified diff that transforms from's tree into
// to's tree, suitable for ApplyToWorktreeAndIndex.
func (c *Client) DiffTree(from, to string) ([]byte, error) {
	out, err := c.run(nil, "diff", from, to)
	if err != nil {
		return nil, fmt.Errorf("diffing %s..%s: %w", from, to, err)
	}
	return out, nil
}

// MergeTreeThreeWay performs a three-way merge of two trees against a
// common base and returns the resulting tree oid. conflicted is true
// if the result contains unresolved paths (still returned: it carries
// conflict markers, matching `git merge-tree --write-tree` behaviour).
func (c *Client) MergeTreeThreeWay(base, ours, theirs string) (tree string, conflicted bool, err error) {
	out, runErr := c.runAllowFailure(nil, "merge-tree", "--write-tree", "--merge-base="+base, ours, theirs)
	lines := bytes.SplitN(bytes.TrimSpace(out), []byte("\n"), 2)
	if len(lines) == 0 || !ValidOid(string(lines[0])) {
		return "", false, fmt.Errorf("merging trees %s/%s onto %s: %w", ours, theirs, base, runErr)
	}
	// A non-zero exit with a valid tree oid on the first line means the
	// merge completed but left conflicts recorded in the tree.
	return string(lines[0]), runErr != nil && isExitError(runErr), nil
}
