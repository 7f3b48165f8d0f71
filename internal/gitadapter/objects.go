// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package gitadapter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// TreeEntry is one line of a `git mktree` input: a single tree entry
// naming a blob, a subtree, or a commit (gitlink).
type TreeEntry struct {
	Mode string // e.g. "100644", "100755", "040000"
	Type string // "blob", "tree", "commit"
	Oid  string
	Name string
}

// HashObjectBlob writes data to the object database as a blob and
// returns its oid, without touching the index.
func (c *Client) HashObjectBlob(data []byte) (string, error) {
	out, err := c.runText(data, "hash-object", "-w", "--stdin")
	if err != nil {
		return "", fmt.Errorf("hashing blob: %w", err)
	}
	return out, nil
}

// MakeTree builds a tree object from entries and returns its oid.
// Entries need not be pre-sorted; `git mktree` sorts them.
func (c *Client) MakeTree(entries []TreeEntry) (string, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s %s %s\t%s\n", e.Mode, e.Type, e.Oid, e.Name)
	}
	out, err := c.runText(buf.Bytes(), "mktree")
	if err != nil {
		return "", fmt.Errorf("building tree: %w", err)
	}
	return out, nil
}

// CatFileBlob returns the raw contents of a blob object.
func (c *Client) CatFileBlob(oid string) ([]byte, error) {
	out, err := c.run(nil, "cat-file", "blob", oid)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", oid, err)
	}
	return out, nil
}

// CommitTree creates a commit object with the given tree and parents,
// and returns its oid. A non-empty authorName, authorEmail, or
// authorDate overrides both the author and the committer value of that
// field (via GIT_AUTHOR_* and GIT_COMMITTER_*); an empty one leaves the
// process environment or config identity in place.
func (c *Client) CommitTree(tree string, parents []string, message, authorName, authorEmail, authorDate string) (string, error) {
	args := []string{"commit-tree", tree}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	args = append(args, "-m", message)

	var env []string
	if authorName != "" {
		env = append(env, "GIT_AUTHOR_NAME="+authorName, "GIT_COMMITTER_NAME="+authorName)
	}
	if authorEmail != "" {
		env = append(env, "GIT_AUTHOR_EMAIL="+authorEmail, "GIT_COMMITTER_EMAIL="+authorEmail)
	}
	if authorDate != "" {
		env = append(env, "GIT_AUTHOR_DATE="+authorDate, "GIT_COMMITTER_DATE="+authorDate)
	}

	out, err := c.runTextEnv(env, nil, args...)
	if err != nil {
		return "", fmt.Errorf("creating commit on tree %s: %w", tree, err)
	}
	return out, nil
}

// CommitParents returns the parent oids of a commit, in order.
func (c *Client) CommitParents(oid string) ([]string, error) {
	out, err := c.runText(nil, "rev-parse", oid+"^@")
	if err != nil {
		if isExitError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading parents of %s: %w", oid, err)
	}
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// CommitTreeOid returns the tree oid of a commit.
func (c *Client) CommitTreeOid(oid string) (string, error) {
	out, err := c.runText(nil, "rev-parse", oid+"^{tree}")
	if err != nil {
		return "", fmt.Errorf("reading tree of %s: %w", oid, err)
	}
	return out, nil
}

// TreeEntryOid returns the oid of a single named entry within tree,
// or ok=false if no such entry exists.
func (c *Client) TreeEntryOid(tree, name string) (oid string, ok bool, err error) {
	out, err := c.run(nil, "ls-tree", tree, "--", name)
	if err != nil {
		return "", false, fmt.Errorf("listing tree %s: %w", tree, err)
	}
	line := strings.TrimSpace(string(out))
	if line == "" {
		return "", false, nil
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return "", false, fmt.Errorf("malformed ls-tree output for %s: %q", name, line)
	}
	return fields[2], true, nil
}

// ValidOid reports whether s looks like a full hex object id (the
// length git uses for the configured hash algorithm: 40 for SHA-1, 64
// for SHA-256).
func ValidOid(s string) bool {
	switch len(s) {
	case 40, 64:
	default:
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}

// CommitAuthorMeta returns a commit's author name, email, and date
// formatted as "YYYY-MM-DD HH:MM:SS +HHMM" in the commit's own
// timezone, exactly the format the patch meta blob embeds.
func (c *Client) CommitAuthorMeta(oid string) (name, email, date string, err error) {
	out, runErr := c.runText(nil, "log", "-1", "--format=%an%n%ae%n%ad", "--date=format:%Y-%m-%d %H:%M:%S %z", oid)
	if runErr != nil {
		return "", "", "", fmt.Errorf("reading author metadata for %s: %w", oid, runErr)
	}
	lines := strings.SplitN(out, "\n", 3)
	if len(lines) != 3 {
		return "", "", "", fmt.Errorf("malformed author metadata for %s: %q", oid, out)
	}
	return lines[0], lines[1], lines[2], nil
}

// CommitMessage returns a commit's full message (subject + body).
func (c *Client) CommitMessage(oid string) (string, error) {
	out, err := c.run(nil, "log", "-1", "--format=%B", oid)
	if err != nil {
		return "", fmt.Errorf("reading message of %s: %w", oid, err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// CheckoutTree replaces the contents of both the index and the work
// tree with tree, failing rather than discarding any worktree change
// that tree does not already account for.
func (c *Client) CheckoutTree(tree string) error {
	if _, err := c.run(nil, "read-tree", "-u", "-m", "HEAD", tree); err != nil {
		return fmt.Errorf("checking out tree %s: %w", tree, err)
	}
	return nil
}

// ParseMode validates a tree entry mode string like "100644".
func ParseMode(mode string) (int, error) {
	n, err := strconv.ParseInt(mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid tree entry mode %q: %w", mode, err)
	}
	return int(n), nil
}
