// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package transaction

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/fbenkstein/stgit/internal/gitadapter"
	"github.com/fbenkstein/stgit/internal/stack"
)

func isGitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func newTestRepo(t *testing.T) *gitadapter.Client {
	t.Helper()
	if !isGitAvailable() {
		t.Skip("git command not available")
	}
	dir := t.TempDir()
	init := exec.Command("git", "-C", dir, "init", "-q", "-b", "main")
	if out, err := init.CombinedOutput(); err != nil {
		t.Fatalf("git init: %v\n%s", err, out)
	}
	for _, kv := range [][2]string{
		{"user.name", "Test User"},
		{"user.email", "test@example.com"},
	} {
		cfg := exec.Command("git", "-C", dir, "config", kv[0], kv[1])
		if out, err := cfg.CombinedOutput(); err != nil {
			t.Fatalf("git config %s: %v\n%s", kv[0], err, out)
		}
	}
	return gitadapter.NewClient(dir)
}

// writeCommit writes path=content in the worktree, stages it, and
// commits on top of parents (nil means a root commit), returning the
// new commit's oid.
func writeCommit(t *testing.T, c *gitadapter.Client, path, content string, parents []string) string {
	t.Helper()
	full := filepath.Join(c.Root(), path)
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	add := exec.Command("git", "-C", c.Root(), "add", path)
	if out, err := add.CombinedOutput(); err != nil {
		t.Fatalf("git add %s: %v\n%s", path, err, out)
	}
	tree, err := c.WriteTree()
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	oid, err := c.CommitTree(tree, parents, "msg", "Jane Doe", "jane@example.com", "")
	if err != nil {
		t.Fatalf("CommitTree: %v", err)
	}
	reset := exec.Command("git", "-C", c.Root(), "reset", "--hard", oid)
	if out, err := reset.CombinedOutput(); err != nil {
		t.Fatalf("git reset --hard %s: %v\n%s", oid, err, out)
	}
	return oid
}

func TestPushPopRoundTrip(t *testing.T) {
	c := newTestRepo(t)
	base := writeCommit(t, c, "base.txt", "base\n", nil)
	patchOid := writeCommit(t, c, "feature.txt", "feature\n", []string{base})
	// Return the worktree to base, as if the patch were only staged as
	// an unapplied series entry, not checked out.
	reset := exec.Command("git", "-C", c.Root(), "reset", "--hard", base)
	if out, err := reset.CombinedOutput(); err != nil {
		t.Fatalf("git reset --hard base: %v\n%s", err, out)
	}

	baseline := stack.New(base)
	baseline.Unapplied = []string{"feature"}
	baseline.Patches["feature"] = stack.PatchDescriptor{Oid: patchOid}

	baselineCommit, err := stack.Persist(c, "main", baseline, "init")
	if err != nil {
		t.Fatalf("Persist(baseline): %v", err)
	}

	txn := New(c, "main", baselineCommit, baseline, Options{UseIndexAndWorktree: true})
	txn.Push("feature")
	if err := txn.Err(); err != nil {
		t.Fatalf("staging Push: %v", err)
	}

	var lines []StatusLine
	newCommit, err := txn.Execute("stg push: feature", func(l StatusLine) { lines = append(lines, l) })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if newCommit == "" {
		t.Fatalf("Execute returned empty commit oid")
	}

	foundPushed := false
	for _, l := range lines {
		if l.Kind == StatusPushed && l.Patch == "feature" {
			foundPushed = true
		}
	}
	if !foundPushed {
		t.Errorf("status sink missing pushed line for feature, got %v", lines)
	}

	loaded, err := stack.Load(c, "main")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Applied) != 1 || loaded.Applied[0] != "feature" {
		t.Errorf("loaded.Applied = %v, want [feature]", loaded.Applied)
	}
	if len(loaded.Unapplied) != 0 {
		t.Errorf("loaded.Unapplied = %v, want []", loaded.Unapplied)
	}

	content, err := os.ReadFile(filepath.Join(c.Root(), "feature.txt"))
	if err != nil {
		t.Fatalf("reading feature.txt: %v", err)
	}
	if string(content) != "feature\n" {
		t.Errorf("feature.txt = %q, want %q", content, "feature\n")
	}
}

func TestPushConflictLeavesMarkersAndResidue(t *testing.T) {
	c := newTestRepo(t)
	base := writeCommit(t, c, "file.txt", "base\n", nil)
	oursTip := writeCommit(t, c, "file.txt", "ours\n", []string{base})
	patchOid := writeCommit(t, c, "file.txt", "theirs\n", []string{base})
	// Return the worktree to the already-applied tip, as if "feature"
	// were still only a staged unapplied patch.
	reset := exec.Command("git", "-C", c.Root(), "reset", "--hard", oursTip)
	if out, err := reset.CombinedOutput(); err != nil {
		t.Fatalf("git reset --hard oursTip: %v\n%s", err, out)
	}

	baseline := stack.New(base)
	baseline.Applied = []string{"onto"}
	baseline.Patches["onto"] = stack.PatchDescriptor{Oid: oursTip}
	baseline.Unapplied = []string{"feature"}
	baseline.Patches["feature"] = stack.PatchDescriptor{Oid: patchOid}

	baselineCommit, err := stack.Persist(c, "main", baseline, "init")
	if err != nil {
		t.Fatalf("Persist(baseline): %v", err)
	}

	txn := New(c, "main", baselineCommit, baseline, Options{UseIndexAndWorktree: true, AllowConflicts: true})
	txn.Push("feature")
	if err := txn.Err(); err != nil {
		t.Fatalf("staging Push: %v", err)
	}

	var lines []StatusLine
	_, err = txn.Execute("stg push: feature", func(l StatusLine) { lines = append(lines, l) })
	var halt *HaltError
	if !errors.As(err, &halt) {
		t.Fatalf("Execute: got err=%v, want *HaltError", err)
	}
	if !halt.Conflicts {
		t.Errorf("HaltError.Conflicts = false, want true")
	}

	foundConflicted := false
	for _, l := range lines {
		if l.Kind == StatusConflicted && l.Patch == "feature" {
			foundConflicted = true
		}
	}
	if !foundConflicted {
		t.Errorf("status sink missing conflicted line for feature, got %v", lines)
	}

	content, err := os.ReadFile(filepath.Join(c.Root(), "file.txt"))
	if err != nil {
		t.Fatalf("reading file.txt: %v", err)
	}
	if !bytes.Contains(content, []byte("<<<<<<<")) {
		t.Errorf("file.txt = %q, want conflict markers", content)
	}

	if _, err := os.Stat(filepath.Join(c.Root(), gitadapter.FailedPatchFile)); err != nil {
		t.Errorf("stat %s: %v, want residue file to exist", gitadapter.FailedPatchFile, err)
	}

	loaded, err := stack.Load(c, "main")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// The conflicted patch is left applied at its original oid, per
	// HaltError's doc comment.
	if len(loaded.Applied) != 2 || loaded.Applied[0] != "onto" || loaded.Applied[1] != "feature" {
		t.Errorf("loaded.Applied = %v, want [onto feature]", loaded.Applied)
	}
	if loaded.Patches["feature"].Oid != patchOid {
		t.Errorf("loaded.Patches[feature].Oid = %s, want %s (unchanged)", loaded.Patches["feature"].Oid, patchOid)
	}
}

func TestPushRejectsNonUnappliedPatch(t *testing.T) {
	c := newTestRepo(t)
	base := writeCommit(t, c, "base.txt", "base\n", nil)
	baseline := stack.New(base)
	txn := New(c, "main", "", baseline, Options{})
	txn.Push("does-not-exist")
	if txn.Err() == nil {
		t.Errorf("Push of unknown patch: expected staging error")
	}
}

func TestPopRejectsNonTopPatch(t *testing.T) {
	base := strHash("a")
	p1 := strHash("b")
	p2 := strHash("c")
	baseline := stack.New(base)
	baseline.Applied = []string{"p1", "p2"}
	baseline.Patches["p1"] = stack.PatchDescriptor{Oid: p1}
	baseline.Patches["p2"] = stack.PatchDescriptor{Oid: p2}

	txn := New(nil, "main", "", baseline, Options{})
	txn.Pop("p1")
	if txn.Err() == nil {
		t.Errorf("Pop of non-top patch: expected staging error")
	}
}

// strHash returns a syntactically valid (but not necessarily
// dereferenceable) 40-hex-character oid derived from s, for tests
// that only exercise shadow-state staging logic and never call a git
// adapter method.
func strHash(s string) string {
	const hex = "0123456789abcdef"
	out := make([]byte, 40)
	for i := range out {
		out[i] = hex[(int(s[0])+i)%16]
	}
	return string(out)
}
