// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"encoding/json"
	"os/exec"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fbenkstein/stgit/internal/gitadapter"
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
	init := exec.Command("git", "-C", dir, "init", "-q")
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

// emptyCommit creates a commit on the empty tree with the given
// parents and message, returning its oid.
func emptyCommit(t *testing.T, c *gitadapter.Client, parents []string, message string) string {
	t.Helper()
	tree, err := c.MakeTree(nil)
	if err != nil {
		t.Fatalf("MakeTree: %v", err)
	}
	oid, err := c.CommitTree(tree, parents, message, "Jane Doe", "jane@example.com", "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("CommitTree: %v", err)
	}
	return oid
}

func TestStackStateJSONRoundTrip(t *testing.T) {
	oid1 := strings.Repeat("a", 40)
	oid2 := strings.Repeat("b", 40)
	oid3 := strings.Repeat("c", 40)

	state := &StackState{
		Prev: oid3,
		Head: oid1,
		Applied: []string{"first"},
		Unapplied: []string{"second"},
		Hidden: []string{},
		Patches: map[string]PatchDescriptor{
			"first":  {Oid: oid1},
			"second": {Oid: oid2},
		},
	}

	data, err := state.MarshalJSON()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// The writer always emits version as the quoted string "5".
	if !strings.Contains(string(data), `"version": "5"`) {
		t.Errorf("marshaled JSON missing quoted version field: %s", data)
	}

	var roundTripped StackState
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(state, &roundTripped); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStackStateUnmarshalAcceptsBareNumberVersion(t *testing.T) {
	raw := `{"version":5,"prev":null,"head":"` + strings.Repeat("a", 40) + `","applied":[],"unapplied":[],"hidden":[],"patches":{}}`
	var s StackState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("Unmarshal with bare-number version: %v", err)
	}
}

func TestStackStateUnmarshalRejectsWrongVersion(t *testing.T) {
	raw := `{"version":"4","prev":null,"head":"` + strings.Repeat("a", 40) + `","applied":[],"unapplied":[],"hidden":[],"patches":{}}`
	var s StackState
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		t.Errorf("Unmarshal with wrong version: expected error")
	}
}

func TestStackStateUnmarshalRejectsMalformedOid(t *testing.T) {
	raw := `{"version":"5","prev":null,"head":"not-an-oid","applied":[],"unapplied":[],"hidden":[],"patches":{}}`
	var s StackState
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		t.Errorf("Unmarshal with malformed head oid: expected error")
	}
}

func TestValidateDetectsListOverlap(t *testing.T) {
	oid := strings.Repeat("a", 40)
	s := &StackState{
		Head:      oid,
		Applied:   []string{"p"},
		Unapplied: []string{"p"},
		Patches:   map[string]PatchDescriptor{"p": {Oid: oid}},
	}
	if err := s.Validate(""); err == nil {
		t.Errorf("Validate: expected error for patch in two lists")
	}
}

func TestValidateDetectsTableMismatch(t *testing.T) {
	oid := strings.Repeat("a", 40)
	s := &StackState{
		Head:    oid,
		Applied: []string{"p"},
		Patches: map[string]PatchDescriptor{},
	}
	if err := s.Validate(""); err == nil {
		t.Errorf("Validate: expected error for patch missing from table")
	}
}

func TestValidateChecksBranchTip(t *testing.T) {
	oid := strings.Repeat("a", 40)
	other := strings.Repeat("b", 40)
	s := &StackState{
		Head:    oid,
		Applied: []string{"p"},
		Patches: map[string]PatchDescriptor{"p": {Oid: oid}},
	}
	if err := s.Validate(other); err == nil {
		t.Errorf("Validate: expected error when branch tip does not match top applied patch")
	}
	if err := s.Validate(oid); err != nil {
		t.Errorf("Validate: unexpected error when branch tip matches: %v", err)
	}
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	c := newTestRepo(t)
	head := emptyCommit(t, c, nil, "root")
	patchOid := emptyCommit(t, c, []string{head}, "a patch")

	state := New(head)
	state.Applied = []string{"my-patch"}
	state.Patches["my-patch"] = PatchDescriptor{Oid: patchOid}

	commitOid, err := Persist(c, "main", state, "stg push: my-patch")
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if commitOid == "" {
		t.Fatalf("Persist returned empty commit oid")
	}

	loaded, err := Load(c, "main")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(state.Applied, loaded.Applied); diff != "" {
		t.Errorf("loaded.Applied mismatch (-want +got):\n%s", diff)
	}
	if loaded.Head != head {
		t.Errorf("loaded.Head = %s, want %s", loaded.Head, head)
	}
	if loaded.Patches["my-patch"].Oid != patchOid {
		t.Errorf("loaded patch oid = %s, want %s", loaded.Patches["my-patch"].Oid, patchOid)
	}

	ref := Ref("main")
	resolved, ok, err := c.ResolveRef(ref)
	if err != nil || !ok {
		t.Fatalf("ResolveRef(%s): ok=%v err=%v", ref, ok, err)
	}
	if resolved != commitOid {
		t.Errorf("ref %s = %s, want %s", ref, resolved, commitOid)
	}
}

func TestPersistReusesUnchangedPatchMetaBlob(t *testing.T) {
	c := newTestRepo(t)
	head := emptyCommit(t, c, nil, "root")
	patchOid := emptyCommit(t, c, []string{head}, "a patch")

	state := New(head)
	state.Applied = []string{"my-patch"}
	state.Patches["my-patch"] = PatchDescriptor{Oid: patchOid}
	firstCommit, err := Persist(c, "main", state, "first")
	if err != nil {
		t.Fatalf("Persist (first): %v", err)
	}
	firstTree, err := c.CommitTreeOid(firstCommit)
	if err != nil {
		t.Fatalf("CommitTreeOid: %v", err)
	}
	firstBlob, ok, err := c.TreeEntryOid(firstTree, "patches/my-patch")
	if err != nil || !ok {
		t.Fatalf("TreeEntryOid(first): ok=%v err=%v", ok, err)
	}

	// Second state: unrelated unapplied patch added, but my-patch
	// unchanged. Its meta blob should be reused verbatim.
	otherOid := emptyCommit(t, c, []string{head}, "other patch")
	second := state.Clone()
	second.Prev = firstCommit
	second.Unapplied = []string{"other-patch"}
	second.Patches["other-patch"] = PatchDescriptor{Oid: otherOid}

	secondCommit, err := Persist(c, "main", second, "second")
	if err != nil {
		t.Fatalf("Persist (second): %v", err)
	}
	secondTree, err := c.CommitTreeOid(secondCommit)
	if err != nil {
		t.Fatalf("CommitTreeOid: %v", err)
	}
	secondBlob, ok, err := c.TreeEntryOid(secondTree, "patches/my-patch")
	if err != nil || !ok {
		t.Fatalf("TreeEntryOid(second): ok=%v err=%v", ok, err)
	}
	if secondBlob != firstBlob {
		t.Errorf("patches/my-patch blob changed across an unrelated update: %s != %s", secondBlob, firstBlob)
	}
}

func TestFoldIntoGroupsRespectsMaxParents(t *testing.T) {
	c := newTestRepo(t)
	tree, err := c.MakeTree(nil)
	if err != nil {
		t.Fatalf("MakeTree: %v", err)
	}

	var oids []string
	for i := 0; i < MaxParents+5; i++ {
		oids = append(oids, emptyCommit(t, c, nil, "leaf"))
	}

	reduced, err := foldIntoGroups(c, tree, oids)
	if err != nil {
		t.Fatalf("foldIntoGroups: %v", err)
	}
	if len(reduced) > MaxParents {
		t.Fatalf("foldIntoGroups returned %d parents, want <= %d", len(reduced), MaxParents)
	}

	// The grouping commit(s) introduced must themselves respect the
	// MaxParents bound, and transitively reference every original oid.
	seen := map[string]bool{}
	var walk func(oid string)
	walk = func(oid string) {
		if seen[oid] {
			return
		}
		seen[oid] = true
		parents, err := c.CommitParents(oid)
		if err != nil {
			t.Fatalf("CommitParents(%s): %v", oid, err)
		}
		if len(parents) > MaxParents {
			t.Errorf("commit %s has %d parents, want <= %d", oid, len(parents), MaxParents)
		}
		for _, p := range parents {
			walk(p)
		}
	}
	for _, oid := range reduced {
		walk(oid)
	}
	for _, oid := range oids {
		if !seen[oid] {
			t.Errorf("original parent %s lost during grouping", oid)
		}
	}
}

func TestNoveltySetExcludesPreviousStatePatches(t *testing.T) {
	head := strings.Repeat("a", 40)
	unchangedOid := strings.Repeat("b", 40)
	newOid := strings.Repeat("c", 40)

	prev := New(head)
	prev.Applied = []string{"kept"}
	prev.Patches["kept"] = PatchDescriptor{Oid: unchangedOid}

	next := prev.Clone()
	next.Unapplied = []string{"new"}
	next.Patches["new"] = PatchDescriptor{Oid: newOid}

	got := noveltySet(next, prev)
	sort.Strings(got)

	for _, oid := range got {
		if oid == unchangedOid {
			t.Errorf("noveltySet included unchanged previous-state patch oid %s", unchangedOid)
		}
	}
	found := false
	for _, oid := range got {
		if oid == newOid {
			found = true
		}
	}
	if !found {
		t.Errorf("noveltySet missing new patch oid %s, got %v", newOid, got)
	}
}
