// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fbenkstein/stgit/internal/gitadapter"
)

// Ref returns the authoritative state ref for a branch: refs/stacks/<branch>.
func Ref(branch string) string {
	return "refs/stacks/" + branch
}

// Load reads the current StackState for branch from refs/stacks/<branch>.
// Absence of the ref, or a stack.json that fails to parse, is reported
// as a "stack not initialised" error naming the branch.
func Load(c *gitadapter.Client, branch string) (*StackState, error) {
	state, _, err := LoadWithCommit(c, branch)
	return state, err
}

// LoadWithCommit is Load, additionally returning the state commit oid
// that refs/stacks/<branch> currently resolves to — the value a
// transaction needs as its baseline commit so the next state it
// writes chains onto this one via prev.
func LoadWithCommit(c *gitadapter.Client, branch string) (*StackState, string, error) {
	ref := Ref(branch)
	oid, ok, err := c.ResolveRef(ref)
	if err != nil {
		return nil, "", fmt.Errorf("resolving %s: %w", ref, err)
	}
	if !ok {
		return nil, "", fmt.Errorf("stack not initialised for branch %q", branch)
	}
	state, _, err := loadFromCommit(c, oid)
	if err != nil {
		return nil, "", fmt.Errorf("stack not initialised for branch %q: %w", branch, err)
	}
	return state, oid, nil
}

// loadFromCommit reads a StackState from a state commit, returning it
// alongside the commit's meta tree oid (needed by Persist to reuse
// unchanged patch meta blobs).
func loadFromCommit(c *gitadapter.Client, commitOid string) (*StackState, string, error) {
	tree, err := c.CommitTreeOid(commitOid)
	if err != nil {
		return nil, "", fmt.Errorf("reading tree of state commit %s: %w", commitOid, err)
	}
	blobOid, ok, err := c.TreeEntryOid(tree, "stack.json")
	if err != nil {
		return nil, "", fmt.Errorf("looking up stack.json in %s: %w", tree, err)
	}
	if !ok {
		return nil, "", fmt.Errorf("stack.json not found in tree %s", tree)
	}
	data, err := c.CatFileBlob(blobOid)
	if err != nil {
		return nil, "", fmt.Errorf("reading stack.json blob %s: %w", blobOid, err)
	}
	var state StackState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, "", err
	}
	return &state, tree, nil
}

// Persist writes state as a new state commit, chained onto the
// existing log via state.Prev, and updates refs/stacks/<branch> to
// point at it (as the final "branch pointer" step of the transaction
// execution phases, the caller separately updates the actual branch
// ref to state.Top()). message becomes both the simplified-parent
// commit's and the state commit's message — the reflog message for
// the update.
func Persist(c *gitadapter.Client, branch string, state *StackState, message string) (commitOid string, err error) {
	var prevState *StackState
	var prevTree string
	if state.Prev != "" {
		prevState, prevTree, err = loadFromCommit(c, state.Prev)
		if err != nil {
			return "", fmt.Errorf("loading previous state %s: %w", state.Prev, err)
		}
	}

	metaTree, err := buildMetaTree(c, state, prevState, prevTree)
	if err != nil {
		return "", fmt.Errorf("building state tree: %w", err)
	}

	var simplifiedParents []string
	if state.Prev != "" {
		parents, err := c.CommitParents(state.Prev)
		if err != nil {
			return "", fmt.Errorf("reading parents of previous state %s: %w", state.Prev, err)
		}
		if len(parents) == 0 {
			return "", fmt.Errorf("previous state commit %s unexpectedly has no parents", state.Prev)
		}
		simplifiedParents = []string{parents[0]}
	}
	simplifiedParent, err := c.CommitTree(metaTree, simplifiedParents, message, "", "", "")
	if err != nil {
		return "", fmt.Errorf("writing simplified-parent commit: %w", err)
	}

	noveltyOids := noveltySet(state, prevState)

	// The bound in Testable Property 9 ("no state commit... has more
	// than 16 parents") applies to the state commit's total parent
	// count, not just the novelty set — so the simplified parent is
	// folded in alongside the novelty set before reducing to MaxParents.
	allParents := append([]string{simplifiedParent}, noveltyOids...)
	reduced, err := foldIntoGroups(c, metaTree, allParents)
	if err != nil {
		return "", fmt.Errorf("folding state-commit parents: %w", err)
	}

	commitOid, err = c.CommitTree(metaTree, reduced, message, "", "", "")
	if err != nil {
		return "", fmt.Errorf("writing state commit: %w", err)
	}

	ref := Ref(branch)
	oldOid := ""
	if state.Prev != "" {
		if resolved, ok, rerr := c.ResolveRef(ref); rerr == nil && ok {
			oldOid = resolved
		}
	}
	if err := c.UpdateRef(ref, commitOid, oldOid, message); err != nil {
		return "", fmt.Errorf("updating %s: %w", ref, err)
	}

	return commitOid, nil
}

// noveltySet computes { head, top-of-applied } ∪ { oid of every
// unapplied or hidden patch } \ { oid of every patch already present
// in the previous state }, sorted for determinism (the original
// HashSet iteration order carries no meaning; tests rely only on set
// membership and the 16-parent bound).
func noveltySet(state, prevState *StackState) []string {
	set := map[string]bool{
		state.Head: true,
		state.Top(): true,
	}
	for _, name := range state.Unapplied {
		set[state.Patches[name].Oid] = true
	}
	for _, name := range state.Hidden {
		set[state.Patches[name].Oid] = true
	}
	if prevState != nil {
		for _, name := range prevState.AllPatches() {
			delete(set, prevState.Patches[name].Oid)
		}
	}
	oids := make([]string, 0, len(set))
	for oid := range set {
		oids = append(oids, oid)
	}
	sort.Strings(oids)
	return oids
}

// foldIntoGroups reduces oids to at most MaxParents entries by
// repeatedly committing the tail of the list as a "parent grouping"
// commit and replacing that tail with the grouping commit's oid.
func foldIntoGroups(c *gitadapter.Client, tree string, oids []string) ([]string, error) {
	for len(oids) > MaxParents {
		tail := oids[len(oids)-MaxParents:]
		head := oids[:len(oids)-MaxParents]
		groupOid, err := c.CommitTree(tree, tail, "parent grouping", "", "", "")
		if err != nil {
			return nil, fmt.Errorf("writing parent grouping commit: %w", err)
		}
		oids = append(head, groupOid)
	}
	return oids, nil
}

// buildMetaTree builds the two-entry state tree (stack.json + patches/).
func buildMetaTree(c *gitadapter.Client, state, prevState *StackState, prevTree string) (string, error) {
	patchesTree, err := buildPatchesTree(c, state, prevState, prevTree)
	if err != nil {
		return "", fmt.Errorf("building patches tree: %w", err)
	}

	stackJSON, err := state.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshaling stack.json: %w", err)
	}
	stackJSONOid, err := c.HashObjectBlob(stackJSON)
	if err != nil {
		return "", fmt.Errorf("writing stack.json blob: %w", err)
	}

	return c.MakeTree([]gitadapter.TreeEntry{
		{Mode: "100644", Type: "blob", Oid: stackJSONOid, Name: "stack.json"},
		{Mode: "040000", Type: "tree", Oid: patchesTree, Name: "patches"},
	})
}

// buildPatchesTree builds the patches/ subtree, reusing a prior
// patch's meta blob verbatim when (name, oid) is unchanged from the
// previous state.
func buildPatchesTree(c *gitadapter.Client, state, prevState *StackState, prevTree string) (string, error) {
	var entries []gitadapter.TreeEntry
	for _, name := range state.AllPatches() {
		oid := state.Patches[name].Oid
		blobOid, err := patchMetaBlob(c, prevState, prevTree, name, oid)
		if err != nil {
			return "", fmt.Errorf("building patch meta for %q: %w", name, err)
		}
		entries = append(entries, gitadapter.TreeEntry{Mode: "100644", Type: "blob", Oid: blobOid, Name: name})
	}
	return c.MakeTree(entries)
}

// patchMetaBlob returns the patches/<name> blob oid for a patch commit
// oid, reusing the previous state's blob verbatim when (name, oid)
// matches.
func patchMetaBlob(c *gitadapter.Client, prevState *StackState, prevTree, name, oid string) (string, error) {
	if prevState != nil {
		if prevDesc, ok := prevState.Patches[name]; ok && prevDesc.Oid == oid {
			if blobOid, found, err := c.TreeEntryOid(prevTree, "patches/"+name); err == nil && found {
				return blobOid, nil
			}
		}
	}

	parents, err := c.CommitParents(oid)
	if err != nil {
		return "", fmt.Errorf("reading parent of patch commit %s: %w", oid, err)
	}
	if len(parents) != 1 {
		return "", fmt.Errorf("patch commit %s must have exactly one parent, has %d", oid, len(parents))
	}
	parentTree, err := c.CommitTreeOid(parents[0])
	if err != nil {
		return "", fmt.Errorf("reading parent tree of %s: %w", oid, err)
	}
	commitTree, err := c.CommitTreeOid(oid)
	if err != nil {
		return "", fmt.Errorf("reading tree of %s: %w", oid, err)
	}
	authorName, authorEmail, authorDate, err := c.CommitAuthorMeta(oid)
	if err != nil {
		return "", fmt.Errorf("reading author metadata of %s: %w", oid, err)
	}

	meta := fmt.Sprintf("Bottom: %s\nTop:    %s\nAuthor: %s <%s>\nDate:   %s\n",
		parentTree, commitTree, authorName, authorEmail, authorDate)
	return c.HashObjectBlob([]byte(meta))
}
