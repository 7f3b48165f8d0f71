// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package transaction implements the stack-mutation engine: the only
// code path permitted to write refs/stacks/<branch> or touch the work
// tree and index while a stack reference is held. A Transaction stages
// a sequence of pure operations against an in-memory shadow StackState,
// then executes them against a git adapter in one pass — either
// committing every effect atomically, halting with conflicts recorded
// on disk, or aborting with no on-disk change at all.
package transaction

import (
	"fmt"

	"github.com/fbenkstein/stgit/internal/gitadapter"
	"github.com/fbenkstein/stgit/internal/stack"
)

// StatusKind identifies the kind of per-patch status line emitted
// during execution: '+' pushed, '-' popped, '>' now on top, '!'
// conflicted.
type StatusKind byte

const (
	StatusPushed      StatusKind = '+'
	StatusPopped      StatusKind = '-'
	StatusNowOnTop    StatusKind = '>'
	StatusConflicted  StatusKind = '!'
)

// StatusLine is one line of transaction progress output.
type StatusLine struct {
	Kind  StatusKind
	Patch string
}

// StatusSink receives status lines in staging order as a transaction executes.
type StatusSink func(StatusLine)

// CheckoutConflictsError is returned when a checkout or merge produces
// conflicts that the transaction was not configured to tolerate; no
// state is written in this case.
type CheckoutConflictsError struct {
	Patch string
	Files []string
}

func (e *CheckoutConflictsError) Error() string {
	return fmt.Sprintf("checkout of patch %q produced conflicts in: %v", e.Patch, e.Files)
}

// HaltError is returned when a transaction halts partway through
// because of merge conflicts it was configured to tolerate. Unlike
// CheckoutConflictsError, a halt still persists a new StackState
// (reflecting everything completed up to and including the conflicted
// patch, which is left applied at its original oid) and updates the
// stack ref; the branch ref is left where it was.
type HaltError struct {
	Conflicts bool
	Reason    string
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("transaction halted: %s", e.Reason)
}

// opKind tags the staged operation variants the engine can compose.
type opKind int

const (
	opPush opKind = iota
	opPop
	opHide
	opUnhide
	opUpdatePatch
	opNewApplied
	opNewUnapplied
	opDeletePatches
	opRebase
	opCommit
)

type stagedOp struct {
	kind        opKind
	name        string
	names       []string
	newOid      string
	position    int
	predicate   func(name string) bool
	newHead     string
}

// Options configures how a transaction runs: whether it mutates the
// worktree/index, whether merge conflicts halt with partial state or
// abort outright, and whether a dirty worktree may be discarded.
type Options struct {
	UseIndexAndWorktree bool
	AllowConflicts      bool
	DiscardChanges      bool
	AllowBadHead         bool
}

// Transaction stages a sequence of stack mutations against a shadow
// StackState cloned from baseline, to be executed atomically.
type Transaction struct {
	client         *gitadapter.Client
	branch         string
	baselineCommit string
	baseline       *stack.StackState
	shadow         *stack.StackState
	opts           Options
	ops            []stagedOp
	err            error
}

// New starts a transaction over baseline (the StackState currently
// recorded at baselineCommit, the state commit refs/stacks/<branch>
// resolves to — see stack.LoadWithCommit), cloning it into an
// in-memory shadow state that staged operations mutate.
func New(client *gitadapter.Client, branch, baselineCommit string, baseline *stack.StackState, opts Options) *Transaction {
	return &Transaction{
		client:         client,
		branch:         branch,
		baselineCommit: baselineCommit,
		baseline:       baseline,
		shadow:         baseline.Clone(),
		opts:           opts,
	}
}

// Shadow returns the transaction's in-memory shadow state, reflecting
// every staged operation applied so far. Callers may inspect it to
// decide what to stage next (e.g. to find the next patch to pop).
func (t *Transaction) Shadow() *stack.StackState {
	return t.shadow
}

// Err returns the first error encountered while staging operations, if any.
func (t *Transaction) Err() error {
	return t.err
}

func (t *Transaction) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

// Push stages moving name from unapplied to the top of applied.
func (t *Transaction) Push(name string) {
	if t.err != nil {
		return
	}
	if !contains(t.shadow.Unapplied, name) {
		t.fail(fmt.Errorf("push %q: not an unapplied patch", name))
		return
	}
	t.shadow.Unapplied = remove(t.shadow.Unapplied, name)
	t.shadow.Applied = append(t.shadow.Applied, name)
	t.ops = append(t.ops, stagedOp{kind: opPush, name: name})
}

// Pop stages moving name from applied to the front of unapplied. name
// must currently be the top of the applied list or above only patches
// that are also being popped in this same transaction, in staged
// order — the engine does not reorder pops.
func (t *Transaction) Pop(name string) {
	if t.err != nil {
		return
	}
	if !contains(t.shadow.Applied, name) {
		t.fail(fmt.Errorf("pop %q: not an applied patch", name))
		return
	}
	if t.shadow.Applied[len(t.shadow.Applied)-1] != name {
		t.fail(fmt.Errorf("pop %q: not the top of the applied stack", name))
		return
	}
	t.shadow.Applied = t.shadow.Applied[:len(t.shadow.Applied)-1]
	t.shadow.Unapplied = append([]string{name}, t.shadow.Unapplied...)
	t.ops = append(t.ops, stagedOp{kind: opPop, name: name})
}

// Hide stages moving name (from applied or unapplied) into hidden.
func (t *Transaction) Hide(name string) {
	if t.err != nil {
		return
	}
	switch {
	case contains(t.shadow.Applied, name):
		if t.shadow.Applied[len(t.shadow.Applied)-1] != name {
			t.fail(fmt.Errorf("hide %q: applied patches other than the top cannot be hidden directly", name))
			return
		}
		t.shadow.Applied = t.shadow.Applied[:len(t.shadow.Applied)-1]
	case contains(t.shadow.Unapplied, name):
		t.shadow.Unapplied = remove(t.shadow.Unapplied, name)
	default:
		t.fail(fmt.Errorf("hide %q: not an applied or unapplied patch", name))
		return
	}
	t.shadow.Hidden = append(t.shadow.Hidden, name)
	t.ops = append(t.ops, stagedOp{kind: opHide, name: name})
}

// Unhide stages moving name from hidden back into unapplied.
func (t *Transaction) Unhide(name string) {
	if t.err != nil {
		return
	}
	if !contains(t.shadow.Hidden, name) {
		t.fail(fmt.Errorf("unhide %q: not a hidden patch", name))
		return
	}
	t.shadow.Hidden = remove(t.shadow.Hidden, name)
	t.shadow.Unapplied = append(t.shadow.Unapplied, name)
	t.ops = append(t.ops, stagedOp{kind: opUnhide, name: name})
}

// UpdatePatch stages replacing name's commit object with newOid,
// preserving its current list membership.
func (t *Transaction) UpdatePatch(name, newOid string) {
	if t.err != nil {
		return
	}
	if _, ok := t.shadow.Patches[name]; !ok {
		t.fail(fmt.Errorf("update %q: no such patch", name))
		return
	}
	t.shadow.Patches[name] = stack.PatchDescriptor{Oid: newOid}
	t.ops = append(t.ops, stagedOp{kind: opUpdatePatch, name: name, newOid: newOid})
}

// NewApplied stages creating a brand-new patch at the top of applied.
func (t *Transaction) NewApplied(name, oid string) {
	if t.err != nil {
		return
	}
	if _, exists := t.shadow.Patches[name]; exists {
		t.fail(fmt.Errorf("new applied patch %q: name already in use", name))
		return
	}
	t.shadow.Patches[name] = stack.PatchDescriptor{Oid: oid}
	t.shadow.Applied = append(t.shadow.Applied, name)
	t.ops = append(t.ops, stagedOp{kind: opNewApplied, name: name, newOid: oid})
}

// NewUnapplied stages creating a brand-new patch inserted into
// unapplied at position (0 means front, i.e. next to be pushed).
func (t *Transaction) NewUnapplied(name, oid string, position int) {
	if t.err != nil {
		return
	}
	if _, exists := t.shadow.Patches[name]; exists {
		t.fail(fmt.Errorf("new unapplied patch %q: name already in use", name))
		return
	}
	if position < 0 || position > len(t.shadow.Unapplied) {
		position = len(t.shadow.Unapplied)
	}
	t.shadow.Patches[name] = stack.PatchDescriptor{Oid: oid}
	u := t.shadow.Unapplied
	u = append(u[:position], append([]string{name}, u[position:]...)...)
	t.shadow.Unapplied = u
	t.ops = append(t.ops, stagedOp{kind: opNewUnapplied, name: name, newOid: oid, position: position})
}

// DeletePatches stages removing every unapplied or hidden patch for
// which predicate returns true. Applied patches are never deleted by
// this primitive — pop them first.
func (t *Transaction) DeletePatches(predicate func(name string) bool) {
	if t.err != nil {
		return
	}
	filter := func(names []string) []string {
		var kept []string
		for _, n := range names {
			if predicate(n) {
				delete(t.shadow.Patches, n)
			} else {
				kept = append(kept, n)
			}
		}
		return kept
	}
	t.shadow.Unapplied = filter(t.shadow.Unapplied)
	t.shadow.Hidden = filter(t.shadow.Hidden)
	t.ops = append(t.ops, stagedOp{kind: opDeletePatches, predicate: predicate})
}

// Rebase stages changing the stack's base to newHead. All currently
// applied patches remain listed as applied. Execute treats this as a
// metadata-only change: the applied patches' commits are not
// recomputed and keep their existing parents.
func (t *Transaction) Rebase(newHead string) {
	if t.err != nil {
		return
	}
	t.shadow.Head = newHead
	t.ops = append(t.ops, stagedOp{kind: opRebase, newHead: newHead})
}

// Commit stages turning the bottom count applied patches into
// permanent history: their commits are left untouched, but they are
// dropped from applied and from the patch table, and head advances to
// the oid of the last one committed. count must not exceed the number
// of currently applied patches.
func (t *Transaction) Commit(count int) {
	if t.err != nil {
		return
	}
	if count < 0 || count > len(t.shadow.Applied) {
		t.fail(fmt.Errorf("commit: count %d exceeds %d applied patches", count, len(t.shadow.Applied)))
		return
	}
	if count == 0 {
		return
	}
	names := append([]string(nil), t.shadow.Applied[:count]...)
	newHead := t.shadow.Patches[names[len(names)-1]].Oid

	t.shadow.Applied = append([]string(nil), t.shadow.Applied[count:]...)
	for _, name := range names {
		delete(t.shadow.Patches, name)
	}
	t.shadow.Head = newHead
	t.ops = append(t.ops, stagedOp{kind: opCommit, names: names, newHead: newHead})
}

// Execute runs the five execution phases against the staged
// operations: precondition check, materialisation (with three-way
// merge and conflict handling), work-tree checkout, state commit, and
// branch-pointer update. sink receives status lines as each primitive
// completes.
func (t *Transaction) Execute(reflogMsg string, sink StatusSink) (newStackCommit string, err error) {
	if t.err != nil {
		return "", t.err
	}
	if sink == nil {
		sink = func(StatusLine) {}
	}

	if t.opts.UseIndexAndWorktree && !t.opts.DiscardChanges {
		if err := t.client.CheckIndexAndWorktreeClean(); err != nil {
			return "", fmt.Errorf("precondition failed: %w", err)
		}
	}

	tip := t.baseline.Top()
	for _, op := range t.ops {
		switch op.kind {
		case opPush:
			newTip, conflicted, err := t.materializePush(tip, op.name)
			if err != nil {
				return "", err
			}
			if conflicted {
				if !t.opts.AllowConflicts {
					return "", &CheckoutConflictsError{Patch: op.name}
				}
				sink(StatusLine{Kind: StatusConflicted, Patch: op.name})
				return t.persistHalt(reflogMsg, fmt.Sprintf("conflicts applying patch %q", op.name))
			}
			t.shadow.Patches[op.name] = stack.PatchDescriptor{Oid: newTip}
			tip = newTip
			sink(StatusLine{Kind: StatusPushed, Patch: op.name})
		case opPop:
			parents, err := t.client.CommitParents(t.shadow.Patches[op.name].Oid)
			if err != nil {
				return "", fmt.Errorf("popping %q: %w", op.name, err)
			}
			if len(parents) != 1 {
				return "", fmt.Errorf("popping %q: expected exactly one parent, found %d", op.name, len(parents))
			}
			tip = parents[0]
			sink(StatusLine{Kind: StatusPopped, Patch: op.name})
		case opHide, opUnhide, opUpdatePatch, opNewApplied, opNewUnapplied, opDeletePatches, opRebase, opCommit:
			// Pure metadata operations: already applied to the shadow
			// state during staging, nothing to materialise.
		}
	}

	if t.opts.UseIndexAndWorktree {
		if err := t.checkoutTip(tip); err != nil {
			return "", &CheckoutConflictsError{Patch: "<worktree checkout>", Files: []string{err.Error()}}
		}
	}

	if len(t.shadow.Applied) > 0 {
		sink(StatusLine{Kind: StatusNowOnTop, Patch: t.shadow.Applied[len(t.shadow.Applied)-1]})
	}

	branchTip := t.shadow.Top()
	if err := t.shadow.Validate(branchTip); err != nil {
		return "", fmt.Errorf("refusing to persist broken stack state: %w", err)
	}

	t.shadow.Prev = t.baselineCommit
	commitOid, err := stack.Persist(t.client, t.branch, t.shadow, reflogMsg)
	if err != nil {
		return "", fmt.Errorf("persisting new stack state: %w", err)
	}

	if err := t.client.UpdateRef("refs/heads/"+t.branch, branchTip, "", reflogMsg); err != nil {
		return "", fmt.Errorf("updating branch %s: %w", t.branch, err)
	}

	return commitOid, nil
}

// materializePush computes the tree resulting from applying patch
// name's change on top of tip via a three-way merge (patch's parent
// tree as merge base, tip as "ours", patch's own tree as "theirs"),
// and creates a new commit for the patch with that tree, tip as
// parent, and the patch's original metadata.
func (t *Transaction) materializePush(tip, name string) (newCommit string, conflicted bool, err error) {
	origOid := t.shadow.Patches[name].Oid
	parents, err := t.client.CommitParents(origOid)
	if err != nil || len(parents) != 1 {
		return "", false, fmt.Errorf("patch %q must have exactly one parent", name)
	}
	baseTree, err := t.client.CommitTreeOid(parents[0])
	if err != nil {
		return "", false, err
	}
	theirsTree, err := t.client.CommitTreeOid(origOid)
	if err != nil {
		return "", false, err
	}

	var mergedTree string
	if t.opts.UseIndexAndWorktree {
		mergedTree, conflicted, err = t.applyPushToWorktree(tip, baseTree, theirsTree)
	} else {
		oursTree, terr := t.client.CommitTreeOid(tip)
		if terr != nil {
			return "", false, terr
		}
		mergedTree, conflicted, err = t.client.MergeTreeThreeWay(baseTree, oursTree, theirsTree)
	}
	if err != nil {
		return "", false, err
	}
	if conflicted {
		return "", true, nil
	}

	name2, email, date, err := t.client.CommitAuthorMeta(origOid)
	if err != nil {
		return "", false, err
	}
	message, err := t.commitMessage(origOid)
	if err != nil {
		return "", false, err
	}
	newCommit, err = t.client.CommitTree(mergedTree, []string{tip}, message, name2, email, date)
	if err != nil {
		return "", false, err
	}
	return newCommit, false, nil
}

// applyPushToWorktree checks out tip into the worktree and index, then
// applies the diff from baseTree to theirsTree (the patch's own
// change as originally recorded) against that checkout. A clean apply
// yields the merged tree via WriteTree; a conflicted one leaves
// conflict markers in the worktree and FailedPatchFile on disk, both
// written by ApplyToWorktreeAndIndex's own three-way fallback.
func (t *Transaction) applyPushToWorktree(tip, baseTree, theirsTree string) (tree string, conflicted bool, err error) {
	if err := t.checkoutTip(tip); err != nil {
		return "", false, fmt.Errorf("checking out %s before push: %w", tip, err)
	}
	diff, err := t.client.DiffTree(baseTree, theirsTree)
	if err != nil {
		return "", false, err
	}
	result, err := t.client.ApplyToWorktreeAndIndex(diff, gitadapter.ApplyOptions{Strip: 1})
	if err != nil {
		return "", false, err
	}
	if result.Conflicted {
		return "", true, nil
	}
	tree, err = t.client.WriteTree()
	if err != nil {
		return "", false, err
	}
	return tree, false, nil
}

func (t *Transaction) commitMessage(oid string) (string, error) {
	return t.client.CommitMessage(oid)
}

// checkoutTip replays tip's tree into the work tree and index. Any
// failure here (e.g. a dirty worktree change the precondition check
// did not anticipate) is reported as a checkout conflict.
func (t *Transaction) checkoutTip(tip string) error {
	treeOid, err := t.client.CommitTreeOid(tip)
	if err != nil {
		return err
	}
	return t.client.CheckoutTree(treeOid)
}

// persistHalt persists the current shadow state (reflecting
// everything completed up to and including the conflicted operation)
// and returns a HaltError rather than aborting with no on-disk change.
func (t *Transaction) persistHalt(reflogMsg, reason string) (string, error) {
	// The branch ref is not advanced on halt, so head consistency
	// (invariant 3) is out of scope here; the structural invariants
	// (disjoint lists, domain closure, well-formed oids) still must
	// hold for whatever gets written to refs/stacks/<branch>.
	if err := t.shadow.Validate(""); err != nil {
		return "", fmt.Errorf("refusing to persist broken stack state: %w", err)
	}

	t.shadow.Prev = t.baselineCommit
	commitOid, err := stack.Persist(t.client, t.branch, t.shadow, reflogMsg)
	if err != nil {
		return "", fmt.Errorf("persisting halted stack state: %w", err)
	}
	return commitOid, &HaltError{Conflicts: true, Reason: reason}
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

func remove(list []string, name string) []string {
	out := make([]string, 0, len(list))
	for _, n := range list {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
