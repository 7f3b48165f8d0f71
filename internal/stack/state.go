// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package stack implements the StackState data model: the authoritative
// applied/unapplied/hidden patch lists, head pointer, and prior-state
// chain that a patch stack maintains over a git branch, plus its
// persistence as a content-addressed commit history.
package stack

import (
	"fmt"

	"github.com/fbenkstein/stgit/internal/gitadapter"
)

// MaxParents bounds the number of parents a state or grouping commit
// may carry; novelty sets larger than this are folded into a chain of
// "parent grouping" commits.
const MaxParents = 16

// StackVersion is the only stack.json schema version this
// implementation reads or writes.
const StackVersion = 5

// PatchDescriptor names the commit backing a single patch. The commit's
// tree is the post-patch state; its single parent is the pre-patch
// state.
type PatchDescriptor struct {
	Oid string
}

// StackState is the complete snapshot of a stack at one moment: the
// three disjoint patch lists, the underlying branch's head commit, the
// name→commit table, and a link to the immediately preceding state.
type StackState struct {
	Prev      string // empty means "no previous state"
	Head      string
	Applied   []string
	Unapplied []string
	Hidden    []string
	Patches   map[string]PatchDescriptor
}

// New returns the initial StackState for a branch currently at head,
// with no patches and no previous state.
func New(head string) *StackState {
	return &StackState{
		Head:    head,
		Patches: map[string]PatchDescriptor{},
	}
}

// AllPatches returns every patch name across applied, unapplied, and
// hidden, in that order — the canonical iteration order used when
// building the patches/ tree.
func (s *StackState) AllPatches() []string {
	all := make([]string, 0, len(s.Applied)+len(s.Unapplied)+len(s.Hidden))
	all = append(all, s.Applied...)
	all = append(all, s.Unapplied...)
	all = append(all, s.Hidden...)
	return all
}

// Top returns the commit the underlying branch should point to: the
// last applied patch's commit, or Head if no patch is applied.
func (s *StackState) Top() string {
	if len(s.Applied) == 0 {
		return s.Head
	}
	return s.Patches[s.Applied[len(s.Applied)-1]].Oid
}

// Clone returns a deep copy of s, suitable for use as a transaction's
// in-memory shadow state.
func (s *StackState) Clone() *StackState {
	clone := &StackState{
		Prev:      s.Prev,
		Head:      s.Head,
		Applied:   append([]string(nil), s.Applied...),
		Unapplied: append([]string(nil), s.Unapplied...),
		Hidden:    append([]string(nil), s.Hidden...),
		Patches:   make(map[string]PatchDescriptor, len(s.Patches)),
	}
	for name, desc := range s.Patches {
		clone.Patches[name] = desc
	}
	return clone
}

// Validate checks the invariants that must hold after every
// transaction commit. branchTip is the actual current tip of the
// underlying git branch, used to check invariant 3.
func (s *StackState) Validate(branchTip string) error {
	seen := make(map[string]string, len(s.Patches)) // name -> list
	lists := []struct {
		name  string
		names []string
	}{
		{"applied", s.Applied},
		{"unapplied", s.Unapplied},
		{"hidden", s.Hidden},
	}
	for _, l := range lists {
		for _, name := range l.names {
			if owner, dup := seen[name]; dup {
				return fmt.Errorf("invariant violation: patch %q appears in both %s and %s", name, owner, l.name)
			}
			seen[name] = l.name
		}
	}
	for name := range s.Patches {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("invariant violation: patch %q in table but not in any list", name)
		}
	}
	for name := range seen {
		if _, ok := s.Patches[name]; !ok {
			return fmt.Errorf("invariant violation: patch %q in a list but missing from the patch table", name)
		}
	}

	if len(s.Applied) > 0 {
		top := s.Patches[s.Applied[len(s.Applied)-1]].Oid
		if branchTip != "" && top != branchTip {
			return fmt.Errorf("invariant violation: branch tip %s does not match top applied patch commit %s", branchTip, top)
		}
	} else if branchTip != "" && branchTip != s.Head {
		return fmt.Errorf("invariant violation: branch tip %s does not match head %s", branchTip, s.Head)
	}

	for name, desc := range s.Patches {
		if !gitadapter.ValidOid(desc.Oid) {
			return fmt.Errorf("invariant violation: patch %q has malformed oid %q", name, desc.Oid)
		}
	}

	return nil
}
