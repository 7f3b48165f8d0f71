// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package importpipeline turns heterogeneous patch sources — raw diffs,
// mail messages, mboxes, series files, optionally compressed archives,
// and URLs — into stack patches: parsed headers, derived names,
// reconstructed authorship, and a commit applied through the
// transaction engine.
package importpipeline

// Mode is the tagged variant of where an import's bytes come from and
// how they should be split into one or more patches. Exactly one mode
// holds for any given invocation; variation lives entirely in source
// classification, not in the patches produced.
type Mode int

const (
	// ModeRawDiff treats the source as a single file (or stdin) to be
	// run through mailinfo, producing at most one patch.
	ModeRawDiff Mode = iota
	// ModeMail treats the source as a single RFC-822 message, tolerant
	// of a missing From line.
	ModeMail
	// ModeMbox splits the source via mailsplit and imports each
	// resulting message as a mail, in order.
	ModeMbox
	// ModeSeries reads a series file (or a tar/tar.gz/tar.bz2 archive
	// containing one) and imports each listed file in order.
	ModeSeries
)

func (m Mode) String() string {
	switch m {
	case ModeRawDiff:
		return "raw-diff"
	case ModeMail:
		return "mail"
	case ModeMbox:
		return "mbox"
	case ModeSeries:
		return "series"
	default:
		return "unknown"
	}
}

// NamingPolicy controls how a derived patch name that collides with an
// existing one is resolved.
type NamingPolicy int

const (
	// NamingUniquify appends "-1", "-2", ... until the name is free.
	// This is the default policy.
	NamingUniquify NamingPolicy = iota
	// NamingIgnore skips the patch with an info message if its name is
	// already applied; otherwise the name is kept as-is.
	NamingIgnore
	// NamingReplace reuses the name, deleting any existing unapplied
	// patch of the same name within the same transaction.
	NamingReplace
)

// ClassifyMode resolves the Mode for an invocation from the mutually
// exclusive --mail/--mbox/--series flags (the caller's flag parser
// enforces that at most one is set; the default, with none set, is
// ModeRawDiff).
func ClassifyMode(mail, mbox, series bool) Mode {
	switch {
	case series:
		return ModeSeries
	case mbox:
		return ModeMbox
	case mail:
		return ModeMail
	default:
		return ModeRawDiff
	}
}
