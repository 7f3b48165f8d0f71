// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package patchname derives, sanitises, and uniquifies patch names: the
// short, filesystem- and ref-safe identifiers used throughout the stack to
// name applied, unapplied, and hidden patches.
package patchname

import (
	"strconv"
	"strings"
)

// DefaultLengthLimit is the patch name length limit used when
// stgit.namelength is unset in git config.
const DefaultLengthLimit = 30

// disallowedChars holds the characters forbidden anywhere in a patch name,
// beyond ASCII whitespace and control characters.
const disallowedChars = "~^:?*[\\{}"

// Valid reports whether name conforms to the patch-name grammar: non-empty,
// no leading '-', no ASCII whitespace or control characters, none of
// "~^:?*[\{}", no "." or ".." path component, no ".lock" suffix, and no
// consecutive dots.
func Valid(name string) bool {
	if name == "" || strings.HasPrefix(name, "-") {
		return false
	}
	if strings.HasSuffix(name, ".lock") {
		return false
	}
	for i, r := range name {
		if r <= 0x20 || r == 0x7f {
			return false
		}
		if strings.ContainsRune(disallowedChars, r) {
			return false
		}
		if r == '.' && i+1 < len(name) && name[i+1] == '.' {
			return false
		}
	}
	for _, component := range strings.Split(name, "/") {
		if component == "." || component == ".." {
			return false
		}
	}
	return true
}

// Make derives a patch name from an arbitrary string. It never fails:
// an empty or entirely-disallowed input normalises to "patch".
//
// The first non-empty line of raw is taken as the basis. ASCII letters are
// lowercased, runs of characters outside [a-z0-9.] are collapsed to a
// single '-', runs of '.' are collapsed to a single '.', and
// leading/trailing '-' and '.' are trimmed. A trailing ".lock" is not
// removed, so such an input yields a name that Valid rejects. When
// allowLong is false and limit is greater than zero, the result is
// truncated to at most limit characters, preferring to cut at the last '-'
// boundary at or before the limit.
func Make(raw string, allowLong bool, limit int) string {
	line := firstNonEmptyLine(raw)

	var b strings.Builder
	lastWasDash := false
	lastWasDot := false
	for _, r := range line {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
			lastWasDash = false
			lastWasDot = false
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasDash = false
			lastWasDot = false
		case r == '.':
			if !lastWasDot {
				b.WriteRune(r)
				lastWasDot = true
			}
			lastWasDash = false
		default:
			if !lastWasDash {
				b.WriteByte('-')
				lastWasDash = true
			}
			lastWasDot = false
		}
	}

	name := strings.Trim(b.String(), "-.")
	name = collapseDashes(name)

	if name == "" {
		name = "patch"
	}

	if !allowLong && limit > 0 && len(name) > limit {
		name = truncate(name, limit)
	}

	return name
}

func firstNonEmptyLine(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func collapseDashes(s string) string {
	var b strings.Builder
	lastWasDash := false
	for _, r := range s {
		if r == '-' {
			if lastWasDash {
				continue
			}
			lastWasDash = true
		} else {
			lastWasDash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(name string, limit int) string {
	if limit >= len(name) {
		return name
	}
	cut := strings.LastIndexByte(name[:limit], '-')
	if cut <= 0 {
		return name[:limit]
	}
	return name[:cut]
}

// Uniquify returns name unmodified if it appears in neither disallowApplied
// nor disallowAll; otherwise it appends "-1", "-2", ... until the result is
// absent from both sets.
func Uniquify(name string, disallowApplied, disallowAll []string) string {
	if !contains(disallowApplied, name) && !contains(disallowAll, name) {
		return name
	}
	for n := 1; ; n++ {
		candidate := name + "-" + strconv.Itoa(n)
		if !contains(disallowApplied, candidate) && !contains(disallowAll, candidate) {
			return candidate
		}
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// LengthLimit reads stgit.namelength from config, returning DefaultLengthLimit
// if unset, or 0 (unlimited) if config explicitly sets it to 0.
//
// config is any source of a single integer-valued git config key; callers
// typically pass a closure over gitadapter.Client.ConfigGet.
func LengthLimit(getConfig func(key string) (string, bool)) int {
	value, ok := getConfig("stgit.namelength")
	if !ok {
		return DefaultLengthLimit
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return DefaultLengthLimit
	}
	return n
}
