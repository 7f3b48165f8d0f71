// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package patchname

import "testing"

func TestMake(t *testing.T) {
	cases := []struct {
		raw       string
		allowLong bool
		limit     int
		want      string
	}{
		{"Fix the Frobnicator", false, 30, "fix-the-frobnicator"},
		{"  leading and trailing spaces  ", false, 30, "leading-and-trailing-spaces"},
		{"multi\nline\nmessage", false, 30, "multi"},
		{"!!!", false, 30, "patch"},
		{"", false, 30, "patch"},
		{"a.b..c", false, 30, "a.b.c"},
		{"a---------b", false, 30, "a-b"},
		{"a_very_long_subject_line_that_needs_truncating", false, 10, "a-very"},
		{"a_very_long_subject_line_that_needs_truncating", true, 10, "a-very-long-subject-line-that-needs-truncating"},
	}
	for _, tc := range cases {
		got := Make(tc.raw, tc.allowLong, tc.limit)
		if got != tc.want {
			t.Errorf("Make(%q, %v, %d) = %q, want %q", tc.raw, tc.allowLong, tc.limit, got, tc.want)
		}
	}
}

func TestMakeIdempotent(t *testing.T) {
	inputs := []string{"Fix the Frobnicator", "!!!weird???", "already-a-name", "UPPER CASE", ""}
	for _, in := range inputs {
		for _, limit := range []int{0, 5, 30} {
			once := Make(in, false, limit)
			twice := Make(once, false, limit)
			if once != twice {
				t.Errorf("Make not idempotent for %q (limit %d): %q != %q", in, limit, once, twice)
			}
		}
	}
}

func TestValid(t *testing.T) {
	valid := []string{"foo", "foo-bar", "foo.bar", "a/b"}
	invalid := []string{"", "-leading-dash", "has space", "has\ttab", "weird~name", "a..b", "a.lock", "./foo", "../foo", "a/../b"}
	for _, name := range valid {
		if !Valid(name) {
			t.Errorf("Valid(%q) = false, want true", name)
		}
	}
	for _, name := range invalid {
		if Valid(name) {
			t.Errorf("Valid(%q) = true, want false", name)
		}
	}
}

func TestUniquify(t *testing.T) {
	if got := Uniquify("foo", nil, nil); got != "foo" {
		t.Errorf("Uniquify with empty sets = %q, want \"foo\"", got)
	}
	got := Uniquify("foo", nil, []string{"foo", "foo-1"})
	if got != "foo-2" {
		t.Errorf("Uniquify = %q, want \"foo-2\"", got)
	}
	got = Uniquify("foo", []string{"foo"}, nil)
	if got != "foo-1" {
		t.Errorf("Uniquify against applied-only = %q, want \"foo-1\"", got)
	}
}

func TestLengthLimit(t *testing.T) {
	unset := func(string) (string, bool) { return "", false }
	if got := LengthLimit(unset); got != DefaultLengthLimit {
		t.Errorf("LengthLimit(unset) = %d, want %d", got, DefaultLengthLimit)
	}
	zero := func(string) (string, bool) { return "0", true }
	if got := LengthLimit(zero); got != 0 {
		t.Errorf("LengthLimit(0) = %d, want 0", got)
	}
	custom := func(string) (string, bool) { return "10", true }
	if got := LengthLimit(custom); got != 10 {
		t.Errorf("LengthLimit(10) = %d, want 10", got)
	}
}
