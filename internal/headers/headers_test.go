// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package headers

import (
	"bytes"
	"testing"
)

func TestParseMailinfo(t *testing.T) {
	data := []byte("Author: Jane Doe\nEmail: jane@example.com\nDate: Mon, 1 Jan 2024 00:00:00 +0000\nSubject: fix the frobnicator\n")
	h, ok, err := ParseMailinfo(data)
	if err != nil {
		t.Fatalf("ParseMailinfo: %v", err)
	}
	if !ok {
		t.Fatalf("ParseMailinfo: expected ok=true")
	}
	want := Headers{
		AuthorName:  "Jane Doe",
		AuthorEmail: "jane@example.com",
		AuthorDate:  "Mon, 1 Jan 2024 00:00:00 +0000",
		Subject:     "fix the frobnicator",
	}
	if h != want {
		t.Errorf("ParseMailinfo = %+v, want %+v", h, want)
	}
}

func TestParseMailinfoEmpty(t *testing.T) {
	_, ok, err := ParseMailinfo(nil)
	if err != nil {
		t.Fatalf("ParseMailinfo(nil): %v", err)
	}
	if ok {
		t.Errorf("ParseMailinfo(nil): expected ok=false")
	}
}

func TestParseMailinfoUnexpectedHeader(t *testing.T) {
	_, _, err := ParseMailinfo([]byte("Bogus: value\n"))
	if err == nil {
		t.Fatalf("ParseMailinfo: expected error for unrecognised header")
	}
}

func TestParseMessageInBandHeaders(t *testing.T) {
	data := []byte("Patch: frobnicate-widgets\nFrom: Jane Doe <jane@example.com>\nDate: Mon, 1 Jan 2024 00:00:00 +0000\n\nFix the frobnicator\n\nLonger description here.\n")
	h, body, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	want := Headers{
		PatchName:   "frobnicate-widgets",
		AuthorName:  "Jane Doe",
		AuthorEmail: "jane@example.com",
		AuthorDate:  "Mon, 1 Jan 2024 00:00:00 +0000",
		Subject:     "Fix the frobnicator",
	}
	if h != want {
		t.Errorf("ParseMessage headers = %+v, want %+v", h, want)
	}
	wantBody := "Longer description here.\n"
	if !bytes.Equal(body, []byte(wantBody)) {
		t.Errorf("ParseMessage body = %q, want %q", body, wantBody)
	}
}

func TestParseMessagePatchNameNotUTF8(t *testing.T) {
	data := []byte("Patch: frobnicate-\xffwidgets\nFrom: Jane Doe <jane@example.com>\n\nSubject line\n")
	if _, _, err := ParseMessage(data); err == nil {
		t.Fatalf("ParseMessage: expected error for non-UTF-8 patch name")
	}
}

func TestParseMessageCommitDedent(t *testing.T) {
	data := []byte("commit abc123def\n\n    Fix the frobnicator\n\n    Longer description, indented as git show\n    would produce it.\n")
	h, body, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if h.Subject != "Fix the frobnicator" {
		t.Errorf("ParseMessage subject = %q, want %q", h.Subject, "Fix the frobnicator")
	}
	wantBody := "Longer description, indented as git show\nwould produce it.\n"
	if !bytes.Equal(body, []byte(wantBody)) {
		t.Errorf("ParseMessage body = %q, want %q", body, wantBody)
	}
}

func TestParseMessageNoHeaders(t *testing.T) {
	data := []byte("Just a subject line\n\nBody text.\n")
	h, body, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if h.Subject != "Just a subject line" {
		t.Errorf("ParseMessage subject = %q, want %q", h.Subject, "Just a subject line")
	}
	if h.PatchName != "" || h.AuthorName != "" {
		t.Errorf("ParseMessage headers = %+v, want only Subject set", h)
	}
	wantBody := "Body text.\n"
	if !bytes.Equal(body, []byte(wantBody)) {
		t.Errorf("ParseMessage body = %q, want %q", body, wantBody)
	}
}

func TestParseMessageBadAuthor(t *testing.T) {
	data := []byte("From: not-an-email\n\nSubject line\n")
	if _, _, err := ParseMessage(data); err == nil {
		t.Fatalf("ParseMessage: expected error for malformed From header")
	}
}
