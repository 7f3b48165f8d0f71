// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package importpipeline

import (
	"net/mail"
	"strings"
	"time"
)

// Signature is a reconstructed (name, email, date) triple suitable for
// CommitTree's author fields.
type Signature struct {
	Name  string
	Email string
	Date  string // RFC 3339, as gitadapter.CommitTree expects
}

// buildSignature implements the authorship-reconstruction rule: fields
// come from parsed headers where present, falling back field-by-field
// to the configured default signature. A date that fails to parse is
// treated as absent, falling back to now.
func buildSignature(name, email, rawDate string, defaultName, defaultEmail string) Signature {
	sig := Signature{Name: defaultName, Email: defaultEmail}
	if name != "" {
		sig.Name = name
	}
	if email != "" {
		sig.Email = email
	}

	if t, ok := parseMailDate(rawDate); ok {
		sig.Date = t.Format(time.RFC3339)
	} else {
		sig.Date = time.Now().Format(time.RFC3339)
	}
	return sig
}

// parseMailDate accepts the RFC-2822 "Date:" header format mail
// messages carry, plus the looser layouts mailinfo and plain commit
// messages tend to emit.
func parseMailDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := mail.ParseDate(raw); err == nil {
		return t, true
	}
	layouts := []string{
		time.RFC3339,
		"Mon Jan 2 15:04:05 2006 -0700",
		"2006-01-02 15:04:05 -0700",
		time.RFC1123Z,
		time.RFC1123,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNameEmail splits a "Name <email>" From/Author header value into
// its two parts.
func parseNameEmail(value string) (name, email string, ok bool) {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", "", false
	}
	return addr.Name, addr.Address, true
}
