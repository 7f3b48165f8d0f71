// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package headers parses the author/date/subject/patch-name metadata that
// precedes a patch's diff, either from the header block produced by the
// git mailinfo plumbing operation, or from an in-band header section at
// the top of a raw patch message.
package headers

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Headers holds the optional metadata fields recognised from either a
// mailinfo header block or an in-band message header section.
type Headers struct {
	PatchName   string
	AuthorName  string
	AuthorEmail string
	AuthorDate  string
	Subject     string
}

// Empty reports whether none of the header fields were populated.
func (h Headers) Empty() bool {
	return h == Headers{}
}

// ParseMailinfo parses the header block produced by the mailinfo
// plumbing operation. Each non-empty line is split on the first ": ".
// Only Author, Email, Date, and Subject are recognised; any other header
// name is a hard parser error, since a correct mailinfo implementation
// emits only those four. ParseMailinfo returns (Headers{}, false) if no
// header line was present at all.
func ParseMailinfo(data []byte) (Headers, bool, error) {
	var h Headers
	var sawAny bool

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.Index(line, ": ")
		if idx < 0 {
			return Headers{}, false, fmt.Errorf("malformed mailinfo header line: %q", line)
		}
		name, value := line[:idx], line[idx+2:]
		sawAny = true
		switch name {
		case "Author":
			h.AuthorName = value
		case "Email":
			h.AuthorEmail = value
		case "Date":
			h.AuthorDate = value
		case "Subject":
			h.Subject = value
		default:
			return Headers{}, false, fmt.Errorf("unexpected mailinfo header %q with value %q", name, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return Headers{}, false, fmt.Errorf("reading mailinfo headers: %w", err)
	}
	if !sawAny {
		return Headers{}, false, nil
	}
	return h, true, nil
}

// ParseMessage parses an in-band header section from the top of a raw
// patch message, returning the recognised headers and the remaining
// message body.
//
// Rules:
//  1. Leading blank lines are skipped.
//  2. While the current line matches "key: value" (case-insensitive key),
//     Patch/From/Author/Date are recognised; other "key: value" lines are
//     not treated as headers and fall through to rule 3.
//  3. The first non-header line becomes the Subject and ends the header
//     section, unless it matches "commit <hex>", in which case a 4-space
//     dedent is recorded (as if this message came from `git show`) and
//     scanning continues.
//  4. Further header-looking lines found after the subject terminate the
//     header block.
//  5. Remaining lines, with the recorded dedent stripped, form the
//     returned message body.
func ParseMessage(data []byte) (Headers, []byte, error) {
	var h Headers
	dedent := ""

	lines := splitLinesKeepTerminator(data)
	i := 0

	// Rule 1: skip leading blank lines.
	for i < len(lines) && strings.TrimSpace(stripTerminator(lines[i])) == "" {
		i++
	}

	for i < len(lines) {
		raw := stripTerminator(lines[i])
		line := strings.TrimSpace(raw)
		if line == "" {
			i++
			continue
		}

		if key, value, ok := splitHeaderLine(line); ok {
			lowered := strings.ToLower(key)
			switch lowered {
			case "patch":
				if value == "" {
					break
				}
				if !utf8.ValidString(value) {
					return Headers{}, nil, fmt.Errorf("patch name is not UTF-8: %q", value)
				}
				h.PatchName = value
				i++
				continue
			case "from", "author":
				name, email, err := parseNameEmail(value)
				if err != nil {
					return Headers{}, nil, fmt.Errorf("parsing From/Author header: %w", err)
				}
				h.AuthorName = name
				h.AuthorEmail = email
				i++
				continue
			case "date":
				h.AuthorDate = value
				i++
				continue
			}
		}

		// Not a recognised header. If we already have a subject, this
		// terminates the header block (rule 4).
		if h.Subject != "" {
			break
		}

		if hex, ok := stripCommitPrefix(line); ok && isHex(hex) {
			dedent = "    "
			i++
			continue
		}

		h.Subject = line
		i++
	}

	var body bytes.Buffer
	for ; i < len(lines); i++ {
		body.WriteString(strings.TrimPrefix(lines[i], dedent))
	}

	return h, body.Bytes(), nil
}

func splitHeaderLine(line string) (key, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	key = line[:idx]
	value = strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", false
	}
	for _, r := range key {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '-') {
			return "", "", false
		}
	}
	return key, value, true
}

func stripCommitPrefix(line string) (string, bool) {
	const prefix = "commit "
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

// parseNameEmail parses a "Name <email>" string, in the spirit of
// gitdiff's ParsePatchIdentity: name must be non-empty and free of '<',
// email must be non-empty and free of '>'.
func parseNameEmail(s string) (name, email string, err error) {
	start := strings.IndexByte(s, '<')
	if start < 0 {
		return "", "", fmt.Errorf("no email address in %q", s)
	}
	end := strings.IndexByte(s[start:], '>')
	if end < 0 {
		return "", "", fmt.Errorf("unclosed email address in %q", s)
	}
	end += start
	name = strings.TrimSpace(s[:start])
	email = strings.TrimSpace(s[start+1 : end])
	if name == "" || email == "" {
		return "", "", fmt.Errorf("invalid name/email string: %q", s)
	}
	return name, email, nil
}

func splitLinesKeepTerminator(data []byte) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i+1]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}

func stripTerminator(line string) string {
	return strings.TrimRight(line, "\r\n")
}
