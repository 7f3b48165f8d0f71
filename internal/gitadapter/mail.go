// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package gitadapter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fbenkstein/stgit/internal/headers"
)

// MailinfoResult is the (headers, message, diff) triple the mailinfo
// plumbing operation splits a mail message into.
type MailinfoResult struct {
	Headers headers.Headers
	Message []byte
	Diff    []byte
}

// Mailinfo splits the mail message in data into headers, message body,
// and diff, via `git mailinfo`. An "empty patch" — a message with no
// diff content — is reported by returning a zero-valued Diff, not an
// error; callers proceed with empty headers/message/diff.
func (c *Client) Mailinfo(data []byte, wantMessageID bool) (MailinfoResult, error) {
	dir, err := os.MkdirTemp("", "stgit-mailinfo-")
	if err != nil {
		return MailinfoResult{}, fmt.Errorf("creating mailinfo temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	msgPath := filepath.Join(dir, "message")
	patchPath := filepath.Join(dir, "patch")

	args := []string{"mailinfo"}
	if wantMessageID {
		args = append(args, "--message-id")
	}
	args = append(args, msgPath, patchPath)

	headerBlock, err := c.run(data, args...)
	if err != nil {
		return MailinfoResult{}, fmt.Errorf("running mailinfo: %w", err)
	}

	h, _, err := headers.ParseMailinfo(headerBlock)
	if err != nil {
		return MailinfoResult{}, fmt.Errorf("parsing mailinfo headers: %w", err)
	}

	message, err := os.ReadFile(msgPath)
	if err != nil {
		return MailinfoResult{}, fmt.Errorf("reading mailinfo message: %w", err)
	}
	diff, err := os.ReadFile(patchPath)
	if err != nil {
		return MailinfoResult{}, fmt.Errorf("reading mailinfo diff: %w", err)
	}

	return MailinfoResult{Headers: h, Message: message, Diff: diff}, nil
}

// Mailsplit explodes an mbox or Maildir stream into sequentially
// numbered files under dir, via `git mailsplit`, and returns the
// count of messages produced.
func (c *Client) Mailsplit(src []byte, dir string, keepCR, missingFromOK bool) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating mailsplit dir %s: %w", dir, err)
	}
	args := []string{"mailsplit", "-o" + dir}
	if keepCR {
		args = append(args, "--keep-cr")
	}
	if missingFromOK {
		args = append(args, "-b")
	}
	out, err := c.runText(src, args...)
	if err != nil {
		return 0, fmt.Errorf("splitting mbox: %w", err)
	}
	var count int
	if _, scanErr := fmt.Sscanf(out, "%d", &count); scanErr != nil {
		return 0, fmt.Errorf("parsing mailsplit count from %q: %w", out, scanErr)
	}
	return count, nil
}

// Trailer is a single RFC-2822-style trailer token/value pair to
// append via InterpretTrailers.
type Trailer struct {
	Token string
	Value string
}

// InterpretTrailers appends or merges the given trailers into message,
// via `git interpret-trailers`.
func (c *Client) InterpretTrailers(message []byte, trailers []Trailer) ([]byte, error) {
	if len(trailers) == 0 {
		return message, nil
	}
	args := []string{"interpret-trailers"}
	for _, t := range trailers {
		args = append(args, "--trailer", t.Token+"="+t.Value)
	}
	out, err := c.run(message, args...)
	if err != nil {
		return nil, fmt.Errorf("interpreting trailers: %w", err)
	}
	return out, nil
}
