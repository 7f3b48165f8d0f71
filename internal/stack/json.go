// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fbenkstein/stgit/internal/gitadapter"
)

// wirePatchDescriptor is the on-disk shape of a single patches/<name>
// table entry within stack.json.
type wirePatchDescriptor struct {
	Oid string `json:"oid"`
}

// wireStackState mirrors the exact field order and names of the
// on-disk stack.json schema:
// schema. Version is kept as raw JSON so it can be validated
// numerically while being written back out as the quoted string "5",
// matching the legacy writer's behaviour.
type wireStackState struct {
	Version   json.RawMessage                `json:"version"`
	Prev      *string                        `json:"prev"`
	Head      string                         `json:"head"`
	Applied   []string                       `json:"applied"`
	Unapplied []string                       `json:"unapplied"`
	Hidden    []string                       `json:"hidden"`
	Patches   map[string]wirePatchDescriptor `json:"patches"`
}

// MarshalJSON renders s as pretty-printed JSON in the exact field
// canonical order, with version always written as the quoted string "5".
func (s *StackState) MarshalJSON() ([]byte, error) {
	var prev *string
	if s.Prev != "" {
		prev = &s.Prev
	}
	patches := make(map[string]wirePatchDescriptor, len(s.Patches))
	for name, desc := range s.Patches {
		patches[name] = wirePatchDescriptor{Oid: desc.Oid}
	}
	wire := wireStackState{
		Version:   json.RawMessage(`"5"`),
		Prev:      prev,
		Head:      s.Head,
		Applied:   orEmpty(s.Applied),
		Unapplied: orEmpty(s.Unapplied),
		Hidden:    orEmpty(s.Hidden),
		Patches:   patches,
	}
	return json.MarshalIndent(wire, "", "  ")
}

// UnmarshalJSON parses stack.json: version is accepted only if
// it numerically equals 5, regardless of whether it's encoded as the
// JSON string "5" or the bare number 5 (the legacy format uses the
// former; forwards-compatible readers tolerate the latter too). Every
// oid is validated as well-formed hex.
func (s *StackState) UnmarshalJSON(data []byte) error {
	var wire wireStackState
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("parsing stack.json: %w", err)
	}

	version, err := parseVersion(wire.Version)
	if err != nil {
		return fmt.Errorf("parsing stack.json version: %w", err)
	}
	if version != StackVersion {
		return fmt.Errorf("unsupported stack.json version %d, want %d", version, StackVersion)
	}

	if wire.Head != "" && !gitadapter.ValidOid(wire.Head) {
		return fmt.Errorf("stack.json head %q is not a valid commit id", wire.Head)
	}
	var prev string
	if wire.Prev != nil {
		if !gitadapter.ValidOid(*wire.Prev) {
			return fmt.Errorf("stack.json prev %q is not a valid commit id", *wire.Prev)
		}
		prev = *wire.Prev
	}

	patches := make(map[string]PatchDescriptor, len(wire.Patches))
	for name, desc := range wire.Patches {
		if !gitadapter.ValidOid(desc.Oid) {
			return fmt.Errorf("stack.json patch %q has invalid oid %q", name, desc.Oid)
		}
		patches[name] = PatchDescriptor{Oid: desc.Oid}
	}

	s.Prev = prev
	s.Head = wire.Head
	s.Applied = wire.Applied
	s.Unapplied = wire.Unapplied
	s.Hidden = wire.Hidden
	s.Patches = patches
	return nil
}

func parseVersion(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing version field")
	}
	trimmed := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("version %q is not an integer: %w", raw, err)
	}
	return n, nil
}

func orEmpty(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
