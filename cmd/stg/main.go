// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Command stg maintains a stack of patches on top of a Git branch.
package main

import (
	"os"

	"github.com/fbenkstein/stgit/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
