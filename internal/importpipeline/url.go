// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package importpipeline

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// fetchURL downloads src into a fresh temp file and returns its path.
// A "file://" URL is copied directly from the filesystem rather than
// dispatched through the HTTP client, mirroring the fallback a
// malformed-URL HTTP error would otherwise require.
func fetchURL(src string) (string, error) {
	if rest, ok := strings.CutPrefix(src, "file://"); ok {
		return copyLocalFile(rest)
	}

	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" {
		// Malformed URL: fall back to treating it as a local path, the
		// same recovery an HTTP client's URL rejection would trigger.
		return copyLocalFile(src)
	}

	resp, err := http.Get(src)
	if err != nil {
		return copyLocalFile(src)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %s", src, resp.Status)
	}

	dir, err := os.MkdirTemp("", "stgit-import-url-")
	if err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}

	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		name = "patch"
	}
	dest := filepath.Join(dir, name)

	out, err := os.Create(dest)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.RemoveAll(dir)
		return "", fmt.Errorf("downloading %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dest, nil
}

func copyLocalFile(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("copying %s: %w", src, err)
	}
	defer in.Close()

	dir, err := os.MkdirTemp("", "stgit-import-url-")
	if err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}
	dest := filepath.Join(dir, filepath.Base(src))

	out, err := os.Create(dest)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.RemoveAll(dir)
		return "", fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dest, nil
}
