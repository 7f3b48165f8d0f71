// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package importpipeline

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// archiveKind classifies a series source by its file extension.
type archiveKind int

const (
	archiveNone archiveKind = iota
	archiveTar
	archiveTarGz
	archiveTarBz2
)

func classifyArchive(name string) archiveKind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return archiveTarGz
	case strings.HasSuffix(lower, ".tar.bz2"):
		return archiveTarBz2
	case strings.HasSuffix(lower, ".tar"):
		return archiveTar
	default:
		return archiveNone
	}
}

// unpackArchive extracts the archive at path into a fresh temp
// directory and returns its path. Callers are responsible for removing
// it once done.
func unpackArchive(path string, kind archiveKind) (dir string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch kind {
	case archiveTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("decompressing %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	case archiveTarBz2:
		r = bzip2.NewReader(f)
	case archiveTar:
		// r is already the raw file.
	default:
		return "", fmt.Errorf("unpacking %s: not a recognised series archive", path)
	}

	dir, err = os.MkdirTemp("", "stgit-import-series-")
	if err != nil {
		return "", fmt.Errorf("creating archive extraction dir: %w", err)
	}

	if err := extractTar(r, dir); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("extracting %s: %w", path, err)
	}
	return dir, nil
}

func extractTar(r io.Reader, dir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) && target != dir {
			return fmt.Errorf("archive entry %q escapes extraction dir", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
			if err != nil {
				return err
			}
			_, copyErr := io.Copy(out, tr)
			closeErr := out.Close()
			if copyErr != nil {
				return copyErr
			}
			if closeErr != nil {
				return closeErr
			}
		}
	}
}

// readAll drains r fully, the same helper both stdin and plain file
// reads use.
func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}

// readGzip decompresses a .gz single-file source (as opposed to a
// .tar.gz series archive, which unpackArchive handles).
func readGzip(r io.Reader) ([]byte, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing gzip: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// readBzip2 decompresses a .bz2 single-file source.
func readBzip2(r io.Reader) ([]byte, error) {
	return io.ReadAll(bzip2.NewReader(r))
}

// findSeriesFile recursively scans base for a file named "series" and
// returns its path.
func findSeriesFile(base string) (string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("scanning %s for series file: %w", base, err)
	}
	for _, e := range entries {
		full := filepath.Join(base, e.Name())
		if e.IsDir() {
			if path, err := findSeriesFile(full); err == nil {
				return path, nil
			}
			continue
		}
		if e.Name() == "series" {
			return full, nil
		}
	}
	return "", fmt.Errorf("series file not found under %s", base)
}
