// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package importpipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fbenkstein/stgit/internal/gitadapter"
	"github.com/fbenkstein/stgit/internal/headers"
	"github.com/fbenkstein/stgit/internal/patchname"
	"github.com/fbenkstein/stgit/internal/stack"
	"github.com/fbenkstein/stgit/internal/transaction"
)

// Options configures one import invocation. Exactly the fields relevant
// to the chosen Mode are consulted; others are ignored.
type Options struct {
	Mode Mode

	// Name overrides the file- and message-derived patch name (an in-band
	// "Patch:" header still wins). It applies to every patch an import
	// creates, series and mbox entries included; repeated uses of the
	// same name are then resolved by Policy.
	Name string
	// StripName removes leading digits/'-' and a trailing .diff/.patch
	// suffix from a filename-derived name.
	StripName bool
	// Policy controls collision handling against existing patch names.
	Policy NamingPolicy

	// Strip is the patch(1)-style leading path component count;
	// StripSet distinguishes "unset" (a strip level of 1 is used) from
	// an explicit 0.
	Strip    int
	StripSet bool
	// ContextLines, if non-zero, is passed through to the apply step.
	ContextLines int
	// Reject leaves a .rej file per failing hunk rather than failing
	// outright.
	Reject bool

	// KeepCR preserves trailing \r on mbox-split lines.
	KeepCR bool
	// MessageID requests a Message-Id trailer derived from the mail's
	// Message-ID header.
	MessageID bool

	// Base overrides the commit new patches are parented on; empty
	// means the current applied tip.
	Base string
}

// Importer drives the import pipeline against one repository/branch.
type Importer struct {
	Client  *gitadapter.Client
	Branch  string
	NameLen int // patchname.LengthLimit result; 0 = unlimited

	// DefaultAuthorName/Email seed authorship reconstruction when a
	// source supplies no author fields of its own.
	DefaultAuthorName  string
	DefaultAuthorEmail string

	// Status receives one line per patch created, in the same
	// {+,-,>,!} vocabulary the transaction engine emits.
	Status transaction.StatusSink
}

// parsed carries the outcome of classifying+reading one source file,
// the same (headers, message, diff) triple every import source is split into.
type parsed struct {
	headers headers.Headers
	message []byte
	diff    []byte
}

// ImportFile imports a single raw-diff/mail source. path is empty to
// read from stdin. stripOverride, if non-negative, overrides opts.Strip for
// this one file (used by series imports, which may specify "-p0" per
// entry).
func (im *Importer) ImportFile(opts Options, path string, stripOverride int) error {
	var data []byte
	var err error
	if path == "" {
		data, err = readStdin()
	} else {
		data, err = readMaybeCompressed(path)
	}
	if err != nil {
		return err
	}

	p, err := im.parseSingle(data, opts)
	if err != nil {
		return err
	}

	strip := opts.Strip
	if stripOverride >= 0 {
		strip = stripOverride
	} else if !opts.StripSet {
		strip = 1
	}

	return im.createPatch(opts, path, p, strip)
}

// ImportMail imports a single RFC-822 message. mailinfo itself never
// requires a From line, so this is otherwise identical to ImportFile.
func (im *Importer) ImportMail(opts Options, path string) error {
	return im.ImportFile(opts, path, -1)
}

// ImportMbox splits src into individual mail messages via mailsplit
// and imports each in order.
func (im *Importer) ImportMbox(opts Options, path string) error {
	var data []byte
	var err error
	if path == "" {
		data, err = readStdin()
	} else {
		data, err = readMaybeCompressed(path)
	}
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "stgit-import-mbox-")
	if err != nil {
		return fmt.Errorf("creating mbox split dir: %w", err)
	}
	defer os.RemoveAll(dir)

	n, err := im.Client.Mailsplit(data, dir, opts.KeepCR, true)
	if err != nil {
		return fmt.Errorf("splitting mbox: %w", err)
	}

	for i := 1; i <= n; i++ {
		msgPath := filepath.Join(dir, fmt.Sprintf("%04d", i))
		msgData, err := os.ReadFile(msgPath)
		if err != nil {
			return fmt.Errorf("reading split message %d: %w", i, err)
		}
		p, err := im.parseSingle(msgData, opts)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		strip := opts.Strip
		if !opts.StripSet {
			strip = 1
		}
		if err := im.createPatch(opts, "", p, strip); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// ImportSeries reads a series file (or locates one inside a tar/
// tar.gz/tar.bz2 archive) and imports each listed entry in file order.
func (im *Importer) ImportSeries(opts Options, path string) error {
	var seriesPath string

	if path == "" {
		data, err := readStdin()
		if err != nil {
			return err
		}
		return im.importSeriesBytes(opts, data, "")
	}

	if kind := classifyArchive(path); kind != archiveNone {
		dir, err := unpackArchive(path, kind)
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		found, err := findSeriesFile(dir)
		if err != nil {
			return err
		}
		seriesPath = found
	} else {
		seriesPath = path
	}

	data, err := os.ReadFile(seriesPath)
	if err != nil {
		return fmt.Errorf("reading series file %s: %w", seriesPath, err)
	}
	return im.importSeriesBytes(opts, data, seriesPath)
}

func (im *Importer) importSeriesBytes(opts Options, data []byte, seriesPath string) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		name := fields[0]

		strip := -1
		if len(fields) > 1 {
			level, ok := strings.CutPrefix(fields[1], "-p")
			if !ok {
				return fmt.Errorf("patch %q: malformed strip field %q", name, fields[1])
			}
			if level != "0" {
				return fmt.Errorf("patch %q: unsupported strip level \"-p%s\"", name, level)
			}
			strip = 0
		}

		var patchPath string
		if seriesPath != "" {
			patchPath = filepath.Join(filepath.Dir(seriesPath), name)
		} else {
			patchPath = name
		}

		if err := im.ImportFile(opts, patchPath, strip); err != nil {
			return fmt.Errorf("importing %s: %w", name, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading series: %w", err)
	}
	return nil
}

// ImportURL fetches src (an HTTP/HTTPS URL, or file:// which falls
// back to a filesystem copy) and dispatches it by opts.Mode.
func (im *Importer) ImportURL(opts Options, src string) error {
	path, err := fetchURL(src)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", src, err)
	}
	dir := filepath.Dir(path)
	defer os.RemoveAll(dir)

	switch opts.Mode {
	case ModeSeries:
		return im.ImportSeries(opts, path)
	case ModeMbox:
		return im.ImportMbox(opts, path)
	case ModeMail:
		return im.ImportMail(opts, path)
	default:
		return im.ImportFile(opts, path, -1)
	}
}

// parseSingle runs mailinfo over data (mail mode tolerates a missing
// From) and recovers headers either from the mailinfo block or, absent
// one, from an in-band header section at the top of the message body.
func (im *Importer) parseSingle(data []byte, opts Options) (parsed, error) {
	result, err := im.Client.Mailinfo(data, opts.MessageID)
	if err != nil {
		if strings.Contains(err.Error(), "error: empty patch") {
			return parsed{}, nil
		}
		return parsed{}, fmt.Errorf("running mailinfo: %w", err)
	}

	h := result.Headers
	message := result.Message
	if h.Empty() {
		parsedHeaders, body, perr := headers.ParseMessage(result.Message)
		if perr != nil {
			return parsed{}, fmt.Errorf("parsing message headers: %w", perr)
		}
		h = parsedHeaders
		message = body
	}

	return parsed{headers: h, message: message, diff: result.Diff}, nil
}

// createPatch derives the patch name, resolves naming collisions,
// applies the diff to the worktree/index, writes the resulting tree and
// commit, and stages the new patch through a transaction.
func (im *Importer) createPatch(opts Options, sourcePath string, p parsed, strip int) error {
	baseline, baselineCommit, err := stack.LoadWithCommit(im.Client, im.Branch)
	if err != nil {
		return err
	}

	message := string(p.message)
	if p.headers.Subject != "" {
		message = p.headers.Subject + "\n\n" + message
	}

	name := firstNonEmpty(
		p.headers.PatchName,
		opts.Name,
		basenameOf(sourcePath),
	)
	if opts.StripName && name != "" {
		name = stripNameSuffix(name)
	}
	if name == "" {
		name = patchname.Make(message, true, im.NameLen)
	} else {
		name = patchname.Make(name, false, im.NameLen)
	}

	switch opts.Policy {
	case NamingIgnore:
		if contains(baseline.Applied, name) {
			im.emitInfo(fmt.Sprintf("info: ignoring already applied patch `%s`", name))
			return nil
		}
	case NamingReplace:
		// name is kept as-is; the existing unapplied patch of the same
		// name, if any, is deleted within the transaction below.
	default:
		name = patchname.Uniquify(name, nil, baseline.AllPatches())
	}

	sig := buildSignature(p.headers.AuthorName, p.headers.AuthorEmail, p.headers.AuthorDate,
		im.DefaultAuthorName, im.DefaultAuthorEmail)

	applyOpts := gitadapter.ApplyOptions{
		Strip:        strip,
		ContextLines: opts.ContextLines,
		Reject:       opts.Reject,
	}
	if _, err := im.Client.ApplyToWorktreeAndIndex(p.diff, applyOpts); err != nil {
		return fmt.Errorf("applying %s: %w", name, err)
	}

	tree, err := im.Client.WriteTree()
	if err != nil {
		return fmt.Errorf("writing tree for %s: %w", name, err)
	}

	base := opts.Base
	if base == "" {
		base = baseline.Top()
	}
	newCommit, err := im.Client.CommitTree(tree, []string{base}, message, sig.Name, sig.Email, sig.Date)
	if err != nil {
		return fmt.Errorf("committing %s: %w", name, err)
	}

	txn := transaction.New(im.Client, im.Branch, baselineCommit, baseline, transaction.Options{
		UseIndexAndWorktree: false,
	})
	if opts.Policy == NamingReplace && contains(baseline.Unapplied, name) {
		txn.DeletePatches(func(n string) bool { return n == name })
	}
	txn.NewApplied(name, newCommit)
	if err := txn.Err(); err != nil {
		return err
	}

	_, err = txn.Execute(fmt.Sprintf("import: %s", name), im.Status)
	return err
}

func (im *Importer) emitInfo(line string) {
	if im.Status != nil {
		im.Status(transaction.StatusLine{Kind: ' ', Patch: line})
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func basenameOf(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

func stripNameSuffix(name string) string {
	name = strings.TrimLeft(name, "0123456789-")
	if rest, ok := strings.CutSuffix(name, ".diff"); ok {
		return rest
	}
	if rest, ok := strings.CutSuffix(name, ".patch"); ok {
		return rest
	}
	return name
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func readStdin() ([]byte, error) {
	data, err := readAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return data, nil
}

func readMaybeCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return readGzip(f)
	case ".bz2":
		return readBzip2(f)
	default:
		return readAll(f)
	}
}

