// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package tracefs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Candidate tracefs mount points, most modern first. Since Linux 4.1
// tracefs mounts at /sys/kernel/tracing on its own; older kernels
// expose it only under debugfs.
var rootCandidates = []string{
	"/sys/kernel/tracing",
	"/sys/kernel/debug/tracing",
}

// DetectRoot probes the known tracefs mount points and returns the
// first one that exposes the tracing_on control file.
func DetectRoot() (string, error) {
	for _, root := range rootCandidates {
		if err := unix.Access(TracingOn.Path(root), unix.F_OK); err == nil {
			return root, nil
		}
	}
	return "", fmt.Errorf("tracefs not mounted (tried %s)", strings.Join(rootCandidates, ", "))
}

// FS is the kernel option gateway: it performs all reads and writes
// against the tracefs control files under a single root directory.
// The root is a plain directory path, so tests can point an FS at a
// temporary directory instead of a live kernel.
type FS struct {
	root   string
	logger *slog.Logger
}

// New returns a gateway rooted at the given directory. A nil logger
// disables logging.
func New(root string, logger *slog.Logger) *FS {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FS{root: root, logger: logger}
}

// Root returns the tracefs root directory this gateway operates on.
func (fs *FS) Root() string {
	return fs.root
}

// WriteOption writes the literal text to the option's control file.
// A write that lands fewer bytes than the input is a definitive
// failure for that option: control-file writes are not resumable,
// and there is no retry.
func (fs *FS) WriteOption(opt Option, text string) error {
	path := opt.Path(fs.root)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	n, err := f.WriteString(text)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if n != len(text) {
		return fmt.Errorf("write %s: short write (%d of %d bytes)", path, n, len(text))
	}
	fs.logger.Debug("wrote tracefs option", "option", opt.String(), "value", text)
	return nil
}

// WriteBool writes "1" or "0" to the option's control file.
func (fs *FS) WriteBool(opt Option, on bool) error {
	if on {
		return fs.WriteOption(opt, "1")
	}
	return fs.WriteOption(opt, "0")
}

// ReadBracketedMode reads the option's control file and extracts the
// token enclosed in square brackets, the convention tracefs uses to
// mark the active choice in a list (e.g. trace_clock shows
// "local [global] counter"). A file without a bracket pair, or an
// empty file, yields ok=false: the active mode is unknown, which
// callers must treat as "do not assume", never as a failure.
func (fs *FS) ReadBracketedMode(opt Option) (mode string, ok bool, err error) {
	path := opt.Path(fs.root)
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}

	text := string(contents)
	open := strings.IndexByte(text, '[')
	if open < 0 {
		return "", false, nil
	}
	end := strings.IndexByte(text[open+1:], ']')
	if end < 0 {
		return "", false, nil
	}
	return text[open+1 : open+1+end], true, nil
}

// Exists reports whether the option's control file is present.
// Kernel builds vary in which files they expose, so a missing file is
// ordinary, not exceptional.
func (fs *FS) Exists(opt Option) bool {
	return unix.Access(opt.Path(fs.root), unix.F_OK) == nil
}

// Writable reports whether the option's control file can be written
// by this process.
func (fs *FS) Writable(opt Option) bool {
	return unix.Access(opt.Path(fs.root), unix.W_OK) == nil
}

// Truncate opens the option's control file with O_TRUNC and closes
// it immediately. What truncation means is defined entirely by the
// kernel: on the trace file it clears the ring buffer, on
// set_ftrace_filter it clears the filter list.
func (fs *FS) Truncate(opt Option) error {
	path := opt.Path(fs.root)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("truncate %s: %w", path, err)
	}
	return f.Close()
}

// Open opens the option's file for reading. Used by the capture
// pipeline to read the ring buffer contents.
func (fs *FS) Open(opt Option) (*os.File, error) {
	f, err := os.Open(opt.Path(fs.root))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opt.Path(fs.root), err)
	}
	return f, nil
}
