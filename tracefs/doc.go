// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracefs is the single point of contact with the kernel's
// ftrace control filesystem. It maps logical option identifiers to
// control-file paths and performs the raw reads, writes, probes, and
// truncations that arm and tear down a trace session.
//
// Every write to a tracefs control file is a kernel side effect, and
// some of them are destructive (rewriting the active trace clock
// resets the ring buffer). This package therefore never retries a
// short write and never caches paths or file contents across calls:
// the kernel owns all of that state, not the process.
//
// Key exports:
//
//   - [Option] -- logical control-file identifier, resolved to a path
//     by [Option.Path]
//   - [FS] -- gateway rooted at a tracefs mount (or a test directory)
//   - [DetectRoot] -- probe for the tracefs mount point
//
// This package depends on no other ktrace packages.
package tracefs
