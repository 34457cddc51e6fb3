// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"time"

	"github.com/ktrace-io/ktrace/pipeline"
)

// Config holds the parameters of one invocation. It is built once at
// startup and read-only thereafter.
type Config struct {
	// BufferSizeKB is the per-CPU ring buffer size in kilobytes.
	BufferSizeKB int

	// Overwrite selects whether a full ring buffer discards the
	// oldest records (true) or the newest. BeginAsync forces this
	// on regardless; see Config.EffectiveOverwrite.
	Overwrite bool

	// Duration is the capture window for a synchronous session.
	Duration time.Duration

	// Delay postpones the start of the session.
	Delay time.Duration

	// PrintTgid requests thread group ids in the trace output.
	PrintTgid bool

	// Functions is a comma-separated list of kernel functions to
	// trace with the function_graph tracer. Empty selects the nop
	// tracer.
	Functions string

	// SchedEvents enables the scheduler switch/wakeup events.
	SchedEvents bool

	// Compress streams the dump through the compressor instead of
	// emitting raw trace bytes.
	Compress bool

	// Format is the compressed stream format for capture and
	// replay.
	Format pipeline.Format

	// DecompressFile, when set, replays the named compressed trace
	// to the output and skips the capture lifecycle entirely.
	DecompressFile string

	// Stream requests open-ended streaming capture (not
	// implemented; the session is armed with no capture window).
	Stream bool

	// At most one of the async flags may be set. Each selects one
	// phase of a split session; all false runs a complete
	// synchronous session.
	BeginAsync bool
	StopAsync  bool
	DumpAsync  bool
}

// Phases is the derived set of lifecycle phases this invocation runs.
type Phases struct {
	Begin bool
	Stop  bool
	Dump  bool
	Async bool
}

// Phases derives the phase set from the async flags:
//
//	flags          begin  stop   dump
//	(none)         yes    yes    yes
//	BeginAsync     yes    no     no
//	StopAsync      no     yes    yes
//	DumpAsync      no     no     yes
//
// Simultaneous async flags are rejected by Validate, so the cases
// here are exhaustive.
func (c Config) Phases() Phases {
	switch {
	case c.BeginAsync:
		return Phases{Begin: true, Async: true}
	case c.StopAsync:
		return Phases{Stop: true, Dump: true, Async: true}
	case c.DumpAsync:
		return Phases{Dump: true, Async: true}
	default:
		return Phases{Begin: true, Stop: true, Dump: true}
	}
}

// EffectiveOverwrite returns the overwrite policy actually applied.
// An async begin forces overwrite on: the session may run arbitrarily
// long before the stop/dump invocation arrives, and a wrapped buffer
// holding the most recent window is more useful than one frozen at
// the start.
func (c Config) EffectiveOverwrite() bool {
	if c.BeginAsync {
		return true
	}
	return c.Overwrite
}

// Validate rejects contradictory parameter combinations.
func (c Config) Validate() error {
	asyncFlags := 0
	for _, set := range []bool{c.BeginAsync, c.StopAsync, c.DumpAsync} {
		if set {
			asyncFlags++
		}
	}
	if asyncFlags > 1 {
		return fmt.Errorf("at most one of --async-begin, --async-stop, --async-dump may be set")
	}
	if c.DecompressFile != "" {
		if asyncFlags > 0 || c.Stream {
			return fmt.Errorf("--decompress cannot be combined with capture flags")
		}
		return nil
	}
	if c.BufferSizeKB < 1 {
		return fmt.Errorf("buffer size must be at least 1 KB, got %d", c.BufferSizeKB)
	}
	if c.Duration < 0 {
		return fmt.Errorf("capture duration cannot be negative")
	}
	if c.Delay < 0 {
		return fmt.Errorf("start delay cannot be negative")
	}
	return nil
}
