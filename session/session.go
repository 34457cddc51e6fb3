// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ktrace-io/ktrace/pipeline"
	"github.com/ktrace-io/ktrace/tracefs"
)

// Controller runs the phases of one invocation against the kernel
// option gateway. It holds no state the kernel does not: a controller
// for an async stop or dump invocation reconstructs nothing from the
// begin invocation, because the kernel retained it all.
type Controller struct {
	config Config
	phases Phases
	gw     Gateway
	abort  *AbortFlag
	out    io.Writer
	logger *slog.Logger

	// sleep is replaceable so tests do not wait out real capture
	// windows. The capture sleep is deliberately uninterruptible:
	// a signal's abort flag is honored at the dump boundary, not
	// mid-window.
	sleep func(time.Duration)
}

// New builds a controller for one invocation. The abort flag may be
// shared with a signal monitor; out receives the dumped or replayed
// trace bytes.
func New(config Config, gw Gateway, abort *AbortFlag, out io.Writer, logger *slog.Logger) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if abort == nil {
		abort = &AbortFlag{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		config: config,
		phases: config.Phases(),
		gw:     gw,
		abort:  abort,
		out:    out,
		logger: logger,
		sleep:  time.Sleep,
	}, nil
}

// Run executes this invocation's phases. Kernel option failures are
// reported and absorbed; only capture or replay pipeline failures are
// returned as errors.
func (c *Controller) Run() error {
	// A decompress request short-circuits the whole lifecycle.
	if c.config.DecompressFile != "" {
		format := c.config.Format
		if format == "" {
			format = pipeline.FormatAuto
		}
		return pipeline.Replay(c.config.DecompressFile, c.out, format)
	}

	if c.config.Delay > 0 {
		c.sleep(c.config.Delay)
	}

	ok := true
	if c.phases.Begin {
		ok = c.begin()
	}

	if c.phases.Stop {
		// Stop is an independent kernel toggle, not an in-process
		// lock: it applies whether or not this invocation armed the
		// session.
		if err := c.gw.WriteBool(tracefs.TracingOn, false); err != nil {
			c.logger.Warn("failed to disable tracing", "error", err)
		}
	}

	var dumpErr error
	if ok && c.phases.Dump {
		dumpErr = c.dumpPhase()
	} else if !ok {
		c.logger.Error("unable to start tracing, check that tracefs is set up correctly")
	}

	if c.phases.Stop {
		c.cleanup()
	}
	return dumpErr
}

// begin configures the kernel, arms tracing, and waits out the
// capture window for synchronous sessions. Returns whether every
// mandatory step succeeded.
func (c *Controller) begin() bool {
	result := c.configure()
	result = append(result, StepOutcome{
		Option: tracefs.TracingOn,
		Err:    c.gw.WriteBool(tracefs.TracingOn, true),
	})

	for _, step := range result.Failed() {
		c.logger.Warn("kernel option write failed",
			"option", step.Option.String(), "optional", step.Optional, "error", step.Err)
	}
	if !result.OK() {
		return false
	}

	c.flushOutput()
	if err := c.gw.Truncate(tracefs.Trace); err != nil {
		c.logger.Warn("failed to clear ring buffer", "error", err)
		return false
	}
	c.writeClockSyncMarker()

	switch {
	case c.config.Stream:
		c.streamTrace()
	case !c.phases.Async:
		c.sleep(c.config.Duration)
	}
	return true
}

// dumpPhase emits the captured trace unless the session was aborted,
// then clears the ring buffer either way so the kernel is left clean.
func (c *Controller) dumpPhase() error {
	var dumpErr error
	c.flushOutput()
	if c.abort.Aborted() {
		c.logger.Info("session aborted by signal, discarding capture")
	} else {
		dumpErr = c.dump()
	}

	if err := c.gw.Truncate(tracefs.Trace); err != nil {
		c.logger.Warn("failed to clear ring buffer after dump", "error", err)
	}
	return dumpErr
}

// dump runs the capture pipeline against the kernel trace file.
func (c *Controller) dump() error {
	trace, err := c.gw.Open(tracefs.Trace)
	if err != nil {
		return fmt.Errorf("open trace buffer: %w", err)
	}
	defer trace.Close()
	return pipeline.Capture(trace, c.out, c.config.Compress, c.config.Format)
}

// writeClockSyncMarker records reference timestamps in the trace so
// the timeline can be aligned with external clocks: the monotonic
// clock that trace timestamps derive from, and wall-clock time in
// milliseconds. Marker writes are best-effort.
func (c *Controller) writeClockSyncMarker() {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err == nil {
		marker := fmt.Sprintf("trace_event_clock_sync: parent_ts=%d.%06d\n",
			ts.Sec, ts.Nsec/1000)
		if err := c.gw.WriteOption(tracefs.TraceMarker, marker); err != nil {
			c.logger.Debug("clock sync marker write failed", "error", err)
		}
	}
	marker := fmt.Sprintf("trace_event_clock_sync: realtime_ts=%d\n",
		time.Now().UnixMilli())
	if err := c.gw.WriteOption(tracefs.TraceMarker, marker); err != nil {
		c.logger.Debug("clock sync marker write failed", "error", err)
	}
}

// streamTrace would relay records from trace_pipe as they arrive.
// Streaming capture is not implemented; the session is left armed
// with no capture window, exactly like an async begin.
func (c *Controller) streamTrace() {
	c.logger.Warn("streaming capture is not implemented")
}

// flushOutput pushes any buffering in the output writer before a
// write that depends on prior bytes having been delivered. Raw
// os.Stdout has no user-space buffer; wrapped writers may.
func (c *Controller) flushOutput() {
	type flusher interface{ Flush() error }
	if f, ok := c.out.(flusher); ok {
		if err := f.Flush(); err != nil {
			c.logger.Warn("output flush failed", "error", err)
		}
	}
}
