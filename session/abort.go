// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// AbortFlag records that the user asked the session to stop. It is
// set at most once per process (setting it again is idempotent) and
// never reset. The controller reads it exactly once, immediately
// before dumping, to decide whether to honor or discard the capture.
//
// The flag is an explicit value passed into the controller rather
// than package-global state, so tests can drive it directly.
type AbortFlag struct {
	set atomic.Bool
}

// Set marks the session aborted.
func (f *AbortFlag) Set() {
	f.set.Store(true)
}

// Aborted reports whether the session was aborted.
func (f *AbortFlag) Aborted() bool {
	return f.set.Load()
}

// Monitor registers for the four termination-style signals (hang-up,
// interrupt, quit, terminate) and sets the flag when any of them
// arrives. The delivery goroutine does nothing else; in particular it
// performs no kernel writes, so a signal landing mid-session cannot
// corrupt the option sequence.
//
// The returned stop function releases the signal registration.
func Monitor(flag *AbortFlag, logger *slog.Logger) (stop func()) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for sig := range ch {
			flag.Set()
			logger.Debug("termination signal received", "signal", sig.String())
		}
	}()

	return func() {
		signal.Stop(ch)
		close(ch)
		<-done
	}
}
