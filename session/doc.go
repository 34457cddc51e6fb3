// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package session orchestrates the trace capture lifecycle: configure
// the kernel options, arm tracing, wait out the capture window, stop,
// dump the ring buffer, and restore defaults.
//
// A session does not have to live inside one process. The begin, stop,
// and dump phases can run in separate invocations ("async" mode)
// because the kernel itself retains all ftrace state between process
// exits; the controller deliberately holds no session object across
// the split. Which phases a given invocation runs is derived
// deterministically from the three async flags by [Config.Phases].
//
// Kernel option failures are collected per step, never retried, and
// never abort the session early: a session proceeds best-effort and
// reports aggregate success at the end. Only capture/replay pipeline
// failures propagate as hard errors.
//
// Key exports:
//
//   - [Config] -- immutable session parameters
//   - [Controller] -- runs one invocation's phases
//   - [AbortFlag] and [Monitor] -- signal-driven abort handling
//   - [Gateway] -- the kernel option interface, satisfied by
//     tracefs.FS and by test fakes
package session
