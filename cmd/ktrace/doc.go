// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

// ktrace controls the kernel's ftrace subsystem: it arms a trace
// session, waits out the capture window, and dumps the ring buffer to
// standard output, raw or compressed. The begin, stop, and dump
// phases can also run as separate invocations, with the kernel
// holding the session state in between.
package main
