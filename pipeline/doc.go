// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline moves trace bytes between the kernel ring buffer
// and standard output. Capture runs in one of two modes: a raw
// passthrough that hands the kernel trace file to the destination via
// sendfile with no user-space buffering, or a streaming compressor
// that consumes fixed-size input chunks and emits fixed-size output
// chunks. Replay is the inverse of the compressed mode, reading a
// previously captured file.
//
// Both directions share the same chunk discipline: 64 KiB buffers, a
// destination write that lands fewer bytes than requested aborts the
// transfer immediately, and the final partial chunk is flushed
// exactly once. Codec state is released on every exit path.
//
// The default stream format is zlib, which is what the capture format
// has always been; zstd and lz4 frames are also supported, and replay
// can detect the format from the stream's magic bytes.
package pipeline
