// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"io"
)

// ChunkSize is the size of the pipeline's input and output buffers.
const ChunkSize = 64 * 1024

// chunkWriter accumulates encoder output in a fixed-size buffer and
// writes the destination in whole chunks. The buffer is owned by one
// transfer for its whole duration and is never shared.
//
// A destination write that returns fewer bytes than requested is a
// fatal short write: the transfer cannot tell which bytes landed, so
// it stops immediately rather than produce a corrupt stream.
type chunkWriter struct {
	dst  io.Writer
	buf  []byte
	fill int
}

func newChunkWriter(dst io.Writer) *chunkWriter {
	return &chunkWriter{dst: dst, buf: make([]byte, ChunkSize)}
}

// Write implements io.Writer for the encoder side.
func (w *chunkWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := copy(w.buf[w.fill:], p)
		w.fill += n
		written += n
		p = p[n:]
		if w.fill == len(w.buf) {
			if err := w.writeChunk(w.buf); err != nil {
				return written, err
			}
			w.fill = 0
		}
	}
	return written, nil
}

// Flush writes any buffered partial chunk. Call once, after the
// encoder has been closed.
func (w *chunkWriter) Flush() error {
	if w.fill == 0 {
		return nil
	}
	err := w.writeChunk(w.buf[:w.fill])
	w.fill = 0
	return err
}

func (w *chunkWriter) writeChunk(chunk []byte) error {
	n, err := w.dst.Write(chunk)
	if err != nil {
		return fmt.Errorf("write output chunk: %w", err)
	}
	if n < len(chunk) {
		return fmt.Errorf("write output chunk: wrote %d of %d bytes: %w",
			n, len(chunk), io.ErrShortWrite)
	}
	return nil
}
