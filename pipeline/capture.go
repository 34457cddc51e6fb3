// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// sendfileChunk is the per-call transfer cap for the raw passthrough.
// The kernel clamps each sendfile call to what the trace file yields.
const sendfileChunk = 64 << 20

// Capture copies the kernel trace file to the destination, either as
// an uninterpreted byte stream or through a streaming compressor.
func Capture(trace *os.File, out io.Writer, compress bool, format Format) error {
	if !compress {
		return rawCopy(out, trace)
	}
	return Compress(trace, out, format)
}

// rawCopy streams the trace file to the destination with no
// user-space buffering when the destination is a real file
// descriptor. Other destinations (tests, in-memory sinks) get an
// equivalent chunked copy.
func rawCopy(out io.Writer, in *os.File) error {
	if f, ok := out.(*os.File); ok {
		return sendfileCopy(f, in)
	}
	return chunkedCopy(out, in)
}

// sendfileCopy loops zero-copy transfers until the trace file reports
// no more bytes. Destinations that cannot accept sendfile (some
// filesystems and character devices) fall back to a chunked copy,
// but only if nothing has been transferred yet.
func sendfileCopy(out, in *os.File) error {
	transferred := false
	for {
		n, err := unix.Sendfile(int(out.Fd()), int(in.Fd()), nil, sendfileChunk)
		if n > 0 {
			transferred = true
			continue
		}
		if err != nil {
			if !transferred && (errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOSYS)) {
				return chunkedCopy(out, in)
			}
			return fmt.Errorf("sendfile: %w", err)
		}
		return nil
	}
}

// chunkedCopy is the read/write equivalent of sendfileCopy, with the
// pipeline's usual short-write discipline.
func chunkedCopy(out io.Writer, in io.Reader) error {
	buf := make([]byte, ChunkSize)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			written, werr := out.Write(buf[:n])
			if werr != nil {
				return fmt.Errorf("write trace bytes: %w", werr)
			}
			if written < n {
				return fmt.Errorf("write trace bytes: wrote %d of %d: %w",
					written, n, io.ErrShortWrite)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read trace: %w", err)
		}
	}
}

// Compress streams the source through the format's encoder into the
// destination, reading and writing in ChunkSize pieces. End of input
// switches the encoder to its finish mode; the trailing partial
// output chunk is flushed exactly once. Encoder state is released on
// every exit path.
func Compress(in io.Reader, out io.Writer, format Format) error {
	cw := newChunkWriter(out)
	enc, err := newEncoder(cw, format)
	if err != nil {
		return err
	}

	buf := make([]byte, ChunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := enc.Write(buf[:n]); werr != nil {
				enc.Close()
				return fmt.Errorf("compress: %w", werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			enc.Close()
			return fmt.Errorf("read input chunk: %w", rerr)
		}
	}

	// Close finishes the stream, pushing the trailer through the
	// chunk writer.
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish compressed stream: %w", err)
	}
	return cw.Flush()
}
