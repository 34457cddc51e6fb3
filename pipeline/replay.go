// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Replay decompresses a previously captured trace file to the
// destination. With FormatAuto the stream format is detected from
// the file's magic bytes.
func Replay(path string, out io.Writer, format Format) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open trace file %s: %w", path, err)
	}
	defer f.Close()
	return Decompress(f, out, format)
}

// Decompress is the inverse of Compress: it streams the source
// through the format's decoder with the same chunking and short-write
// discipline. Decoder state is released on every exit path.
func Decompress(in io.Reader, out io.Writer, format Format) error {
	br := bufio.NewReaderSize(in, ChunkSize)

	if format == FormatAuto {
		header, err := br.Peek(4)
		if err != nil && err != io.EOF {
			return fmt.Errorf("read stream header: %w", err)
		}
		format, err = detectFormat(header)
		if err != nil {
			return err
		}
	}

	dec, err := newDecoder(br, format)
	if err != nil {
		return err
	}
	defer dec.Close()

	cw := newChunkWriter(out)
	buf := make([]byte, ChunkSize)
	for {
		n, rerr := dec.Read(buf)
		if n > 0 {
			if _, werr := cw.Write(buf[:n]); werr != nil {
				return fmt.Errorf("decompress: %w", werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("decompress: %w", rerr)
		}
	}
	return cw.Flush()
}
