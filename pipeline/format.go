// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format identifies the compressed stream format.
type Format string

const (
	// FormatAuto asks replay to detect the format from the stream's
	// leading magic bytes. Not valid for capture.
	FormatAuto Format = "auto"

	// FormatZlib is a zlib (RFC 1950) deflate stream. This is the
	// historical capture format and the default.
	FormatZlib Format = "zlib"

	// FormatZstd is a zstd frame.
	FormatZstd Format = "zstd"

	// FormatLZ4 is an lz4 frame.
	FormatLZ4 Format = "lz4"
)

// ParseFormat parses a format name as given on the command line.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatAuto, FormatZlib, FormatZstd, FormatLZ4:
		return Format(name), nil
	default:
		return "", fmt.Errorf("unknown compression format: %q", name)
	}
}

// detectFormat inspects the first bytes of a stream and returns the
// format they announce. zstd and lz4 frames carry fixed magic
// numbers; zlib is recognized by its two-byte header checksum rule.
func detectFormat(header []byte) (Format, error) {
	if len(header) >= 4 {
		if header[0] == 0x28 && header[1] == 0xb5 && header[2] == 0x2f && header[3] == 0xfd {
			return FormatZstd, nil
		}
		if header[0] == 0x04 && header[1] == 0x22 && header[2] == 0x4d && header[3] == 0x18 {
			return FormatLZ4, nil
		}
	}
	if len(header) >= 2 {
		// A zlib header has CM=8 in the low nibble of the first byte
		// and the 16-bit header divisible by 31.
		if header[0]&0x0f == 8 && (uint16(header[0])<<8|uint16(header[1]))%31 == 0 {
			return FormatZlib, nil
		}
	}
	return "", fmt.Errorf("unrecognized compressed stream header")
}

// newEncoder wraps the destination in a streaming encoder for the
// format. The returned writer must be closed to flush the stream
// trailer.
func newEncoder(w io.Writer, format Format) (io.WriteCloser, error) {
	switch format {
	case FormatZlib:
		return zlib.NewWriter(w), nil
	case FormatZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return enc, nil
	case FormatLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("cannot encode format %q", format)
	}
}

// newDecoder wraps the source in a streaming decoder for the format.
func newDecoder(r io.Reader, format Format) (io.ReadCloser, error) {
	switch format {
	case FormatZlib:
		dec, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zlib decoder: %w", err)
		}
		return dec, nil
	case FormatZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return dec.IOReadCloser(), nil
	case FormatLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("cannot decode format %q", format)
	}
}
