// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mpq

import (
	"bytes"
	"compress/bzip2"
	"io"

	"github.com/danjacques/gos2replay/support/errkind"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// Compression is the method byte that prefixes compressed file data.
type Compression byte

const (
	// CompressionNone marks data stored without compression.
	CompressionNone Compression = 0x00
	// CompressionZlib marks zlib-deflated data.
	CompressionZlib Compression = 0x02
	// CompressionBzip2 marks bzip2-compressed data.
	CompressionBzip2 Compression = 0x10
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "NONE"
	case CompressionZlib:
		return "ZLIB"
	case CompressionBzip2:
		return "BZIP2"
	default:
		return "UNKNOWN"
	}
}

// MaxFileSize is the largest expanded file size that will be decompressed.
const MaxFileSize = 256 << 20

// decompressChunk is the initial output capacity reserved by decompress. The
// output grows with the data actually produced, not with the declared size.
const decompressChunk = 64 << 10

// decompress expands method-tagged data into exactly size bytes.
func decompress(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(errkind.ErrTruncated, "compressed data has no method byte")
	}
	if size < 0 || size > MaxFileSize {
		return nil, errors.Wrapf(errkind.ErrCorrupted, "expanded size %d exceeds limit %d", size, MaxFileSize)
	}

	method, payload := Compression(data[0]), data[1:]
	var r io.Reader
	switch method {
	case CompressionNone:
		return payload, nil

	case CompressionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Wrapf(errkind.ErrCorrupted, "opening zlib stream: %s", err)
		}
		defer zr.Close()
		r = zr

	case CompressionBzip2:
		r = bzip2.NewReader(bytes.NewReader(payload))

	default:
		return nil, errors.Wrapf(errkind.ErrUnsupportedCompression, "method 0x%02X", byte(method))
	}

	var out bytes.Buffer
	if size < decompressChunk {
		out.Grow(size)
	} else {
		out.Grow(decompressChunk)
	}
	switch n, err := io.CopyN(&out, r, int64(size)); {
	case err == io.EOF:
		return nil, errors.Wrapf(errkind.ErrCorrupted, "%s stream expanded to %d bytes, fewer than %d", method, n, size)
	case err != nil:
		return nil, errors.Wrapf(errkind.ErrCorrupted, "%s stream: %s", method, err)
	}

	// The stream must end exactly at size.
	var extra [1]byte
	switch _, err := io.ReadFull(r, extra[:]); err {
	case io.EOF:
		return out.Bytes(), nil
	case nil:
		return nil, errors.Wrapf(errkind.ErrCorrupted, "%s stream expanded to more than %d bytes", method, size)
	default:
		return nil, errors.Wrapf(errkind.ErrCorrupted, "%s stream: %s", method, err)
	}
}
