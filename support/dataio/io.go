// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package dataio contains helpers for reading fixed-size sections out of a
// seekable source.
package dataio

import (
	"io"

	"github.com/danjacques/gos2replay/support/errkind"

	"github.com/pkg/errors"
)

// ReadFull reads from r until buf is full, or until an error is encountered.
//
// This accommodates the fact that io.Reader is allowed to return less than the
// full buffer size without erroring. If r runs dry before buf is full,
// io.ErrUnexpectedEOF is returned.
func ReadFull(r io.Reader, buf []byte) error {
	for remaining := buf; len(remaining) > 0; {
		amt, err := r.Read(remaining)
		remaining = remaining[amt:]
		if err != nil {
			if err == io.EOF {
				if len(remaining) == 0 {
					// Finished read and returned EOF.
					return nil
				}
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// ReadSection seeks r to offset and reads exactly size bytes.
//
// A section that extends past the end of r yields errkind.ErrTruncated.
func ReadSection(r io.ReadSeeker, offset int64, size int) ([]byte, error) {
	if offset < 0 || size < 0 {
		return nil, errors.Wrapf(errkind.ErrCorrupted, "invalid section (offset=%d, size=%d)", offset, size)
	}
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "seeking to %d", offset)
	}

	buf := make([]byte, size)
	if err := ReadFull(r, buf); err != nil {
		return nil, errkind.FromShortRead(err, "reading %d bytes at offset %d", size, offset)
	}
	return buf, nil
}
