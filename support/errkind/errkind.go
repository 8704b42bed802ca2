// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package errkind defines the failure taxonomy shared by the archive reader
// and the protocol decoders.
//
// Every failure produced while reading an archive is one of four kinds. All of
// them are terminal for the archive being read: once a bit cursor has lost
// alignment, or a tag failed to resolve, nothing decoded afterwards can be
// trusted. Callers should discard the archive and move on.
//
// Errors are returned wrapped (see github.com/pkg/errors) so that they carry
// context. Use errors.Is, or Of, to test for a kind.
package errkind

import (
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrTruncated is returned when a buffer or file runs out of data mid-read.
	ErrTruncated = errors.New("truncated")

	// ErrCorrupted is returned when data does not match what the format or the
	// schema requires: bad magic, wire/schema kind mismatch, unknown type ID or
	// unresolvable tag.
	ErrCorrupted = errors.New("corrupted")

	// ErrUnsupportedCompression is returned when a compression method byte is
	// not recognized.
	ErrUnsupportedCompression = errors.New("unsupported compression")

	// ErrUnsupportedLayout is returned when a sub-file uses a storage layout
	// that is not implemented (multi-sector or encrypted).
	ErrUnsupportedLayout = errors.New("unsupported layout")
)

// Kind is a classification of an error.
type Kind int

const (
	// None is the Kind of a nil error.
	None Kind = iota
	// Truncated is the Kind of ErrTruncated.
	Truncated
	// Corrupted is the Kind of ErrCorrupted.
	Corrupted
	// UnsupportedCompression is the Kind of ErrUnsupportedCompression.
	UnsupportedCompression
	// UnsupportedLayout is the Kind of ErrUnsupportedLayout.
	UnsupportedLayout
	// Other is the Kind of any error outside of the taxonomy (I/O, etc.).
	Other
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Truncated:
		return "truncated"
	case Corrupted:
		return "corrupted"
	case UnsupportedCompression:
		return "unsupported_compression"
	case UnsupportedLayout:
		return "unsupported_layout"
	default:
		return "other"
	}
}

// Of classifies err.
func Of(err error) Kind {
	switch {
	case err == nil:
		return None
	case errors.Is(err, ErrTruncated):
		return Truncated
	case errors.Is(err, ErrCorrupted):
		return Corrupted
	case errors.Is(err, ErrUnsupportedCompression):
		return UnsupportedCompression
	case errors.Is(err, ErrUnsupportedLayout):
		return UnsupportedLayout
	default:
		return Other
	}
}

// FromShortRead converts the errors that io.ReadFull and friends return on a
// short read into ErrTruncated. Other errors are returned unchanged.
func FromShortRead(err error, format string, args ...interface{}) error {
	switch err {
	case nil:
		return nil
	case io.EOF, io.ErrUnexpectedEOF:
		return errors.Wrapf(ErrTruncated, format, args...)
	default:
		return errors.Wrapf(err, format, args...)
	}
}
