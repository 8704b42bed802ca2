// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package protocoltest encodes values in the bit-packed and versioned wire
// formats, for building test fixtures.
package protocoltest

import (
	"github.com/danjacques/gos2replay/protocol"
)

// BitWriter writes big-endian bit-packed data, the inverse of a big-endian
// bitstream.Cursor.
//
// The zero value is an empty writer.
type BitWriter struct {
	buf []byte
	// free is the number of unused high bits in the last byte of buf.
	free uint
}

// Bits writes the low n bits of v, most significant first.
func (w *BitWriter) Bits(v uint64, n uint) *BitWriter {
	for n > 0 {
		if w.free == 0 {
			w.buf = append(w.buf, 0)
			w.free = 8
		}

		take := n
		if take > w.free {
			take = w.free
		}
		chunk := (v >> (n - take)) & (1<<take - 1)
		w.buf[len(w.buf)-1] |= byte(chunk << (8 - w.free))

		w.free -= take
		n -= take
	}
	return w
}

// Int writes v as a value of bounds b.
func (w *BitWriter) Int(v int64, b protocol.Bounds) *BitWriter {
	return w.Bits(uint64(v-b.Offset), b.Bits)
}

// Bool writes a single-bit boolean.
func (w *BitWriter) Bool(v bool) *BitWriter {
	if v {
		return w.Bits(1, 1)
	}
	return w.Bits(0, 1)
}

// Align pads the last byte, so that the next write starts a new byte.
func (w *BitWriter) Align() *BitWriter {
	w.free = 0
	return w
}

// Bytes aligns, then writes raw bytes.
func (w *BitWriter) Bytes(b []byte) *BitWriter {
	w.Align()
	w.buf = append(w.buf, b...)
	return w
}

// Blob writes a length of bounds b followed by the aligned bytes of s.
func (w *BitWriter) Blob(s string, b protocol.Bounds) *BitWriter {
	return w.Int(int64(len(s)), b).Bytes([]byte(s))
}

// Build returns the written bytes.
func (w *BitWriter) Build() []byte { return append([]byte(nil), w.buf...) }

// VersionedWriter writes versioned data, in which each value is prefixed by
// its wire kind byte.
//
// The zero value is an empty writer.
type VersionedWriter struct {
	buf []byte
}

// Kind writes a raw wire kind byte.
func (w *VersionedWriter) Kind(k byte) *VersionedWriter {
	w.buf = append(w.buf, k)
	return w
}

// Vint writes a variable-length integer with no kind byte, as used for
// lengths and tags.
func (w *VersionedWriter) Vint(v int64) *VersionedWriter {
	w.buf = append(w.buf, protocol.EncodeVint(v)...)
	return w
}

// Int writes an integer value.
func (w *VersionedWriter) Int(v int64) *VersionedWriter { return w.Kind(9).Vint(v) }

// Blob writes a blob value.
func (w *VersionedWriter) Blob(b []byte) *VersionedWriter {
	w.Kind(2).Vint(int64(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

// String writes a blob value holding s.
func (w *VersionedWriter) String(s string) *VersionedWriter { return w.Blob([]byte(s)) }

// Bool writes a boolean value.
func (w *VersionedWriter) Bool(v bool) *VersionedWriter {
	w.Kind(6)
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	return w
}

// Array begins an array of n values. The values must be written next.
func (w *VersionedWriter) Array(n int) *VersionedWriter { return w.Kind(0).Vint(int64(n)) }

// BitBlob writes a bit array of n bits.
func (w *VersionedWriter) BitBlob(n int, data []byte) *VersionedWriter {
	w.Kind(1).Vint(int64(n))
	w.buf = append(w.buf, data...)
	return w
}

// Choice begins a choice with tag. Its value must be written next.
func (w *VersionedWriter) Choice(tag int64) *VersionedWriter { return w.Kind(3).Vint(tag) }

// Optional writes a presence flag. If present, the value must be written
// next.
func (w *VersionedWriter) Optional(present bool) *VersionedWriter {
	w.Kind(4)
	if present {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	return w
}

// Struct begins a struct of n fields. Each field is written as a Field tag
// followed by its value.
func (w *VersionedWriter) Struct(n int) *VersionedWriter { return w.Kind(5).Vint(int64(n)) }

// Field writes a struct field tag.
func (w *VersionedWriter) Field(tag int64) *VersionedWriter { return w.Vint(tag) }

// FourCC writes a four-byte value.
func (w *VersionedWriter) FourCC(s string) *VersionedWriter {
	w.Kind(7)
	w.buf = append(w.buf, s[:4]...)
	return w
}

// U64 writes an eight-byte value.
func (w *VersionedWriter) U64(b [8]byte) *VersionedWriter {
	w.Kind(8)
	w.buf = append(w.buf, b[:]...)
	return w
}

// Raw writes bytes verbatim.
func (w *VersionedWriter) Raw(b ...byte) *VersionedWriter {
	w.buf = append(w.buf, b...)
	return w
}

// Build returns the written bytes.
func (w *VersionedWriter) Build() []byte { return append([]byte(nil), w.buf...) }
