// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package bitstream offers Cursor, a forward-only reader over a byte slice
// that can read both byte-aligned runs and arbitrary-width bit fields.
//
// Bits within a byte are consumed from the least-significant end. How the
// consumed bits are assembled into a result depends on the Cursor's byte
// order:
//
//	- Big-endian (the default) places each newly read chunk at the high end of
//	  the remaining result width, so the first byte read is the most
//	  significant.
//	- Little-endian places each newly read chunk at the next-higher position
//	  of the result, so the first byte read is the least significant.
//
// Cursor never backs up. Once any read fails, the Cursor's alignment is
// unknown and it should be discarded.
package bitstream

import (
	"fmt"

	"github.com/danjacques/gos2replay/support/errkind"

	"github.com/pkg/errors"
)

// MaxWideBits is the largest width that ReadWideBits will accept.
const MaxWideBits = 128

// Cursor is a bit-level reader over Buffer.
//
// The zero value is a big-endian Cursor over an empty Buffer. Cursor is not
// safe for concurrent use.
type Cursor struct {
	// Buffer is the data being read. It must not be modified while the Cursor
	// is in use; ReadAlignedBytes returns slices of it.
	Buffer []byte

	// LittleEndian, if true, assembles multi-chunk reads least-significant
	// chunk first.
	LittleEndian bool

	// pos is the number of bytes pulled out of Buffer.
	pos int
	// next holds the unconsumed bits of the last byte pulled from Buffer.
	next byte
	// nextBits is the number of valid bits in next (0-8).
	nextBits uint
}

// New returns a big-endian Cursor over buf.
func New(buf []byte) *Cursor { return &Cursor{Buffer: buf} }

// NewLittleEndian returns a little-endian Cursor over buf.
func NewLittleEndian(buf []byte) *Cursor { return &Cursor{Buffer: buf, LittleEndian: true} }

// Position returns the number of whole bytes that have been pulled from the
// Buffer. A partially consumed byte counts as pulled.
func (c *Cursor) Position() int { return c.pos }

// Remaining returns the number of bytes that have not yet been pulled.
func (c *Cursor) Remaining() int {
	if c.pos >= len(c.Buffer) {
		return 0
	}
	return len(c.Buffer) - c.pos
}

// Done returns true if every byte of Buffer has been pulled.
//
// Pending bits of the last byte do not count; a Cursor can be Done while
// still holding up to 7 unread bits.
func (c *Cursor) Done() bool { return c.pos >= len(c.Buffer) }

// UsedBits returns the number of bits consumed so far.
func (c *Cursor) UsedBits() int { return c.pos*8 - int(c.nextBits) }

// ByteAlign discards any pending bits of a partially consumed byte.
//
// It does not advance the position, and calling it repeatedly has no further
// effect.
func (c *Cursor) ByteAlign() { c.nextBits = 0 }

// ReadAlignedBytes aligns the Cursor, then returns the next n bytes.
//
// The returned slice references Buffer. If fewer than n bytes remain, the
// Cursor is not advanced and ErrTruncated is returned.
func (c *Cursor) ReadAlignedBytes(n int) ([]byte, error) {
	c.ByteAlign()
	if n < 0 || n > c.Remaining() {
		return nil, errors.Wrapf(errkind.ErrTruncated, "reading %d aligned bytes at %s", n, c)
	}

	v := c.Buffer[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// ReadBits reads an n-bit unsigned value, where n is at most 64.
func (c *Cursor) ReadBits(n uint) (uint64, error) {
	if n > 64 {
		return 0, errors.Errorf("cannot read %d bits into a 64-bit value", n)
	}
	_, lo, err := c.ReadWideBits(n)
	return lo, err
}

// ReadByte reads 8 bits. It need not be aligned.
func (c *Cursor) ReadByte() (byte, error) {
	v, err := c.ReadBits(8)
	return byte(v), err
}

// ReadWideBits reads an n-bit unsigned value, where n is at most
// MaxWideBits, returning it as its high and low 64-bit halves.
func (c *Cursor) ReadWideBits(n uint) (hi, lo uint64, err error) {
	if n > MaxWideBits {
		return 0, 0, errors.Errorf("cannot read %d bits (max %d)", n, MaxWideBits)
	}

	for got := uint(0); got < n; {
		if c.nextBits == 0 {
			if c.pos >= len(c.Buffer) {
				return 0, 0, errors.Wrapf(errkind.ErrTruncated, "reading %d bits at %s", n, c)
			}
			c.next, c.pos, c.nextBits = c.Buffer[c.pos], c.pos+1, 8
		}

		take := n - got
		if take > c.nextBits {
			take = c.nextBits
		}
		chunk := uint64(c.next) & ((1 << take) - 1)

		var shift uint
		if c.LittleEndian {
			shift = got
		} else {
			shift = n - got - take
		}
		hi, lo = or128(hi, lo, chunk, shift)

		c.next >>= take
		c.nextBits -= take
		got += take
	}
	return
}

// or128 ORs (v << shift) into the 128-bit value (hi, lo). v holds at most 8
// bits.
func or128(hi, lo, v uint64, shift uint) (uint64, uint64) {
	if shift >= 64 {
		return hi | (v << (shift - 64)), lo
	}
	return hi | (v >> (64 - shift)), lo | (v << shift)
}

func (c *Cursor) String() string {
	return fmt.Sprintf("Cursor{pos=%d/%d, pending=%d}", c.pos, len(c.Buffer), c.nextBits)
}
