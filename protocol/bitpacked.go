// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"github.com/danjacques/gos2replay/support/bitstream"
	"github.com/danjacques/gos2replay/support/errkind"

	"github.com/pkg/errors"
)

// maxIntBits is the widest integer a schema may declare. Integers wider than
// 64 bits keep their low 64 bits.
const maxIntBits = bitstream.MaxWideBits

// bitPacked reads values with no self-description: every integer is
// Bounds.Bits wide, and struct fields appear in declared order.
type bitPacked struct {
	cur *bitstream.Cursor
}

func (bp *bitPacked) readInt(b Bounds) (int64, error) {
	if b.Bits <= 64 {
		v, err := bp.cur.ReadBits(b.Bits)
		return b.Offset + int64(v), err
	}
	_, lo, err := bp.cur.ReadWideBits(b.Bits)
	return b.Offset + int64(lo), err
}

func (bp *bitPacked) readBlob(b Bounds) ([]byte, error) {
	n, err := bp.readInt(b)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Wrapf(errkind.ErrCorrupted, "negative blob length %d", n)
	}
	return bp.cur.ReadAlignedBytes(int(n))
}

func (bp *bitPacked) readBool() (bool, error) {
	v, err := bp.readInt(Bounds{Offset: 0, Bits: 1})
	return v != 0, err
}

func (bp *bitPacked) readArrayLength(b Bounds) (int64, error) { return bp.readInt(b) }

func (bp *bitPacked) readBitArray(b Bounds) (Value, error) {
	n, err := bp.readInt(b)
	if err != nil {
		return Value{}, err
	}
	if n < 0 {
		return Value{}, errors.Wrapf(errkind.ErrCorrupted, "negative bit array length %d", n)
	}

	var sum int16
	for rest := n; rest > 0; rest -= 8 {
		width := uint(8)
		if rest < 8 {
			width = uint(rest)
		}
		v, err := bp.cur.ReadBits(width)
		if err != nil {
			return Value{}, err
		}
		sum += int16(v)
	}
	return PairValue(n, sum), nil
}

func (bp *bitPacked) readOptional() (bool, error) { return bp.readBool() }

func (bp *bitPacked) readFourCC() ([]byte, error) {
	buf := make([]byte, 4)
	for i := range buf {
		var err error
		if buf[i], err = bp.cur.ReadByte(); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (bp *bitPacked) readChoice(ti *TypeInfo, depth int) (*ChoiceOption, error) {
	tag, err := bp.readInt(ti.Bounds)
	if err != nil {
		return nil, err
	}
	opt := ti.option(tag)
	if opt == nil {
		return nil, errors.Wrapf(errkind.ErrCorrupted, "unknown choice tag %d at %s", tag, bp.cur)
	}
	return opt, nil
}

func (bp *bitPacked) readStruct(ti *TypeInfo, depth int, visit func(f *Field) error) error {
	for i := range ti.Fields {
		if err := visit(&ti.Fields[i]); err != nil {
			return err
		}
	}
	return nil
}
