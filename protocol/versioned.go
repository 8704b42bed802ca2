// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"github.com/danjacques/gos2replay/support/bitstream"
	"github.com/danjacques/gos2replay/support/errkind"

	"github.com/pkg/errors"
)

// Wire kind bytes that prefix every versioned value.
const (
	wireArray    byte = 0
	wireBitBlob  byte = 1
	wireBlob     byte = 2
	wireChoice   byte = 3
	wireOptional byte = 4
	wireStruct   byte = 5
	wireU8       byte = 6
	wireU32      byte = 7
	wireU64      byte = 8
	wireVint     byte = 9
)

// versioned reads self-describing values. Each value is prefixed by a kind
// byte, integers are variable-length, and struct fields and choice options
// carry their tags, so a reader can skip what its schema does not know.
type versioned struct {
	cur *bitstream.Cursor
}

func (vd *versioned) expect(kind byte) error {
	v, err := vd.cur.ReadByte()
	if err != nil {
		return err
	}
	if v != kind {
		return errors.Wrapf(errkind.ErrCorrupted, "expected wire kind %d, got %d at %s", kind, v, vd.cur)
	}
	return nil
}

// readVint reads a variable-length signed integer.
//
// The first byte holds the sign in bit 0 and six magnitude bits in bits 1-6.
// Bit 7 of every byte flags a continuation byte, which adds seven more
// magnitude bits.
func (vd *versioned) readVint() (int64, error) {
	b, err := vd.cur.ReadByte()
	if err != nil {
		return 0, err
	}
	negative := b&1 != 0
	result := uint64(b>>1) & 0x3F

	for shift := uint(6); b&0x80 != 0; shift += 7 {
		if shift >= 64 {
			return 0, errors.Wrapf(errkind.ErrCorrupted, "variable-length integer overflows at %s", vd.cur)
		}
		if b, err = vd.cur.ReadByte(); err != nil {
			return 0, err
		}
		result |= uint64(b&0x7F) << shift
	}

	if negative {
		return -int64(result), nil
	}
	return int64(result), nil
}

func (vd *versioned) readLength(what string) (int, error) {
	n, err := vd.readVint()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > int64(vd.cur.Remaining())*8+8 {
		return 0, errors.Wrapf(errkind.ErrCorrupted, "invalid %s length %d at %s", what, n, vd.cur)
	}
	return int(n), nil
}

func (vd *versioned) readInt(b Bounds) (int64, error) {
	if err := vd.expect(wireVint); err != nil {
		return 0, err
	}
	return vd.readVint()
}

func (vd *versioned) readBlob(b Bounds) ([]byte, error) {
	if err := vd.expect(wireBlob); err != nil {
		return nil, err
	}
	n, err := vd.readLength("blob")
	if err != nil {
		return nil, err
	}
	return vd.cur.ReadAlignedBytes(n)
}

func (vd *versioned) readBool() (bool, error) {
	if err := vd.expect(wireU8); err != nil {
		return false, err
	}
	v, err := vd.cur.ReadByte()
	return v != 0, err
}

func (vd *versioned) readArrayLength(b Bounds) (int64, error) {
	if err := vd.expect(wireArray); err != nil {
		return 0, err
	}
	return vd.readVint()
}

func (vd *versioned) readBitArray(b Bounds) (Value, error) {
	if err := vd.expect(wireBitBlob); err != nil {
		return Value{}, err
	}
	n, err := vd.readLength("bit blob")
	if err != nil {
		return Value{}, err
	}
	data, err := vd.cur.ReadAlignedBytes((n + 7) / 8)
	if err != nil {
		return Value{}, err
	}

	var sum int16
	for _, v := range data {
		sum += int16(v)
	}
	return PairValue(int64(n), sum), nil
}

func (vd *versioned) readOptional() (bool, error) {
	if err := vd.expect(wireOptional); err != nil {
		return false, err
	}
	v, err := vd.cur.ReadByte()
	return v != 0, err
}

func (vd *versioned) readFourCC() ([]byte, error) {
	if err := vd.expect(wireU32); err != nil {
		return nil, err
	}
	return vd.cur.ReadAlignedBytes(4)
}

func (vd *versioned) readChoice(ti *TypeInfo, depth int) (*ChoiceOption, error) {
	if err := vd.expect(wireChoice); err != nil {
		return nil, err
	}
	tag, err := vd.readVint()
	if err != nil {
		return nil, err
	}

	if opt := ti.option(tag); opt != nil {
		return opt, nil
	}
	if err := vd.skipInstance(depth + 1); err != nil {
		return nil, errors.Wrapf(err, "skipping unknown choice tag %d", tag)
	}
	return nil, nil
}

func (vd *versioned) readStruct(ti *TypeInfo, depth int, visit func(f *Field) error) error {
	if err := vd.expect(wireStruct); err != nil {
		return err
	}
	n, err := vd.readLength("struct")
	if err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		tag, err := vd.readVint()
		if err != nil {
			return err
		}

		if f := ti.fieldByTag(tag); f != nil {
			if err := visit(f); err != nil {
				return err
			}
			continue
		}
		if err := vd.skipInstance(depth + 1); err != nil {
			return errors.Wrapf(err, "skipping unknown field tag %d", tag)
		}
	}
	return nil
}

// skipInstance consumes one value of any wire kind without interpreting it.
//
// Its cases mirror the reads above.
func (vd *versioned) skipInstance(depth int) error {
	if depth > MaxDepth {
		return errors.Wrapf(errkind.ErrCorrupted, "skipped value nested deeper than %d", MaxDepth)
	}

	kind, err := vd.cur.ReadByte()
	if err != nil {
		return err
	}

	switch kind {
	case wireArray:
		n, err := vd.readLength("array")
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := vd.skipInstance(depth + 1); err != nil {
				return err
			}
		}

	case wireBitBlob:
		n, err := vd.readLength("bit blob")
		if err != nil {
			return err
		}
		_, err = vd.cur.ReadAlignedBytes((n + 7) / 8)
		return err

	case wireBlob:
		n, err := vd.readLength("blob")
		if err != nil {
			return err
		}
		_, err = vd.cur.ReadAlignedBytes(n)
		return err

	case wireChoice:
		if _, err := vd.readVint(); err != nil {
			return err
		}
		return vd.skipInstance(depth + 1)

	case wireOptional:
		present, err := vd.cur.ReadByte()
		if err != nil || present == 0 {
			return err
		}
		return vd.skipInstance(depth + 1)

	case wireStruct:
		n, err := vd.readLength("struct")
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if _, err := vd.readVint(); err != nil {
				return err
			}
			if err := vd.skipInstance(depth + 1); err != nil {
				return err
			}
		}

	case wireU8:
		_, err := vd.cur.ReadAlignedBytes(1)
		return err

	case wireU32:
		_, err := vd.cur.ReadAlignedBytes(4)
		return err

	case wireU64:
		_, err := vd.cur.ReadAlignedBytes(8)
		return err

	case wireVint:
		_, err := vd.readVint()
		return err

	default:
		return errors.Wrapf(errkind.ErrCorrupted, "unknown wire kind %d at %s", kind, vd.cur)
	}
	return nil
}

// EncodeVint encodes v in the variable-length form read by the versioned
// decoder.
func EncodeVint(v int64) []byte {
	mag := uint64(v)
	var sign byte
	if v < 0 {
		mag, sign = uint64(-v), 1
	}

	out := []byte{byte(mag&0x3F)<<1 | sign}
	mag >>= 6
	for mag != 0 {
		out[len(out)-1] |= 0x80
		out = append(out, byte(mag&0x7F))
		mag >>= 7
	}
	return out
}
