// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"unicode/utf8"

	"github.com/danjacques/gos2replay/support/bitstream"
	"github.com/danjacques/gos2replay/support/errkind"

	"github.com/pkg/errors"
)

// MaxDepth is the deepest nesting of types a Decoder will follow.
const MaxDepth = 256

// maxPrealloc caps the capacity reserved for an array ahead of decoding its
// elements, since the length prefix is untrusted.
const maxPrealloc = 1024

// maxZeroWidthItems caps the length of an array whose elements occupy no bits,
// since such an array is not bounded by the size of the buffer.
const maxZeroWidthItems = 1 << 20

// primitives are the wire-level reads that differ between decoding
// strategies. The structural walk over a Schema is shared by Decoder.
type primitives interface {
	readInt(b Bounds) (int64, error)
	readBlob(b Bounds) ([]byte, error)
	readBool() (bool, error)
	readArrayLength(b Bounds) (int64, error)
	readBitArray(b Bounds) (Value, error)
	readOptional() (bool, error)
	readFourCC() ([]byte, error)

	// readChoice reads a choice tag and returns the selected option. It
	// returns nil, with no error, if the option could not be resolved but the
	// value was consumed.
	readChoice(ti *TypeInfo, depth int) (*ChoiceOption, error)

	// readStruct visits the fields of a struct as they appear in the stream.
	// Fields the stream does not carry are not visited.
	readStruct(ti *TypeInfo, depth int, visit func(f *Field) error) error
}

// Decoder decodes values described by a Schema from a buffer.
//
// A Decoder is a stateful, sequential cursor over its buffer. It is not safe
// for concurrent use.
type Decoder struct {
	schema Schema
	cur    *bitstream.Cursor
	p      primitives

	// tagged is true if every value carries at least a kind byte.
	tagged bool
}

// NewBitPackedDecoder returns a Decoder for the bit-packed encoding, in which
// the shape of a value is determined entirely by the schema.
func NewBitPackedDecoder(buf []byte, schema Schema) *Decoder {
	d := Decoder{
		schema: schema,
		cur:    bitstream.New(buf),
	}
	d.p = &bitPacked{cur: d.cur}
	return &d
}

// NewVersionedDecoder returns a Decoder for the versioned encoding, in which
// every value carries a kind byte and struct fields are tagged.
func NewVersionedDecoder(buf []byte, schema Schema) *Decoder {
	d := Decoder{
		schema: schema,
		cur:    bitstream.New(buf),
	}
	d.p = &versioned{cur: d.cur}
	d.tagged = true
	return &d
}

// Instance decodes a value of type id.
func (d *Decoder) Instance(id TypeID) (Value, error) { return d.instance(id, true, 0) }

// InstanceFiltered decodes a value of type id. If allow is false, struct and
// choice values are consumed but not materialized, and are returned as Empty.
func (d *Decoder) InstanceFiltered(id TypeID, allow bool) (Value, error) {
	return d.instance(id, allow, 0)
}

// ByteAlign discards any pending bits of a partially consumed byte.
func (d *Decoder) ByteAlign() { d.cur.ByteAlign() }

// Done returns true if every byte of the buffer has been consumed.
func (d *Decoder) Done() bool { return d.cur.Done() }

// UsedBits returns the number of bits consumed so far.
func (d *Decoder) UsedBits() int { return d.cur.UsedBits() }

// zeroWidth returns true if a value of type id occupies no bits.
func (d *Decoder) zeroWidth(id TypeID, depth int) bool {
	if d.tagged || depth > MaxDepth {
		return false
	}
	ti, err := d.schema.Get(id)
	if err != nil {
		return false
	}

	switch ti.Kind {
	case KindNull:
		return true
	case KindInt:
		return ti.Bounds.Bits == 0
	case KindStruct:
		for i := range ti.Fields {
			if !d.zeroWidth(ti.Fields[i].Type, depth+1) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (d *Decoder) instance(id TypeID, allow bool, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, errors.Wrapf(errkind.ErrCorrupted, "type %d nested deeper than %d", id, MaxDepth)
	}
	ti, err := d.schema.Get(id)
	if err != nil {
		return Value{}, err
	}

	v, err := d.decode(ti, allow, depth)
	if err != nil {
		return Value{}, errors.Wrapf(err, "decoding type %d (%s)", id, ti.Kind)
	}
	return v, nil
}

func (d *Decoder) decode(ti *TypeInfo, allow bool, depth int) (Value, error) {
	switch ti.Kind {
	case KindInt:
		v, err := d.p.readInt(ti.Bounds)
		return IntValue(v), err

	case KindBlob:
		b, err := d.p.readBlob(ti.Bounds)
		return BlobValue(blobString(b)), err

	case KindBool:
		v, err := d.p.readBool()
		return BoolValue(v), err

	case KindArray:
		n, err := d.p.readArrayLength(ti.Bounds)
		if err != nil {
			return Value{}, err
		}
		limit := int64(d.cur.Remaining())*8 + maxPrealloc
		if d.zeroWidth(ti.Elem, depth+1) {
			limit = maxZeroWidthItems
		}
		if n < 0 || n > limit {
			return Value{}, errors.Wrapf(errkind.ErrCorrupted, "invalid array length %d at %s", n, d.cur)
		}

		capacity := n
		if capacity > maxPrealloc {
			capacity = maxPrealloc
		}
		items := make([]Value, 0, capacity)
		for i := int64(0); i < n; i++ {
			item, err := d.instance(ti.Elem, allow, depth+1)
			if err != nil {
				return Value{}, errors.Wrapf(err, "element #%d", i)
			}
			items = append(items, item)
		}
		return ArrayValue(items), nil

	case KindBitArray:
		return d.p.readBitArray(ti.Bounds)

	case KindOptional:
		present, err := d.p.readOptional()
		if err != nil || !present {
			return NullValue(), err
		}
		return d.instance(ti.Elem, allow, depth+1)

	case KindFourCC:
		b, err := d.p.readFourCC()
		return BlobValue(string(b)), err

	case KindChoice:
		opt, err := d.p.readChoice(ti, depth)
		if err != nil || opt == nil {
			return Value{}, err
		}
		v, err := d.instance(opt.Type, allow, depth+1)
		if err != nil || !allow {
			return Value{}, err
		}
		return StructValue(Entry{Name: opt.Name, Value: v}), nil

	case KindStruct:
		var fields []Entry
		if allow {
			fields = make([]Entry, 0, len(ti.Fields))
		}
		err := d.p.readStruct(ti, depth, func(f *Field) error {
			v, err := d.instance(f.Type, allow, depth+1)
			if err != nil {
				return errors.Wrapf(err, "field %q", f.Name)
			}
			if !allow {
				return nil
			}

			if f.Name == parentFieldName && v.Kind == ValueStruct {
				fields = append(fields, v.Fields...)
			} else {
				fields = append(fields, Entry{Name: f.Name, Value: v})
			}
			return nil
		})
		if err != nil || !allow {
			return Value{}, err
		}
		return StructValue(fields...), nil

	case KindNull:
		return NullValue(), nil

	default:
		return Value{}, errors.Wrapf(errkind.ErrCorrupted, "unknown type kind %d", ti.Kind)
	}
}

// blobString interprets b as UTF-8. Invalid UTF-8 yields an empty string.
func blobString(b []byte) string {
	if !utf8.Valid(b) {
		return ""
	}
	return string(b)
}
