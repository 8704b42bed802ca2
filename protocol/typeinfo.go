// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"github.com/danjacques/gos2replay/support/errkind"

	"github.com/pkg/errors"
)

// TypeID identifies a TypeInfo within a Schema.
type TypeID int

// NoType is the TypeID of a type that a protocol does not define.
const NoType TypeID = -1

// Kind is the shape of a TypeInfo.
type Kind int

const (
	// KindInt is an integer, read within Bounds.
	KindInt Kind = iota
	// KindBlob is a length-prefixed byte string.
	KindBlob
	// KindBool is a single-bit (or single-byte) boolean.
	KindBool
	// KindArray is a length-prefixed sequence of Elem.
	KindArray
	// KindBitArray is a length-prefixed run of raw bits.
	KindBitArray
	// KindOptional is a presence flag followed by an optional Elem.
	KindOptional
	// KindFourCC is four raw bytes.
	KindFourCC
	// KindChoice is a tag selecting one of Options.
	KindChoice
	// KindStruct is a sequence of Fields.
	KindStruct
	// KindNull occupies no bits.
	KindNull
)

var kindNames = [...]string{
	KindInt:      "int",
	KindBlob:     "blob",
	KindBool:     "bool",
	KindArray:    "array",
	KindBitArray: "bitarray",
	KindOptional: "optional",
	KindFourCC:   "fourcc",
	KindChoice:   "choice",
	KindStruct:   "struct",
	KindNull:     "null",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind returns the Kind whose String is name.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, errors.Errorf("unknown type kind %q", name)
}

// Bounds is the range of an integer field: Offset is added to a Bits-wide
// unsigned value read from the stream.
type Bounds struct {
	Offset int64
	Bits   uint
}

// ChoiceOption is one alternative of a KindChoice type.
type ChoiceOption struct {
	Tag  int64
	Name string
	Type TypeID
}

// Field is one member of a KindStruct type.
type Field struct {
	Name string
	Type TypeID
	Tag  int64
}

// parentFieldName is the name of a struct field whose members are merged
// into the enclosing struct.
const parentFieldName = "__parent"

// TypeInfo describes the shape of one decodable value.
//
// Which fields are meaningful depends on Kind:
//	- Bounds: Int, Blob, Array, BitArray, Choice.
//	- Elem: Array, Optional.
//	- Options: Choice.
//	- Fields: Struct.
type TypeInfo struct {
	Kind    Kind
	Bounds  Bounds
	Elem    TypeID
	Options []ChoiceOption
	Fields  []Field
}

func (ti *TypeInfo) option(tag int64) *ChoiceOption {
	for i := range ti.Options {
		if ti.Options[i].Tag == tag {
			return &ti.Options[i]
		}
	}
	return nil
}

func (ti *TypeInfo) fieldByTag(tag int64) *Field {
	for i := range ti.Fields {
		if ti.Fields[i].Tag == tag {
			return &ti.Fields[i]
		}
	}
	return nil
}

// Schema is a table of TypeInfo, indexed by TypeID. Types refer to each
// other by TypeID, so a Schema must not be modified once it is in use.
type Schema []TypeInfo

// Get returns the TypeInfo for id.
func (s Schema) Get(id TypeID) (*TypeInfo, error) {
	if !s.Has(id) {
		return nil, errors.Wrapf(errkind.ErrCorrupted, "unknown type ID %d (schema has %d types)", id, len(s))
	}
	return &s[id], nil
}

// Has returns true if id is a valid index into s.
func (s Schema) Has(id TypeID) bool { return id >= 0 && int(id) < len(s) }

// Validate checks that every reference in s resolves to a type in s.
func (s Schema) Validate() error {
	check := func(id TypeID, what string, owner int) error {
		if !s.Has(id) {
			return errors.Wrapf(errkind.ErrCorrupted, "type %d: %s references unknown type %d", owner, what, id)
		}
		return nil
	}

	for i := range s {
		ti := &s[i]
		switch ti.Kind {
		case KindInt, KindBlob, KindBool, KindBitArray, KindFourCC, KindNull:

		case KindArray, KindOptional:
			if err := check(ti.Elem, "element", i); err != nil {
				return err
			}

		case KindChoice:
			for _, o := range ti.Options {
				if err := check(o.Type, "option "+o.Name, i); err != nil {
					return err
				}
			}

		case KindStruct:
			for _, f := range ti.Fields {
				if err := check(f.Type, "field "+f.Name, i); err != nil {
					return err
				}
			}

		default:
			return errors.Wrapf(errkind.ErrCorrupted, "type %d has unknown kind %d", i, ti.Kind)
		}

		if ti.Bounds.Bits > maxIntBits {
			return errors.Wrapf(errkind.ErrCorrupted, "type %d is %d bits wide", i, ti.Bounds.Bits)
		}
	}
	return nil
}
