// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"

	"github.com/danjacques/gos2replay/support/bitstream"

	"github.com/pkg/errors"
)

// Attribute is one game attribute record.
type Attribute struct {
	Namespace uint32
	ID        uint32
	Scope     uint8
	// Value is the attribute's four-byte value, reversed into reading order
	// with NUL padding removed.
	Value string
}

// Attributes is the content of a replay.attributes.events file.
type Attributes struct {
	Source       uint8
	MapNamespace uint32
	// Count is the record count declared by the file.
	Count uint32

	// Scopes groups attributes by scope, then by attribute ID, in file order.
	Scopes map[uint8]map[uint32][]Attribute
}

// Get returns the attributes with id in scope.
func (a *Attributes) Get(scope uint8, id uint32) []Attribute { return a.Scopes[scope][id] }

// DecodeAttributesEvents decodes a replay.attributes.events file.
//
// The file is a fixed little-endian layout and does not depend on a
// protocol's schema. An empty buffer decodes to no attributes.
func DecodeAttributesEvents(buf []byte) (*Attributes, error) {
	a := Attributes{
		Scopes: make(map[uint8]map[uint32][]Attribute),
	}
	cur := bitstream.NewLittleEndian(buf)
	if cur.Done() {
		return &a, nil
	}

	var r attributeReader
	r.cur = cur
	a.Source = uint8(r.read(8))
	a.MapNamespace = uint32(r.read(32))
	a.Count = uint32(r.read(32))

	for r.err == nil && !cur.Done() {
		attr := Attribute{
			Namespace: uint32(r.read(32)),
			ID:        uint32(r.read(32)),
			Scope:     uint8(r.read(8)),
		}
		attr.Value = r.value()
		if r.err != nil {
			break
		}

		byID := a.Scopes[attr.Scope]
		if byID == nil {
			byID = make(map[uint32][]Attribute)
			a.Scopes[attr.Scope] = byID
		}
		byID[attr.ID] = append(byID[attr.ID], attr)
	}
	if r.err != nil {
		return nil, errors.Wrap(r.err, "decoding attributes")
	}
	return &a, nil
}

// attributeReader reads from a Cursor, retaining the first error.
type attributeReader struct {
	cur *bitstream.Cursor
	err error
}

func (r *attributeReader) read(bits uint) uint64 {
	if r.err != nil {
		return 0
	}
	var v uint64
	v, r.err = r.cur.ReadBits(bits)
	return v
}

func (r *attributeReader) value() string {
	if r.err != nil {
		return ""
	}
	var raw []byte
	if raw, r.err = r.cur.ReadAlignedBytes(4); r.err != nil {
		return ""
	}

	v := make([]byte, len(raw))
	for i, b := range raw {
		v[len(raw)-1-i] = b
	}
	return string(bytes.Trim(v, "\x00"))
}
