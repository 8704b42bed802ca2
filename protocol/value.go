// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind identifies which member of a Value is populated.
type ValueKind int

const (
	// ValueEmpty is a value that was not materialized, either because its
	// event was filtered out or because its choice tag was not recognized.
	ValueEmpty ValueKind = iota
	// ValueName is a type name, such as an event's name.
	ValueName
	// ValueInt is an integer (Int).
	ValueInt
	// ValueBlob is a string (Str), decoded from a blob or a FourCC.
	ValueBlob
	// ValueArray is a list of values (Items).
	ValueArray
	// ValuePair is a bit array summary: PairLen bits whose bytes sum to
	// PairSum.
	ValuePair
	// ValueBool is a boolean (Bool).
	ValueBool
	// ValueStruct is an ordered list of named values (Fields).
	ValueStruct
	// ValueNull is an absent optional or a null type.
	ValueNull
)

func (k ValueKind) String() string {
	switch k {
	case ValueEmpty:
		return "Empty"
	case ValueName:
		return "Name"
	case ValueInt:
		return "Int"
	case ValueBlob:
		return "Blob"
	case ValueArray:
		return "Array"
	case ValuePair:
		return "Pair"
	case ValueBool:
		return "Bool"
	case ValueStruct:
		return "Struct"
	case ValueNull:
		return "Null"
	default:
		return "Unknown"
	}
}

// Value is a decoded value. Only the members selected by Kind are set.
//
// The zero Value is Empty.
type Value struct {
	Kind ValueKind

	Str     string
	Int     int64
	Items   []Value
	PairLen int64
	PairSum int16
	Bool    bool
	Fields  []Entry
}

// Entry is a named member of a struct Value.
type Entry struct {
	Name  string
	Value Value
}

// NameValue returns a Name value.
func NameValue(s string) Value { return Value{Kind: ValueName, Str: s} }

// IntValue returns an Int value.
func IntValue(v int64) Value { return Value{Kind: ValueInt, Int: v} }

// BlobValue returns a Blob value.
func BlobValue(s string) Value { return Value{Kind: ValueBlob, Str: s} }

// ArrayValue returns an Array value.
func ArrayValue(items []Value) Value { return Value{Kind: ValueArray, Items: items} }

// PairValue returns a Pair value.
func PairValue(length int64, sum int16) Value {
	return Value{Kind: ValuePair, PairLen: length, PairSum: sum}
}

// BoolValue returns a Bool value.
func BoolValue(v bool) Value { return Value{Kind: ValueBool, Bool: v} }

// StructValue returns a Struct value.
func StructValue(fields ...Entry) Value { return Value{Kind: ValueStruct, Fields: fields} }

// NullValue returns a Null value.
func NullValue() Value { return Value{Kind: ValueNull} }

// Field returns the first field of a Struct value called name.
func (v Value) Field(name string) (Value, bool) {
	if v.Kind != ValueStruct {
		return Value{}, false
	}
	for _, e := range v.Fields {
		if e.Name == name {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Path follows a chain of struct field names, returning the value at its
// end.
func (v Value) Path(names ...string) (Value, bool) {
	for _, name := range names {
		var ok bool
		if v, ok = v.Field(name); !ok {
			return Value{}, false
		}
	}
	return v, true
}

// AsInt returns the integer held by an Int value.
func (v Value) AsInt() (int64, bool) { return v.Int, v.Kind == ValueInt }

// AsString returns the string held by a Blob or Name value.
func (v Value) AsString() (string, bool) {
	return v.Str, v.Kind == ValueBlob || v.Kind == ValueName
}

func (v Value) String() string {
	var sb strings.Builder
	v.render(&sb)
	return sb.String()
}

func (v *Value) render(sb *strings.Builder) {
	switch v.Kind {
	case ValueEmpty:
		sb.WriteString("<empty>")
	case ValueName:
		sb.WriteString(v.Str)
	case ValueInt:
		sb.WriteString(strconv.FormatInt(v.Int, 10))
	case ValueBlob:
		sb.WriteString(strconv.Quote(v.Str))
	case ValueArray:
		sb.WriteByte('[')
		for i := range v.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			v.Items[i].render(sb)
		}
		sb.WriteByte(']')
	case ValuePair:
		fmt.Fprintf(sb, "(%d, %d)", v.PairLen, v.PairSum)
	case ValueBool:
		sb.WriteString(strconv.FormatBool(v.Bool))
	case ValueStruct:
		sb.WriteByte('{')
		for i := range v.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(v.Fields[i].Name)
			sb.WriteString(": ")
			v.Fields[i].Value.render(sb)
		}
		sb.WriteByte('}')
	case ValueNull:
		sb.WriteString("null")
	default:
		fmt.Fprintf(sb, "<kind %d>", v.Kind)
	}
}
