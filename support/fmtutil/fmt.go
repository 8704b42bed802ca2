// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package fmtutil contains formatting helpers for binary data in logs and
// error messages.
package fmtutil

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex is a byte slice that renders as a hex-dumped string.
//
// It can be used for easy lazy hex dumping in debug logs.
type Hex []byte

func (h Hex) String() string { return hex.Dump([]byte(h)) }

// HexSlice is a byte slice that renders as a sequence of hex bytes, instead
// of the default decimal bytes.
//
// Output as: "[4]byte{0x4D, 0x50, 0x51, 0x1B}"
type HexSlice []byte

func (hs HexSlice) String() string {
	var sb strings.Builder
	sb.Grow((6 * len(hs)) + 16)
	fmt.Fprintf(&sb, "[%d]byte{", len(hs))
	for i, b := range hs {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "0x%02X", b)
	}
	sb.WriteString("}")
	return sb.String()
}

// Window returns a HexSlice of up to radius bytes on either side of pos in
// buf. It is used to show the neighbourhood of a decoding failure.
func Window(buf []byte, pos, radius int) HexSlice {
	start, end := pos-radius, pos+radius
	if start < 0 {
		start = 0
	}
	if end > len(buf) {
		end = len(buf)
	}
	if start >= end {
		return nil
	}
	return HexSlice(buf[start:end])
}

// Printable renders b as a quoted string, escaping non-printable bytes. It is
// used for magic numbers and FourCC codes.
func Printable(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range b {
		if c >= 0x20 && c < 0x7F && c != '"' && c != '\\' {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, "\\x%02x", c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
