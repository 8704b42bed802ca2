// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package mpqtest builds small synthetic archives for tests.
package mpqtest

import (
	"bytes"

	"github.com/danjacques/gos2replay/mpq"

	"github.com/klauspost/compress/zlib"
	"github.com/lunixbochs/struc"
)

const (
	emptyHashEntry = 0xFFFFFFFF
	entrySize      = 16
)

// File is a file to place in a built archive.
type File struct {
	// Name is the file's name, used to compute its hashes.
	Name string
	// Data is the file's expanded contents.
	Data []byte

	// Zlib, if true, stores Data zlib-compressed behind a method byte and sets
	// the Compressed flag.
	Zlib bool

	// Payload, if not nil, is written verbatim instead of a payload derived
	// from Data. Size is still len(Data).
	Payload []byte

	// Flags, if not zero, replaces the default flags
	// (FileExists|SingleUnit, plus Compressed if Zlib is set).
	Flags mpq.BlockFlags
}

// Builder assembles an archive in memory.
type Builder struct {
	// UserData, if not nil, wraps the archive in a user data header carrying
	// this content.
	UserData []byte

	// FormatVersion is the archive format version. If 1 or greater, the
	// header extension is written.
	FormatVersion uint16

	// HashTableEntries is the number of hash table slots. If zero, a power of
	// two with room for every file is chosen.
	HashTableEntries uint32

	// Files are the files to add.
	Files []File
}

// Build returns the archive bytes.
func (b *Builder) Build() []byte {
	var prefix bytes.Buffer
	if b.UserData != nil {
		ud := mpq.UserDataHeader{
			Magic:              mpq.UserDataMagic,
			UserDataHeaderSize: uint32(len(b.UserData)),
			Content:            b.UserData,
		}
		ud.MPQHeaderOffset = uint32(16 + len(b.UserData))
		ud.UserDataSize = ud.MPQHeaderOffset
		mustPack(&prefix, &ud)
	}

	headerSize := 32
	if b.FormatVersion >= 1 {
		headerSize = 44
	}

	// File data immediately follows the header; offsets are header-relative.
	var body bytes.Buffer
	blocks := make([]mpq.BlockTableEntry, len(b.Files))
	for i, f := range b.Files {
		payload := f.payload()
		flags := f.Flags
		if flags == 0 {
			flags = mpq.FileExists | mpq.SingleUnit
			if f.Zlib {
				flags |= mpq.Compressed
			}
		}

		blocks[i] = mpq.BlockTableEntry{
			Offset:       uint32(headerSize + body.Len()),
			ArchivedSize: uint32(len(payload)),
			Size:         uint32(len(f.Data)),
			Flags:        flags,
		}
		body.Write(payload)
	}

	hashEntries := b.HashTableEntries
	if hashEntries == 0 {
		hashEntries = 4
		for hashEntries < uint32(len(b.Files))*2 {
			hashEntries <<= 1
		}
	}
	hashes := make([]mpq.HashTableEntry, hashEntries)
	for i := range hashes {
		hashes[i] = mpq.HashTableEntry{
			HashA:      emptyHashEntry,
			HashB:      emptyHashEntry,
			Locale:     0xFFFF,
			Platform:   0xFFFF,
			BlockIndex: emptyHashEntry,
		}
	}
	for i, f := range b.Files {
		slot := mpq.Hash(f.Name, mpq.HashTableOffset) % hashEntries
		for hashes[slot].BlockIndex != emptyHashEntry {
			slot = (slot + 1) % hashEntries
		}
		hashes[slot] = mpq.HashTableEntry{
			HashA:      mpq.Hash(f.Name, mpq.HashA),
			HashB:      mpq.Hash(f.Name, mpq.HashB),
			BlockIndex: uint32(i),
		}
	}

	var hashTable, blockTable bytes.Buffer
	for i := range hashes {
		mustPack(&hashTable, &hashes[i])
	}
	for i := range blocks {
		mustPack(&blockTable, &blocks[i])
	}

	hashTableOffset := uint32(headerSize + body.Len())
	blockTableOffset := hashTableOffset + uint32(hashTable.Len())

	h := mpq.HeaderFields{
		Magic:             mpq.ArchiveMagic,
		HeaderSize:        uint32(headerSize),
		FormatVersion:     b.FormatVersion,
		SectorSizeShift:   3,
		HashTableOffset:   hashTableOffset,
		BlockTableOffset:  blockTableOffset,
		HashTableEntries:  hashEntries,
		BlockTableEntries: uint32(len(blocks)),
	}
	h.ArchiveSize = blockTableOffset + uint32(blockTable.Len())

	var out bytes.Buffer
	out.Write(prefix.Bytes())
	mustPack(&out, &h)
	if b.FormatVersion >= 1 {
		mustPack(&out, &mpq.HeaderExtension{})
	}
	out.Write(body.Bytes())
	out.Write(mpq.Encrypt(hashTable.Bytes(), mpq.Hash("(hash table)", mpq.HashTable)))
	out.Write(mpq.Encrypt(blockTable.Bytes(), mpq.Hash("(block table)", mpq.HashTable)))
	return out.Bytes()
}

func (f *File) payload() []byte {
	switch {
	case f.Payload != nil:
		return f.Payload
	case f.Zlib:
		return append([]byte{byte(mpq.CompressionZlib)}, Zlib(f.Data)...)
	default:
		return f.Data
	}
}

// Zlib returns data deflated into a zlib stream.
func Zlib(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func mustPack(buf *bytes.Buffer, v interface{}) {
	if err := struc.Pack(buf, v); err != nil {
		panic(err)
	}
}
