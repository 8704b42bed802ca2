// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mpq

import (
	"fmt"
	"strings"
)

const (
	// hashTableEntrySize and blockTableEntrySize are the on-disk record sizes.
	hashTableEntrySize  = 16
	blockTableEntrySize = 16

	hashTableKeyName  = "(hash table)"
	blockTableKeyName = "(block table)"
)

// BlockFlags is the flag bitmask of a BlockTableEntry.
type BlockFlags uint32

const (
	// Implode marks a file compressed with PKWARE implode.
	Implode BlockFlags = 0x00000100
	// Compressed marks a file compressed with a method-tagged compressor.
	Compressed BlockFlags = 0x00000200
	// Encrypted marks an encrypted file.
	Encrypted BlockFlags = 0x00010000
	// FixKey marks an encrypted file whose key is adjusted by its offset.
	FixKey BlockFlags = 0x00020000
	// SingleUnit marks a file stored as one unit rather than in sectors.
	SingleUnit BlockFlags = 0x01000000
	// DeleteMarker marks a deleted file.
	DeleteMarker BlockFlags = 0x02000000
	// SectorCRC marks a file whose sectors are followed by checksums.
	SectorCRC BlockFlags = 0x04000000
	// FileExists marks a block that holds a file.
	FileExists BlockFlags = 0x80000000
)

var blockFlagNames = []struct {
	flag BlockFlags
	name string
}{
	{Implode, "IMPLODE"},
	{Compressed, "COMPRESSED"},
	{Encrypted, "ENCRYPTED"},
	{FixKey, "FIX_KEY"},
	{SingleUnit, "SINGLE_UNIT"},
	{DeleteMarker, "DELETE_MARKER"},
	{SectorCRC, "SECTOR_CRC"},
	{FileExists, "EXISTS"},
}

// Has returns true if all bits of v are set in f.
func (f BlockFlags) Has(v BlockFlags) bool { return f&v == v }

func (f BlockFlags) String() string {
	var parts []string
	rest := f
	for _, bf := range blockFlagNames {
		if f.Has(bf.flag) {
			parts = append(parts, bf.name)
			rest &^= bf.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%08X", uint32(rest)))
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "|")
}

// HashTableEntry is a single hash table record.
type HashTableEntry struct {
	HashA      uint32 `struc:",little"`
	HashB      uint32 `struc:",little"`
	Locale     uint16 `struc:",little"`
	Platform   uint16 `struc:",little"`
	BlockIndex uint32 `struc:",little"`
}

// BlockTableEntry is a single block table record.
type BlockTableEntry struct {
	// Offset is the position of the file's data, relative to the header.
	Offset uint32 `struc:",little"`
	// ArchivedSize is the number of bytes the file occupies in the archive.
	ArchivedSize uint32 `struc:",little"`
	// Size is the file's expanded size.
	Size uint32 `struc:",little"`
	// Flags describes the file's layout.
	Flags BlockFlags `struc:",little"`
}

func (e *BlockTableEntry) String() string {
	return fmt.Sprintf("Block{offset=%d, archived_size=%d, size=%d, flags=%s}",
		e.Offset, e.ArchivedSize, e.Size, e.Flags)
}

func parseHashTable(data []byte, count int) ([]HashTableEntry, error) {
	entries := make([]HashTableEntry, count)
	err := unpackRecords(data, count, func(i int) interface{} { return &entries[i] })
	return entries, err
}

func parseBlockTable(data []byte, count int) ([]BlockTableEntry, error) {
	entries := make([]BlockTableEntry, count)
	err := unpackRecords(data, count, func(i int) interface{} { return &entries[i] })
	return entries, err
}
