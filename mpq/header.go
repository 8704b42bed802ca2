// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mpq

import (
	"bytes"
	"fmt"
	"io"

	"github.com/danjacques/gos2replay/support/dataio"
	"github.com/danjacques/gos2replay/support/errkind"
	"github.com/danjacques/gos2replay/support/fmtutil"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

var (
	// ArchiveMagic begins an archive header.
	ArchiveMagic = [4]byte{'M', 'P', 'Q', 0x1A}
	// UserDataMagic begins a user data header, which wraps an archive header.
	UserDataMagic = [4]byte{'M', 'P', 'Q', 0x1B}
)

// HeaderFields is the fixed part of the archive header.
//
// /**
//  * char     magic[4];           // "MPQ\x1a"
//  * uint32_t header_size;
//  * uint32_t archive_size;
//  * uint16_t format_version;
//  * uint16_t sector_size_shift;
//  * uint32_t hash_table_offset;  // relative to the header
//  * uint32_t block_table_offset; // relative to the header
//  * uint32_t hash_table_entries;
//  * uint32_t block_table_entries;
//  */
type HeaderFields struct {
	Magic             [4]byte
	HeaderSize        uint32 `struc:",little"`
	ArchiveSize       uint32 `struc:",little"`
	FormatVersion     uint16 `struc:",little"`
	SectorSizeShift   uint16 `struc:",little"`
	HashTableOffset   uint32 `struc:",little"`
	BlockTableOffset  uint32 `struc:",little"`
	HashTableEntries  uint32 `struc:",little"`
	BlockTableEntries uint32 `struc:",little"`
}

// HeaderExtension follows HeaderFields when the format version is 1 or
// greater.
type HeaderExtension struct {
	ExtendedBlockTableOffset int64 `struc:",little"`
	HashTableOffsetHigh      int16 `struc:",little"`
	BlockTableOffsetHigh     int16 `struc:",little"`
}

// Header is a parsed archive header.
type Header struct {
	HeaderFields

	// Extension is the header extension. It is nil for format version 0.
	Extension *HeaderExtension

	// Offset is the position of the header within the file. All table and
	// file offsets are relative to it.
	Offset int64
}

// SectorSize returns the size, in bytes, of a file sector.
func (h *Header) SectorSize() int { return 512 << h.SectorSizeShift }

// HashTablePosition returns the absolute file position of the hash table.
func (h *Header) HashTablePosition() int64 {
	pos := int64(h.HashTableOffset)
	if h.Extension != nil {
		pos |= int64(uint16(h.Extension.HashTableOffsetHigh)) << 32
	}
	return h.Offset + pos
}

// BlockTablePosition returns the absolute file position of the block table.
func (h *Header) BlockTablePosition() int64 {
	pos := int64(h.BlockTableOffset)
	if h.Extension != nil {
		pos |= int64(uint16(h.Extension.BlockTableOffsetHigh)) << 32
	}
	return h.Offset + pos
}

func (h *Header) String() string {
	return fmt.Sprintf("Header{offset=%d, header_size=%d, archive_size=%d, format_version=%d, "+
		"sector_size=%d, hash_table=%d@%d, block_table=%d@%d}",
		h.Offset, h.HeaderSize, h.ArchiveSize, h.FormatVersion,
		h.SectorSize(), h.HashTableEntries, h.HashTablePosition(),
		h.BlockTableEntries, h.BlockTablePosition())
}

// UserDataHeader precedes the archive header in user-data-wrapped archives.
//
// /**
//  * char     magic[4];             // "MPQ\x1b"
//  * uint32_t user_data_size;
//  * uint32_t mpq_header_offset;
//  * uint32_t user_data_header_size;
//  * uint8_t  content[user_data_header_size];
//  */
type UserDataHeader struct {
	Magic              [4]byte
	UserDataSize       uint32 `struc:",little"`
	MPQHeaderOffset    uint32 `struc:",little"`
	UserDataHeaderSize uint32 `struc:",little"`
	Content            []byte `struc:"sizefrom=UserDataHeaderSize"`
}

// userDataFixedSize is the size of a UserDataHeader without its Content.
const userDataFixedSize = 16

// userDataFields is the fixed part of a UserDataHeader. It is unpacked ahead
// of Content so that the content size can be checked before it is allocated.
type userDataFields struct {
	Magic              [4]byte
	UserDataSize       uint32 `struc:",little"`
	MPQHeaderOffset    uint32 `struc:",little"`
	UserDataHeaderSize uint32 `struc:",little"`
}

// readHeaders reads the (optional) user data header and the archive header
// from the start of r. size is the length of r.
func readHeaders(r io.ReadSeeker, size int64) (*Header, *UserDataHeader, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, nil, errors.Wrap(err, "seeking to start")
	}
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, nil, errkind.FromShortRead(err, "reading magic")
	}

	var h Header
	var ud *UserDataHeader
	switch magic {
	case ArchiveMagic:
		h.Offset = 0

	case UserDataMagic:
		var f userDataFields
		if err := unpackAt(r, 0, &f); err != nil {
			return nil, nil, errors.Wrap(err, "reading user data header")
		}
		if int64(f.UserDataHeaderSize) > size-userDataFixedSize {
			return nil, nil, errors.Wrapf(errkind.ErrTruncated, "user data content of %d bytes exceeds archive size %d",
				f.UserDataHeaderSize, size)
		}

		content, err := dataio.ReadSection(r, userDataFixedSize, int(f.UserDataHeaderSize))
		if err != nil {
			return nil, nil, errors.Wrap(err, "reading user data content")
		}
		ud = &UserDataHeader{
			Magic:              f.Magic,
			UserDataSize:       f.UserDataSize,
			MPQHeaderOffset:    f.MPQHeaderOffset,
			UserDataHeaderSize: f.UserDataHeaderSize,
			Content:            content,
		}
		h.Offset = int64(ud.MPQHeaderOffset)

	default:
		return nil, nil, errors.Wrapf(errkind.ErrCorrupted, "unknown archive magic %s", fmtutil.Printable(magic[:]))
	}

	if h.Offset >= size {
		return nil, nil, errors.Wrapf(errkind.ErrTruncated, "archive header offset %d is past archive size %d", h.Offset, size)
	}
	if err := unpackAt(r, h.Offset, &h.HeaderFields); err != nil {
		return nil, nil, errors.Wrapf(err, "reading archive header at %d", h.Offset)
	}
	if h.Magic != ArchiveMagic {
		return nil, nil, errors.Wrapf(errkind.ErrCorrupted, "archive header at %d has magic %s",
			h.Offset, fmtutil.Printable(h.Magic[:]))
	}

	if h.FormatVersion >= 1 {
		h.Extension = &HeaderExtension{}
		if err := struc.Unpack(r, h.Extension); err != nil {
			return nil, nil, errkind.FromShortRead(err, "reading header extension")
		}
	}

	return &h, ud, nil
}

func unpackAt(r io.ReadSeeker, offset int64, v interface{}) error {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seeking to %d", offset)
	}
	return errkind.FromShortRead(struc.Unpack(r, v), "unpacking %T", v)
}

// unpackRecords decodes consecutive fixed-size records from data. newRecord
// is called once per record and returns the value to unpack into.
func unpackRecords(data []byte, count int, newRecord func(i int) interface{}) error {
	r := bytes.NewReader(data)
	for i := 0; i < count; i++ {
		if err := struc.Unpack(r, newRecord(i)); err != nil {
			return errkind.FromShortRead(err, "unpacking record #%d", i)
		}
	}
	return nil
}
