// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mpq

import (
	"io"
	"os"
	"strings"

	"github.com/danjacques/gos2replay/support/dataio"
	"github.com/danjacques/gos2replay/support/errkind"
	"github.com/danjacques/gos2replay/support/logging"

	"github.com/pkg/errors"
)

// ListFileName is the name of the archive's optional file listing.
const ListFileName = "(listfile)"

// ErrFileNotFound is returned by ReadFile when no hash table entry matches
// the requested name.
var ErrFileNotFound = errors.New("file not found in archive")

// Archive is an opened, read-only archive.
//
// Archive is not safe for concurrent use.
type Archive struct {
	r      io.ReadSeeker
	closer io.Closer
	logger logging.L
	// size is the length of r, which bounds every region the archive names.
	size int64

	header     Header
	userData   *UserDataHeader
	hashTable  []HashTableEntry
	blockTable []BlockTableEntry
}

// Open opens the archive file at path.
//
// The returned Archive owns the file, and must be closed when finished.
func Open(path string, logger logging.L) (*Archive, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}

	a, err := NewArchive(fd, logging.Prefix(logger, path))
	if err != nil {
		_ = fd.Close()
		return nil, err
	}
	a.closer = fd
	return a, nil
}

// NewArchive reads the headers and tables of the archive in r.
//
// On success the Archive is ready to resolve and read files. r must remain
// valid for the lifetime of the Archive; NewArchive does not take ownership
// of it.
func NewArchive(r io.ReadSeeker, logger logging.L) (*Archive, error) {
	a := Archive{
		r:      r,
		logger: logging.Must(logger),
	}

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(err, "finding archive size")
	}
	a.size = size

	h, ud, err := readHeaders(r, size)
	if err != nil {
		return nil, err
	}
	a.header, a.userData = *h, ud
	a.logger.Debugf("Parsed archive %s", h)

	if err := a.loadTables(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Archive) loadTables() error {
	h := &a.header

	data, err := a.readTable(h.HashTablePosition(), h.HashTableEntries, hashTableEntrySize, hashTableKeyName)
	if err != nil {
		return errors.Wrap(err, "loading hash table")
	}
	if a.hashTable, err = parseHashTable(data, int(h.HashTableEntries)); err != nil {
		return errors.Wrap(err, "parsing hash table")
	}

	data, err = a.readTable(h.BlockTablePosition(), h.BlockTableEntries, blockTableEntrySize, blockTableKeyName)
	if err != nil {
		return errors.Wrap(err, "loading block table")
	}
	if a.blockTable, err = parseBlockTable(data, int(h.BlockTableEntries)); err != nil {
		return errors.Wrap(err, "parsing block table")
	}

	a.logger.Debugf("Loaded %d hash table and %d block table entries.", len(a.hashTable), len(a.blockTable))
	return nil
}

func (a *Archive) readTable(pos int64, entries uint32, entrySize int, keyName string) ([]byte, error) {
	size := int64(entries) * int64(entrySize)
	if err := a.checkRegion(pos, size); err != nil {
		return nil, errors.Wrapf(err, "table of %d entries", entries)
	}

	data, err := dataio.ReadSection(a.r, pos, int(size))
	if err != nil {
		return nil, err
	}
	return Decrypt(data, Hash(keyName, HashTable)), nil
}

// checkRegion returns ErrTruncated if the size bytes at pos do not lie within
// the archive.
func (a *Archive) checkRegion(pos, size int64) error {
	if pos < 0 || size < 0 || pos > a.size || size > a.size-pos {
		return errors.Wrapf(errkind.ErrTruncated, "region of %d bytes at %d exceeds archive size %d", size, pos, a.size)
	}
	return nil
}

// Close closes the Archive's underlying file, if it owns one.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	c := a.closer
	a.closer = nil
	return c.Close()
}

// Header returns the archive header.
func (a *Archive) Header() *Header { return &a.header }

// UserData returns the user data header, or nil if the archive has none.
func (a *Archive) UserData() *UserDataHeader { return a.userData }

// HashTable returns the decrypted hash table. It must not be modified.
func (a *Archive) HashTable() []HashTableEntry { return a.hashTable }

// BlockTable returns the decrypted block table. It must not be modified.
func (a *Archive) BlockTable() []BlockTableEntry { return a.blockTable }

// Resolve returns the block table entry for the file called name.
//
// The hash table is scanned in order and the first entry matching both of
// name's hashes wins. Two names that collide on both hashes are
// indistinguishable.
func (a *Archive) Resolve(name string) (BlockTableEntry, bool) {
	hashA, hashB := Hash(name, HashA), Hash(name, HashB)

	for i := range a.hashTable {
		he := &a.hashTable[i]
		if he.HashA != hashA || he.HashB != hashB {
			continue
		}

		if int64(he.BlockIndex) >= int64(len(a.blockTable)) {
			a.logger.Warnf("Hash entry #%d for %q references block %d (of %d).",
				i, name, he.BlockIndex, len(a.blockTable))
			return BlockTableEntry{}, false
		}
		return a.blockTable[he.BlockIndex], true
	}
	return BlockTableEntry{}, false
}

// ReadFile returns the contents of the file called name.
//
// If the file is not present, ErrFileNotFound is returned. A file whose block
// is not marked as existing, or that has no archived bytes, is returned as an
// empty slice.
//
// Compressed data is expanded when it is smaller than the file size, or when
// forceDecompress is true.
func (a *Archive) ReadFile(name string, forceDecompress bool) ([]byte, error) {
	be, ok := a.Resolve(name)
	if !ok {
		return nil, errors.Wrapf(ErrFileNotFound, "%q", name)
	}

	if !be.Flags.Has(FileExists) || be.ArchivedSize == 0 {
		return []byte{}, nil
	}

	switch {
	case be.Flags.Has(Encrypted):
		return nil, errors.Wrapf(errkind.ErrUnsupportedLayout, "%q is encrypted (%s)", name, &be)
	case !be.Flags.Has(SingleUnit):
		return nil, errors.Wrapf(errkind.ErrUnsupportedLayout, "%q is stored in sectors (%s)", name, &be)
	}

	pos := a.header.Offset + int64(be.Offset)
	if err := a.checkRegion(pos, int64(be.ArchivedSize)); err != nil {
		return nil, errors.Wrapf(err, "reading %q", name)
	}
	data, err := dataio.ReadSection(a.r, pos, int(be.ArchivedSize))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", name)
	}

	if be.Flags.Has(Compressed) && (forceDecompress || be.Size > be.ArchivedSize) {
		if data, err = decompress(data, int(be.Size)); err != nil {
			return nil, errors.Wrapf(err, "decompressing %q", name)
		}
	}

	a.logger.Debugf("Read %q: %s", name, &be)
	return data, nil
}

// Files returns the names listed in the archive's list file.
func (a *Archive) Files() ([]string, error) {
	data, err := a.ReadFile(ListFileName, false)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
