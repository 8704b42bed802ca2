// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package mpq reads named sub-files out of MPQ archives, the block-structured
// container format that game replays are stored in.
//
// An archive starts with a header, optionally preceded by a "user data"
// header (the form replays use, which carries the replay header in its
// opaque content). The header locates two encrypted tables:
//
//	- The hash table maps a filename, via two independent keyed hashes, to an
//	  index into the block table.
//	- The block table records where each file's bytes live, how large they are
//	  archived and expanded, and a set of flags describing their layout.
//
// Only single-unit, unencrypted files are read. Those may be stored raw or
// compressed with zlib or bzip2. Multi-sector and encrypted files are
// reported as errkind.ErrUnsupportedLayout rather than returned partially.
//
// An Archive is read-only and is not safe for concurrent use; open one
// Archive per goroutine.
package mpq
