// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mpq

import (
	"encoding/binary"
	"sync"
)

// HashType selects which fifth of the crypt table a hash is computed with.
type HashType uint32

const (
	// HashTableOffset is the hash used to pick a starting hash table slot.
	HashTableOffset HashType = 0
	// HashA is the first of the two hashes stored in a hash table entry.
	HashA HashType = 1
	// HashB is the second of the two hashes stored in a hash table entry.
	HashB HashType = 2
	// HashTable is the hash used to derive table decryption keys.
	HashTable HashType = 3
)

const (
	cryptTableSize = 0x500
	cryptTableSeed = 0x00100001

	hashSeed1 = 0x7FED7FED
	hashSeed2 = 0xEEEEEEEE
)

var (
	cryptTableOnce sync.Once
	cryptTable     [cryptTableSize]uint32
)

// table returns the process-wide crypt table, building it on first use.
func table() *[cryptTableSize]uint32 {
	cryptTableOnce.Do(func() {
		seed := uint32(cryptTableSeed)
		next := func() uint32 {
			seed = (seed*125 + 3) % 0x2AAAAB
			return seed
		}

		for i := 0; i < 0x100; i++ {
			for j := 0; j < 5; j++ {
				hi := (next() & 0xFFFF) << 0x10
				lo := next() & 0xFFFF
				cryptTable[i+(j*0x100)] = hi | lo
			}
		}
	})
	return &cryptTable
}

// Hash computes the keyed hash of s for the specified HashType.
//
// The input is upper-cased (ASCII only) first, so hashing is
// case-insensitive.
func Hash(s string, ht HashType) uint32 {
	t := table()
	seed1, seed2 := uint32(hashSeed1), uint32(hashSeed2)

	for i := 0; i < len(s); i++ {
		ch := uint32(upper(s[i]))
		value := t[(uint32(ht)<<8)+ch]
		seed1 = value ^ (seed1 + seed2)
		seed2 = ch + seed1 + seed2 + (seed2 << 5) + 3
	}
	return seed1
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// Decrypt decrypts data with key, returning a new slice.
//
// data is processed as little-endian 32-bit words. A trailing partial word is
// copied unchanged.
func Decrypt(data []byte, key uint32) []byte {
	return cipher(data, key, false)
}

// Encrypt is the inverse of Decrypt. It is used to build test fixtures.
func Encrypt(data []byte, key uint32) []byte {
	return cipher(data, key, true)
}

func cipher(data []byte, key uint32, encrypt bool) []byte {
	t := table()
	out := make([]byte, len(data))
	copy(out, data)

	seed1, seed2 := key, uint32(hashSeed2)
	for i := 0; i+4 <= len(out); i += 4 {
		seed2 += t[0x400+(seed1&0xFF)]

		in := binary.LittleEndian.Uint32(out[i:])
		res := in ^ (seed1 + seed2)
		binary.LittleEndian.PutUint32(out[i:], res)

		// The key schedule always advances on the plaintext word.
		plain := res
		if encrypt {
			plain = in
		}

		seed1 = ((^seed1 << 0x15) + 0x11111111) | (seed1 >> 0x0B)
		seed2 = plain + seed2 + seed1 + (seed2 << 5) + 3
	}
	return out
}
