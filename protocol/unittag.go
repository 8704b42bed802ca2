// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

// Tracker events identify units by an index and a recycle count, which are
// combined into a single unit tag.
const (
	unitTagIndexShift  = 18
	unitTagRecycleMask = 1<<unitTagIndexShift - 1
	unitTagIndexMask   = 0x3FFF
)

// UnitTag combines a unit index and recycle count into a unit tag.
func UnitTag(index, recycle uint32) uint32 { return index<<unitTagIndexShift + recycle }

// UnitTagIndex returns the unit index of a unit tag.
func UnitTagIndex(tag uint32) uint32 { return (tag >> unitTagIndexShift) & unitTagIndexMask }

// UnitTagRecycle returns the recycle count of a unit tag.
func UnitTagRecycle(tag uint32) uint32 { return tag & unitTagRecycleMask }
