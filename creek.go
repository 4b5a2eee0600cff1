// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"unsafe"

	"github.com/cznic/slagalloc/vm"
)

// creek wraps a vm.Block with the bookkeeping PageMap needs on top of the
// raw VM primitive (spec §4.1): process-lifetime, never freed, answers
// "does this pointer live here" in O(1).
type creek struct {
	block *vm.Block
}

func newCreek(capacity, slabSize uintptr) (*creek, error) {
	b, err := vm.Reserve(capacity, slabSize)
	if err != nil {
		return nil, wrapVM(err, "reserve creek")
	}
	return &creek{block: b}, nil
}

func (c *creek) pageSize() uintptr { return c.block.PageSize() }

func (c *creek) contains(p unsafe.Pointer) bool { return c.block.Contains(p) }

// carve hands out the next unused slab-sized block, or nil once the
// reservation is exhausted — not fatal, the caller falls back to
// LargeAlloc (spec §4.1).
func (c *creek) carve() unsafe.Pointer {
	p := c.block.Carve(1)
	if p != nil {
		debugTrace("carve", "addr", p)
	}
	return p
}

// slabOf locates the owning slab for any user pointer known to be inside
// the creek: p & ~(slab_size-1) (spec §3).
func (c *creek) slabOf(p unsafe.Pointer) unsafe.Pointer {
	mask := c.pageSize() - 1
	return unsafe.Pointer(uintptr(p) &^ mask)
}
