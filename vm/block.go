// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Block is a single large, page-aligned, contiguous virtual memory
// reservation — the creek of the allocator's data model (spec §4.1). It is
// bump-carved into slab-sized pieces by Carve and never returns pages to
// the OS: Reserve happens once at process start and the Block lives for
// the lifetime of the process.
type Block struct {
	base     uintptr
	capacity uintptr
	slabSize uintptr
	mem      []byte
	offset   atomic.Uintptr // next uncarved byte, relative to base
}

// Reserve maps a single contiguous region of at least capacity bytes,
// rounded up to slabSize, and returns a Block ready to be carved.
func Reserve(capacity, slabSize uintptr) (*Block, error) {
	if slabSize == 0 {
		return nil, errors.New("vm: slab size must be non-zero")
	}
	capacity = roundup(capacity, slabSize)
	// The OS only guarantees page alignment, so map one extra slab and
	// start the Block at the first slab-aligned address inside the mapping.
	mem, err := reserve(capacity + slabSize)
	if err != nil {
		return nil, errors.Wrap(err, "vm: reserve creek")
	}
	base := roundup(uintptr(unsafe.Pointer(&mem[0])), slabSize)
	return &Block{base: base, capacity: capacity, slabSize: slabSize, mem: mem}, nil
}

// PageSize is the slab granularity this Block carves, i.e. spec's
// "page_size()" — not necessarily the OS page size.
func (b *Block) PageSize() uintptr { return b.slabSize }

// Capacity is the total size of the reservation.
func (b *Block) Capacity() uintptr { return b.capacity }

// Contains reports whether p falls within this reservation, in O(1).
func (b *Block) Contains(p unsafe.Pointer) bool {
	a := uintptr(p)
	return a >= b.base && a < b.base+b.capacity
}

// Carve returns the next unused, slab-aligned block of nSlabs slabs, or
// nil if the reservation is exhausted. Pure bump pointer: it never blocks
// indefinitely and never returns previously carved memory to the OS.
// Failure (capacity exhausted) is not fatal — callers fall back to a
// direct VM mapping (spec §4.1).
func (b *Block) Carve(nSlabs int) unsafe.Pointer {
	want := uintptr(nSlabs) * b.slabSize
	for {
		cur := b.offset.Load()
		next := cur + want
		if next > b.capacity {
			return nil
		}
		if b.offset.CompareAndSwap(cur, next) {
			return unsafe.Pointer(b.base + cur)
		}
	}
}

// Carved reports how many bytes of the reservation have been handed out so
// far. Used only for diagnostics/tests.
func (b *Block) Carved() uintptr { return b.offset.Load() }

func roundup(n, m uintptr) uintptr {
	if m == 0 {
		return n
	}
	return (n + m - 1) &^ (m - 1)
}
