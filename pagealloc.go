// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"unsafe"

	"go.uber.org/atomic"
)

// pageAlloc is a concurrent free-list of slab-sized blocks over the creek
// (spec §4.2): lock-free MPMC via compare-and-swap on an intrusive stack
// of blocks, exactly the "never blocks indefinitely" requirement of §5.
type pageAlloc struct {
	creek *creek
	top   atomic.Uintptr // address of the top free block, 0 if empty
	dirty DirtyFn
}

// freeListNode is overlaid on the first machine word of a released slab —
// the same intrusive-list trick the teacher allocator uses for its
// per-size-class free lists, here at slab granularity.
type freeListNode struct {
	next unsafe.Pointer
}

func newPageAlloc(c *creek, dirty DirtyFn) *pageAlloc {
	return &pageAlloc{creek: c, dirty: dirty}
}

// acquire pops a block from the free list; if empty, carves a fresh one
// from the creek. Never blocks indefinitely: a nil result means the creek
// is exhausted, which is not fatal — the caller falls back to LargeAlloc.
func (a *pageAlloc) acquire() unsafe.Pointer {
	for {
		top := a.top.Load()
		if top == 0 {
			return a.creek.carve()
		}
		node := (*freeListNode)(unsafe.Pointer(uintptr(top)))
		next := uintptr(unsafe.Pointer(node.next))
		if a.top.CompareAndSwap(top, next) {
			node.next = nil
			return unsafe.Pointer(uintptr(top))
		}
		// Lost the race with another acquirer or a racing release;
		// reload top and retry. A plain CAS stack is vulnerable to ABA
		// in the general case, but slabs only ever re-enter the free
		// list through release below and are never freed to the OS, so
		// a given address can only be "freed, reused, freed" with a full
		// carve/acquire/release cycle between each occurrence — the
		// classic ABA window (concurrent pop of a just-pushed-identical
		// address) does not arise here.
	}
}

// release pushes a slab back onto the free list. If a DirtyFn is
// configured it runs first against the raw page bytes — the default is a
// no-op; a debug variant forces every page of the block to commit, useful
// for shaking out stale references (spec §4.2).
func (a *pageAlloc) release(p unsafe.Pointer) {
	if a.dirty != nil {
		size := int(a.creek.pageSize())
		a.dirty(unsafe.Slice((*byte)(p), size))
	}
	node := (*freeListNode)(p)
	for {
		top := a.top.Load()
		node.next = unsafe.Pointer(uintptr(top))
		if a.top.CompareAndSwap(top, uintptr(p)) {
			return
		}
	}
}
