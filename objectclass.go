// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"unsafe"

	"go.uber.org/atomic"
)

// ObjectClass is the per-size-class allocator (spec §4.4): a pipe of
// freed objects awaiting reuse, a current partial slag being bump-carved
// for first-touch allocations, a small reserve of already-carved fresh
// slabs, and a reference to the shared PageAlloc back-end.
type ObjectClass struct {
	md        *Metadata
	slabSize  uintptr
	pageAlloc *pageAlloc
	pipe      *RevocablePipe

	current atomic.Uintptr // slabBase of the current partial slag, 0 = none
	reserve atomic.Uintptr // Treiber stack of pre-carved Fresh slab bases

	liveSlags atomic.Int64 // diagnostics only
}

func newObjectClass(md *Metadata, slabSize uintptr, pa *pageAlloc, pipeCapacity int) *ObjectClass {
	return &ObjectClass{md: md, slabSize: slabSize, pageAlloc: pa, pipe: newRevocablePipe(pipeCapacity)}
}

// acquireBatch pops up to n free objects (spec §4.4's tie-break order):
// the pipe first (amortizing remote frees), then the current partial
// slag, then rotation to a fresh slab. A short result means the creek is
// exhausted; the caller (DynamicAllocator) falls back to LargeAlloc or
// reports out-of-memory.
func (c *ObjectClass) acquireBatch(n int) []unsafe.Pointer {
	out := make([]unsafe.Pointer, 0, n)
	for len(out) < n {
		if v, ok := c.pipe.Pop(); ok {
			headerAt(slabOf(v, c.slabSize)).onAcquire(c.md)
			out = append(out, v)
			continue
		}
		if p := c.allocFromCurrent(); p != nil {
			out = append(out, p)
			continue
		}
		if !c.rotate() {
			break
		}
	}
	return out
}

// allocFromCurrent bump-allocates the next never-touched slot from the
// current partial slag. A concurrent release can observe allocatedCount
// hit 0 and revoke this exact slag between the state check below and the
// CAS inside bumpNext — tryRevokeOne clears ObjectClass.current and hands
// the slab back to PageAlloc, where any size class can reacquire and
// reinitialize it. generation/current are re-checked immediately after
// the bump commits so a slot claimed on memory that has since changed
// owners is never handed out.
func (c *ObjectClass) allocFromCurrent() unsafe.Pointer {
	base := c.current.Load()
	if base == 0 {
		return nil
	}
	slabBase := unsafe.Pointer(uintptr(base))
	h := headerAt(slabBase)
	switch h.stateValue() {
	case slagFresh, slagActive:
		gen := h.generation()
		p := h.bumpNext(c.md, slabBase)
		if p == nil {
			return nil
		}
		if h.generation() != gen || c.current.Load() != base {
			// slabBase was revoked and reinitialized (possibly for a
			// different class, possibly at the same address) while this
			// bump was in flight. The reservation just made landed on
			// memory we no longer own, so it must not be returned.
			return nil
		}
		return p
	default:
		// slagFull: no never-touched slots left. slagDrained: a release on
		// another goroutine has already revoked this slag (or is in the
		// narrow window between markDrained succeeding and current being
		// cleared) — either way it must not be bump-allocated from again.
		return nil
	}
}

// rotate installs a new current partial slag, preferring the fresh
// reserve over pulling a new slab from PageAlloc (spec §4.4's "rotates to
// another partial ... then pulls a fresh slab"). Returns false only when
// the creek itself is exhausted.
//
// Concurrent callers can race here: the CAS only replaces current if it
// still holds the same (Full or Drained) value this call observed, so a
// caller that loses the race never drops the slab it just acquired — it
// stashes it in reserve instead and re-checks, since by then current may
// already have been swapped to something bump-allocatable by the winner.
func (c *ObjectClass) rotate() bool {
	for {
		old := c.current.Load()
		if old != 0 {
			switch headerAt(unsafe.Pointer(uintptr(old))).stateValue() {
			case slagFresh, slagActive:
				return true
			}
		}
		base := c.popReserve()
		if base == nil {
			base = c.pageAlloc.acquire()
			if base == nil {
				return false
			}
			initSlag(base, c.md.ClassIndex)
		}
		if c.current.CompareAndSwap(old, uintptr(base)) {
			c.liveSlags.Add(1)
			return true
		}
		c.pushReserve(base)
	}
}

func (c *ObjectClass) popReserve() unsafe.Pointer {
	for {
		top := c.reserve.Load()
		if top == 0 {
			return nil
		}
		node := (*freeListNode)(unsafe.Pointer(uintptr(top)))
		next := uintptr(unsafe.Pointer(node.next))
		if c.reserve.CompareAndSwap(top, next) {
			node.next = nil
			return unsafe.Pointer(uintptr(top))
		}
	}
}

func (c *ObjectClass) pushReserve(base unsafe.Pointer) {
	node := (*freeListNode)(base)
	for {
		top := c.reserve.Load()
		node.next = unsafe.Pointer(uintptr(top))
		if c.reserve.CompareAndSwap(top, uintptr(base)) {
			return
		}
	}
}

// releaseBatch returns freed pointers to the pipe, performing each
// owning slag's Full→Active and, when eligible, Active→Drained
// transition (spec §4.4, §4.3). If the pipe is momentarily full, Push
// reports false and the pointer is simply left out of circulation for
// this class's pipe; the object itself was already decremented off
// allocatedCount, so correctness holds, but acquireBatch never hands that
// object out again. Its memory returns to use only if the slag later
// drains entirely and is revoked.
func (c *ObjectClass) releaseBatch(ptrs []unsafe.Pointer) {
	for _, p := range ptrs {
		c.releaseOne(p)
	}
}

func (c *ObjectClass) releaseOne(p unsafe.Pointer) {
	slabBase := slabOf(p, c.slabSize)
	h := headerAt(slabBase)
	remaining := h.onRelease()
	eligible := remaining == 0 && c.md.Revocable && h.peakValue() >= c.md.CutoffThreshold
	if eligible {
		if h.markDrained() {
			c.tryRevokeOne(slabBase, h)
			return
		}
	}
	c.pipe.Push(p)
}

// tryRevokeOne sweeps the pipe clear of any entries belonging to slabBase
// and returns the slab to PageAlloc (spec §4.3 Drained→released, §4.4
// try_revoke). Called only by whichever releaseOne call observes the
// Active→Drained transition, so it runs at most once per drain.
func (c *ObjectClass) tryRevokeOne(slabBase unsafe.Pointer, h *slagHeader) {
	debugTrace("revoke", "addr", slabBase, "class", c.md.ClassIndex)
	c.pipe.revoke(uintptr(slabBase), c.slabSize)
	c.current.CompareAndSwap(uintptr(slabBase), 0)
	c.liveSlags.Add(-1)
	c.pageAlloc.release(slabBase)
}

// tryRevoke is the class-level sweep spec §4.4 names directly: a
// best-effort pass over the current partial slag only, returning it to
// PageAlloc if it is Drained. Nothing in this package calls it: every
// drain is already observed and revoked by the releaseOne call that
// brings allocatedCount to 0.
func (c *ObjectClass) tryRevoke() {
	base := c.current.Load()
	if base == 0 {
		return
	}
	slabBase := unsafe.Pointer(uintptr(base))
	h := headerAt(slabBase)
	if h.stateValue() == slagDrained {
		c.tryRevokeOne(slabBase, h)
	}
}
