// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"unsafe"

	"go.uber.org/atomic"
)

// slagState is one of the four states spec §4.3 allows a Slag to occupy.
type slagState int32

const (
	slagFresh slagState = iota
	slagActive
	slagFull
	slagDrained
)

// slagHeader is the per-slab control block living at offset 0 of the slab
// itself (spec §3: "a Slag header at offset 0"). It holds only plain
// scalars — never a pointer to a normal, garbage-collected Go value —
// because this memory is opaque to the Go garbage collector and must not
// be the only thing keeping a heap-managed object alive. classIndex is
// looked up by callers in the shared SizeClassMap/ObjectClass arrays
// rather than stored here as a pointer, for the same reason.
//
// Every object an allocation ever hands out either comes from bumping brk
// (first touch) or from popping the class's RevocablePipe (a previously
// freed object handed back into circulation). There is no separate
// per-slag local free list: routing every release through the class pipe,
// whether the freeing thread happens to be the one that originally
// allocated the object or not, keeps the slag header itself touched only
// by lock-free CAS, with no distinction between a "local" and a "remote"
// free path at this layer (spec §4.3's "a free returning a pointer through
// the remote-free pipe (or local free)" treats the two as one mechanism).
type slagHeader struct {
	classIndex int32
	state      atomic.Int32
	allocated  atomic.Int32
	brk        atomic.Int32
	peak       atomic.Int32 // high-water mark of allocated, for the cutoff-factor check
	gen        atomic.Int32 // bumped every initSlag; detects a slab address being revoked and reused while a bump was in flight
}

var slagHeaderSize = roundup(uintptr(unsafe.Sizeof(slagHeader{})), mallocAlign)

// headerAt reinterprets a carved slab's base address as its header. Only
// valid once initSlag has run.
func headerAt(slabBase unsafe.Pointer) *slagHeader {
	return (*slagHeader)(slabBase)
}

// slabOf locates the owning slab of any in-creek pointer: p & ~(slabSize-1)
// (spec §3's defining invariant).
func slabOf(p unsafe.Pointer, slabSize uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) &^ (slabSize - 1))
}

func userBase(slabBase unsafe.Pointer, md *Metadata) unsafe.Pointer {
	return unsafe.Pointer(uintptr(slabBase) + md.HeaderOffset)
}

// initSlag sets up a freshly carved slab as classIndex's newest Fresh
// slag (spec §4.3 state 1).
func initSlag(slabBase unsafe.Pointer, classIndex int32) *slagHeader {
	h := headerAt(slabBase)
	h.classIndex = classIndex
	h.gen.Add(1)
	h.state.Store(int32(slagFresh))
	h.allocated.Store(0)
	h.brk.Store(0)
	h.peak.Store(0)
	return h
}

// bumpNext claims the next never-touched object slot via CAS, or returns
// nil once brk has reached capacity — the slag is Full for first-touch
// purposes, though previously freed objects may still be cycling through
// the class's pipe.
func (h *slagHeader) bumpNext(md *Metadata, slabBase unsafe.Pointer) unsafe.Pointer {
	for {
		cur := h.brk.Load()
		if cur >= md.Capacity {
			return nil
		}
		if h.brk.CompareAndSwap(cur, cur+1) {
			base := userBase(slabBase, md)
			h.onAcquire(md)
			return unsafe.Pointer(uintptr(base) + uintptr(cur)*md.ObjectSize)
		}
	}
}

// onAcquire advances allocatedCount and performs the Fresh→Active and
// Active→Full transitions (spec §4.3), whether the object being handed
// out came from bumpNext or was just popped off the class's pipe.
// allocatedCount uses acquire/release semantics throughout, matching
// spec's ordering requirement. peak records the high-water mark used by
// the cutoff-factor eligibility check at release time (spec §4.4).
func (h *slagHeader) onAcquire(md *Metadata) {
	h.state.CompareAndSwap(int32(slagFresh), int32(slagActive))
	n := h.allocated.Add(1)
	if n == md.Capacity {
		h.state.Store(int32(slagFull))
	}
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
}

// onRelease performs the Full→Active transition unconditionally (spec
// §4.3) and reports the resulting allocatedCount so the caller (the
// owning ObjectClass, which alone knows whether this class is revocable)
// can decide on the Active→Drained transition.
func (h *slagHeader) onRelease() (remaining int32) {
	h.state.CompareAndSwap(int32(slagFull), int32(slagActive))
	return h.allocated.Add(-1)
}

// markDrained performs the Active→Drained transition once the caller has
// confirmed allocatedCount==0 and the class is revocable.
func (h *slagHeader) markDrained() bool {
	return h.state.CompareAndSwap(int32(slagActive), int32(slagDrained))
}

// peakValue reports the high-water mark of allocatedCount this slag has
// reached, used by ObjectClass.releaseOne to apply the cutoff-factor
// eligibility check before revoking (spec §4.4: "a slag is eligible for
// revocation only if it held a non-trivial fraction of its capacity").
func (h *slagHeader) peakValue() int32 { return h.peak.Load() }

// generation reports how many times initSlag has run on this address.
// allocFromCurrent reads it before and after claiming a slot so it can
// detect the slab having been revoked and handed to a (possibly
// different) class out from under an in-flight bump.
func (h *slagHeader) generation() int32 { return h.gen.Load() }

func (h *slagHeader) stateValue() slagState { return slagState(h.state.Load()) }
