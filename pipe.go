// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"unsafe"

	"go.uber.org/atomic"
)

// RevocablePipe is a bounded multi-producer, single-consumer queue of freed
// pointers belonging to one size class (spec §3, §4.4). Producers are
// foreign threads returning objects via Free; the consumer is the owning
// ObjectClass refilling its local cache from acquireBatch.
//
// "Revocable" means the consumer can atomically withdraw every entry that
// belongs to a slab it is about to hand back to PageAlloc, so a producer
// cannot subsequently deposit a stale free into memory that has since been
// reused for a different size class (spec §9, RevocablePipe design note).
//
// The queue is a bounded ring of Vyukov-style slots: each slot carries a
// generation counter that doubles as the synchronization token between
// producers and the single consumer, and additionally as the tombstone
// mechanism revoke uses.
type RevocablePipe struct {
	slots []pipeSlot
	cap   uint64
	head  atomic.Uint64 // next slot index the consumer will read
	tail  atomic.Uint64 // next slot index a producer may claim
}

type pipeSlot struct {
	// seq encodes slot lifecycle: seq == index means ready to be claimed
	// by a producer; seq == index+1 means occupied and ready to be
	// popped by the consumer; seq == index+cap means empty again for the
	// next lap. A tombstoned slot is forced to index+cap directly by
	// revoke, skipping the occupied state.
	seq   atomic.Uint64
	value unsafe.Pointer
}

// newRevocablePipe builds a pipe with capacity rounded up to a power of
// two, matching the classic bounded MPMC ring buffer layout.
func newRevocablePipe(capacity int) *RevocablePipe {
	n := nextPow2(capacity)
	p := &RevocablePipe{slots: make([]pipeSlot, n), cap: uint64(n)}
	for i := range p.slots {
		p.slots[i].seq.Store(uint64(i))
	}
	return p
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Push enqueues a freed pointer. Returns false if the pipe is momentarily
// full; the caller (ObjectClass.releaseOne) then drops the pointer from
// circulation, since a slag keeps no free list of its own.
func (p *RevocablePipe) Push(v unsafe.Pointer) bool {
	for {
		tail := p.tail.Load()
		slot := &p.slots[tail&(p.cap-1)]
		seq := slot.seq.Load()
		switch {
		case seq == tail:
			if p.tail.CompareAndSwap(tail, tail+1) {
				slot.value = v
				slot.seq.Store(tail + 1)
				return true
			}
		case seq < tail:
			return false // ring full
		default:
			// another producer already advanced this slot past tail;
			// reload tail and retry.
		}
	}
}

// Pop dequeues the oldest live pointer, skipping any slots a concurrent
// revoke tombstoned out from under it. Only the owning ObjectClass may
// call Pop — single-consumer by contract.
func (p *RevocablePipe) Pop() (unsafe.Pointer, bool) {
	for {
		head := p.head.Load()
		slot := &p.slots[head&(p.cap-1)]
		seq := slot.seq.Load()
		switch {
		case seq == head+1:
			v := slot.value
			slot.value = nil
			slot.seq.Store(head + p.cap)
			p.head.Store(head + 1)
			return v, true
		case seq == head+p.cap:
			// tombstoned by revoke before a consumer ever saw it; skip.
			p.head.Store(head + 1)
		case seq < head+1:
			return nil, false // empty
		default:
			return nil, false
		}
	}
}

// revoke tombstones every slot currently holding a pointer that belongs to
// slabBase, so a producer racing to push a stale free for that slab either
// fails its CAS (slot generation moved on) or deposits into a slot the
// consumer will skip. Called by ObjectClass.tryRevokeOne only after the slag
// has observably reached allocatedCount == 0 and state slagDrained.
func (p *RevocablePipe) revoke(slabBase, slabSize uintptr) {
	mask := ^(slabSize - 1)
	for i := range p.slots {
		slot := &p.slots[i]
		seq := slot.seq.Load()
		idx := uint64(i)
		occupied := seq == idx+1 || (seq >= idx && seq < idx+p.cap && seq != idx)
		if !occupied {
			continue
		}
		v := slot.value
		if v == nil || uintptr(v)&mask != slabBase {
			continue
		}
		// Force the slot directly to its "empty, next lap" generation so
		// neither a future producer write nor a consumer Pop observes the
		// stale value.
		slot.seq.Store(idx + p.cap)
		slot.value = nil
	}
}
