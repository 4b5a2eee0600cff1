// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"sync"
	"unsafe"
)

// backend is the shared, refcounted state behind every clone of a
// DynamicAllocator (spec §4.8): one creek, one PageAlloc, one
// SizeClassMap, one ObjectClass per size class, and the LargeAlloc
// bypass. Clones differ only in their own per-thread FrontEndCache array;
// everything in backend is already safe for concurrent use without
// further locking except the refcount itself.
type backend struct {
	cfg       Config
	creek     *creek
	pageAlloc *pageAlloc
	classMap  *SizeClassMap
	classes   []*ObjectClass
	large     *largeAlloc

	mu   sync.Mutex
	refs int
}

func newBackend(cfg Config) (*backend, error) {
	ck, err := newCreek(cfg.CreekCapacity, cfg.SlabSize)
	if err != nil {
		return nil, err
	}
	classMap, err := newSizeClassMap(cfg, cfg.SlabSize)
	if err != nil {
		return nil, err
	}
	pa := newPageAlloc(ck, cfg.Dirty)
	classes := make([]*ObjectClass, classMap.NumClasses())
	for i := range classes {
		classes[i] = newObjectClass(classMap.Class(i), cfg.SlabSize, pa, cfg.BatchSize*4)
	}
	return &backend{
		cfg:      cfg,
		creek:    ck,
		pageAlloc: pa,
		classMap: classMap,
		classes:  classes,
		large:    newLargeAlloc(),
		refs:     1,
	}, nil
}

func (b *backend) retain() {
	b.mu.Lock()
	b.refs++
	b.mu.Unlock()
}

// release drops one reference and, once the last clone has closed,
// unmaps the size-class metadata. The creek itself is never unmapped —
// matching spec §4.1's "reserved once, lives for the process" invariant —
// so a leaked reference only leaks the metadata page, never the creek.
func (b *backend) release() error {
	b.mu.Lock()
	b.refs--
	last := b.refs == 0
	b.mu.Unlock()
	if !last {
		return nil
	}
	return b.classMap.release()
}

// DynamicAllocator is a cloneable allocator handle (spec §4.8). Every
// clone shares the same back-end pools but owns an independent
// FrontEndCache per size class, so two clones used from different threads
// contend only on the lock-free structures beneath the cache layer, never
// on cache state itself.
type DynamicAllocator struct {
	back   *backend
	caches []frontEndCache
}

// New constructs a fresh, independent allocator with its own back-end
// pools.
func New(cfg Config) (*DynamicAllocator, error) {
	b, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	return newDynamicAllocator(b), nil
}

func newDynamicAllocator(b *backend) *DynamicAllocator {
	caches := make([]frontEndCache, len(b.classes))
	for i := range caches {
		caches[i] = newFrontEndCache(b.cfg.FrontEnd, b.cfg.BatchSize)
	}
	return &DynamicAllocator{back: b, caches: caches}
}

// Clone returns a new handle sharing this allocator's back-end pools but
// with its own, empty front-end cache array — the idiom for handing a
// worker goroutine its own cache without duplicating the underlying
// memory pools (spec §4.8).
func (d *DynamicAllocator) Clone() *DynamicAllocator {
	d.back.retain()
	return newDynamicAllocator(d.back)
}

// Alloc returns size bytes of uninitialized memory, or ErrOutOfMemory if
// neither the creek nor a direct mapping can satisfy the request.
func (d *DynamicAllocator) Alloc(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		size = 1
	}
	idx, overflow := d.back.classMap.classIndex(size)
	if overflow {
		return d.back.large.alloc(size)
	}
	p := d.caches[idx].alloc(d.back.classes[idx])
	if p == nil {
		// The creek is exhausted; this is not fatal.
		return d.back.large.alloc(size)
	}
	return p, nil
}

// Free returns p, previously obtained from Alloc or Realloc on this
// allocator family, to circulation. Freeing a foreign or already-freed
// pointer is undefined behavior by contract (spec §7.2); release builds
// do not check.
func (d *DynamicAllocator) Free(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	if err := d.checkFree(p); err != nil {
		return err
	}
	if d.back.creek.contains(p) {
		slabBase := slabOf(p, d.back.cfg.SlabSize)
		idx := headerAt(slabBase).classIndex
		d.caches[idx].free(d.back.classes[idx], p)
		return nil
	}
	return d.back.large.free(p)
}

// Realloc resizes p in place when it already has enough room, otherwise
// allocates fresh storage, copies the overlapping prefix, and frees the
// original — the same contract as the C standard library's realloc (spec
// §4.8).
func (d *DynamicAllocator) Realloc(p unsafe.Pointer, newSize uintptr) (unsafe.Pointer, error) {
	if p == nil {
		return d.Alloc(newSize)
	}
	if newSize == 0 {
		return nil, d.Free(p)
	}
	oldSize := d.usableSize(p)
	if newSize <= oldSize {
		return p, nil
	}
	np, err := d.Alloc(newSize)
	if err != nil {
		return nil, err
	}
	copySize := oldSize
	if newSize < copySize {
		copySize = newSize
	}
	copy(unsafe.Slice((*byte)(np), int(copySize)), unsafe.Slice((*byte)(p), int(copySize)))
	if err := d.Free(p); err != nil {
		return nil, err
	}
	return np, nil
}

// usableSize reports the usable byte count backing p — the size-class
// slot size for a pooled pointer, or the mapped length for a LargeAlloc
// pointer. Kept unexported: the public handle API intentionally has no
// per-object size query (a Non-goal), but Realloc and debug assertions
// need it internally, mirroring the teacher's own internal-only
// UsableSize bookkeeping.
func (d *DynamicAllocator) usableSize(p unsafe.Pointer) uintptr {
	if d.back.creek.contains(p) {
		slabBase := slabOf(p, d.back.cfg.SlabSize)
		idx := headerAt(slabBase).classIndex
		return d.back.classMap.Class(int(idx)).ObjectSize
	}
	return d.back.large.commitment(p)
}

// Close flushes every per-class front-end cache back to its ObjectClass
// and releases this clone's reference to the shared back end.
func (d *DynamicAllocator) Close() error {
	for i, cache := range d.caches {
		cache.drain(d.back.classes[i])
	}
	return d.back.release()
}
