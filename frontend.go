// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import "unsafe"

// frontEndCache is the per-thread per-size-class cache of free pointers
// that absorbs most alloc/free traffic (spec §4.5). Both implementations
// are touched only by their owning goroutine on the fast path — see
// DynamicAllocator and global.go for how "owning" is established — and
// need no internal synchronization there.
type frontEndCache interface {
	alloc(c *ObjectClass) unsafe.Pointer
	free(c *ObjectClass, p unsafe.Pointer)
	// drain returns every pointer this cache currently holds to c,
	// called when a handle is closed or its thread's cache is reclaimed.
	drain(c *ObjectClass)
}

func newFrontEndCache(kind FrontEndKind, batchSize int) frontEndCache {
	switch kind {
	case LocalCache:
		return &localCache{batchSize: batchSize}
	default:
		return &magazineCache{batchSize: batchSize}
	}
}

// magazineCache is the default front end: two double-buffered batches
// (front, reserve). Alloc pops from front; when front empties, it swaps
// with reserve; when both are empty, it refills from ObjectClass in one
// batch split across the two. Free pushes onto front; when front fills,
// it swaps with reserve; if reserve is then also full, one whole batch is
// flushed back to ObjectClass to make room (spec §4.5).
type magazineCache struct {
	batchSize int
	front     []unsafe.Pointer
	reserve   []unsafe.Pointer
}

func (m *magazineCache) alloc(c *ObjectClass) unsafe.Pointer {
	if len(m.front) == 0 {
		m.front, m.reserve = m.reserve, m.front
	}
	if len(m.front) == 0 {
		batch := c.acquireBatch(2 * m.batchSize)
		if len(batch) == 0 {
			return nil
		}
		half := len(batch) / 2
		if half == 0 {
			m.front = batch
		} else {
			m.front = batch[:half:half]
			m.reserve = batch[half:]
		}
	}
	n := len(m.front) - 1
	p := m.front[n]
	m.front = m.front[:n]
	return p
}

func (m *magazineCache) free(c *ObjectClass, p unsafe.Pointer) {
	if len(m.front) >= m.batchSize {
		m.front, m.reserve = m.reserve, m.front
	}
	if len(m.front) >= m.batchSize {
		c.releaseBatch(m.front)
		m.front = m.front[:0]
	}
	m.front = append(m.front, p)
}

func (m *magazineCache) drain(c *ObjectClass) {
	if len(m.front) > 0 {
		c.releaseBatch(m.front)
		m.front = nil
	}
	if len(m.reserve) > 0 {
		c.releaseBatch(m.reserve)
		m.reserve = nil
	}
}

// localCache is the alternate front end (spec §4.5): a single chunk,
// simpler, slightly lower throughput under bursty frees since there is no
// second batch to absorb a burst while the first refills.
type localCache struct {
	batchSize int
	items     []unsafe.Pointer
}

func (l *localCache) alloc(c *ObjectClass) unsafe.Pointer {
	if len(l.items) == 0 {
		batch := c.acquireBatch(l.batchSize)
		if len(batch) == 0 {
			return nil
		}
		l.items = batch
	}
	n := len(l.items) - 1
	p := l.items[n]
	l.items = l.items[:n]
	return p
}

func (l *localCache) free(c *ObjectClass, p unsafe.Pointer) {
	l.items = append(l.items, p)
	if len(l.items) >= 2*l.batchSize {
		c.releaseBatch(l.items)
		l.items = l.items[:0]
	}
}

func (l *localCache) drain(c *ObjectClass) {
	if len(l.items) > 0 {
		c.releaseBatch(l.items)
		l.items = nil
	}
}
