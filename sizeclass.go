// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"unsafe"

	"github.com/cznic/mathutil"

	"github.com/cznic/slagalloc/vm"
)

// mallocAlign is the minimum alignment every returned pointer satisfies,
// matching the teacher allocator's constant of the same name.
const mallocAlign = 16

// Metadata is one immutable record per size class, computed once at
// construction and referenced by every Slag of that class (spec §3). It
// is never stored in the general heap — see SizeClassMap's backing
// mapping — to avoid the bootstrap cycle spec §9 calls out.
type Metadata struct {
	ClassIndex      int32
	ObjectSize      uintptr
	Capacity        int32
	HeaderOffset    uintptr
	CutoffFactor    float64
	CutoffThreshold int32 // capacity*CutoffFactor, rounded down; a slag's peak allocatedCount must reach this before it is revocation-eligible
	UsableSize      uintptr
	Revocable       bool
}

// neverRevokeSentinel is the u_size spec §4.4 assigns size classes too
// small to be worth revoking (usable_size/object_size < 4).
const neverRevokeSentinel = uintptr(1) << 50

func computeMetadata(objectSize, slabSize uintptr, cutoffFactor float64, classIndex int) Metadata {
	usable := slabSize - slagHeaderSize
	capacity := usable / objectSize
	revocable := usable/objectSize >= 4
	u := usable
	if !revocable {
		u = neverRevokeSentinel
	}
	return Metadata{
		ClassIndex:      int32(classIndex),
		ObjectSize:      objectSize,
		Capacity:        int32(capacity),
		HeaderOffset:    slagHeaderSize,
		CutoffFactor:    cutoffFactor,
		CutoffThreshold: int32(cutoffFactor * float64(capacity)),
		UsableSize:      u,
		Revocable:       revocable,
	}
}

// SizeClassMap maps a requested byte count to its size-class index (spec
// §4.6): a dedicated word class for n<=8, a small tier of TierStep-byte
// multiples up to 1<<StartExponent, and a medium tier of powers of two up
// to 1<<MaxExponent. Requests above MaxSize() route to LargeAlloc;
// MaxSize() is below 1<<MaxExponent when the largest classes do not fit in
// a slab.
type SizeClassMap struct {
	cfg        Config
	metaRaw    []byte
	classes    []Metadata
	smallMax   uintptr
	maxSize    uintptr
	smallBase  int
	mediumBase int
}

// newSizeClassMap allocates its Metadata array via the VM layer directly
// (never through this allocator) and fills in every class record.
func newSizeClassMap(cfg Config, slabSize uintptr) (*SizeClassMap, error) {
	n := cfg.numClasses()
	size := uintptr(n) * unsafe.Sizeof(Metadata{})
	raw, err := vm.Map(size)
	if err != nil {
		return nil, wrapVM(err, "size-class metadata")
	}
	classes := unsafe.Slice((*Metadata)(unsafe.Pointer(&raw[0])), n)

	m := &SizeClassMap{cfg: cfg, metaRaw: raw, classes: classes, smallMax: cfg.smallTierMax()}

	idx := 0
	classes[idx] = computeMetadata(8, slabSize, cfg.CutoffFactor, idx)
	idx++
	m.smallBase = idx
	for sz := cfg.TierStep; sz <= m.smallMax; sz += cfg.TierStep {
		classes[idx] = computeMetadata(sz, slabSize, cfg.CutoffFactor, idx)
		idx++
	}
	m.mediumBase = idx
	for exp := cfg.StartExponent + 1; exp <= cfg.MaxExponent; exp++ {
		classes[idx] = computeMetadata(uintptr(1)<<exp, slabSize, cfg.CutoffFactor, idx)
		idx++
	}
	// A class whose objects do not fit in one slab (capacity 0) cannot
	// serve anything, so max_size is the largest class that can.
	for i := idx - 1; i >= 0; i-- {
		if classes[i].Capacity > 0 {
			m.maxSize = classes[i].ObjectSize
			break
		}
	}
	return m, nil
}

func (m *SizeClassMap) release() error {
	return wrapVM(vm.Unmap(m.metaRaw), "unmap size-class metadata")
}

// MaxSize is spec's max_key: the largest byte count served by a size
// class; anything larger routes to LargeAlloc.
func (m *SizeClassMap) MaxSize() uintptr { return m.maxSize }

// NumClasses returns the number of populated size classes.
func (m *SizeClassMap) NumClasses() int { return len(m.classes) }

// Class returns the immutable Metadata for class index idx.
func (m *SizeClassMap) Class(idx int) *Metadata { return &m.classes[idx] }

// classIndex implements spec §4.6's class_index(n). The bool return is
// true when n exceeds MaxSize and must be routed to LargeAlloc instead.
func (m *SizeClassMap) classIndex(n uintptr) (int, bool) {
	switch {
	case n <= 8:
		return 0, false
	case n <= m.smallMax:
		steps := roundup(n, m.cfg.TierStep)/m.cfg.TierStep - 1
		return m.smallBase + int(steps), false
	case n <= m.maxSize:
		log := uint(mathutil.BitLen(int(n - 1)))
		if log <= m.cfg.StartExponent {
			log = m.cfg.StartExponent + 1
		}
		return m.mediumBase + int(log-(m.cfg.StartExponent+1)), false
	default:
		return 0, true
	}
}

// roundup rounds n up to the next multiple of m. m must be a power of two.
func roundup(n, m uintptr) uintptr { return (n + m - 1) &^ (m - 1) }
