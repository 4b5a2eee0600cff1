// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

// FrontEndKind selects the per-thread cache shape (spec §4.5).
type FrontEndKind int

const (
	// MagazineCache is the default: two double-buffered batches absorb
	// bursty alloc/free traffic with a single ObjectClass round trip per
	// batch flip.
	MagazineCache FrontEndKind = iota
	// LocalCache is a single slice-backed chunk — simpler, slightly
	// lower throughput under bursty frees (spec §4.5).
	LocalCache
)

// DirtyFn is invoked by PageAlloc.Release on a block just returned to the
// free list (spec §4.2). The default is nil (no-op); a debug variant can
// write to every OS page of the block to force it to be committed, which
// is useful for shaking out double-free bugs but is otherwise pure
// overhead.
type DirtyFn func(block []byte)

// Config bundles every tunable named in spec §6.
type Config struct {
	// SlabSize is the page-aligned granularity PageMap carves (default
	// 2 MiB).
	SlabSize uintptr
	// CreekCapacity is the total size of the one-time virtual
	// reservation (default a few GiB; carving past it falls back to
	// LargeAlloc, it is never fatal).
	CreekCapacity uintptr
	// CutoffFactor is the fraction of its capacity a slag's peak
	// occupancy must reach for the slag, once drained, to be eligible for
	// revocation (default 0.6).
	CutoffFactor float64
	// StartExponent is the small-tier ceiling exponent: the small tier
	// covers 16-byte multiples up to 1<<StartExponent (default 8, i.e.
	// 256 bytes).
	StartExponent uint
	// MaxExponent is the top of the medium (power-of-two) tier; requests
	// above 1<<MaxExponent route to LargeAlloc.
	MaxExponent uint
	// TierStep is the small-tier stride in bytes (default 16).
	TierStep uintptr
	// BatchSize is the front-end cache's batch size (default 8 objects).
	BatchSize int
	// FrontEnd selects the per-thread cache implementation.
	FrontEnd FrontEndKind
	// Dirty is PageAlloc's optional post-release hook.
	Dirty DirtyFn
}

// DefaultConfig returns the configuration spec §6 lists as defaults. The
// default MaxExponent (16, i.e. 64 KiB) is a calibration choice recorded
// in DESIGN.md: it keeps NumClasses at exactly 25 for StartExponent=8 and
// TierStep=16, matching spec's literal class count; requests above the
// resulting max_size simply fall through to LargeAlloc regardless, so
// raising MaxExponent only changes where that boundary sits.
func DefaultConfig() Config {
	return Config{
		SlabSize:      2 << 20,
		CreekCapacity: 4 << 30,
		CutoffFactor:  0.6,
		StartExponent: 8,
		MaxExponent:   16,
		TierStep:      16,
		BatchSize:     8,
		FrontEnd:      MagazineCache,
	}
}

func (c Config) smallTierMax() uintptr { return 1 << c.StartExponent }

// numClasses is the total number of size classes: one dedicated word
// class, the small (16-byte stride) tier, and the medium (power-of-two)
// tier.
func (c Config) numClasses() int {
	small := int(c.smallTierMax() / c.TierStep)
	medium := int(c.MaxExponent - c.StartExponent)
	return 1 + small + medium
}
