// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"math"
	"testing"
	"unsafe"

	"github.com/cznic/mathutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SlabSize = 1 << 16
	cfg.CreekCapacity = 256 << 20
	return cfg
}

// Scenario 1 (spec §8): single-thread sweep over a narrow size range,
// writing through every returned pointer before freeing it.
func TestDynamicAllocatorSingleThreadSweep(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	for size := uintptr(8 * (8192 - 8)); size <= 8*8192; size += 8 {
		p, err := a.Alloc(size)
		require.NoError(t, err)
		require.NotNil(t, p)
		(*[1]byte)(p)[0] = 10
		require.NoError(t, a.Free(p))
	}
}

// Scenario 2 (spec §8): sizes from 1 byte up to 128 KiB in steps of 997
// bytes, one thread, no aborts. Scaled down from spec's 2 MiB to bound
// test time; sizes above the test config's largest size class go to
// LargeAlloc.
func TestDynamicAllocatorAllSizesOneThread(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	const max = 1 << 17
	for size := uintptr(1); size <= max; size += 997 {
		p, err := a.Alloc(size)
		require.NoError(t, err)
		(*[1]byte)(p)[0] = 10
		require.NoError(t, a.Free(p))
	}
}

// Scenario 3 (spec §8): 32 goroutines, each through its own clone,
// sweeping every multiple of 8 from 8 bytes to 64 KiB. No size is
// skipped: the range stays below spec's 1 MiB skip bound.
func TestDynamicAllocatorConcurrentClasses(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	var g errgroup.Group
	for w := 0; w < 32; w++ {
		g.Go(func() error {
			c := a.Clone()
			defer c.Close()
			for size := uintptr(8); size <= 8*8192; size += 8 {
				p, err := c.Alloc(size)
				if err != nil {
					return err
				}
				(*[1]byte)(p)[0] = 10
				if err := c.Free(p); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// Scenario 4 (spec §8): large working set across many threads, repeated —
// scaled down from 2^20 objects per thread to keep test time reasonable.
// It checks only that every alloc and free succeeds; PageAlloc's
// free-list length is not inspected.
func TestDynamicAllocatorLargeWorkingSet(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	const perThread = 4096
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			c := a.Clone()
			defer c.Close()
			for round := 0; round < 2; round++ {
				var batch []unsafe.Pointer
				for i := 0; i < perThread; i++ {
					p, err := c.Alloc(8)
					if err != nil {
						return err
					}
					batch = append(batch, p)
				}
				for _, p := range batch {
					if err := c.Free(p); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// Scenario 5 (spec §8): clone across threads — one goroutine allocates
// via a clone, another (the handle that produced it) frees the result.
func TestDynamicAllocatorCloneAcrossThreads(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()
	b := a.Clone()
	defer b.Close()

	ch := make(chan unsafe.Pointer, 1)
	var g errgroup.Group
	g.Go(func() error {
		p, err := b.Alloc(64)
		if err != nil {
			return err
		}
		ch <- p
		return nil
	})
	require.NoError(t, g.Wait())
	p := <-ch
	require.NoError(t, a.Free(p))
}

// Deterministic, PRNG-driven alloc/write/verify/free pass in the
// teacher's own testing idiom (mathutil.NewFC32 full-cycle PRNG).
func TestDynamicAllocatorPRNGDrivenSweep(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	rng, err := mathutil.NewFC32(1, math.MaxInt16, true)
	require.NoError(t, err)
	rng.Seed(7)

	const n = 512
	var ptrs [n]unsafe.Pointer
	var sizes [n]int
	for i := 0; i < n; i++ {
		size := rng.Next()
		sizes[i] = size
		p, err := a.Alloc(uintptr(size))
		require.NoError(t, err)
		b := unsafe.Slice((*byte)(p), size)
		for j := range b {
			b[j] = byte(i)
		}
		ptrs[i] = p
	}
	for i := 0; i < n; i++ {
		b := unsafe.Slice((*byte)(ptrs[i]), sizes[i])
		for _, v := range b {
			require.Equal(t, byte(i), v)
		}
		require.NoError(t, a.Free(ptrs[i]))
	}
}

func TestDynamicAllocatorReallocGrowsAndCopies(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	p, err := a.Alloc(16)
	require.NoError(t, err)
	b := unsafe.Slice((*byte)(p), 16)
	for i := range b {
		b[i] = byte(i + 1)
	}

	np, err := a.Realloc(p, 512)
	require.NoError(t, err)
	nb := unsafe.Slice((*byte)(np), 16)
	for i := range nb {
		require.Equal(t, byte(i+1), nb[i])
	}
	require.NoError(t, a.Free(np))
}

func TestDynamicAllocatorReallocNullIsAlloc(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	p, err := a.Realloc(nil, 32)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NoError(t, a.Free(p))
}

func TestDynamicAllocatorReallocZeroIsFree(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	p, err := a.Alloc(32)
	require.NoError(t, err)
	np, err := a.Realloc(p, 0)
	require.NoError(t, err)
	require.Nil(t, np)
}

func TestDynamicAllocatorLargeAllocBypass(t *testing.T) {
	cfg := testConfig()
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	size := a.back.classMap.MaxSize() + 1
	p, err := a.Alloc(size)
	require.NoError(t, err)
	require.NotNil(t, p)
	b := unsafe.Slice((*byte)(p), int(size))
	b[0] = 1
	b[size-1] = 2
	require.NoError(t, a.Free(p))
}
