// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestObjectClass(t *testing.T, objectSize, slabSize uintptr) *ObjectClass {
	t.Helper()
	ck, err := newCreek(8*slabSize, slabSize)
	require.NoError(t, err)
	pa := newPageAlloc(ck, nil)
	md := computeMetadata(objectSize, slabSize, 0.6, 0)
	return newObjectClass(&md, slabSize, pa, 16)
}

func TestObjectClassAcquireReleaseRoundTrip(t *testing.T) {
	const slabSize = 1 << 13
	oc := newTestObjectClass(t, 16, slabSize)

	batch := oc.acquireBatch(4)
	require.Len(t, batch, 4)
	for i, p := range batch {
		for j, q := range batch[i+1:] {
			require.NotEqual(t, p, q, "duplicate pointer at %d/%d", i, i+1+j)
		}
	}
	oc.releaseBatch(batch)

	batch2 := oc.acquireBatch(4)
	require.Len(t, batch2, 4)
}

func TestObjectClassRevokesDrainedSlag(t *testing.T) {
	const slabSize = 1 << 13
	oc := newTestObjectClass(t, 16, slabSize)

	capacity := int(oc.md.Capacity)
	batch := oc.acquireBatch(capacity)
	require.Len(t, batch, capacity)
	require.EqualValues(t, 1, oc.liveSlags.Load())

	oc.releaseBatch(batch)
	require.EqualValues(t, 0, oc.liveSlags.Load())

	next := oc.acquireBatch(1)
	require.Len(t, next, 1)
}

func TestObjectClassConcurrentAcquireDistinct(t *testing.T) {
	const slabSize = 1 << 16
	oc := newTestObjectClass(t, 32, slabSize)

	results := make(chan unsafe.Pointer, 256)
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 16; j++ {
				batch := oc.acquireBatch(1)
				if len(batch) == 0 {
					return nil
				}
				results <- batch[0]
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	seen := map[unsafe.Pointer]bool{}
	for p := range results {
		require.False(t, seen[p], "pointer handed out twice concurrently")
		seen[p] = true
	}
}
