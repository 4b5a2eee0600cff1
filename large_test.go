// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestLargeAllocRoundTrip(t *testing.T) {
	la := newLargeAlloc()
	const size = 4 << 20

	p, err := la.alloc(size)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, uintptr(size), la.commitment(p))
	require.Zero(t, uintptr(p)%uintptr(os.Getpagesize()), "large alloc pointer must be page-aligned")

	b := unsafe.Slice((*byte)(p), size)
	b[0] = 1
	b[size-1] = 2

	require.NoError(t, la.free(p))
}

func TestLargeAllocCommitmentRoundsUpToAlignment(t *testing.T) {
	la := newLargeAlloc()
	p, err := la.alloc(1)
	require.NoError(t, err)
	defer la.free(p)

	require.GreaterOrEqual(t, la.commitment(p), uintptr(1))
	require.Zero(t, la.commitment(p)%mallocAlign)
	require.Zero(t, uintptr(p)%uintptr(os.Getpagesize()), "large alloc pointer must be page-aligned")
}
