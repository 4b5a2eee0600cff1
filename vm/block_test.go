// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestReserveAndCarve(t *testing.T) {
	const slabSize = 1 << 16
	b, err := Reserve(4*slabSize, slabSize)
	require.NoError(t, err)
	require.Equal(t, uintptr(slabSize), b.PageSize())

	p1 := b.Carve(1)
	require.NotNil(t, p1)
	p2 := b.Carve(1)
	require.NotNil(t, p2)
	require.NotEqual(t, p1, p2)
	require.Equal(t, uintptr(2*slabSize), b.Carved())

	require.True(t, b.Contains(p1))
	require.True(t, b.Contains(p2))
	require.False(t, b.Contains(unsafe.Pointer(uintptr(0x1))))
}

func TestCarveExhaustion(t *testing.T) {
	const slabSize = 1 << 16
	b, err := Reserve(2*slabSize, slabSize)
	require.NoError(t, err)

	require.NotNil(t, b.Carve(1))
	require.NotNil(t, b.Carve(1))
	require.Nil(t, b.Carve(1))
}

func TestMapUnmap(t *testing.T) {
	mem, err := Map(4096)
	require.NoError(t, err)
	require.Len(t, mem, 4096)
	mem[0] = 42
	require.NoError(t, Unmap(mem))
}
