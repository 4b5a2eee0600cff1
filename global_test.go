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

func TestMain(m *testing.M) {
	SetGlobalConfig(testConfig())
	os.Exit(m.Run())
}

func TestGlobalAllocFreeRoundTrip(t *testing.T) {
	p, err := Alloc(64)
	require.NoError(t, err)
	require.NotNil(t, p)
	b := unsafe.Slice((*byte)(p), 64)
	b[0] = 9
	require.NoError(t, Free(p))
}

func TestGlobalReallocGrows(t *testing.T) {
	p, err := Alloc(8)
	require.NoError(t, err)
	np, err := Realloc(p, 256)
	require.NoError(t, err)
	require.NotNil(t, np)
	require.NoError(t, Free(np))
}

// Scenario 6 (spec §8): simulate a recursive calloc from inside the
// TLS-destructor hookup by setting INITIALIZING before invoking alloc.
// Must return a non-null pointer routed via LargeAlloc, and it must be
// freeable once the flag is cleared.
func TestGlobalRecursiveInitRoutesToLargeAlloc(t *testing.T) {
	require.NoError(t, ReleaseCurrentThread())
	st := currentState()
	require.Nil(t, st.ptr, "handle must be clear right after ReleaseCurrentThread")

	st.initializing = true
	p, err := Alloc(64)
	st.initializing = false
	require.NoError(t, err)
	require.NotNil(t, p)

	require.False(t, heapInstance().back.creek.contains(p), "recursive-init alloc must bypass the creek via LargeAlloc")
	require.NoError(t, Free(p))
}

func TestReleaseCurrentThreadFlushesHandle(t *testing.T) {
	p, err := Alloc(16)
	require.NoError(t, err)
	require.NoError(t, Free(p))

	st := currentState()
	require.NotNil(t, st.ptr)
	require.NoError(t, ReleaseCurrentThread())
	require.Nil(t, currentState().ptr)
}
