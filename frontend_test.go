// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func testFrontEndCacheRoundTrip(t *testing.T, kind FrontEndKind) {
	const slabSize = 1 << 16
	oc := newTestObjectClass(t, 16, slabSize)
	fc := newFrontEndCache(kind, 4)

	var got []unsafe.Pointer
	for i := 0; i < 20; i++ {
		p := fc.alloc(oc)
		require.NotNil(t, p)
		got = append(got, p)
	}
	seen := map[unsafe.Pointer]bool{}
	for _, p := range got {
		require.False(t, seen[p], "duplicate pointer from front-end cache")
		seen[p] = true
	}
	for _, p := range got {
		fc.free(oc, p)
	}
	fc.drain(oc)
}

func TestMagazineCacheRoundTrip(t *testing.T) {
	testFrontEndCacheRoundTrip(t, MagazineCache)
}

func TestLocalCacheRoundTrip(t *testing.T) {
	testFrontEndCacheRoundTrip(t, LocalCache)
}
