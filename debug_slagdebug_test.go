// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build slagdebug

package slagalloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestCheckFreeRejectsForeignPointer(t *testing.T) {
	cfg := testConfig()
	d, err := New(cfg)
	require.NoError(t, err)
	defer d.Close()

	var x int
	require.ErrorIs(t, d.Free(unsafe.Pointer(&x)), ErrInvalidFree)
}

func TestCheckFreeRejectsDoubleFree(t *testing.T) {
	cfg := testConfig()
	d, err := New(cfg)
	require.NoError(t, err)
	defer d.Close()

	p, err := d.Alloc(1 << 20)
	require.NoError(t, err)
	require.NoError(t, d.Free(p))
	require.ErrorIs(t, d.Free(p), ErrInvalidFree)
}
