// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build slagdebug

package slagalloc

import (
	"sync"
	"unsafe"
)

// liveLarge tracks every outstanding LargeAlloc pointer so checkFree can
// tell a foreign or double free apart from a legitimate one; the pooled
// size classes need no equivalent table, since creek.contains plus the
// class index stored in the owning slag header is enough to validate
// those (spec §7.2, A.1).
var liveLarge sync.Map

func debugRegisterLarge(p unsafe.Pointer) {
	liveLarge.Store(uintptr(p), struct{}{})
}

func debugForgetLarge(p unsafe.Pointer) {
	liveLarge.Delete(uintptr(p))
}

// checkFree is the per-call sanity check this build tag pays for (spec
// A.1, ErrInvalidFree's doc comment): does p look like something this
// allocator family actually produced.
func (d *DynamicAllocator) checkFree(p unsafe.Pointer) error {
	if d.back.creek.contains(p) {
		slabBase := slabOf(p, d.back.cfg.SlabSize)
		idx := headerAt(slabBase).classIndex
		if idx < 0 || int(idx) >= len(d.back.classes) {
			return ErrInvalidFree
		}
		return nil
	}
	if _, ok := liveLarge.Load(uintptr(p)); !ok {
		return ErrInvalidFree
	}
	return nil
}

func debugTrace(event string, args ...interface{}) {
	logger.Debugw(event, args...)
}
