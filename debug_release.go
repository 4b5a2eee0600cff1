// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !slagdebug

package slagalloc

import "unsafe"

// Release builds carry none of the slagdebug bookkeeping below: every hook
// is a no-op the compiler inlines away, so an invalid free is undefined
// behavior by contract (spec §7.2) rather than a checked error.

func debugRegisterLarge(unsafe.Pointer) {}

func debugForgetLarge(unsafe.Pointer) {}

func (d *DynamicAllocator) checkFree(unsafe.Pointer) error { return nil }

func debugTrace(string, ...interface{}) {}
