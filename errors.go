// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import "github.com/pkg/errors"

// ErrOutOfMemory is returned (never panicked), wrapped with the mmap
// error's text, when a direct LargeAlloc mapping fails — whether the
// request was oversized or the creek was exhausted and the request fell
// back to LargeAlloc (spec §7.1). It is the only error Alloc returns.
// Free, and Realloc when it frees the old pointer, can also return a
// wrapped munmap failure from the LargeAlloc path, or ErrInvalidFree
// under slagdebug.
var ErrOutOfMemory = errors.New("slagalloc: out of memory")

// ErrInvalidFree is returned by debug-only sanity checks (build tag
// slagdebug) when a pointer handed to Free does not look like it was
// produced by this allocator. Release builds treat an invalid free as
// undefined behavior by contract, per spec §7.2.
var ErrInvalidFree = errors.New("slagalloc: invalid free")

func wrapVM(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "slagalloc: %s", context)
}
