// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.
//
// Modifications (c) 2024 The Slagalloc Authors.

//go:build unix

package vm

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func reserve(size uintptr) ([]byte, error) {
	return mmapAnon(size)
}

// Map allocates size bytes directly from the OS, independent of any creek.
// Used by LargeAlloc (spec §4.7) and by the one-time size-class metadata
// allocation (spec §4.6), which must never go through the allocator itself.
func Map(size uintptr) ([]byte, error) {
	return mmapAnon(size)
}

func mmapAnon(size uintptr) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "vm: mmap")
	}
	return b, nil
}

// Unmap releases a mapping obtained from Map or from Reserve's Block.
func Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return errors.Wrap(unix.Munmap(b), "vm: munmap")
}

// Decommit advises the kernel the pages are no longer needed, without
// releasing the address range — the debug-only dirty/decommit hook
// PageAlloc.Release can invoke (spec §4.2).
func Decommit(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return errors.Wrap(unix.Madvise(b, unix.MADV_DONTNEED), "vm: madvise")
}
