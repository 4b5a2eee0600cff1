// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package vm

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

func reserve(size uintptr) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, errors.Wrap(err, "vm: VirtualAlloc reserve")
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)), nil
}

// Map allocates size bytes directly from the OS, independent of any creek.
func Map(size uintptr) ([]byte, error) {
	return reserve(size)
}

// Unmap releases a mapping obtained from Map or from Reserve's Block.
func Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	return errors.Wrap(windows.VirtualFree(addr, 0, windows.MEM_RELEASE), "vm: VirtualFree")
}

// Decommit is the Windows analogue of madvise(MADV_DONTNEED): release the
// physical pages behind b but keep its address range reserved.
func Decommit(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	return errors.Wrap(windows.VirtualFree(addr, uintptr(len(b)), windows.MEM_DECOMMIT), "vm: VirtualFree decommit")
}
