// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/cznic/slagalloc/vm"
)

// largeHeaderSize reserves one full OS page ahead of the user pointer to
// record the mapping's total length. Spec §4.7 requires the oversized
// path to map "n + page_size" bytes and return "base + page_size", so
// that the returned pointer is guaranteed page-aligned (p - base ==
// page_size); mmap-alloc's own oversized path (original_source/mmap-alloc)
// hardcodes the same page-size offset for the same reason.
var largeHeaderSize = uintptr(os.Getpagesize())

// largeAlloc is the bypass path for requests above the size-class map's
// MaxSize: a direct mmap per allocation, with no pooling or reuse (spec
// §4.7). There is deliberately no shared state here — every operation maps
// or unmaps independently, so LargeAlloc needs no synchronization of its
// own beyond what the OS already provides for concurrent mmap/munmap.
type largeAlloc struct{}

func newLargeAlloc() *largeAlloc { return &largeAlloc{} }

// alloc maps size+largeHeaderSize bytes directly and returns a pointer
// past the header word, which records the mapping's total length for free
// and commitment. A failed mmap is retried once before reporting
// ErrOutOfMemory — mmap-alloc's issue history shows ENOMEM can be
// transient under memory pressure even when the request would eventually
// succeed. The retry is on any mmap error; no page is kept mapped between
// attempts.
func (a *largeAlloc) alloc(size uintptr) (unsafe.Pointer, error) {
	total := roundup(size+largeHeaderSize, mallocAlign)
	mem, err := vm.Map(total)
	if err != nil {
		mem, err = vm.Map(total)
		if err != nil {
			return nil, errors.Wrapf(ErrOutOfMemory, "large allocation mmap: %v", err)
		}
	}
	base := unsafe.Pointer(&mem[0])
	*(*uintptr)(base) = total
	p := unsafe.Pointer(uintptr(base) + largeHeaderSize)
	debugRegisterLarge(p)
	return p, nil
}

// free unmaps a pointer previously returned by alloc. p must not be reused
// after this call — the whole mapping, header included, is released.
func (a *largeAlloc) free(p unsafe.Pointer) error {
	debugForgetLarge(p)
	total, base := a.headerOf(p)
	mem := unsafe.Slice((*byte)(base), int(total))
	return wrapVM(vm.Unmap(mem), "large allocation munmap")
}

// commitment reports the usable byte count behind p, spec's
// get_commitment for the oversized path: the mapped length minus the
// header page this package prepends.
func (a *largeAlloc) commitment(p unsafe.Pointer) uintptr {
	total, _ := a.headerOf(p)
	return total - largeHeaderSize
}

func (a *largeAlloc) headerOf(p unsafe.Pointer) (total uintptr, base unsafe.Pointer) {
	base = unsafe.Pointer(uintptr(p) - largeHeaderSize)
	total = *(*uintptr)(base)
	return total, base
}
