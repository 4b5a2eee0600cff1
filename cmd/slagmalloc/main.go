// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command slagmalloc builds a C ABI shared library (-buildmode=c-shared)
// exporting malloc, free, calloc, realloc, posix_memalign, and
// aligned_alloc against the package-wide HEAP, for LD_PRELOAD-style
// replacement of a native program's allocator (spec §6).
package main

import "C"

import (
	"os"
	"sync"
	"unsafe"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/cznic/slagalloc"
	"github.com/cznic/slagalloc/vm"
)

var (
	debugTrace = pflag.Bool("slagmalloc-trace", false, "log every malloc/free/calloc/realloc call")
	dirtyPages = pflag.Bool("slagmalloc-dirty", false, "force every page of a released slab to commit before reuse")
)

// alignedBlocks tracks the raw mmap'd region behind every pointer handed
// out by posix_memalign/aligned_alloc, keyed by the aligned pointer
// actually returned to the caller. The allocator's size classes and
// LargeAlloc path have no notion of an arbitrary caller-chosen alignment,
// so these two calls bypass slagalloc.Alloc entirely and map their own
// oversized region directly through vm — the same pattern the teacher's
// own mmap_windows.go uses to track open file-mapping handles outside the
// allocator proper (a map[uintptr]... kept by whichever layer actually
// did the extra mapping).
var (
	alignedMu     sync.Mutex
	alignedBlocks = map[uintptr][]byte{}
)

// allocAligned maps enough extra room to carve an aligned pointer out of
// the middle of the mapping, then records the underlying slice so free
// can recover and unmap the whole region.
func allocAligned(size, alignment uintptr) (unsafe.Pointer, error) {
	mem, err := vm.Map(size + alignment)
	if err != nil {
		return nil, err
	}
	base := uintptr(unsafe.Pointer(&mem[0]))
	aligned := (base + alignment - 1) &^ (alignment - 1)
	alignedMu.Lock()
	alignedBlocks[aligned] = mem
	alignedMu.Unlock()
	return unsafe.Pointer(aligned), nil
}

func init() {
	pflag.Parse()
	if *debugTrace {
		l, err := zap.NewDevelopment()
		if err == nil {
			slagalloc.SetLogger(l.Sugar())
		}
	}
	cfg := slagalloc.DefaultConfig()
	if *dirtyPages {
		cfg.Dirty = func(block []byte) {
			for i := range block {
				block[i] = 0
			}
		}
	}
	slagalloc.SetGlobalConfig(cfg)
}

//export malloc
func malloc(size C.size_t) unsafe.Pointer {
	p, err := slagalloc.Alloc(uintptr(size))
	if err != nil {
		return nil
	}
	return p
}

//export free
func free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	alignedMu.Lock()
	mem, ok := alignedBlocks[uintptr(p)]
	if ok {
		delete(alignedBlocks, uintptr(p))
	}
	alignedMu.Unlock()
	if ok {
		if err := vm.Unmap(mem); err != nil {
			os.Stderr.WriteString("slagmalloc: free: " + err.Error() + "\n")
		}
		return
	}
	if err := slagalloc.Free(p); err != nil {
		os.Stderr.WriteString("slagmalloc: free: " + err.Error() + "\n")
	}
}

//export calloc
func calloc(nmemb, size C.size_t) unsafe.Pointer {
	total := uintptr(nmemb) * uintptr(size)
	p, err := slagalloc.Alloc(total)
	if err != nil {
		return nil
	}
	b := unsafe.Slice((*byte)(p), int(total))
	for i := range b {
		b[i] = 0
	}
	return p
}

//export realloc
func realloc(p unsafe.Pointer, size C.size_t) unsafe.Pointer {
	np, err := slagalloc.Realloc(p, uintptr(size))
	if err != nil {
		return nil
	}
	return np
}

//export posix_memalign
func posix_memalign(memptr *unsafe.Pointer, alignment, size C.size_t) C.int {
	align := uintptr(alignment)
	if align == 0 || align&(align-1) != 0 || align%unsafe.Sizeof(uintptr(0)) != 0 {
		return C.int(22) // EINVAL
	}
	p, err := allocAligned(uintptr(size), align)
	if err != nil {
		return C.int(12) // ENOMEM
	}
	*memptr = p
	return 0
}

//export aligned_alloc
func aligned_alloc(alignment, size C.size_t) unsafe.Pointer {
	align := uintptr(alignment)
	if align == 0 || align&(align-1) != 0 {
		return nil
	}
	p, err := allocAligned(uintptr(size), align)
	if err != nil {
		return nil
	}
	return p
}

func main() {}
