// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/timandy/routine"
)

var (
	heapOnce sync.Once
	heap     *DynamicAllocator
	heapCfg  = DefaultConfig()
	heapErr  error
)

// SetGlobalConfig overrides the configuration HEAP is lazily constructed
// with. It has effect only if called before the first global Alloc, Free,
// or Realloc — once HEAP exists its configuration is fixed for the rest
// of the process (spec §5).
func SetGlobalConfig(cfg Config) {
	heapCfg = cfg
}

// heapInstance is the process-wide lazy singleton spec §5 calls HEAP.
func heapInstance() *DynamicAllocator {
	heapOnce.Do(func() {
		heap, heapErr = New(heapCfg)
	})
	if heapErr != nil {
		panic(wrapVM(heapErr, "construct global HEAP"))
	}
	return heap
}

// threadState is the per-thread record GlobalEntryPoints caches in
// goroutine-local storage (spec §5): a raw handle pointer set on the first
// Alloc or Realloc (Free never sets it), and a guard against recursion while that handle
// is itself being constructed. Go has no native per-OS-thread storage, so
// this is kept goroutine-local via routine.ThreadLocal, the closest
// equivalent the ecosystem offers.
type threadState struct {
	ptr          *DynamicAllocator
	initializing bool
}

var localState = routine.NewThreadLocalWithInitial(func() any { return &threadState{} })

func currentState() *threadState {
	return localState.Get().(*threadState)
}

type reclaimKind int

const (
	reclaimHandle reclaimKind = iota
	reclaimLoosePointer
)

// reclaimRequest is the sum type spec §9's TLS-destructor-ordering note
// names directly (there: {SizeClassArray, WordClass, LoosePointer,
// SlabToDirty}): whatever a thread let go of, forwarded to a background
// goroutine so teardown runs in a context where other goroutine-local
// state is still reachable rather than at the uncertain moment a
// finalizer fires.
type reclaimRequest struct {
	kind    reclaimKind
	handle  *DynamicAllocator
	pointer unsafe.Pointer
}

var (
	reclaimCh   = make(chan reclaimRequest, 256)
	reclaimOnce sync.Once
)

func startReclaimer() {
	reclaimOnce.Do(func() {
		go func() {
			for req := range reclaimCh {
				switch req.kind {
				case reclaimHandle:
					if err := req.handle.Close(); err != nil {
						logger.Warnw("reclaim handle close failed", "error", err)
					}
				case reclaimLoosePointer:
					releaseLoosePointer(req.pointer)
				}
			}
		}()
	})
}

// releaseLoosePointer frees p directly against the shared back end,
// bypassing any per-thread front-end cache — safe because every structure
// below the cache layer (PageAlloc's free list, each ObjectClass's
// RevocablePipe) already tolerates concurrent access from any goroutine.
func releaseLoosePointer(p unsafe.Pointer) {
	debugTrace("reclaim", "addr", p)
	b := heapInstance().back
	if !b.creek.contains(p) {
		if err := b.large.free(p); err != nil {
			logger.Warnw("reclaim large free failed", "error", err)
		}
		return
	}
	slabBase := slabOf(p, b.cfg.SlabSize)
	idx := headerAt(slabBase).classIndex
	b.classes[idx].releaseOne(p)
}

// ensureThreadHandle performs the recursive-init dance spec §5 describes:
// set INITIALIZING, clone HEAP, cache the pointer, clear the flag. A
// runtime.SetFinalizer on the goroutine-local state itself stands in for
// the thread-exit destructor the source relies on — best-effort only,
// since Go does not guarantee when (or whether) it runs; ReleaseCurrentThread
// is the deterministic alternative for long-lived worker goroutines.
func ensureThreadHandle(st *threadState) *DynamicAllocator {
	st.initializing = true
	h := heapInstance().Clone()
	st.ptr = h
	st.initializing = false
	startReclaimer()
	runtime.SetFinalizer(st, func(s *threadState) {
		if s.ptr != nil {
			reclaimCh <- reclaimRequest{kind: reclaimHandle, handle: s.ptr}
		}
	})
	return h
}

// Alloc is the process-wide malloc-style entry point (spec §5). The
// cached PTR fast path skips both the goroutine-local lookup cost and
// HEAP construction; a call observed while that caching is itself under
// way is routed straight to LargeAlloc, breaking the bootstrap cycle
// where constructing a thread's handle would otherwise need to allocate.
func Alloc(size uintptr) (unsafe.Pointer, error) {
	st := currentState()
	if st.ptr != nil {
		return st.ptr.Alloc(size)
	}
	if st.initializing {
		return heapInstance().back.large.alloc(size)
	}
	return ensureThreadHandle(st).Alloc(size)
}

// Free is the process-wide free entry point (spec §5). On the PTR fast
// path it frees through the thread's own handle; otherwise, if the
// pointer is not in the creek it goes straight to LargeAlloc, and
// otherwise it is handed to the background reclaimer rather than touched
// directly by this call, since this call has no thread handle of its own
// to attribute the free to.
func Free(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	st := currentState()
	if st.ptr != nil {
		return st.ptr.Free(p)
	}
	b := heapInstance().back
	if !b.creek.contains(p) {
		return b.large.free(p)
	}
	startReclaimer()
	reclaimCh <- reclaimRequest{kind: reclaimLoosePointer, pointer: p}
	return nil
}

// Realloc is the process-wide realloc entry point. It is disallowed
// during recursive initialization, matching spec §5's assertion.
func Realloc(p unsafe.Pointer, newSize uintptr) (unsafe.Pointer, error) {
	st := currentState()
	if st.initializing {
		panic("slagalloc: realloc is not supported during recursive initialization")
	}
	if st.ptr == nil {
		ensureThreadHandle(st)
	}
	return st.ptr.Realloc(p, newSize)
}

// ReleaseCurrentThread explicitly tears down the calling goroutine's
// cached handle, flushing its front-end caches back to HEAP. Call this
// before a long-lived worker goroutine exits: Go provides no reliable
// thread-exit hook, so without it reclamation only happens whenever (if
// ever) the goroutine-local state's finalizer runs.
func ReleaseCurrentThread() error {
	st := currentState()
	if st.ptr == nil {
		return nil
	}
	h := st.ptr
	st.ptr = nil
	runtime.SetFinalizer(st, nil)
	return h.Close()
}
