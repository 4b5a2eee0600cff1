// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package slagalloc implements a slag-based size-class memory allocator:
// large virtual-memory reservations are carved into fixed-size slabs, each
// slab is subdivided into objects of one size class, and a per-thread
// front-end cache absorbs most allocation and free traffic before it ever
// reaches the shared, lock-free back end.
//
// DynamicAllocator is the cloneable, thread-safe entry point for embedding
// the allocator directly in a Go program:
//
//	a, err := slagalloc.New(slagalloc.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer a.Close()
//	p, err := a.Alloc(64)
//
// Clone gives a worker goroutine its own front-end cache over the same
// back-end pools:
//
//	b := a.Clone()
//	go func() {
//		defer b.Close()
//		// use b from this goroutine only
//	}()
//
// The package-level Alloc, Free, and Realloc functions instead drive a
// single lazily-constructed, process-wide allocator (HEAP in spec
// terms), suitable for wiring into cmd/slagmalloc's C ABI shim.
//
// Changelog
//
// 2024-06-01 Initial slag/size-class core, ported from a single-threaded
// free-list design to a lock-free, multi-thread one.
package slagalloc
