// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vm is the raw virtual-memory collaborator the allocator core
// consumes: aligned reservation, one-shot mapping for large allocations,
// and unmapping. It never interprets the memory it hands out — no size
// classes, no slabs, no bookkeeping beyond what the OS mapping needs.
package vm
