// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import "go.uber.org/zap"

// logger is the package-wide structured logger. It defaults to a no-op so
// the hot alloc/free path never pays for logging unless a caller opts in
// with SetLogger — logging is an external collaborator per spec §1, this
// is only the debug trace the teacher gated behind its own `trace`
// constant (cznic/memory's Malloc/Free/Calloc/Realloc Fprintf calls).
var logger = zap.NewNop().Sugar()

// SetLogger installs l as the package logger. Pass nil to restore the
// no-op default. Typical use is wiring *zap.Logger.Sugar() from the host
// program, or enabling zap.NewDevelopment() while debugging a leak.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		logger = zap.NewNop().Sugar()
		return
	}
	logger = l
}
