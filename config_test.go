// Copyright 2024 The Slagalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slagalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigClassCount(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 25, cfg.numClasses())
	require.Equal(t, uintptr(256), cfg.smallTierMax())
}
