// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N increasing across the test
// binary. Engine tests use it for subject ids so that propagations in
// one test never hit the per-subject cache of another.
//
//	subject := propagation.Artifact{ID: testutil.UniqueID("card"), Quality: 50}
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
