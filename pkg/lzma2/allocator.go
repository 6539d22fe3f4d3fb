// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lzma2

import (
	"errors"
	"sync"
)

// ErrNoMemory is returned by Alloc when a dictionary does not fit.
var ErrNoMemory = errors.New("lzma2: dictionary does not fit into the allocator budget")

// Allocator accounts for the memory taken by decoder dictionaries. Every
// successful Alloc must be paired with a Free of the same size.
type Allocator interface {
	Alloc(size uint32) error
	Free(size uint32)
}

// Arena is an Allocator with a fixed budget. It is safe for concurrent use.
type Arena struct {
	mu    sync.Mutex
	limit uint64
	used  uint64
}

// NewArena returns an arena holding at most limit bytes.
func NewArena(limit uint64) *Arena {
	return &Arena{limit: limit}
}

// Alloc implements Allocator.
func (a *Arena) Alloc(size uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.used+uint64(size) > a.limit {
		return ErrNoMemory
	}
	a.used += uint64(size)
	return nil
}

// Free implements Allocator.
func (a *Arena) Free(size uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if uint64(size) > a.used {
		a.used = 0
		return
	}
	a.used -= uint64(size)
}

// InUse returns the number of bytes currently allocated.
func (a *Arena) InUse() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}
