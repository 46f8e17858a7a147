// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chd

import (
	"log/slog"
	"sync"
)

// hunkCache holds verified hunks.  Entries are written once and never
// evicted; after max entries nothing more is added.  A nil *hunkCache
// caches nothing.
type hunkCache struct {
	mu     sync.RWMutex
	max    int
	hunks  map[int][]byte
	full   bool
	logger *slog.Logger
}

func newHunkCache(size int, logger *slog.Logger) *hunkCache {
	if size <= 0 {
		return nil
	}
	return &hunkCache{
		max:    size,
		hunks:  make(map[int][]byte),
		logger: logger,
	}
}

// get copies hunk i into dst if it's cached.
func (hc *hunkCache) get(i int, dst []byte) bool {
	if hc == nil {
		return false
	}
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	b, ok := hc.hunks[i]
	if ok {
		copy(dst, b)
	}
	return ok
}

func (hc *hunkCache) put(i int, data []byte) {
	if hc == nil {
		return
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if _, ok := hc.hunks[i]; ok || hc.full {
		return
	}
	if len(hc.hunks) >= hc.max {
		hc.full = true
		hc.logger.Debug("hunk cache full", "entries", len(hc.hunks))
		return
	}
	hc.hunks[i] = append([]byte(nil), data...)
}

func (hc *hunkCache) len() int {
	if hc == nil {
		return 0
	}
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return len(hc.hunks)
}
