// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ondisk

import (
	"fmt"
	"os"
	"sync/atomic"
)

// File reads a container with pread(2) on an open *os.File.
type File struct {
	f        *os.File
	size     int64
	isClosed atomic.Bool
}

func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	stats, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	return &File{f: f, size: stats.Size()}, nil
}

func (s *File) ReadAt(p []byte, off int64) (int, error) {
	if s.isClosed.Load() {
		return 0, errClosed
	}
	return s.f.ReadAt(p, off)
}

func (s *File) Size() int64 {
	return s.size
}

func (s *File) Close() error {
	if s.isClosed.Swap(true) {
		return nil
	}
	return s.f.Close()
}
