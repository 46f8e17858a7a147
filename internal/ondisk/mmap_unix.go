// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build linux || darwin

package ondisk

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Mmap is a read-only memory map of a whole container.  Close must not
// race with ReadAt.
type Mmap struct {
	data     []byte
	isClosed atomic.Bool
}

// OpenMmap maps path read-only.  Hunk access is scattered across the
// file, so the kernel is told not to read ahead.
func OpenMmap(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	defer func() { _ = f.Close() }()

	stats, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	size := stats.Size()
	if size == 0 {
		return &Mmap{}, nil
	}
	if size != int64(int(size)) {
		return nil, fmt.Errorf("file %s too large to map: %d bytes", path, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("unix.Mmap(%s): %w", path, err)
	}
	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("madvise: %w", err)
	}
	return &Mmap{data: data}, nil
}

func (m *Mmap) ReadAt(p []byte, off int64) (int, error) {
	if m.isClosed.Load() {
		return 0, errClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("mmap: negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Mmap) Size() int64 {
	return int64(len(m.data))
}

func (m *Mmap) Close() error {
	if m.isClosed.Swap(true) {
		return nil
	}
	if m.data == nil {
		return nil
	}
	return unix.Munmap(m.data)
}
