// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package ondisk provides the byte-range sources a CHD container is read
// from: a read-only memory map, or an *os.File read with pread(2).
package ondisk

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/bpowers/chd/internal/chderr"
)

var errClosed = errors.New("source is closed")

// Source is a random-access, sized, closable view of a container.
type Source interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// ReadFull fills p from r at off.  A short read (including io.EOF) means
// the container is smaller than its structures claim and reports
// ErrTruncatedInput; any other failure reports ErrIO wrapping the cause.
func ReadFull(r io.ReaderAt, p []byte, off uint64) error {
	if len(p) == 0 {
		return nil
	}
	if off > math.MaxInt64-uint64(len(p)) {
		return fmt.Errorf("%w: %d bytes at offset %d", chderr.ErrTruncatedInput, len(p), off)
	}
	n, err := r.ReadAt(p, int64(off))
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: read %d of %d bytes at offset %d", chderr.ErrTruncatedInput, n, len(p), off)
	}
	return fmt.Errorf("%w: ReadAt(%d, len: %d): %w", chderr.ErrIO, off, len(p), err)
}

// Size returns the byte length of r if it can be determined, or -1.
func Size(r io.ReaderAt) int64 {
	switch s := r.(type) {
	case interface{ Size() int64 }:
		return s.Size()
	case interface{ Stat() (os.FileInfo, error) }:
		fi, err := s.Stat()
		if err != nil || !fi.Mode().IsRegular() {
			return -1
		}
		return fi.Size()
	}
	return -1
}
