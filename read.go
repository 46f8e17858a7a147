// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bpowers/chd/internal/codec"
	"github.com/bpowers/chd/internal/hunkmap"
	"github.com/bpowers/chd/internal/ondisk"
)

// ReadHunk returns the decoded contents of hunk i, always HunkSize
// bytes long.  The returned slice belongs to the caller.  A failure
// affects only this hunk: the error is a *HunkError and other hunks
// remain readable.
func (c *Chd) ReadHunk(i int) ([]byte, error) {
	dst := make([]byte, c.h.HunkBytes)
	if err := c.ReadHunkInto(dst, i); err != nil {
		return nil, err
	}
	return dst, nil
}

// ReadHunkInto decodes hunk i into dst, which must be at least HunkSize
// bytes long.
func (c *Chd) ReadHunkInto(dst []byte, i int) error {
	if c.isClosed.Load() {
		return errClosed
	}
	if i < 0 || i >= len(c.m) {
		return &HunkError{Hunk: i, Err: fmt.Errorf("%w: [0, %d)", ErrIndexOutOfRange, len(c.m))}
	}
	if len(dst) < int(c.h.HunkBytes) {
		return &HunkError{Hunk: i, Err: fmt.Errorf("%w: buffer of %d bytes, hunks are %d",
			ErrSizeMismatch, len(dst), c.h.HunkBytes)}
	}
	dst = dst[:c.h.HunkBytes]

	if c.cache.get(i, dst) {
		return nil
	}
	if err := c.resolve(dst, i); err != nil {
		return &HunkError{Hunk: i, Err: err}
	}
	c.cache.put(i, dst)
	return nil
}

// resolve follows self references from hunk i down to the hunk that
// holds data, decodes it and checks it against every entry of the chain.
func (c *Chd) resolve(dst []byte, i int) error {
	chain := []int{i}
	for c.m[chain[len(chain)-1]].Kind == hunkmap.Self {
		// validated at open: references always point backwards
		chain = append(chain, int(c.m[chain[len(chain)-1]].Offset))
	}

	base := chain[len(chain)-1]
	if c.cache.get(base, dst) {
		chain = chain[:len(chain)-1]
	} else if err := c.readEntry(dst, base); err != nil {
		if base != i {
			return fmt.Errorf("via hunk %d: %w", base, err)
		}
		return err
	}

	for _, j := range chain {
		if err := c.m[j].Check(dst); err != nil {
			if j != i {
				return fmt.Errorf("via hunk %d: %w", j, err)
			}
			return err
		}
	}
	return nil
}

// readEntry materialises a hunk that isn't a self reference.
func (c *Chd) readEntry(dst []byte, i int) error {
	e := c.m[i]
	switch e.Kind {
	case hunkmap.Compressed:
		src := make([]byte, e.Length)
		if err := ondisk.ReadFull(c.r, src, e.Offset); err != nil {
			return err
		}
		tag := c.h.Compressors[e.Codec]
		out, err := codec.Decompress(tag, src, len(dst))
		if err != nil {
			return fmt.Errorf("codec %s: %w", tag, err)
		}
		copy(dst, out)
	case hunkmap.Uncompressed:
		if err := ondisk.ReadFull(c.r, dst, e.Offset); err != nil {
			return err
		}
	case hunkmap.Mini:
		fillPattern(dst, e.Offset)
	case hunkmap.Parent:
		if c.parent == nil {
			return fmt.Errorf("%w: hunk refers to a parent", ErrParentRequired)
		}
		if err := c.parent.readSpan(dst, e.Offset*c.parentScale()); err != nil {
			return fmt.Errorf("parent: %w", err)
		}
	default:
		return fmt.Errorf("%w: hunk has kind %s", ErrCorruptMap, e.Kind)
	}
	return nil
}

// readSpan fills dst with hunk data starting at byte off, crossing hunk
// boundaries as needed.  It doesn't stop at LogicalBytes.
func (c *Chd) readSpan(dst []byte, off uint64) error {
	hunkBytes := uint64(c.h.HunkBytes)
	var buf []byte
	for len(dst) > 0 {
		i, skip := off/hunkBytes, off%hunkBytes
		if skip == 0 && uint64(len(dst)) >= hunkBytes {
			if err := c.ReadHunkInto(dst[:hunkBytes], int(i)); err != nil {
				return err
			}
			dst, off = dst[hunkBytes:], off+hunkBytes
			continue
		}
		if buf == nil {
			buf = make([]byte, hunkBytes)
		}
		if err := c.ReadHunkInto(buf, int(i)); err != nil {
			return err
		}
		n := copy(dst, buf[skip:])
		dst, off = dst[n:], off+uint64(n)
	}
	return nil
}

func fillPattern(dst []byte, pattern uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], pattern)
	for i := 0; i < len(dst); i += len(b) {
		copy(dst[i:], b[:])
	}
}

// ReadAt reads the logical contents of the file, the concatenation of
// every hunk truncated at LogicalLength.
func (c *Chd) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("chd.ReadAt: negative offset")
	}
	size := c.LogicalLength()
	if off >= size {
		return 0, io.EOF
	}
	want := len(p)
	if rem := size - off; int64(want) > rem {
		p = p[:rem]
	}
	if err := c.readSpan(p, uint64(off)); err != nil {
		return 0, err
	}
	if len(p) < want {
		return len(p), io.EOF
	}
	return len(p), nil
}
