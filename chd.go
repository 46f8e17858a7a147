// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chd

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/bpowers/chd/internal/checksum"
	"github.com/bpowers/chd/internal/codec"
	"github.com/bpowers/chd/internal/header"
	"github.com/bpowers/chd/internal/hunkmap"
	"github.com/bpowers/chd/internal/metadata"
)

type (
	Header       = header.Header
	Metadata     = metadata.Entry
	MetadataTag  = metadata.Tag
	MetadataIter = metadata.Iter
	SHA1Digest   = checksum.SHA1Digest
	MD5Digest    = checksum.MD5Digest
	CodecTag     = codec.Tag
	MapEntry     = hunkmap.Entry
	HunkKind     = hunkmap.Kind
)

const (
	HunkCompressed   = hunkmap.Compressed
	HunkUncompressed = hunkmap.Uncompressed
	HunkMini         = hunkmap.Mini
	HunkSelf         = hunkmap.Self
	HunkParent       = hunkmap.Parent
)

// CodecSupported reports whether hunks compressed with t can be decoded.
// Files using other codecs open, but those hunks fail with
// ErrUnknownCodec.
func CodecSupported(t CodecTag) bool {
	return codec.Supported(t)
}

// Chd is an open CHD file.  Its header and hunk map are read and
// validated by Open and never change afterwards.
type Chd struct {
	r      io.ReaderAt
	closer io.Closer
	h      *header.Header
	m      hunkmap.Map
	parent *Chd
	cache  *hunkCache
	logger *slog.Logger

	isClosed atomic.Bool
}

// Open reads a CHD file from r.  The caller keeps ownership of r and
// must keep it open until the Chd is closed.  If the file is a
// differencing image its parent must be supplied with WithParent or
// WithParentOpener.
func Open(r io.ReaderAt, opts ...Option) (*Chd, error) {
	o := newOptions(opts)
	return open(r, nil, &o)
}

func open(r io.ReaderAt, closer io.Closer, o *options) (*Chd, error) {
	h, err := header.Read(r)
	if err != nil {
		return nil, fmt.Errorf("header.Read: %w", err)
	}
	m, err := hunkmap.Decode(r, h)
	if err != nil {
		return nil, fmt.Errorf("hunkmap.Decode: %w", err)
	}
	parent, err := resolveParent(h, o)
	if err != nil {
		return nil, err
	}

	c := &Chd{
		r:      r,
		closer: closer,
		h:      h,
		m:      m,
		parent: parent,
		cache:  newHunkCache(o.cacheSize, o.logger),
		logger: o.logger,
	}
	if parent != nil {
		if err := c.checkParentRefs(); err != nil {
			// the parent stays with whoever supplied it
			if o.parent == nil {
				_ = parent.Close()
			}
			return nil, err
		}
	}

	o.logger.Debug("opened chd",
		"version", h.Version,
		"hunks", h.HunkCount,
		"hunkBytes", h.HunkBytes,
		"logicalBytes", h.LogicalBytes,
		"codecs", fmt.Sprint(h.Codecs()),
		"parent", parent != nil)
	return c, nil
}

func (c *Chd) HunkCount() int {
	return int(c.h.HunkCount)
}

func (c *Chd) HunkSize() int {
	return int(c.h.HunkBytes)
}

// LogicalLength is the size in bytes of the data the file stores.
func (c *Chd) LogicalLength() int64 {
	return int64(c.h.LogicalBytes)
}

func (c *Chd) UnitSize() int {
	return int(c.h.UnitBytes)
}

func (c *Chd) Version() int {
	return int(c.h.Version)
}

// Header returns a copy of the file's header.
func (c *Chd) Header() Header {
	return *c.h
}

// Parent returns the linked parent, or nil.
func (c *Chd) Parent() *Chd {
	return c.parent
}

// ParentID returns the identity of the parent this file declares, and
// false if it isn't a differencing image.
func (c *Chd) ParentID() (ParentID, bool) {
	if !c.h.HasParent() {
		return ParentID{}, false
	}
	return parentID(c.h), true
}

// MapEntry describes how hunk i is stored.
func (c *Chd) MapEntry(i int) (MapEntry, error) {
	if i < 0 || i >= len(c.m) {
		return MapEntry{}, &HunkError{Hunk: i, Err: fmt.Errorf("%w: [0, %d)", ErrIndexOutOfRange, len(c.m))}
	}
	return c.m[i], nil
}

// Close releases the file and the parent chain it owns.  It is safe to
// call more than once.
func (c *Chd) Close() error {
	if c.isClosed.Swap(true) {
		return nil
	}
	var err error
	if c.parent != nil {
		err = c.parent.Close()
	}
	if c.closer != nil {
		if cerr := c.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
