// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chd

import (
	"fmt"
	"math/bits"

	"github.com/bpowers/chd/internal/header"
	"github.com/bpowers/chd/internal/hunkmap"
)

// ParentID is the identity a differencing file records for its parent:
// the parent's SHA-1 for v3 and later, its MD5 for v1 and v2.
type ParentID struct {
	Version uint32
	SHA1    SHA1Digest
	MD5     MD5Digest
}

func (id ParentID) String() string {
	if id.Version <= 2 {
		return "md5:" + id.MD5.String()
	}
	return "sha1:" + id.SHA1.String()
}

// Matches reports whether h is the header of the file id names.
func (id ParentID) Matches(h *Header) bool {
	if id.Version <= 2 {
		return h.MD5 == id.MD5
	}
	return h.SHA1 == id.SHA1
}

// ParentOpener opens the parent named by id.  The returned file is owned
// by the child being opened.
type ParentOpener func(id ParentID) (*Chd, error)

func parentID(h *header.Header) ParentID {
	return ParentID{Version: h.Version, SHA1: h.ParentSHA1, MD5: h.ParentMD5}
}

// resolveParent finds and checks the parent h declares, if any.
func resolveParent(h *header.Header, o *options) (*Chd, error) {
	if !h.HasParent() {
		if o.parent != nil {
			o.logger.Debug("ignoring parent of a file that doesn't declare one")
		}
		return nil, nil
	}

	id := parentID(h)
	parent := o.parent
	owned := false
	if parent == nil {
		if o.parentOpener == nil {
			return nil, fmt.Errorf("%w: %s", ErrParentRequired, id)
		}
		var err error
		parent, err = o.parentOpener(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParentRequired, id, err)
		}
		if parent == nil {
			return nil, fmt.Errorf("%w: %s: opener found nothing", ErrParentRequired, id)
		}
		owned = true
	}

	if err := checkParent(parent, id, o); err != nil {
		if owned {
			_ = parent.Close()
		}
		return nil, err
	}
	o.logger.Debug("linked parent", "id", id.String(), "version", parent.Version())
	return parent, nil
}

func checkParent(parent *Chd, id ParentID, o *options) error {
	if !id.Matches(parent.h) {
		return fmt.Errorf("%w: want %s, parent is sha1:%s md5:%s",
			ErrParentChecksumMismatch, id, parent.h.SHA1, parent.h.MD5)
	}
	if o.parentContentCheck {
		if err := parent.Verify(); err != nil {
			return fmt.Errorf("%w: parent content: %w", ErrParentChecksumMismatch, err)
		}
	}
	return nil
}

// parentScale is the size of the units parent map entries count in:
// units for v5, whole parent hunks before that.
func (c *Chd) parentScale() uint64 {
	if c.h.Version >= 5 {
		return uint64(c.parent.h.UnitBytes)
	}
	return uint64(c.parent.h.HunkBytes)
}

// checkParentRefs makes sure every parent entry lies inside the parent.
func (c *Chd) checkParentRefs() error {
	limit := uint64(c.parent.h.HunkCount) * uint64(c.parent.h.HunkBytes)
	for i, e := range c.m {
		if e.Kind != hunkmap.Parent {
			continue
		}
		hi, off := bits.Mul64(e.Offset, c.parentScale())
		if hi != 0 || off > limit || uint64(c.h.HunkBytes) > limit-off {
			return fmt.Errorf("%w: hunk %d refers to parent offset %d beyond %d bytes",
				ErrCorruptMap, i, e.Offset, limit)
		}
	}
	return nil
}
