// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chd

import (
	"io"
	"log/slog"
)

// Option configures Open and OpenFile.
type Option func(*options)

type options struct {
	logger             *slog.Logger
	parent             *Chd
	parentOpener       ParentOpener
	cacheSize          int
	parentContentCheck bool
	noMmap             bool
}

func newOptions(opts []Option) options {
	var o options
	o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets an optional logger for debug output about opening
// files and linking parents.  If not provided, nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithParent supplies the parent of a differencing file.  On success the
// child takes ownership of it: closing the child closes the parent.
func WithParent(parent *Chd) Option {
	return func(o *options) {
		o.parent = parent
	}
}

// WithParentOpener supplies a callback used to find the parent of a
// differencing file when WithParent isn't given.
func WithParentOpener(opener ParentOpener) Option {
	return func(o *options) {
		o.parentOpener = opener
	}
}

// WithHunkCache keeps up to n decoded hunks in memory.  Entries are
// never evicted; once the cache is full further hunks aren't cached.
func WithHunkCache(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithParentContentCheck verifies the parent's content digests before
// linking it, rather than trusting the digest stored in its header.
func WithParentContentCheck() Option {
	return func(o *options) {
		o.parentContentCheck = true
	}
}

// WithoutMmap makes OpenFile read with pread(2) instead of mapping the
// file into memory.
func WithoutMmap() Option {
	return func(o *options) {
		o.noMmap = true
	}
}
