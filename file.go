// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chd

import (
	"fmt"

	"github.com/bpowers/chd/internal/header"
	"github.com/bpowers/chd/internal/ondisk"
)

func openSource(path string, o *options) (ondisk.Source, error) {
	if !o.noMmap {
		return ondisk.OpenMmap(path)
	}
	f, err := ondisk.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// OpenFile opens the CHD file at path.  The file is memory mapped unless
// WithoutMmap is given, and is released by Close.
func OpenFile(path string, opts ...Option) (*Chd, error) {
	o := newOptions(opts)
	src, err := openSource(path, &o)
	if err != nil {
		return nil, err
	}
	c, err := open(src, src, &o)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("chd.OpenFile(%s): %w", path, err)
	}
	return c, nil
}

// ReadHeader reads only the header of the CHD file at path.
func ReadHeader(path string) (Header, error) {
	src, err := ondisk.OpenFile(path)
	if err != nil {
		return Header{}, err
	}
	defer src.Close()

	h, err := header.Read(src)
	if err != nil {
		return Header{}, fmt.Errorf("header.Read(%s): %w", path, err)
	}
	return *h, nil
}
