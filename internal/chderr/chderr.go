// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package chderr holds the error values shared by every layer of the
// CHD reader.  The root package re-exports them.
package chderr

import "errors"

var (
	ErrInvalidFormat          = errors.New("invalid CHD format")
	ErrUnsupportedVersion     = errors.New("unsupported CHD version")
	ErrTruncatedInput         = errors.New("truncated input")
	ErrCorruptMap             = errors.New("corrupt hunk map")
	ErrUnknownCodec           = errors.New("unknown codec")
	ErrDecompressionFailed    = errors.New("decompression failed")
	ErrSizeMismatch           = errors.New("decompressed size mismatch")
	ErrChecksumMismatch       = errors.New("checksum mismatch")
	ErrParentRequired         = errors.New("parent CHD required")
	ErrParentChecksumMismatch = errors.New("parent checksum mismatch")
	ErrIndexOutOfRange        = errors.New("hunk index out of range")
	ErrIO                     = errors.New("i/o error")
)
