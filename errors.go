// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chd

import (
	"errors"
	"fmt"

	"github.com/bpowers/chd/internal/chderr"
	"github.com/bpowers/chd/internal/metadata"
)

var (
	ErrInvalidFormat          = chderr.ErrInvalidFormat
	ErrUnsupportedVersion     = chderr.ErrUnsupportedVersion
	ErrTruncatedInput         = chderr.ErrTruncatedInput
	ErrCorruptMap             = chderr.ErrCorruptMap
	ErrUnknownCodec           = chderr.ErrUnknownCodec
	ErrDecompressionFailed    = chderr.ErrDecompressionFailed
	ErrSizeMismatch           = chderr.ErrSizeMismatch
	ErrChecksumMismatch       = chderr.ErrChecksumMismatch
	ErrParentRequired         = chderr.ErrParentRequired
	ErrParentChecksumMismatch = chderr.ErrParentChecksumMismatch
	ErrIndexOutOfRange        = chderr.ErrIndexOutOfRange
	ErrIO                     = chderr.ErrIO

	// ErrMetadataNotFound is returned by FindMetadata.
	ErrMetadataNotFound = metadata.ErrNotFound
)

var errClosed = fmt.Errorf("%w: chd is closed", ErrIO)

// Kind classifies the errors this package returns.
type Kind int

const (
	KindOther Kind = iota
	KindInvalidFormat
	KindUnsupportedVersion
	KindTruncatedInput
	KindCorruptMap
	KindUnknownCodec
	KindDecompressionFailed
	KindSizeMismatch
	KindChecksumMismatch
	KindParentRequired
	KindParentChecksumMismatch
	KindIndexOutOfRange
	KindIO
)

var kindNames = [...]string{
	KindOther:                  "other",
	KindInvalidFormat:          "invalid format",
	KindUnsupportedVersion:     "unsupported version",
	KindTruncatedInput:         "truncated input",
	KindCorruptMap:             "corrupt map",
	KindUnknownCodec:           "unknown codec",
	KindDecompressionFailed:    "decompression failed",
	KindSizeMismatch:           "size mismatch",
	KindChecksumMismatch:       "checksum mismatch",
	KindParentRequired:         "parent required",
	KindParentChecksumMismatch: "parent checksum mismatch",
	KindIndexOutOfRange:        "index out of range",
	KindIO:                     "i/o error",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// an error can carry more than one sentinel (a parent's read failure
// inside a child's, say); the most specific wins
var kindOrder = []struct {
	kind Kind
	err  error
}{
	{KindParentRequired, ErrParentRequired},
	{KindParentChecksumMismatch, ErrParentChecksumMismatch},
	{KindIndexOutOfRange, ErrIndexOutOfRange},
	{KindCorruptMap, ErrCorruptMap},
	{KindChecksumMismatch, ErrChecksumMismatch},
	{KindSizeMismatch, ErrSizeMismatch},
	{KindUnknownCodec, ErrUnknownCodec},
	{KindDecompressionFailed, ErrDecompressionFailed},
	{KindUnsupportedVersion, ErrUnsupportedVersion},
	{KindInvalidFormat, ErrInvalidFormat},
	{KindTruncatedInput, ErrTruncatedInput},
	{KindIO, ErrIO},
}

// KindOf classifies err.  It returns KindOther for nil and for errors
// that didn't come from this package.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindOther
}

// HunkError is returned when reading a particular hunk fails.  The file
// remains usable.
type HunkError struct {
	Hunk int
	Err  error
}

func (e *HunkError) Error() string {
	return fmt.Sprintf("hunk %d: %v", e.Hunk, e.Err)
}

func (e *HunkError) Unwrap() error {
	return e.Err
}
