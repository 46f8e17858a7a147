// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package codec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/bpowers/chd/internal/chderr"
)

// zstd.Decoder is safe for concurrent DecodeAll calls, so one is shared.
// DecodeAll never grows dst past its capacity, the expected output size.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecodeAllCapLimit(true),
	)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

func decompressZstd(src []byte, dstLen int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, make([]byte, 0, dstLen))
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
		return nil, fmt.Errorf("%w: zstd output exceeds %d bytes", chderr.ErrSizeMismatch, dstLen)
	} else if err != nil {
		return nil, failed("zstd", err)
	}
	if len(out) != dstLen {
		return nil, sizeMismatch("zstd", len(out), dstLen)
	}
	return out, nil
}
