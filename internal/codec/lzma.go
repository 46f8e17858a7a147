// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

const (
	// lc=3 lp=0 pb=2, encoded as (pb*5+lp)*9+lc
	lzmaProperties = 0x5d

	lzmaHeaderSize = 13
)

// LZMADictSize returns the dictionary size the CHD encoder configures
// for hunks of n bytes: the smallest 2<<i or 3<<i that holds a hunk.
func LZMADictSize(n int) uint32 {
	for i := 11; i <= 30; i++ {
		if n <= 2<<i {
			return 2 << i
		}
		if n <= 3<<i {
			return 3 << i
		}
	}
	return 3 << 30
}

// decompressLZMA decodes the headerless LZMA streams CHD stores by
// prepending the classic .lzma header the encoder would have written.
func decompressLZMA(src []byte, dstLen int) ([]byte, error) {
	hdr := make([]byte, lzmaHeaderSize, lzmaHeaderSize+len(src))
	hdr[0] = lzmaProperties
	binary.LittleEndian.PutUint32(hdr[1:5], LZMADictSize(dstLen))
	binary.LittleEndian.PutUint64(hdr[5:13], uint64(dstLen))
	stream := append(hdr, src...)

	r, err := lzma.NewReader(bytes.NewReader(stream))
	if err != nil {
		return nil, failed("lzma", err)
	}
	out := make([]byte, dstLen)
	// the header pins the output size, so a short read means the
	// compressed stream ran out
	if n, err := io.ReadFull(r, out); err != nil {
		return nil, failed("lzma", fmt.Errorf("after %d of %d bytes: %w", n, dstLen, err))
	}
	return out, nil
}
