// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package codec

import (
	"github.com/bpowers/chd/internal/huffman"
)

// decompressHuffman decodes a byte-wise canonical Huffman stream: a tree
// for 256 symbols (codes up to 16 bits) followed by dstLen codes.
func decompressHuffman(src []byte, dstLen int) ([]byte, error) {
	r := huffman.NewBitReader(src)
	d := huffman.NewDecoder(256, 16)
	if err := d.ImportTreeHuffman(r); err != nil {
		return nil, failed("huff", err)
	}
	out := make([]byte, dstLen)
	for i := range out {
		out[i] = byte(d.DecodeOne(r))
	}
	if r.Overflow() {
		return nil, failed("huff", huffman.ErrOverflow)
	}
	return out, nil
}
