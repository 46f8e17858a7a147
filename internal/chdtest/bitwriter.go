// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chdtest

// BitWriter produces MSB-first bitstreams, the inverse of huffman.BitReader.
type BitWriter struct {
	buf []byte
	acc byte
	n   int
}

func (w *BitWriter) Write(v uint64, bits int) {
	for i := bits - 1; i >= 0; i-- {
		w.acc = w.acc<<1 | byte(v>>uint(i)&1)
		w.n++
		if w.n == 8 {
			w.buf = append(w.buf, w.acc)
			w.acc = 0
			w.n = 0
		}
	}
}

// Bytes returns everything written so far, zero padding a partial
// final byte.
func (w *BitWriter) Bytes() []byte {
	out := append([]byte(nil), w.buf...)
	if w.n > 0 {
		out = append(out, w.acc<<(8-w.n))
	}
	return out
}

// BitsFor returns the number of bits needed to represent v.
func BitsFor(v uint64) int {
	n := 0
	for ; v != 0; v >>= 1 {
		n++
	}
	return n
}
