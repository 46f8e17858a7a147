// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package huffman

// BitReader reads an MSB-first bitstream.  Reads past the end of the
// input return zero bits; Overflow reports whether that happened.
type BitReader struct {
	data []byte
	buf  uint64 // pending bits, left aligned
	bits int    // number of valid bits in buf
	off  int    // next byte of data to load (may exceed len(data))
}

func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// Peek returns the next n bits (n <= 32) without consuming them.
func (r *BitReader) Peek(n int) uint32 {
	if n == 0 {
		return 0
	}
	for r.bits < n {
		var b byte
		if r.off < len(r.data) {
			b = r.data[r.off]
		}
		r.off++
		r.buf |= uint64(b) << (56 - r.bits)
		r.bits += 8
	}
	return uint32(r.buf >> (64 - n))
}

// Remove consumes n bits previously made available by Peek.
func (r *BitReader) Remove(n int) {
	r.buf <<= n
	r.bits -= n
}

// Read consumes and returns the next n bits, n <= 64.
func (r *BitReader) Read(n int) uint64 {
	if n > 32 {
		hi := r.Read(n - 32)
		return hi<<32 | r.Read(32)
	}
	v := r.Peek(n)
	r.Remove(n)
	return uint64(v)
}

// Overflow reports whether more bits were consumed than the input holds.
func (r *BitReader) Overflow() bool {
	return r.off-r.bits/8 > len(r.data)
}
