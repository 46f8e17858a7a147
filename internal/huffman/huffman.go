// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package huffman decodes the canonical Huffman codes CHD uses for the
// v5 compressed hunk map and for the "huff" hunk codec.  Trees are never
// stored explicitly: only per-symbol code lengths are transmitted (either
// run-length encoded or themselves Huffman coded), and codes are
// reassigned canonically from those lengths.
package huffman

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTree = errors.New("invalid huffman tree")
	ErrOverflow    = errors.New("huffman input exhausted")
)

// lookup entries pack (symbol << 5) | code length
type lookupValue uint16

// Decoder decodes symbols in [0, numCodes) with codes of at most maxBits.
type Decoder struct {
	numCodes int
	maxBits  int
	lengths  []uint8
	codes    []uint32
	lookup   []lookupValue
}

func NewDecoder(numCodes, maxBits int) *Decoder {
	return &Decoder{
		numCodes: numCodes,
		maxBits:  maxBits,
		lengths:  make([]uint8, numCodes),
		codes:    make([]uint32, numCodes),
		lookup:   make([]lookupValue, 1<<maxBits),
	}
}

// ImportTreeRLE reads code lengths written as small fixed-width values,
// where 1 is an escape introducing either a literal 1 or a repeat run.
func (d *Decoder) ImportTreeRLE(r *BitReader) error {
	var numBits int
	switch {
	case d.maxBits >= 16:
		numBits = 5
	case d.maxBits >= 8:
		numBits = 4
	default:
		numBits = 3
	}

	for cur := 0; cur < d.numCodes; {
		nodeBits := int(r.Read(numBits))
		if nodeBits != 1 {
			d.lengths[cur] = uint8(nodeBits)
			cur++
			continue
		}
		nodeBits = int(r.Read(numBits))
		if nodeBits == 1 {
			d.lengths[cur] = 1
			cur++
			continue
		}
		repeat := int(r.Read(numBits)) + 3
		if cur+repeat > d.numCodes {
			return fmt.Errorf("%w: run of %d lengths overflows %d codes", ErrInvalidTree, repeat, d.numCodes)
		}
		for ; repeat > 0; repeat-- {
			d.lengths[cur] = uint8(nodeBits)
			cur++
		}
	}

	if err := d.build(); err != nil {
		return err
	}
	if r.Overflow() {
		return ErrOverflow
	}
	return nil
}

// ImportTreeHuffman reads code lengths that are themselves coded with a
// small 24-symbol Huffman tree; symbol 0 of that tree repeats the
// previous length.
func (d *Decoder) ImportTreeHuffman(r *BitReader) error {
	small := NewDecoder(24, 6)
	small.lengths[0] = uint8(r.Read(3))
	start := int(r.Read(3)) + 1
	count := 0
	for i := 1; i < 24; i++ {
		if i < start || count == 7 {
			small.lengths[i] = 0
			continue
		}
		count = int(r.Read(3))
		if count == 7 {
			small.lengths[i] = 0
		} else {
			small.lengths[i] = uint8(count)
		}
	}
	if err := small.build(); err != nil {
		return err
	}

	// widest run length needed to cover every code
	rleFullBits := 0
	for temp := d.numCodes - 9; temp != 0; temp >>= 1 {
		rleFullBits++
	}

	last := uint8(0)
	cur := 0
	for cur < d.numCodes {
		value := small.DecodeOne(r)
		if value != 0 {
			last = uint8(value - 1)
			d.lengths[cur] = last
			cur++
			continue
		}
		count := int(r.Read(3)) + 2
		if count == 7+2 {
			count += int(r.Read(rleFullBits))
		}
		for ; count != 0 && cur < d.numCodes; count-- {
			d.lengths[cur] = last
			cur++
		}
	}

	if err := d.build(); err != nil {
		return err
	}
	if r.Overflow() {
		return ErrOverflow
	}
	return nil
}

// DecodeOne consumes one code and returns its symbol.
func (d *Decoder) DecodeOne(r *BitReader) uint32 {
	v := d.lookup[r.Peek(d.maxBits)]
	r.Remove(int(v & 0x1f))
	return uint32(v >> 5)
}

func (d *Decoder) build() error {
	if err := d.assignCanonicalCodes(); err != nil {
		return err
	}
	d.buildLookup()
	return nil
}

func (d *Decoder) assignCanonicalCodes() error {
	var histogram [33]uint32
	for i, n := range d.lengths {
		if int(n) > d.maxBits {
			return fmt.Errorf("%w: code %d has length %d > %d", ErrInvalidTree, i, n, d.maxBits)
		}
		histogram[n]++
	}

	// starting code for each length, longest first
	start := uint32(0)
	for length := 32; length > 0; length-- {
		next := (start + histogram[length]) >> 1
		if length != 1 && next*2 != start+histogram[length] {
			return fmt.Errorf("%w: lengths do not form a prefix code", ErrInvalidTree)
		}
		histogram[length] = start
		start = next
	}

	for i, n := range d.lengths {
		if n > 0 {
			d.codes[i] = histogram[n]
			histogram[n]++
			if d.codes[i] >= 1<<n {
				return fmt.Errorf("%w: too many codes of length %d", ErrInvalidTree, n)
			}
		}
	}
	return nil
}

func (d *Decoder) buildLookup() {
	for i := range d.lookup {
		d.lookup[i] = 0
	}
	for sym, n := range d.lengths {
		if n == 0 {
			continue
		}
		value := lookupValue(sym)<<5 | lookupValue(n)
		shift := d.maxBits - int(n)
		first := d.codes[sym] << shift
		last := (d.codes[sym]+1)<<shift - 1
		for j := first; j <= last; j++ {
			d.lookup[j] = value
		}
	}
}
