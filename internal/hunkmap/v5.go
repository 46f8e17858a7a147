// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package hunkmap

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bpowers/chd/internal/checksum"
	"github.com/bpowers/chd/internal/chderr"
	"github.com/bpowers/chd/internal/header"
	"github.com/bpowers/chd/internal/huffman"
)

// codes of the v5 compressed map
const (
	v5Type0      = 0 // through 3: codec slots
	v5None       = 4
	v5Self       = 5
	v5Parent     = 6
	v5RLESmall   = 7
	v5RLELarge   = 8
	v5Self0      = 9
	v5Self1      = 10
	v5ParentSelf = 11
	v5Parent0    = 12
	v5Parent1    = 13

	v5MapHeaderSize = 16
	v5RawEntrySize  = 12
)

// v5MapHeader precedes the compressed map bitstream.
type v5MapHeader struct {
	length      uint32 // of the bitstream
	firstOffset uint64
	crc         uint16 // of the rebuilt raw map
	lengthBits  int
	selfBits    int
	parentBits  int
}

func (mh *v5MapHeader) UnmarshalBytes(b []byte) {
	_ = b[v5MapHeaderSize-1]
	mh.length = binary.BigEndian.Uint32(b[0:4])
	mh.firstOffset = uint64(binary.BigEndian.Uint16(b[4:6]))<<32 | uint64(binary.BigEndian.Uint32(b[6:10]))
	mh.crc = binary.BigEndian.Uint16(b[10:12])
	mh.lengthBits = int(b[12])
	mh.selfBits = int(b[13])
	mh.parentBits = int(b[14])
}

func decodeV5Compressed(r io.ReaderAt, h *header.Header, size int64) (Map, error) {
	hb, err := readMap(r, h.MapOffset, v5MapHeaderSize, size)
	if err != nil {
		return nil, err
	}
	var mh v5MapHeader
	mh.UnmarshalBytes(hb)
	if mh.length > MaxMapBytes {
		return nil, fmt.Errorf("%w: compressed map of %d bytes exceeds %d", chderr.ErrCorruptMap, mh.length, MaxMapBytes)
	}
	if mh.lengthBits > 32 || mh.selfBits > 32 || mh.parentBits > 48 {
		return nil, fmt.Errorf("%w: field widths %d/%d/%d", chderr.ErrCorruptMap, mh.lengthBits, mh.selfBits, mh.parentBits)
	}
	data, err := readMap(r, h.MapOffset+v5MapHeaderSize, uint64(mh.length), size)
	if err != nil {
		return nil, err
	}

	br := huffman.NewBitReader(data)
	types, err := decodeV5Types(br, int(h.HunkCount))
	if err != nil {
		return nil, err
	}

	hunkUnits := uint64(h.HunkBytes / h.UnitBytes)
	raw := make([]byte, v5RawEntrySize*len(types))
	m := make(Map, len(types))
	curOffset := mh.firstOffset
	var lastSelf, lastParent uint64
	for i, typ := range types {
		e := Entry{}
		rawType := typ
		switch typ {
		case v5Type0, v5Type0 + 1, v5Type0 + 2, v5Type0 + 3, v5None:
			e.Offset = curOffset
			if typ == v5None {
				e.Kind = Uncompressed
				e.Length = h.HunkBytes
			} else {
				e.Kind = Compressed
				e.Codec = uint8(typ - v5Type0)
				e.Length = uint32(br.Read(mh.lengthBits))
			}
			curOffset += uint64(e.Length)
			e.CRC = uint32(br.Read(16))
			e.CRCKind = CRC16
		case v5Self:
			e.Kind = Self
			lastSelf = br.Read(mh.selfBits)
			e.Offset = lastSelf
		case v5Parent:
			e.Kind = Parent
			lastParent = br.Read(mh.parentBits)
			e.Offset = lastParent
		case v5Self1:
			lastSelf++
			fallthrough
		case v5Self0:
			rawType = v5Self
			e.Kind = Self
			e.Offset = lastSelf
		case v5ParentSelf:
			rawType = v5Parent
			e.Kind = Parent
			lastParent = uint64(i) * hunkUnits
			e.Offset = lastParent
		case v5Parent1:
			lastParent += hunkUnits
			fallthrough
		case v5Parent0:
			rawType = v5Parent
			e.Kind = Parent
			e.Offset = lastParent
		default:
			return nil, fmt.Errorf("%w: hunk %d has map code %d", chderr.ErrCorruptMap, i, typ)
		}
		m[i] = e

		re := raw[i*v5RawEntrySize : (i+1)*v5RawEntrySize]
		re[0] = byte(rawType)
		re[1], re[2], re[3] = byte(e.Length>>16), byte(e.Length>>8), byte(e.Length)
		for j := 0; j < 6; j++ {
			re[4+j] = byte(e.Offset >> (40 - 8*j))
		}
		binary.BigEndian.PutUint16(re[10:], uint16(e.CRC))
	}
	if br.Overflow() {
		return nil, fmt.Errorf("%w: map bitstream ended early", chderr.ErrCorruptMap)
	}
	if got := checksum.CRC16(raw); got != mh.crc {
		return nil, fmt.Errorf("%w: map crc16 mismatch (0x%04x != 0x%04x)", chderr.ErrCorruptMap, mh.crc, got)
	}
	return m, nil
}

// decodeV5Types reads the Huffman coded, run-length compressed list of
// per-hunk map codes.
func decodeV5Types(br *huffman.BitReader, n int) ([]int, error) {
	d := huffman.NewDecoder(16, 8)
	if err := d.ImportTreeRLE(br); err != nil {
		return nil, fmt.Errorf("%w: map tree: %v", chderr.ErrCorruptMap, err)
	}

	types := make([]int, n)
	last := 0
	for i := 0; i < n; {
		code := int(d.DecodeOne(br))
		repeat := 1
		switch code {
		case v5RLESmall:
			repeat = 3 + int(d.DecodeOne(br))
		case v5RLELarge:
			hi := int(d.DecodeOne(br))
			repeat = 19 + hi<<4 + int(d.DecodeOne(br))
		default:
			last = code
		}
		if br.Overflow() {
			return nil, fmt.Errorf("%w: map bitstream ended early", chderr.ErrCorruptMap)
		}
		// runs may not spill past the last hunk
		if i+repeat > n {
			return nil, fmt.Errorf("%w: run of %d codes at hunk %d overflows %d hunks", chderr.ErrCorruptMap, repeat, i, n)
		}
		for ; repeat > 0; repeat-- {
			types[i] = last
			i++
		}
	}
	return types, nil
}
