// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chdtest

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bpowers/chd/internal/checksum"
)

// Kind is a hunk storage kind, numbered as v3/v4 map entries number them.
type Kind uint8

const (
	Compressed   Kind = 1
	Uncompressed Kind = 2
	Mini         Kind = 3
	Self         Kind = 4
	Parent       Kind = 5
)

// v5 compressed map codes
const (
	v5Type0      = 0
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
)

const (
	v34NoCRC = 0x10

	metaEntryHeaderSize = 16
)

var (
	v12Cookie = []byte("EndOfLis")
	v34Cookie = []byte("EndOfListCookie\x00")
)

// Hunk describes how one hunk is stored.
type Hunk struct {
	Kind Kind
	// Codec is the compressor slot of a Compressed hunk.
	Codec int
	// Payload is the stored bytes of a Compressed or Uncompressed hunk.
	Payload []byte
	// Raw is the decoded hunk, used for the stored checksum.  v3/v4
	// entries without Raw are written with the no-CRC flag.
	Raw []byte
	// Pattern is the 8-byte value a Mini hunk repeats.
	Pattern uint64
	// Ref is the referenced hunk index of a Self hunk, or the location
	// in the parent of a Parent hunk (units for v5, hunks before).
	Ref uint64
	// BadCRC stores a checksum that doesn't match Raw.
	BadCRC bool
}

func UncompressedHunk(raw []byte) Hunk {
	return Hunk{Kind: Uncompressed, Payload: raw, Raw: raw}
}

func CompressedHunk(slot int, payload, raw []byte) Hunk {
	return Hunk{Kind: Compressed, Codec: slot, Payload: payload, Raw: raw}
}

func SelfHunk(ref int) Hunk {
	return Hunk{Kind: Self, Ref: uint64(ref)}
}

func ParentHunk(ref uint64) Hunk {
	return Hunk{Kind: Parent, Ref: ref}
}

func MiniHunk(pattern uint64) Hunk {
	return Hunk{Kind: Mini, Pattern: pattern}
}

// Meta is one metadata entry.
type Meta struct {
	Tag   uint32
	Flags byte
	Data  []byte
}

// Container is a CHD file under construction.  Header supplies the
// version, sizes and digests; Bytes fills in the hunk count (v1-v4 when
// left zero) and the map and metadata offsets.
type Container struct {
	Header Header
	Hunks  []Hunk
	Meta   []Meta

	// CompressedMap selects the v5 compressed map; otherwise v5 uses
	// the block-number map.
	CompressedMap bool
	// MetaLoop points the last metadata entry back at the first.
	MetaLoop bool
	// MapCRCDelta is added to the stored v5 compressed map CRC.
	MapCRCDelta uint16
}

// SetDigests fills in the header digests for a container whose logical
// content is raw.
func (c *Container) SetDigests(raw []byte) {
	h := &c.Header
	switch h.Version {
	case 1, 2:
		h.MD5 = checksum.MD5(raw)
	case 3:
		h.MD5 = checksum.MD5(raw)
		h.SHA1 = checksum.SHA1(raw)
	default:
		h.RawSHA1 = checksum.SHA1(raw)
		var metas []checksum.MetadataHash
		for _, m := range c.Meta {
			if m.Flags&0x01 != 0 {
				metas = append(metas, checksum.MetadataHash{Tag: m.Tag, SHA1: checksum.SHA1(m.Data)})
			}
		}
		h.SHA1 = checksum.OverallSHA1(h.RawSHA1, metas)
	}
}

func (c *Container) v5UncompressedMap() bool {
	return c.Header.Version == 5 && !c.CompressedMap
}

// Bytes lays out the container: header, then the v1-v4 map, hunk
// payloads, metadata and finally the v5 map.
func (c *Container) Bytes() []byte {
	h := c.Header
	hs := HeaderSize(h.Version)
	if hs == 0 {
		panic(fmt.Sprintf("chdtest: unknown version %d", h.Version))
	}
	hunkBytes := uint64(h.HunkBytes)
	if h.Version <= 2 {
		hunkBytes = uint64(h.HunkSectors) * uint64(c.sectorBytes())
	}

	var mapSize int
	switch h.Version {
	case 1, 2:
		mapSize = len(c.Hunks)*8 + len(v12Cookie)
	case 3, 4:
		mapSize = len(c.Hunks)*16 + len(v34Cookie)
	}

	cur := uint64(hs + mapSize)
	if c.v5UncompressedMap() {
		cur = (cur + hunkBytes - 1) / hunkBytes * hunkBytes
	}

	var data bytes.Buffer
	dataStart := cur
	offsets := make([]uint64, len(c.Hunks))
	for i, hk := range c.Hunks {
		switch hk.Kind {
		case Compressed, Uncompressed:
			offsets[i] = cur
			payload := hk.Payload
			if c.v5UncompressedMap() {
				if hk.Kind != Uncompressed || uint64(len(payload)) != hunkBytes {
					panic("chdtest: v5 block maps store whole uncompressed hunks only")
				}
			}
			data.Write(payload)
			cur += uint64(len(payload))
		}
	}

	var meta bytes.Buffer
	if len(c.Meta) > 0 {
		h.MetaOffset = cur
		for i, m := range c.Meta {
			next := cur + metaEntryHeaderSize + uint64(len(m.Data))
			if i == len(c.Meta)-1 {
				next = 0
				if c.MetaLoop {
					next = h.MetaOffset
				}
			}
			var eh [metaEntryHeaderSize]byte
			binary.BigEndian.PutUint32(eh[0:], m.Tag)
			binary.BigEndian.PutUint32(eh[4:], uint32(m.Flags)<<24|uint32(len(m.Data)))
			binary.BigEndian.PutUint64(eh[8:], next)
			meta.Write(eh[:])
			meta.Write(m.Data)
			cur = cur + metaEntryHeaderSize + uint64(len(m.Data))
		}
	}

	if h.Version <= 4 && h.TotalHunks == 0 {
		h.TotalHunks = uint32(len(c.Hunks))
	}

	var mapBytes []byte
	switch h.Version {
	case 1, 2:
		mapBytes = c.v12Map(offsets, hunkBytes)
	case 3, 4:
		mapBytes = c.v34Map(offsets)
	case 5:
		h.MapOffset = cur
		if c.CompressedMap {
			mapBytes = c.v5CompressedMap(offsets, dataStart, hunkBytes)
		} else {
			mapBytes = c.v5BlockMap(offsets, hunkBytes)
		}
	}

	var out bytes.Buffer
	out.Write(MarshalHeader(h))
	if h.Version <= 4 {
		out.Write(mapBytes)
	}
	out.Write(make([]byte, dataStart-uint64(out.Len())))
	out.Write(data.Bytes())
	out.Write(meta.Bytes())
	if h.Version == 5 {
		out.Write(mapBytes)
	}
	return out.Bytes()
}

func (c *Container) sectorBytes() uint32 {
	if c.Header.Version == 1 {
		return 512
	}
	return c.Header.SectorBytes
}

func (c *Container) v12Map(offsets []uint64, hunkBytes uint64) []byte {
	var b bytes.Buffer
	for i, hk := range c.Hunks {
		var length uint64
		switch hk.Kind {
		case Uncompressed:
			length = hunkBytes
		case Compressed:
			length = uint64(len(hk.Payload))
		default:
			panic("chdtest: v1/v2 maps only store compressed and uncompressed hunks")
		}
		var e [8]byte
		binary.BigEndian.PutUint64(e[:], length<<44|offsets[i]&(1<<44-1))
		b.Write(e[:])
	}
	b.Write(v12Cookie)
	return b.Bytes()
}

func (c *Container) v34Map(offsets []uint64) []byte {
	var b bytes.Buffer
	for i, hk := range c.Hunks {
		var e [16]byte
		offset := offsets[i]
		switch hk.Kind {
		case Mini:
			offset = hk.Pattern
		case Self, Parent:
			offset = hk.Ref
		}
		binary.BigEndian.PutUint64(e[0:], offset)
		flags := byte(hk.Kind)
		if hk.Raw != nil {
			crc := checksum.CRC32(hk.Raw)
			if hk.BadCRC {
				crc ^= 1
			}
			binary.BigEndian.PutUint32(e[8:], crc)
		} else {
			flags |= v34NoCRC
		}
		length := len(hk.Payload)
		binary.BigEndian.PutUint16(e[12:], uint16(length))
		e[14] = byte(length >> 16)
		e[15] = flags
		b.Write(e[:])
	}
	b.Write(v34Cookie)
	return b.Bytes()
}

func (c *Container) v5BlockMap(offsets []uint64, hunkBytes uint64) []byte {
	b := make([]byte, 4*len(c.Hunks))
	for i, hk := range c.Hunks {
		var block uint64
		switch hk.Kind {
		case Uncompressed:
			block = offsets[i] / hunkBytes
		case Self:
			block = offsets[hk.Ref] / hunkBytes
		case Parent:
			block = 0
		case Mini:
			if hk.Pattern != 0 {
				panic("chdtest: v5 block maps only zero fill")
			}
			block = 0
		default:
			panic("chdtest: v5 block maps can't store compressed hunks")
		}
		binary.BigEndian.PutUint32(b[4*i:], uint32(block))
	}
	return b
}

func (hk Hunk) crc16() uint16 {
	if hk.Raw == nil {
		panic("chdtest: v5 data hunks need Raw")
	}
	crc := checksum.CRC16(hk.Raw)
	if hk.BadCRC {
		crc ^= 1
	}
	return crc
}

// v5CompressedMap encodes the map the way the CHD writer does: pseudo
// types for predictable references, RLE runs of repeated types, a flat
// Huffman tree over the 16 type codes, then the per-hunk fields.
func (c *Container) v5CompressedMap(offsets []uint64, dataStart, hunkBytes uint64) []byte {
	unitBytes := uint64(c.Header.UnitBytes)
	hunkUnits := hunkBytes / unitBytes

	types := make([]int, len(c.Hunks))
	raw := make([]byte, 12*len(c.Hunks))
	var lastSelf, lastParent, maxLen, maxSelf, maxParent uint64
	firstOffset := uint64(0)
	haveFirst := false
	for i, hk := range c.Hunks {
		e := raw[12*i : 12*(i+1)]
		switch hk.Kind {
		case Compressed, Uncompressed:
			if !haveFirst {
				firstOffset = offsets[i]
				haveFirst = true
			}
			length := uint64(len(hk.Payload))
			t := v5None
			if hk.Kind == Compressed {
				t = v5Type0 + hk.Codec
				maxLen = max(maxLen, length)
			}
			types[i] = t
			e[0] = byte(t)
			put24(e[1:], length)
			put48(e[4:], offsets[i])
			binary.BigEndian.PutUint16(e[10:], hk.crc16())
		case Self:
			switch hk.Ref {
			case lastSelf:
				types[i] = v5Self0
			case lastSelf + 1:
				types[i] = v5Self1
			default:
				types[i] = v5Self
				maxSelf = max(maxSelf, hk.Ref)
			}
			lastSelf = hk.Ref
			e[0] = v5Self
			put48(e[4:], hk.Ref)
		case Parent:
			switch hk.Ref {
			case uint64(i) * hunkUnits:
				types[i] = v5ParentSelf
			case lastParent:
				types[i] = v5Parent0
			case lastParent + hunkUnits:
				types[i] = v5Parent1
			default:
				types[i] = v5Parent
				maxParent = max(maxParent, hk.Ref)
			}
			lastParent = hk.Ref
			e[0] = v5Parent
			put48(e[4:], hk.Ref)
		default:
			panic("chdtest: v5 compressed maps can't store mini hunks")
		}
	}

	var w BitWriter
	for i := 0; i < 16; i++ {
		w.Write(4, 4)
	}
	for i := 0; i < len(types); {
		run := 1
		for i+run < len(types) && types[i+run] == types[i] {
			run++
		}
		w.Write(uint64(types[i]), 4)
		rest := run - 1
		for rest > 0 {
			switch {
			case rest < 3:
				w.Write(uint64(types[i]), 4)
				rest--
			case rest <= 18:
				w.Write(v5RLESmall, 4)
				w.Write(uint64(rest-3), 4)
				rest = 0
			default:
				n := min(rest, 274)
				v := n - 19
				w.Write(v5RLELarge, 4)
				w.Write(uint64(v>>4), 4)
				w.Write(uint64(v&15), 4)
				rest -= n
			}
		}
		i += run
	}

	lengthBits := BitsFor(maxLen)
	selfBits := BitsFor(maxSelf)
	parentBits := BitsFor(maxParent)
	for i, hk := range c.Hunks {
		switch types[i] {
		case v5Type0, v5Type0 + 1, v5Type0 + 2, v5Type0 + 3:
			w.Write(uint64(len(hk.Payload)), lengthBits)
			w.Write(uint64(hk.crc16()), 16)
		case v5None:
			w.Write(uint64(hk.crc16()), 16)
		case v5Self:
			w.Write(hk.Ref, selfBits)
		case v5Parent:
			w.Write(hk.Ref, parentBits)
		}
	}
	bits := w.Bytes()

	out := make([]byte, 16, 16+len(bits))
	binary.BigEndian.PutUint32(out[0:], uint32(len(bits)))
	put48(out[4:], firstOffset)
	binary.BigEndian.PutUint16(out[10:], checksum.CRC16(raw)+c.MapCRCDelta)
	out[12] = byte(lengthBits)
	out[13] = byte(selfBits)
	out[14] = byte(parentBits)
	return append(out, bits...)
}

func put24(b []byte, v uint64) {
	b[0], b[1], b[2] = byte(v>>16), byte(v>>8), byte(v)
}

func put48(b []byte, v uint64) {
	for i := 0; i < 6; i++ {
		b[i] = byte(v >> (40 - 8*i))
	}
}

// Repeat returns n bytes cycling through pattern.
func Repeat(pattern []byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = pattern[i%len(pattern)]
	}
	return out
}

// MiniBytes returns the n-byte hunk a Mini entry with pattern decodes to.
func MiniBytes(pattern uint64, n int) []byte {
	var p [8]byte
	binary.BigEndian.PutUint64(p[:], pattern)
	return Repeat(p[:], n)
}
