// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package hunkmap decodes the table that says where and how each hunk of
// a CHD file is stored.  Four on-disk encodings exist (v1/v2, v3/v4, and
// the v5 block and compressed maps); all decode to a Map with one Entry
// per hunk, validated so readers can trust every reference in it.
package hunkmap

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bpowers/chd/internal/checksum"
	"github.com/bpowers/chd/internal/chderr"
	"github.com/bpowers/chd/internal/codec"
	"github.com/bpowers/chd/internal/header"
	"github.com/bpowers/chd/internal/ondisk"
)

// MaxMapBytes bounds the compressed v5 map read into memory.
const MaxMapBytes = 100 << 20

// Kind is how a hunk is stored.
type Kind uint8

const (
	// Compressed hunks are Length bytes at Offset, decoded with the
	// codec in slot Codec.
	Compressed Kind = iota + 1
	// Uncompressed hunks are HunkBytes bytes at Offset.
	Uncompressed
	// Mini hunks repeat the big-endian 8-byte pattern in Offset.
	Mini
	// Self hunks are a copy of hunk number Offset.
	Self
	// Parent hunks come from the parent file at Offset.
	Parent
)

func (k Kind) String() string {
	switch k {
	case Compressed:
		return "compressed"
	case Uncompressed:
		return "uncompressed"
	case Mini:
		return "mini"
	case Self:
		return "self"
	case Parent:
		return "parent"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

type CRCKind uint8

const (
	NoCRC CRCKind = iota
	CRC16
	CRC32
)

// Entry describes one hunk.
type Entry struct {
	Kind    Kind
	Codec   uint8
	Offset  uint64
	Length  uint32
	CRC     uint32
	CRCKind CRCKind
}

// Check verifies data against the entry's stored checksum, if any.
func (e Entry) Check(data []byte) error {
	switch e.CRCKind {
	case CRC16:
		if !checksum.VerifyCRC16(data, uint16(e.CRC)) {
			return fmt.Errorf("%w: crc16 mismatch (0x%04x != 0x%04x)", chderr.ErrChecksumMismatch, e.CRC, checksum.CRC16(data))
		}
	case CRC32:
		if !checksum.VerifyCRC32(data, e.CRC) {
			return fmt.Errorf("%w: crc32 mismatch (0x%08x != 0x%08x)", chderr.ErrChecksumMismatch, e.CRC, checksum.CRC32(data))
		}
	}
	return nil
}

// HasData reports whether the entry's bytes live in this file.
func (e Entry) HasData() bool {
	return e.Kind == Compressed || e.Kind == Uncompressed
}

type Map []Entry

// Decode reads and validates the hunk map of the file described by h.
func Decode(r io.ReaderAt, h *header.Header) (Map, error) {
	var (
		m   Map
		err error
	)
	size := ondisk.Size(r)
	switch {
	case h.Version <= 2:
		m, err = decodeV12(r, h, size)
	case h.Version <= 4:
		m, err = decodeV34(r, h, size)
	case h.IsCompressed():
		m, err = decodeV5Compressed(r, h, size)
	default:
		m, err = decodeV5Blocks(r, h, size)
	}
	if err != nil {
		return nil, err
	}
	if err := m.validate(h, size); err != nil {
		return nil, err
	}
	return m, nil
}

// readMap reads n bytes of map at off, refusing to allocate more than
// the source can hold.
func readMap(r io.ReaderAt, off uint64, n uint64, size int64) ([]byte, error) {
	if size >= 0 && (off > uint64(size) || n > uint64(size)-off) {
		return nil, fmt.Errorf("%w: %d byte map at offset %d past end of %d byte file", chderr.ErrTruncatedInput, n, off, size)
	}
	buf := make([]byte, n)
	if err := ondisk.ReadFull(r, buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

var (
	v12Cookie = []byte("EndOfLis")
	v34Cookie = []byte("EndOfListCookie\x00")
)

func decodeV12(r io.ReaderAt, h *header.Header, size int64) (Map, error) {
	const entrySize = 8
	n := uint64(h.HunkCount)
	buf, err := readMap(r, h.MapOffset, n*entrySize+uint64(len(v12Cookie)), size)
	if err != nil {
		return nil, err
	}
	if cookie := buf[n*entrySize:]; string(cookie) != string(v12Cookie) {
		return nil, fmt.Errorf("%w: bad end of map cookie %q", chderr.ErrCorruptMap, cookie)
	}

	m := make(Map, n)
	for i := range m {
		v := binary.BigEndian.Uint64(buf[i*entrySize:])
		e := Entry{
			Offset: v & (1<<44 - 1),
			Length: uint32(v >> 44),
		}
		if e.Length == h.HunkBytes {
			e.Kind = Uncompressed
		} else {
			e.Kind = Compressed
		}
		m[i] = e
	}
	return m, nil
}

const (
	v34TypeMask = 0x0f
	v34NoCRC    = 0x10
)

func decodeV34(r io.ReaderAt, h *header.Header, size int64) (Map, error) {
	const entrySize = 16
	n := uint64(h.HunkCount)
	buf, err := readMap(r, h.MapOffset, n*entrySize+uint64(len(v34Cookie)), size)
	if err != nil {
		return nil, err
	}
	if cookie := buf[n*entrySize:]; string(cookie) != string(v34Cookie) {
		return nil, fmt.Errorf("%w: bad end of map cookie %q", chderr.ErrCorruptMap, cookie)
	}

	m := make(Map, n)
	for i := range m {
		b := buf[i*entrySize : (i+1)*entrySize]
		flags := b[15]
		e := Entry{
			Offset:  binary.BigEndian.Uint64(b[0:8]),
			CRC:     binary.BigEndian.Uint32(b[8:12]),
			Length:  uint32(binary.BigEndian.Uint16(b[12:14])) | uint32(b[14])<<16,
			CRCKind: CRC32,
		}
		if flags&v34NoCRC != 0 {
			e.CRC = 0
			e.CRCKind = NoCRC
		}
		switch typ := flags & v34TypeMask; typ {
		case 1:
			e.Kind = Compressed
		case 2:
			e.Kind = Uncompressed
			e.Length = h.HunkBytes
		case 3:
			e.Kind = Mini
		case 4:
			e.Kind = Self
		case 5:
			e.Kind = Parent
		default:
			return nil, fmt.Errorf("%w: hunk %d has entry type %d", chderr.ErrCorruptMap, i, typ)
		}
		if e.Kind != Compressed && e.Kind != Uncompressed {
			e.Length = 0
		}
		m[i] = e
	}
	return m, nil
}

// decodeV5Blocks decodes the map of an uncompressed v5 file: one block
// number per hunk, where block 0 means the parent's hunk or zeros.
func decodeV5Blocks(r io.ReaderAt, h *header.Header, size int64) (Map, error) {
	n := uint64(h.HunkCount)
	buf, err := readMap(r, h.MapOffset, n*4, size)
	if err != nil {
		return nil, err
	}

	parent := h.HasParent()
	hunkUnits := uint64(h.HunkBytes / h.UnitBytes)
	m := make(Map, n)
	for i := range m {
		block := uint64(binary.BigEndian.Uint32(buf[i*4:]))
		switch {
		case block != 0:
			m[i] = Entry{Kind: Uncompressed, Offset: block * uint64(h.HunkBytes), Length: h.HunkBytes}
		case parent:
			m[i] = Entry{Kind: Parent, Offset: uint64(i) * hunkUnits}
		default:
			m[i] = Entry{Kind: Mini}
		}
	}
	return m, nil
}

func (m Map) validate(h *header.Header, size int64) error {
	for i, e := range m {
		switch e.Kind {
		case Compressed:
			if int(e.Codec) >= len(h.Compressors) || h.Compressors[e.Codec] == codec.None {
				return fmt.Errorf("%w: hunk %d uses empty codec slot %d", chderr.ErrCorruptMap, i, e.Codec)
			}
		case Self:
			if e.Offset >= uint64(i) {
				return fmt.Errorf("%w: hunk %d refers to hunk %d", chderr.ErrCorruptMap, i, e.Offset)
			}
		case Parent:
			if !h.HasParent() {
				return fmt.Errorf("%w: hunk %d refers to a parent the header doesn't declare", chderr.ErrCorruptMap, i)
			}
		case Uncompressed, Mini:
		default:
			return fmt.Errorf("%w: hunk %d has kind %d", chderr.ErrCorruptMap, i, e.Kind)
		}
		if e.HasData() && size >= 0 {
			if e.Offset > uint64(size) || uint64(e.Length) > uint64(size)-e.Offset {
				return fmt.Errorf("%w: hunk %d extent [%d, +%d) past end of %d byte file",
					chderr.ErrCorruptMap, i, e.Offset, e.Length, size)
			}
		}
	}
	return nil
}
