// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package header parses the fixed-size header at the start of every CHD
// file.  Five versions exist; each has its own size and field offsets
// but they all decode into the same Header.
package header

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/bpowers/chd/internal/checksum"
	"github.com/bpowers/chd/internal/chderr"
	"github.com/bpowers/chd/internal/codec"
	"github.com/bpowers/chd/internal/ondisk"
)

const (
	Magic = "MComprHD"

	prefixSize = 16 // magic + length + version

	V1Size = 76
	V2Size = 80
	V3Size = 120
	V4Size = 108
	V5Size = 124

	// v1 predates the stored sector length
	v1SectorBytes = 512

	FlagHasParent = 0x00000001
	FlagWritable  = 0x00000002

	// limits on values a hostile header could use to make us allocate
	MaxHunkCount = 10_000_000
	MaxHunkBytes = 16 << 20
)

// Header is the decoded header of any CHD version.
type Header struct {
	Version uint32
	Length  uint32

	// Flags and Compression are only stored by v1-v4.
	Flags       uint32
	Compression uint32

	// Compressors holds the codec slots hunks refer to.  For v1-v4 the
	// single legacy codec occupies slot 0.
	Compressors [4]codec.Tag

	LogicalBytes uint64
	HunkBytes    uint32
	HunkCount    uint32
	UnitBytes    uint32
	UnitCount    uint64

	MapOffset  uint64
	MetaOffset uint64

	MD5        checksum.MD5Digest
	ParentMD5  checksum.MD5Digest
	SHA1       checksum.SHA1Digest
	ParentSHA1 checksum.SHA1Digest
	RawSHA1    checksum.SHA1Digest

	// v1/v2 disk geometry
	Cylinders   uint32
	Heads       uint32
	Sectors     uint32
	SectorBytes uint32
}

type layout struct {
	size  uint32
	parse func(h *Header, b []byte) error
}

var layouts = map[uint32]layout{
	1: {V1Size, parseV1},
	2: {V2Size, parseV2},
	3: {V3Size, parseV3},
	4: {V4Size, parseV4},
	5: {V5Size, parseV5},
}

// Size returns the header length of a CHD version, or 0 if the version
// is unknown.
func Size(version uint32) int {
	return int(layouts[version].size)
}

// HasParent reports whether this is a differencing image that needs its
// parent to be read.
func (h *Header) HasParent() bool {
	if h.Version >= 5 {
		return !h.ParentSHA1.IsZero()
	}
	return h.Flags&FlagHasParent != 0
}

// IsCompressed reports whether any codec is configured.
func (h *Header) IsCompressed() bool {
	return h.Compressors[0] != codec.None
}

// Codecs returns the configured codec slots, stopping at the first
// empty one.
func (h *Header) Codecs() []codec.Tag {
	var tags []codec.Tag
	for _, t := range h.Compressors {
		if t == codec.None {
			break
		}
		tags = append(tags, t)
	}
	return tags
}

// Read fetches and parses the header at the start of r.
func Read(r io.ReaderAt) (*Header, error) {
	var prefix [prefixSize]byte
	if err := ondisk.ReadFull(r, prefix[:], 0); err != nil {
		return nil, err
	}
	length, err := checkPrefix(prefix[:])
	if err != nil {
		return nil, err
	}
	b := make([]byte, length)
	if err := ondisk.ReadFull(r, b, 0); err != nil {
		return nil, err
	}
	return Parse(b)
}

// checkPrefix validates the magic, version and length and returns the
// length of the full header.
func checkPrefix(b []byte) (uint32, error) {
	if len(b) < prefixSize {
		return 0, fmt.Errorf("%w: header needs %d bytes, have %d", chderr.ErrTruncatedInput, prefixSize, len(b))
	}
	if string(b[:8]) != Magic {
		return 0, fmt.Errorf("%w: bad magic %q", chderr.ErrInvalidFormat, b[:8])
	}
	length := binary.BigEndian.Uint32(b[8:12])
	version := binary.BigEndian.Uint32(b[12:16])
	l, ok := layouts[version]
	if !ok {
		return 0, fmt.Errorf("%w: v%d", chderr.ErrUnsupportedVersion, version)
	}
	if length != l.size {
		return 0, fmt.Errorf("%w: v%d header length %d, expected %d", chderr.ErrInvalidFormat, version, length, l.size)
	}
	return length, nil
}

// Parse decodes a complete header.
func Parse(b []byte) (*Header, error) {
	length, err := checkPrefix(b)
	if err != nil {
		return nil, err
	}
	if uint32(len(b)) < length {
		return nil, fmt.Errorf("%w: v%d header needs %d bytes, have %d",
			chderr.ErrTruncatedInput, binary.BigEndian.Uint32(b[12:16]), length, len(b))
	}
	b = b[:length]

	h := &Header{
		Length:  length,
		Version: binary.BigEndian.Uint32(b[12:16]),
	}
	if err := layouts[h.Version].parse(h, b); err != nil {
		return nil, err
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func parseV1(h *Header, b []byte) error {
	return parseV12(h, b, v1SectorBytes)
}

func parseV2(h *Header, b []byte) error {
	return parseV12(h, b, binary.BigEndian.Uint32(b[76:80]))
}

func parseV12(h *Header, b []byte, sectorBytes uint32) error {
	h.Flags = binary.BigEndian.Uint32(b[16:20])
	h.Compression = binary.BigEndian.Uint32(b[20:24])
	hunkSectors := binary.BigEndian.Uint32(b[24:28])
	h.HunkCount = binary.BigEndian.Uint32(b[28:32])
	h.Cylinders = binary.BigEndian.Uint32(b[32:36])
	h.Heads = binary.BigEndian.Uint32(b[36:40])
	h.Sectors = binary.BigEndian.Uint32(b[40:44])
	copy(h.MD5[:], b[44:60])
	copy(h.ParentMD5[:], b[60:76])
	h.SectorBytes = sectorBytes

	hunkBytes := uint64(hunkSectors) * uint64(sectorBytes)
	if hunkBytes > MaxHunkBytes {
		return fmt.Errorf("%w: hunk of %d bytes exceeds %d", chderr.ErrInvalidFormat, hunkBytes, MaxHunkBytes)
	}
	h.HunkBytes = uint32(hunkBytes)
	h.UnitBytes = sectorBytes

	logical, ok := mul(uint64(h.Cylinders), uint64(h.Heads), uint64(h.Sectors), uint64(sectorBytes))
	if !ok {
		return fmt.Errorf("%w: geometry %d/%d/%d overflows", chderr.ErrInvalidFormat, h.Cylinders, h.Heads, h.Sectors)
	}
	h.LogicalBytes = logical
	h.MapOffset = uint64(h.Length)
	return h.setLegacyCodec()
}

func parseV3(h *Header, b []byte) error {
	h.Flags = binary.BigEndian.Uint32(b[16:20])
	h.Compression = binary.BigEndian.Uint32(b[20:24])
	h.HunkCount = binary.BigEndian.Uint32(b[24:28])
	h.LogicalBytes = binary.BigEndian.Uint64(b[28:36])
	h.MetaOffset = binary.BigEndian.Uint64(b[36:44])
	copy(h.MD5[:], b[44:60])
	copy(h.ParentMD5[:], b[60:76])
	h.HunkBytes = binary.BigEndian.Uint32(b[76:80])
	copy(h.SHA1[:], b[80:100])
	copy(h.ParentSHA1[:], b[100:120])
	// v3 predates metadata hashing: its SHA-1 covers the raw data only
	h.RawSHA1 = h.SHA1
	h.UnitBytes = h.HunkBytes
	h.MapOffset = uint64(h.Length)
	return h.setLegacyCodec()
}

func parseV4(h *Header, b []byte) error {
	h.Flags = binary.BigEndian.Uint32(b[16:20])
	h.Compression = binary.BigEndian.Uint32(b[20:24])
	h.HunkCount = binary.BigEndian.Uint32(b[24:28])
	h.LogicalBytes = binary.BigEndian.Uint64(b[28:36])
	h.MetaOffset = binary.BigEndian.Uint64(b[36:44])
	h.HunkBytes = binary.BigEndian.Uint32(b[44:48])
	copy(h.SHA1[:], b[48:68])
	copy(h.ParentSHA1[:], b[68:88])
	copy(h.RawSHA1[:], b[88:108])
	h.UnitBytes = h.HunkBytes
	h.MapOffset = uint64(h.Length)
	return h.setLegacyCodec()
}

func parseV5(h *Header, b []byte) error {
	for i := range h.Compressors {
		h.Compressors[i] = codec.Tag(binary.BigEndian.Uint32(b[16+4*i:]))
	}
	h.LogicalBytes = binary.BigEndian.Uint64(b[32:40])
	h.MapOffset = binary.BigEndian.Uint64(b[40:48])
	h.MetaOffset = binary.BigEndian.Uint64(b[48:56])
	h.HunkBytes = binary.BigEndian.Uint32(b[56:60])
	h.UnitBytes = binary.BigEndian.Uint32(b[60:64])
	copy(h.RawSHA1[:], b[64:84])
	copy(h.SHA1[:], b[84:104])
	copy(h.ParentSHA1[:], b[104:124])

	if h.HunkBytes == 0 {
		return fmt.Errorf("%w: zero hunk size", chderr.ErrInvalidFormat)
	}
	hunks := ceilDiv(h.LogicalBytes, uint64(h.HunkBytes))
	if hunks > MaxHunkCount {
		return fmt.Errorf("%w: %d hunks exceeds %d", chderr.ErrInvalidFormat, hunks, MaxHunkCount)
	}
	h.HunkCount = uint32(hunks)
	return nil
}

func (h *Header) setLegacyCodec() error {
	tag, err := codec.FromLegacy(h.Compression)
	if err != nil {
		return err
	}
	h.Compressors[0] = tag
	return nil
}

func (h *Header) validate() error {
	if h.HunkBytes == 0 {
		return fmt.Errorf("%w: zero hunk size", chderr.ErrInvalidFormat)
	}
	if h.HunkBytes > MaxHunkBytes {
		return fmt.Errorf("%w: hunk of %d bytes exceeds %d", chderr.ErrInvalidFormat, h.HunkBytes, MaxHunkBytes)
	}
	if h.HunkCount > MaxHunkCount {
		return fmt.Errorf("%w: %d hunks exceeds %d", chderr.ErrInvalidFormat, h.HunkCount, MaxHunkCount)
	}
	if uint64(h.HunkCount)*uint64(h.HunkBytes) < h.LogicalBytes {
		return fmt.Errorf("%w: %d hunks of %d bytes can't hold %d logical bytes",
			chderr.ErrInvalidFormat, h.HunkCount, h.HunkBytes, h.LogicalBytes)
	}
	if h.UnitBytes == 0 || h.HunkBytes%h.UnitBytes != 0 {
		return fmt.Errorf("%w: unit size %d doesn't divide hunk size %d", chderr.ErrInvalidFormat, h.UnitBytes, h.HunkBytes)
	}
	h.UnitCount = ceilDiv(h.LogicalBytes, uint64(h.UnitBytes))
	return nil
}

func ceilDiv(n, d uint64) uint64 {
	return n/d + min(n%d, 1)
}

// mul multiplies its arguments, reporting false on overflow.
func mul(vs ...uint64) (uint64, bool) {
	product := uint64(1)
	for _, v := range vs {
		hi, lo := bits.Mul64(product, v)
		if hi != 0 {
			return 0, false
		}
		product = lo
	}
	return product, true
}
