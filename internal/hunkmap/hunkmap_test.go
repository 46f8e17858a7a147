// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package hunkmap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/chd/internal/checksum"
	"github.com/bpowers/chd/internal/chderr"
	"github.com/bpowers/chd/internal/chdtest"
	"github.com/bpowers/chd/internal/header"
)

const testHunkBytes = 4096

func decode(t *testing.T, c *chdtest.Container) (Map, error) {
	t.Helper()
	b := c.Bytes()
	h, err := header.Parse(b)
	require.NoError(t, err)
	return Decode(bytes.NewReader(b), h)
}

func v5Header(hunks int, parent bool) chdtest.Header {
	h := chdtest.Header{
		Version:      5,
		Compressors:  [4]uint32{chdtest.FourCC("zlib"), chdtest.FourCC("zstd")},
		LogicalBytes: uint64(hunks) * testHunkBytes,
		HunkBytes:    testHunkBytes,
		UnitBytes:    512,
	}
	if parent {
		h.ParentSHA1[0] = 0xaa
	}
	return h
}

func payload(i, n int) []byte {
	return bytes.Repeat([]byte{byte(i)}, n)
}

func TestDecode_V5Compressed(t *testing.T) {
	const hunkUnits = testHunkBytes / 512
	var hunks []chdtest.Hunk
	// long and short runs of the same type exercise both RLE codes
	for i := 0; i < 25; i++ {
		hunks = append(hunks, chdtest.CompressedHunk(0, payload(i, 100+i), payload(i, testHunkBytes)))
	}
	hunks = append(hunks, chdtest.UncompressedHunk(payload(25, testHunkBytes)))
	for i := 26; i < 31; i++ {
		hunks = append(hunks, chdtest.CompressedHunk(1, payload(i, 50), payload(i, testHunkBytes)))
	}
	hunks = append(hunks,
		chdtest.SelfHunk(0),  // 31: self 0
		chdtest.SelfHunk(0),  // 32: same as last
		chdtest.SelfHunk(1),  // 33: last + 1
		chdtest.SelfHunk(20), // 34: explicit
		chdtest.ParentHunk(35*hunkUnits),
		chdtest.ParentHunk(35*hunkUnits),
		chdtest.ParentHunk(36*hunkUnits),
		chdtest.ParentHunk(1000),
	)

	c := &chdtest.Container{
		Header:        v5Header(len(hunks), true),
		Hunks:         hunks,
		CompressedMap: true,
	}
	m, err := decode(t, c)
	require.NoError(t, err)
	require.Len(t, m, len(hunks))

	offset := uint64(header.V5Size)
	for i := 0; i < 31; i++ {
		e := m[i]
		raw := payload(i, testHunkBytes)
		assert.Equal(t, offset, e.Offset, "hunk %d", i)
		assert.Equal(t, CRC16, e.CRCKind)
		assert.Equal(t, uint32(checksum.CRC16(raw)), e.CRC)
		assert.NoError(t, e.Check(raw))
		offset += uint64(e.Length)
		switch {
		case i < 25:
			assert.Equal(t, Compressed, e.Kind)
			assert.Equal(t, uint8(0), e.Codec)
			assert.Equal(t, uint32(100+i), e.Length)
		case i == 25:
			assert.Equal(t, Uncompressed, e.Kind)
			assert.Equal(t, uint32(testHunkBytes), e.Length)
		default:
			assert.Equal(t, Compressed, e.Kind)
			assert.Equal(t, uint8(1), e.Codec)
			assert.Equal(t, uint32(50), e.Length)
		}
	}

	for i, want := range []uint64{0, 0, 1, 20} {
		assert.Equal(t, Entry{Kind: Self, Offset: want}, m[31+i], "hunk %d", 31+i)
	}
	for i, want := range []uint64{35 * hunkUnits, 35 * hunkUnits, 36 * hunkUnits, 1000} {
		assert.Equal(t, Entry{Kind: Parent, Offset: want}, m[35+i], "hunk %d", 35+i)
	}
}

func TestDecode_V5CompressedLongRun(t *testing.T) {
	// more than one RLE_LARGE run's worth of identical types
	var hunks []chdtest.Hunk
	for i := 0; i < 600; i++ {
		hunks = append(hunks, chdtest.CompressedHunk(0, payload(i, 10), payload(i, 16)))
	}
	c := &chdtest.Container{Header: v5Header(600, false), Hunks: hunks, CompressedMap: true}
	m, err := decode(t, c)
	require.NoError(t, err)
	require.Len(t, m, 600)
	for i, e := range m {
		require.Equal(t, uint64(header.V5Size+10*i), e.Offset)
		require.Equal(t, uint32(10), e.Length)
	}
}

func TestDecode_V5CompressedCorrupt(t *testing.T) {
	hunks := []chdtest.Hunk{
		chdtest.CompressedHunk(0, payload(0, 10), payload(0, testHunkBytes)),
		chdtest.SelfHunk(0),
	}

	t.Run("map crc", func(t *testing.T) {
		c := &chdtest.Container{Header: v5Header(2, false), Hunks: hunks, CompressedMap: true, MapCRCDelta: 1}
		_, err := decode(t, c)
		assert.ErrorIs(t, err, chderr.ErrCorruptMap)
	})

	t.Run("forward self reference", func(t *testing.T) {
		c := &chdtest.Container{
			Header:        v5Header(2, false),
			Hunks:         []chdtest.Hunk{chdtest.SelfHunk(1), hunks[0]},
			CompressedMap: true,
		}
		_, err := decode(t, c)
		assert.ErrorIs(t, err, chderr.ErrCorruptMap)
	})

	t.Run("reference to itself", func(t *testing.T) {
		c := &chdtest.Container{
			Header:        v5Header(2, false),
			Hunks:         []chdtest.Hunk{hunks[0], chdtest.SelfHunk(1)},
			CompressedMap: true,
		}
		_, err := decode(t, c)
		assert.ErrorIs(t, err, chderr.ErrCorruptMap)
	})

	t.Run("undeclared parent", func(t *testing.T) {
		c := &chdtest.Container{
			Header:        v5Header(2, false),
			Hunks:         []chdtest.Hunk{hunks[0], chdtest.ParentHunk(8)},
			CompressedMap: true,
		}
		_, err := decode(t, c)
		assert.ErrorIs(t, err, chderr.ErrCorruptMap)
	})

	t.Run("empty codec slot", func(t *testing.T) {
		c := &chdtest.Container{
			Header:        v5Header(1, false),
			Hunks:         []chdtest.Hunk{chdtest.CompressedHunk(2, payload(0, 10), payload(0, 16))},
			CompressedMap: true,
		}
		_, err := decode(t, c)
		assert.ErrorIs(t, err, chderr.ErrCorruptMap)
	})

	t.Run("truncated bitstream", func(t *testing.T) {
		c := &chdtest.Container{Header: v5Header(2, false), Hunks: hunks, CompressedMap: true}
		b := c.Bytes()
		h, err := header.Parse(b)
		require.NoError(t, err)
		// drop the last byte of the map
		_, err = Decode(bytes.NewReader(b[:len(b)-1]), h)
		assert.ErrorIs(t, err, chderr.ErrTruncatedInput)
	})
}

func TestDecode_V5Blocks(t *testing.T) {
	hunks := []chdtest.Hunk{
		chdtest.UncompressedHunk(payload(1, testHunkBytes)),
		chdtest.MiniHunk(0),
		chdtest.UncompressedHunk(payload(2, testHunkBytes)),
		chdtest.SelfHunk(0),
	}
	h := v5Header(len(hunks), false)
	h.Compressors = [4]uint32{}
	c := &chdtest.Container{Header: h, Hunks: hunks}
	m, err := decode(t, c)
	require.NoError(t, err)

	// the header is padded out to the first block
	assert.Equal(t, Entry{Kind: Uncompressed, Offset: 1 * testHunkBytes, Length: testHunkBytes}, m[0])
	assert.Equal(t, Entry{Kind: Mini}, m[1])
	assert.Equal(t, Entry{Kind: Uncompressed, Offset: 2 * testHunkBytes, Length: testHunkBytes}, m[2])
	assert.Equal(t, m[0], m[3])
}

func TestDecode_V5BlocksParent(t *testing.T) {
	hunks := []chdtest.Hunk{
		chdtest.UncompressedHunk(payload(1, testHunkBytes)),
		chdtest.ParentHunk(0),
	}
	h := v5Header(len(hunks), true)
	h.Compressors = [4]uint32{}
	m, err := decode(t, &chdtest.Container{Header: h, Hunks: hunks})
	require.NoError(t, err)
	assert.Equal(t, Entry{Kind: Parent, Offset: testHunkBytes / 512}, m[1])
}

func v4Header(compression uint32, parent bool) chdtest.Header {
	h := chdtest.Header{
		Version:     4,
		Compression: compression,
		HunkBytes:   testHunkBytes,
	}
	if parent {
		h.Flags = header.FlagHasParent
	}
	return h
}

func TestDecode_V34(t *testing.T) {
	for _, version := range []uint32{3, 4} {
		hunks := []chdtest.Hunk{
			chdtest.CompressedHunk(0, payload(0, 300), payload(0, testHunkBytes)),
			chdtest.UncompressedHunk(payload(1, testHunkBytes)),
			chdtest.MiniHunk(0x0102030405060708),
			chdtest.SelfHunk(1),
			chdtest.ParentHunk(7),
			{Kind: chdtest.Compressed, Payload: payload(5, 70)}, // no crc
		}
		h := v4Header(1, true)
		h.Version = version
		h.LogicalBytes = uint64(len(hunks)) * testHunkBytes
		m, err := decode(t, &chdtest.Container{Header: h, Hunks: hunks})
		require.NoError(t, err)

		dataStart := uint64(header.Size(version) + len(hunks)*16 + 16)
		crc := func(i int) uint32 { return checksum.CRC32(payload(i, testHunkBytes)) }
		assert.Equal(t, Entry{Kind: Compressed, Offset: dataStart, Length: 300, CRC: crc(0), CRCKind: CRC32}, m[0])
		assert.Equal(t, Entry{Kind: Uncompressed, Offset: dataStart + 300, Length: testHunkBytes, CRC: crc(1), CRCKind: CRC32}, m[1])
		assert.Equal(t, Entry{Kind: Mini, Offset: 0x0102030405060708}, m[2])
		assert.Equal(t, Entry{Kind: Self, Offset: 1}, m[3])
		assert.Equal(t, Entry{Kind: Parent, Offset: 7}, m[4])
		assert.Equal(t, Entry{Kind: Compressed, Offset: dataStart + 300 + testHunkBytes, Length: 70}, m[5])
	}
}

func TestDecode_V34Corrupt(t *testing.T) {
	base := func() *chdtest.Container {
		h := v4Header(1, false)
		h.LogicalBytes = 2 * testHunkBytes
		return &chdtest.Container{Header: h, Hunks: []chdtest.Hunk{
			chdtest.CompressedHunk(0, payload(0, 300), payload(0, testHunkBytes)),
			chdtest.UncompressedHunk(payload(1, testHunkBytes)),
		}}
	}

	parse := func(t *testing.T, b []byte) (Map, error) {
		h, err := header.Parse(b)
		require.NoError(t, err)
		return Decode(bytes.NewReader(b), h)
	}

	t.Run("cookie", func(t *testing.T) {
		b := base().Bytes()
		b[header.V4Size+2*16] ^= 0xff
		_, err := parse(t, b)
		assert.ErrorIs(t, err, chderr.ErrCorruptMap)
	})

	t.Run("entry type", func(t *testing.T) {
		b := base().Bytes()
		b[header.V4Size+15] = 0x07
		_, err := parse(t, b)
		assert.ErrorIs(t, err, chderr.ErrCorruptMap)
	})

	t.Run("extent past end", func(t *testing.T) {
		b := base().Bytes()
		_, err := parse(t, b[:len(b)-1])
		assert.ErrorIs(t, err, chderr.ErrCorruptMap)
	})

	t.Run("uncompressed file with compressed hunk", func(t *testing.T) {
		c := base()
		c.Header.Compression = 0
		_, err := decode(t, c)
		assert.ErrorIs(t, err, chderr.ErrCorruptMap)
	})

	t.Run("self reference forward", func(t *testing.T) {
		c := base()
		c.Hunks[0] = chdtest.SelfHunk(1)
		_, err := decode(t, c)
		assert.ErrorIs(t, err, chderr.ErrCorruptMap)
	})

	t.Run("undeclared parent", func(t *testing.T) {
		c := base()
		c.Hunks[1] = chdtest.ParentHunk(1)
		_, err := decode(t, c)
		assert.ErrorIs(t, err, chderr.ErrCorruptMap)
	})

	t.Run("truncated map", func(t *testing.T) {
		b := base().Bytes()
		_, err := parse(t, b[:header.V4Size+20])
		assert.ErrorIs(t, err, chderr.ErrTruncatedInput)
	})
}

func TestDecode_V12(t *testing.T) {
	for _, version := range []uint32{1, 2} {
		h := chdtest.Header{
			Version:     version,
			Compression: 1,
			HunkSectors: 8,
			Cylinders:   1,
			Heads:       1,
			Sectors:     16,
			SectorBytes: 512,
		}
		hunks := []chdtest.Hunk{
			chdtest.CompressedHunk(0, payload(0, 123), nil),
			chdtest.UncompressedHunk(payload(1, testHunkBytes)),
		}
		m, err := decode(t, &chdtest.Container{Header: h, Hunks: hunks})
		require.NoError(t, err)

		dataStart := uint64(header.Size(version) + 2*8 + 8)
		assert.Equal(t, Entry{Kind: Compressed, Offset: dataStart, Length: 123}, m[0])
		assert.Equal(t, Entry{Kind: Uncompressed, Offset: dataStart + 123, Length: testHunkBytes}, m[1])
	}
}

func TestEntryCheck(t *testing.T) {
	data := []byte("123456789")
	assert.NoError(t, Entry{}.Check(data))
	assert.NoError(t, Entry{CRCKind: CRC16, CRC: 0x29b1}.Check(data))
	assert.NoError(t, Entry{CRCKind: CRC32, CRC: 0xcbf43926}.Check(data))

	err := Entry{CRCKind: CRC16, CRC: 0x29b0}.Check(data)
	assert.ErrorIs(t, err, chderr.ErrChecksumMismatch)
	assert.Contains(t, err.Error(), "crc16 mismatch (0x29b0 != 0x29b1)")

	err = Entry{CRCKind: CRC32, CRC: 1}.Check(data)
	assert.ErrorIs(t, err, chderr.ErrChecksumMismatch)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "self", Self.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}
