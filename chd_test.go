// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chd

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/chd/internal/chdtest"
)

const testHunkBytes = 4096

// testData returns n bytes drawn from a small alphabet, so they
// compress without being trivial.
func testData(n int, seed int64) []byte {
	const alphabet = "chd hunk\x00"
	rng := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return b
}

func v5Container(logical uint64, hunks ...chdtest.Hunk) *chdtest.Container {
	return &chdtest.Container{
		Header: chdtest.Header{
			Version: 5,
			Compressors: [4]uint32{
				chdtest.FourCC("zlib"),
				chdtest.FourCC("zstd"),
				chdtest.FourCC("lzma"),
				chdtest.FourCC("huff"),
			},
			LogicalBytes: logical,
			HunkBytes:    testHunkBytes,
			UnitBytes:    512,
		},
		Hunks:         hunks,
		CompressedMap: true,
	}
}

func openContainer(t *testing.T, c *chdtest.Container, opts ...Option) *Chd {
	t.Helper()
	f, err := Open(bytes.NewReader(c.Bytes()), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func requireHunk(t *testing.T, f *Chd, i int, want []byte) {
	t.Helper()
	got, err := f.ReadHunk(i)
	require.NoError(t, err, "hunk %d", i)
	require.Equal(t, want, got, "hunk %d", i)
}

func TestOpen_SelfReference(t *testing.T) {
	data := testData(testHunkBytes, 1)
	c := v5Container(2*testHunkBytes,
		chdtest.CompressedHunk(0, chdtest.Deflate(data), data),
		chdtest.SelfHunk(0),
	)
	c.SetDigests(append(append([]byte(nil), data...), data...))

	f := openContainer(t, c)
	assert.Equal(t, 5, f.Version())
	assert.Equal(t, 2, f.HunkCount())
	assert.Equal(t, testHunkBytes, f.HunkSize())
	assert.Equal(t, 512, f.UnitSize())
	assert.Equal(t, int64(2*testHunkBytes), f.LogicalLength())
	assert.Nil(t, f.Parent())
	_, ok := f.ParentID()
	assert.False(t, ok)

	requireHunk(t, f, 0, data)
	requireHunk(t, f, 1, data)
	require.NoError(t, f.Verify())

	e, err := f.MapEntry(1)
	require.NoError(t, err)
	assert.Equal(t, HunkSelf, e.Kind)
	assert.Equal(t, uint64(0), e.Offset)
}

func TestReadHunk_Codecs(t *testing.T) {
	var raw [][]byte
	for i := 0; i < 5; i++ {
		raw = append(raw, testData(testHunkBytes, int64(10+i)))
	}
	c := v5Container(8*testHunkBytes,
		chdtest.CompressedHunk(0, chdtest.Deflate(raw[0]), raw[0]),
		chdtest.CompressedHunk(1, chdtest.Zstd(raw[1]), raw[1]),
		chdtest.CompressedHunk(2, chdtest.LZMA(raw[2]), raw[2]),
		chdtest.CompressedHunk(3, chdtest.Huffman(raw[3]), raw[3]),
		chdtest.UncompressedHunk(raw[4]),
		chdtest.SelfHunk(2),
		chdtest.SelfHunk(2),
		chdtest.SelfHunk(3),
	)
	f := openContainer(t, c)

	want := append(raw, raw[2], raw[2], raw[3])
	for i, w := range want {
		requireHunk(t, f, i, w)
	}
	h := f.Header()
	assert.Equal(t, []CodecTag{0x7a6c6962, 0x7a737464, 0x6c7a6d61, 0x68756666}, h.Codecs())
}

func TestReadHunk_OutOfRange(t *testing.T) {
	data := testData(testHunkBytes, 2)
	f := openContainer(t, v5Container(2*testHunkBytes,
		chdtest.UncompressedHunk(data),
		chdtest.SelfHunk(0),
	))
	requireHunk(t, f, 0, data)
	requireHunk(t, f, 1, data)

	for _, i := range []int{-1, 2, 1 << 30} {
		_, err := f.ReadHunk(i)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		assert.Equal(t, KindIndexOutOfRange, KindOf(err))
		var he *HunkError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, i, he.Hunk)
	}
	_, err := f.MapEntry(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestReadHunk_ChecksumMismatch(t *testing.T) {
	raw := [][]byte{testData(testHunkBytes, 3), testData(testHunkBytes, 4), testData(testHunkBytes, 5)}
	bad := chdtest.CompressedHunk(0, chdtest.Deflate(raw[1]), raw[1])
	bad.BadCRC = true
	f := openContainer(t, v5Container(4*testHunkBytes,
		chdtest.CompressedHunk(0, chdtest.Deflate(raw[0]), raw[0]),
		bad,
		chdtest.UncompressedHunk(raw[2]),
		chdtest.SelfHunk(1),
	))

	_, err := f.ReadHunk(1)
	require.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Equal(t, KindChecksumMismatch, KindOf(err))
	assert.Contains(t, err.Error(), "hunk 1")

	// the reference inherits the failure
	_, err = f.ReadHunk(3)
	require.ErrorIs(t, err, ErrChecksumMismatch)
	var he *HunkError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, 3, he.Hunk)

	// other hunks are unaffected
	requireHunk(t, f, 0, raw[0])
	requireHunk(t, f, 2, raw[2])
}

func TestReadHunk_Malformed(t *testing.T) {
	data := testData(testHunkBytes, 6)
	garbage := bytes.Repeat([]byte{0xff}, 64)
	f := openContainer(t, v5Container(2*testHunkBytes,
		chdtest.CompressedHunk(1, garbage, data),
		chdtest.CompressedHunk(0, chdtest.Deflate(data[:testHunkBytes-1]), data),
	))

	_, err := f.ReadHunk(0)
	require.Error(t, err)
	kind := KindOf(err)
	assert.True(t, kind == KindDecompressionFailed || kind == KindSizeMismatch, "kind %s", kind)

	_, err = f.ReadHunk(1)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestReadHunk_UnknownCodec(t *testing.T) {
	data := testData(testHunkBytes, 7)
	c := v5Container(2*testHunkBytes,
		chdtest.CompressedHunk(0, chdtest.Deflate(data), data),
		chdtest.CompressedHunk(1, []byte("flac frames"), data),
	)
	c.Header.Compressors[1] = chdtest.FourCC("flac")
	f := openContainer(t, c)

	h := f.Header()
	assert.True(t, CodecSupported(h.Compressors[0]))
	assert.False(t, CodecSupported(h.Compressors[1]))

	requireHunk(t, f, 0, data)
	_, err := f.ReadHunk(1)
	assert.ErrorIs(t, err, ErrUnknownCodec)
	assert.Equal(t, KindUnknownCodec, KindOf(err))
}

// sizelessReader hides the size of the underlying reader, so nothing
// can be checked against the end of the file before it's read.
type sizelessReader struct {
	r io.ReaderAt
}

func (s sizelessReader) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(p, off)
}

func TestReadHunk_Truncated(t *testing.T) {
	raw := [][]byte{testData(testHunkBytes, 8), testData(testHunkBytes, 9)}
	c := &chdtest.Container{
		Header: chdtest.Header{Version: 4, Compression: 1, LogicalBytes: 2 * testHunkBytes, HunkBytes: testHunkBytes},
		Hunks: []chdtest.Hunk{
			chdtest.CompressedHunk(0, chdtest.Deflate(raw[0]), raw[0]),
			chdtest.UncompressedHunk(raw[1]),
		},
	}
	b := c.Bytes()
	b = b[:len(b)-100]

	f, err := Open(sizelessReader{bytes.NewReader(b)})
	require.NoError(t, err)
	requireHunk(t, f, 0, raw[0])
	_, err = f.ReadHunk(1)
	assert.ErrorIs(t, err, ErrTruncatedInput)

	// with the size known the bad extent is caught up front
	_, err = Open(bytes.NewReader(b))
	assert.ErrorIs(t, err, ErrCorruptMap)
}

func TestReadHunk_Concurrent(t *testing.T) {
	var raw [][]byte
	var hunks []chdtest.Hunk
	for i := 0; i < 8; i++ {
		d := testData(testHunkBytes, int64(20+i))
		raw = append(raw, d)
		if i%2 == 0 {
			hunks = append(hunks, chdtest.CompressedHunk(0, chdtest.Deflate(d), d))
		} else {
			hunks = append(hunks, chdtest.CompressedHunk(1, chdtest.Zstd(d), d))
		}
	}
	f := openContainer(t, v5Container(8*testHunkBytes, hunks...), WithHunkCache(4))

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for g := 0; g < len(errs); g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range raw {
				j := (i + g) % len(raw)
				got, err := f.ReadHunk(j)
				if err != nil {
					errs[g] = err
					return
				}
				if !bytes.Equal(raw[j], got) {
					errs[g] = errors.New("hunk contents differ")
					return
				}
			}
		}(g)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestLastHunk(t *testing.T) {
	full := testData(testHunkBytes, 30)
	tail := append(testData(100, 31), make([]byte, testHunkBytes-100)...)

	t.Run("partial", func(t *testing.T) {
		f := openContainer(t, v5Container(testHunkBytes+100,
			chdtest.UncompressedHunk(full),
			chdtest.CompressedHunk(0, chdtest.Deflate(tail), tail),
		))
		assert.Equal(t, 2, f.HunkCount())
		requireHunk(t, f, 1, tail)

		buf := make([]byte, 2*testHunkBytes)
		n, err := f.ReadAt(buf, 0)
		assert.Equal(t, io.EOF, err)
		require.Equal(t, testHunkBytes+100, n)
		assert.Equal(t, full, buf[:testHunkBytes])
		assert.Equal(t, tail[:100], buf[testHunkBytes:n])
	})

	t.Run("exact", func(t *testing.T) {
		f := openContainer(t, v5Container(2*testHunkBytes,
			chdtest.UncompressedHunk(full),
			chdtest.SelfHunk(0),
		))
		assert.Equal(t, 2, f.HunkCount())

		buf := make([]byte, 2*testHunkBytes)
		n, err := f.ReadAt(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, 2*testHunkBytes, n)

		n, err = f.ReadAt(buf, 2*testHunkBytes)
		assert.Equal(t, io.EOF, err)
		assert.Equal(t, 0, n)
	})
}

func TestReadAt(t *testing.T) {
	raw := [][]byte{testData(testHunkBytes, 40), testData(testHunkBytes, 41), testData(testHunkBytes, 42)}
	f := openContainer(t, v5Container(3*testHunkBytes,
		chdtest.CompressedHunk(0, chdtest.Deflate(raw[0]), raw[0]),
		chdtest.CompressedHunk(1, chdtest.Zstd(raw[1]), raw[1]),
		chdtest.UncompressedHunk(raw[2]),
	))
	logical := bytes.Join(raw, nil)

	for _, tt := range []struct {
		off, n int
	}{
		{0, 10},
		{4050, 100},
		{100, 2*testHunkBytes + 50},
		{3*testHunkBytes - 1, 1},
	} {
		buf := make([]byte, tt.n)
		n, err := f.ReadAt(buf, int64(tt.off))
		require.NoError(t, err)
		require.Equal(t, tt.n, n)
		assert.Equal(t, logical[tt.off:tt.off+tt.n], buf)
	}

	_, err := f.ReadAt(make([]byte, 1), -1)
	assert.Error(t, err)

	r := io.NewSectionReader(f, 0, f.LogicalLength())
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, logical, all)
}

func TestReadHunkInto(t *testing.T) {
	data := testData(testHunkBytes, 50)
	f := openContainer(t, v5Container(testHunkBytes, chdtest.CompressedHunk(2, chdtest.LZMA(data), data)))

	buf := make([]byte, testHunkBytes+10)
	require.NoError(t, f.ReadHunkInto(buf, 0))
	assert.Equal(t, data, buf[:testHunkBytes])

	err := f.ReadHunkInto(make([]byte, 10), 0)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestCache(t *testing.T) {
	raw := [][]byte{testData(testHunkBytes, 60), testData(testHunkBytes, 61)}
	f := openContainer(t, v5Container(3*testHunkBytes,
		chdtest.CompressedHunk(0, chdtest.Deflate(raw[0]), raw[0]),
		chdtest.CompressedHunk(1, chdtest.Zstd(raw[1]), raw[1]),
		chdtest.SelfHunk(0),
	), WithHunkCache(1))

	got, err := f.ReadHunk(0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.len())

	// callers own what they're given
	got[0] ^= 0xff
	requireHunk(t, f, 0, raw[0])
	requireHunk(t, f, 2, raw[0])

	// full: nothing more is added
	requireHunk(t, f, 1, raw[1])
	assert.Equal(t, 1, f.cache.len())

	noCache := openContainer(t, v5Container(testHunkBytes, chdtest.UncompressedHunk(raw[0])))
	requireHunk(t, noCache, 0, raw[0])
	assert.Equal(t, 0, noCache.cache.len())
}

func TestClose(t *testing.T) {
	data := testData(testHunkBytes, 70)
	f, err := Open(bytes.NewReader(v5Container(testHunkBytes, chdtest.UncompressedHunk(data)).Bytes()))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.ReadHunk(0)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, f.Verify(), ErrIO)
	_, err = f.MetadataEntries()
	assert.ErrorIs(t, err, ErrIO)
}

func TestOpen_Errors(t *testing.T) {
	data := testData(testHunkBytes, 80)
	good := v5Container(2*testHunkBytes, chdtest.UncompressedHunk(data), chdtest.SelfHunk(0)).Bytes()

	for _, tt := range []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"empty", func(b []byte) []byte { return nil }, ErrTruncatedInput},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrInvalidFormat},
		{"version", func(b []byte) []byte { b[15] = 6; return b }, ErrUnsupportedVersion},
		{"truncated map", func(b []byte) []byte { return b[:len(b)-4] }, ErrTruncatedInput},
	} {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), good...))
			_, err := Open(bytes.NewReader(b))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
