// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package codec decompresses CHD hunks.  The set of codecs is closed:
// each is named by the four-character tag stored in the v5 header's
// compressor slots, and every decoder has the same shape, taking the
// compressed bytes and the exact expected output length.
package codec

import (
	"fmt"

	"github.com/bpowers/chd/internal/chderr"
)

// Tag is a big-endian FourCC identifying a codec.
type Tag uint32

func fourcc(s string) Tag {
	return Tag(uint32(s[0])<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3]))
}

var (
	None    Tag = 0
	Zlib        = fourcc("zlib")
	Zstd        = fourcc("zstd")
	LZMA        = fourcc("lzma")
	Huffman     = fourcc("huff")
	FLAC        = fourcc("flac")
	CDZlib      = fourcc("cdzl")
	CDLZMA      = fourcc("cdlz")
	CDZstd      = fourcc("cdzs")
	CDFLAC      = fourcc("cdfl")
	AVHuff      = fourcc("avhu")
)

func (t Tag) String() string {
	if t == None {
		return "none"
	}
	b := []byte{byte(t >> 24), byte(t >> 16), byte(t >> 8), byte(t)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(t))
		}
	}
	return string(b)
}

type decompressFunc func(src []byte, dstLen int) ([]byte, error)

var decoders map[Tag]decompressFunc

func init() {
	decoders = map[Tag]decompressFunc{
		Zlib:    decompressDeflate,
		Zstd:    decompressZstd,
		LZMA:    decompressLZMA,
		Huffman: decompressHuffman,
		CDZlib:  cdDecompressor(decompressDeflate, decompressDeflate),
		CDLZMA:  cdDecompressor(decompressLZMA, decompressDeflate),
		CDZstd:  cdDecompressor(decompressZstd, decompressZstd),
	}
}

// Known reports whether t is a codec the CHD format defines, whether or
// not it can be decoded here.
func Known(t Tag) bool {
	switch t {
	case Zlib, Zstd, LZMA, Huffman, FLAC, CDZlib, CDLZMA, CDZstd, CDFLAC, AVHuff:
		return true
	}
	return false
}

// Supported reports whether Decompress can decode hunks compressed with t.
func Supported(t Tag) bool {
	_, ok := decoders[t]
	return ok
}

// Decompress decodes src into exactly dstLen bytes.  Any other output
// length is ErrSizeMismatch; malformed input is ErrDecompressionFailed.
func Decompress(t Tag, src []byte, dstLen int) ([]byte, error) {
	decode, ok := decoders[t]
	if !ok {
		if Known(t) {
			return nil, fmt.Errorf("%w: no decoder for %s", chderr.ErrUnknownCodec, t)
		}
		return nil, fmt.Errorf("%w: %s", chderr.ErrUnknownCodec, t)
	}
	return decode(src, dstLen)
}

// FromLegacy maps the single compression number of v1-v4 headers to a
// codec tag.
func FromLegacy(compression uint32) (Tag, error) {
	switch compression {
	case 0:
		return None, nil
	case 1, 2: // zlib and zlib+ share a bitstream
		return Zlib, nil
	case 3:
		return AVHuff, nil
	}
	return None, fmt.Errorf("%w: legacy compression type %d", chderr.ErrUnknownCodec, compression)
}

func sizeMismatch(name string, got, want int) error {
	return fmt.Errorf("%w: %s produced %d bytes, expected %d", chderr.ErrSizeMismatch, name, got, want)
}

func failed(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", chderr.ErrDecompressionFailed, name, err)
}
