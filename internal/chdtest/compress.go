// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chdtest

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"

	"github.com/bpowers/chd/internal/cdrom"
)

// Deflate returns data as a raw deflate stream.
func Deflate(data []byte) []byte {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(data); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Zstd returns data as a single zstd frame.
func Zstd(data []byte) []byte {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

// LZMA returns data as a headerless LZMA stream with the properties and
// dictionary size CHD uses for a hunk of len(data) bytes.
func LZMA(data []byte) []byte {
	dictCap := 2 << 11
	for i := 11; i <= 30; i++ {
		if len(data) <= 2<<i {
			dictCap = 2 << i
			break
		}
		if len(data) <= 3<<i {
			dictCap = 3 << i
			break
		}
	}

	var buf bytes.Buffer
	cfg := lzma.WriterConfig{
		Properties:   &lzma.Properties{LC: 3, LP: 0, PB: 2},
		DictCap:      dictCap,
		SizeInHeader: true,
		Size:         int64(len(data)),
	}
	w, err := cfg.NewWriter(&buf)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(data); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	out := buf.Bytes()
	if binary.LittleEndian.Uint64(out[5:13]) != uint64(len(data)) {
		panic("chdtest: lzma writer did not record the size")
	}
	// CHD stores the stream without the 13-byte header
	return out[13:]
}

// WriteFlatByteTree writes a tree in the huffman.ImportTreeHuffman format
// giving all 256 byte values 8-bit codes equal to themselves.
func WriteFlatByteTree(w *BitWriter) {
	w.Write(1, 3) // small tree symbol 0 has length 1
	w.Write(8, 3) // first explicit small tree length is symbol 9
	w.Write(1, 3) // symbol 9 has length 1
	w.Write(7, 3) // terminate: remaining small symbols unused
	w.Write(1, 1) // small symbol 9: length 8
	w.Write(0, 1) // small symbol 0: repeat last length
	w.Write(7, 3) // 7+2 ...
	w.Write(246, 8)
}

// Huffman encodes data for the "huff" codec using a flat tree.
func Huffman(data []byte) []byte {
	var w BitWriter
	WriteFlatByteTree(&w)
	for _, b := range data {
		w.Write(uint64(b), 8)
	}
	return w.Bytes()
}

// CDHunk encodes whole CD frames the way the CD codecs store them.
// Sectors that begin with the sync header and carry valid ECC have both
// stripped and are flagged in the ECC bitmap.
func CDHunk(frames []byte, base, subcode func([]byte) []byte) []byte {
	n := len(frames) / cdrom.FrameSize
	bitmap := make([]byte, (n+7)/8)
	sectors := make([]byte, 0, n*cdrom.SectorSize)
	subcodes := make([]byte, 0, n*cdrom.SubcodeSize)
	for f := 0; f < n; f++ {
		frame := frames[f*cdrom.FrameSize : (f+1)*cdrom.FrameSize]
		sector := append([]byte(nil), frame[:cdrom.SectorSize]...)
		if bytes.Equal(sector[:len(cdrom.SyncHeader)], cdrom.SyncHeader[:]) && cdrom.VerifyECC(sector) {
			bitmap[f/8] |= 1 << (f % 8)
			for i := range cdrom.SyncHeader {
				sector[i] = 0
			}
			for i := 0x81c; i < cdrom.SectorSize; i++ {
				sector[i] = 0
			}
		}
		sectors = append(sectors, sector...)
		subcodes = append(subcodes, frame[cdrom.SectorSize:]...)
	}

	b := base(sectors)
	out := append([]byte(nil), bitmap...)
	if len(frames) >= 65536 {
		out = append(out, byte(len(b)>>16))
	}
	out = append(out, byte(len(b)>>8), byte(len(b)))
	out = append(out, b...)
	return append(out, subcode(subcodes)...)
}
