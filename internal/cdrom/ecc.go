// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package cdrom knows the layout of raw CD frames as CHD stores them and
// regenerates the sync header and P/Q error correction codes that the CD
// codecs strip before compression.
//
// A frame is a 2352-byte raw sector followed by 96 bytes of subcode:
//
//	 0     12    16                   0x81c  0x8c8  0x930     0x990
//	+-----+-----+--------------------+------+------+---------+
//	|sync |hdr  | user data + EDC    |  P   |  Q   | subcode |
//	+-----+-----+--------------------+------+------+---------+
package cdrom

const (
	SectorSize  = 2352
	SubcodeSize = 96
	FrameSize   = SectorSize + SubcodeSize

	syncSize   = 12
	modeOffset = 0x0f

	pOffset = 0x81c
	qOffset = 0x8c8
)

// SyncHeader begins every raw data sector.
var SyncHeader = [syncSize]byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

// GF(2^8) multiply-by-2 (eccF) and its inverse helper (eccB)
var eccF, eccB = func() (f, b [256]byte) {
	for i := 0; i < 256; i++ {
		j := i << 1
		if i&0x80 != 0 {
			j ^= 0x11d
		}
		f[i] = byte(j)
		b[i^j] = byte(i)
	}
	return
}()

// eccSource returns the byte at offset off past the sync header.  Mode 2
// sectors compute ECC as though their 4-byte header were zero.
func eccSource(sector []byte, off int) byte {
	if sector[modeOffset] == 2 && off < 4 {
		return 0
	}
	return sector[syncSize+off]
}

func computeBlock(sector []byte, majorCount, minorCount, majorMult, minorInc int, dest []byte) {
	size := majorCount * minorCount
	for major := 0; major < majorCount; major++ {
		index := (major>>1)*majorMult + (major & 1)
		var a, b byte
		for minor := 0; minor < minorCount; minor++ {
			v := eccSource(sector, index)
			index += minorInc
			if index >= size {
				index -= size
			}
			a ^= v
			b ^= v
			a = eccF[a]
		}
		a = eccB[eccF[a]^b]
		dest[major] = a
		dest[major+majorCount] = a ^ b
	}
}

// GenerateECC fills in the P and Q parity bytes of a raw sector.  Q
// covers the P bytes, so P is computed first.
func GenerateECC(sector []byte) {
	_ = sector[SectorSize-1]
	computeBlock(sector, 86, 24, 2, 86, sector[pOffset:qOffset])
	computeBlock(sector, 52, 43, 86, 88, sector[qOffset:SectorSize])
}

// VerifyECC reports whether a raw sector's P and Q parity is consistent
// with its contents.
func VerifyECC(sector []byte) bool {
	var scratch [SectorSize]byte
	copy(scratch[:], sector[:SectorSize])
	GenerateECC(scratch[:])
	for i := pOffset; i < SectorSize; i++ {
		if scratch[i] != sector[i] {
			return false
		}
	}
	return true
}
