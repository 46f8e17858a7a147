// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package checksum implements the digests a CHD file stores: CRC16 and
// CRC32 for individual hunks and the compressed map, MD5 and SHA-1 for
// whole-file integrity and for binding a child to its parent.
package checksum

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"hash/crc32"
	"sort"
)

// SHA1Digest is a SHA-1 digest as stored in v3+ headers.
type SHA1Digest [sha1.Size]byte

// MD5Digest is an MD5 digest as stored in v1-v3 headers.
type MD5Digest [md5.Size]byte

func (d SHA1Digest) IsZero() bool { return d == SHA1Digest{} }

func (d SHA1Digest) String() string { return hex.EncodeToString(d[:]) }

func (d MD5Digest) IsZero() bool { return d == MD5Digest{} }

func (d MD5Digest) String() string { return hex.EncodeToString(d[:]) }

var crc16Table = func() (table [256]uint16) {
	for i := range table {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return
}()

// CRC16 is the CCITT CRC16 (polynomial 0x1021, initial value 0xffff)
// used by v5 map entries and the v5 compressed map itself.
func CRC16(b []byte) uint16 {
	crc := uint16(0xffff)
	for _, v := range b {
		crc = crc<<8 ^ crc16Table[byte(crc>>8)^v]
	}
	return crc
}

// CRC32 is the IEEE CRC32 used by v3 and v4 map entries.
func CRC32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

func VerifyCRC16(b []byte, expected uint16) bool {
	return CRC16(b) == expected
}

func VerifyCRC32(b []byte, expected uint32) bool {
	return CRC32(b) == expected
}

func SHA1(b []byte) SHA1Digest {
	return sha1.Sum(b)
}

func MD5(b []byte) MD5Digest {
	return md5.Sum(b)
}

// NewSHA1 returns a streaming SHA-1 hasher for digests over a whole
// container's logical bytes.
func NewSHA1() hash.Hash { return sha1.New() }

// NewMD5 returns a streaming MD5 hasher.
func NewMD5() hash.Hash { return md5.New() }

// MetadataHash is the contribution of one checksummed metadata entry to
// the overall SHA-1 of a v4 or v5 container.
type MetadataHash struct {
	Tag  uint32
	SHA1 SHA1Digest
}

func (m MetadataHash) bytes() []byte {
	var b [4 + sha1.Size]byte
	binary.BigEndian.PutUint32(b[:4], m.Tag)
	copy(b[4:], m.SHA1[:])
	return b[:]
}

// OverallSHA1 combines the raw data SHA-1 with the hashes of all
// checksummed metadata entries.  The metadata hashes are sorted
// bytewise so the result is independent of chain order.
func OverallSHA1(raw SHA1Digest, metas []MetadataHash) SHA1Digest {
	entries := make([][]byte, 0, len(metas))
	for _, m := range metas {
		entries = append(entries, m.bytes())
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i], entries[j]) < 0
	})

	h := sha1.New()
	h.Write(raw[:])
	for _, e := range entries {
		h.Write(e)
	}
	var out SHA1Digest
	copy(out[:], h.Sum(nil))
	return out
}
