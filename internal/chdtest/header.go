// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package chdtest builds synthetic CHD containers for tests.  It knows
// the on-disk format independently of the reader packages so tests can
// check one against the other.
package chdtest

import (
	"encoding/binary"
)

const magic = "MComprHD"

var headerSizes = map[uint32]int{1: 76, 2: 80, 3: 120, 4: 108, 5: 124}

// HeaderSize returns the on-disk header length for a CHD version.
func HeaderSize(version uint32) int {
	return headerSizes[version]
}

// Header holds every field any CHD version stores.  Fields a version
// doesn't have are ignored when marshaling it.
type Header struct {
	Version uint32
	// Length overrides the stored header length when non-zero.
	Length uint32

	Flags       uint32
	Compression uint32
	Compressors [4]uint32

	LogicalBytes uint64
	HunkBytes    uint32
	TotalHunks   uint32
	UnitBytes    uint32
	MapOffset    uint64
	MetaOffset   uint64

	MD5        [16]byte
	ParentMD5  [16]byte
	SHA1       [20]byte
	ParentSHA1 [20]byte
	RawSHA1    [20]byte

	HunkSectors uint32
	Cylinders   uint32
	Heads       uint32
	Sectors     uint32
	SectorBytes uint32
}

// MarshalHeader lays h out in the format of h.Version.
func MarshalHeader(h Header) []byte {
	size := HeaderSize(h.Version)
	if size == 0 {
		size = 16
	}
	b := make([]byte, size)
	be := binary.BigEndian
	copy(b, magic)
	length := h.Length
	if length == 0 {
		length = uint32(size)
	}
	be.PutUint32(b[8:], length)
	be.PutUint32(b[12:], h.Version)

	switch h.Version {
	case 1, 2:
		be.PutUint32(b[16:], h.Flags)
		be.PutUint32(b[20:], h.Compression)
		be.PutUint32(b[24:], h.HunkSectors)
		be.PutUint32(b[28:], h.TotalHunks)
		be.PutUint32(b[32:], h.Cylinders)
		be.PutUint32(b[36:], h.Heads)
		be.PutUint32(b[40:], h.Sectors)
		copy(b[44:], h.MD5[:])
		copy(b[60:], h.ParentMD5[:])
		if h.Version == 2 {
			be.PutUint32(b[76:], h.SectorBytes)
		}
	case 3:
		be.PutUint32(b[16:], h.Flags)
		be.PutUint32(b[20:], h.Compression)
		be.PutUint32(b[24:], h.TotalHunks)
		be.PutUint64(b[28:], h.LogicalBytes)
		be.PutUint64(b[36:], h.MetaOffset)
		copy(b[44:], h.MD5[:])
		copy(b[60:], h.ParentMD5[:])
		be.PutUint32(b[76:], h.HunkBytes)
		copy(b[80:], h.SHA1[:])
		copy(b[100:], h.ParentSHA1[:])
	case 4:
		be.PutUint32(b[16:], h.Flags)
		be.PutUint32(b[20:], h.Compression)
		be.PutUint32(b[24:], h.TotalHunks)
		be.PutUint64(b[28:], h.LogicalBytes)
		be.PutUint64(b[36:], h.MetaOffset)
		be.PutUint32(b[44:], h.HunkBytes)
		copy(b[48:], h.SHA1[:])
		copy(b[68:], h.ParentSHA1[:])
		copy(b[88:], h.RawSHA1[:])
	case 5:
		for i, c := range h.Compressors {
			be.PutUint32(b[16+4*i:], c)
		}
		be.PutUint64(b[32:], h.LogicalBytes)
		be.PutUint64(b[40:], h.MapOffset)
		be.PutUint64(b[48:], h.MetaOffset)
		be.PutUint32(b[56:], h.HunkBytes)
		be.PutUint32(b[60:], h.UnitBytes)
		copy(b[64:], h.RawSHA1[:])
		copy(b[84:], h.SHA1[:])
		copy(b[104:], h.ParentSHA1[:])
	}
	return b
}

// FourCC packs a four character code the way CHD stores tags.
func FourCC(s string) uint32 {
	return binary.BigEndian.Uint32([]byte(s))
}
