// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package codec

import (
	"fmt"

	"github.com/bpowers/chd/internal/cdrom"
	"github.com/bpowers/chd/internal/chderr"
)

// cdDecompressor builds a decoder for hunks of whole CD frames.  The
// compressed layout is:
//
//	ecc bitmap    (frames+7)/8 bytes, bit f set => frame f had its ECC stripped
//	base length   2 bytes (3 if the hunk is >= 64 KiB), big endian
//	base stream   frames*2352 bytes of sector data once decoded
//	subcode       frames*96 bytes of subcode once decoded
func cdDecompressor(base, subcode decompressFunc) decompressFunc {
	return func(src []byte, dstLen int) ([]byte, error) {
		if dstLen%cdrom.FrameSize != 0 {
			return nil, fmt.Errorf("%w: cd hunk of %d bytes is not whole frames", chderr.ErrSizeMismatch, dstLen)
		}
		frames := dstLen / cdrom.FrameSize
		eccBytes := (frames + 7) / 8
		lenBytes := 2
		if dstLen >= 65536 {
			lenBytes = 3
		}
		headerBytes := eccBytes + lenBytes
		if len(src) < headerBytes {
			return nil, fmt.Errorf("%w: cd hunk header needs %d bytes, have %d", chderr.ErrDecompressionFailed, headerBytes, len(src))
		}

		baseLen := 0
		for _, b := range src[eccBytes:headerBytes] {
			baseLen = baseLen<<8 | int(b)
		}
		if headerBytes+baseLen > len(src) {
			return nil, fmt.Errorf("%w: cd base stream of %d bytes overruns %d byte hunk", chderr.ErrDecompressionFailed, baseLen, len(src))
		}

		sectors, err := base(src[headerBytes:headerBytes+baseLen], frames*cdrom.SectorSize)
		if err != nil {
			return nil, err
		}
		subcodes, err := subcode(src[headerBytes+baseLen:], frames*cdrom.SubcodeSize)
		if err != nil {
			return nil, err
		}

		out := make([]byte, dstLen)
		for f := 0; f < frames; f++ {
			frame := out[f*cdrom.FrameSize : (f+1)*cdrom.FrameSize]
			sector := frame[:cdrom.SectorSize]
			copy(sector, sectors[f*cdrom.SectorSize:])
			copy(frame[cdrom.SectorSize:], subcodes[f*cdrom.SubcodeSize:(f+1)*cdrom.SubcodeSize])
			if src[f/8]&(1<<(f%8)) != 0 {
				copy(sector, cdrom.SyncHeader[:])
				cdrom.GenerateECC(sector)
			}
		}
		return out, nil
	}
}
