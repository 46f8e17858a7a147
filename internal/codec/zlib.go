// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// decompressDeflate inflates a raw deflate stream (no zlib header or
// adler32 trailer, which is how CHD stores zlib hunks).
func decompressDeflate(src []byte, dstLen int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()

	// read one byte past dstLen so oversized streams are noticed
	out := make([]byte, 0, dstLen+1)
	buf := bytes.NewBuffer(out)
	if _, err := buf.ReadFrom(io.LimitReader(r, int64(dstLen)+1)); err != nil {
		return nil, failed("zlib", err)
	}
	if buf.Len() != dstLen {
		return nil, sizeMismatch("zlib", buf.Len(), dstLen)
	}
	return buf.Bytes(), nil
}
