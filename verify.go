// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chd

import (
	"fmt"

	"github.com/bpowers/chd/internal/checksum"
)

// Verify reads every hunk and compares the digests of the logical data
// with those stored in the header: MD5 for v1 and v2, SHA-1 and MD5 for
// v3, and for v4 and v5 the raw SHA-1 plus the overall SHA-1 that also
// covers checksummed metadata.
func (c *Chd) Verify() error {
	if c.isClosed.Load() {
		return errClosed
	}

	sha, md := checksum.NewSHA1(), checksum.NewMD5()
	buf := make([]byte, c.h.HunkBytes)
	remaining := c.h.LogicalBytes
	for i := 0; i < len(c.m) && remaining > 0; i++ {
		if err := c.ReadHunkInto(buf, i); err != nil {
			return err
		}
		n := uint64(len(buf))
		if n > remaining {
			n = remaining
		}
		sha.Write(buf[:n])
		md.Write(buf[:n])
		remaining -= n
	}

	var rawSHA1 SHA1Digest
	var rawMD5 MD5Digest
	copy(rawSHA1[:], sha.Sum(nil))
	copy(rawMD5[:], md.Sum(nil))

	switch c.h.Version {
	case 1, 2:
		return checkDigest("md5", c.h.MD5, rawMD5)
	case 3:
		if err := checkDigest("sha1", c.h.SHA1, rawSHA1); err != nil {
			return err
		}
		return checkDigest("md5", c.h.MD5, rawMD5)
	}

	if err := checkDigest("raw sha1", c.h.RawSHA1, rawSHA1); err != nil {
		return err
	}
	metas, err := c.metadataHashes()
	if err != nil {
		return err
	}
	return checkDigest("sha1", c.h.SHA1, checksum.OverallSHA1(rawSHA1, metas))
}

func (c *Chd) metadataHashes() ([]checksum.MetadataHash, error) {
	var metas []checksum.MetadataHash
	it := c.Metadata()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if e.Checksummed() {
			metas = append(metas, checksum.MetadataHash{Tag: uint32(e.Tag), SHA1: checksum.SHA1(e.Data)})
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return metas, nil
}

func checkDigest[D SHA1Digest | MD5Digest](name string, want, got D) error {
	if want != got {
		return fmt.Errorf("%w: %s mismatch (%x != %x)", ErrChecksumMismatch, name, want, got)
	}
	return nil
}
