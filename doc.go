// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package chd reads CHD ("Compressed Hunks of Data") files, the
// container format MAME uses for hard disk, CD-ROM, GD-ROM and LaserDisc
// images.
//
// A CHD file stores a logical byte range as a sequence of fixed-size
// hunks.  Each hunk is compressed with one of a small set of codecs,
// stored raw, described by a repeating 8-byte pattern, shared with an
// earlier hunk, or (for differencing images) taken from a parent file.
// Every hunk read is checked against the checksum stored in the file's
// hunk map, and Verify checks the whole-file digests in the header.
//
// Files of all five format versions can be read:
//
//	f, err := chd.OpenFile("disk.chd")
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//	hunk, err := f.ReadHunk(0)
//
// ReadHunk, ReadAt and Verify may be called concurrently.  Close must
// not race with them.
package chd
