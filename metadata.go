// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chd

import (
	"github.com/bpowers/chd/internal/metadata"
)

// Well-known metadata tags.
var (
	HardDiskMetadata      = metadata.HardDisk
	HardDiskIdentMetadata = metadata.HardDiskIdent
	HardDiskKeyMetadata   = metadata.HardDiskKey
	PCMCIACISMetadata     = metadata.PCMCIACIS
	CDROMOldMetadata      = metadata.CDROMOld
	CDROMTrackMetadata    = metadata.CDROMTrack
	CDROMTrack2Metadata   = metadata.CDROMTrack2
	GDROMOldMetadata      = metadata.GDROMOld
	GDROMTrackMetadata    = metadata.GDROMTrack
	DVDMetadata           = metadata.DVD
	AVMetadata            = metadata.AV
	AVLaserDiscMetadata   = metadata.AVLaserDisc
)

// NewMetadataTag builds a tag from its four-character name.
func NewMetadataTag(s string) MetadataTag {
	return metadata.NewTag(s)
}

// Metadata returns an iterator over the file's metadata entries.  Each
// call starts again from the first entry.  After Close the iterator is
// empty and its Err reports the closed file.
func (c *Chd) Metadata() *MetadataIter {
	if c.isClosed.Load() {
		return metadata.FailedIter(errClosed)
	}
	return metadata.NewIter(c.r, c.h.MetaOffset)
}

// MetadataEntries reads every metadata entry.
func (c *Chd) MetadataEntries() ([]Metadata, error) {
	if c.isClosed.Load() {
		return nil, errClosed
	}
	return metadata.All(c.r, c.h.MetaOffset)
}

// FindMetadata returns the n-th (counting from zero) entry with the given
// tag, or ErrMetadataNotFound.
func (c *Chd) FindMetadata(tag MetadataTag, n int) (Metadata, error) {
	if c.isClosed.Load() {
		return Metadata{}, errClosed
	}
	return metadata.Find(c.r, c.h.MetaOffset, tag, n)
}
