// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package metadata walks the linked list of tagged metadata entries a
// CHD file carries alongside its hunks (drive geometry, CD track
// layouts and the like).
package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bpowers/chd/internal/chderr"
	"github.com/bpowers/chd/internal/ondisk"
)

const (
	// FlagChecksum marks entries that contribute to a file's overall
	// SHA-1.
	FlagChecksum = 0x01

	// MaxEntries bounds how many entries a chain may hold.
	MaxEntries = 1000

	entryHeaderSize = 16
)

var ErrNotFound = errors.New("metadata entry not found")

// Tag is a big-endian FourCC naming an entry's contents.
type Tag uint32

func NewTag(s string) Tag {
	return Tag(binary.BigEndian.Uint32([]byte(s)))
}

func (t Tag) String() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(t))
	return string(b[:])
}

var (
	HardDisk      = NewTag("GDDD")
	HardDiskIdent = NewTag("IDNT")
	HardDiskKey   = NewTag("KEY ")
	PCMCIACIS     = NewTag("CIS ")
	CDROMOld      = NewTag("CHCD")
	CDROMTrack    = NewTag("CHTR")
	CDROMTrack2   = NewTag("CHT2")
	GDROMOld      = NewTag("CHGT")
	GDROMTrack    = NewTag("CHGD")
	DVD           = NewTag("DVD ")
	AV            = NewTag("AVAV")
	AVLaserDisc   = NewTag("AVLD")
)

// Entry is one metadata entry.  Offset is where its header starts.
type Entry struct {
	Tag    Tag
	Flags  uint8
	Data   []byte
	Offset uint64
}

func (e Entry) Checksummed() bool {
	return e.Flags&FlagChecksum != 0
}

// Iter walks a metadata chain.  Each entry is read when Next reaches
// it; Err reports why iteration stopped early.
type Iter struct {
	r     io.ReaderAt
	next  uint64
	seen  map[uint64]struct{}
	count int
	err   error
}

// NewIter returns an iterator over the chain starting at first.  A first
// offset of zero is an empty chain.
func NewIter(r io.ReaderAt, first uint64) *Iter {
	return &Iter{
		r:    r,
		next: first,
		seen: make(map[uint64]struct{}),
	}
}

// FailedIter returns an iterator that yields nothing and reports err.
func FailedIter(err error) *Iter {
	return &Iter{err: err}
}

func (it *Iter) Next() (Entry, bool) {
	if it.err != nil || it.next == 0 {
		return Entry{}, false
	}
	off := it.next
	if _, ok := it.seen[off]; ok {
		it.err = fmt.Errorf("%w: metadata chain loops back to offset %d", chderr.ErrInvalidFormat, off)
		return Entry{}, false
	}
	if it.count >= MaxEntries {
		it.err = fmt.Errorf("%w: more than %d metadata entries", chderr.ErrInvalidFormat, MaxEntries)
		return Entry{}, false
	}
	it.seen[off] = struct{}{}
	it.count++

	var hdr [entryHeaderSize]byte
	if err := ondisk.ReadFull(it.r, hdr[:], off); err != nil {
		it.err = fmt.Errorf("metadata entry at %d: %w", off, err)
		return Entry{}, false
	}
	lengthFlags := binary.BigEndian.Uint32(hdr[4:8])
	e := Entry{
		Tag:    Tag(binary.BigEndian.Uint32(hdr[0:4])),
		Flags:  uint8(lengthFlags >> 24),
		Offset: off,
	}
	length := lengthFlags & 0x00ffffff
	it.next = binary.BigEndian.Uint64(hdr[8:16])

	if size := ondisk.Size(it.r); size >= 0 && off+entryHeaderSize+uint64(length) > uint64(size) {
		it.err = fmt.Errorf("%w: metadata entry at %d holds %d bytes past end of file", chderr.ErrTruncatedInput, off, length)
		return Entry{}, false
	}
	e.Data = make([]byte, length)
	if err := ondisk.ReadFull(it.r, e.Data, off+entryHeaderSize); err != nil {
		it.err = fmt.Errorf("metadata entry at %d: %w", off, err)
		return Entry{}, false
	}
	return e, true
}

func (it *Iter) Err() error {
	return it.err
}

// All collects the chain starting at first.
func All(r io.ReaderAt, first uint64) ([]Entry, error) {
	var entries []Entry
	it := NewIter(r, first)
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		entries = append(entries, e)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Find returns the n-th (from zero) entry tagged tag.
func Find(r io.ReaderAt, first uint64, tag Tag, n int) (Entry, error) {
	it := NewIter(r, first)
	skip := n
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if e.Tag != tag {
			continue
		}
		if skip == 0 {
			return e, nil
		}
		skip--
	}
	if err := it.Err(); err != nil {
		return Entry{}, err
	}
	return Entry{}, fmt.Errorf("%w: %s #%d", ErrNotFound, tag, n)
}
