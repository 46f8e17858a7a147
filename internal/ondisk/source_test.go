// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ondisk

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/chd/internal/chderr"
)

// writeTestFile creates a temporary file holding contents that is
// removed when the test finishes.
func writeTestFile(t *testing.T, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "container.chd")
	require.NoError(t, os.WriteFile(path, contents, 0o644))
	return path
}

type failingReaderAt struct {
	err error
}

func (r failingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return 0, r.err
}

// shortReaderAt returns fewer bytes than requested without an error,
// which io.ReaderAt forbids but broken sources do anyway.
type shortReaderAt struct{}

func (shortReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return len(p) / 2, nil
}

func TestReadFull(t *testing.T) {
	r := bytes.NewReader([]byte("0123456789"))

	buf := make([]byte, 4)
	require.NoError(t, ReadFull(r, buf, 6))
	assert.Equal(t, []byte("6789"), buf)

	err := ReadFull(r, buf, 7)
	assert.ErrorIs(t, err, chderr.ErrTruncatedInput)

	err = ReadFull(r, buf, 100)
	assert.ErrorIs(t, err, chderr.ErrTruncatedInput)

	err = ReadFull(r, buf, 1<<63)
	assert.ErrorIs(t, err, chderr.ErrTruncatedInput)

	err = ReadFull(shortReaderAt{}, buf, 0)
	assert.ErrorIs(t, err, chderr.ErrTruncatedInput)

	assert.NoError(t, ReadFull(r, nil, 1000))
}

func TestReadFull_IOError(t *testing.T) {
	cause := errors.New("disk on fire")
	err := ReadFull(failingReaderAt{err: cause}, make([]byte, 4), 0)
	assert.ErrorIs(t, err, chderr.ErrIO)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, chderr.ErrTruncatedInput)
}

func TestSize(t *testing.T) {
	assert.Equal(t, int64(3), Size(bytes.NewReader([]byte("abc"))))
	assert.Equal(t, int64(-1), Size(failingReaderAt{}))

	path := writeTestFile(t, []byte("hello"))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, int64(5), Size(f))
}

func testSource(t *testing.T, open func(string) (Source, error)) {
	contents := []byte("MComprHD and then some hunks")
	s, err := open(writeTestFile(t, contents))
	require.NoError(t, err)
	assert.Equal(t, int64(len(contents)), s.Size())

	buf := make([]byte, 8)
	require.NoError(t, ReadFull(s, buf, 0))
	assert.Equal(t, []byte("MComprHD"), buf)

	n, err := s.ReadAt(buf, int64(len(contents)-3))
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, ReadFull(s, buf, uint64(len(contents)-3)), chderr.ErrTruncatedInput)

	require.NoError(t, s.Close())
	// closing twice is fine, reading afterwards is not
	require.NoError(t, s.Close())
	_, err = s.ReadAt(buf, 0)
	assert.Error(t, err)
}

func TestFile(t *testing.T) {
	testSource(t, func(path string) (Source, error) {
		return OpenFile(path)
	})
}

func TestMmap(t *testing.T) {
	testSource(t, OpenMmap)
}

func TestMmap_Empty(t *testing.T) {
	s, err := OpenMmap(writeTestFile(t, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Size())
	assert.ErrorIs(t, ReadFull(s, make([]byte, 1), 0), chderr.ErrTruncatedInput)
	require.NoError(t, s.Close())
}

func TestOpen_Missing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope.chd"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = OpenMmap(filepath.Join(t.TempDir(), "nope.chd"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
