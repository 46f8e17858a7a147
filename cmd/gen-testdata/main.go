// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// gen-testdata writes synthetic CHD files for trying out chdinfo: a v5
// image using every decodable codec, and a differencing child of it.
package main

import (
	"bytes"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bpowers/chd/internal/chdtest"
)

const (
	hunkBytes = 4096
	unitBytes = 512
	alphabet  = "MComprHD hunks\x00"
)

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		var seedBytes [8]byte
		_, _ = crand.Read(seedBytes[:])
		seed = int64(binary.LittleEndian.Uint64(seedBytes[:]))
	}
	return rand.New(rand.NewSource(seed))
}

func hunk(rng *rand.Rand) []byte {
	b := make([]byte, hunkBytes)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return b
}

var encoders = []func([]byte) []byte{
	chdtest.Deflate,
	chdtest.Zstd,
	chdtest.LZMA,
	chdtest.Huffman,
}

func header(hunks int) chdtest.Header {
	return chdtest.Header{
		Version: 5,
		Compressors: [4]uint32{
			chdtest.FourCC("zlib"),
			chdtest.FourCC("zstd"),
			chdtest.FourCC("lzma"),
			chdtest.FourCC("huff"),
		},
		LogicalBytes: uint64(hunks) * hunkBytes,
		HunkBytes:    hunkBytes,
		UnitBytes:    unitBytes,
	}
}

// parent cycles through the codecs, repeating every fourth hunk.
func parent(rng *rand.Rand, n int) (*chdtest.Container, []byte) {
	c := &chdtest.Container{Header: header(n), CompressedMap: true}
	var raw [][]byte
	for i := 0; i < n; i++ {
		if i%4 == 3 {
			c.Hunks = append(c.Hunks, chdtest.SelfHunk(i-1))
			raw = append(raw, raw[i-1])
			continue
		}
		data := hunk(rng)
		slot := i % len(encoders)
		c.Hunks = append(c.Hunks, chdtest.CompressedHunk(slot, encoders[slot](data), data))
		raw = append(raw, data)
	}
	c.Meta = []chdtest.Meta{{
		Tag:   chdtest.FourCC("GDDD"),
		Flags: 1,
		Data:  []byte(fmt.Sprintf("CYLS:%d,HEADS:1,SECS:8,BPS:%d\x00", n, unitBytes)),
	}}
	all := bytes.Join(raw, nil)
	c.SetDigests(all)
	return c, all
}

// child shares every other hunk with p.
func child(rng *rand.Rand, p *chdtest.Container, praw []byte, n int) *chdtest.Container {
	c := &chdtest.Container{Header: header(n), CompressedMap: true}
	c.Header.ParentSHA1 = p.Header.SHA1
	var raw [][]byte
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			c.Hunks = append(c.Hunks, chdtest.ParentHunk(uint64(i)*hunkBytes/unitBytes))
			raw = append(raw, praw[i*hunkBytes:(i+1)*hunkBytes])
			continue
		}
		data := hunk(rng)
		c.Hunks = append(c.Hunks, chdtest.CompressedHunk(0, chdtest.Deflate(data), data))
		raw = append(raw, data)
	}
	c.SetDigests(bytes.Join(raw, nil))
	return c
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gen-testdata: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		out   string
		hunks int
		seed  int64
	)
	flagSet := pflag.NewFlagSet("gen-testdata", pflag.ContinueOnError)
	flagSet.StringVar(&out, "out", ".", "directory to write parent.chd and child.chd to")
	flagSet.IntVar(&hunks, "hunks", 16, "hunks per file")
	flagSet.Int64Var(&seed, "seed", 0, "random seed (0 picks one)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if hunks < 1 {
		return fmt.Errorf("--hunks must be positive, not %d", hunks)
	}

	rng := newRand(seed)
	p, praw := parent(rng, hunks)
	c := child(rng, p, praw, hunks)

	for name, container := range map[string]*chdtest.Container{"parent.chd": p, "child.chd": c} {
		path := filepath.Join(out, name)
		if err := os.WriteFile(path, container.Bytes(), 0o644); err != nil {
			return err
		}
		fmt.Println(path)
	}
	return nil
}
