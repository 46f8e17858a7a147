// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/bpowers/chd"
)

type report struct {
	Path         string         `yaml:"path"`
	Version      int            `yaml:"version"`
	LogicalBytes int64          `yaml:"logical_bytes"`
	HunkBytes    int            `yaml:"hunk_bytes"`
	Hunks        int            `yaml:"hunks"`
	UnitBytes    int            `yaml:"unit_bytes"`
	Codecs       []string       `yaml:"codecs,omitempty"`
	SHA1         string         `yaml:"sha1,omitempty"`
	RawSHA1      string         `yaml:"raw_sha1,omitempty"`
	MD5          string         `yaml:"md5,omitempty"`
	Parent       string         `yaml:"parent,omitempty"`
	HunkKinds    map[string]int `yaml:"hunk_kinds"`
	Metadata     []metaReport   `yaml:"metadata,omitempty"`
	MetadataErr  string         `yaml:"metadata_error,omitempty"`
	Entries      []entryReport  `yaml:"entries,omitempty"`
	Verified     *bool          `yaml:"verified,omitempty"`
	VerifyError  string         `yaml:"verify_error,omitempty"`
}

type metaReport struct {
	Tag         string `yaml:"tag"`
	Checksummed bool   `yaml:"checksummed"`
	Length      int    `yaml:"length"`
	Value       string `yaml:"value"`
}

type entryReport struct {
	Hunk   int    `yaml:"hunk"`
	Kind   string `yaml:"kind"`
	Codec  string `yaml:"codec,omitempty"`
	Offset uint64 `yaml:"offset"`
	Length uint32 `yaml:"length,omitempty"`
}

func newReport(path string, f *chd.Chd, listHunks bool) *report {
	h := f.Header()
	r := &report{
		Path:         path,
		Version:      f.Version(),
		LogicalBytes: f.LogicalLength(),
		HunkBytes:    f.HunkSize(),
		Hunks:        f.HunkCount(),
		UnitBytes:    f.UnitSize(),
		HunkKinds:    make(map[string]int),
	}
	for _, t := range h.Codecs() {
		name := t.String()
		if !chd.CodecSupported(t) {
			name += " (unsupported)"
		}
		r.Codecs = append(r.Codecs, name)
	}
	if f.Version() >= 3 {
		r.SHA1 = h.SHA1.String()
	}
	if f.Version() >= 4 {
		r.RawSHA1 = h.RawSHA1.String()
	}
	if f.Version() <= 3 {
		r.MD5 = h.MD5.String()
	}
	if id, ok := f.ParentID(); ok {
		r.Parent = id.String()
	}

	for i := 0; i < f.HunkCount(); i++ {
		e, err := f.MapEntry(i)
		if err != nil {
			break
		}
		r.HunkKinds[e.Kind.String()]++
		if !listHunks {
			continue
		}
		er := entryReport{Hunk: i, Kind: e.Kind.String(), Offset: e.Offset, Length: e.Length}
		if e.Kind == chd.HunkCompressed {
			er.Codec = h.Compressors[e.Codec].String()
		}
		r.Entries = append(r.Entries, er)
	}

	entries, err := f.MetadataEntries()
	if err != nil {
		r.MetadataErr = err.Error()
	}
	for _, m := range entries {
		r.Metadata = append(r.Metadata, metaReport{
			Tag:         m.Tag.String(),
			Checksummed: m.Checksummed(),
			Length:      len(m.Data),
			Value:       printable(m.Data),
		})
	}
	return r
}

func (r *report) verify(f *chd.Chd) {
	ok := true
	if err := f.Verify(); err != nil {
		ok = false
		r.VerifyError = err.Error()
	}
	r.Verified = &ok
}

// printable renders metadata as text when it is text (most of it is
// NUL-terminated ASCII) and as a hex prefix otherwise.
func printable(b []byte) string {
	s := strings.TrimRight(string(b), "\x00")
	for _, c := range s {
		if c > unicode.MaxASCII || !unicode.IsPrint(c) {
			const limit = 32
			if len(b) > limit {
				return hex.EncodeToString(b[:limit]) + "..."
			}
			return hex.EncodeToString(b)
		}
	}
	return s
}

func (r *report) write(w io.Writer, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode([]*report{r}); err != nil {
			return fmt.Errorf("yaml.Encode: %w", err)
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", r.Path)
	fmt.Fprintf(tw, "Version:\t%d\n", r.Version)
	fmt.Fprintf(tw, "Logical size:\t%d bytes\n", r.LogicalBytes)
	fmt.Fprintf(tw, "Hunks:\t%d x %d bytes\n", r.Hunks, r.HunkBytes)
	fmt.Fprintf(tw, "Unit size:\t%d bytes\n", r.UnitBytes)
	if len(r.Codecs) > 0 {
		fmt.Fprintf(tw, "Codecs:\t%s\n", strings.Join(r.Codecs, ", "))
	} else {
		fmt.Fprintf(tw, "Codecs:\tnone\n")
	}
	if r.SHA1 != "" {
		fmt.Fprintf(tw, "SHA1:\t%s\n", r.SHA1)
	}
	if r.RawSHA1 != "" {
		fmt.Fprintf(tw, "Data SHA1:\t%s\n", r.RawSHA1)
	}
	if r.MD5 != "" {
		fmt.Fprintf(tw, "MD5:\t%s\n", r.MD5)
	}
	if r.Parent != "" {
		fmt.Fprintf(tw, "Parent:\t%s\n", r.Parent)
	}
	for _, k := range []string{"compressed", "uncompressed", "mini", "self", "parent"} {
		if n := r.HunkKinds[k]; n > 0 {
			fmt.Fprintf(tw, "  %s:\t%d\n", k, n)
		}
	}
	for _, m := range r.Metadata {
		fmt.Fprintf(tw, "Metadata %s:\t%s\n", m.Tag, m.Value)
	}
	if r.MetadataErr != "" {
		fmt.Fprintf(tw, "Metadata error:\t%s\n", r.MetadataErr)
	}
	for _, e := range r.Entries {
		fmt.Fprintf(tw, "  hunk %d:\t%s\t%s\t%d\t%d\n", e.Hunk, e.Kind, e.Codec, e.Offset, e.Length)
	}
	if r.Verified != nil {
		if *r.Verified {
			fmt.Fprintf(tw, "Verify:\tok\n")
		} else {
			fmt.Fprintf(tw, "Verify:\tFAILED: %s\n", r.VerifyError)
		}
	}
	fmt.Fprintln(tw)
	return tw.Flush()
}
