// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// chdinfo prints the header, hunk map summary and metadata of CHD
// files, and optionally verifies their contents.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bpowers/chd"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "chdinfo: %v\n", err)
		os.Exit(1)
	}
}

type config struct {
	parent    string
	parentDir string
	verify    bool
	hunks     bool
	output    string
	verbose   bool
	noMmap    bool
}

func run(args []string, stdout, stderr io.Writer) error {
	var cfg config
	flagSet := pflag.NewFlagSet("chdinfo", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&cfg.parent, "parent", "", "path of the parent of a differencing file")
	flagSet.StringVar(&cfg.parentDir, "parent-dir", "", "directory to search for parents by checksum")
	flagSet.BoolVar(&cfg.verify, "verify", false, "decode every hunk and check the stored digests")
	flagSet.BoolVar(&cfg.hunks, "hunks", false, "list every hunk map entry")
	flagSet.StringVarP(&cfg.output, "output", "o", "text", "output format: text or yaml")
	flagSet.BoolVarP(&cfg.verbose, "verbose", "v", false, "log debug output to stderr")
	flagSet.BoolVar(&cfg.noMmap, "no-mmap", false, "read files with pread instead of mapping them")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: chdinfo [flags] FILE...\n\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return errors.New("no files given")
	}
	if cfg.output != "text" && cfg.output != "yaml" {
		return fmt.Errorf("unknown output format %q", cfg.output)
	}

	level := slog.LevelWarn
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	failed := 0
	for _, path := range flagSet.Args() {
		r, err := inspect(path, &cfg, logger)
		if err != nil {
			logger.Error("inspect failed", "path", path, "error", err, "kind", chd.KindOf(err).String())
			failed++
			continue
		}
		if err := r.write(stdout, cfg.output); err != nil {
			return err
		}
		if r.VerifyError != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, flagSet.NArg())
	}
	return nil
}

func (cfg *config) openOptions(logger *slog.Logger) []chd.Option {
	opts := []chd.Option{chd.WithLogger(logger)}
	if cfg.noMmap {
		opts = append(opts, chd.WithoutMmap())
	}
	if cfg.parentDir != "" {
		opts = append(opts, chd.WithParentOpener(dirOpener(cfg.parentDir, opts, logger)))
	}
	return opts
}

func inspect(path string, cfg *config, logger *slog.Logger) (*report, error) {
	opts := cfg.openOptions(logger)
	var parent *chd.Chd
	if cfg.parent != "" {
		var err error
		parent, err = chd.OpenFile(cfg.parent, opts...)
		if err != nil {
			return nil, fmt.Errorf("parent: %w", err)
		}
		opts = append(opts, chd.WithParent(parent))
	}

	f, err := chd.OpenFile(path, opts...)
	if err != nil {
		if parent != nil {
			_ = parent.Close()
		}
		return nil, err
	}
	defer f.Close()
	if parent != nil && f.Parent() == nil {
		// not a differencing file, so it didn't take the parent
		defer parent.Close()
	}

	r := newReport(path, f, cfg.hunks)
	if cfg.verify {
		r.verify(f)
	}
	return r, nil
}

// dirOpener finds parents among the .chd files in dir by comparing
// their header checksums with the one a child asks for.
func dirOpener(dir string, opts []chd.Option, logger *slog.Logger) chd.ParentOpener {
	opts = append([]chd.Option(nil), opts...)
	var opener chd.ParentOpener
	opener = func(id chd.ParentID) (*chd.Chd, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("os.ReadDir(%s): %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".chd") {
				continue
			}
			path := filepath.Join(dir, e.Name())
			h, err := chd.ReadHeader(path)
			if err != nil {
				logger.Debug("skipping candidate parent", "path", path, "error", err)
				continue
			}
			if !id.Matches(&h) {
				continue
			}
			logger.Debug("found parent", "path", path, "id", id.String())
			// grandparents are searched for in the same directory
			return chd.OpenFile(path, append(opts, chd.WithParentOpener(opener))...)
		}
		return nil, fmt.Errorf("no file in %s has checksum %s", dir, id)
	}
	return opener
}
