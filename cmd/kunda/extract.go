// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package main

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	kunda "github.com/Kundaliel/Kunda-Zip"
)

func extractFlags(fs *pflag.FlagSet) {
	fs.StringP("directory", "C", ".", "output directory")
	fs.String("prefix", "", "extract only entries under this path")
	fs.Int("workers", 0, "writer goroutines (default GOMAXPROCS)")
	fs.Bool("raw-names", false, "keep entry names as stored instead of filesystem-safe names")
	fs.String("file-mode", "", "existing files: auto, truncate or create_only")
	fs.String("memory-limit", "", "refuse archives needing more decoder memory, e.g. 2GiB")
}

func runExtract(env *cmdEnv, args []string) error {
	archivePath, err := oneArg(args, "archive")
	if err != nil {
		return err
	}

	fs := env.flags
	c := env.cfg.Extract

	memoryLimit, err := parseSize(stringOverride(fs, "memory-limit", c.MemoryLimit))
	if err != nil {
		return err
	}

	var (
		files   atomic.Int64
		written atomic.Int64
	)
	extractOpts := kunda.ExtractOptions{Logger: env.logger, MemoryLimit: memoryLimit}
	writeOpts := kunda.WriteOptions{
		FileMode:   kunda.WriteFileMode(stringOverride(fs, "file-mode", c.FileMode)),
		MaxWorkers: intOverride(fs, "workers", c.Workers),
		RawNames:   boolOverride(fs, "raw-names", c.RawNames),
		OnEntryDone: func(p string, n int64, outputPath string) {
			files.Add(1)
			written.Add(n)
			env.logger.Debug("extracted", slog.String("path", p), slog.String("output", outputPath))
		},
	}

	dir, _ := fs.GetString("directory")
	prefix, _ := fs.GetString("prefix")

	if prefix == "" {
		if err := kunda.ExtractFile(env.ctx, archivePath, dir, extractOpts, writeOpts); err != nil {
			return err
		}
	} else {
		a, err := kunda.OpenFile(archivePath, extractOpts)
		if err != nil {
			return err
		}

		selected := kunda.FilterFiles(a.Files(), prefix)
		if len(selected) == 0 {
			return fmt.Errorf("%w: no entries under %q", kunda.ErrNotFound, prefix)
		}

		if err := kunda.WriteFiles(env.ctx, selected, dir, writeOpts); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(env.stdout, "extracted %d files (%s) to %s\n",
		files.Load(), humanize.IBytes(uint64(written.Load())), dir) //nolint:gosec // non-negative
	return err
}
