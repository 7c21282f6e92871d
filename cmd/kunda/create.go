// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	kunda "github.com/Kundaliel/Kunda-Zip"
)

// archiveExt is appended to the source directory name when -o is not given.
const archiveExt = ".kun"

func createFlags(fs *pflag.FlagSet) {
	fs.StringP("output", "o", "", "archive path (default <dir>"+archiveExt+")")
	fs.StringP("method", "m", "", "compression backend: lzma, deflate, bzip or auto")
	fs.StringP("preset", "p", "", "effort: fast, balanced, max or ultra (lzma only)")
	fs.String("dict-size", "", "ultra tier dictionary, e.g. 256MiB (64MiB..1536MiB)")
	fs.String("memory-limit", "", "ultra tier encoder memory budget, e.g. 8GiB (default 4GiB, 0 = unlimited)")
	fs.Bool("no-checksum", false, "omit the payload SHA-256")
	fs.StringArray("include", nil, "include pattern, repeatable")
	fs.StringArray("exclude", nil, "exclude pattern, repeatable")
	fs.Bool("case-insensitive", false, "match patterns case-insensitively")
	fs.Bool("follow-symlinks", false, "archive the targets of symlinked files")
	fs.Bool("no-path-compression", false, "do not build the shared prefix table")
}

func runCreate(env *cmdEnv, args []string) error {
	root, err := oneArg(args, "source directory")
	if err != nil {
		return err
	}

	fs := env.flags
	c := env.cfg.Create

	dictSize, err := parseSize(stringOverride(fs, "dict-size", c.DictSize))
	if err != nil {
		return err
	}
	memoryLimit, err := parseSize(stringOverride(fs, "memory-limit", c.MemoryLimit))
	if err != nil {
		return err
	}

	checksum := c.Checksum == nil || *c.Checksum
	if fs.Changed("no-checksum") {
		noChecksum, _ := fs.GetBool("no-checksum")
		checksum = !noChecksum
	}

	rules, matcherOpts := scanRules(
		stringArrayOverride(fs, "include", c.Include),
		stringArrayOverride(fs, "exclude", c.Exclude),
		boolOverride(fs, "case-insensitive", c.CaseInsensitive),
	)

	inputs, err := kunda.ScanDir(root, kunda.ScanOptions{
		Logger:         env.logger,
		Rules:          rules,
		MatcherOptions: matcherOpts,
		FollowSymlinks: boolOverride(fs, "follow-symlinks", c.FollowSymlinks),
	})
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		env.logger.Warn("no files matched", slog.String("root", root))
	}

	out, _ := fs.GetString("output")
	if out == "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve source: %w", err)
		}
		out = filepath.Base(abs) + archiveExt
	}

	res, err := kunda.CreateFile(env.ctx, out, inputs, kunda.CreateOptions{
		Logger:                 env.logger,
		Backend:                kunda.Backend(stringOverride(fs, "method", c.Method)),
		Preset:                 kunda.Preset(stringOverride(fs, "preset", c.Preset)),
		DictSize:               dictSize,
		MemoryLimit:            memoryLimit,
		Checksum:               checksum,
		DisablePathCompression: boolOverride(fs, "no-path-compression", c.DisablePathCompression),
		OnEntryDone: func(e kunda.EntryProgress) {
			env.logger.Debug("added", slog.String("path", e.Path), slog.Int64("size", e.Size), slog.String("target", e.Target))
		},
	})
	if err != nil {
		return err
	}

	for _, skipped := range res.Skipped {
		env.logger.Warn("skipped unreadable input", slog.String("path", skipped.Path), slog.Any("error", skipped.Err))
	}

	note := ""
	if res.Downgraded {
		note = " (ultra tier fell back to standard lzma)"
	}

	_, err = fmt.Fprintf(env.stdout, "%s: %d files, %d duplicates, %s -> %s, %s%s\n",
		out, res.Files, res.Duplicates,
		humanize.IBytes(uint64(res.ContentBytes)), //nolint:gosec // non-negative
		humanize.IBytes(uint64(res.ArchiveSize)),  //nolint:gosec // non-negative
		res.Method, note)

	return err
}
