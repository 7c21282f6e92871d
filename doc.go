// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

/*
Package kunda reads and writes Kunda archives: one file holding a whole
directory tree with content deduplication, shared directory prefix
compression, and a choice of compression backends.

Creation is a strictly sequential in-memory pipeline:

	entries -> catalog (dedup) -> prefix table -> serialized catalog -> compress -> envelope

Extraction reverses it and decodes the whole archive before anything is
returned, so a corrupt archive never yields partial output.

# Creating

	archive, res, err := kunda.Create([]kunda.Entry{
	    {Path: "a.txt", Data: []byte("hello")},
	    {Path: "b/c.txt", Data: []byte("hello")},
	}, kunda.CreateOptions{
	    Backend:  kunda.BackendLZMA,
	    Preset:   kunda.PresetMax,
	    Checksum: true,
	})
	if err != nil {
	    return err
	}
	_ = res.Duplicates // 1

From a directory, with include/exclude rules:

	inputs, err := kunda.ScanDir("./site", kunda.ScanOptions{
	    Rules: []pathrules.Rule{
	        {Action: pathrules.ActionExclude, Pattern: "*.tmp"},
	    },
	})
	if err != nil {
	    return err
	}
	res, err := kunda.CreateFile(ctx, "site.kun", inputs, kunda.CreateOptions{Backend: kunda.BackendAuto})

Unreadable files and directories are skipped and listed in CreateResult.Skipped.

# Ultra tier

PresetUltra stores LZMA2 in an xz container with a dictionary of
CreateOptions.DictSize, rounded down to a power of two and clamped to
[MinUltraDictSize, MaxUltraDictSize]. The caller decides the size; the
package never inspects host memory. When UltraMemoryEstimate exceeds
CreateOptions.MemoryLimit, or the runtime rejects the slice size, the archive
is written with standard LZMA instead and CreateResult.Downgraded is set.
A Go out-of-memory cannot be recovered, so set a finite MemoryLimit.

# Extracting

	files, err := kunda.Extract(archive, kunda.ExtractOptions{})
	if err != nil {
	    return err
	}
	err = kunda.WriteFiles(ctx, files, "out", kunda.WriteOptions{})

ExtractFile does the same from an archive path. Output names are made
filesystem-safe unless WriteOptions.RawNames is set; traversal is always
rejected before the first file is written.

# Editing

	editor, err := kunda.OpenEditor("site.kun", kunda.EditOptions{BackupKeep: 1})
	if err != nil {
	    return err
	}
	_ = editor.Replace(kunda.Entry{Path: "index.html", Data: page})
	_ = editor.DeleteDir("drafts")
	res, err := editor.Commit(ctx)

Commit re-encodes the whole archive and replaces the file atomically.

Errors are classified by sentinel values (ErrInvalidFormat, ErrIntegrity,
ErrUnsupportedMethod, ErrResourceExhausted, ...) and should be matched with
errors.Is.

# Format

	0..7   magic "KUNDA\0\0\0"
	8      version (1 or 2; 2 is written)
	9      method: 0 zlib, 1 bzip2, 2 LZMA alone, 3 xz/LZMA2 (v2 only)
	10     flags: bit0 encrypted (rejected), bit1 checksummed, bit2 path-compressed
	11..14 original size, uint32 big-endian
	15..18 compressed size, uint32 big-endian
	[32]   SHA-256 of the compressed payload when checksummed
	...    payload

Prefix table positions are part of the format: prefixes used by at least
three paths, longest first, ties in first-seen order.
*/
package kunda
