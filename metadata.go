// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// ReadHeaderFile reads only the envelope of the archive at path.
func ReadHeaderFile(path string) (Header, error) {
	f, size, err := openFileWithSize(path)
	if err != nil {
		return Header{}, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, min(size, fixedHeaderSize+digestSize))
	if _, err := io.ReadFull(f, buf); err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}

	return parseHeader(buf, size)
}

// OpenFile reads and decodes the archive at path.
func OpenFile(path string, opts ExtractOptions) (*Archive, error) {
	data, err := readArchiveFile(path)
	if err != nil {
		return nil, err
	}

	return Open(data, opts)
}

// ListEntries decodes the archive at path and returns entry metadata in stored order.
func ListEntries(path string, opts ExtractOptions) ([]EntryInfo, error) {
	a, err := OpenFile(path, opts)
	if err != nil {
		return nil, err
	}

	return a.Entries(), nil
}

// ExtractFile decodes the archive at archivePath completely, then writes every entry under dstDir.
// Nothing is written when decoding fails.
func ExtractFile(ctx context.Context, archivePath string, dstDir string, extractOpts ExtractOptions, opts WriteOptions) error {
	a, err := OpenFile(archivePath, extractOpts)
	if err != nil {
		return err
	}

	return WriteFiles(ctx, a.Files(), dstDir, opts)
}

// readArchiveFile reads a whole archive file.
func readArchiveFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapNotFound("read archive", err)
	}

	return data, nil
}

// openFileWithSize opens a file and returns a handle plus current size.
func openFileWithSize(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, wrapNotFound("open archive", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat: %w", err)
	}

	return f, fi.Size(), nil
}

// wrapNotFound maps missing files to ErrNotFound while keeping the original error.
func wrapNotFound(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
