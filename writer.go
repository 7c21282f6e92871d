// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Create builds an archive from in-memory entries in the given order.
func Create(entries []Entry, opts CreateOptions) ([]byte, *CreateResult, error) {
	start := time.Now()
	if err := prepareCreateOptions(&opts); err != nil {
		return nil, nil, err
	}

	catalog, err := buildCatalog(entries, opts.Logger, opts.OnEntryDone)
	if err != nil {
		return nil, nil, err
	}

	return assembleArchive(catalog, opts, start)
}

// CreateFromInputs builds an archive from stream inputs in the given order.
// Unreadable inputs are skipped and reported in CreateResult.Skipped.
// ctx is checked between inputs; compression itself runs to completion.
func CreateFromInputs(ctx context.Context, inputs []Input, opts CreateOptions) ([]byte, *CreateResult, error) {
	start := time.Now()
	if err := prepareCreateOptions(&opts); err != nil {
		return nil, nil, err
	}

	catalog, err := buildCatalogFromInputs(ctx, inputs, opts.Logger, opts.OnEntryDone)
	if err != nil {
		return nil, nil, err
	}

	return assembleArchive(catalog, opts, start)
}

// CreateFile builds an archive from inputs and writes it to outPath.
// The file is written to a temporary sibling and renamed into place.
func CreateFile(ctx context.Context, outPath string, inputs []Input, opts CreateOptions) (*CreateResult, error) {
	archive, res, err := CreateFromInputs(ctx, inputs, opts)
	if err != nil {
		return nil, err
	}

	if err := writeFileAtomic(outPath, archive); err != nil {
		return nil, err
	}

	return res, nil
}

// prepareCreateOptions applies defaults and validates option combinations.
func prepareCreateOptions(opts *CreateOptions) error {
	opts.applyDefaults()
	return opts.validate()
}

// assembleArchive runs the sequential pipeline after catalog build:
// prefix compression, serialization, compression, framing.
func assembleArchive(catalog *Catalog, opts CreateOptions, start time.Time) ([]byte, *CreateResult, error) {
	records := catalog.Records
	var table PrefixTable
	if !opts.DisablePathCompression {
		records, table = compressPaths(records)
	}

	blob, err := encodeCatalog(CurrentFormat, table, records)
	if err != nil {
		return nil, nil, err
	}

	outcome, err := compressBlob(blob, opts)
	if err != nil {
		return nil, nil, err
	}

	if int64(len(outcome.payload)) > maxBlobSize {
		return nil, nil, fmt.Errorf("%w: compressed payload is %d bytes", ErrSizeOverflow, len(outcome.payload))
	}

	header := Header{
		Version:        CurrentFormat,
		Method:         outcome.method,
		OriginalSize:   uint32(len(blob)),            //nolint:gosec // bounded by encodeCatalog
		CompressedSize: uint32(len(outcome.payload)), //nolint:gosec // checked above
	}
	if opts.Checksum {
		header.Flags |= FlagChecksummed
		header.Digest = payloadDigest(outcome.payload)
	}
	if len(table) > 0 {
		header.Flags |= FlagPathCompressed
	}

	archive := marshalEnvelope(header, outcome.payload)

	res := &CreateResult{
		Skipped:         catalog.Skipped,
		Files:           catalog.Files,
		Duplicates:      catalog.Duplicates,
		Prefixes:        len(table),
		ContentBytes:    catalog.ContentBytes,
		OriginalSize:    int64(len(blob)),
		CompressedSize:  int64(len(outcome.payload)),
		ArchiveSize:     int64(len(archive)),
		Method:          outcome.method,
		RequestedMethod: outcome.requested,
		Downgraded:      outcome.downgraded,
		Duration:        time.Since(start),
	}

	opts.Logger.Info("archive created",
		slog.Int("files", res.Files),
		slog.Int("duplicates", res.Duplicates),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("prefixes", res.Prefixes),
		slog.String("method", res.Method.String()),
		slog.Bool("downgraded", res.Downgraded),
		slog.Int64("original_size", res.OriginalSize),
		slog.Int64("archive_size", res.ArchiveSize),
	)

	return archive, res, nil
}

// writeFileAtomic writes data to a temporary file next to outPath and renames it into place.
func writeFileAtomic(outPath string, data []byte) error {
	dir := filepath.Dir(outPath)
	f, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}

	tmpPath := f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write archive file: %w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync archive file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close archive file: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		committed = true
		return fmt.Errorf("rename archive file: %w", err)
	}

	committed = true
	return nil
}
