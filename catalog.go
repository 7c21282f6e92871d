// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/zeebo/blake3"
)

// contentKey is the BLAKE3-256 dedup key of one content block.
type contentKey [32]byte

// dedupDomainKey separates catalog dedup keys from any other BLAKE3 use.
// The bytes are the ASCII domain name zero-padded to 32 bytes.
var dedupDomainKey = [32]byte{
	'k', 'u', 'n', 'd', 'a', '.', 'c', 'a', 't', 'a', 'l', 'o', 'g', '.',
	'd', 'e', 'd', 'u', 'p', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// hashContent computes the dedup key over the full content.
func hashContent(data []byte) contentKey {
	hasher, err := blake3.NewKeyed(dedupDomainKey[:])
	if err != nil {
		// Only returned for a key that is not 32 bytes.
		panic("kunda: blake3 keyed hasher: " + err.Error())
	}

	_, _ = hasher.Write(data)
	var key contentKey
	copy(key[:], hasher.Sum(nil))
	return key
}

// Catalog is the ordered record list of one archive plus build statistics.
type Catalog struct {
	// Records are in discovery order; this order is serialized as-is.
	Records []Record
	// Skipped lists unreadable inputs.
	Skipped []SkippedInput
	// Files is the number of records.
	Files int
	// Duplicates is the number of duplicate records.
	Duplicates int
	// ContentBytes is the total source size, duplicates included.
	ContentBytes int64
}

// catalogBuilder deduplicates sources by content while preserving input order.
type catalogBuilder struct {
	logger      *slog.Logger
	onEntryDone func(EntryProgress)
	canonical   map[contentKey]string
	paths       map[string]struct{}
	catalog     Catalog
}

// newCatalogBuilder returns an empty builder sized for n inputs.
func newCatalogBuilder(n int, logger *slog.Logger, onEntryDone func(EntryProgress)) *catalogBuilder {
	return &catalogBuilder{
		logger:      loggerOrDiscard(logger),
		onEntryDone: onEntryDone,
		canonical:   make(map[contentKey]string, n),
		paths:       make(map[string]struct{}, n),
		catalog:     Catalog{Records: make([]Record, 0, n)},
	}
}

// checkPath normalizes raw and rejects a second source with the same stored path.
func (b *catalogBuilder) checkPath(raw string) (string, error) {
	p, err := normalizeEntryPath(raw)
	if err != nil {
		return "", err
	}

	if _, exists := b.paths[p]; exists {
		return "", fmt.Errorf("%w: %q", ErrDuplicateEntryPath, p)
	}

	return p, nil
}

// add appends a content record, or a duplicate record when data was seen before.
// The path must already have passed checkPath.
func (b *catalogBuilder) add(p string, data []byte) {
	b.paths[p] = struct{}{}
	key := hashContent(data)

	progress := EntryProgress{Path: p, Size: int64(len(data))}
	if target, ok := b.canonical[key]; ok {
		b.catalog.Records = append(b.catalog.Records, Record{
			Path:   p,
			Kind:   RecordDuplicate,
			Target: target,
		})
		b.catalog.Duplicates++
		progress.Duplicate = true
		progress.Target = target
		b.logger.Debug("duplicate content", slog.String("path", p), slog.String("target", target))
	} else {
		b.canonical[key] = p
		b.catalog.Records = append(b.catalog.Records, Record{
			Path:    p,
			Kind:    RecordContent,
			Content: data,
		})
		b.logger.Debug("added content", slog.String("path", p), slog.Int("size", len(data)))
	}

	b.catalog.Files++
	b.catalog.ContentBytes += int64(len(data))

	if b.onEntryDone != nil {
		b.onEntryDone(progress)
	}
}

// skip records one unreadable input without aborting the build.
func (b *catalogBuilder) skip(p string, err error) {
	b.paths[p] = struct{}{}
	b.catalog.Skipped = append(b.catalog.Skipped, SkippedInput{Path: p, Err: err})
	b.logger.Warn("skipped unreadable input", slog.String("path", p), slog.Any("error", err))
}

// buildCatalog deduplicates in-memory entries in the given order.
func buildCatalog(entries []Entry, logger *slog.Logger, onEntryDone func(EntryProgress)) (*Catalog, error) {
	b := newCatalogBuilder(len(entries), logger, onEntryDone)
	for _, e := range entries {
		p, err := b.checkPath(e.Path)
		if err != nil {
			return nil, err
		}

		b.add(p, e.Data)
	}

	return &b.catalog, nil
}

// buildCatalogFromInputs reads and deduplicates stream inputs in the given order.
// Open and read failures are recorded as skipped inputs.
func buildCatalogFromInputs(
	ctx context.Context,
	inputs []Input,
	logger *slog.Logger,
	onEntryDone func(EntryProgress),
) (*Catalog, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	b := newCatalogBuilder(len(inputs), logger, onEntryDone)
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := b.checkPath(in.Path)
		if err != nil {
			return nil, err
		}

		if in.Open == nil {
			return nil, fmt.Errorf("input %s: Open is nil", in.Path)
		}

		data, err := readInput(in)
		if err != nil {
			if errors.Is(err, ErrContentTooLarge) {
				return nil, err
			}

			b.skip(p, err)
			continue
		}

		b.add(p, data)
	}

	return &b.catalog, nil
}

// readInput opens one input and reads it fully, bounded by the largest representable content block.
func readInput(in Input) ([]byte, error) {
	rc, err := in.Open()
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", in.Path, err)
	}

	data, readErr := readPayloadBounded(rc, maxContentLen, in.SizeHint)
	closeErr := rc.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read input %s: %w", in.Path, readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close input %s: %w", in.Path, closeErr)
	}

	return data, nil
}

// readPayloadBounded reads whole payload into memory with strict max-size enforcement.
func readPayloadBounded(src io.Reader, limit int64, sizeHint int64) ([]byte, error) {
	var dst bytes.Buffer
	if sizeHint > 0 && sizeHint <= limit {
		dst.Grow(int(sizeHint))
	}

	written, err := dst.ReadFrom(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, err
	}
	if written > limit {
		return nil, fmt.Errorf("%w: source exceeds %d bytes", ErrContentTooLarge, limit)
	}

	return dst.Bytes(), nil
}
