// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"log/slog"
)

// Archive is a fully decoded archive. It is immutable after Open.
type Archive struct {
	// content maps content record paths to their bytes.
	content map[string][]byte
	// Prefixes is the stored prefix table (empty when path compression was not used).
	Prefixes PrefixTable
	// Records are in stored order with expanded paths.
	Records []Record
	// Header is the validated envelope.
	Header Header
}

// Open validates, decompresses, and decodes archive completely.
// No partially decoded state is returned on error.
func Open(archive []byte, opts ExtractOptions) (*Archive, error) {
	logger := loggerOrDiscard(opts.Logger)

	h, payload, err := parseEnvelope(archive)
	if err != nil {
		return nil, err
	}

	if err := verifyPayload(h, payload); err != nil {
		return nil, err
	}

	codec, err := resolveCodec(h.Version, h.Method)
	if err != nil {
		return nil, err
	}

	if err := checkDecoderMemory(codec, payload, h.OriginalSize, opts.MemoryLimit); err != nil {
		return nil, err
	}

	blob, err := decompressPayload(codec, payload, h.OriginalSize)
	if err != nil {
		return nil, err
	}

	table, records, err := decodeCatalog(h.Version, h.Flags.Has(FlagPathCompressed), blob)
	if err != nil {
		return nil, err
	}

	content := make(map[string][]byte, len(records))
	for _, rec := range records {
		if !rec.IsDuplicate() {
			content[rec.Path] = rec.Content
		}
	}

	logger.Debug("archive decoded",
		slog.Int("version", int(h.Version)),
		slog.String("method", h.Method.String()),
		slog.String("flags", h.Flags.String()),
		slog.Int("records", len(records)),
		slog.Int("prefixes", len(table)),
	)

	return &Archive{
		Header:   h,
		Prefixes: table,
		Records:  records,
		content:  content,
	}, nil
}

// Extract decodes archive into a path to content mapping.
// Duplicate entries share the byte slice of their target.
func Extract(archive []byte, opts ExtractOptions) (map[string][]byte, error) {
	a, err := Open(archive, opts)
	if err != nil {
		return nil, err
	}

	return a.Files(), nil
}

// Files returns the resolved path to content mapping.
func (a *Archive) Files() map[string][]byte {
	files := make(map[string][]byte, len(a.Records))
	for _, rec := range a.Records {
		files[rec.Path] = a.resolve(rec)
	}

	return files
}

// Entries returns per-record metadata in stored order.
func (a *Archive) Entries() []EntryInfo {
	out := make([]EntryInfo, 0, len(a.Records))
	for _, rec := range a.Records {
		out = append(out, EntryInfo{
			Path:      rec.Path,
			Target:    rec.Target,
			Size:      int64(len(a.resolve(rec))),
			Duplicate: rec.IsDuplicate(),
		})
	}

	return out
}

// ReadEntry returns the content stored for p, following duplicate references.
func (a *Archive) ReadEntry(p string) ([]byte, error) {
	for _, rec := range a.Records {
		if rec.Path == p {
			return a.resolve(rec), nil
		}
	}

	return nil, ErrNotFound
}

// resolve returns record content, following a duplicate to its target.
func (a *Archive) resolve(rec Record) []byte {
	if rec.IsDuplicate() {
		return a.content[rec.Target]
	}

	return rec.Content
}
