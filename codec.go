// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Serialized catalog layout (all integers big-endian):
//
//	[v2+] prefix count uint16, then per prefix: length uint16 + UTF-8 bytes
//	record count uint32, then per record:
//	  path length uint16 + UTF-8 path
//	  content: length uint32 + bytes
//	  duplicate: 0xFFFFFFFF + target length uint16 + UTF-8 target
const (
	lenField16 = 2
	lenField32 = 4
	// minRecordSize is path length + content length for an empty path and empty content.
	minRecordSize = lenField16 + lenField32
)

// encodeCatalog serializes the prefix table and records for the given format version.
func encodeCatalog(version uint8, table PrefixTable, records []Record) ([]byte, error) {
	layout, err := resolveLayout(version)
	if err != nil {
		return nil, err
	}

	if !layout.prefixTable && len(table) > 0 {
		return nil, fmt.Errorf("%w: format v%d has no prefix table", ErrInvalidOptions, version)
	}

	size, err := encodedCatalogSize(layout, table, records)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, size)
	if layout.prefixTable {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(table))) //nolint:gosec // checked in encodedCatalogSize
		for _, prefix := range table {
			buf = appendString16(buf, prefix)
		}
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(records))) //nolint:gosec // checked in encodedCatalogSize
	for _, rec := range records {
		buf = appendString16(buf, rec.Path)

		if rec.IsDuplicate() {
			buf = binary.BigEndian.AppendUint32(buf, duplicateMarker)
			buf = appendString16(buf, rec.Target)
			continue
		}

		n, _ := contentLengthField(len(rec.Content))
		buf = binary.BigEndian.AppendUint32(buf, n)
		buf = append(buf, rec.Content...)
	}

	return buf, nil
}

// encodedCatalogSize validates every length field and returns the exact blob size.
func encodedCatalogSize(layout formatLayout, table PrefixTable, records []Record) (int64, error) {
	var size int64
	if layout.prefixTable {
		if len(table) > maxPrefixCount {
			return 0, fmt.Errorf("%w: %d prefixes", ErrSizeOverflow, len(table))
		}

		size += lenField16
		for _, prefix := range table {
			if len(prefix) > maxPathLen {
				return 0, fmt.Errorf("%w: prefix %q", ErrPathTooLong, prefix)
			}

			size += lenField16 + int64(len(prefix))
		}
	}

	if int64(len(records)) > maxBlobSize {
		return 0, fmt.Errorf("%w: %d records", ErrSizeOverflow, len(records))
	}

	size += lenField32
	for _, rec := range records {
		if len(rec.Path) > maxPathLen {
			return 0, fmt.Errorf("%w: %q", ErrPathTooLong, rec.Path)
		}

		size += lenField16 + int64(len(rec.Path)) + lenField32
		switch rec.Kind {
		case RecordDuplicate:
			if len(rec.Target) > maxPathLen {
				return 0, fmt.Errorf("%w: target %q", ErrPathTooLong, rec.Target)
			}

			size += lenField16 + int64(len(rec.Target))
		case RecordContent:
			if _, err := contentLengthField(len(rec.Content)); err != nil {
				return 0, fmt.Errorf("entry %s: %w", rec.Path, err)
			}

			size += int64(len(rec.Content))
		default:
			return 0, fmt.Errorf("%w: entry %s has record kind %s", ErrInvalidOptions, rec.Path, rec.Kind)
		}

		if size > maxBlobSize {
			return 0, fmt.Errorf("%w: serialized catalog exceeds %d bytes", ErrSizeOverflow, int64(maxBlobSize))
		}
	}

	return size, nil
}

// contentLengthField returns the uint32 length field for a content block.
// 0xFFFFFFFF is the duplicate marker and is never a valid content length.
func contentLengthField(n int) (uint32, error) {
	if n < 0 || int64(n) > maxContentLen {
		return 0, fmt.Errorf("%w: %d bytes (max %d)", ErrContentTooLarge, n, int64(maxContentLen))
	}

	return uint32(n), nil //nolint:gosec // bounded above
}

// appendString16 appends a uint16 length-prefixed string. Length is validated by the caller.
func appendString16(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s))) //nolint:gosec // validated by caller
	return append(buf, s...)
}

// blobReader consumes a serialized catalog with bounds checks on every field.
type blobReader struct {
	buf []byte
	off int
}

// remaining returns the number of unread bytes.
func (r *blobReader) remaining() int {
	return len(r.buf) - r.off
}

// take returns the next n bytes or ErrInvalidFormat when fewer remain.
func (r *blobReader) take(n int, field string) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, fmt.Errorf("%w: %s at offset %d needs %d bytes, %d remain", ErrInvalidFormat, field, r.off, n, r.remaining())
	}

	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return b, nil
}

// uint16 reads one big-endian uint16.
func (r *blobReader) uint16(field string) (uint16, error) {
	b, err := r.take(lenField16, field)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(b), nil
}

// uint32 reads one big-endian uint32.
func (r *blobReader) uint32(field string) (uint32, error) {
	b, err := r.take(lenField32, field)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(b), nil
}

// string16 reads a uint16 length-prefixed UTF-8 string.
func (r *blobReader) string16(field string) (string, error) {
	n, err := r.uint16(field + " length")
	if err != nil {
		return "", err
	}

	b, err := r.take(int(n), field)
	if err != nil {
		return "", err
	}

	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: %s at offset %d is not valid UTF-8", ErrInvalidFormat, field, r.off-len(b))
	}

	return string(b), nil
}

// decodeCatalog parses a serialized catalog. The prefix table is read completely first;
// record paths are expanded against it when pathCompressed is set.
// Content slices alias blob.
func decodeCatalog(version uint8, pathCompressed bool, blob []byte) (PrefixTable, []Record, error) {
	layout, err := resolveLayout(version)
	if err != nil {
		return nil, nil, err
	}

	r := &blobReader{buf: blob}

	var table PrefixTable
	if layout.prefixTable {
		count, err := r.uint16("prefix count")
		if err != nil {
			return nil, nil, err
		}

		if int(count)*lenField16 > r.remaining() {
			return nil, nil, fmt.Errorf("%w: prefix count %d exceeds catalog size", ErrInvalidFormat, count)
		}

		table = make(PrefixTable, 0, count)
		for i := 0; i < int(count); i++ {
			prefix, err := r.string16("prefix")
			if err != nil {
				return nil, nil, err
			}

			table = append(table, prefix)
		}
	}

	if len(table) > 0 && !pathCompressed {
		return nil, nil, fmt.Errorf("%w: prefix table present without path-compressed flag", ErrInvalidFormat)
	}

	count, err := r.uint32("record count")
	if err != nil {
		return nil, nil, err
	}

	if uint64(count)*minRecordSize > uint64(r.remaining()) {
		return nil, nil, fmt.Errorf("%w: record count %d exceeds catalog size", ErrInvalidFormat, count)
	}

	records := make([]Record, 0, count)
	for i := uint32(0); i < count; i++ {
		rec, err := r.record(table, pathCompressed)
		if err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}

		records = append(records, rec)
	}

	if r.remaining() != 0 {
		return nil, nil, fmt.Errorf("%w: %d trailing bytes after catalog", ErrInvalidFormat, r.remaining())
	}

	if err := validateCatalog(records); err != nil {
		return nil, nil, err
	}

	return table, records, nil
}

// record reads one record and expands its path.
func (r *blobReader) record(table PrefixTable, pathCompressed bool) (Record, error) {
	p, err := r.string16("path")
	if err != nil {
		return Record{}, err
	}

	if pathCompressed {
		p, err = expandPath(p, table)
		if err != nil {
			return Record{}, err
		}
	}

	n, err := r.uint32("content length")
	if err != nil {
		return Record{}, err
	}

	if n == duplicateMarker {
		target, err := r.string16("duplicate target")
		if err != nil {
			return Record{}, err
		}

		return Record{Path: p, Kind: RecordDuplicate, Target: target}, nil
	}

	if uint64(n) > uint64(r.remaining()) {
		return Record{}, fmt.Errorf("%w: content of %q needs %d bytes, %d remain", ErrInvalidFormat, p, n, r.remaining())
	}

	content, err := r.take(int(n), "content")
	if err != nil {
		return Record{}, err
	}

	return Record{Path: p, Kind: RecordContent, Content: content}, nil
}

// validateCatalog checks path uniqueness and that every duplicate targets a content record.
func validateCatalog(records []Record) error {
	kinds := make(map[string]RecordKind, len(records))
	for _, rec := range records {
		if _, exists := kinds[rec.Path]; exists {
			return fmt.Errorf("%w: path %q appears twice", ErrInvalidFormat, rec.Path)
		}

		kinds[rec.Path] = rec.Kind
	}

	for _, rec := range records {
		if !rec.IsDuplicate() {
			continue
		}

		kind, ok := kinds[rec.Target]
		if !ok {
			return fmt.Errorf("%w: %q duplicates missing entry %q", ErrInvalidFormat, rec.Path, rec.Target)
		}
		if kind != RecordContent {
			return fmt.Errorf("%w: %q duplicates another duplicate %q", ErrInvalidFormat, rec.Path, rec.Target)
		}
	}

	return nil
}
