// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"bytes"
	"encoding/binary"
	"errors"
	"slices"
	"strconv"
	"testing"
)

func TestEncodeCatalogLayout(t *testing.T) {
	t.Parallel()

	blob, err := encodeCatalog(FormatV2, PrefixTable{"d/"}, []Record{
		{Path: "$0$a", Kind: RecordContent, Content: []byte("hi")},
		{Path: "b", Kind: RecordDuplicate, Target: "d/a"},
	})
	if err != nil {
		t.Fatalf("encodeCatalog: %v", err)
	}

	want := []byte{
		0x00, 0x01, // prefix count
		0x00, 0x02, 'd', '/',
		0x00, 0x00, 0x00, 0x02, // record count
		0x00, 0x04, '$', '0', '$', 'a',
		0x00, 0x00, 0x00, 0x02, 'h', 'i',
		0x00, 0x01, 'b',
		0xFF, 0xFF, 0xFF, 0xFF,
		0x00, 0x03, 'd', '/', 'a',
	}
	if !bytes.Equal(blob, want) {
		t.Fatalf("blob=% x\nwant % x", blob, want)
	}
}

func TestEncodeCatalogV1HasNoPrefixSection(t *testing.T) {
	t.Parallel()

	blob, err := encodeCatalog(FormatV1, nil, []Record{{Path: "a", Kind: RecordContent, Content: []byte("x")}})
	if err != nil {
		t.Fatalf("encodeCatalog: %v", err)
	}

	want := []byte{0, 0, 0, 1, 0, 1, 'a', 0, 0, 0, 1, 'x'}
	if !bytes.Equal(blob, want) {
		t.Fatalf("blob=% x, want % x", blob, want)
	}

	if _, err := encodeCatalog(FormatV1, PrefixTable{"a/"}, nil); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions for v1 prefix table, got %v", err)
	}
}

func TestCatalogRoundTrip(t *testing.T) {
	t.Parallel()

	records := []Record{
		{Path: "src/app/main.go", Kind: RecordContent, Content: []byte("package main")},
		{Path: "src/app/copy.go", Kind: RecordDuplicate, Target: "src/app/main.go"},
		{Path: "src/app/empty", Kind: RecordContent, Content: []byte{}},
		{Path: "README.md", Kind: RecordContent, Content: []byte("# readme")},
	}

	compressed, table := compressPaths(records)
	for _, version := range []uint8{FormatV1, FormatV2} {
		encTable := table
		encRecords := compressed
		if version == FormatV1 {
			encTable, encRecords = nil, records
		}

		blob, err := encodeCatalog(version, encTable, encRecords)
		if err != nil {
			t.Fatalf("v%d encodeCatalog: %v", version, err)
		}

		gotTable, got, err := decodeCatalog(version, len(encTable) > 0, blob)
		if err != nil {
			t.Fatalf("v%d decodeCatalog: %v", version, err)
		}

		if !slices.Equal(gotTable, encTable) {
			t.Fatalf("v%d table=%q, want %q", version, gotTable, encTable)
		}
		assertRecords(t, got, records)
	}
}

func TestContentLengthFieldSentinelBoundary(t *testing.T) {
	t.Parallel()

	if strconv.IntSize < 64 {
		t.Skip("content lengths near 4 GiB need 64-bit int")
	}

	largest := uint64(maxContentLen)
	n, err := contentLengthField(int(largest))
	if err != nil {
		t.Fatalf("contentLengthField(0xFFFFFFFE): %v", err)
	}
	if n != 0xFFFFFFFE {
		t.Fatalf("field=%#x, want 0xFFFFFFFE", n)
	}

	sentinel := uint64(duplicateMarker)
	if _, err := contentLengthField(int(sentinel)); !errors.Is(err, ErrContentTooLarge) {
		t.Fatalf("expected ErrContentTooLarge for 0xFFFFFFFF, got %v", err)
	}
}

func TestDecodeCatalogLargestLengthNeedsBytes(t *testing.T) {
	t.Parallel()

	blob := []byte{0, 0, 0, 0, 0, 1, 0, 1, 'a'}
	blob = binary.BigEndian.AppendUint32(blob, maxContentLen)
	blob = append(blob, "short"...)

	if _, _, err := decodeCatalog(FormatV2, false, blob); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestDecodeCatalogTruncated(t *testing.T) {
	t.Parallel()

	blob, err := encodeCatalog(FormatV2, PrefixTable{"d/"}, []Record{
		{Path: "$0$a", Kind: RecordContent, Content: []byte("hello")},
		{Path: "$0$b", Kind: RecordDuplicate, Target: "d/a"},
	})
	if err != nil {
		t.Fatalf("encodeCatalog: %v", err)
	}

	for n := 0; n < len(blob); n++ {
		if _, _, err := decodeCatalog(FormatV2, true, blob[:n]); !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("truncated to %d bytes: expected ErrInvalidFormat, got %v", n, err)
		}
	}

	if _, _, err := decodeCatalog(FormatV2, true, append(slices.Clone(blob), 0)); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("trailing byte: expected ErrInvalidFormat, got %v", err)
	}
}

func TestDecodeCatalogRejects(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		table          PrefixTable
		records        []Record
		pathCompressed bool
	}{
		{
			name:    "missing duplicate target",
			records: []Record{{Path: "a", Kind: RecordDuplicate, Target: "nope"}},
		},
		{
			name: "duplicate of duplicate",
			records: []Record{
				{Path: "a", Kind: RecordContent, Content: []byte("x")},
				{Path: "b", Kind: RecordDuplicate, Target: "a"},
				{Path: "c", Kind: RecordDuplicate, Target: "b"},
			},
		},
		{
			name: "repeated path",
			records: []Record{
				{Path: "a", Kind: RecordContent, Content: []byte("x")},
				{Path: "a", Kind: RecordContent, Content: []byte("y")},
			},
		},
		{
			name:    "prefix table without flag",
			table:   PrefixTable{"d/"},
			records: []Record{{Path: "$0$a", Kind: RecordContent}},
		},
		{
			name:           "prefix index out of range",
			table:          PrefixTable{"d/"},
			records:        []Record{{Path: "$1$a", Kind: RecordContent}},
			pathCompressed: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			blob, err := encodeCatalog(FormatV2, tc.table, tc.records)
			if err != nil {
				t.Fatalf("encodeCatalog: %v", err)
			}

			if _, _, err := decodeCatalog(FormatV2, tc.pathCompressed, blob); !errors.Is(err, ErrInvalidFormat) {
				t.Fatalf("expected ErrInvalidFormat, got %v", err)
			}
		})
	}
}

func TestDecodeCatalogDuplicateBeforeTarget(t *testing.T) {
	t.Parallel()

	blob, err := encodeCatalog(FormatV2, nil, []Record{
		{Path: "b", Kind: RecordDuplicate, Target: "a"},
		{Path: "a", Kind: RecordContent, Content: []byte("x")},
	})
	if err != nil {
		t.Fatalf("encodeCatalog: %v", err)
	}

	if _, _, err := decodeCatalog(FormatV2, false, blob); err != nil {
		t.Fatalf("decodeCatalog: %v", err)
	}
}

func TestDecodeCatalogHugeRecordCount(t *testing.T) {
	t.Parallel()

	blob := []byte{0, 0, 0xFF, 0xFF, 0xFF, 0xFF}
	if _, _, err := decodeCatalog(FormatV2, false, blob); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestDecodeCatalogInvalidUTF8Path(t *testing.T) {
	t.Parallel()

	blob := []byte{0, 0, 0, 0, 0, 1, 0, 1, 0xFF, 0, 0, 0, 0}
	if _, _, err := decodeCatalog(FormatV2, false, blob); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestEncodeCatalogPathTooLong(t *testing.T) {
	t.Parallel()

	long := string(bytes.Repeat([]byte("a"), maxPathLen+1))
	_, err := encodeCatalog(FormatV2, nil, []Record{{Path: long, Kind: RecordContent}})
	if !errors.Is(err, ErrPathTooLong) {
		t.Fatalf("expected ErrPathTooLong, got %v", err)
	}
}

func TestDecodeCatalogUnknownVersion(t *testing.T) {
	t.Parallel()

	if _, _, err := decodeCatalog(9, false, []byte{0, 0, 0, 0}); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}
