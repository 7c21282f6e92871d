// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"errors"
	"slices"
	"testing"
)

// contentRecords builds content records for the given paths.
func contentRecords(paths ...string) []Record {
	out := make([]Record, 0, len(paths))
	for _, p := range paths {
		out = append(out, Record{Path: p, Kind: RecordContent, Content: []byte(p)})
	}

	return out
}

// recordPaths returns record paths in order.
func recordPaths(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Path)
	}

	return out
}

func TestCompressPathsRewritesLongestPrefix(t *testing.T) {
	t.Parallel()

	records := contentRecords(
		"src/app/main.go",
		"src/app/util.go",
		"src/app/db.go",
		"src/lib/x.go",
		"README.md",
	)

	out, table := compressPaths(records)

	wantTable := PrefixTable{"src/app/", "src/"}
	if !slices.Equal(table, wantTable) {
		t.Fatalf("table=%q, want %q", table, wantTable)
	}

	wantPaths := []string{"$0$main.go", "$0$util.go", "$0$db.go", "$1$lib/x.go", "README.md"}
	if got := recordPaths(out); !slices.Equal(got, wantPaths) {
		t.Fatalf("paths=%q, want %q", got, wantPaths)
	}

	if records[0].Path != "src/app/main.go" {
		t.Fatal("input records were modified")
	}
}

// Table positions are stored implicitly, so this ordering is part of the archive format.
func TestSelectPrefixesOrderIsStable(t *testing.T) {
	t.Parallel()

	records := contentRecords(
		"aa/x/1", "aa/x/2", "aa/x/3",
		"bb/y/1", "bb/y/2", "bb/y/3",
	)

	got := selectPrefixes(records)
	want := PrefixTable{"aa/x/", "bb/y/", "aa/", "bb/"}
	if !slices.Equal(got, want) {
		t.Fatalf("table=%q, want %q", got, want)
	}
}

func TestSelectPrefixesCountsCharacters(t *testing.T) {
	t.Parallel()

	records := contentRecords(
		"ééé/1", "ééé/2", "ééé/3",
		"abcde/1", "abcde/2", "abcde/3",
	)

	got := selectPrefixes(records)
	want := PrefixTable{"abcde/", "ééé/"}
	if !slices.Equal(got, want) {
		t.Fatalf("table=%q, want %q", got, want)
	}
}

func TestSelectPrefixesThreshold(t *testing.T) {
	t.Parallel()

	got := selectPrefixes(contentRecords("a/1", "a/2", "b/1"))
	if len(got) != 0 {
		t.Fatalf("table=%q, want empty", got)
	}
}

func TestCompressPathsSkipsSingleRecord(t *testing.T) {
	t.Parallel()

	for _, records := range [][]Record{nil, contentRecords("a/b/c")} {
		out, table := compressPaths(records)
		if table != nil {
			t.Fatalf("table=%q, want nil", table)
		}
		if !slices.Equal(recordPaths(out), recordPaths(records)) {
			t.Fatalf("paths changed: %q", recordPaths(out))
		}
	}
}

func TestCompressPathsKeepsDuplicateTargets(t *testing.T) {
	t.Parallel()

	records := []Record{
		{Path: "d/a", Kind: RecordContent, Content: []byte("x")},
		{Path: "d/b", Kind: RecordDuplicate, Target: "d/a"},
		{Path: "d/c", Kind: RecordDuplicate, Target: "d/a"},
	}

	out, table := compressPaths(records)
	if !slices.Equal(table, PrefixTable{"d/"}) {
		t.Fatalf("table=%q", table)
	}
	if out[1].Path != "$0$b" || out[1].Target != "d/a" {
		t.Fatalf("duplicate record=%+v, want path $0$b and target d/a", out[1])
	}
}

func TestCompressPathsLiteralBackRefDisablesCompression(t *testing.T) {
	t.Parallel()

	records := contentRecords("$0$x", "d/a", "d/b", "d/c")
	out, table := compressPaths(records)
	if len(table) != 0 {
		t.Fatalf("table=%q, want empty", table)
	}
	if !slices.Equal(recordPaths(out), recordPaths(records)) {
		t.Fatalf("paths=%q, want unchanged", recordPaths(out))
	}
}

func TestCompressPathsDollarUnderPrefix(t *testing.T) {
	t.Parallel()

	records := contentRecords("d/$0$z", "d/a", "d/$b", "$plain")
	out, table := compressPaths(records)
	if !slices.Equal(table, PrefixTable{"d/"}) {
		t.Fatalf("table=%q", table)
	}

	for i, rec := range out {
		got, err := expandPath(rec.Path, table)
		if err != nil {
			t.Fatalf("expandPath(%q): %v", rec.Path, err)
		}
		if got != records[i].Path {
			t.Fatalf("expandPath(%q)=%q, want %q", rec.Path, got, records[i].Path)
		}
	}
}

func TestParseBackRef(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in      string
		wantIdx int
		suffix  string
		ok      bool
	}{
		{in: "$0$a", wantIdx: 0, suffix: "a", ok: true},
		{in: "$12$", wantIdx: 12, suffix: "", ok: true},
		{in: "$3$$1$x", wantIdx: 3, suffix: "$1$x", ok: true},
		{in: "$99999999999999999999999$x", wantIdx: -1, suffix: "x", ok: true},
		{in: "$$x"},
		{in: "$a$x"},
		{in: "$1x"},
		{in: "a$1$x"},
		{in: "$"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			idx, suffix, ok := parseBackRef(tc.in)
			if ok != tc.ok {
				t.Fatalf("parseBackRef(%q) ok=%v, want %v", tc.in, ok, tc.ok)
			}
			if ok && (idx != tc.wantIdx || suffix != tc.suffix) {
				t.Fatalf("parseBackRef(%q)=(%d,%q), want (%d,%q)", tc.in, idx, suffix, tc.wantIdx, tc.suffix)
			}
		})
	}
}

func TestExpandPathOutOfRange(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"$1$x", "$99999999999999999999999$x"} {
		if _, err := expandPath(p, PrefixTable{"a/"}); !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("expandPath(%q)=%v, want ErrInvalidFormat", p, err)
		}
	}
}
