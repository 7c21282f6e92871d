// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

const (
	benchDefaultEntries    = 128
	benchLargeIndexEntries = 20000
)

var (
	// benchListSink prevents compiler elimination in list benchmark loops.
	benchListSink int
)

// benchEntries returns n entries spread over nested directories with some duplicate content.
func benchEntries(n int) []Entry {
	entries := make([]Entry, 0, n)
	for i := range n {
		entries = append(entries, Entry{
			Path: benchmarkLargePath(i),
			Data: bytes.Repeat([]byte(fmt.Sprintf("payload-%d;", i%(n/4+1))), 32),
		})
	}

	return entries
}

// benchmarkLargePath builds deep, prefix-heavy paths.
func benchmarkLargePath(i int) string {
	return fmt.Sprintf("data/module_%02d/textures/set_%03d/file_%06d.bin", i%17, i%113, i)
}

func BenchmarkCreate(b *testing.B) {
	for _, backend := range []Backend{BackendDeflate, BackendBzip, BackendLZMA} {
		b.Run(string(backend), func(b *testing.B) {
			entries := benchEntries(benchDefaultEntries)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, _, err := Create(entries, CreateOptions{Backend: backend}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkCreateAuto(b *testing.B) {
	entries := benchEntries(benchDefaultEntries)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := Create(entries, CreateOptions{Backend: BackendAuto}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompressPathsLargeIndex(b *testing.B) {
	catalog, err := buildCatalog(benchEntries(benchLargeIndexEntries), nil, nil)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, table := compressPaths(catalog.Records)
		benchListSink = len(table)
	}
}

func BenchmarkOpen(b *testing.B) {
	archive := mustCreate(b, benchEntries(benchDefaultEntries), CreateOptions{Backend: BackendDeflate, Checksum: true})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a, err := Open(archive, ExtractOptions{})
		if err != nil {
			b.Fatal(err)
		}
		benchListSink = len(a.Records)
	}
}

func BenchmarkListLargeIndex(b *testing.B) {
	archive := mustCreate(b, benchEntries(benchLargeIndexEntries), CreateOptions{Backend: BackendDeflate})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a, err := Open(archive, ExtractOptions{})
		if err != nil {
			b.Fatal(err)
		}
		benchListSink = len(a.Entries())
	}
}

func BenchmarkWriteFiles(b *testing.B) {
	benchmarkWriteFiles(b, true)
}

func BenchmarkWriteFilesSanitize(b *testing.B) {
	benchmarkWriteFiles(b, false)
}

func benchmarkWriteFiles(b *testing.B, rawNames bool) {
	files := entriesToFiles(benchEntries(benchDefaultEntries))
	root := b.TempDir()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dst := filepath.Join(root, fmt.Sprintf("run-%d", i))
		if err := WriteFiles(context.Background(), files, dst, WriteOptions{RawNames: rawNames}); err != nil {
			b.Fatal(err)
		}
	}
}
