// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import "strings"

// FilterEntries keeps entries under prefix, or the exact entry when prefix names a file.
// An empty prefix keeps everything.
func FilterEntries(entries []EntryInfo, prefix string) []EntryInfo {
	prefix = NormalizePath(prefix)
	if prefix == "" {
		return entries
	}

	out := make([]EntryInfo, 0, len(entries))
	for _, entry := range entries {
		if pathUnderPrefix(entry.Path, prefix) {
			out = append(out, entry)
		}
	}

	return out
}

// FilterFiles returns the subset of a decoded mapping under prefix.
func FilterFiles(files map[string][]byte, prefix string) map[string][]byte {
	prefix = NormalizePath(prefix)
	if prefix == "" {
		return files
	}

	out := make(map[string][]byte)
	for p, data := range files {
		if pathUnderPrefix(p, prefix) {
			out[p] = data
		}
	}

	return out
}

// pathUnderPrefix matches whole path segments only: "a/b" is under "a" but "ab" is not.
func pathUnderPrefix(p string, prefix string) bool {
	p = NormalizePath(p)
	return p == prefix || strings.HasPrefix(p, prefix+pathSeparatorStr)
}
