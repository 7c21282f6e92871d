// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// compressPaths selects a prefix table for records and rewrites matching paths to "$idx$suffix".
// Duplicate targets are never rewritten. Catalogs with fewer than two records are returned unchanged.
// When an unmatched path already has back-reference form, compression is skipped for the whole
// catalog so that the literal path survives decoding.
func compressPaths(records []Record) ([]Record, PrefixTable) {
	if len(records) <= 1 {
		return records, nil
	}

	table := selectPrefixes(records)
	if len(table) == 0 {
		return records, nil
	}

	index := make(map[string]int, len(table))
	for i, prefix := range table {
		index[prefix] = i
	}

	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = rec

		if idx, ok := longestPrefix(rec.Path, index); ok {
			out[i].Path = formatBackRef(idx, rec.Path[len(table[idx]):])
			continue
		}

		if _, _, ok := parseBackRef(rec.Path); ok {
			return records, nil
		}
	}

	return out, table
}

// selectPrefixes counts every proper directory prefix ("a/", "a/b/") over all record paths,
// keeps those used at least minPrefixUses times, and orders them longest first.
// Equal lengths keep first-seen order. Lengths are counted in characters, not bytes.
// The resulting positions are the on-disk indices, so this ordering must never change.
func selectPrefixes(records []Record) PrefixTable {
	counts := make(map[string]int)
	firstSeen := make([]string, 0)
	for _, rec := range records {
		p := rec.Path
		for i := 0; i < len(p); i++ {
			if p[i] != pathSeparator {
				continue
			}

			prefix := p[:i+1]
			if _, ok := counts[prefix]; !ok {
				firstSeen = append(firstSeen, prefix)
			}
			counts[prefix]++
		}
	}

	table := make(PrefixTable, 0, len(firstSeen))
	for _, prefix := range firstSeen {
		if counts[prefix] >= minPrefixUses {
			table = append(table, prefix)
		}
	}

	sort.SliceStable(table, func(i, j int) bool {
		return utf8.RuneCountInString(table[i]) > utf8.RuneCountInString(table[j])
	})

	if len(table) > maxPrefixCount {
		table = table[:maxPrefixCount]
	}

	return table
}

// longestPrefix returns the table index of the longest table prefix of p.
// All candidate prefixes of one path are nested, so the longest in bytes is also the first
// match in table order.
func longestPrefix(p string, index map[string]int) (int, bool) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != pathSeparator {
			continue
		}

		if idx, ok := index[p[:i+1]]; ok {
			return idx, true
		}
	}

	return 0, false
}

// formatBackRef renders the compressed path form.
func formatBackRef(idx int, suffix string) string {
	var b strings.Builder
	b.Grow(len(suffix) + 8)
	b.WriteByte(prefixDelimiter)
	b.WriteString(strconv.Itoa(idx))
	b.WriteByte(prefixDelimiter)
	b.WriteString(suffix)
	return b.String()
}

// parseBackRef splits "$<digits>$suffix". ok is false for any other shape.
// idx is -1 when the digits do not fit an int.
func parseBackRef(p string) (idx int, suffix string, ok bool) {
	if len(p) < 3 || p[0] != prefixDelimiter {
		return 0, "", false
	}

	end := strings.IndexByte(p[1:], prefixDelimiter)
	if end <= 0 {
		return 0, "", false
	}
	end++

	digits := p[1:end]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, "", false
		}
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		n = -1
	}

	return n, p[end+1:], true
}

// expandPath resolves a back-reference against table. Paths without back-reference form
// are returned unchanged.
func expandPath(p string, table PrefixTable) (string, error) {
	idx, suffix, ok := parseBackRef(p)
	if !ok {
		return p, nil
	}

	if idx < 0 || idx >= len(table) {
		return "", fmt.Errorf("%w: path %q references prefix %d of %d", ErrInvalidFormat, p, idx, len(table))
	}

	return table[idx] + suffix, nil
}
