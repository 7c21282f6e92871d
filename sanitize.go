// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"encoding/hex"
	"path"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

// maxSanitizedSegmentLen limits one path segment to common filesystem-safe length.
const maxSanitizedSegmentLen = 240

// reservedDeviceNames holds Windows device names that cannot be used as file base names.
var reservedDeviceNames = buildReservedDeviceNames()

// buildReservedDeviceNames expands the numbered COM/LPT ports.
func buildReservedDeviceNames() map[string]struct{} {
	names := map[string]struct{}{
		"con": {}, "prn": {}, "aux": {}, "nul": {}, "clock$": {},
	}
	for i := 1; i <= 9; i++ {
		n := strconv.Itoa(i)
		names["com"+n] = struct{}{}
		names["lpt"+n] = struct{}{}
	}

	return names
}

// SanitizePath rewrites one archive path to deterministic filesystem-safe slash-separated form.
func SanitizePath(p string) (string, error) {
	normalized, err := normalizeExtractEntryPath(p)
	if err != nil {
		return "", err
	}

	sanitized := sanitizeRelativePath(normalized)
	if _, err := normalizeExtractEntryPath(sanitized); err != nil {
		return "", err
	}

	return sanitized, nil
}

// sanitizeOutputPaths maps every archive path (in the given order) to a unique safe output path.
// Collisions after sanitization, including case-only ones, get a "~N" suffix.
func sanitizeOutputPaths(paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	used := make(map[string]struct{}, len(paths))
	nextSuffix := make(map[string]int, len(paths))

	for _, p := range paths {
		sanitized, err := SanitizePath(p)
		if err != nil {
			return nil, err
		}

		sanitized, err = makeSanitizedPathUnique(sanitized, used, nextSuffix)
		if err != nil {
			return nil, err
		}

		out[p] = sanitized
	}

	return out, nil
}

// sanitizeRelativePath sanitizes each segment of a normalized relative path.
func sanitizeRelativePath(relativePath string) string {
	parts := strings.Split(relativePath, pathSeparatorStr)
	for i, part := range parts {
		parts[i] = sanitizePathSegment(part)
	}

	return strings.Join(parts, pathSeparatorStr)
}

// sanitizePathSegment replaces characters that common filesystems reject.
func sanitizePathSegment(segment string) string {
	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range segment {
		if unicode.IsControl(r) || unicode.In(r, unicode.Cf) || strings.ContainsRune(`<>:"\|?*`, r) {
			b.WriteByte('_')
			continue
		}

		b.WriteRune(r)
	}

	sanitized := strings.TrimRight(strings.TrimSpace(b.String()), ". ")
	if sanitized == "" {
		return "_"
	}

	if isReservedDeviceName(sanitized) {
		sanitized = "_" + sanitized
	}

	return shortenSegmentDeterministic(sanitized, maxSanitizedSegmentLen)
}

// isReservedDeviceName reports whether the base name (before the first dot) is a device name.
func isReservedDeviceName(name string) bool {
	base := strings.ToLower(name)
	if dot := strings.IndexByte(base, '.'); dot >= 0 {
		base = base[:dot]
	}

	_, ok := reservedDeviceNames[strings.TrimSpace(base)]
	return ok
}

// makeSanitizedPathUnique resolves case-insensitive collisions with a deterministic numeric suffix.
func makeSanitizedPathUnique(p string, used map[string]struct{}, nextSuffix map[string]int) (string, error) {
	key := strings.ToLower(p)
	if _, exists := used[key]; !exists {
		used[key] = struct{}{}
		return p, nil
	}

	dir, name := path.Split(p)
	start := max(nextSuffix[key], 2)
	for idx := start; idx < 1_000_000; idx++ {
		candidate := dir + withNumericSuffix(name, idx)
		candidateKey := strings.ToLower(candidate)
		if _, exists := used[candidateKey]; exists {
			continue
		}

		used[candidateKey] = struct{}{}
		nextSuffix[key] = idx + 1
		return candidate, nil
	}

	return "", ErrInvalidExtractPath
}

// withNumericSuffix inserts "~N" before the extension.
func withNumericSuffix(name string, n int) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	suffix := "~" + strconv.Itoa(n)
	allowed := max(maxSanitizedSegmentLen-len(ext)-len(suffix), 1)

	return shortenSegmentDeterministic(base, allowed) + suffix + ext
}

// shortenSegmentDeterministic truncates value and appends a short content hash so distinct
// long names stay distinct.
func shortenSegmentDeterministic(value string, maxLen int) string {
	if len(value) <= maxLen {
		return value
	}
	if maxLen <= 10 {
		return value[:maxLen]
	}

	sum := blake3.Sum256([]byte(value))
	hashPart := "~" + hex.EncodeToString(sum[:4])
	prefix := value[:max(maxLen-len(hashPart), 1)]
	for len(prefix) > 1 && !utf8.ValidString(prefix) {
		prefix = prefix[:len(prefix)-1]
	}

	return prefix + hashPart
}
