// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// NormalizePath converts a host path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
// It is lenient: ".." segments are resolved and a leading "/" is dropped. Archive entry paths
// go through the stricter normalizeEntryPath instead.
func NormalizePath(raw string) string {
	raw = normalizePathForMatching(raw)
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// normalizePathForMatching normalizes user/input paths for matcher use.
func normalizePathForMatching(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, `\`, `/`)
	p = strings.TrimPrefix(p, "./")
	return p
}

// normalizeEntryPath converts an input path to its stored form and validates it.
// Backslashes become "/" and empty or "." segments are dropped; absolute paths and ".."
// segments stay errors.
func normalizeEntryPath(raw string) (string, error) {
	p := strings.ReplaceAll(strings.TrimSpace(raw), `\`, pathSeparatorStr)
	if strings.HasPrefix(p, pathSeparatorStr) {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidEntryPath, raw)
	}

	parts := strings.Split(p, pathSeparatorStr)
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		kept = append(kept, part)
	}
	p = strings.Join(kept, pathSeparatorStr)

	if err := validateEntryPath(p); err != nil {
		if p == "" {
			return "", fmt.Errorf("%w: %q names no file", ErrInvalidEntryPath, raw)
		}
		return "", err
	}

	return p, nil
}

// validateEntryPath checks that raw is a relative forward-slash path that round-trips unchanged.
func validateEntryPath(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidEntryPath)
	}
	if !utf8.ValidString(raw) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidEntryPath, raw)
	}
	if strings.ContainsRune(raw, 0) {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidEntryPath, raw)
	}
	if len(raw) > maxPathLen {
		return fmt.Errorf("%w: %d bytes", ErrPathTooLong, len(raw))
	}
	if strings.HasPrefix(raw, pathSeparatorStr) {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidEntryPath, raw)
	}

	for _, part := range strings.Split(raw, pathSeparatorStr) {
		switch part {
		case "", ".", "..":
			return fmt.Errorf("%w: %q has empty, \".\" or \"..\" segment", ErrInvalidEntryPath, raw)
		}
	}

	return nil
}

// normalizeExtractEntryPath normalizes entry path and rejects absolute/traversal inputs.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" {
		return "", ErrInvalidExtractPath
	}
	if strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if hasWindowsAbsDrivePrefix(raw) {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, `/`)
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(cleanParts, `/`), nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with drive-root prefix like C:/.
func hasWindowsAbsDrivePrefix(p string) bool {
	if len(p) < 3 {
		return false
	}

	return isASCIIAlpha(p[0]) && p[1] == ':' && p[2] == '/'
}

// isASCIIAlpha reports whether byte is ASCII latin letter.
func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
