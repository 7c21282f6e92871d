// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/woozymasta/pathrules"
)

// scanMatcher holds compiled include/exclude rules for directory scans.
type scanMatcher struct {
	matcher *pathrules.Matcher
}

// newScanMatcher compiles scan path rules. Nil means every file is included.
func newScanMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*scanMatcher, error) {
	rules = normalizeScanRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidOptions, err)
	}

	return &scanMatcher{matcher: matcher}, nil
}

// normalizeScanRules normalizes rule patterns and drops empty patterns.
func normalizeScanRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Match reports whether a relative file path passes the rules.
func (m *scanMatcher) Match(p string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	return m.matcher.Included(p, false)
}

// MatchDir reports whether a relative directory path passes the rules.
func (m *scanMatcher) MatchDir(p string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	return m.matcher.Included(p, true)
}

// ScanDir walks root in lexical order and returns one Input per regular file, with
// forward-slash paths relative to root. Directories and files that cannot be read are
// returned as inputs whose Open fails with the scan error, so they end up in
// CreateResult.Skipped.
func ScanDir(root string, opts ScanOptions) ([]Input, error) {
	opts.applyDefaults()

	info, err := os.Stat(root)
	if err != nil {
		return nil, wrapNotFound("scan source", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan source %s: not a directory", root)
	}

	matcher, err := newScanMatcher(opts.Rules, opts.MatcherOptions)
	if err != nil {
		return nil, err
	}

	var inputs []Input
	walkErr := filepath.WalkDir(root, func(fullPath string, d fs.DirEntry, err error) error {
		if err != nil && fullPath == root {
			return err
		}

		rel, relErr := filepath.Rel(root, fullPath)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			isDir := d != nil && d.IsDir()
			if (isDir && matcher.MatchDir(rel)) || (!isDir && matcher.Match(rel)) {
				opts.Logger.Warn("skipping unreadable path", slog.String("path", fullPath), slog.Any("error", err))
				inputs = append(inputs, unreadableInput(rel, err))
			}
			if isDir {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		size, ok, err := scanFileSize(fullPath, d, opts)
		if !ok && err == nil {
			return nil
		}

		if !matcher.Match(rel) {
			opts.Logger.Debug("excluded by rules", slog.String("path", rel))
			return nil
		}

		if err != nil {
			opts.Logger.Warn("skipping unreadable file", slog.String("path", fullPath), slog.Any("error", err))
			inputs = append(inputs, unreadableInput(rel, err))
			return nil
		}

		inputs = append(inputs, Input{
			Path:     rel,
			SizeHint: size,
			Open: func() (io.ReadCloser, error) {
				return os.Open(fullPath)
			},
		})

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan %s: %w", root, walkErr)
	}

	return inputs, nil
}

// unreadableInput carries a scan failure to the catalog builder, which records it as skipped.
func unreadableInput(rel string, err error) Input {
	return Input{
		Path: rel,
		Open: func() (io.ReadCloser, error) {
			return nil, err
		},
	}
}

// scanFileSize returns the size of a regular file, resolving symlinks when allowed.
// ok is false for entries that should not be archived; err is set when the entry
// should have been archived but could not be inspected.
func scanFileSize(fullPath string, d fs.DirEntry, opts ScanOptions) (int64, bool, error) {
	mode := d.Type()
	if mode&fs.ModeSymlink != 0 {
		if !opts.FollowSymlinks {
			opts.Logger.Debug("skipping symlink", slog.String("path", fullPath))
			return 0, false, nil
		}

		info, err := os.Stat(fullPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				opts.Logger.Warn("skipping broken symlink", slog.String("path", fullPath), slog.Any("error", err))
				return 0, false, nil
			}
			return 0, false, err
		}
		if !info.Mode().IsRegular() {
			return 0, false, nil
		}

		return info.Size(), true, nil
	}

	if !mode.IsRegular() {
		return 0, false, nil
	}

	info, err := d.Info()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}

	return info.Size(), true, nil
}
