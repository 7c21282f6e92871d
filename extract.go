// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
)

// writeWorkItem stores one decoded entry with prepared output relative paths.
type writeWorkItem struct {
	entryPath string
	relPath   string
	relDir    string
	data      []byte
}

// WriteFiles writes a decoded mapping under dstDir. Every output path is validated before the
// first file is written; writes then run on MaxWorkers goroutines. On failure the first
// encountered error is returned.
func WriteFiles(ctx context.Context, files map[string][]byte, dstDir string, opts WriteOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()
	switch opts.FileMode {
	case WriteFileModeAuto, WriteFileModeTruncate, WriteFileModeCreateOnly:
	default:
		return fmt.Errorf("%w: unknown write file mode %q", ErrInvalidOptions, opts.FileMode)
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}

	if len(files) == 0 {
		return nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	workItems, err := prepareWriteWorkItems(files, dstRootAbs, opts.RawNames)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := prepareWriteDirs(dstRootAbs, workItems); err != nil {
		return err
	}

	workers = min(workers, len(workItems))
	taskCh := make(chan writeWorkItem, len(workItems))
	errCh := make(chan error, len(workItems))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			for task := range taskCh {
				errCh <- writePreparedEntry(ctx, dstRootAbs, task, opts.FileMode, opts.OnEntryDone)
			}
		})
	}

	for _, task := range workItems {
		select {
		case <-ctx.Done():
			close(taskCh)
			wg.Wait()
			return ctx.Err()
		case taskCh <- task:
		}
	}

	close(taskCh)
	wg.Wait()
	close(errCh)

	var first error
	for err := range errCh {
		if err != nil && first == nil {
			first = err
		}
	}

	return first
}

// prepareWriteWorkItems validates every entry path and resolves output paths in lexical order.
func prepareWriteWorkItems(files map[string][]byte, dstRootAbs string, rawNames bool) ([]writeWorkItem, error) {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	var outNames map[string]string
	if !rawNames {
		var err error
		outNames, err = sanitizeOutputPaths(paths)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]string, len(paths))
	dirs := make(map[string]struct{}, len(paths))
	workItems := make([]writeWorkItem, 0, len(paths))
	for _, p := range paths {
		outName := p
		if !rawNames {
			outName = outNames[p]
		}

		normalizedPath, err := normalizeExtractEntryPath(outName)
		if err != nil {
			return nil, fmt.Errorf("normalize entry path %s: %w", p, err)
		}

		relPath := filepath.FromSlash(normalizedPath)
		if err := ensureWithinRoot(dstRootAbs, relPath); err != nil {
			return nil, fmt.Errorf("entry path %s: %w", p, err)
		}

		if other, exists := seen[relPath]; exists {
			return nil, fmt.Errorf("%w: %s and %s resolve to the same output", ErrInvalidExtractPath, other, p)
		}
		seen[relPath] = p

		relDir := filepath.Dir(relPath)
		if relDir == "." {
			relDir = ""
		}
		for d := relDir; d != ""; d = parentDir(d) {
			dirs[d] = struct{}{}
		}

		workItems = append(workItems, writeWorkItem{
			entryPath: p,
			relPath:   relPath,
			relDir:    relDir,
			data:      files[p],
		})
	}

	for _, task := range workItems {
		if _, isDir := dirs[task.relPath]; isDir {
			return nil, fmt.Errorf("%w: %s is both a file and a directory", ErrInvalidExtractPath, task.entryPath)
		}
	}

	return workItems, nil
}

// parentDir returns the parent of a relative directory, or "" at the top.
func parentDir(d string) string {
	parent := filepath.Dir(d)
	if parent == "." {
		return ""
	}

	return parent
}

// ensureWithinRoot rejects relative paths that resolve outside root.
func ensureWithinRoot(root string, relPath string) error {
	rel, err := filepath.Rel(root, filepath.Join(root, relPath))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtractPathOutsideRoot, err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return ErrExtractPathOutsideRoot
	}

	return nil
}

// prepareWriteDirs creates all unique parent directories needed by work items.
func prepareWriteDirs(dstRootAbs string, workItems []writeWorkItem) error {
	seen := make(map[string]struct{}, len(workItems))
	for _, task := range workItems {
		if task.relDir == "" {
			continue
		}

		dirPath := filepath.Join(dstRootAbs, task.relDir)
		if _, exists := seen[dirPath]; exists {
			continue
		}

		seen[dirPath] = struct{}{}
		if err := os.MkdirAll(dirPath, 0o750); err != nil {
			return fmt.Errorf("create output directory %s: %w", dirPath, err)
		}
	}

	return nil
}

// writePreparedEntry writes one prepared work item under the destination root.
func writePreparedEntry(
	ctx context.Context,
	dstRootAbs string,
	task writeWorkItem,
	fileMode WriteFileMode,
	onEntryDone func(path string, written int64, outputPath string),
) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	outPath := filepath.Join(dstRootAbs, task.relPath)
	file, err := openOutputFile(outPath, fileMode)
	if err != nil {
		return fmt.Errorf("open %s: %w", task.entryPath, err)
	}

	written, writeErr := file.Write(task.data)
	closeErr := file.Close()
	if writeErr != nil {
		return fmt.Errorf("write %s: %w", task.entryPath, writeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close %s: %w", task.entryPath, closeErr)
	}

	if onEntryDone != nil {
		onEntryDone(task.entryPath, int64(written), outPath)
	}

	return nil
}

// openOutputFile opens output path according to the selected file mode.
func openOutputFile(path string, mode WriteFileMode) (*os.File, error) {
	switch mode {
	case WriteFileModeAuto:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil || !os.IsExist(err) {
			return file, err
		}

		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	case WriteFileModeTruncate:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	case WriteFileModeCreateOnly:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	default:
		return nil, fmt.Errorf("%w: unknown write file mode %q", ErrInvalidOptions, mode)
	}
}
