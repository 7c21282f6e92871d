// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// EditOptions configures archive rewrites.
type EditOptions struct {
	// Create controls how the rewritten archive is encoded.
	Create CreateOptions `json:"create" yaml:"create"`
	// Extract controls how the source archive is decoded.
	Extract ExtractOptions `json:"extract" yaml:"extract"`
	// BackupKeep is the number of "<archive>.bak" generations to keep (zero removes the backup).
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
}

// Editor stages changes to an archive file and applies them on Commit by decoding the
// whole archive and encoding a new one. Stored entry order is kept; added entries go last.
type Editor struct {
	path string
	ops  []editOperation
	opts EditOptions
}

// editOperation stores one staged editor operation.
type editOperation struct {
	entries []Entry
	paths   []string
	kind    editOperationKind
}

// editOperationKind identifies staged edit action type.
type editOperationKind uint8

const (
	// editOperationAdd appends new entries and fails on existing path.
	editOperationAdd editOperationKind = iota + 1
	// editOperationReplace rewrites existing entries in place.
	editOperationReplace
	// editOperationDelete removes exact paths.
	editOperationDelete
	// editOperationDeleteDir removes entries by directory prefix.
	editOperationDeleteDir
)

// OpenEditor creates a staged editor for the archive at path.
func OpenEditor(path string, opts EditOptions) (*Editor, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("%w: empty archive path", ErrInvalidOptions)
	}

	return &Editor{path: trimmedPath, opts: opts}, nil
}

// Add schedules adding new entries; Commit fails when a path already exists.
func (e *Editor) Add(entries ...Entry) error {
	return e.stageEntries(editOperationAdd, entries)
}

// Replace schedules replacing existing entries; Commit fails when a path is missing.
func (e *Editor) Replace(entries ...Entry) error {
	return e.stageEntries(editOperationReplace, entries)
}

// Delete schedules exact-path removal.
func (e *Editor) Delete(paths ...string) error {
	return e.stagePaths(editOperationDelete, paths)
}

// DeleteDir schedules removal of everything under the given directory prefixes.
func (e *Editor) DeleteDir(prefixes ...string) error {
	return e.stagePaths(editOperationDeleteDir, prefixes)
}

// stageEntries normalizes entry paths and stages one operation.
func (e *Editor) stageEntries(kind editOperationKind, entries []Entry) error {
	staged := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		p, err := normalizeEntryPath(entry.Path)
		if err != nil {
			return err
		}

		entry.Path = p
		staged = append(staged, entry)
	}

	if len(staged) > 0 {
		e.ops = append(e.ops, editOperation{kind: kind, entries: staged})
	}

	return nil
}

// stagePaths normalizes archive paths and stages one operation.
func (e *Editor) stagePaths(kind editOperationKind, paths []string) error {
	staged := make([]string, 0, len(paths))
	for _, raw := range paths {
		p, err := normalizeEntryPath(raw)
		if err != nil {
			return err
		}

		staged = append(staged, p)
	}

	if len(staged) > 0 {
		e.ops = append(e.ops, editOperation{kind: kind, paths: staged})
	}

	return nil
}

// Commit applies all staged operations and replaces the archive file.
// The previous archive is kept as "<path>.bak" when BackupKeep is positive.
func (e *Editor) Commit(ctx context.Context) (*CreateResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := OpenFile(e.path, e.opts.Extract)
	if err != nil {
		return nil, err
	}

	entries, err := buildEditPlan(a, e.ops)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	archive, res, err := Create(entries, e.opts.Create)
	if err != nil {
		return nil, err
	}

	if e.opts.BackupKeep > 0 {
		backupPath := e.path + ".bak"
		if err := prepareBackupSlot(backupPath, e.opts.BackupKeep); err != nil {
			return nil, err
		}

		if err := copyFile(e.path, backupPath); err != nil {
			return nil, err
		}
	}

	if err := writeFileAtomic(e.path, archive); err != nil {
		return nil, err
	}

	return res, nil
}

// editState is the working entry list: stored order plus a path index.
type editState struct {
	index   map[string]int
	entries []Entry
	removed []bool
}

// buildEditPlan applies staged operations to the decoded archive.
func buildEditPlan(a *Archive, ops []editOperation) ([]Entry, error) {
	files := a.Files()
	state := &editState{index: make(map[string]int, len(a.Records))}
	for _, rec := range a.Records {
		state.append(Entry{Path: rec.Path, Data: files[rec.Path]})
	}

	for _, op := range ops {
		switch op.kind {
		case editOperationAdd:
			for _, entry := range op.entries {
				if _, exists := state.lookup(entry.Path); exists {
					return nil, fmt.Errorf("%w: %q", ErrDuplicateEntryPath, entry.Path)
				}

				state.append(entry)
			}
		case editOperationReplace:
			for _, entry := range op.entries {
				i, exists := state.lookup(entry.Path)
				if !exists {
					return nil, fmt.Errorf("%w: entry %q", ErrNotFound, entry.Path)
				}

				state.entries[i].Data = entry.Data
			}
		case editOperationDelete:
			for _, p := range op.paths {
				if i, exists := state.lookup(p); exists {
					state.remove(i)
				}
			}
		case editOperationDeleteDir:
			for _, prefix := range op.paths {
				for i, entry := range state.entries {
					if !state.removed[i] && pathUnderPrefix(entry.Path, prefix) {
						state.remove(i)
					}
				}
			}
		default:
			return nil, fmt.Errorf("unknown edit operation kind: %d", op.kind)
		}
	}

	out := make([]Entry, 0, len(state.entries))
	for i, entry := range state.entries {
		if !state.removed[i] {
			out = append(out, entry)
		}
	}

	return out, nil
}

// append adds entry at the end.
func (s *editState) append(entry Entry) {
	s.index[entry.Path] = len(s.entries)
	s.entries = append(s.entries, entry)
	s.removed = append(s.removed, false)
}

// lookup returns the position of a live entry.
func (s *editState) lookup(p string) (int, bool) {
	i, ok := s.index[p]
	return i, ok
}

// remove marks entry i deleted.
func (s *editState) remove(i int) {
	s.removed[i] = true
	delete(s.index, s.entries[i].Path)
}

// copyFile copies src to dst through an atomic write.
func copyFile(src string, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return wrapNotFound("read archive for backup", err)
	}

	return writeFileAtomic(dst, data)
}

// prepareBackupSlot rotates existing backup generations before a new commit.
func prepareBackupSlot(backupPath string, keep int) error {
	if keep <= 1 {
		return removeIfExists(backupPath)
	}

	if err := removeIfExists(fmt.Sprintf("%s.%d", backupPath, keep-1)); err != nil {
		return err
	}

	for i := keep - 2; i >= 1; i-- {
		if err := renameIfExists(fmt.Sprintf("%s.%d", backupPath, i), fmt.Sprintf("%s.%d", backupPath, i+1)); err != nil {
			return err
		}
	}

	return renameIfExists(backupPath, backupPath+".1")
}

// renameIfExists renames source to destination when source exists.
func renameIfExists(from string, to string) error {
	_, err := os.Stat(from)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// removeIfExists removes file when present.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("remove %s: %w", path, err)
}
