// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// writeTestArchive creates an archive file from entries.
func writeTestArchive(t *testing.T, path string, entries []Entry, opts CreateOptions) {
	t.Helper()

	if err := os.WriteFile(path, mustCreate(t, entries, opts), 0o600); err != nil {
		t.Fatalf("write archive: %v", err)
	}
}

func listPaths(t *testing.T, path string) []string {
	t.Helper()

	entries, err := ListEntries(path, ExtractOptions{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}

	return out
}

func TestEditorCommitAddReplaceDeleteDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archive.kunda")
	writeTestArchive(t, path, []Entry{
		{Path: "dir/a.txt", Data: []byte("old-a")},
		{Path: "dir/sub/b.txt", Data: []byte("old-b")},
		{Path: "scripts/main.c", Data: bytes.Repeat([]byte("class X {};"), 256)},
		{Path: "scripts/copy.c", Data: bytes.Repeat([]byte("class X {};"), 256)},
	}, CreateOptions{Backend: BackendDeflate})

	editor, err := OpenEditor(path, EditOptions{Create: CreateOptions{Backend: BackendBzip, Checksum: true}})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}

	if err := editor.Replace(Entry{Path: "dir/a.txt", Data: []byte("new-a")}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := editor.Add(Entry{Path: "new/new.txt", Data: []byte("added")}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := editor.DeleteDir("dir/sub"); err != nil {
		t.Fatalf("DeleteDir: %v", err)
	}
	if err := editor.Delete("scripts/main.c"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	res, err := editor.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Method != MethodBzip || res.Files != 3 {
		t.Fatalf("result=%+v", res)
	}

	want := []string{"dir/a.txt", "scripts/copy.c", "new/new.txt"}
	if got := listPaths(t, path); !slices.Equal(got, want) {
		t.Fatalf("paths=%v, want %v", got, want)
	}

	a, err := OpenFile(path, ExtractOptions{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if !a.Header.Checksummed() {
		t.Fatal("rewritten archive must use the editor create options")
	}
	if data, _ := a.ReadEntry("dir/a.txt"); string(data) != "new-a" {
		t.Fatalf("dir/a.txt=%q", data)
	}
	if data, _ := a.ReadEntry("scripts/copy.c"); !bytes.Equal(data, bytes.Repeat([]byte("class X {};"), 256)) {
		t.Fatal("duplicate content lost after its target was deleted")
	}
}

func TestEditorCommitErrorsLeaveArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "archive.kunda")
	writeTestArchive(t, path, workedExampleEntries(), CreateOptions{})
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	testCases := []struct {
		name    string
		stage   func(e *Editor) error
		wantErr error
	}{
		{name: "add existing", stage: func(e *Editor) error { return e.Add(Entry{Path: "a.txt"}) }, wantErr: ErrDuplicateEntryPath},
		{name: "replace missing", stage: func(e *Editor) error { return e.Replace(Entry{Path: "zzz"}) }, wantErr: ErrNotFound},
	}

	for _, tc := range testCases {
		editor, err := OpenEditor(path, EditOptions{})
		if err != nil {
			t.Fatalf("OpenEditor: %v", err)
		}
		if err := tc.stage(editor); err != nil {
			t.Fatalf("%s: stage: %v", tc.name, err)
		}
		if _, err := editor.Commit(context.Background()); !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("failed commit modified the archive")
	}
}

func TestEditorStageValidation(t *testing.T) {
	t.Parallel()

	if _, err := OpenEditor("  ", EditOptions{}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}

	editor, err := OpenEditor(filepath.Join(t.TempDir(), "missing.kunda"), EditOptions{})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}
	if err := editor.Add(Entry{Path: "../x"}); !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("expected ErrInvalidEntryPath, got %v", err)
	}
	if err := editor.Delete("/abs"); !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("expected ErrInvalidEntryPath, got %v", err)
	}
	if _, err := editor.Commit(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEditorNormalizesStagedPaths(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archive.kunda")
	writeTestArchive(t, path, []Entry{
		{Path: "dir/a.txt", Data: []byte("a")},
		{Path: "dir/b.txt", Data: []byte("b")},
	}, CreateOptions{Backend: BackendDeflate})

	editor, err := OpenEditor(path, EditOptions{})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}
	if err := editor.Delete(`.\dir\a.txt`); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := editor.Replace(Entry{Path: "./dir/b.txt", Data: []byte("b2")}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if _, err := editor.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got := listPaths(t, path); !slices.Equal(got, []string{"dir/b.txt"}) {
		t.Fatalf("paths=%v, want [dir/b.txt]", got)
	}
}

func TestEditorBackupRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "archive.kunda")
	writeTestArchive(t, path, []Entry{{Path: "v", Data: []byte("0")}}, CreateOptions{})

	for i := 1; i <= 3; i++ {
		editor, err := OpenEditor(path, EditOptions{BackupKeep: 2})
		if err != nil {
			t.Fatalf("OpenEditor: %v", err)
		}
		if err := editor.Replace(Entry{Path: "v", Data: []byte{byte('0' + i)}}); err != nil {
			t.Fatalf("Replace: %v", err)
		}
		if _, err := editor.Commit(context.Background()); err != nil {
			t.Fatalf("Commit %d: %v", i, err)
		}
	}

	versionOf := func(p string) string {
		t.Helper()

		a, err := OpenFile(p, ExtractOptions{})
		if err != nil {
			t.Fatalf("OpenFile(%s): %v", p, err)
		}
		data, err := a.ReadEntry("v")
		if err != nil {
			t.Fatalf("ReadEntry: %v", err)
		}

		return string(data)
	}

	if got := versionOf(path); got != "3" {
		t.Fatalf("current=%s, want 3", got)
	}
	if got := versionOf(path + ".bak"); got != "2" {
		t.Fatalf("backup=%s, want 2", got)
	}
	if got := versionOf(path + ".bak.1"); got != "1" {
		t.Fatalf("backup.1=%s, want 1", got)
	}
	if _, err := os.Stat(path + ".bak.2"); !os.IsNotExist(err) {
		t.Fatalf("unexpected third backup generation: %v", err)
	}
}
