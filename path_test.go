// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "slash", in: "/", want: ""},
		{name: "clean", in: "site/assets/app.js", want: "site/assets/app.js"},
		{name: "windows", in: `.\site\assets\`, want: "site/assets"},
		{name: "dot segments", in: "./a/../b//c.txt", want: "b/c.txt"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NormalizePath(tc.in)
			if got != tc.want {
				t.Fatalf("NormalizePath(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeEntryPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{name: "plain", in: "a.txt", want: "a.txt"},
		{name: "backslash", in: `a\b.txt`, want: "a/b.txt"},
		{name: "leading dot", in: "./a", want: "a"},
		{name: "windows relative", in: `.\site\assets\app.js`, want: "site/assets/app.js"},
		{name: "inner dot and double slash", in: "a/./b//c", want: "a/b/c"},
		{name: "trailing slash", in: "dir/file/", want: "dir/file"},
		{name: "spaces", in: "  docs/readme.md ", want: "docs/readme.md"},
		{name: "dollar literal", in: "$0$x", want: "$0$x"},
		{name: "empty", in: "", wantErr: ErrInvalidEntryPath},
		{name: "only dots", in: "./.", wantErr: ErrInvalidEntryPath},
		{name: "absolute", in: "/etc/passwd", wantErr: ErrInvalidEntryPath},
		{name: "absolute backslash", in: `\etc\passwd`, wantErr: ErrInvalidEntryPath},
		{name: "dotdot", in: "a/../b", wantErr: ErrInvalidEntryPath},
		{name: "nul", in: "a\x00b", wantErr: ErrInvalidEntryPath},
		{name: "too long", in: strings.Repeat("x", maxPathLen+1), wantErr: ErrPathTooLong},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := normalizeEntryPath(tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("normalizeEntryPath(%q)=%v, want %v", tc.in, err, tc.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("normalizeEntryPath(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("normalizeEntryPath(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidateEntryPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		in      string
		wantErr error
	}{
		{name: "plain", in: "a.txt"},
		{name: "nested", in: "b/c/d.txt"},
		{name: "dollar literal", in: "$0$x"},
		{name: "unicode", in: "документы/файл.txt"},
		{name: "empty", in: "", wantErr: ErrInvalidEntryPath},
		{name: "absolute", in: "/etc/passwd", wantErr: ErrInvalidEntryPath},
		{name: "trailing slash", in: "a/", wantErr: ErrInvalidEntryPath},
		{name: "double slash", in: "a//b", wantErr: ErrInvalidEntryPath},
		{name: "dot", in: "a/./b", wantErr: ErrInvalidEntryPath},
		{name: "dotdot", in: "../b", wantErr: ErrInvalidEntryPath},
		{name: "nul", in: "a\x00b", wantErr: ErrInvalidEntryPath},
		{name: "invalid utf8", in: "a\xffb", wantErr: ErrInvalidEntryPath},
		{name: "too long", in: strings.Repeat("x", maxPathLen+1), wantErr: ErrPathTooLong},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := validateEntryPath(tc.in)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("validateEntryPath(%q): %v", tc.in, err)
				}
				return
			}

			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("validateEntryPath(%q)=%v, want %v", tc.in, err, tc.wantErr)
			}
		})
	}
}

func TestNormalizeExtractEntryPath(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		got, err := normalizeExtractEntryPath(`site\./assets/app.js`)
		if err != nil {
			t.Fatalf("normalizeExtractEntryPath: %v", err)
		}
		if got != "site/assets/app.js" {
			t.Fatalf("normalizeExtractEntryPath=%q, want %q", got, "site/assets/app.js")
		}
	})

	for _, in := range []string{"", "/abs", `\abs`, "C:/x", "a/../../b", "a\x00"} {
		t.Run("reject "+in, func(t *testing.T) {
			t.Parallel()

			if _, err := normalizeExtractEntryPath(in); !errors.Is(err, ErrInvalidExtractPath) {
				t.Fatalf("normalizeExtractEntryPath(%q)=%v, want ErrInvalidExtractPath", in, err)
			}
		})
	}
}
