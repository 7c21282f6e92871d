// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import "errors"

// Sentinel errors for archive operations. Use errors.Is in callers.
var (
	// ErrNotFound means a source directory or archive file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidFormat means the archive is malformed: bad magic, unknown version,
	// inconsistent header fields, or a field that reads past the end of its buffer.
	ErrInvalidFormat = errors.New("invalid archive format")
	// ErrIntegrity means the stored payload digest does not match the payload.
	ErrIntegrity = errors.New("archive integrity check failed")
	// ErrUnsupportedMethod means the method code is not known for the archive version.
	ErrUnsupportedMethod = errors.New("unsupported compression method")
	// ErrResourceExhausted means compression parameters exceed the memory budget.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrEncrypted means the archive has the encrypted flag set; encryption is not implemented.
	ErrEncrypted = errors.New("encrypted archives are not supported")
	// ErrInvalidEntryPath means an input path is empty or invalid after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrDuplicateEntryPath means two inputs resolve to the same archive path.
	ErrDuplicateEntryPath = errors.New("duplicate entry path")
	// ErrPathTooLong means an encoded path does not fit the uint16 length field.
	ErrPathTooLong = errors.New("entry path exceeds 65535 bytes")
	// ErrContentTooLarge means a content block cannot be represented by the uint32 length field.
	ErrContentTooLarge = errors.New("content block length is not representable")
	// ErrSizeOverflow means the serialized catalog or payload exceeds the uint32 size fields.
	ErrSizeOverflow = errors.New("size exceeds uint32 or 4 GiB archive limit")
	// ErrInvalidOptions means backend, preset, or tuning options are inconsistent.
	ErrInvalidOptions = errors.New("invalid options")
	// ErrInvalidExtractPath means an archive entry path is invalid for the extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrExtractPathOutsideRoot means a resolved extraction path escapes the destination root.
	ErrExtractPathOutsideRoot = errors.New("extract path escapes destination root")
)

// SkippedInput records one source that could not be read during catalog build.
// Skipped inputs do not abort archive creation.
type SkippedInput struct {
	// Path is the normalized archive path of the skipped input.
	Path string `json:"path" yaml:"path"`
	// Err is the read or open failure.
	Err error `json:"-" yaml:"-"`
}

// Error implements error so skipped inputs can be joined for reporting.
func (s SkippedInput) Error() string {
	if s.Err == nil {
		return "skipped " + s.Path
	}

	return "skipped " + s.Path + ": " + s.Err.Error()
}

// Unwrap returns the underlying read failure.
func (s SkippedInput) Unwrap() error {
	return s.Err
}
