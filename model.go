// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	magicSize        = 8          // "KUNDA\x00\x00\x00"
	fixedHeaderSize  = 19         // magic + version + method + flags + two uint32 sizes
	digestSize       = 32         // SHA-256 of the compressed payload
	maxPathLen       = 0xFFFF     // uint16 path length field
	maxPrefixCount   = 0xFFFF     // uint16 prefix count field
	duplicateMarker  = 0xFFFFFFFF // content length sentinel for duplicate records
	maxContentLen    = duplicateMarker - 1
	maxBlobSize      = 0xFFFFFFFF // uint32 original/compressed size fields
	minPrefixUses    = 3          // prefix must occur this many times to enter the table
	prefixDelimiter  = '$'
	pathSeparator    = '/'
	pathSeparatorStr = "/"
)

// archiveMagic opens every archive.
var archiveMagic = [magicSize]byte{'K', 'U', 'N', 'D', 'A', 0, 0, 0}

// Format versions.
const (
	// FormatV1 is the first generation: no prefix table, methods 0..2.
	FormatV1 uint8 = 1
	// FormatV2 adds the prefix table and the ultra LZMA method.
	FormatV2 uint8 = 2
	// CurrentFormat is the version written by Create.
	CurrentFormat = FormatV2
)

// Dictionary and selection tuning.
const (
	// MinUltraDictSize is the smallest ultra-tier dictionary (64 MiB).
	MinUltraDictSize = 64 << 20
	// MaxUltraDictSize is the largest ultra-tier dictionary (1536 MiB).
	MaxUltraDictSize = 1536 << 20
	// DefaultUltraDictSize is used when no dictionary size is requested (256 MiB).
	DefaultUltraDictSize = 256 << 20
	// DefaultLZMADictSize is the standard LZMA dictionary (8 MiB).
	DefaultLZMADictSize = 8 << 20
	// DefaultAutoLZMAThreshold bounds blob size for trying LZMA in auto mode (50 MiB).
	DefaultAutoLZMAThreshold = 50 << 20
)

// Method is the 1-byte compression method code stored in the header.
type Method uint8

// Method codes. Their meaning is resolved per format version, see format.go.
const (
	// MethodDeflate is a zlib stream.
	MethodDeflate Method = 0
	// MethodBzip is a bzip2 stream.
	MethodBzip Method = 1
	// MethodLZMA is an LZMA "alone" stream.
	MethodLZMA Method = 2
	// MethodLZMAUltra is LZMA2 in an xz container with an enlarged dictionary.
	MethodLZMAUltra Method = 3
)

// String returns the human-readable method name.
func (m Method) String() string {
	switch m {
	case MethodDeflate:
		return "deflate"
	case MethodBzip:
		return "bzip"
	case MethodLZMA:
		return "lzma"
	case MethodLZMAUltra:
		return "lzma-ultra"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Flags is the 1-byte header bitset.
type Flags uint8

// Header flag bits.
const (
	// FlagEncrypted is reserved; archives with it set are rejected.
	FlagEncrypted Flags = 1 << 0
	// FlagChecksummed marks presence of the 32-byte payload digest.
	FlagChecksummed Flags = 1 << 1
	// FlagPathCompressed marks catalogs whose paths reference the prefix table.
	FlagPathCompressed Flags = 1 << 2

	knownFlags = FlagEncrypted | FlagChecksummed | FlagPathCompressed
)

// Has reports whether all bits of flag are set.
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// String renders set flags as a "|" separated list.
func (f Flags) String() string {
	names := make([]string, 0, 3)
	if f.Has(FlagEncrypted) {
		names = append(names, "encrypted")
	}
	if f.Has(FlagChecksummed) {
		names = append(names, "checksummed")
	}
	if f.Has(FlagPathCompressed) {
		names = append(names, "path-compressed")
	}
	if extra := f &^ knownFlags; extra != 0 {
		names = append(names, fmt.Sprintf("0x%02x", uint8(extra)))
	}
	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}

// Backend selects the compression backend for Create.
type Backend string

// Compression backends.
const (
	BackendDeflate Backend = "deflate"
	BackendBzip    Backend = "bzip"
	BackendLZMA    Backend = "lzma"
	// BackendAuto tries several backends and keeps the smallest output.
	BackendAuto Backend = "auto"
)

// ParseBackend parses a backend name. The aliases zlib, bzip2, bz2 and xz are accepted.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "deflate", "zlib":
		return BackendDeflate, nil
	case "bzip", "bzip2", "bz2":
		return BackendBzip, nil
	case "lzma", "xz":
		return BackendLZMA, nil
	case "auto":
		return BackendAuto, nil
	default:
		return "", fmt.Errorf("%w: unknown backend %q", ErrInvalidOptions, name)
	}
}

// Preset selects the effort tier for explicit backends.
type Preset string

// Effort tiers in ascending order.
const (
	PresetFast     Preset = "fast"
	PresetBalanced Preset = "balanced"
	PresetMax      Preset = "max"
	// PresetUltra is LZMA only: enlarged dictionary and deepest match finder.
	PresetUltra Preset = "ultra"
)

// ParsePreset parses a preset name.
func ParsePreset(name string) (Preset, error) {
	switch p := Preset(strings.ToLower(strings.TrimSpace(name))); p {
	case PresetFast, PresetBalanced, PresetMax, PresetUltra:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown preset %q", ErrInvalidOptions, name)
	}
}

// RecordKind distinguishes literal content from duplicate references.
type RecordKind uint8

// Record kinds.
const (
	// RecordContent carries file bytes.
	RecordContent RecordKind = iota
	// RecordDuplicate points at the path of an earlier content record with identical bytes.
	RecordDuplicate
)

// String returns the record kind name.
func (k RecordKind) String() string {
	switch k {
	case RecordContent:
		return "content"
	case RecordDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Record is one catalog entry. Records are not modified after the catalog is built.
type Record struct {
	// Path is the forward-slash relative path (possibly "$idx$suffix" while encoded).
	Path string
	// Target is the canonical path of the content record for duplicates.
	Target string
	// Content is the file data for content records.
	Content []byte
	// Kind selects which of Content or Target is meaningful.
	Kind RecordKind
}

// IsDuplicate reports whether record is a duplicate reference.
func (r Record) IsDuplicate() bool {
	return r.Kind == RecordDuplicate
}

// PrefixTable is the ordered list of shared path prefixes, referenced by position.
type PrefixTable []string

// Header is the parsed archive envelope.
type Header struct {
	// Digest is SHA-256 of the compressed payload; zero unless FlagChecksummed is set.
	Digest [digestSize]byte `json:"-" yaml:"-"`
	// OriginalSize is the serialized catalog length before compression.
	OriginalSize uint32 `json:"original_size" yaml:"original_size"`
	// CompressedSize is the payload length.
	CompressedSize uint32 `json:"compressed_size" yaml:"compressed_size"`
	// Version is the format version.
	Version uint8 `json:"version" yaml:"version"`
	// Method is the stored compression method code.
	Method Method `json:"method" yaml:"method"`
	// Flags is the header bitset.
	Flags Flags `json:"flags" yaml:"flags"`
}

// Checksummed reports whether the header carries a payload digest.
func (h Header) Checksummed() bool {
	return h.Flags.Has(FlagChecksummed)
}

// Size returns the encoded envelope length excluding payload.
func (h Header) Size() int {
	if h.Checksummed() {
		return fixedHeaderSize + digestSize
	}

	return fixedHeaderSize
}

// Entry is one in-memory source file.
type Entry struct {
	// Path is the relative path inside the archive.
	Path string `json:"path" yaml:"path"`
	// Data is the file content.
	Data []byte `json:"-" yaml:"-"`
}

// Input describes one source stream to be archived.
type Input struct {
	// Open returns the raw source stream for this entry.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// Path is the relative path inside the archive.
	Path string `json:"path" yaml:"path"`
	// SizeHint is the expected size in bytes (zero when unknown).
	SizeHint int64 `json:"size_hint,omitempty" yaml:"size_hint,omitempty"`
}

// EntryInfo describes one decoded catalog record for listing.
type EntryInfo struct {
	// Path is the expanded entry path.
	Path string `json:"path" yaml:"path"`
	// Target is the canonical path for duplicate entries.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	// Size is the content length (resolved through Target for duplicates).
	Size int64 `json:"size" yaml:"size"`
	// Duplicate reports whether the entry is stored as a reference.
	Duplicate bool `json:"duplicate,omitempty" yaml:"duplicate,omitempty"`
}

// EntryProgress is one catalog build event.
type EntryProgress struct {
	// Path is the normalized archive path.
	Path string `json:"path" yaml:"path"`
	// Target is set when the entry was deduplicated.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	// Size is the number of bytes read from the source.
	Size int64 `json:"size" yaml:"size"`
	// Duplicate reports whether a duplicate record was emitted.
	Duplicate bool `json:"duplicate,omitempty" yaml:"duplicate,omitempty"`
}

// CreateOptions configures archive creation.
type CreateOptions struct {
	// Logger receives diagnostics; nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// OnEntryDone is called after one source is added to the catalog.
	OnEntryDone func(entry EntryProgress) `json:"-" yaml:"-"`
	// Backend selects the compressor. Default is lzma.
	Backend Backend `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Preset selects effort. Default is fast.
	Preset Preset `json:"preset,omitempty" yaml:"preset,omitempty"`
	// DictSize is the requested ultra-tier dictionary in bytes.
	// It is rounded down to a power of two and clamped to [MinUltraDictSize, MaxUltraDictSize].
	// Zero means DefaultUltraDictSize.
	DictSize uint64 `json:"dict_size,omitempty" yaml:"dict_size,omitempty"`
	// MemoryLimit is the encoder memory budget in bytes for the ultra tier; zero means unlimited.
	// A Go out-of-memory is fatal and cannot be recovered, so the downgrade to standard LZMA
	// relies on UltraMemoryEstimate exceeding this limit. Hosts should set a finite value.
	MemoryLimit uint64 `json:"memory_limit,omitempty" yaml:"memory_limit,omitempty"`
	// AutoLZMAThreshold is the largest blob for which auto mode also tries LZMA.
	AutoLZMAThreshold int `json:"auto_lzma_threshold,omitempty" yaml:"auto_lzma_threshold,omitempty"`
	// Checksum stores a SHA-256 digest of the compressed payload.
	Checksum bool `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	// DisablePathCompression skips the prefix table.
	DisablePathCompression bool `json:"disable_path_compression,omitempty" yaml:"disable_path_compression,omitempty"`
}

// CreateResult contains archive creation statistics.
type CreateResult struct {
	// Skipped lists inputs that could not be read.
	Skipped []SkippedInput `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	// Files is the number of records written.
	Files int `json:"files" yaml:"files"`
	// Duplicates is the number of duplicate records among Files.
	Duplicates int `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	// Prefixes is the prefix table length.
	Prefixes int `json:"prefixes,omitempty" yaml:"prefixes,omitempty"`
	// ContentBytes is the total size of all sources, duplicates included.
	ContentBytes int64 `json:"content_bytes" yaml:"content_bytes"`
	// OriginalSize is the serialized catalog length.
	OriginalSize int64 `json:"original_size" yaml:"original_size"`
	// CompressedSize is the compressed payload length.
	CompressedSize int64 `json:"compressed_size" yaml:"compressed_size"`
	// ArchiveSize is the full archive length including the envelope.
	ArchiveSize int64 `json:"archive_size" yaml:"archive_size"`
	// Duration is end-to-end creation time.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	// Method is the method actually stored in the header.
	Method Method `json:"method" yaml:"method"`
	// RequestedMethod is the method the options asked for (auto resolves to the winner).
	RequestedMethod Method `json:"requested_method" yaml:"requested_method"`
	// Downgraded reports the ultra tier fell back to standard LZMA.
	Downgraded bool `json:"downgraded,omitempty" yaml:"downgraded,omitempty"`
}

// ExtractOptions configures archive decoding.
type ExtractOptions struct {
	// Logger receives diagnostics; nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// MemoryLimit is the decoder memory budget in bytes; zero means unlimited.
	// Archives declaring a larger dictionary or original size fail with ErrResourceExhausted.
	MemoryLimit uint64 `json:"memory_limit,omitempty" yaml:"memory_limit,omitempty"`
}

// WriteOptions configures writing a decoded mapping to disk.
type WriteOptions struct {
	// OnEntryDone is called after one file is fully written.
	OnEntryDone func(path string, written int64, outputPath string) `json:"-" yaml:"-"`
	// FileMode controls output file creation policy.
	FileMode WriteFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// MaxWorkers is the number of writer goroutines (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// RawNames disables filesystem-safe name rewriting.
	RawNames bool `json:"raw_names,omitempty" yaml:"raw_names,omitempty"`
}

// WriteFileMode controls output file open behavior.
type WriteFileMode string

// Output file creation policies.
const (
	// WriteFileModeAuto first tries create-only, then falls back to truncate for existing files.
	WriteFileModeAuto WriteFileMode = "auto"
	// WriteFileModeTruncate opens existing files with truncate and creates missing files.
	WriteFileModeTruncate WriteFileMode = "truncate"
	// WriteFileModeCreateOnly fails on existing files.
	WriteFileModeCreateOnly WriteFileMode = "create_only"
)

// ScanOptions configures directory scanning.
type ScanOptions struct {
	// Logger receives per-file diagnostics; nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Rules are ordered include/exclude path rules; empty means include everything.
	Rules []pathrules.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// MatcherOptions control rule matching.
	MatcherOptions pathrules.MatcherOptions `json:"matcher_options,omitzero" yaml:"matcher_options,omitzero"`
	// FollowSymlinks archives the targets of symlinked files; otherwise symlinks are skipped.
	FollowSymlinks bool `json:"follow_symlinks,omitempty" yaml:"follow_symlinks,omitempty"`
}

// discardLogger is used when callers do not pass a logger.
var discardLogger = slog.New(slog.DiscardHandler)

// loggerOrDiscard returns l or a logger that drops everything.
func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return discardLogger
	}

	return l
}

// applyDefaults fills zero-valued create options with defaults.
func (opts *CreateOptions) applyDefaults() {
	if opts.Backend == "" {
		opts.Backend = BackendLZMA
	}

	if opts.Preset == "" {
		opts.Preset = PresetFast
	}

	if opts.AutoLZMAThreshold <= 0 {
		opts.AutoLZMAThreshold = DefaultAutoLZMAThreshold
	}

	opts.Logger = loggerOrDiscard(opts.Logger)
}

// validate normalizes backend and preset names and checks their combination.
func (opts *CreateOptions) validate() error {
	backend, err := ParseBackend(string(opts.Backend))
	if err != nil {
		return err
	}

	preset, err := ParsePreset(string(opts.Preset))
	if err != nil {
		return err
	}

	opts.Backend = backend
	opts.Preset = preset

	if opts.Preset == PresetUltra && opts.Backend != BackendLZMA {
		return fmt.Errorf("%w: preset %q requires backend %q", ErrInvalidOptions, PresetUltra, BackendLZMA)
	}

	return nil
}

// applyDefaults fills zero-valued scan options with defaults.
func (opts *ScanOptions) applyDefaults() {
	if opts.MatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.MatcherOptions.DefaultAction = pathrules.ActionInclude
	}

	opts.Logger = loggerOrDiscard(opts.Logger)
}

// applyDefaults fills zero-valued write options with defaults.
func (opts *WriteOptions) applyDefaults() {
	if opts.FileMode == "" {
		opts.FileMode = WriteFileModeAuto
	}
}
