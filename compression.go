// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"runtime"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zlib"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

const (
	// ultraMemoryFactor is hash-table encoder state per dictionary byte: a uint32 position
	// slot plus the dictionary byte itself.
	ultraMemoryFactor = 5
	// ultraMemoryOverhead covers the fixed hash bucket array (at most 1<<20 int64 slots)
	// and the encoder look-ahead buffer.
	ultraMemoryOverhead = 8<<20 + 64<<10

	// maxLZMADictSize is the dictionary of the max preset (16 MiB).
	maxLZMADictSize = 16 << 20

	// lzmaAloneHeaderSize is properties byte + uint32 dictionary + int64 size.
	lzmaAloneHeaderSize = 13
	// xzStreamHeaderSize precedes the first block header.
	xzStreamHeaderSize = 12
	// xzFilterLZMA2 is the xz filter id of LZMA2.
	xzFilterLZMA2 = 0x21

	// decodePreallocCap bounds the initial buffer for a decompressed catalog.
	decodePreallocCap = 64 << 20
)

// xzStreamMagic opens every xz stream.
var xzStreamMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// compressionParams is one concrete backend parameter set.
type compressionParams struct {
	// level is the deflate/bzip2 effort level.
	level int
	// dictCap is the LZMA dictionary capacity in bytes.
	dictCap int
	// matcher is the LZMA match finder.
	matcher lzma.MatchAlgorithm
}

// compressPlan is a method code with its parameters.
type compressPlan struct {
	method Method
	params compressionParams
}

// compressOutcome is the result of the compression stage.
type compressOutcome struct {
	payload    []byte
	method     Method
	requested  Method
	downgraded bool
}

// backendCodec binds one method code to its stream implementation.
type backendCodec struct {
	newWriter func(dst io.Writer, p compressionParams) (io.WriteCloser, error)
	newReader func(src io.Reader) (io.Reader, error)
	// dictSize returns the dictionary size declared by a payload; nil for window-bounded backends.
	dictSize func(payload []byte) (uint64, error)
	method   Method
}

var (
	deflateCodec = backendCodec{
		method: MethodDeflate,
		newWriter: func(dst io.Writer, p compressionParams) (io.WriteCloser, error) {
			return zlib.NewWriterLevel(dst, p.level)
		},
		newReader: func(src io.Reader) (io.Reader, error) {
			return zlib.NewReader(src)
		},
	}

	bzipCodec = backendCodec{
		method: MethodBzip,
		newWriter: func(dst io.Writer, p compressionParams) (io.WriteCloser, error) {
			return bzip2.NewWriter(dst, &bzip2.WriterConfig{Level: p.level})
		},
		newReader: func(src io.Reader) (io.Reader, error) {
			return bzip2.NewReader(src, nil)
		},
	}

	lzmaAloneCodec = backendCodec{
		method: MethodLZMA,
		newWriter: func(dst io.Writer, p compressionParams) (io.WriteCloser, error) {
			return lzma.WriterConfig{DictCap: p.dictCap, Matcher: p.matcher}.NewWriter(dst)
		},
		newReader: newLZMAMethodReader,
		dictSize:  lzmaMethodDictSize,
	}

	xzCodec = backendCodec{
		method: MethodLZMAUltra,
		newWriter: func(dst io.Writer, p compressionParams) (io.WriteCloser, error) {
			return xz.WriterConfig{DictCap: p.dictCap, Matcher: p.matcher, CheckSum: xz.CRC64}.NewWriter(dst)
		},
		newReader: func(src io.Reader) (io.Reader, error) {
			return xz.NewReader(src)
		},
		dictSize: xzDictSize,
	}
)

// Preset levels per backend, ascending effort. LZMA effort grows with the dictionary only:
// the binary-tree matcher of ulikunitz/xz emits streams that fail to decode.
var (
	deflateLevels = map[Preset]int{PresetFast: 6, PresetBalanced: 8, PresetMax: 9}
	bzipLevels    = map[Preset]int{PresetFast: 5, PresetBalanced: 7, PresetMax: 9}
	lzmaPresets   = map[Preset]compressionParams{
		PresetFast:     {dictCap: 4 << 20, matcher: lzma.HashTable4},
		PresetBalanced: {dictCap: DefaultLZMADictSize, matcher: lzma.HashTable4},
		PresetMax:      {dictCap: maxLZMADictSize, matcher: lzma.HashTable4},
	}
)

// presetPlan maps an explicit backend and non-ultra preset to a plan.
func presetPlan(backend Backend, preset Preset) (compressPlan, error) {
	switch backend {
	case BackendDeflate:
		if level, ok := deflateLevels[preset]; ok {
			return compressPlan{method: MethodDeflate, params: compressionParams{level: level}}, nil
		}
	case BackendBzip:
		if level, ok := bzipLevels[preset]; ok {
			return compressPlan{method: MethodBzip, params: compressionParams{level: level}}, nil
		}
	case BackendLZMA:
		if params, ok := lzmaPresets[preset]; ok {
			return compressPlan{method: MethodLZMA, params: params}, nil
		}
	}

	return compressPlan{}, fmt.Errorf("%w: backend %q with preset %q", ErrInvalidOptions, backend, preset)
}

// autoPlans lists auto-mode candidates in tie-break order.
func autoPlans(blobSize int, lzmaThreshold int) []compressPlan {
	plans := []compressPlan{
		{method: MethodDeflate, params: compressionParams{level: deflateLevels[PresetMax]}},
		{method: MethodBzip, params: compressionParams{level: bzipLevels[PresetMax]}},
	}
	if blobSize <= lzmaThreshold {
		plans = append(plans, compressPlan{method: MethodLZMA, params: lzmaPresets[PresetBalanced]})
	}

	return plans
}

// NormalizeUltraDictSize rounds requested down to a power of two and clamps it to
// [MinUltraDictSize, MaxUltraDictSize]. Zero selects DefaultUltraDictSize.
func NormalizeUltraDictSize(requested uint64) int {
	if requested == 0 {
		return DefaultUltraDictSize
	}

	size := uint64(1) << (bits.Len64(requested) - 1)
	size = max(size, MinUltraDictSize)
	size = min(size, MaxUltraDictSize)
	return int(size)
}

// UltraMemoryEstimate approximates encoder memory in bytes for an ultra dictionary.
func UltraMemoryEstimate(dictCap int) uint64 {
	return uint64(dictCap)*ultraMemoryFactor + ultraMemoryOverhead //nolint:gosec // dictCap is positive
}

// compressBlob runs the compression stage for validated options.
func compressBlob(blob []byte, opts CreateOptions) (compressOutcome, error) {
	logger := loggerOrDiscard(opts.Logger)

	switch {
	case opts.Backend == BackendAuto:
		return compressAuto(blob, opts.AutoLZMAThreshold, logger)
	case opts.Preset == PresetUltra:
		return compressUltra(blob, opts.DictSize, opts.MemoryLimit, logger)
	}

	plan, err := presetPlan(opts.Backend, opts.Preset)
	if err != nil {
		return compressOutcome{}, err
	}

	payload, err := compressWith(plan, blob)
	if err != nil {
		return compressOutcome{}, err
	}

	return compressOutcome{payload: payload, method: plan.method, requested: plan.method}, nil
}

// compressAuto keeps the smallest candidate output. Earlier candidates win ties.
func compressAuto(blob []byte, lzmaThreshold int, logger *slog.Logger) (compressOutcome, error) {
	var best compressOutcome
	for _, plan := range autoPlans(len(blob), lzmaThreshold) {
		payload, err := compressWith(plan, blob)
		if err != nil {
			return compressOutcome{}, err
		}

		logger.Debug("auto candidate", slog.String("method", plan.method.String()), slog.Int("size", len(payload)))
		if best.payload == nil || len(payload) < len(best.payload) {
			best = compressOutcome{payload: payload, method: plan.method, requested: plan.method}
		}
	}

	return best, nil
}

// compressUltra compresses with the enlarged dictionary. When the dictionary does not fit the
// memory budget or cannot be allocated, it falls back to standard LZMA at max effort.
func compressUltra(blob []byte, dictSize uint64, memoryLimit uint64, logger *slog.Logger) (compressOutcome, error) {
	dictCap := NormalizeUltraDictSize(dictSize)
	plan := compressPlan{
		method: MethodLZMAUltra,
		params: compressionParams{dictCap: dictCap, matcher: lzma.HashTable4},
	}

	payload, err := compressUltraPlan(plan, blob, memoryLimit)
	if err == nil {
		return compressOutcome{payload: payload, method: MethodLZMAUltra, requested: MethodLZMAUltra}, nil
	}
	if !errors.Is(err, ErrResourceExhausted) {
		return compressOutcome{}, err
	}

	logger.Warn("ultra dictionary unavailable, using standard LZMA",
		slog.Int("dict_size", dictCap),
		slog.Any("error", err),
	)

	fallback, err := presetPlan(BackendLZMA, PresetMax)
	if err != nil {
		return compressOutcome{}, err
	}

	payload, err = compressWith(fallback, blob)
	if err != nil {
		return compressOutcome{}, err
	}

	return compressOutcome{
		payload:    payload,
		method:     fallback.method,
		requested:  MethodLZMAUltra,
		downgraded: true,
	}, nil
}

// compressUltraPlan checks the memory budget and converts allocation panics to ErrResourceExhausted.
func compressUltraPlan(plan compressPlan, blob []byte, memoryLimit uint64) (payload []byte, err error) {
	if need := UltraMemoryEstimate(plan.params.dictCap); memoryLimit > 0 && need > memoryLimit {
		return nil, fmt.Errorf("%w: dictionary %d needs about %d bytes, limit %d",
			ErrResourceExhausted, plan.params.dictCap, need, memoryLimit)
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		rerr, ok := r.(runtime.Error)
		if !ok || !strings.Contains(rerr.Error(), "makeslice") {
			panic(r)
		}

		payload = nil
		err = fmt.Errorf("%w: %s encoder: %w", ErrResourceExhausted, plan.method, rerr)
	}()

	return compressWith(plan, blob)
}

// compressWith compresses blob through the codec registered for plan.method.
func compressWith(plan compressPlan, blob []byte) ([]byte, error) {
	codec, err := resolveCodec(CurrentFormat, plan.method)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(blob)/2 + 64)

	w, err := codec.newWriter(&buf, plan.params)
	if err != nil {
		return nil, fmt.Errorf("%s writer: %w", plan.method, err)
	}

	if _, err := w.Write(blob); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%s compress: %w", plan.method, err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s finish: %w", plan.method, err)
	}

	return buf.Bytes(), nil
}

// decompressPayload inflates payload and requires exactly originalSize bytes.
func decompressPayload(codec *backendCodec, payload []byte, originalSize uint32) ([]byte, error) {
	r, err := codec.newReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %s stream: %w", ErrInvalidFormat, codec.method, err)
	}
	if c, ok := r.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	var out bytes.Buffer
	out.Grow(int(min(int64(originalSize), decodePreallocCap)))

	n, err := out.ReadFrom(io.LimitReader(r, int64(originalSize)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s stream: %w", ErrInvalidFormat, codec.method, err)
	}
	if n != int64(originalSize) {
		return nil, fmt.Errorf("%w: decompressed %d bytes, header declares %d", ErrInvalidFormat, n, originalSize)
	}

	return out.Bytes(), nil
}

// checkDecoderMemory rejects archives whose declared decoder state exceeds limit.
func checkDecoderMemory(codec *backendCodec, payload []byte, originalSize uint32, limit uint64) error {
	if limit == 0 {
		return nil
	}

	if uint64(originalSize) > limit {
		return fmt.Errorf("%w: original size %d exceeds memory limit %d", ErrResourceExhausted, originalSize, limit)
	}

	if codec.dictSize == nil {
		return nil
	}

	dict, err := codec.dictSize(payload)
	if err != nil {
		return err
	}
	if dict > limit {
		return fmt.Errorf("%w: %s dictionary %d exceeds memory limit %d", ErrResourceExhausted, codec.method, dict, limit)
	}

	return nil
}

// newLZMAMethodReader decodes a method 2 payload. Archives written by the first generation
// of the tool may carry an xz container under method 2; it is recognized by its magic.
func newLZMAMethodReader(src io.Reader) (io.Reader, error) {
	br := bufio.NewReader(src)
	if magic, err := br.Peek(len(xzStreamMagic)); err == nil && bytes.Equal(magic, xzStreamMagic) {
		return xz.NewReader(br)
	}

	return lzma.NewReader(br)
}

// lzmaMethodDictSize reads the declared dictionary of a method 2 payload in either container.
func lzmaMethodDictSize(payload []byte) (uint64, error) {
	if bytes.HasPrefix(payload, xzStreamMagic) {
		return xzDictSize(payload)
	}

	return lzmaAloneDictSize(payload)
}

// lzmaAloneDictSize reads the dictionary size from an LZMA "alone" header.
func lzmaAloneDictSize(payload []byte) (uint64, error) {
	if len(payload) < lzmaAloneHeaderSize {
		return 0, fmt.Errorf("%w: short LZMA header", ErrInvalidFormat)
	}

	return uint64(binary.LittleEndian.Uint32(payload[1:5])), nil
}

// xzDictSize reads the LZMA2 dictionary size from the first xz block header.
// A stream without blocks declares no dictionary.
func xzDictSize(payload []byte) (uint64, error) {
	if len(payload) < xzStreamHeaderSize+1 || !bytes.HasPrefix(payload, xzStreamMagic) {
		return 0, fmt.Errorf("%w: short or invalid xz stream header", ErrInvalidFormat)
	}

	sizeByte := payload[xzStreamHeaderSize]
	if sizeByte == 0 {
		return 0, nil
	}

	end := xzStreamHeaderSize + (int(sizeByte)+1)*4
	if end > len(payload) {
		return 0, fmt.Errorf("%w: truncated xz block header", ErrInvalidFormat)
	}

	r := &blobReader{buf: payload[:end], off: xzStreamHeaderSize + 1}
	flagBytes, err := r.take(1, "xz block flags")
	if err != nil {
		return 0, err
	}

	flags := flagBytes[0]
	if flags&0x40 != 0 {
		if _, err := r.xzVarint(); err != nil {
			return 0, err
		}
	}
	if flags&0x80 != 0 {
		if _, err := r.xzVarint(); err != nil {
			return 0, err
		}
	}

	var dict uint64
	for range int(flags&0x03) + 1 {
		id, err := r.xzVarint()
		if err != nil {
			return 0, err
		}

		propsSize, err := r.xzVarint()
		if err != nil {
			return 0, err
		}

		props, err := r.take(int(min(propsSize, uint64(end))), "xz filter properties")
		if err != nil {
			return 0, err
		}

		if id != xzFilterLZMA2 {
			continue
		}
		if len(props) != 1 || props[0] > 40 {
			return 0, fmt.Errorf("%w: invalid LZMA2 properties", ErrInvalidFormat)
		}

		dict = max(dict, lzma2DictSize(props[0]))
	}

	return dict, nil
}

// lzma2DictSize decodes the LZMA2 dictionary size property byte.
func lzma2DictSize(p byte) uint64 {
	if p == 40 {
		return 0xFFFFFFFF
	}

	return uint64(2|(p&1)) << (p/2 + 11)
}

// xzVarint reads one xz multibyte integer.
func (r *blobReader) xzVarint() (uint64, error) {
	var v uint64
	for i := 0; i < 9; i++ {
		b, err := r.take(1, "xz varint")
		if err != nil {
			return 0, err
		}

		v |= uint64(b[0]&0x7F) << (7 * i)
		if b[0]&0x80 == 0 {
			return v, nil
		}
	}

	return 0, fmt.Errorf("%w: xz varint too long", ErrInvalidFormat)
}
