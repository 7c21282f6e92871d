// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import "fmt"

// formatLayout describes the catalog layout of one format version.
type formatLayout struct {
	// version is the header version byte.
	version uint8
	// prefixTable reports whether the catalog starts with a prefix table section.
	prefixTable bool
}

// formatKey addresses one codec in the versioned method table.
type formatKey struct {
	version uint8
	method  Method
}

// formatLayouts lists every readable format version.
var formatLayouts = map[uint8]formatLayout{
	FormatV1: {version: FormatV1, prefixTable: false},
	FormatV2: {version: FormatV2, prefixTable: true},
}

// formatCodecs is the single (version, method) dispatch table for both directions.
var formatCodecs = map[formatKey]*backendCodec{
	{FormatV1, MethodDeflate}: &deflateCodec,
	{FormatV1, MethodBzip}:    &bzipCodec,
	{FormatV1, MethodLZMA}:    &lzmaAloneCodec,

	{FormatV2, MethodDeflate}:   &deflateCodec,
	{FormatV2, MethodBzip}:      &bzipCodec,
	{FormatV2, MethodLZMA}:      &lzmaAloneCodec,
	{FormatV2, MethodLZMAUltra}: &xzCodec,
}

// resolveLayout returns the catalog layout for version.
func resolveLayout(version uint8) (formatLayout, error) {
	layout, ok := formatLayouts[version]
	if !ok {
		return formatLayout{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, version)
	}

	return layout, nil
}

// resolveCodec returns the compression codec for method under version.
func resolveCodec(version uint8, method Method) (*backendCodec, error) {
	if _, err := resolveLayout(version); err != nil {
		return nil, err
	}

	codec, ok := formatCodecs[formatKey{version: version, method: method}]
	if !ok {
		return nil, fmt.Errorf("%w: method %d in format v%d", ErrUnsupportedMethod, uint8(method), version)
	}

	return codec, nil
}
