// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package kunda

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Envelope field offsets.
const (
	versionOffset        = magicSize
	methodOffset         = versionOffset + 1
	flagsOffset          = methodOffset + 1
	originalSizeOffset   = flagsOffset + 1
	compressedSizeOffset = originalSizeOffset + 4
)

// payloadDigest computes the integrity digest over the compressed payload.
func payloadDigest(payload []byte) [digestSize]byte {
	return sha256.Sum256(payload)
}

// marshalEnvelope assembles header and payload into one archive buffer.
// Header sizes and digest must already describe payload.
func marshalEnvelope(h Header, payload []byte) []byte {
	out := make([]byte, 0, h.Size()+len(payload))
	out = append(out, archiveMagic[:]...)
	out = append(out, h.Version, byte(h.Method), byte(h.Flags))
	out = binary.BigEndian.AppendUint32(out, h.OriginalSize)
	out = binary.BigEndian.AppendUint32(out, h.CompressedSize)
	if h.Checksummed() {
		out = append(out, h.Digest[:]...)
	}

	return append(out, payload...)
}

// parseHeader validates the envelope in buf. total is the full archive length and may exceed
// len(buf) when only the leading bytes were read. Magic and version are checked before any
// other field.
func parseHeader(buf []byte, total int64) (Header, error) {
	var h Header

	if len(buf) < magicSize || !bytes.Equal(buf[:magicSize], archiveMagic[:]) {
		return h, fmt.Errorf("%w: bad magic", ErrInvalidFormat)
	}
	if len(buf) <= versionOffset {
		return h, fmt.Errorf("%w: missing version", ErrInvalidFormat)
	}

	h.Version = buf[versionOffset]
	if _, err := resolveLayout(h.Version); err != nil {
		return h, err
	}

	if len(buf) < fixedHeaderSize {
		return h, fmt.Errorf("%w: short header", ErrInvalidFormat)
	}

	h.Method = Method(buf[methodOffset])
	h.Flags = Flags(buf[flagsOffset])
	h.OriginalSize = binary.BigEndian.Uint32(buf[originalSizeOffset:])
	h.CompressedSize = binary.BigEndian.Uint32(buf[compressedSizeOffset:])

	if unknown := h.Flags &^ knownFlags; unknown != 0 {
		return h, fmt.Errorf("%w: unknown flag bits 0x%02x", ErrInvalidFormat, uint8(unknown))
	}
	if h.Flags.Has(FlagEncrypted) {
		return h, ErrEncrypted
	}
	if h.Flags.Has(FlagPathCompressed) && !formatLayouts[h.Version].prefixTable {
		return h, fmt.Errorf("%w: path-compressed flag in format v%d", ErrInvalidFormat, h.Version)
	}

	if _, err := resolveCodec(h.Version, h.Method); err != nil {
		return h, err
	}

	if h.Checksummed() {
		if len(buf) < fixedHeaderSize+digestSize {
			return h, fmt.Errorf("%w: truncated digest", ErrInvalidFormat)
		}

		copy(h.Digest[:], buf[fixedHeaderSize:])
	}

	if payloadLen := total - int64(h.Size()); payloadLen != int64(h.CompressedSize) {
		return h, fmt.Errorf("%w: header declares %d payload bytes, archive has %d",
			ErrInvalidFormat, h.CompressedSize, max(payloadLen, 0))
	}

	return h, nil
}

// parseEnvelope validates the envelope and returns the payload slice.
func parseEnvelope(archive []byte) (Header, []byte, error) {
	h, err := parseHeader(archive, int64(len(archive)))
	if err != nil {
		return h, nil, err
	}

	return h, archive[h.Size():], nil
}

// verifyPayload compares the stored digest against payload.
func verifyPayload(h Header, payload []byte) error {
	if !h.Checksummed() {
		return nil
	}

	if payloadDigest(payload) != h.Digest {
		return ErrIntegrity
	}

	return nil
}

// ReadHeader parses and validates the archive envelope without decompressing the payload.
func ReadHeader(archive []byte) (Header, error) {
	h, _, err := parseEnvelope(archive)
	return h, err
}
