// Zaparoo Tap
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Tap.
//
// Zaparoo Tap is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Tap is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Tap.  If not, see <http://www.gnu.org/licenses/>.

// Package ndef encodes and decodes the NDEF text records written to member
// cards, and the Type 2 TLV container they live in on memory tags.
package ndef

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Type 2 Tag TLV block types.
const (
	tlvNull          = 0x00
	tlvLockControl   = 0x01
	tlvMemoryControl = 0x02
	tlvNDEF          = 0x03
	tlvTerminator    = 0xFE
	tlvLongLength    = 0xFF
)

var (
	// ErrNoNDEF is returned when no NDEF message or text record is found.
	ErrNoNDEF = errors.New("no NDEF record found")
	// ErrMalformedNDEF is returned when NDEF bytes can't be decoded.
	ErrMalformedNDEF = errors.New("malformed NDEF")
	// ErrIncomplete is returned when a TLV area ends before the NDEF TLV
	// it declares. Reading more pages may complete it.
	ErrIncomplete = errors.New("incomplete NDEF TLV")
	// ErrTooLarge is returned when a message doesn't fit a TLV length.
	ErrTooLarge = errors.New("NDEF message too large")
)

// calculateNDEFHeader builds the NDEF TLV header for a message. Lengths
// below 255 use the one byte form, longer ones 0xFF plus a big endian
// uint16 (NFCForum-TS-Type-2-Tag 2.3).
func calculateNDEFHeader(msg []byte) ([]byte, error) {
	length := len(msg)

	if length < tlvLongLength {
		return []byte{tlvNDEF, byte(length)}, nil
	}

	if length > 0xFFFF {
		return nil, ErrTooLarge
	}

	header := []byte{tlvNDEF, tlvLongLength}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, uint16(length)); err != nil {
		return nil, fmt.Errorf("failed to write NDEF length header: %w", err)
	}

	return append(header, buf.Bytes()...), nil
}

// WrapTLV puts an NDEF message inside an NDEF TLV followed by a
// terminator TLV, ready to be written from the first data page.
func WrapTLV(msg []byte) ([]byte, error) {
	header, err := calculateNDEFHeader(msg)
	if err != nil {
		return nil, err
	}

	result := make([]byte, 0, len(header)+len(msg)+1)
	result = append(result, header...)
	result = append(result, msg...)
	result = append(result, tlvTerminator)
	return result, nil
}

// readTLVLength reads a TLV length field at offset. It returns the value
// length and the number of bytes the length field used.
func readTLVLength(area []byte, offset int) (length, size int, err error) {
	if offset >= len(area) {
		return 0, 0, ErrIncomplete
	}
	if area[offset] != tlvLongLength {
		return int(area[offset]), 1, nil
	}
	if offset+3 > len(area) {
		return 0, 0, ErrIncomplete
	}
	return int(binary.BigEndian.Uint16(area[offset+1 : offset+3])), 3, nil
}

// ExtractMessage walks a Type 2 Tag data area and returns the value of the
// first NDEF TLV. NULL TLVs are skipped, lock and memory control TLVs are
// stepped over. A terminator or unknown TLV before any NDEF TLV returns
// ErrNoNDEF; running out of bytes returns ErrIncomplete.
func ExtractMessage(area []byte) ([]byte, error) {
	i := 0
	for i < len(area) {
		switch area[i] {
		case tlvNull:
			i++
			continue
		case tlvTerminator:
			return nil, ErrNoNDEF
		case tlvLockControl, tlvMemoryControl, tlvNDEF:
		default:
			return nil, fmt.Errorf("%w: unknown TLV 0x%02X at offset %d", ErrNoNDEF, area[i], i)
		}

		length, size, err := readTLVLength(area, i+1)
		if err != nil {
			return nil, err
		}
		start := i + 1 + size
		end := start + length
		if end > len(area) {
			return nil, ErrIncomplete
		}

		if area[i] == tlvNDEF {
			return area[start:end], nil
		}
		i = end
	}
	return nil, ErrIncomplete
}
