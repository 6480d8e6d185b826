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

package ndef

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/hsanjuan/go-ndef"
)

// ErrLanguageTooLong is returned when a language code doesn't fit the six
// length bits of the text record status byte.
var ErrLanguageTooLong = errors.New("language code longer than 63 bytes")

// EncodeText builds an NDEF message holding a single well-known "T"
// record with an empty ID.
func EncodeText(rec TextRecord) ([]byte, error) {
	if len(rec.Language) > MaxLanguageLen {
		return nil, fmt.Errorf("%w: %q", ErrLanguageTooLong, rec.Language)
	}
	if !utf8.ValidString(rec.Text) {
		return nil, errors.New("text is not valid UTF-8")
	}

	msg := ndef.NewTextMessage(rec.Text, rec.Language)
	data, err := msg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal NDEF message: %w", err)
	}
	return data, nil
}

// BuildTextTLV builds a text message already wrapped in TLV blocks, as it
// is laid out on a Type 2 tag.
func BuildTextTLV(rec TextRecord) ([]byte, error) {
	msg, err := EncodeText(rec)
	if err != nil {
		return nil, err
	}
	wrapped, err := WrapTLV(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap NDEF message: %w", err)
	}
	return wrapped, nil
}
