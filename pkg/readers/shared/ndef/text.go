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
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

const (
	// statusUTF16 is the text record status bit for UTF-16 text.
	statusUTF16 = 0x80
	// statusLangMask selects the language code length bits.
	statusLangMask = 0x3F
	// MaxLanguageLen is the longest language code a status byte can hold.
	MaxLanguageLen = statusLangMask
)

// TextRecord is the content of an NFC Forum well-known "T" record.
type TextRecord struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

// EncodeTextPayload builds a text record payload: a status byte holding
// the language code length (UTF-8 flag clear), the language code, then the
// UTF-8 text.
func EncodeTextPayload(rec TextRecord) ([]byte, error) {
	if len(rec.Language) > MaxLanguageLen {
		return nil, fmt.Errorf("language code is %d bytes, max %d", len(rec.Language), MaxLanguageLen)
	}
	if !utf8.ValidString(rec.Text) {
		return nil, fmt.Errorf("text is not valid UTF-8")
	}

	payload := make([]byte, 0, 1+len(rec.Language)+len(rec.Text))
	payload = append(payload, byte(len(rec.Language)))
	payload = append(payload, rec.Language...)
	payload = append(payload, rec.Text...)
	return payload, nil
}

// DecodeTextPayload splits a text record payload back into language code
// and text. Records written by other tools with the UTF-16 flag set are
// converted to UTF-8.
func DecodeTextPayload(payload []byte) (TextRecord, error) {
	if len(payload) < 1 {
		return TextRecord{}, fmt.Errorf("%w: empty text payload", ErrMalformedNDEF)
	}

	status := payload[0]
	langLen := int(status & statusLangMask)
	if langLen > len(payload)-1 {
		return TextRecord{}, fmt.Errorf(
			"%w: language length %d exceeds payload of %d bytes",
			ErrMalformedNDEF, langLen, len(payload)-1,
		)
	}

	rec := TextRecord{
		Language: string(payload[1 : 1+langLen]),
	}
	body := payload[1+langLen:]

	if status&statusUTF16 == 0 {
		rec.Text = string(body)
		return rec, nil
	}

	dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
	text, err := dec.Bytes(body)
	if err != nil {
		return TextRecord{}, fmt.Errorf("%w: bad UTF-16 text: %w", ErrMalformedNDEF, err)
	}
	rec.Text = string(text)
	return rec, nil
}
