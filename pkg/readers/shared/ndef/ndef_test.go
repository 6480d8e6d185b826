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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeTextPayload(t *testing.T) {
	t.Parallel()

	payload, err := EncodeTextPayload(TextRecord{Language: "en", Text: "MEMBER-42"})
	require.NoError(t, err)

	expected := append([]byte{0x02, 'e', 'n'}, []byte("MEMBER-42")...)
	assert.Equal(t, expected, payload)
	assert.Zero(t, payload[0]&statusUTF16, "UTF-16 flag must be clear")
}

func TestEncodeTextPayload_LanguageTooLong(t *testing.T) {
	t.Parallel()

	_, err := EncodeTextPayload(TextRecord{Language: string(bytes.Repeat([]byte("a"), 64)), Text: "x"})
	require.Error(t, err)
}

func TestDecodeTextPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  []byte
		expected TextRecord
		wantErr  bool
	}{
		{
			name:     "english",
			payload:  []byte{0x02, 'e', 'n', 'H', 'i'},
			expected: TextRecord{Language: "en", Text: "Hi"},
		},
		{
			name:     "no language",
			payload:  []byte{0x00, 'H', 'i'},
			expected: TextRecord{Text: "Hi"},
		},
		{
			name:     "empty text",
			payload:  []byte{0x05, 'e', 'n', '-', 'U', 'S'},
			expected: TextRecord{Language: "en-US"},
		},
		{
			name:     "reserved bit ignored",
			payload:  []byte{0x42, 'e', 'n', 'o', 'k'},
			expected: TextRecord{Language: "en", Text: "ok"},
		},
		{
			name:     "utf-16 big endian",
			payload:  []byte{0x82, 'e', 'n', 0x00, 'H', 0x00, 'i'},
			expected: TextRecord{Language: "en", Text: "Hi"},
		},
		{
			name:     "utf-16 with little endian BOM",
			payload:  []byte{0x82, 'e', 'n', 0xFF, 0xFE, 'H', 0x00, 'i', 0x00},
			expected: TextRecord{Language: "en", Text: "Hi"},
		},
		{
			name:    "empty",
			payload: []byte{},
			wantErr: true,
		},
		{
			name:    "language longer than payload",
			payload: []byte{0x05, 'e', 'n'},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec, err := DecodeTextPayload(tt.payload)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedNDEF)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rec)
		})
	}
}

func TestEncodeText(t *testing.T) {
	t.Parallel()

	msg, err := EncodeText(TextRecord{Language: "en", Text: "MEMBER-42"})
	require.NoError(t, err)

	payload := append([]byte{0x02, 'e', 'n'}, []byte("MEMBER-42")...)
	assert.True(t, bytes.HasSuffix(msg, payload), "message should end with the text payload")
	assert.Contains(t, string(msg), "T")

	rec, err := DecodeText(msg)
	require.NoError(t, err)
	assert.Equal(t, "en", rec.Language)
	assert.Equal(t, "MEMBER-42", rec.Text)
}

func TestEncodeText_LanguageTooLong(t *testing.T) {
	t.Parallel()

	lang := string(bytes.Repeat([]byte("x"), MaxLanguageLen+1))
	_, err := EncodeText(TextRecord{Language: lang, Text: "hello"})
	require.ErrorIs(t, err, ErrLanguageTooLong)
}

func TestEncodeText_InvalidUTF8(t *testing.T) {
	t.Parallel()

	_, err := EncodeText(TextRecord{Language: "en", Text: string([]byte{0xFF, 0xFE})})
	require.Error(t, err)
}

func TestDecodeText_HandBuiltRecord(t *testing.T) {
	t.Parallel()

	// MB|ME|SR, TNF well-known, type "T", payload "\x02enhello"
	msg := []byte{0xD1, 0x01, 0x08, 'T', 0x02, 'e', 'n', 'h', 'e', 'l', 'l', 'o'}

	rec, err := DecodeText(msg)
	require.NoError(t, err)
	assert.Equal(t, TextRecord{Language: "en", Text: "hello"}, rec)
}

func TestDecodeText_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeText(nil)
		require.ErrorIs(t, err, ErrNoNDEF)
	})

	t.Run("uri record only", func(t *testing.T) {
		t.Parallel()
		msg := []byte{0xD1, 0x01, 0x05, 'U', 0x04, 'a', '.', 'b', 'c'}
		_, err := DecodeText(msg)
		require.ErrorIs(t, err, ErrNoNDEF)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeText([]byte{0xD1, 0x01, 0x0C, 'T', 0x02})
		require.ErrorIs(t, err, ErrMalformedNDEF)
	})

	t.Run("language length exceeds payload", func(t *testing.T) {
		t.Parallel()
		msg := []byte{0xD1, 0x01, 0x03, 'T', 0x0A, 'e', 'n'}
		rec, err := DecodeText(msg)
		require.ErrorIs(t, err, ErrMalformedNDEF)
		assert.Equal(t, TextRecord{}, rec)
	})
}

func TestDecodeText_UTF16Record(t *testing.T) {
	t.Parallel()

	// UTF-16BE "Ş" (U+015E), written by tools that set the encoding bit
	msg := []byte{0xD1, 0x01, 0x05, 'T', 0x82, 'e', 'n', 0x01, 0x5E}

	rec, err := DecodeText(msg)
	require.NoError(t, err)
	assert.Equal(t, TextRecord{Language: "en", Text: "Ş"}, rec)
}

func TestDecodeText_ChunkedRecord(t *testing.T) {
	t.Parallel()

	msg := []byte{
		0xB1, 0x01, 0x03, 'T', 0x02, 'e', 'n',
		0x56, 0x00, 0x02, 'h', 'i',
	}

	rec, err := DecodeText(msg)
	require.NoError(t, err)
	assert.Equal(t, TextRecord{Language: "en", Text: "hi"}, rec)
}

func TestReadableText(t *testing.T) {
	t.Parallel()

	t.Run("text record", func(t *testing.T) {
		t.Parallel()
		msg, err := EncodeText(TextRecord{Language: "en", Text: "**launch.random:snes"})
		require.NoError(t, err)

		text, err := ReadableText(msg)
		require.NoError(t, err)
		assert.Equal(t, "**launch.random:snes", text)
	})

	t.Run("utf-16 text record", func(t *testing.T) {
		t.Parallel()
		msg := []byte{0xD1, 0x01, 0x05, 'T', 0x82, 'e', 'n', 0x01, 0x5E}

		text, err := ReadableText(msg)
		require.NoError(t, err)
		assert.Equal(t, "Ş", text)
	})

	t.Run("malformed text record", func(t *testing.T) {
		t.Parallel()
		msg := []byte{0xD1, 0x01, 0x03, 'T', 0x0A, 'e', 'n'}

		_, err := ReadableText(msg)
		require.ErrorIs(t, err, ErrMalformedNDEF)
	})

	t.Run("uri record", func(t *testing.T) {
		t.Parallel()
		msg := []byte{0xD1, 0x01, 0x0C, 'U', 0x04, 'z', 'a', 'p', 'a', 'r', 'o', 'o', '.', 'o', 'r', 'g'}

		text, err := ReadableText(msg)
		require.NoError(t, err)
		assert.Equal(t, "https://zaparoo.org", text)
	})
}

func TestCalculateNDEFHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		length   int
		expected []byte
	}{
		{name: "empty", length: 0, expected: []byte{0x03, 0x00}},
		{name: "short", length: 16, expected: []byte{0x03, 0x10}},
		{name: "max short", length: 254, expected: []byte{0x03, 0xFE}},
		{name: "min long", length: 255, expected: []byte{0x03, 0xFF, 0x00, 0xFF}},
		{name: "long", length: 300, expected: []byte{0x03, 0xFF, 0x01, 0x2C}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			header, err := calculateNDEFHeader(make([]byte, tt.length))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, header)
		})
	}

	_, err := calculateNDEFHeader(make([]byte, 0x10000))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestExtractMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr  error
		name     string
		area     []byte
		expected []byte
	}{
		{
			name:     "short tlv",
			area:     []byte{0x03, 0x03, 0xAA, 0xBB, 0xCC, 0xFE, 0x00},
			expected: []byte{0xAA, 0xBB, 0xCC},
		},
		{
			name:     "leading null tlvs",
			area:     []byte{0x00, 0x00, 0x03, 0x01, 0xAA, 0xFE},
			expected: []byte{0xAA},
		},
		{
			name:     "lock and memory control skipped",
			area:     []byte{0x01, 0x03, 0xA0, 0x10, 0x44, 0x02, 0x03, 0x00, 0x00, 0x00, 0x03, 0x01, 0xAA, 0xFE},
			expected: []byte{0xAA},
		},
		{
			name:     "long tlv",
			area:     append([]byte{0x03, 0xFF, 0x00, 0x02, 0xAA, 0xBB}, 0xFE),
			expected: []byte{0xAA, 0xBB},
		},
		{
			name:     "empty ndef tlv",
			area:     []byte{0x03, 0x00, 0xFE},
			expected: []byte{},
		},
		{
			name:    "terminator first",
			area:    []byte{0xFE, 0x00, 0x00},
			wantErr: ErrNoNDEF,
		},
		{
			name:    "unknown tlv",
			area:    []byte{0x42, 0x01, 0x00},
			wantErr: ErrNoNDEF,
		},
		{
			name:    "value cut short",
			area:    []byte{0x03, 0x10, 0xAA},
			wantErr: ErrIncomplete,
		},
		{
			name:    "long length cut short",
			area:    []byte{0x03, 0xFF, 0x00},
			wantErr: ErrIncomplete,
		},
		{
			name:    "only nulls",
			area:    []byte{0x00, 0x00, 0x00, 0x00},
			wantErr: ErrIncomplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := ExtractMessage(tt.area)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, msg)
		})
	}
}

func TestBuildTextTLV(t *testing.T) {
	t.Parallel()

	area, err := BuildTextTLV(TextRecord{Language: "en", Text: "MEMBER-42"})
	require.NoError(t, err)
	assert.Equal(t, byte(tlvNDEF), area[0])
	assert.Equal(t, byte(tlvTerminator), area[len(area)-1])

	msg, err := ExtractMessage(area)
	require.NoError(t, err)

	rec, err := DecodeText(msg)
	require.NoError(t, err)
	assert.Equal(t, "MEMBER-42", rec.Text)
}

func languageGen() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		b := rapid.SliceOfN(rapid.ByteRange('a', 'z'), 0, MaxLanguageLen).Draw(t, "lang")
		return string(b)
	})
}

func TestPropertyTextPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		rec := TextRecord{
			Language: languageGen().Draw(t, "language"),
			Text:     rapid.String().Draw(t, "text"),
		}

		payload, err := EncodeTextPayload(rec)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		if int(payload[0]&statusLangMask) != len(rec.Language) {
			t.Fatalf("status byte %02x doesn't carry language length %d", payload[0], len(rec.Language))
		}
		if payload[0]&statusUTF16 != 0 {
			t.Fatalf("UTF-16 flag set in %02x", payload[0])
		}

		got, err := DecodeTextPayload(payload)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if got != rec {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, rec)
		}
	})
}

func TestPropertyTextMessageRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		rec := TextRecord{
			Language: languageGen().Draw(t, "language"),
			Text:     rapid.StringN(0, 400, -1).Draw(t, "text"),
		}

		msg, err := EncodeText(rec)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		got, err := DecodeText(msg)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if got != rec {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, rec)
		}
	})
}

func TestPropertyTLVRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		msg := rapid.SliceOfN(rapid.Byte(), 0, 600).Draw(t, "msg")

		area, err := WrapTLV(msg)
		if err != nil {
			t.Fatalf("wrap failed: %v", err)
		}
		got, err := ExtractMessage(area)
		if err != nil {
			t.Fatalf("extract failed: %v", err)
		}
		if !bytes.Equal(got, msg) {
			t.Fatalf("TLV round trip mismatch")
		}
	})
}
