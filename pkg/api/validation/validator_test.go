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

//nolint:revive // custom validation tags (hexdata, duration, etc.) are unknown to revive
package validation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/api/models"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHexData(t *testing.T) {
	t.Parallel()

	type testStruct struct {
		Data string `validate:"hexdata"`
	}

	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{name: "empty", value: "", wantError: false},
		{name: "compact", value: "04A1B2C3", wantError: false},
		{name: "spaced", value: "04 A1 B2 C3", wantError: false},
		{name: "lower case", value: "04 a1 b2 c3", wantError: false},
		{name: "odd length", value: "04A", wantError: true},
		{name: "not hex", value: "ZZ", wantError: true},
		{name: "only spaces", value: "   ", wantError: true},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Validate(&testStruct{Data: tt.value})
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "must be valid hex data")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDuration(t *testing.T) {
	t.Parallel()

	type testStruct struct {
		Timeout string `validate:"duration"`
	}

	v := NewValidator()
	require.NoError(t, v.Validate(&testStruct{Timeout: ""}))
	require.NoError(t, v.Validate(&testStruct{Timeout: "10s"}))
	require.NoError(t, v.Validate(&testStruct{Timeout: "1m30s"}))

	err := v.Validate(&testStruct{Timeout: "ten seconds"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout must be a valid duration")
}

func TestValidateDurationBounds(t *testing.T) {
	t.Parallel()

	type testStruct struct {
		Interval string `toml:"poll_interval" validate:"duration,mindur=50ms,maxdur=2s"`
	}

	v := NewValidator()
	for _, ok := range []string{"50ms", "250ms", "2s"} {
		assert.NoError(t, v.Validate(&testStruct{Interval: ok}), ok)
	}

	err := v.Validate(&testStruct{Interval: "10ms"})
	require.Error(t, err)
	assert.Equal(t, "poll_interval must be at least 50ms", err.Error())

	err = v.Validate(&testStruct{Interval: "5s"})
	require.Error(t, err)
	assert.Equal(t, "poll_interval must be at most 2s", err.Error())
}

func TestFieldNamesFollowWireNames(t *testing.T) {
	t.Parallel()

	req := models.TagRequest{TechList: make([]string, 17)}
	err := NewValidator().Validate(&req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tech_list must be at most 16")
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	type testStruct struct {
		Reader string `json:"reader" validate:"builtin"`
	}

	v := NewValidator()
	require.NoError(t, v.RegisterValidation("builtin", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "Android Device NFC"
	}))

	require.NoError(t, v.Validate(&testStruct{Reader: "Android Device NFC"}))
	err := v.Validate(&testStruct{Reader: "ACS ACR122U"})
	require.Error(t, err)
	assert.Equal(t, "reader failed builtin validation", err.Error())
}

func TestValidateLanguage(t *testing.T) {
	t.Parallel()

	type testStruct struct {
		Language string `validate:"language"`
	}

	v := NewValidator()
	for _, ok := range []string{"", "en", "en-US", "fr", "zh-Hant-TW"} {
		assert.NoError(t, v.Validate(&testStruct{Language: ok}), ok)
	}

	err := v.Validate(&testStruct{Language: "not a language"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid language code")

	long := "en-" + string(make([]byte, 70))
	assert.Error(t, v.Validate(&testStruct{Language: long}))
}

func TestValidateAndUnmarshal(t *testing.T) {
	t.Parallel()

	t.Run("missing params", func(t *testing.T) {
		t.Parallel()
		var req models.WriteRequest
		assert.ErrorIs(t, ValidateAndUnmarshal(nil, &req), ErrMissingParams)
	})

	t.Run("invalid json", func(t *testing.T) {
		t.Parallel()
		var req models.WriteRequest
		err := ValidateAndUnmarshal(json.RawMessage(`{"text":`), &req)
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("missing text", func(t *testing.T) {
		t.Parallel()
		var req models.WriteRequest
		err := ValidateAndUnmarshal(json.RawMessage(`{"language":"en"}`), &req)
		var verr *Error
		require.ErrorAs(t, err, &verr)
		require.Len(t, verr.Fields, 1)
		assert.Equal(t, "Text", verr.Fields[0].Field)
		assert.Equal(t, "required", verr.Fields[0].Tag)
		assert.Equal(t, "text is required", verr.Error())
	})

	t.Run("valid write", func(t *testing.T) {
		t.Parallel()
		var req models.WriteRequest
		err := ValidateAndUnmarshal(
			json.RawMessage(`{"text":"member-42","language":"en","timeout":"5s"}`),
			&req,
		)
		require.NoError(t, err)
		assert.Equal(t, "member-42", req.Text)
	})

	t.Run("bad tag uid", func(t *testing.T) {
		t.Parallel()
		var req models.TagRequest
		err := ValidateAndUnmarshal(json.RawMessage(`{"uid":"XYZ"}`), &req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "uid must be valid hex data")
	})

	t.Run("inbound type", func(t *testing.T) {
		t.Parallel()
		var msg models.InboundMessage
		err := ValidateAndUnmarshal(json.RawMessage(`{"type":"launch"}`), &msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "type must be one of: tag removed error write_ack")
	})
}

func TestParseTimeout(t *testing.T) {
	t.Parallel()

	d, err := ParseTimeout("", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)

	d, err = ParseTimeout("250ms", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = ParseTimeout("soon", 10*time.Second)
	assert.Error(t, err)
}

func TestTagRequestRawTag(t *testing.T) {
	t.Parallel()

	tag, err := models.TagRequest{
		UID:      "04 a1 b2 c3",
		Payload:  "D1010854026",
		TechList: []string{"NfcA"},
	}.RawTag()
	require.Error(t, err)
	assert.Empty(t, tag.UID)

	tag, err = models.TagRequest{UID: "04 a1 b2 c3", TechList: []string{"NfcA"}}.RawTag()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0xA1, 0xB2, 0xC3}, tag.UID)
	assert.Nil(t, tag.Payload)
	assert.Equal(t, []string{"NfcA"}, tag.TechList)

	tag, err = models.TagRequest{}.RawTag()
	require.NoError(t, err)
	assert.Empty(t, tag.UID)
}
