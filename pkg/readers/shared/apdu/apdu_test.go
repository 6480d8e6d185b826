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

package apdu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGetUID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Command{0xFF, 0xCA, 0x00, 0x00, 0x00}, GetUID())
}

func TestBuildReadBlock(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Command{0xFF, 0xB0, 0x00, 0x04, 0x10}, BuildReadBlock(4, 16))
}

func TestBuildWriteBlock(t *testing.T) {
	t.Parallel()

	cmd, err := BuildWriteBlock(4, []byte{0x41, 0x42})
	require.NoError(t, err)
	assert.Equal(t, Command{0xFF, 0xD6, 0x00, 0x04, 0x02, 0x41, 0x42}, cmd)

	payload, err := ParseResponse([]byte{0x90, 0x00})
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestBuildWriteBlock_Invalid(t *testing.T) {
	t.Parallel()

	_, err := BuildWriteBlock(4, nil)
	require.Error(t, err)

	_, err = BuildWriteBlock(4, make([]byte, MaxDataLen+1))
	require.Error(t, err)

	cmd, err := BuildWriteBlock(4, make([]byte, MaxDataLen))
	require.NoError(t, err)
	assert.Equal(t, byte(MaxDataLen), cmd[4])
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		resp     []byte
		expected []byte
		wantSW   uint16
		wantMal  bool
	}{
		{name: "uid", resp: []byte{0x04, 0xA1, 0xB2, 0xC3, 0x90, 0x00}, expected: []byte{0x04, 0xA1, 0xB2, 0xC3}},
		{name: "status only", resp: []byte{0x90, 0x00}, expected: []byte{}},
		{name: "not supported", resp: []byte{0x6A, 0x81}, wantSW: 0x6A81},
		{name: "failure with body", resp: []byte{0x01, 0x63, 0x00}, wantSW: 0x6300},
		{name: "empty", resp: []byte{}, wantMal: true},
		{name: "one byte", resp: []byte{0x90}, wantMal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			payload, err := ParseResponse(tt.resp)
			switch {
			case tt.wantMal:
				require.ErrorIs(t, err, ErrMalformedResponse)
			case tt.wantSW != 0:
				var swErr *StatusError
				require.ErrorAs(t, err, &swErr)
				assert.Equal(t, tt.wantSW, swErr.SW)
				assert.Equal(t, byte(tt.wantSW>>8), swErr.SW1())
				assert.Equal(t, byte(tt.wantSW), swErr.SW2())
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.expected, payload)
			}
		})
	}
}

func TestReadBlockEcho(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 16, 240} {
		cmd := BuildReadBlock(4, byte(n))
		require.Len(t, cmd, 5)
		require.Equal(t, byte(n), cmd[4])

		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i * 7)
		}
		resp := append(bytes.Clone(payload), 0x90, 0x00)

		got, err := ParseResponse(resp)
		require.NoError(t, err)
		assert.Equal(t, payload, got, "n=%d", n)
	}
}

func TestPropertyParseResponse(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		body := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(t, "body")
		sw := rapid.Uint16().Draw(t, "sw")

		resp := append(bytes.Clone(body), byte(sw>>8), byte(sw))
		got, err := ParseResponse(resp)
		if sw == StatusSuccess {
			if err != nil || !bytes.Equal(got, body) {
				t.Fatalf("expected body back, got %x, %v", got, err)
			}
			return
		}
		swErr, ok := err.(*StatusError)
		if !ok || swErr.SW != sw {
			t.Fatalf("expected status error %04X, got %v", sw, err)
		}
	})
}
