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

package readers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCapability(t *testing.T) {
	t.Parallel()

	md := DriverMetadata{Capabilities: []Capability{CapabilityWrite, CapabilityUID}}

	assert.True(t, HasCapability(md, CapabilityWrite))
	assert.True(t, HasCapability(md, CapabilityUID))
	assert.False(t, HasCapability(md, CapabilityRemoval))
	assert.False(t, HasCapability(DriverMetadata{}, CapabilityWrite))
}

func TestSelectReader(t *testing.T) {
	t.Parallel()

	ds := []Descriptor{
		{ID: "pcsc-aaaaaaaa", Name: "ACS ACR122U PICC Interface 00 00", Kind: KindUsbPcsc},
		{ID: "pcsc-bbbbbbbb", Name: "Identiv uTrust 3700 F 01 00", Kind: KindUsbPcsc},
	}

	d, err := SelectReader(ds, "")
	require.NoError(t, err)
	assert.Equal(t, ds[0], d)

	d, err = SelectReader(ds, "Identiv uTrust 3700 F 01 00")
	require.NoError(t, err)
	assert.Equal(t, ds[1], d)

	d, err = SelectReader(ds, "pcsc-bbbbbbbb")
	require.NoError(t, err)
	assert.Equal(t, ds[1], d)

	_, err = SelectReader(ds, "missing")
	require.ErrorIs(t, err, ErrReaderNotFound)

	_, err = SelectReader(nil, "")
	require.ErrorIs(t, err, ErrReaderNotFound)
}
