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

package simulated

import (
	"context"
	"testing"

	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/ZaparooProject/zaparoo-tap/pkg/testing/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testTag = readers.RawTag{UID: []byte{0x04, 0xA1, 0xB2, 0xC3}, Payload: []byte{0x01}}

func TestListReaders(t *testing.T) {
	t.Parallel()

	b := New()
	ds, err := b.ListReaders()
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, ReaderName, ds[0].Name)

	b.Unplug()
	ds, err = b.ListReaders()
	require.NoError(t, err)
	assert.Empty(t, ds)

	b.Plug()
	ds, err = b.ListReaders()
	require.NoError(t, err)
	assert.Len(t, ds, 1)
}

func TestOpen_ReportsCardAlreadyPresent(t *testing.T) {
	t.Parallel()

	b := New()
	b.Tap(testTag)

	l := &mocks.MockListener{}
	l.On("TagArrived", testTag).Once()

	require.NoError(t, b.Open(context.Background(), ReaderName, l))
	assert.True(t, b.IsOpen())
	l.AssertExpectations(t)

	require.ErrorIs(t, b.Open(context.Background(), "nope", l), readers.ErrReaderNotFound)
}

func TestTapRemoveFail(t *testing.T) {
	t.Parallel()

	b := New()
	l := &mocks.MockListener{}
	l.On("TagArrived", testTag).Once()
	l.On("TagRemoved").Once()
	l.On("TransportFailed", mock.Anything).Once()
	l.On("ReaderLost", readers.ErrReaderNotFound).Once()

	require.NoError(t, b.Open(context.Background(), ReaderName, l))
	b.Tap(testTag)
	b.Remove()
	b.Remove()
	b.Fail(assert.AnError)
	b.Unplug()

	l.AssertExpectations(t)

	require.NoError(t, b.Close())
	assert.False(t, b.IsOpen())
	b.Tap(testTag)
}

func TestWriteMessage(t *testing.T) {
	t.Parallel()

	b := New()
	require.ErrorIs(t, b.WriteMessage(context.Background(), testTag, []byte{0x02}), readers.ErrNoTagPresent)

	b.Tap(testTag)
	require.NoError(t, b.WriteMessage(context.Background(), testTag, []byte{0x02}))
	assert.Equal(t, [][]byte{{0x02}}, b.Written())

	b.SetWriteError(assert.AnError)
	require.ErrorIs(t, b.WriteMessage(context.Background(), testTag, []byte{0x03}), assert.AnError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.WriteMessage(ctx, testTag, []byte{0x03}), context.Canceled)
}

func TestArmDisarm(t *testing.T) {
	t.Parallel()

	b := New()
	require.NoError(t, b.Arm(readers.OpRead))
	b.Disarm()
	b.SetArmError(assert.AnError)
	require.ErrorIs(t, b.Arm(readers.OpWrite), assert.AnError)

	assert.Equal(t, []readers.OpKind{readers.OpRead}, b.Armed())
	assert.Equal(t, 1, b.Disarms())
}
