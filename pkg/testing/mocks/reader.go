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

package mocks

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/stretchr/testify/mock"
)

// MockBackend is a mock implementation of readers.Backend using testify/mock
type MockBackend struct {
	mock.Mock
}

// Metadata returns static information about this driver
func (m *MockBackend) Metadata() readers.DriverMetadata {
	args := m.Called()
	if metadata, ok := args.Get(0).(readers.DriverMetadata); ok {
		return metadata
	}
	return readers.DriverMetadata{}
}

// ListReaders enumerates reader endpoints
func (m *MockBackend) ListReaders() ([]readers.Descriptor, error) {
	args := m.Called()
	ds, _ := args.Get(0).([]readers.Descriptor)
	if err := args.Error(1); err != nil {
		return ds, fmt.Errorf("mock operation failed: %w", err)
	}
	return ds, nil
}

// Open acquires the reader and starts reporting to the listener
func (m *MockBackend) Open(ctx context.Context, readerName string, l readers.Listener) error {
	args := m.Called(ctx, readerName, l)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// Close releases the reader
func (m *MockBackend) Close() error {
	args := m.Called()
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// Arm is called when an operation starts waiting
func (m *MockBackend) Arm(op readers.OpKind) error {
	args := m.Called(op)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// Disarm is called when the pending operation resolved
func (m *MockBackend) Disarm() {
	m.Called()
}

// WriteMessage writes an NDEF message to the tag
func (m *MockBackend) WriteMessage(ctx context.Context, tag readers.RawTag, msg []byte) error {
	args := m.Called(ctx, tag, msg)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// NewMockBackend creates a MockBackend with optional defaults for the
// lifecycle calls every session makes.
func NewMockBackend() *MockBackend {
	m := &MockBackend{}
	m.On("Close").Return(nil).Maybe()
	m.On("Arm", mock.Anything).Return(nil).Maybe()
	m.On("Disarm").Return().Maybe()
	return m
}

// SetupBasicMock configures the mock with one reader named readerName
// that opens successfully.
func (m *MockBackend) SetupBasicMock(readerName string) {
	m.On("Metadata").Return(readers.DriverMetadata{
		ID:          "mock",
		Description: "Mock backend for testing",
		Kind:        readers.KindUsbPcsc,
		Capabilities: []readers.Capability{
			readers.CapabilityWrite,
		},
	})
	m.On("ListReaders").Return([]readers.Descriptor{{
		ID:   readers.GenerateReaderID("mock", readerName),
		Name: readerName,
		Kind: readers.KindUsbPcsc,
	}}, nil)
	m.On("Open", mock.Anything, readerName, mock.Anything).Return(nil)
}

// MockListener is a mock implementation of readers.Listener
type MockListener struct {
	mock.Mock
}

func (m *MockListener) TagArrived(tag readers.RawTag) {
	m.Called(tag)
}

func (m *MockListener) TagRemoved() {
	m.Called()
}

func (m *MockListener) TransportFailed(err error) {
	m.Called(err)
}

func (m *MockListener) ReaderLost(err error) {
	m.Called(err)
}
