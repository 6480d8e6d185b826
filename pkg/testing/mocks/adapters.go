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

// MockForegroundAdapter is a mock of the shell side of foreground dispatch
type MockForegroundAdapter struct {
	mock.Mock
}

func (m *MockForegroundAdapter) Available() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockForegroundAdapter) EnableForegroundDispatch() error {
	args := m.Called()
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

func (m *MockForegroundAdapter) DisableForegroundDispatch() error {
	args := m.Called()
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

func (m *MockForegroundAdapter) WriteNDEF(ctx context.Context, tag readers.RawTag, msg []byte) error {
	args := m.Called(ctx, tag, msg)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// NewMockForegroundAdapter returns an adapter for a device with NFC on.
func NewMockForegroundAdapter() *MockForegroundAdapter {
	m := &MockForegroundAdapter{}
	m.On("Available").Return(true).Maybe()
	m.On("EnableForegroundDispatch").Return(nil).Maybe()
	m.On("DisableForegroundDispatch").Return(nil).Maybe()
	return m
}

// MockDelegateAdapter is a mock of the shell side of a scan session
type MockDelegateAdapter struct {
	mock.Mock
}

func (m *MockDelegateAdapter) Available() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockDelegateAdapter) BeginSession(alertMessage string) error {
	args := m.Called(alertMessage)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

func (m *MockDelegateAdapter) InvalidateSession() {
	m.Called()
}

func (m *MockDelegateAdapter) WriteNDEF(ctx context.Context, msg []byte) error {
	args := m.Called(ctx, msg)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// NewMockDelegateAdapter returns an adapter for a device that can scan.
func NewMockDelegateAdapter() *MockDelegateAdapter {
	m := &MockDelegateAdapter{}
	m.On("Available").Return(true).Maybe()
	return m
}
