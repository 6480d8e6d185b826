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
	"errors"
	"fmt"
)

var (
	ErrReaderNotFound      = errors.New("reader not found")
	ErrReaderBusy          = errors.New("reader busy")
	ErrPlatformUnsupported = errors.New("contactless reading not supported on this platform")
	ErrOperationInProgress = errors.New("operation in progress")
	ErrNoTagPresent        = errors.New("no tag present")
	ErrTimeout             = errors.New("timeout")
	ErrCancelled           = errors.New("cancelled")
	ErrNotConnected        = errors.New("reader not connected")
	ErrWriteUnsupported    = errors.New("writing not supported on this reader")
)

// TransportError wraps a failure raised by the native card layer.
type TransportError struct {
	Err error
	Op  string
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transport error: %v", e.Err)
	}
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err unless it already is a TransportError.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// ErrorMessage is the user facing text stored in results. Timeouts and
// cancellations use fixed strings so callers can match on them.
func ErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return err.Error()
	}
}
