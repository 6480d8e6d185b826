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

// Package apdu frames the PC/SC pseudo-APDUs used to read and write
// blocks on memory tags through a contactless reader.
package apdu

import (
	"errors"
	"fmt"
)

// PC/SC pseudo-APDU class and instructions.
const (
	ClassPCSC       = 0xFF
	InsGetData      = 0xCA
	InsReadBinary   = 0xB0
	InsUpdateBinary = 0xD6
)

// StatusSuccess is the status word of a successful command.
const StatusSuccess uint16 = 0x9000

// MaxDataLen is the largest body a short APDU can carry.
const MaxDataLen = 0xFF

// ErrMalformedResponse is returned for responses without a status word.
var ErrMalformedResponse = errors.New("malformed APDU response")

// StatusError is returned when the card answers with a status word other
// than 0x9000.
type StatusError struct {
	SW uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("APDU error: status word %04X", e.SW)
}

// SW1 returns the high byte of the status word.
func (e *StatusError) SW1() byte { return byte(e.SW >> 8) }

// SW2 returns the low byte of the status word.
func (e *StatusError) SW2() byte { return byte(e.SW) }

// Command is a raw command APDU.
type Command []byte

// GetUID returns the command reading the UID of the card in the field.
func GetUID() Command {
	return Command{ClassPCSC, InsGetData, 0x00, 0x00, 0x00}
}

// BuildReadBlock returns a read binary command for length bytes starting
// at block.
func BuildReadBlock(block, length byte) Command {
	return Command{ClassPCSC, InsReadBinary, 0x00, block, length}
}

// BuildWriteBlock returns an update binary command writing data to block.
func BuildWriteBlock(block byte, data []byte) (Command, error) {
	if len(data) == 0 {
		return nil, errors.New("write data is empty")
	}
	if len(data) > MaxDataLen {
		return nil, fmt.Errorf("write data is %d bytes, max %d", len(data), MaxDataLen)
	}

	cmd := make(Command, 0, 5+len(data))
	cmd = append(cmd, ClassPCSC, InsUpdateBinary, 0x00, block, byte(len(data)))
	cmd = append(cmd, data...)
	return cmd, nil
}

// ParseResponse splits a response APDU into its body and status word. The
// body is only returned for status 0x9000.
func ParseResponse(resp []byte) ([]byte, error) {
	if len(resp) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedResponse, len(resp))
	}

	n := len(resp) - 2
	sw := uint16(resp[n])<<8 | uint16(resp[n+1])
	if sw != StatusSuccess {
		return nil, &StatusError{SW: sw}
	}
	return resp[:n], nil
}
