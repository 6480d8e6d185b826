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
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"time"
)

// Kind identifies how a reader endpoint is attached to the host.
type Kind string

const (
	// KindBuiltIn is the phone's own contactless radio.
	KindBuiltIn Kind = "builtin"
	// KindUsbPcsc is a USB reader enumerated through PC/SC.
	KindUsbPcsc Kind = "usb-pcsc"
)

// OpKind is the type of a pending card operation.
type OpKind string

const (
	OpRead  OpKind = "read"
	OpWrite OpKind = "write"
)

type DriverMetadata struct {
	ID           string
	Description  string
	Kind         Kind
	Capabilities []Capability
}

// Descriptor is an immutable snapshot of a reader endpoint returned by
// discovery. It has no identity beyond the discovery call that made it.
type Descriptor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Connected bool   `json:"connected"`
}

// RawTag is a card as seen at the moment it was detected. Payload holds
// an NDEF message (any Type 2 TLV container already stripped) or
// whatever bytes the backend could read when no NDEF message was found.
//
// UID may be empty: some platforms never expose it to applications.
type RawTag struct {
	UID      []byte   `json:"uid"`
	TechList []string `json:"tech_list,omitempty"`
	Payload  []byte   `json:"payload,omitempty"`
}

// UIDHex returns the UID as upper-case hex, or "" when it isn't exposed.
func (t RawTag) UIDHex() string {
	return strings.ToUpper(hex.EncodeToString(t.UID))
}

// SameCard reports whether two tags are the same physical card. UIDs are
// compared when both are present, otherwise payloads are.
func (t RawTag) SameCard(other RawTag) bool {
	if len(t.UID) > 0 && len(other.UID) > 0 {
		return bytes.Equal(t.UID, other.UID)
	}
	if len(t.UID) != len(other.UID) {
		return false
	}
	return bytes.Equal(t.Payload, other.Payload)
}

// Clone returns a deep copy so callers can't mutate a delivered tag.
func (t RawTag) Clone() RawTag {
	c := RawTag{
		UID:     bytes.Clone(t.UID),
		Payload: bytes.Clone(t.Payload),
	}
	if t.TechList != nil {
		c.TechList = append([]string(nil), t.TechList...)
	}
	return c
}

// ReadResult is the terminal outcome of one read request.
type ReadResult struct {
	ReadAt     time.Time `json:"read_at"`
	Err        error     `json:"-"`
	Tag        *RawTag   `json:"tag,omitempty"`
	Text       *string   `json:"text,omitempty"`
	Error      *string   `json:"error,omitempty"`
	ReaderName string    `json:"reader"`
	Success    bool      `json:"success"`
}

// WriteResult is the terminal outcome of one write request.
type WriteResult struct {
	WrittenAt  time.Time `json:"written_at"`
	Err        error     `json:"-"`
	Error      *string   `json:"error,omitempty"`
	ReaderName string    `json:"reader"`
	Success    bool      `json:"success"`
}

// FailedRead builds an unsuccessful read result from an error.
func FailedRead(readerName string, at time.Time, err error) ReadResult {
	msg := ErrorMessage(err)
	return ReadResult{
		Success:    false,
		ReaderName: readerName,
		ReadAt:     at,
		Error:      &msg,
		Err:        err,
	}
}

// FailedWrite builds an unsuccessful write result from an error.
func FailedWrite(readerName string, at time.Time, err error) WriteResult {
	msg := ErrorMessage(err)
	return WriteResult{
		Success:    false,
		ReaderName: readerName,
		WrittenAt:  at,
		Error:      &msg,
		Err:        err,
	}
}

// Listener receives detection events from a backend. Implementations must
// not block: backends may call it from a native callback thread.
type Listener interface {
	// TagArrived reports a card presented to the reader.
	TagArrived(tag RawTag)
	// TagRemoved reports that no card is on the reader any more.
	TagRemoved()
	// TransportFailed reports a native error while talking to a card.
	TransportFailed(err error)
	// ReaderLost reports that the reader itself is gone. The session
	// stops listening after this.
	ReaderLost(err error)
}

// Backend is one platform's way of talking to contactless cards. A single
// variant is chosen when the process starts.
type Backend interface {
	// Metadata returns static information about this driver.
	Metadata() DriverMetadata
	// ListReaders enumerates reader endpoints. It has no side effects and
	// may return an empty list.
	ListReaders() ([]Descriptor, error)
	// Open acquires the named reader and starts reporting detection
	// events to the listener.
	Open(ctx context.Context, readerName string, l Listener) error
	// Close stops listening and releases native resources. Safe to call
	// more than once.
	Close() error
	// Arm is called when a read or write starts waiting on this reader.
	Arm(op OpKind) error
	// Disarm is called when the pending operation has been resolved.
	Disarm()
	// WriteMessage writes an encoded NDEF message to the detected tag.
	WriteMessage(ctx context.Context, tag RawTag, msg []byte) error
}
