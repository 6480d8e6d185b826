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

// Package models holds the request and event payloads of the bridge API.
package models

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/session"
)

// Event types sent to WebSocket clients.
const (
	EventState   = "state"
	EventTag     = "tag"
	EventRemoved = "removed"
	EventRead    = "read"
	EventWrite   = "write"
)

// Message types accepted from WebSocket clients.
const (
	MessageTag      = "tag"
	MessageRemoved  = "removed"
	MessageError    = "error"
	MessageWriteAck = "write_ack"
)

type ConnectRequest struct {
	Reader string `json:"reader" validate:"max=256"`
}

type ReadRequest struct {
	Timeout string `json:"timeout,omitempty" validate:"omitempty,duration"`
}

type WriteRequest struct {
	Text     string `json:"text" validate:"required"`
	Language string `json:"language,omitempty" validate:"omitempty,language"`
	Timeout  string `json:"timeout,omitempty" validate:"omitempty,duration"`
}

// TagRequest is a card detected by a host shell. Byte fields are hex and
// may contain spaces between bytes.
type TagRequest struct {
	UID      string   `json:"uid" validate:"omitempty,hexdata"`
	Payload  string   `json:"payload" validate:"omitempty,hexdata"`
	TechList []string `json:"tech_list,omitempty" validate:"max=16"`
}

// RawTag decodes the request. It expects a request that already passed
// validation but still reports bad hex.
func (r TagRequest) RawTag() (readers.RawTag, error) {
	uid, err := decodeHex(r.UID)
	if err != nil {
		return readers.RawTag{}, fmt.Errorf("invalid uid: %w", err)
	}
	payload, err := decodeHex(r.Payload)
	if err != nil {
		return readers.RawTag{}, fmt.Errorf("invalid payload: %w", err)
	}
	tag := readers.RawTag{UID: uid, Payload: payload}
	if len(r.TechList) > 0 {
		tag.TechList = append([]string(nil), r.TechList...)
	}
	return tag, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex: %w", err)
	}
	return b, nil
}

// DetectionErrorRequest reports a failed or dismissed platform scan.
type DetectionErrorRequest struct {
	Error     string `json:"error"`
	Cancelled bool   `json:"cancelled"`
}

// InboundMessage is one WebSocket frame from a host shell.
type InboundMessage struct {
	Type   string          `json:"type" validate:"required,oneof=tag removed error write_ack"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Event is one WebSocket frame to clients.
type Event struct {
	Data any    `json:"data,omitempty"`
	Type string `json:"type"`
}

type ReadersResponse struct {
	Driver  string               `json:"driver"`
	Readers []readers.Descriptor `json:"readers"`
}

type SessionResponse struct {
	session.Status
	Driver string `json:"driver"`
}

type StateEvent struct {
	State  session.State `json:"state"`
	Reader string        `json:"reader,omitempty"`
}

type TagEvent struct {
	UID      string   `json:"uid"`
	Payload  string   `json:"payload,omitempty"`
	TechList []string `json:"tech_list,omitempty"`
}

// NewTagEvent renders a tag with upper-case hex fields.
func NewTagEvent(tag readers.RawTag) TagEvent {
	return TagEvent{
		UID:      tag.UIDHex(),
		Payload:  strings.ToUpper(hex.EncodeToString(tag.Payload)),
		TechList: tag.TechList,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrorEvent is sent to a single WebSocket client whose message failed.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewErrorEvent returns an error frame for err.
func NewErrorEvent(err error) ErrorEvent {
	return ErrorEvent{Type: "error", Error: err.Error()}
}
