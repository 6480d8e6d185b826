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

package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ZaparooProject/zaparoo-tap/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/mobile"
	"github.com/google/uuid"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

// Shell events sent to the connected host shell.
const (
	EventDispatch     = "dispatch"
	EventScanBegin    = "scan_begin"
	EventScanEnd      = "scan_end"
	EventWriteRequest = "write_request"
)

var ErrNoShell = errors.New("no host shell connected")

type DispatchEvent struct {
	Enabled bool `json:"enabled"`
}

type ScanEvent struct {
	Alert string `json:"alert"`
}

type WriteRequestEvent struct {
	ID      string `json:"id"`
	UID     string `json:"uid,omitempty"`
	Message string `json:"message"`
}

type WriteAck struct {
	ID    string `json:"id" validate:"required,uuid"`
	Error string `json:"error,omitempty"`
}

// Shell drives a phone's radio through a host shell connected to the
// bridge WebSocket. It backs the foreground and delegate backends when the
// engine runs outside the phone process.
type Shell struct {
	ws      *melody.Melody
	pending map[string]chan error
	mu      syncutil.Mutex
}

func NewShell() *Shell {
	return &Shell{pending: make(map[string]chan error)}
}

func (s *Shell) attach(m *melody.Melody) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ws = m
}

func (s *Shell) hub() *melody.Melody {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws
}

func (s *Shell) send(eventType string, data any) error {
	m := s.hub()
	if m == nil || m.Len() == 0 {
		return ErrNoShell
	}
	payload, err := json.Marshal(models.Event{Type: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	if err := m.Broadcast(payload); err != nil {
		return fmt.Errorf("failed to broadcast %s event: %w", eventType, err)
	}
	return nil
}

// Available reports whether a shell is connected.
func (s *Shell) Available() bool {
	m := s.hub()
	return m != nil && m.Len() > 0
}

func (s *Shell) writeNDEF(ctx context.Context, uid, msg []byte) error {
	id := uuid.New().String()
	done := make(chan error, 1)

	s.mu.Lock()
	s.pending[id] = done
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	err := s.send(EventWriteRequest, WriteRequestEvent{
		ID:      id,
		UID:     strings.ToUpper(hex.EncodeToString(uid)),
		Message: strings.ToUpper(hex.EncodeToString(msg)),
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for shell write: %w", ctx.Err())
	}
}

// ack resolves a write request. It reports false for unknown IDs.
func (s *Shell) ack(a WriteAck) bool {
	s.mu.Lock()
	done, ok := s.pending[a.ID]
	s.mu.Unlock()
	if !ok {
		log.Warn().Msgf("write ack for unknown request %s", a.ID)
		return false
	}

	var err error
	if a.Error != "" {
		err = errors.New(a.Error)
	}
	select {
	case done <- err:
	default:
	}
	return true
}

// Foreground returns the shell as an intent redelivery adapter.
func (s *Shell) Foreground() *ForegroundShell {
	return &ForegroundShell{shell: s}
}

// Delegate returns the shell as a scan session adapter.
func (s *Shell) Delegate() *DelegateShell {
	return &DelegateShell{shell: s}
}

type ForegroundShell struct {
	shell *Shell
}

var _ mobile.ForegroundAdapter = (*ForegroundShell)(nil)

func (f *ForegroundShell) Available() bool {
	return f.shell.Available()
}

func (f *ForegroundShell) EnableForegroundDispatch() error {
	return f.shell.send(EventDispatch, DispatchEvent{Enabled: true})
}

func (f *ForegroundShell) DisableForegroundDispatch() error {
	err := f.shell.send(EventDispatch, DispatchEvent{Enabled: false})
	if errors.Is(err, ErrNoShell) {
		return nil
	}
	return err
}

func (f *ForegroundShell) WriteNDEF(ctx context.Context, tag readers.RawTag, msg []byte) error {
	return f.shell.writeNDEF(ctx, tag.UID, msg)
}

type DelegateShell struct {
	shell *Shell
}

var _ mobile.DelegateAdapter = (*DelegateShell)(nil)

func (d *DelegateShell) Available() bool {
	return d.shell.Available()
}

func (d *DelegateShell) BeginSession(alertMessage string) error {
	return d.shell.send(EventScanBegin, ScanEvent{Alert: alertMessage})
}

func (d *DelegateShell) InvalidateSession() {
	if err := d.shell.send(EventScanEnd, nil); err != nil && !errors.Is(err, ErrNoShell) {
		log.Warn().Err(err).Msg("failed to end shell scan session")
	}
}

func (d *DelegateShell) WriteNDEF(ctx context.Context, msg []byte) error {
	return d.shell.writeNDEF(ctx, nil, msg)
}
