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

// Package mobile holds the backends for a phone's built-in radio. Tags
// reach the engine through the hosting shell calling the session's
// detection hooks; these backends only manage the platform listener and
// the write path through an adapter the shell provides.
package mobile

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/rs/zerolog/log"
)

const (
	ForegroundDriverID   = "foreground"
	ForegroundReaderName = "Android Device NFC"
	DelegateDriverID     = "delegate"
	DelegateReaderName   = "iOS Device NFC"
)

const (
	readAlert  = "Hold your card near the top of the phone."
	writeAlert = "Hold your card near the top of the phone to write it."
)

// ForegroundAdapter is the shell side of a platform that redelivers tag
// intents to the foreground activity.
type ForegroundAdapter interface {
	// Available reports whether the radio exists and is switched on.
	Available() bool
	EnableForegroundDispatch() error
	DisableForegroundDispatch() error
	// WriteNDEF writes msg to the tag last delivered to the shell.
	WriteNDEF(ctx context.Context, tag readers.RawTag, msg []byte) error
}

// DelegateAdapter is the shell side of a platform where the app starts a
// system scan session and receives tags through a delegate callback.
type DelegateAdapter interface {
	// Available reports whether the device can read NDEF tags.
	Available() bool
	// BeginSession shows the system scan sheet with alertMessage.
	BeginSession(alertMessage string) error
	// InvalidateSession closes the scan sheet.
	InvalidateSession()
	// WriteNDEF writes msg to the tag of the current scan session.
	WriteNDEF(ctx context.Context, msg []byte) error
}

func builtInReader(driverID, name string) readers.Descriptor {
	return readers.Descriptor{
		ID:   readers.GenerateReaderID(driverID, name),
		Name: name,
		Kind: readers.KindBuiltIn,
	}
}

func checkName(want, got string) error {
	if got != want {
		return fmt.Errorf("%w: %s", readers.ErrReaderNotFound, got)
	}
	return nil
}

// Foreground is the backend for intent redelivery platforms.
type Foreground struct {
	adapter ForegroundAdapter
	mu      syncutil.Mutex
	open    bool
}

// NewForeground returns a foreground dispatch backend. A nil adapter means
// the device has no contactless radio.
func NewForeground(adapter ForegroundAdapter) *Foreground {
	return &Foreground{adapter: adapter}
}

var _ readers.Backend = (*Foreground)(nil)

func (*Foreground) Metadata() readers.DriverMetadata {
	return readers.DriverMetadata{
		ID:          ForegroundDriverID,
		Description: "Built-in NFC via foreground dispatch",
		Kind:        readers.KindBuiltIn,
		Capabilities: []readers.Capability{
			readers.CapabilityWrite,
			readers.CapabilityUID,
		},
	}
}

func (f *Foreground) ListReaders() ([]readers.Descriptor, error) {
	if f.adapter == nil {
		return nil, readers.ErrPlatformUnsupported
	}
	return []readers.Descriptor{builtInReader(ForegroundDriverID, ForegroundReaderName)}, nil
}

// Open registers the app as the foreground tag listener. Tags arrive
// through the session's OnTagArrived hook, not through l.
func (f *Foreground) Open(_ context.Context, readerName string, _ readers.Listener) error {
	if err := checkName(ForegroundReaderName, readerName); err != nil {
		return err
	}
	if f.adapter == nil || !f.adapter.Available() {
		return fmt.Errorf("%w: NFC is unavailable or disabled", readers.ErrPlatformUnsupported)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.adapter.EnableForegroundDispatch(); err != nil {
		return fmt.Errorf("failed to enable foreground dispatch: %w", err)
	}
	f.open = true
	return nil
}

func (f *Foreground) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return nil
	}
	f.open = false
	if err := f.adapter.DisableForegroundDispatch(); err != nil {
		return fmt.Errorf("failed to disable foreground dispatch: %w", err)
	}
	return nil
}

// Arm is a no-op, dispatch stays enabled while the session is open.
func (*Foreground) Arm(readers.OpKind) error { return nil }

// Disarm is a no-op.
func (*Foreground) Disarm() {}

func (f *Foreground) WriteMessage(ctx context.Context, tag readers.RawTag, msg []byte) error {
	f.mu.Lock()
	open := f.open
	f.mu.Unlock()
	if !open {
		return readers.ErrNotConnected
	}
	if err := f.adapter.WriteNDEF(ctx, tag, msg); err != nil {
		return readers.NewTransportError("write", err)
	}
	return nil
}

// Delegate is the backend for scan session platforms. The scan sheet is
// only up while an operation is pending and tags carry no UID.
type Delegate struct {
	adapter DelegateAdapter
	mu      syncutil.Mutex
	open    bool
	active  bool
}

// NewDelegate returns a session delegate backend. A nil adapter means the
// device can't read tags.
func NewDelegate(adapter DelegateAdapter) *Delegate {
	return &Delegate{adapter: adapter}
}

var _ readers.Backend = (*Delegate)(nil)

func (*Delegate) Metadata() readers.DriverMetadata {
	return readers.DriverMetadata{
		ID:          DelegateDriverID,
		Description: "Built-in NFC via reader session delegate",
		Kind:        readers.KindBuiltIn,
		Capabilities: []readers.Capability{
			readers.CapabilityWrite,
		},
	}
}

func (d *Delegate) ListReaders() ([]readers.Descriptor, error) {
	if d.adapter == nil {
		return nil, readers.ErrPlatformUnsupported
	}
	return []readers.Descriptor{builtInReader(DelegateDriverID, DelegateReaderName)}, nil
}

func (d *Delegate) Open(_ context.Context, readerName string, _ readers.Listener) error {
	if err := checkName(DelegateReaderName, readerName); err != nil {
		return err
	}
	if d.adapter == nil || !d.adapter.Available() {
		return fmt.Errorf("%w: NFC reading unavailable", readers.ErrPlatformUnsupported)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	return nil
}

func (d *Delegate) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	if d.active {
		d.active = false
		d.adapter.InvalidateSession()
	}
	return nil
}

// Arm shows the system scan sheet for the pending operation.
func (d *Delegate) Arm(op readers.OpKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return readers.ErrNotConnected
	}
	if d.active {
		return nil
	}

	alert := readAlert
	if op == readers.OpWrite {
		alert = writeAlert
	}
	if err := d.adapter.BeginSession(alert); err != nil {
		return fmt.Errorf("failed to begin scan session: %w", err)
	}
	d.active = true
	log.Debug().Msgf("scan session started for %s", op)
	return nil
}

// Disarm closes the scan sheet.
func (d *Delegate) Disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return
	}
	d.active = false
	d.adapter.InvalidateSession()
}

func (d *Delegate) WriteMessage(ctx context.Context, _ readers.RawTag, msg []byte) error {
	d.mu.Lock()
	open := d.open
	d.mu.Unlock()
	if !open {
		return readers.ErrNotConnected
	}
	if err := d.adapter.WriteNDEF(ctx, msg); err != nil {
		return readers.NewTransportError("write", err)
	}
	return nil
}
