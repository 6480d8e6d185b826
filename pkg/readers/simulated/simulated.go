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

// Package simulated is an in-memory backend with one reader whose cards
// are placed and removed by code. It backs the bridge's simulate mode and
// tests.
package simulated

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/rs/zerolog/log"
)

const (
	DriverID   = "simulated"
	ReaderName = "Simulated NFC Reader"
)

// Backend is a simulated reader. The zero value isn't usable, use New.
type Backend struct {
	listener readers.Listener
	tag      *readers.RawTag
	armErr   error
	writeErr error
	name     string
	written  [][]byte
	armed    []readers.OpKind
	disarms  int
	mu       syncutil.Mutex
	open     bool
	unplug   bool
}

// New returns a simulated reader with no card on it.
func New() *Backend {
	return NewNamed(ReaderName)
}

// NewNamed returns a simulated reader listed under name.
func NewNamed(name string) *Backend {
	return &Backend{name: name}
}

var _ readers.Backend = (*Backend)(nil)

func (*Backend) Metadata() readers.DriverMetadata {
	return readers.DriverMetadata{
		ID:          DriverID,
		Description: "Simulated contactless reader",
		Kind:        readers.KindUsbPcsc,
		Capabilities: []readers.Capability{
			readers.CapabilityWrite,
			readers.CapabilityUID,
			readers.CapabilityRemoval,
		},
	}
}

func (b *Backend) ListReaders() ([]readers.Descriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unplug {
		return []readers.Descriptor{}, nil
	}
	return []readers.Descriptor{{
		ID:   readers.GenerateReaderID(DriverID, b.name),
		Name: b.name,
		Kind: readers.KindUsbPcsc,
	}}, nil
}

// Open starts reporting to l. A card already on the reader is reported
// straight away.
func (b *Backend) Open(_ context.Context, readerName string, l readers.Listener) error {
	b.mu.Lock()
	if b.unplug || readerName != b.name {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", readers.ErrReaderNotFound, readerName)
	}
	b.listener = l
	b.open = true
	var tag *readers.RawTag
	if b.tag != nil {
		c := b.tag.Clone()
		tag = &c
	}
	b.mu.Unlock()

	if tag != nil {
		l.TagArrived(*tag)
	}
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = nil
	b.open = false
	return nil
}

func (b *Backend) Arm(op readers.OpKind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.armErr != nil {
		return b.armErr
	}
	b.armed = append(b.armed, op)
	return nil
}

func (b *Backend) Disarm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disarms++
}

// WriteMessage stores msg as the payload of the card on the reader.
func (b *Backend) WriteMessage(ctx context.Context, tag readers.RawTag, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write interrupted: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	if b.tag == nil || !b.tag.SameCard(tag) {
		return readers.ErrNoTagPresent
	}
	b.tag.Payload = bytes.Clone(msg)
	b.written = append(b.written, bytes.Clone(msg))
	log.Debug().Msgf("simulated write of %d bytes to %s", len(msg), tag.UIDHex())
	return nil
}

func (b *Backend) currentListener() readers.Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listener
}

// Tap places a card on the reader.
func (b *Backend) Tap(tag readers.RawTag) {
	c := tag.Clone()
	b.mu.Lock()
	b.tag = &c
	b.mu.Unlock()

	if l := b.currentListener(); l != nil {
		l.TagArrived(tag.Clone())
	}
}

// Remove takes the card off the reader.
func (b *Backend) Remove() {
	b.mu.Lock()
	had := b.tag != nil
	b.tag = nil
	b.mu.Unlock()

	if l := b.currentListener(); had && l != nil {
		l.TagRemoved()
	}
}

// Fail reports a transport error as if a transaction had failed.
func (b *Backend) Fail(err error) {
	if l := b.currentListener(); l != nil {
		l.TransportFailed(err)
	}
}

// Unplug removes the reader from the system.
func (b *Backend) Unplug() {
	b.mu.Lock()
	b.unplug = true
	b.tag = nil
	b.mu.Unlock()

	if l := b.currentListener(); l != nil {
		l.ReaderLost(readers.ErrReaderNotFound)
	}
}

// Plug puts the reader back.
func (b *Backend) Plug() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unplug = false
}

// SetArmError makes the next Arm calls fail with err.
func (b *Backend) SetArmError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.armErr = err
}

// SetWriteError makes the next writes fail with err.
func (b *Backend) SetWriteError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeErr = err
}

// IsOpen reports whether a session has the reader open.
func (b *Backend) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Written returns every message written so far.
func (b *Backend) Written() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.written))
	for i, w := range b.written {
		out[i] = bytes.Clone(w)
	}
	return out
}

// Armed returns the operations the reader was armed for.
func (b *Backend) Armed() []readers.OpKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]readers.OpKind(nil), b.armed...)
}

// Disarms returns how many times the reader was disarmed.
func (b *Backend) Disarms() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disarms
}
