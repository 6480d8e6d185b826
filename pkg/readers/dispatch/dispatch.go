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

// Package dispatch turns platform detection signals into one tag per
// physical tap.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultPresenceWindow is how long a tag counts as still on the reader
// after its last detection signal.
const DefaultPresenceWindow = time.Second

// Handler receives deduplicated detection events.
type Handler interface {
	// HandleTag is called once per physical tap.
	HandleTag(tag readers.RawTag)
	// HandleRemoved is called when the reported tag left the reader.
	HandleRemoved()
	// HandleError is called with a TransportError.
	HandleError(err error)
	// HandleLost is called when the reader is gone for good.
	HandleLost(err error)
}

// Dispatcher is the readers.Listener handed to a backend. It's safe to
// call from any goroutine, including native callback threads.
type Dispatcher struct {
	clock      clockwork.Clock
	handler    Handler
	last       *readers.RawTag
	lastSeen   time.Time
	window     time.Duration
	suppressed int
	rearmed    bool
	mu         syncutil.Mutex
}

// New returns a dispatcher forwarding to h. A window of 0 keeps a tag
// present until the backend reports its removal.
func New(h Handler, clock clockwork.Clock, window time.Duration) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		handler: h,
		clock:   clock,
		window:  window,
	}
}

var _ readers.Listener = (*Dispatcher)(nil)

// inPresence reports whether the last tag is still within its presence
// period. Must be called with mu held.
func (d *Dispatcher) inPresence(now time.Time) bool {
	if d.last == nil {
		return false
	}
	if d.window <= 0 {
		return true
	}
	return now.Sub(d.lastSeen) < d.window
}

// guard stops panics from a handler reaching the caller's thread.
func (d *Dispatcher) guard(op string) {
	if r := recover(); r != nil {
		err := readers.NewTransportError(op, fmt.Errorf("panic: %v", r))
		log.Error().Err(err).Msg("recovered panic in detection handler")
		d.safeHandleError(err)
	}
}

func (d *Dispatcher) safeHandleError(err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("recovered panic while reporting detection error: %v", r)
		}
	}()
	d.handler.HandleError(err)
}

// TagArrived forwards a tag unless it's the same card as the last one and
// that card is still present.
func (d *Dispatcher) TagArrived(tag readers.RawTag) {
	defer d.guard("detect")

	now := d.clock.Now()
	d.mu.Lock()
	if !d.rearmed && d.inPresence(now) && d.last.SameCard(tag) {
		d.lastSeen = now
		d.suppressed++
		d.mu.Unlock()
		log.Trace().Msgf("suppressed duplicate detection of tag %s", tag.UIDHex())
		return
	}
	c := tag.Clone()
	d.last = &c
	d.lastSeen = now
	d.rearmed = false
	d.mu.Unlock()

	log.Info().Msgf("tag detected: uid=%s, payload=%d bytes", c.UIDHex(), len(c.Payload))
	d.handler.HandleTag(c.Clone())
}

// TagRemoved ends the presence of the last tag.
func (d *Dispatcher) TagRemoved() {
	defer d.guard("remove")

	d.mu.Lock()
	had := d.last != nil
	d.last = nil
	d.mu.Unlock()

	if had {
		log.Debug().Msg("tag removed")
		d.handler.HandleRemoved()
	}
}

// TransportFailed reports a native error as a TransportError.
func (d *Dispatcher) TransportFailed(err error) {
	if err == nil {
		return
	}
	defer d.guard("transport")

	tErr := readers.NewTransportError("detect", err)
	log.Warn().Err(tErr).Msg("transport error during detection")
	d.handler.HandleError(tErr)
}

// ReaderLost clears presence and reports the reader as gone.
func (d *Dispatcher) ReaderLost(err error) {
	defer d.guard("lost")

	if err == nil {
		err = readers.ErrReaderNotFound
	}
	d.Reset()
	log.Error().Err(err).Msg("reader lost")
	d.handler.HandleLost(err)
}

// Rearm lets the next signal through even if it's the card already on
// the reader, so a new read sees a card that was placed before it began.
// Signals after that one are deduplicated as usual.
func (d *Dispatcher) Rearm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rearmed = true
}

// Reset forgets the last detected tag.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = nil
	d.lastSeen = time.Time{}
	d.rearmed = false
}

// Present returns the last detected tag while it's still the write
// target, i.e. it wasn't removed or replaced and the session wasn't reset.
func (d *Dispatcher) Present() (readers.RawTag, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return readers.RawTag{}, false
	}
	return d.last.Clone(), true
}

// Suppressed returns the number of duplicate detections dropped.
func (d *Dispatcher) Suppressed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suppressed
}

// IsFatal reports whether a detection error means the reader is gone.
func IsFatal(err error) bool {
	return errors.Is(err, readers.ErrReaderNotFound)
}
