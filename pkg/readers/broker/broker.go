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

// Package broker holds the single pending read or write of a card session
// and resolves it exactly once, from a detected tag, a deadline, a
// transport failure or a cancel, whichever gets there first.
package broker

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrInvalidTimeout is returned when an operation is started without a
// positive timeout.
var ErrInvalidTimeout = errors.New("timeout must be positive")

// Hooks are called around the lifetime of each operation. Both are
// optional and are never called with the broker's lock held.
type Hooks struct {
	// Started runs after the operation slot is taken and before its
	// deadline starts. An error releases the slot and fails the begin.
	Started func(kind readers.OpKind) error
	// ReadSettled runs once with the result of each read.
	ReadSettled func(res readers.ReadResult)
	// WriteSettled runs once with the result of each write.
	WriteSettled func(res readers.WriteResult)
}

type operation struct {
	deadline time.Time
	timer    clockwork.Timer
	read     *Future[readers.ReadResult]
	write    *Future[readers.WriteResult]
	id       string
	kind     readers.OpKind
}

func (op *operation) claim() bool {
	if op.read != nil {
		return op.read.claim()
	}
	return op.write.claim()
}

func (op *operation) claimed() bool {
	if op.read != nil {
		return op.read.claimed.Load()
	}
	return op.write.claimed.Load()
}

// Broker allows one outstanding operation at a time.
type Broker struct {
	clock      clockwork.Clock
	current    *operation
	hooks      Hooks
	readerName string
	mu         syncutil.Mutex
}

// New returns a broker for a session on readerName. A nil clock uses the
// real clock.
func New(readerName string, clock clockwork.Clock, hooks Hooks) *Broker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broker{
		readerName: readerName,
		clock:      clock,
		hooks:      hooks,
	}
}

// ReaderName returns the reader results are attributed to.
func (b *Broker) ReaderName() string {
	return b.readerName
}

// Pending returns the kind of the outstanding operation, if any.
func (b *Broker) Pending() (readers.OpKind, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return "", false
	}
	return b.current.kind, true
}

// Deadline returns when the outstanding operation times out.
func (b *Broker) Deadline() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return time.Time{}, false
	}
	return b.current.deadline, true
}

func (b *Broker) begin(op *operation, timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTimeout, timeout)
	}

	b.mu.Lock()
	if b.current != nil {
		kind := b.current.kind
		b.mu.Unlock()
		return fmt.Errorf("%w: %s pending", readers.ErrOperationInProgress, kind)
	}
	op.deadline = b.clock.Now().Add(timeout)
	b.current = op
	b.mu.Unlock()

	if b.hooks.Started != nil {
		if err := b.hooks.Started(op.kind); err != nil {
			b.mu.Lock()
			if b.current == op {
				b.current = nil
			}
			b.mu.Unlock()
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !op.claimed() {
		op.timer = b.clock.AfterFunc(timeout, func() {
			b.expire(op)
		})
	}
	log.Debug().Msgf("%s operation %s started, deadline %s", op.kind, op.id, timeout)
	return nil
}

// BeginRead parks a read until a tag is delivered or timeout passes.
func (b *Broker) BeginRead(timeout time.Duration) (*Future[readers.ReadResult], error) {
	id := uuid.New().String()
	op := &operation{
		id:   id,
		kind: readers.OpRead,
		read: newFuture[readers.ReadResult](id),
	}
	if err := b.begin(op, timeout); err != nil {
		return nil, err
	}
	return op.read, nil
}

// BeginWrite reserves the operation slot for a write. The caller runs the
// write and reports its outcome with CompleteWrite.
func (b *Broker) BeginWrite(timeout time.Duration) (*Future[readers.WriteResult], error) {
	id := uuid.New().String()
	op := &operation{
		id:    id,
		kind:  readers.OpWrite,
		write: newFuture[readers.WriteResult](id),
	}
	if err := b.begin(op, timeout); err != nil {
		return nil, err
	}
	return op.write, nil
}

// settle resolves op if nobody else has. The slot is freed before the
// future completes so a caller woken by it can start the next operation.
func (b *Broker) settle(op *operation, read readers.ReadResult, write readers.WriteResult) bool {
	if !op.claim() {
		return false
	}

	b.mu.Lock()
	if b.current == op {
		b.current = nil
	}
	timer := op.timer
	b.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	var err error
	if op.read != nil {
		err = read.Err
		op.read.complete(read)
	} else {
		err = write.Err
		op.write.complete(write)
	}

	if err != nil {
		log.Debug().Err(err).Msgf("%s operation %s failed", op.kind, op.id)
	} else {
		log.Debug().Msgf("%s operation %s succeeded", op.kind, op.id)
	}

	switch {
	case op.read != nil && b.hooks.ReadSettled != nil:
		b.hooks.ReadSettled(read)
	case op.write != nil && b.hooks.WriteSettled != nil:
		b.hooks.WriteSettled(write)
	}
	return true
}

func (b *Broker) fail(op *operation, err error) bool {
	now := b.clock.Now()
	return b.settle(
		op,
		readers.FailedRead(b.readerName, now, err),
		readers.FailedWrite(b.readerName, now, err),
	)
}

func (b *Broker) expire(op *operation) {
	if b.fail(op, readers.ErrTimeout) {
		log.Info().Msgf("%s operation %s timed out", op.kind, op.id)
	}
}

func (b *Broker) currentOp() *operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// DeliverRead resolves the pending read with res. It reports false when
// no read was pending or another resolution won.
func (b *Broker) DeliverRead(res readers.ReadResult) bool {
	op := b.currentOp()
	if op == nil || op.kind != readers.OpRead {
		return false
	}
	if res.ReaderName == "" {
		res.ReaderName = b.readerName
	}
	return b.settle(op, res, readers.WriteResult{})
}

// CompleteWrite resolves the write started by BeginWrite as f.
func (b *Broker) CompleteWrite(f *Future[readers.WriteResult], res readers.WriteResult) bool {
	op := b.currentOp()
	if op == nil || op.write != f {
		return false
	}
	if res.ReaderName == "" {
		res.ReaderName = b.readerName
	}
	return b.settle(op, readers.ReadResult{}, res)
}

// Fail resolves the pending operation, whatever its kind, as failed.
func (b *Broker) Fail(err error) bool {
	op := b.currentOp()
	if op == nil {
		return false
	}
	return b.fail(op, err)
}

// Cancel resolves the pending operation as cancelled. It's a no-op when
// nothing is pending.
func (b *Broker) Cancel() bool {
	return b.Fail(readers.ErrCancelled)
}
