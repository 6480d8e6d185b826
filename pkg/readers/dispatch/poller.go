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

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often a pull-style reader is checked for a
// card when no interval is configured.
const DefaultPollInterval = 250 * time.Millisecond

// PollFunc checks the reader once. It returns nil when no card is on the
// reader. An error wrapping readers.ErrReaderNotFound ends polling.
type PollFunc func(ctx context.Context) (*readers.RawTag, error)

// Poller infers presence on readers without push notifications by
// calling a PollFunc and feeding the result to a listener.
type Poller struct {
	clock    clockwork.Clock
	listener readers.Listener
	poll     PollFunc
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
	mu       syncutil.Mutex
	pollMu   syncutil.Mutex
	present  bool
	lost     bool
}

// NewPoller returns a poller. An interval of 0 never polls on its own,
// PollOnce must be called instead.
func NewPoller(
	clock clockwork.Clock,
	interval time.Duration,
	poll PollFunc,
	l readers.Listener,
) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		clock:    clock,
		interval: interval,
		poll:     poll,
		listener: l,
	}
}

func (p *Poller) safePoll(ctx context.Context) (tag *readers.RawTag, err error) {
	defer func() {
		if r := recover(); r != nil {
			tag = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.poll(ctx)
}

// PollOnce checks the reader and reports the outcome to the listener: a
// tag on every successful read (the listener dedupes), a removal when a
// card went away, a transport failure or a lost reader.
func (p *Poller) PollOnce(ctx context.Context) (*readers.RawTag, error) {
	tag, err := p.check(ctx)
	if err != nil && IsFatal(err) {
		p.listener.ReaderLost(err)
	}
	return tag, err
}

// check is PollOnce without the lost reader report, which the loop makes
// only after it has exited.
func (p *Poller) check(ctx context.Context) (*readers.RawTag, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	if p.lost {
		return nil, fmt.Errorf("polling stopped: %w", readers.ErrReaderNotFound)
	}

	tag, err := p.safePoll(ctx)
	switch {
	case err != nil && IsFatal(err):
		p.lost = true
		p.present = false
		return nil, err
	case err != nil:
		p.listener.TransportFailed(err)
		return nil, readers.NewTransportError("poll", err)
	case tag == nil:
		if p.present {
			p.present = false
			p.listener.TagRemoved()
		}
		return nil, nil
	default:
		p.present = true
		p.listener.TagArrived(*tag)
		return tag, nil
	}
}

// Start runs PollOnce every interval until ctx is done, Stop is called or
// the reader is lost. It does nothing when the interval is 0.
func (p *Poller) Start(ctx context.Context) {
	if p.interval <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	lostErr := p.run(ctx)
	close(done)
	if lostErr != nil {
		log.Debug().Msg("reader lost, polling stopped")
		p.listener.ReaderLost(lostErr)
	}
}

func (p *Poller) run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	log.Debug().Msgf("polling reader every %s", p.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}

		_, err := p.check(ctx)
		if err != nil && IsFatal(err) {
			return err
		}
	}
}

// Stop ends the poll loop and waits for it to exit. Safe to call more
// than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
