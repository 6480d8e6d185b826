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

// Package pcsc is the desktop backend: USB contactless readers reached
// through the PC/SC service. The card connection is only held for the
// length of one transaction so other applications can share the reader.
package pcsc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/dispatch"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/shared/apdu"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/shared/ndef"
	"github.com/ebfe/scard"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const DriverID = "pcsc"

const (
	pageSize      = 4
	ccPage        = 3
	firstDataPage = 4
	// DefaultMaxPages is the last page read when looking for the end of
	// an NDEF message.
	DefaultMaxPages = 0x50
)

// ndefCC marks a Type 2 tag as NDEF formatted, version 1.0, read/write.
var ndefCC = []byte{0xE1, 0x10, 0x3F, 0x00}

var errMessageTooLarge = errors.New("NDEF message doesn't fit the tag")

// Options configure a Reader. Zero values use the defaults.
type Options struct {
	Clock          clockwork.Clock
	ContextFactory ScardContextFactory
	PollInterval   time.Duration
	MaxPages       int
}

// Reader is the PC/SC backend.
type Reader struct {
	clock    clockwork.Clock
	factory  ScardContextFactory
	ctx      ScardContext
	poller   *dispatch.Poller
	reported *readers.RawTag
	name     string
	interval time.Duration
	maxPages int
	mu       syncutil.Mutex
}

// New returns a PC/SC backend. A zero poll interval means the caller
// drives detection with PollOnce.
func New(opts Options) *Reader {
	r := &Reader{
		clock:    opts.Clock,
		factory:  opts.ContextFactory,
		interval: opts.PollInterval,
		maxPages: opts.MaxPages,
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.factory == nil {
		r.factory = DefaultScardContextFactory
	}
	if r.maxPages <= firstDataPage {
		r.maxPages = DefaultMaxPages
	}
	return r
}

var _ readers.Backend = (*Reader)(nil)

func (*Reader) Metadata() readers.DriverMetadata {
	return readers.DriverMetadata{
		ID:          DriverID,
		Description: "Contactless reader via PC/SC",
		Kind:        readers.KindUsbPcsc,
		Capabilities: []readers.Capability{
			readers.CapabilityWrite,
			readers.CapabilityUID,
			readers.CapabilityRemoval,
		},
	}
}

func (r *Reader) establish() (ScardContext, error) {
	sc, err := r.factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", readers.ErrPlatformUnsupported, err)
	}
	return sc, nil
}

// isSAM reports whether a PC/SC reader name is a secure access module
// slot rather than a contactless interface.
func isSAM(name string) bool {
	return strings.Contains(strings.ToUpper(name), "SAM")
}

func listContactless(sc ScardContext) ([]string, error) {
	names, err := sc.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to list pcsc readers: %w", err)
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		if isSAM(n) {
			log.Trace().Msgf("skipping SAM slot: %s", n)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// ListReaders uses a short-lived context so it can run while another
// reader is open.
func (r *Reader) ListReaders() ([]readers.Descriptor, error) {
	sc, err := r.establish()
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := sc.Release(); releaseErr != nil {
			log.Warn().Err(releaseErr).Msg("error releasing pcsc context")
		}
	}()

	names, err := listContactless(sc)
	if err != nil {
		return nil, err
	}

	ds := make([]readers.Descriptor, 0, len(names))
	for _, n := range names {
		ds = append(ds, readers.Descriptor{
			ID:   readers.GenerateReaderID(DriverID, n),
			Name: n,
			Kind: readers.KindUsbPcsc,
		})
	}
	return ds, nil
}

// Open establishes the context held for the session and starts polling
// the reader for cards.
func (r *Reader) Open(ctx context.Context, readerName string, l readers.Listener) error {
	r.mu.Lock()
	if r.ctx != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s already open", readers.ErrReaderBusy, r.name)
	}
	r.mu.Unlock()

	sc, err := r.establish()
	if err != nil {
		return err
	}

	names, err := listContactless(sc)
	if err == nil && !slices.Contains(names, readerName) {
		err = fmt.Errorf("%w: %s", readers.ErrReaderNotFound, readerName)
	}
	if err != nil {
		if releaseErr := sc.Release(); releaseErr != nil {
			log.Warn().Err(releaseErr).Msg("error releasing pcsc context")
		}
		return err
	}

	poller := dispatch.NewPoller(r.clock, r.interval, r.poll, l)

	r.mu.Lock()
	r.ctx = sc
	r.name = readerName
	r.reported = nil
	r.poller = poller
	r.mu.Unlock()

	poller.Start(context.WithoutCancel(ctx))
	log.Info().Msgf("opened pcsc reader: %s", readerName)
	return nil
}

// PollOnce checks the reader for a card once and reports the result to
// the session's listener.
func (r *Reader) PollOnce(ctx context.Context) (*readers.RawTag, error) {
	r.mu.Lock()
	poller := r.poller
	r.mu.Unlock()
	if poller == nil {
		return nil, readers.ErrNotConnected
	}
	return poller.PollOnce(ctx)
}

func (r *Reader) session() (ScardContext, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return nil, "", readers.ErrNotConnected
	}
	return r.ctx, r.name, nil
}

func (r *Reader) poll(_ context.Context) (*readers.RawTag, error) {
	sc, name, err := r.session()
	if err != nil {
		return nil, err
	}

	names, err := listContactless(sc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", readers.ErrReaderNotFound, err)
	}
	if !slices.Contains(names, name) {
		return nil, fmt.Errorf("%w: %s", readers.ErrReaderNotFound, name)
	}

	rs := []scard.ReaderState{{
		Reader:       name,
		CurrentState: scard.StateUnaware,
	}}
	if err := sc.GetStatusChange(rs, 0); err != nil {
		return nil, fmt.Errorf("failed to get reader status: %w", err)
	}

	if rs[0].EventState&scard.StatePresent == 0 {
		r.setReported(nil)
		return nil, nil
	}

	r.mu.Lock()
	if r.reported != nil {
		tag := r.reported.Clone()
		r.mu.Unlock()
		return &tag, nil
	}
	r.mu.Unlock()

	tag, err := r.readTag(sc, name)
	if err != nil {
		return nil, err
	}
	r.setReported(&tag)
	return &tag, nil
}

func (r *Reader) setReported(tag *readers.RawTag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tag == nil {
		r.reported = nil
		return
	}
	c := tag.Clone()
	r.reported = &c
}

func transmit(card ScardCard, cmd apdu.Command) ([]byte, error) {
	res, err := card.Transmit(cmd)
	if err != nil {
		return nil, readers.NewTransportError("transmit", err)
	}
	body, err := apdu.ParseResponse(res)
	if err != nil {
		return nil, fmt.Errorf("command %X: %w", []byte(cmd[:2]), err)
	}
	return body, nil
}

func (r *Reader) readTag(sc ScardContext, name string) (readers.RawTag, error) {
	var tag readers.RawTag
	err := withCard(sc, name, func(card ScardCard) error {
		if status, err := card.Status(); err == nil {
			log.Debug().Msgf("card atr: %X", status.Atr)
		}

		uid, err := transmit(card, apdu.GetUID())
		if err != nil {
			return fmt.Errorf("failed to read uid: %w", err)
		}
		tag.UID = bytes.Clone(uid)
		tag.TechList = []string{"NfcA"}

		area, err := r.readDataArea(card)
		if err != nil {
			return err
		}
		msg, err := ndef.ExtractMessage(area)
		if err != nil {
			log.Debug().Err(err).Msgf("no NDEF message on tag %X", uid)
			return nil
		}
		tag.TechList = append(tag.TechList, "Ndef")
		tag.Payload = bytes.Clone(msg)
		return nil
	})
	if err != nil {
		return readers.RawTag{}, err
	}
	return tag, nil
}

// readDataArea reads pages from the first data page until the NDEF TLV is
// complete, the tag runs out of memory or maxPages is reached.
func (r *Reader) readDataArea(card ScardCard) ([]byte, error) {
	area := make([]byte, 0, 64)
	for page := firstDataPage; page < r.maxPages; page++ {
		data, err := transmit(card, apdu.BuildReadBlock(byte(page), pageSize))
		var swErr *apdu.StatusError
		switch {
		case errors.As(err, &swErr):
			log.Debug().Msgf("read stopped at page %d: %v", page, err)
			return area, nil
		case err != nil:
			return nil, fmt.Errorf("failed to read page %d: %w", page, err)
		}
		if len(data) > pageSize {
			data = data[:pageSize]
		}
		area = append(area, data...)

		// an unformatted tag reads as zeros
		if isBlank(area) {
			return area, nil
		}
		if _, err := ndef.ExtractMessage(area); !errors.Is(err, ndef.ErrIncomplete) {
			return area, nil
		}
	}
	return area, nil
}

func isBlank(area []byte) bool {
	for _, b := range area {
		if b != 0 {
			return false
		}
	}
	return true
}

// WriteMessage writes msg to the tag in one card transaction. The card on
// the reader must still be the detected tag.
func (r *Reader) WriteMessage(ctx context.Context, tag readers.RawTag, msg []byte) error {
	sc, name, err := r.session()
	if err != nil {
		return err
	}

	area, err := ndef.WrapTLV(msg)
	if err != nil {
		return fmt.Errorf("failed to wrap NDEF message: %w", err)
	}
	pages := (len(area) + pageSize - 1) / pageSize
	if firstDataPage+pages > r.maxPages {
		return fmt.Errorf("%w: %d bytes", errMessageTooLarge, len(area))
	}
	padded := make([]byte, pages*pageSize)
	copy(padded, area)

	err = withCard(sc, name, func(card ScardCard) error {
		uid, err := transmit(card, apdu.GetUID())
		if err != nil {
			return fmt.Errorf("failed to read uid: %w", err)
		}
		if !bytes.Equal(uid, tag.UID) {
			return fmt.Errorf("%w: card on reader is %X", readers.ErrNoTagPresent, uid)
		}

		cc, err := transmit(card, apdu.BuildReadBlock(ccPage, pageSize))
		if err != nil {
			return fmt.Errorf("failed to read capability container: %w", err)
		}
		if len(cc) == 0 || cc[0] != ndefCC[0] {
			log.Debug().Msgf("formatting tag %X for NDEF", uid)
			if err := writePage(card, ccPage, ndefCC); err != nil {
				return err
			}
		}

		for i := range pages {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("write interrupted: %w", err)
			}
			chunk := padded[i*pageSize : (i+1)*pageSize]
			if err := writePage(card, byte(firstDataPage+i), chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	written := tag.Clone()
	written.Payload = bytes.Clone(msg)
	r.setReported(&written)
	log.Info().Msgf("wrote %d bytes to tag %X", len(msg), tag.UID)
	return nil
}

func writePage(card ScardCard, page byte, data []byte) error {
	cmd, err := apdu.BuildWriteBlock(page, data)
	if err != nil {
		return err
	}
	if _, err := transmit(card, cmd); err != nil {
		return fmt.Errorf("failed to write page %d: %w", page, err)
	}
	return nil
}

// Arm is a no-op, the reader is polled for as long as it's open.
func (*Reader) Arm(readers.OpKind) error { return nil }

// Disarm is a no-op.
func (*Reader) Disarm() {}

// Close stops polling and releases the context. Safe to call when the
// reader isn't open.
func (r *Reader) Close() error {
	r.mu.Lock()
	sc, poller, name := r.ctx, r.poller, r.name
	r.ctx = nil
	r.poller = nil
	r.reported = nil
	r.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if sc == nil {
		return nil
	}
	if err := sc.Release(); err != nil {
		return fmt.Errorf("failed to release scard context: %w", err)
	}
	log.Info().Msgf("closed pcsc reader: %s", name)
	return nil
}
