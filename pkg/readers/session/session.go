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

// Package session runs the connection lifecycle of one reader: claiming it,
// listening for cards through a backend and brokering the single pending
// read or write.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/broker"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/dispatch"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/shared/ndef"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State is the connection state of a session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateListening    State = "listening"
)

// Hooks observe a session. All are optional and are called without the
// session's lock held, possibly from a backend's callback goroutine.
type Hooks struct {
	StateChanged   func(state State, readerName string)
	TagDetected    func(tag readers.RawTag)
	TagRemoved     func()
	ReadCompleted  func(res readers.ReadResult)
	WriteCompleted func(res readers.WriteResult)
}

// Options configure a session.
type Options struct {
	Clock          clockwork.Clock
	Hooks          Hooks
	PresenceWindow time.Duration
}

// Status is a snapshot of a session.
type Status struct {
	Deadline *time.Time      `json:"deadline,omitempty"`
	Tag      *readers.RawTag `json:"tag,omitempty"`
	State    State           `json:"state"`
	Reader   string          `json:"reader,omitempty"`
	Pending  readers.OpKind  `json:"pending,omitempty"`
}

// connection is the state owned by one Connect call.
type connection struct {
	dispatcher *dispatch.Dispatcher
	broker     *broker.Broker
	release    func()
	reader     readers.Descriptor
}

// Session is one caller's view of one reader.
type Session struct {
	backend readers.Backend
	clock   clockwork.Clock
	conn    *connection
	hooks   Hooks
	state   State
	window  time.Duration
	mu      syncutil.Mutex
}

// New returns a disconnected session on backend.
func New(backend readers.Backend, opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Session{
		backend: backend,
		clock:   clock,
		hooks:   opts.Hooks,
		state:   StateDisconnected,
		window:  opts.PresenceWindow,
	}
}

// Driver returns the metadata of the session's backend.
func (s *Session) Driver() readers.DriverMetadata {
	return s.backend.Metadata()
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReaderName returns the connected reader, or "" when disconnected.
func (s *Session) ReaderName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.reader.Name
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{State: s.state}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return st
	}
	st.Reader = conn.reader.Name
	if kind, ok := conn.broker.Pending(); ok {
		st.Pending = kind
	}
	if deadline, ok := conn.broker.Deadline(); ok {
		st.Deadline = &deadline
	}
	if tag, ok := conn.dispatcher.Present(); ok {
		st.Tag = &tag
	}
	return st
}

func (s *Session) setState(state State, readerName string) {
	s.state = state
	log.Debug().Msgf("session state: %s (%s)", state, readerName)
}

func (s *Session) notifyState(state State, readerName string) {
	if s.hooks.StateChanged != nil {
		s.hooks.StateChanged(state, readerName)
	}
}

func (s *Session) current(conn *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == conn
}

func (s *Session) listening() (*connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.state != StateListening {
		return nil, readers.ErrNotConnected
	}
	return s.conn, nil
}

// ListReaders enumerates the backend's readers, marking the one this
// session listens on as connected.
func (s *Session) ListReaders() ([]readers.Descriptor, error) {
	ds, err := s.backend.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}

	name := ""
	if s.State() == StateListening {
		name = s.ReaderName()
	}
	for i := range ds {
		ds[i].Connected = name != "" && ds[i].Name == name
	}
	return ds, nil
}

func claimKey(md readers.DriverMetadata, readerName string) string {
	return md.ID + ":" + readerName
}

// Connect claims the named reader and starts listening on it. An empty
// name picks the first reader. Fails with ErrReaderNotFound,
// ErrReaderBusy or ErrPlatformUnsupported.
func (s *Session) Connect(ctx context.Context, readerName string) error {
	s.mu.Lock()
	if s.conn != nil {
		name := s.conn.reader.Name
		s.mu.Unlock()
		return fmt.Errorf("%w: session already connected to %s", readers.ErrReaderBusy, name)
	}
	s.mu.Unlock()

	ds, err := s.backend.ListReaders()
	if err != nil {
		return fmt.Errorf("failed to list readers: %w", err)
	}
	reader, err := readers.SelectReader(ds, readerName)
	if err != nil {
		return err
	}

	release, err := readers.Claim(claimKey(s.backend.Metadata(), reader.Name))
	if err != nil {
		return err
	}

	conn := &connection{
		reader:  reader,
		release: release,
	}
	conn.dispatcher = dispatch.New(&handler{s: s, conn: conn}, s.clock, s.window)
	conn.broker = broker.New(reader.Name, s.clock, broker.Hooks{
		Started: func(kind readers.OpKind) error {
			if kind == readers.OpRead {
				conn.dispatcher.Rearm()
			}
			return s.backend.Arm(kind)
		},
		ReadSettled: func(res readers.ReadResult) {
			s.backend.Disarm()
			if s.hooks.ReadCompleted != nil {
				s.hooks.ReadCompleted(res)
			}
		},
		WriteSettled: func(res readers.WriteResult) {
			s.backend.Disarm()
			if s.hooks.WriteCompleted != nil {
				s.hooks.WriteCompleted(res)
			}
		},
	})

	s.mu.Lock()
	if s.conn != nil {
		name := s.conn.reader.Name
		s.mu.Unlock()
		release()
		return fmt.Errorf("%w: session already connected to %s", readers.ErrReaderBusy, name)
	}
	s.conn = conn
	s.setState(StateConnecting, reader.Name)
	s.mu.Unlock()
	s.notifyState(StateConnecting, reader.Name)

	if err := s.backend.Open(ctx, reader.Name, conn.dispatcher); err != nil {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.setState(StateDisconnected, reader.Name)
		}
		s.mu.Unlock()
		release()
		s.notifyState(StateDisconnected, reader.Name)
		return fmt.Errorf("failed to open reader %s: %w", reader.Name, err)
	}

	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		if err := s.backend.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing reader after aborted connect")
		}
		return fmt.Errorf("connect to %s aborted: %w", reader.Name, readers.ErrCancelled)
	}
	s.setState(StateListening, reader.Name)
	s.mu.Unlock()
	s.notifyState(StateListening, reader.Name)

	log.Info().Msgf("listening on reader: %s", reader.Name)
	return nil
}

// Disconnect cancels any pending operation and releases the reader. It's
// safe to call in any state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.setState(StateDisconnected, conn.reader.Name)
	s.mu.Unlock()

	conn.broker.Cancel()
	if err := s.backend.Close(); err != nil {
		log.Warn().Err(err).Msgf("error closing reader %s", conn.reader.Name)
	}
	conn.dispatcher.Reset()
	conn.release()
	s.notifyState(StateDisconnected, conn.reader.Name)
	log.Info().Msgf("disconnected from reader: %s", conn.reader.Name)
}

// lose tears a connection down after its reader disappeared.
func (s *Session) lose(conn *connection, cause error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.setState(StateDisconnected, conn.reader.Name)
	s.mu.Unlock()

	err := cause
	if !errors.Is(err, readers.ErrReaderNotFound) {
		err = fmt.Errorf("%w: %w", readers.ErrReaderNotFound, cause)
	}
	conn.broker.Fail(readers.NewTransportError("reader", err))
	if cErr := s.backend.Close(); cErr != nil {
		log.Warn().Err(cErr).Msgf("error closing lost reader %s", conn.reader.Name)
	}
	conn.release()
	s.notifyState(StateDisconnected, conn.reader.Name)
}

// BeginRead waits for the next card, at most timeout.
func (s *Session) BeginRead(timeout time.Duration) (*broker.Future[readers.ReadResult], error) {
	conn, err := s.listening()
	if err != nil {
		return nil, err
	}
	f, err := conn.broker.BeginRead(timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read: %w", err)
	}
	return f, nil
}

// BeginWrite writes an NDEF text record to the card currently on the
// reader. The write runs once, it's never retried.
func (s *Session) BeginWrite(
	text string,
	language string,
	timeout time.Duration,
) (*broker.Future[readers.WriteResult], error) {
	conn, err := s.listening()
	if err != nil {
		return nil, err
	}
	if !readers.HasCapability(s.backend.Metadata(), readers.CapabilityWrite) {
		return nil, readers.ErrWriteUnsupported
	}

	tag, ok := conn.dispatcher.Present()
	if !ok {
		return nil, readers.ErrNoTagPresent
	}

	msg, err := ndef.EncodeText(ndef.TextRecord{Language: language, Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode text record: %w", err)
	}

	f, err := conn.broker.BeginWrite(timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to begin write: %w", err)
	}

	go s.runWrite(conn, f, tag, msg)
	return f, nil
}

func (s *Session) runWrite(
	conn *connection,
	f *broker.Future[readers.WriteResult],
	tag readers.RawTag,
	msg []byte,
) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-f.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Debug().Msgf("writing %d byte NDEF message to tag %s", len(msg), tag.UIDHex())
	err := s.backend.WriteMessage(ctx, tag, msg)
	now := s.clock.Now()
	if err != nil {
		log.Error().Err(err).Msgf("failed to write tag %s", tag.UIDHex())
		conn.broker.CompleteWrite(f, readers.FailedWrite(conn.reader.Name, now, err))
		return
	}

	conn.broker.CompleteWrite(f, readers.WriteResult{
		Success:    true,
		ReaderName: conn.reader.Name,
		WrittenAt:  now,
	})
}

// Cancel resolves the pending operation as cancelled. No-op when nothing
// is pending.
func (s *Session) Cancel() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.broker.Cancel()
	}
}

// OnTagArrived is the detection hook for backends whose platform pushes
// tags to the hosting shell. It never blocks.
func (s *Session) OnTagArrived(tag readers.RawTag) {
	conn, err := s.listening()
	if err != nil {
		log.Debug().Msgf("ignoring tag %s: session not listening", tag.UIDHex())
		return
	}
	conn.dispatcher.TagArrived(tag)
}

// OnTagRemoved is the removal hook for hosting shells that can tell when
// a card left the field.
func (s *Session) OnTagRemoved() {
	conn, err := s.listening()
	if err != nil {
		return
	}
	conn.dispatcher.TagRemoved()
}

// OnDetectionError reports a platform detection failure, such as the user
// dismissing a system scan sheet.
func (s *Session) OnDetectionError(err error) {
	conn, lErr := s.listening()
	if lErr != nil {
		log.Debug().Err(err).Msg("ignoring detection error: session not listening")
		return
	}
	conn.dispatcher.TransportFailed(err)
}

func decodeRead(readerName string, tag readers.RawTag, at time.Time) readers.ReadResult {
	res := readers.ReadResult{
		Success:    true,
		Tag:        &tag,
		ReaderName: readerName,
		ReadAt:     at,
	}
	if len(tag.Payload) == 0 {
		return res
	}

	text, err := ndef.ReadableText(tag.Payload)
	if err != nil {
		log.Warn().Err(err).Msgf("tag %s has no readable NDEF text", tag.UIDHex())
		return res
	}
	res.Text = &text
	return res
}

// handler receives the dispatcher events of one connection.
type handler struct {
	s    *Session
	conn *connection
}

func (h *handler) HandleTag(tag readers.RawTag) {
	if !h.s.current(h.conn) {
		return
	}
	if h.s.hooks.TagDetected != nil {
		h.s.hooks.TagDetected(tag)
	}

	kind, pending := h.conn.broker.Pending()
	if !pending || kind != readers.OpRead {
		return
	}
	h.conn.broker.DeliverRead(decodeRead(h.conn.reader.Name, tag, h.s.clock.Now()))
}

func (h *handler) HandleRemoved() {
	if !h.s.current(h.conn) {
		return
	}
	if h.s.hooks.TagRemoved != nil {
		h.s.hooks.TagRemoved()
	}
}

func (h *handler) HandleError(err error) {
	if !h.s.current(h.conn) {
		return
	}
	kind, pending := h.conn.broker.Pending()
	if !pending {
		return
	}
	// A write reports its own transport errors; only a cancelled scan
	// ends it from here.
	if kind == readers.OpWrite && !errors.Is(err, readers.ErrCancelled) {
		return
	}
	h.conn.broker.Fail(err)
}

func (h *handler) HandleLost(err error) {
	h.s.lose(h.conn, err)
}
