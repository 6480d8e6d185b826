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

// Package api is the host bridge: an HTTP and WebSocket surface over one
// card session, used by host shells to push detected tags and by clients
// to start reads and writes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/api/middleware"
	"github.com/ZaparooProject/zaparoo-tap/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-tap/pkg/api/validation"
	"github.com/ZaparooProject/zaparoo-tap/pkg/config"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/broker"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/session"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	maxBodySize       = 64 * 1024
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Options configure a Server.
type Options struct {
	Clock clockwork.Clock
	// Shell is attached to the WebSocket when the backend is driven by a
	// host shell. Optional.
	Shell *Shell
}

// Server serves the bridge API for one session.
type Server struct {
	cfg     *config.Instance
	session *session.Session
	shell   *Shell
	ws      *melody.Melody
	limiter *middleware.IPRateLimiter
	filter  *middleware.IPFilter
	handler http.Handler
}

func NewServer(cfg *config.Instance, sess *session.Session, opts Options) *Server {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Server{
		cfg:     cfg,
		session: sess,
		shell:   opts.Shell,
		ws:      melody.New(),
		limiter: middleware.NewIPRateLimiter(clock),
		filter:  middleware.NewIPFilter(cfg.AllowedIPs()),
	}

	origins := cfg.AllowedOrigins()
	s.ws.Upgrader.CheckOrigin = func(r *http.Request) bool {
		return originAllowed(origins, r.Header.Get("Origin"))
	}
	s.ws.HandleConnect(func(ms *melody.Session) {
		log.Info().Msgf("websocket client connected: %s", ms.Request.RemoteAddr)
	})
	s.ws.HandleDisconnect(func(ms *melody.Session) {
		log.Info().Msgf("websocket client disconnected: %s", ms.Request.RemoteAddr)
	})
	s.ws.HandleMessage(middleware.WebSocketRateLimitHandler(s.limiter, s.handleWSMessage))

	if s.shell != nil {
		s.shell.attach(s.ws)
	}

	s.handler = s.routes(origins)
	return s
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

func (s *Server) routes(origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*", "capacitor://*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.NoCache)
	r.Use(middleware.HTTPIPFilterMiddleware(s.filter))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			if err := s.ws.HandleRequest(w, r); err != nil {
				log.Error().Err(err).Msg("handling websocket request")
			}
		})
		r.Handle("/metrics", promhttp.Handler())

		r.Group(func(r chi.Router) {
			r.Use(middleware.HTTPRateLimitMiddleware(s.limiter))

			r.Get("/readers", s.handleReaders)
			r.Get("/session", s.handleSession)
			r.Post("/session/connect", s.handleConnect)
			r.Post("/session/disconnect", s.handleDisconnect)
			r.Post("/read", s.handleRead)
			r.Post("/write", s.handleWrite)
			r.Post("/cancel", s.handleCancel)
			r.Post("/tags", s.handleTagArrived)
			r.Delete("/tags", s.handleTagRemoved)
		})
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.APIListen())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.APIListen(), err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled. WebSocket clients are
// disconnected on shutdown.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.limiter.StartCleanup(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Msgf("bridge API listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("bridge API server failed: %w", err)
	case <-ctx.Done():
	}

	log.Debug().Msg("shutting down bridge API")
	if err := s.ws.Close(); err != nil && !errors.Is(err, melody.ErrClosed) {
		log.Warn().Err(err).Msg("error closing websocket sessions")
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down bridge API: %w", err)
	}
	<-errCh
	return nil
}

func (s *Server) broadcast(eventType string, data any) {
	if s.ws.Len() == 0 {
		return
	}
	payload, err := json.Marshal(models.Event{Type: eventType, Data: data})
	if err != nil {
		log.Error().Err(err).Msgf("marshalling %s event", eventType)
		return
	}
	if err := s.ws.Broadcast(payload); err != nil && !errors.Is(err, melody.ErrClosed) {
		log.Error().Err(err).Msgf("broadcasting %s event", eventType)
	}
}

func (s *Server) BroadcastState(state session.State, readerName string) {
	s.broadcast(models.EventState, models.StateEvent{State: state, Reader: readerName})
}

func (s *Server) BroadcastTag(tag readers.RawTag) {
	s.broadcast(models.EventTag, models.NewTagEvent(tag))
}

func (s *Server) BroadcastRemoved() {
	s.broadcast(models.EventRemoved, nil)
}

func (s *Server) BroadcastRead(res readers.ReadResult) {
	s.broadcast(models.EventRead, res)
}

func (s *Server) BroadcastWrite(res readers.WriteResult) {
	s.broadcast(models.EventWrite, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("error encoding response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), models.ErrorResponse{Error: err.Error()})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr),
		errors.Is(err, validation.ErrMissingParams),
		errors.Is(err, validation.ErrInvalidParams),
		errors.Is(err, broker.ErrInvalidTimeout):
		return http.StatusBadRequest
	case errors.Is(err, readers.ErrReaderNotFound):
		return http.StatusNotFound
	case errors.Is(err, readers.ErrReaderBusy),
		errors.Is(err, readers.ErrOperationInProgress),
		errors.Is(err, readers.ErrNotConnected),
		errors.Is(err, readers.ErrNoTagPresent):
		return http.StatusConflict
	case errors.Is(err, readers.ErrPlatformUnsupported),
		errors.Is(err, readers.ErrWriteUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody validates a JSON body into dest. An empty body is accepted
// when optional is set and validated as the zero value.
func decodeBody[T any](r *http.Request, dest *T, optional bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) == 0 && optional {
		return validation.DefaultValidator.Validate(dest)
	}
	return validation.ValidateAndUnmarshal(body, dest)
}

func (s *Server) handleReaders(w http.ResponseWriter, _ *http.Request) {
	ds, err := s.session.ListReaders()
	if err != nil {
		writeError(w, err)
		return
	}
	if ds == nil {
		ds = []readers.Descriptor{}
	}
	writeJSON(w, http.StatusOK, models.ReadersResponse{
		Driver:  s.session.Driver().ID,
		Readers: ds,
	})
}

func (s *Server) status() models.SessionResponse {
	return models.SessionResponse{
		Status: s.session.Status(),
		Driver: s.session.Driver().ID,
	}
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req models.ConnectRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	name := req.Reader
	if name == "" {
		name = s.cfg.ReaderName()
	}

	if err := s.session.Connect(r.Context(), name); err != nil {
		log.Warn().Err(err).Msg("bridge connect failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.session.Disconnect()
	writeJSON(w, http.StatusOK, s.status())
}

// handleRead blocks until the read resolves. A client that goes away
// leaves the read pending; its result is still broadcast.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	var req models.ReadRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	timeout, err := validation.ParseTimeout(req.Timeout, s.cfg.ReadTimeout())
	if err != nil {
		writeError(w, err)
		return
	}

	f, err := s.session.BeginRead(timeout)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := f.Wait(r.Context())
	if err != nil {
		log.Debug().Err(err).Msg("read request abandoned")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req models.WriteRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	timeout, err := validation.ParseTimeout(req.Timeout, s.cfg.WriteTimeout())
	if err != nil {
		writeError(w, err)
		return
	}
	lang := req.Language
	if lang == "" {
		lang = s.cfg.Language()
	}

	f, err := s.session.BeginWrite(req.Text, lang, timeout)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := f.Wait(r.Context())
	if err != nil {
		log.Debug().Err(err).Msg("write request abandoned")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	s.session.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTagArrived(w http.ResponseWriter, r *http.Request) {
	var req models.TagRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	tag, err := req.RawTag()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	s.session.OnTagArrived(tag)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTagRemoved(w http.ResponseWriter, _ *http.Request) {
	s.session.OnTagRemoved()
	w.WriteHeader(http.StatusAccepted)
}
