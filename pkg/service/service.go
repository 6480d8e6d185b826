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

// Package service wires a card session to its collaborators: the bridge
// API, the MQTT publisher, LAN discovery and metrics.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/api"
	"github.com/ZaparooProject/zaparoo-tap/pkg/config"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/mobile"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/pcsc"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/session"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/simulated"
	"github.com/ZaparooProject/zaparoo-tap/pkg/service/discovery"
	"github.com/ZaparooProject/zaparoo-tap/pkg/service/metrics"
	"github.com/ZaparooProject/zaparoo-tap/pkg/service/publishers"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const DefaultReconnectInterval = 5 * time.Second

var ErrUnknownDriver = errors.New("unknown reader driver")

// Adapters are the shell side of the mobile backends. A nil adapter is
// replaced by the bridge WebSocket shell when the API is enabled.
type Adapters struct {
	Foreground mobile.ForegroundAdapter
	Delegate   mobile.DelegateAdapter
}

// NewBackend builds the backend variant named by the config's driver.
func NewBackend(cfg *config.Instance, clock clockwork.Clock, adapters Adapters) (readers.Backend, error) {
	switch driver := cfg.ReaderDriver(); driver {
	case config.DriverPCSC:
		return pcsc.New(pcsc.Options{
			Clock:        clock,
			PollInterval: cfg.PollInterval(),
			MaxPages:     cfg.MaxPages(),
		}), nil
	case config.DriverForeground:
		return mobile.NewForeground(adapters.Foreground), nil
	case config.DriverDelegate:
		return mobile.NewDelegate(adapters.Delegate), nil
	case config.DriverSimulated:
		return simulated.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// Options configure a Service.
type Options struct {
	Config   *config.Instance
	Clock    clockwork.Clock
	Adapters Adapters
	// Backend overrides the backend built from the config.
	Backend           readers.Backend
	ReconnectInterval time.Duration
}

// Service keeps the configured reader connected and fans session events
// out to its collaborators.
type Service struct {
	cfg       *config.Instance
	clock     clockwork.Clock
	backend   readers.Backend
	session   *session.Session
	server    *api.Server
	publisher *publishers.MQTTPublisher
	discovery *discovery.Service
	driver    string
	retry     time.Duration
}

func New(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	cfg := opts.Config
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Service{
		cfg:   cfg,
		clock: clock,
		retry: opts.ReconnectInterval,
	}
	if s.retry <= 0 {
		s.retry = DefaultReconnectInterval
	}

	var shell *api.Shell
	adapters := opts.Adapters
	if cfg.APIEnabled() {
		shell = api.NewShell()
		if adapters.Foreground == nil {
			adapters.Foreground = shell.Foreground()
		}
		if adapters.Delegate == nil {
			adapters.Delegate = shell.Delegate()
		}
	}

	s.backend = opts.Backend
	if s.backend == nil {
		b, err := NewBackend(cfg, clock, adapters)
		if err != nil {
			return nil, err
		}
		s.backend = b
	}
	s.driver = s.backend.Metadata().ID

	s.session = session.New(s.backend, session.Options{
		Clock:          clock,
		PresenceWindow: cfg.PresenceWindow(),
		Hooks:          s.hooks(),
	})

	if cfg.APIEnabled() {
		s.server = api.NewServer(cfg, s.session, api.Options{Clock: clock, Shell: shell})
	}

	if mq := cfg.MQTT(); mq.Broker != "" {
		s.publisher = publishers.NewMQTTPublisher(mq.Broker, mq.Topic)
	}

	if cfg.APIEnabled() && cfg.DiscoveryEnabled() {
		s.discovery = discovery.New(discovery.Options{
			Clock:        clock,
			InstanceName: cfg.DiscoveryInstanceName(),
			DeviceID:     cfg.DeviceID(),
			Version:      config.AppVersion,
			Driver:       s.driver,
			Port:         cfg.APIPort(),
			Enabled:      true,
		})
	}

	return s, nil
}

func (s *Service) hooks() session.Hooks {
	return session.Hooks{
		StateChanged: func(state session.State, readerName string) {
			metrics.SetListening(s.driver, state == session.StateListening)
			if s.server != nil {
				s.server.BroadcastState(state, readerName)
			}
		},
		TagDetected: func(tag readers.RawTag) {
			metrics.RecordTag(s.driver)
			if s.server != nil {
				s.server.BroadcastTag(tag)
			}
		},
		TagRemoved: func() {
			if s.server != nil {
				s.server.BroadcastRemoved()
			}
		},
		ReadCompleted: func(res readers.ReadResult) {
			metrics.RecordRead(s.driver, res)
			if s.publisher != nil {
				s.publisher.Publish(res)
			}
			if s.server != nil {
				s.server.BroadcastRead(res)
			}
		},
		WriteCompleted: func(res readers.WriteResult) {
			metrics.RecordWrite(s.driver, res)
			if s.server != nil {
				s.server.BroadcastWrite(res)
			}
		},
	}
}

func (s *Service) Session() *session.Session {
	return s.session
}

func (s *Service) Backend() readers.Backend {
	return s.backend
}

// Server returns the bridge API, or nil when it's disabled.
func (s *Service) Server() *api.Server {
	return s.server
}

// Run starts every collaborator and blocks until ctx is cancelled or the
// bridge API fails.
func (s *Service) Run(ctx context.Context) error {
	log.Info().Msgf("version: %s", config.AppVersion)
	log.Info().Msgf("reader driver: %s", s.driver)

	g, ctx := errgroup.WithContext(ctx)

	if s.publisher != nil {
		if err := s.publisher.Start(); err != nil {
			log.Error().Err(err).Msg("failed to start MQTT publisher")
		}
	}

	if s.discovery != nil {
		if err := s.discovery.Start(); err != nil {
			log.Error().Err(err).Msg("failed to start mDNS discovery")
		}
	}

	g.Go(func() error {
		s.maintainConnection(ctx)
		return nil
	})

	if s.server != nil {
		g.Go(func() error {
			return s.server.Serve(ctx)
		})
	}

	err := g.Wait()
	s.shutdown()
	if err != nil {
		return fmt.Errorf("service stopped: %w", err)
	}
	return nil
}

func (s *Service) shutdown() {
	log.Info().Msg("stopping service")
	s.session.Disconnect()
	if s.discovery != nil {
		s.discovery.Stop()
	}
	if s.publisher != nil {
		s.publisher.Stop()
	}
}

// maintainConnection connects the configured reader and reconnects it
// whenever the session drops back to disconnected.
func (s *Service) maintainConnection(ctx context.Context) {
	ticker := s.clock.NewTicker(s.retry)
	defer ticker.Stop()

	attempts := 0
	connect := func() {
		if s.session.State() != session.StateDisconnected {
			attempts = 0
			return
		}
		attempts++
		err := s.session.Connect(ctx, s.cfg.ReaderName())
		switch {
		case err == nil:
			attempts = 0
		case attempts == 1:
			log.Warn().Err(err).Msg("failed to connect reader, retrying")
		default:
			log.Debug().Err(err).Msgf("reader connect attempt %d failed", attempts)
		}
	}

	connect()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("reader manager shutting down via context cancellation")
			return
		case <-ticker.Chan():
			connect()
		}
	}
}
