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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/zaparoo-tap/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-tap/pkg/cli"
	"github.com/ZaparooProject/zaparoo-tap/pkg/config"
	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/session"
	"github.com/ZaparooProject/zaparoo-tap/pkg/service"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags(flag.CommandLine)
	flag.Parse()

	action, err := flags.Action()
	if err != nil {
		return err
	}

	var logWriters []io.Writer
	if action == cli.ActionServe {
		logWriters = []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	}

	cfg, err := cli.Setup(config.BaseDefaults, logWriters)
	if err != nil {
		return err
	}
	flags.Apply(cfg)
	helpers.SetDebugLogging(cfg.DebugLogging())

	if action == cli.ActionVersion {
		cli.PrintVersion(os.Stdout, cfg.ReaderDriver())
		return nil
	}

	cli.InitTelemetry(cfg)
	defer telemetry.Close()

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if action == cli.ActionServe {
		svc, err := service.New(service.Options{Config: cfg})
		if err != nil {
			return fmt.Errorf("error creating service: %w", err)
		}
		log.Info().Msg("started in daemon mode")
		if err := svc.Run(ctx); err != nil {
			log.Error().Err(err).Msg("service stopped with error")
			return err
		}
		return nil
	}

	backend, err := service.NewBackend(cfg, clockwork.NewRealClock(), service.Adapters{})
	if err != nil {
		return fmt.Errorf("error creating reader backend: %w", err)
	}
	sess := session.New(backend, session.Options{PresenceWindow: cfg.PresenceWindow()})

	switch action {
	case cli.ActionList:
		return cli.List(sess, os.Stdout)
	case cli.ActionRead:
		timeout := *flags.Timeout
		if timeout == 0 {
			timeout = cfg.ReadTimeout()
		}
		return cli.Read(ctx, sess, cfg.ReaderName(), timeout, os.Stdout)
	case cli.ActionWrite:
		wait := *flags.Timeout
		if wait == 0 {
			wait = cfg.SessionTimeout()
		}
		lang := *flags.Lang
		if lang == "" {
			lang = cfg.Language()
		}
		return cli.Write(ctx, sess, cli.WriteOptions{
			Reader:   cfg.ReaderName(),
			Text:     *flags.Write,
			Language: lang,
			Wait:     wait,
			Timeout:  cfg.WriteTimeout(),
		}, os.Stdout)
	default:
		return errors.New("no action")
	}
}
