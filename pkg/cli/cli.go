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

// Package cli holds the command line front end of the tap daemon.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-tap/pkg/config"
	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers"
	"github.com/adrg/xdg"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Action is what a command line asked for.
type Action int

const (
	ActionNone Action = iota
	ActionVersion
	ActionList
	ActionRead
	ActionWrite
	ActionServe
)

type Flags struct {
	set      *flag.FlagSet
	List     *bool
	Read     *bool
	Write    *string
	Lang     *string
	Reader   *string
	Driver   *string
	Timeout  *time.Duration
	Serve    *bool
	Simulate *bool
	Debug    *bool
	Version  *bool
}

// SetupFlags defines the flags on fs.
func SetupFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		set: fs,
		List: fs.Bool(
			"list",
			false,
			"list available readers and exit",
		),
		Read: fs.Bool(
			"read",
			false,
			"print the next tapped card and exit",
		),
		Write: fs.String(
			"write",
			"",
			"write text to the next tapped card",
		),
		Lang: fs.String(
			"lang",
			"",
			"language code of written text (default from config)",
		),
		Reader: fs.String(
			"reader",
			"",
			"reader name or ID to use (default first reader)",
		),
		Driver: fs.String(
			"driver",
			"",
			"reader driver: pcsc, foreground, delegate or simulated",
		),
		Timeout: fs.Duration(
			"timeout",
			0,
			"how long to wait for a card (default from config)",
		),
		Serve: fs.Bool(
			"serve",
			false,
			"run the bridge service until interrupted",
		),
		Simulate: fs.Bool(
			"simulate",
			false,
			"use the simulated reader, same as -driver simulated",
		),
		Debug: fs.Bool(
			"debug",
			false,
			"enable debug logging",
		),
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
	}
}

func (f *Flags) isFlagPassed(name string) bool {
	found := false
	f.set.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// Action picks what to do from the parsed flags. Serving is the default.
func (f *Flags) Action() (Action, error) {
	if *f.Version {
		return ActionVersion, nil
	}
	if *f.Timeout < 0 {
		return ActionNone, errors.New("timeout must be positive")
	}

	picked := 0
	action := ActionServe
	if *f.List {
		picked++
		action = ActionList
	}
	if *f.Read {
		picked++
		action = ActionRead
	}
	if f.isFlagPassed("write") {
		if *f.Write == "" {
			return ActionNone, errors.New("write flag requires a value")
		}
		picked++
		action = ActionWrite
	}
	if *f.Serve {
		picked++
	}
	if picked > 1 {
		return ActionNone, errors.New("only one of -list, -read, -write and -serve may be used")
	}
	return action, nil
}

// Apply overrides config values for this run only. Nothing is saved.
func (f *Flags) Apply(cfg *config.Instance) {
	if *f.Simulate {
		cfg.SetReaderDriver(config.DriverSimulated)
	} else if *f.Driver != "" {
		cfg.SetReaderDriver(*f.Driver)
	}
	if *f.Reader != "" {
		cfg.SetReaderName(*f.Reader)
	}
	if *f.Debug {
		cfg.SetDebugLogging(true)
	}
}

// PrintVersion writes the version line.
func PrintVersion(w io.Writer, driver string) {
	_, _ = fmt.Fprintf(w, "Zaparoo Tap v%s (%s)\n", config.AppVersion, driver)
}

// LogDir is where the rotated log file is written.
func LogDir() string {
	return filepath.Join(xdg.StateHome, config.AppName)
}

// Setup initializes logging, the user config and error reporting.
//
//nolint:gocritic // config struct copied for immutability
func Setup(defaultConfig config.Values, writers []io.Writer) (*config.Instance, error) {
	if err := helpers.InitLogging(LogDir(), writers); err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(afero.NewOsFs(), config.DefaultConfigDir(), defaultConfig)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	helpers.SetDebugLogging(cfg.DebugLogging())
	return cfg, nil
}

// InitTelemetry turns on opt-in error reporting for the configured driver.
func InitTelemetry(cfg *config.Instance) {
	err := telemetry.Init(telemetry.Options{
		DSN:      config.SentryDSN,
		DeviceID: cfg.DeviceID(),
		Version:  config.AppVersion,
		Driver:   cfg.ReaderDriver(),
		Enabled:  cfg.ErrorReporting(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}
}
