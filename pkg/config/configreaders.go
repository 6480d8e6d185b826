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

package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DriverPCSC       = "pcsc"
	DriverForeground = "foreground"
	DriverDelegate   = "delegate"
	DriverSimulated  = "simulated"

	DefaultMaxPages = 0x50
)

type Readers struct {
	Driver         string `toml:"driver" validate:"required,oneof=pcsc foreground delegate simulated"`
	Reader         string `toml:"reader,omitempty"`
	PollInterval   string `toml:"poll_interval" validate:"required,duration,mindur=50ms,maxdur=2s"`
	ReadTimeout    string `toml:"read_timeout" validate:"required,duration,mindur=1ms"`
	WriteTimeout   string `toml:"write_timeout" validate:"required,duration,mindur=1ms"`
	SessionTimeout string `toml:"session_timeout" validate:"required,duration,mindur=1ms"`
	PresenceWindow string `toml:"presence_window" validate:"required,duration"`
	Language       string `toml:"language" validate:"required,language,max=63"`
	MaxPages       int    `toml:"max_pages" validate:"min=5,max=255"`
}

// duration parses a value that already passed validation, falling back to
// def if it somehow didn't.
func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warn().Err(err).Msgf("invalid duration in config: %s", s)
		return def
	}
	return d
}

func (c *Instance) Readers() Readers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Readers
}

func (c *Instance) ReaderDriver() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Readers.Driver
}

func (c *Instance) SetReaderDriver(driver string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Readers.Driver = driver
}

// ReaderName is the preferred reader. Empty picks the first one found.
func (c *Instance) ReaderName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Readers.Reader
}

func (c *Instance) SetReaderName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Readers.Reader = name
}

func (c *Instance) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return duration(c.vals.Readers.PollInterval, 250*time.Millisecond)
}

func (c *Instance) ReadTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return duration(c.vals.Readers.ReadTimeout, 10*time.Second)
}

func (c *Instance) WriteTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return duration(c.vals.Readers.WriteTimeout, 10*time.Second)
}

// SessionTimeout bounds a whole tap-then-write exchange.
func (c *Instance) SessionTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return duration(c.vals.Readers.SessionTimeout, 30*time.Second)
}

func (c *Instance) PresenceWindow() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return duration(c.vals.Readers.PresenceWindow, time.Second)
}

func (c *Instance) Language() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Readers.Language
}

func (c *Instance) MaxPages() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Readers.MaxPages
}
