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
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/api/validation"
)

// Poll interval bounds, kept in step with the Readers.PollInterval tag.
const (
	MinPollInterval = 50 * time.Millisecond
	MaxPollInterval = 2 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

var validate = validation.NewValidator()

// Validate checks every section of vals.
func Validate(vals *Values) error {
	if err := validate.Validate(vals); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
