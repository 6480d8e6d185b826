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

package readers

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
)

// GenerateReaderID creates a deterministic reader ID from a driver name and
// the reader name reported by the platform, formatted "{driver}-{hash}"
// where hash is 8 lowercase base32 characters of a SHA-256 digest.
//
// PC/SC reader names include the slot index, so two identical readers on
// the same host still get different IDs.
func GenerateReaderID(driverName, readerName string) string {
	normalizedDriver := strings.ToLower(driverName)
	normalizedName := strings.ToLower(strings.TrimSpace(readerName))

	input := fmt.Sprintf("%s\x00%s", normalizedDriver, normalizedName)
	hash := sha256.Sum256([]byte(input))

	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(hash[:5])
	return fmt.Sprintf("%s-%s", normalizedDriver, strings.ToLower(encoded))
}
