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
	"fmt"

	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers/syncutil"
)

var claims = struct {
	held map[string]struct{}
	mu   syncutil.Mutex
}{held: make(map[string]struct{})}

// Claim marks a physical reader as listened to by this process. Only one
// session may hold a reader at a time; the returned release func is safe
// to call more than once.
func Claim(key string) (func(), error) {
	claims.mu.Lock()
	defer claims.mu.Unlock()

	if _, ok := claims.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrReaderBusy, key)
	}
	claims.held[key] = struct{}{}

	released := false
	return func() {
		claims.mu.Lock()
		defer claims.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(claims.held, key)
	}, nil
}
