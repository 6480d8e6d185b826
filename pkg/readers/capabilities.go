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

import "fmt"

type Capability string

const (
	// CapabilityWrite means the backend can write NDEF messages.
	CapabilityWrite Capability = "write"
	// CapabilityUID means detected tags carry their hardware UID.
	CapabilityUID Capability = "uid"
	// CapabilityRemoval means the backend reports when a card leaves.
	CapabilityRemoval Capability = "removal"
)

// HasCapability checks if a driver advertises a specific capability.
func HasCapability(md DriverMetadata, capability Capability) bool {
	for _, c := range md.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// SelectReader picks a reader from a discovery snapshot. An empty
// preference matches the first reader; otherwise the name or ID must match
// exactly.
func SelectReader(ds []Descriptor, preferred string) (Descriptor, error) {
	if len(ds) == 0 {
		return Descriptor{}, fmt.Errorf("%w: no readers available", ErrReaderNotFound)
	}
	if preferred == "" {
		return ds[0], nil
	}
	for _, d := range ds {
		if d.Name == preferred || d.ID == preferred {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrReaderNotFound, preferred)
}
