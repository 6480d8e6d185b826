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

package broker

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Future is the handle of a pending operation. It resolves exactly once.
type Future[T any] struct {
	value   T
	done    chan struct{}
	id      string
	claimed atomic.Bool
}

func newFuture[T any](id string) *Future[T] {
	return &Future[T]{
		id:   id,
		done: make(chan struct{}),
	}
}

// claim is the compare-and-set resolution point. Only the caller that gets
// true may complete the future.
func (f *Future[T]) claim() bool {
	return f.claimed.CompareAndSwap(false, true)
}

func (f *Future[T]) complete(v T) {
	f.value = v
	close(f.done)
}

// ID identifies the operation in logs and bridge messages.
func (f *Future[T]) ID() string {
	return f.id
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the result without blocking. ok is false while the
// operation is still pending.
func (f *Future[T]) Result() (v T, ok bool) {
	select {
	case <-f.done:
		return f.value, true
	default:
		return v, false
	}
}

// Wait blocks until the operation resolves or ctx is done. Giving up on
// the wait doesn't cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("waiting for operation %s: %w", f.id, ctx.Err())
	}
}
