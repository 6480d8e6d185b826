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

package discovery

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeServer struct {
	shutdowns atomic.Int32
}

func (f *fakeServer) Shutdown() {
	f.shutdowns.Add(1)
}

var lan = net.Interface{
	Name:  "eth0",
	Flags: net.FlagUp | net.FlagMulticast | net.FlagBroadcast,
}

func newTestService(opts Options, fail *atomic.Bool, srv *fakeServer, got *[]string) *Service {
	s := New(opts)
	s.interfaces = func() ([]net.Interface, error) {
		return []net.Interface{lan}, nil
	}
	s.register = func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (server, error) {
		if fail.Load() {
			return nil, errors.New("no route to host")
		}
		if got != nil {
			*got = append([]string{instance, service, domain}, text...)
		}
		return srv, nil
	}
	return s
}

func TestFilterInterfaces(t *testing.T) {
	t.Parallel()

	ifaces := []net.Interface{
		lan,
		{Name: "lo", Flags: net.FlagUp | net.FlagLoopback | net.FlagMulticast},
		{Name: "eth1", Flags: net.FlagMulticast},
		{Name: "ppp0", Flags: net.FlagUp | net.FlagPointToPoint},
		{Name: "docker0", Flags: net.FlagUp | net.FlagMulticast},
		{Name: "wg0", Flags: net.FlagUp | net.FlagMulticast},
		{Name: "wlan0", Flags: net.FlagUp | net.FlagMulticast},
	}

	got := filterInterfaces(ifaces)
	names := make([]string, len(got))
	for i, iface := range got {
		names[i] = iface.Name
	}
	assert.Equal(t, []string{"eth0", "wlan0"}, names)
}

func TestStart_Registers(t *testing.T) {
	t.Parallel()

	srv := &fakeServer{}
	var fail atomic.Bool
	var got []string
	s := newTestService(Options{
		Enabled:      true,
		InstanceName: "front-desk",
		DeviceID:     "0b7c6e3a-5f7e-4b8c-9e0a-1234567890ab",
		Version:      "1.2.0",
		Driver:       "pcsc",
		Port:         7498,
	}, &fail, srv, &got)

	require.NoError(t, s.Start())
	assert.True(t, s.Registered())
	assert.Equal(t, "front-desk", s.InstanceName())
	assert.Equal(t, []string{
		"front-desk", "_zaptap._tcp", "local.",
		"id=0b7c6e3a-5f7e-4b8c-9e0a-1234567890ab", "version=1.2.0", "driver=pcsc",
	}, got)

	s.Stop()
	s.Stop()
	assert.False(t, s.Registered())
	assert.Equal(t, int32(1), srv.shutdowns.Load())
}

func TestStart_Disabled(t *testing.T) {
	t.Parallel()

	s := New(Options{})
	require.NoError(t, s.Start())
	assert.False(t, s.Registered())
	assert.Empty(t, s.InstanceName())
	s.Stop()
}

func TestStart_RetriesUntilNetworkIsUp(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	srv := &fakeServer{}
	var fail atomic.Bool
	fail.Store(true)
	s := newTestService(Options{Enabled: true, Clock: clock, InstanceName: "kiosk"}, &fail, srv, nil)

	require.NoError(t, s.Start())
	assert.False(t, s.Registered())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	fail.Store(false)
	clock.Advance(retryInterval)

	require.Eventually(t, s.Registered, 5*time.Second, time.Millisecond)
	s.Stop()
	assert.Equal(t, int32(1), srv.shutdowns.Load())
}

func TestStart_RetryGivesUp(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var fail atomic.Bool
	fail.Store(true)
	s := newTestService(Options{Enabled: true, Clock: clock, InstanceName: "kiosk"}, &fail, &fakeServer{}, nil)

	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for range int(maxRetryDuration / retryInterval) {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(retryInterval)
	}

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("retry loop did not give up")
	}
	assert.False(t, s.Registered())
	s.Stop()
}

func TestStopDuringRetry(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	s := newTestService(Options{Enabled: true, Clock: clockwork.NewFakeClock()}, &fail, &fakeServer{}, nil)

	require.NoError(t, s.Start())
	s.Stop()
	assert.False(t, s.Registered())
}

func TestResolveInstanceName(t *testing.T) {
	t.Parallel()

	s := New(Options{InstanceName: "configured"})
	assert.Equal(t, "configured", s.resolveInstanceName())

	s = New(Options{})
	assert.NotEmpty(t, s.resolveInstanceName())
}
