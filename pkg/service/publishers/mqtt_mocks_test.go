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

package publishers

import (
	"encoding/json"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/helpers/syncutil"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockBroker stands in for the MQTT client, decoding every published read
// so tests can assert on the message the member lookup service would see.
type mockBroker struct {
	connectErr  error
	publishErr  error
	opts        *mqtt.ClientOptions
	sent        []sentRead
	disconnects int
	unreachable bool
	connected   bool
	mu          syncutil.Mutex
}

type sentRead struct {
	topic    string
	raw      []byte
	msg      ReadMessage
	qos      byte
	retained bool
}

func newMockBroker() *mockBroker {
	return &mockBroker{}
}

// dial matches mqtt.NewClient so Start can be pointed at the mock.
func (m *mockBroker) dial(opts *mqtt.ClientOptions) mqtt.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
	return m
}

func (m *mockBroker) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockBroker) lastSent() (sentRead, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentRead{}, false
	}
	return m.sent[len(m.sent)-1], true
}

func (m *mockBroker) disconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

func (m *mockBroker) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockBroker) IsConnectionOpen() bool {
	return m.IsConnected()
}

func (m *mockBroker) Connect() mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.unreachable:
		// connect retry keeps the token pending until the broker answers
		return &mockToken{}
	case m.connectErr != nil:
		return &mockToken{done: true, err: m.connectErr}
	}
	m.connected = true
	return &mockToken{done: true}
}

func (m *mockBroker) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnects++
}

func (m *mockBroker) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishErr != nil {
		return &mockToken{done: true, err: m.publishErr}
	}

	raw, _ := payload.([]byte)
	sent := sentRead{topic: topic, qos: qos, retained: retained, raw: raw}
	_ = json.Unmarshal(raw, &sent.msg)
	m.sent = append(m.sent, sent)
	return &mockToken{done: true}
}

func (*mockBroker) Subscribe(_ string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	return &mockToken{done: true}
}

func (*mockBroker) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return &mockToken{done: true}
}

func (*mockBroker) Unsubscribe(_ ...string) mqtt.Token {
	return &mockToken{done: true}
}

func (*mockBroker) AddRoute(_ string, _ mqtt.MessageHandler) {}

func (m *mockBroker) OptionsReader() mqtt.ClientOptionsReader {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opts == nil {
		return mqtt.ClientOptionsReader{}
	}
	return mqtt.NewOptionsReader(m.opts)
}

type mockToken struct {
	err  error
	done bool
}

func (t *mockToken) Wait() bool {
	return t.done
}

func (t *mockToken) WaitTimeout(_ time.Duration) bool {
	return t.done
}

func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}

func (t *mockToken) Error() error {
	return t.err
}
