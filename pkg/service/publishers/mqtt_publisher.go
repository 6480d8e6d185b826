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

// Package publishers hands successful reads to collaborators outside the
// process, such as the member lookup service.
package publishers

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	queueSize   = 32
	connectWait = 5 * time.Second
)

// ReadMessage is the payload published for each successful read.
type ReadMessage struct {
	ReadAt time.Time `json:"read_at"`
	Text   *string   `json:"text"`
	UID    string    `json:"uid"`
	Reader string    `json:"reader"`
}

func NewReadMessage(res readers.ReadResult) ReadMessage {
	msg := ReadMessage{
		ReadAt: res.ReadAt,
		Text:   res.Text,
		Reader: res.ReaderName,
	}
	if res.Tag != nil {
		msg.UID = res.Tag.UIDHex()
	}
	return msg
}

// MQTTPublisher publishes successful reads to an MQTT broker.
type MQTTPublisher struct {
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	results   chan readers.ReadResult
	stopCh    chan struct{}
	broker    string
	topic     string
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewMQTTPublisher creates a publisher for broker, a URL such as
// tcp://localhost:1883.
func NewMQTTPublisher(broker, topic string) *MQTTPublisher {
	return &MQTTPublisher{
		broker:    broker,
		topic:     topic,
		newClient: mqtt.NewClient,
		results:   make(chan readers.ReadResult, queueSize),
		stopCh:    make(chan struct{}),
	}
}

// Start connects to the broker and begins publishing queued reads.
func (p *MQTTPublisher) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetClientID("zaparoo-tap-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Msgf("mqtt publisher: connected to %s", p.broker)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt publisher: connection lost")
	}

	p.client = p.newClient(opts)

	// with connect retry the token only completes once connected
	token := p.client.Connect()
	if !token.WaitTimeout(connectWait) {
		log.Warn().Msgf("mqtt publisher: %s not reachable yet, retrying in background", p.broker)
	} else if token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Info().Msgf("mqtt publisher: publishing reads to %s", p.topic)

	p.wg.Add(1)
	go p.publishResults()

	return nil
}

// Publish queues a read result. Failed reads are ignored and it never
// blocks: a full queue drops the result.
func (p *MQTTPublisher) Publish(res readers.ReadResult) {
	if !res.Success {
		return
	}
	select {
	case <-p.stopCh:
	case p.results <- res:
	default:
		log.Warn().Msg("mqtt publisher: queue full, dropping read")
	}
}

// Stop disconnects from the broker and waits for the publish loop.
func (p *MQTTPublisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()

	if p.client != nil && p.client.IsConnected() {
		log.Debug().Msg("mqtt publisher: disconnecting")
		p.client.Disconnect(250)
	}
}

func (p *MQTTPublisher) publishResults() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			log.Debug().Msg("mqtt publisher: stopping read publisher")
			return
		case res := <-p.results:
			payload, err := json.Marshal(NewReadMessage(res))
			if err != nil {
				log.Error().Err(err).Msg("mqtt publisher: failed to marshal read")
				continue
			}

			token := p.client.Publish(p.topic, 1, false, payload)
			if token.Wait() && token.Error() != nil {
				log.Error().Err(token.Error()).Msg("mqtt publisher: failed to publish read")
				continue
			}

			log.Debug().Msgf("mqtt publisher: published read from %s", res.ReaderName)
		}
	}
}
