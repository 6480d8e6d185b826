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

package api

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/ZaparooProject/zaparoo-tap/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-tap/pkg/api/validation"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

var errDetectionFailed = errors.New("detection failed")

func sendError(ms *melody.Session, err error) {
	data, mErr := json.Marshal(models.NewErrorEvent(err))
	if mErr != nil {
		log.Error().Err(mErr).Msg("marshalling error event")
		return
	}
	if wErr := ms.Write(data); wErr != nil {
		log.Error().Err(wErr).Msg("error sending error event")
	}
}

// handleWSMessage applies one frame from a host shell to the session.
func (s *Server) handleWSMessage(ms *melody.Session, msg []byte) {
	// ping command for heartbeat operation
	if bytes.Equal(msg, []byte("ping")) {
		if err := ms.Write([]byte("pong")); err != nil {
			log.Error().Err(err).Msg("sending pong")
		}
		return
	}

	var in models.InboundMessage
	if err := validation.ValidateAndUnmarshal(msg, &in); err != nil {
		log.Debug().Err(err).Msg("invalid websocket message")
		sendError(ms, err)
		return
	}

	switch in.Type {
	case models.MessageTag:
		var req models.TagRequest
		if err := validation.ValidateAndUnmarshal(in.Params, &req); err != nil {
			sendError(ms, err)
			return
		}
		tag, err := req.RawTag()
		if err != nil {
			sendError(ms, err)
			return
		}
		s.session.OnTagArrived(tag)
	case models.MessageRemoved:
		s.session.OnTagRemoved()
	case models.MessageError:
		var req models.DetectionErrorRequest
		if len(in.Params) > 0 {
			if err := json.Unmarshal(in.Params, &req); err != nil {
				sendError(ms, validation.ErrInvalidParams)
				return
			}
		}
		s.session.OnDetectionError(detectionError(req))
	case models.MessageWriteAck:
		if s.shell == nil {
			sendError(ms, ErrNoShell)
			return
		}
		var ack WriteAck
		if err := validation.ValidateAndUnmarshal(in.Params, &ack); err != nil {
			sendError(ms, err)
			return
		}
		s.shell.ack(ack)
	}
}

func detectionError(req models.DetectionErrorRequest) error {
	switch {
	case req.Cancelled:
		return readers.ErrCancelled
	case req.Error != "":
		return errors.New(req.Error)
	default:
		return errDetectionFailed
	}
}
