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

package ndef

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

const (
	typeText = "T"
	typeURI  = "U"
)

// uriPrefixes are the NFC Forum URI RTD identifier codes.
var uriPrefixes = []string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

// unmarshalMessage parses NDEF message bytes. The parser can panic on
// some truncated inputs, those are reported as malformed.
func unmarshalMessage(data []byte) (msg *ndef.Message, err error) {
	if len(data) == 0 {
		return nil, ErrNoNDEF
	}

	defer func() {
		if r := recover(); r != nil {
			msg = nil
			err = fmt.Errorf("%w: %v", ErrMalformedNDEF, r)
		}
	}()

	msg = &ndef.Message{}
	if _, uerr := msg.Unmarshal(data); uerr != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedNDEF, uerr)
	}
	return msg, nil
}

const (
	flagCF = 0x20
	flagSR = 0x10
	flagIL = 0x08
)

// recordPayload returns the record's payload bytes exactly as stored on
// the card, joined across chunks. go-ndef's typed payloads normalise the
// text status byte on the way through, which hides malformed language
// lengths and mangles UTF-16 text.
func recordPayload(rec *ndef.Record) ([]byte, error) {
	raw, err := rec.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal record: %w", ErrMalformedNDEF, err)
	}

	var payload []byte
	for len(raw) > 0 {
		header := raw[0]
		pos := 2
		var payloadLen int
		if header&flagSR != 0 {
			if len(raw) < pos+1 {
				return nil, fmt.Errorf("%w: truncated record header", ErrMalformedNDEF)
			}
			payloadLen = int(raw[pos])
			pos++
		} else {
			if len(raw) < pos+4 {
				return nil, fmt.Errorf("%w: truncated record header", ErrMalformedNDEF)
			}
			payloadLen = int(binary.BigEndian.Uint32(raw[pos : pos+4]))
			pos += 4
		}
		idLen := 0
		if header&flagIL != 0 {
			if len(raw) < pos+1 {
				return nil, fmt.Errorf("%w: truncated record header", ErrMalformedNDEF)
			}
			idLen = int(raw[pos])
			pos++
		}
		start := pos + int(raw[1]) + idLen
		end := start + payloadLen
		if end > len(raw) || end < start {
			return nil, fmt.Errorf("%w: record payload exceeds record", ErrMalformedNDEF)
		}
		payload = append(payload, raw[start:end]...)
		raw = raw[end:]
		if header&flagCF == 0 {
			break
		}
	}
	return payload, nil
}

func wellKnownPayload(msg *ndef.Message, typ string) ([]byte, bool, error) {
	for _, rec := range msg.Records {
		if rec.TNF() != ndef.NFCForumWellKnownType || rec.Type() != typ {
			continue
		}
		payload, err := recordPayload(rec)
		if err != nil {
			return nil, true, err
		}
		return payload, true, nil
	}
	return nil, false, nil
}

// DecodeText returns the first text record of an NDEF message.
func DecodeText(data []byte) (TextRecord, error) {
	msg, err := unmarshalMessage(data)
	if err != nil {
		return TextRecord{}, err
	}

	payload, found, err := wellKnownPayload(msg, typeText)
	if err != nil {
		return TextRecord{}, err
	}
	if !found {
		return TextRecord{}, ErrNoNDEF
	}
	return DecodeTextPayload(payload)
}

// ReadableText returns the text of the first text record, or the expanded
// URI of the first URI record when the message has no text record.
func ReadableText(data []byte) (string, error) {
	rec, err := DecodeText(data)
	if err == nil {
		return rec.Text, nil
	}
	if !errors.Is(err, ErrNoNDEF) {
		return "", err
	}

	msg, err := unmarshalMessage(data)
	if err != nil {
		return "", err
	}
	payload, found, err := wellKnownPayload(msg, typeURI)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNoNDEF
	}
	return decodeURIPayload(payload)
}

func decodeURIPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("%w: empty URI payload", ErrMalformedNDEF)
	}
	prefix := ""
	if int(payload[0]) < len(uriPrefixes) {
		prefix = uriPrefixes[payload[0]]
	}
	return prefix + string(payload[1:]), nil
}
