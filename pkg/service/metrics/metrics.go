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

// Package metrics exposes Prometheus counters for card sessions.
package metrics

import (
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "zaptap"

var (
	TagsDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tags_detected_total",
		Help:      "Total number of tags detected after duplicate suppression",
	}, []string{"driver"})

	ReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reads_total",
		Help:      "Total number of resolved reads by outcome",
	}, []string{"driver", "outcome"})

	WritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "writes_total",
		Help:      "Total number of resolved writes by outcome",
	}, []string{"driver", "outcome"})

	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_listening",
		Help:      "1 while a session is listening on a reader",
	}, []string{"driver"})
)

// Outcome labels a resolved operation: success, timeout, cancelled or
// error.
func Outcome(success bool, err error) string {
	if success {
		return "success"
	}
	switch readers.ErrorMessage(err) {
	case "timeout":
		return "timeout"
	case "cancelled":
		return "cancelled"
	default:
		return "error"
	}
}

func driverLabel(driver string) string {
	if driver == "" {
		return "unknown"
	}
	return driver
}

func RecordTag(driver string) {
	TagsDetectedTotal.WithLabelValues(driverLabel(driver)).Inc()
}

func RecordRead(driver string, res readers.ReadResult) {
	ReadsTotal.WithLabelValues(driverLabel(driver), Outcome(res.Success, res.Err)).Inc()
}

func RecordWrite(driver string, res readers.WriteResult) {
	WritesTotal.WithLabelValues(driverLabel(driver), Outcome(res.Success, res.Err)).Inc()
}

func SetListening(driver string, listening bool) {
	v := 0.0
	if listening {
		v = 1
	}
	SessionState.WithLabelValues(driverLabel(driver)).Set(v)
}
