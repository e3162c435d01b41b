// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package detect

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Gravity is the magnitude reported for a device at rest.
const Gravity = 9.8

// AtRestAccel is the synthetic acceleration substituted for stale input:
// gravity only, on the vertical axis.
var AtRestAccel = r3.Vec{Z: -Gravity}

// StalenessMonitor decides when motion input has gone silent.
type StalenessMonitor struct {
	StaleAfter time.Duration
}

// Stale reports whether the last motion event is older than StaleAfter.
// Before any motion event has arrived input is not considered stale.
func (m StalenessMonitor) Stale(lastEventAt, now time.Time) bool {
	if lastEventAt.IsZero() {
		return false
	}
	return now.Sub(lastEventAt) > m.StaleAfter
}

// Check feeds an at-rest reading into d when input is stale. The countdown
// for a silent device starts at its last real event.
func (m StalenessMonitor) Check(d *Detector, lastEventAt, now time.Time) (bool, Event) {
	if !m.Stale(lastEventAt, now) {
		return false, EventNone
	}
	return true, d.ObserveAtRest(lastEventAt, now)
}
