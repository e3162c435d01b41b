// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"errors"
	"fmt"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// ErrUnsupportedSentence is returned for NMEA sentences that carry no
// position (GSA, GSV, ...). Callers skip them silently.
var ErrUnsupportedSentence = errors.New("gps: unsupported NMEA sentence")

const knotsToMetersPerSecond = 1852.0 / 3600.0

// ParseNMEA turns one NMEA line into a PositionSample stamped with now.
// RMC sentences carry speed over ground; GGA sentences only carry a
// position, so the sampler derives speed for them.
func ParseNMEA(line string, now time.Time) (PositionSample, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return PositionSample{}, ErrUnsupportedSentence
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return PositionSample{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var fix Fix
	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return PositionSample{}, fmt.Errorf("%w: RMC validity %q", ErrMalformed, m.Validity)
		}
		speed := m.Speed * knotsToMetersPerSecond
		fix = Fix{Latitude: &m.Latitude, Longitude: &m.Longitude, Speed: &speed}
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid {
			return PositionSample{}, fmt.Errorf("%w: GGA without fix", ErrMalformed)
		}
		fix = Fix{Latitude: &m.Latitude, Longitude: &m.Longitude}
	default:
		return PositionSample{}, ErrUnsupportedSentence
	}

	return fix.Sample(now)
}
