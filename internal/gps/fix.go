// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformed marks a fix that lacks usable coordinates. Such fixes are
// dropped and leave sampler state unchanged.
var ErrMalformed = errors.New("gps: malformed fix")

// Fix is a single location reading as delivered by a location capability,
// suitable for JSON and MQTT.
type Fix struct {
	Latitude  *float64 `json:"latitude"`            // decimal degrees
	Longitude *float64 `json:"longitude"`           // decimal degrees
	Speed     *float64 `json:"speed,omitempty"`     // m/s over ground, absent when unknown
	Timestamp int64    `json:"timestamp,omitempty"` // ms since Unix epoch
}

// PositionSample is a validated position fix.
type PositionSample struct {
	Lat       float64
	Lng       float64
	SpeedKmh  *float64 // platform-reported speed, nil when the platform has none
	Timestamp time.Time
}

// Sample converts the wire fix into a PositionSample. A zero timestamp is
// replaced with now.
func (f Fix) Sample(now time.Time) (PositionSample, error) {
	if f.Latitude == nil || f.Longitude == nil {
		return PositionSample{}, fmt.Errorf("%w: missing coordinates", ErrMalformed)
	}
	p := PositionSample{
		Lat:       *f.Latitude,
		Lng:       *f.Longitude,
		Timestamp: now,
	}
	if f.Timestamp != 0 {
		p.Timestamp = time.UnixMilli(f.Timestamp)
	}
	if f.Speed != nil && !math.IsNaN(*f.Speed) && *f.Speed >= 0 {
		kmh := *f.Speed * 3.6
		p.SpeedKmh = &kmh
	}
	if err := p.validate(); err != nil {
		return PositionSample{}, err
	}
	return p, nil
}

func (p PositionSample) validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: non-finite coordinates", ErrMalformed)
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: coordinates out of range (%f, %f)", ErrMalformed, p.Lat, p.Lng)
	}
	return nil
}

// NewFix builds a wire fix from a position sample.
func NewFix(p PositionSample) Fix {
	lat, lng := p.Lat, p.Lng
	f := Fix{Latitude: &lat, Longitude: &lng, Timestamp: p.Timestamp.UnixMilli()}
	if p.SpeedKmh != nil {
		ms := *p.SpeedKmh / 3.6
		f.Speed = &ms
	}
	return f
}
