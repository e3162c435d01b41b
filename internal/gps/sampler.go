// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"math"
)

const earthRadiusMeters = 6371000.0

// Sampler keeps the latest position fix and the current speed estimate.
// It is not safe for concurrent use; the engine serializes access.
type Sampler struct {
	last     *PositionSample
	speedKmh float64
}

// Ingest validates p and makes it the latest position. Speed comes from the
// platform when reported, otherwise from the great-circle distance to the
// previous fix over the elapsed time. When the elapsed time is not positive
// (duplicate or out-of-order fix) the previous speed is kept.
func (s *Sampler) Ingest(p PositionSample) error {
	if err := p.validate(); err != nil {
		return err
	}

	prev := s.last
	cur := p
	s.last = &cur

	if p.SpeedKmh != nil {
		s.speedKmh = *p.SpeedKmh
		return nil
	}
	if prev == nil {
		return nil
	}

	elapsed := p.Timestamp.Sub(prev.Timestamp).Hours()
	if elapsed <= 0 {
		return nil
	}
	km := Distance(prev.Lat, prev.Lng, p.Lat, p.Lng) / 1000
	s.speedKmh = km / elapsed
	return nil
}

// CurrentSpeed returns the latest speed estimate in km/h, 0 when unknown.
func (s *Sampler) CurrentSpeed() float64 {
	return s.speedKmh
}

// CurrentPosition returns the latest fix, if any.
func (s *Sampler) CurrentPosition() (PositionSample, bool) {
	if s.last == nil {
		return PositionSample{}, false
	}
	return *s.last, true
}

// Reset forgets the latest fix and speed.
func (s *Sampler) Reset() {
	s.last = nil
	s.speedKmh = 0
}

// Distance returns the haversine distance in meters between two points
// given in decimal degrees.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	phi1 := lat1 * rad
	phi2 := lat2 * rad
	dphi := (lat2 - lat1) * rad
	dlambda := (lng2 - lng1) * rad

	a := math.Sin(dphi/2)*math.Sin(dphi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlambda/2)*math.Sin(dlambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
