// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "time"

// Sampler tracks the latest motion reading and the time the last event
// arrived. It is not safe for concurrent use.
type Sampler struct {
	latest      MotionSample
	lastEventAt time.Time
}

// Ingest converts ev into a MotionSample stamped with at and updates the
// watermark. Malformed events leave the sampler untouched.
func (s *Sampler) Ingest(ev MotionEvent, at time.Time) (MotionSample, error) {
	sample, err := ev.Sample(at)
	if err != nil {
		return MotionSample{}, err
	}
	s.latest = sample
	s.lastEventAt = at
	return sample, nil
}

// Latest returns the most recent sample and whether any has been seen.
func (s *Sampler) Latest() (MotionSample, bool) {
	return s.latest, !s.lastEventAt.IsZero()
}

// LastEventAt is the arrival time of the latest motion event, zero if none.
func (s *Sampler) LastEventAt() time.Time {
	return s.lastEventAt
}

func (s *Sampler) Reset() {
	*s = Sampler{}
}
