// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package detect implements shake-then-stop crash detection over a stream
// of acceleration magnitudes.
//
// A crash is approximated as a strong shake (impact) followed by the device
// lying still for a sustained period. Between the still and shake
// thresholds lies a hysteresis band: readings there interrupt a stillness
// countdown without starting a new episode.
package detect

import "time"

// Phase is the detector state derived from State.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseShakeDetected
	PhaseAccumulatingStill
	PhaseStopDetected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseShakeDetected:
		return "shake_detected"
	case PhaseAccumulatingStill:
		return "accumulating_still"
	case PhaseStopDetected:
		return "stop_detected"
	default:
		return "unknown"
	}
}

// Event reports what an observation changed.
type Event int

const (
	EventNone Event = iota
	EventShake      // a new shake episode started
	EventStop       // stillness after a shake reached the required duration
)

// State is the detection state. A zero time means "not set".
type State struct {
	ShakeDetectedAt time.Time
	StillStartAt    time.Time
	StopDetected    bool
	PeakMagnitude   float64
}

func (s State) Phase() Phase {
	switch {
	case s.StopDetected:
		return PhaseStopDetected
	case s.ShakeDetectedAt.IsZero():
		return PhaseIdle
	case s.StillStartAt.IsZero():
		return PhaseShakeDetected
	default:
		return PhaseAccumulatingStill
	}
}

// Detector is the shake-stop state machine. It is not safe for concurrent
// use; callers serialize observations.
type Detector struct {
	cfg    Config
	state  State
	window *Window
}

func NewDetector(cfg Config) *Detector {
	return &Detector{
		cfg:    cfg,
		window: NewWindow(cfg.WindowRetention),
	}
}

// Observe feeds one magnitude reading taken at t.
func (d *Detector) Observe(t time.Time, m float64) Event {
	d.window.Add(t, m)
	if m > d.state.PeakMagnitude {
		d.state.PeakMagnitude = m
	}

	switch {
	case m >= d.cfg.ShakeThreshold:
		d.state.ShakeDetectedAt = t
		d.state.StillStartAt = time.Time{}
		d.state.StopDetected = false
		return EventShake
	case d.state.ShakeDetectedAt.IsZero():
		return EventNone
	case m < d.cfg.StillThreshold:
		return d.accumulateStill(t, t)
	default:
		// hysteresis band
		d.state.StillStartAt = time.Time{}
		return EventNone
	}
}

// ObserveAtRest applies a synthetic at-rest reading at now for a device
// that has been silent since silentSince. It only ever advances the
// stillness countdown and never starts an episode.
func (d *Detector) ObserveAtRest(silentSince, now time.Time) Event {
	if d.state.ShakeDetectedAt.IsZero() {
		return EventNone
	}
	return d.accumulateStill(silentSince, now)
}

func (d *Detector) accumulateStill(stillSince, now time.Time) Event {
	if d.state.StillStartAt.IsZero() {
		d.state.StillStartAt = stillSince
	}
	if elapsed(d.state.StillStartAt, now) >= d.cfg.StillDuration && !d.state.StopDetected {
		d.state.StopDetected = true
		return EventStop
	}
	return EventNone
}

// elapsed clamps backward clock jumps to zero so they can never satisfy a
// duration.
func elapsed(from, to time.Time) time.Duration {
	if d := to.Sub(from); d > 0 {
		return d
	}
	return 0
}

// State returns a copy of the current state.
func (d *Detector) State() State { return d.state }

// Window exposes the magnitude window for inspection.
func (d *Detector) Window() *Window { return d.window }

// Config returns the thresholds in use.
func (d *Detector) Config() Config { return d.cfg }

// Reset clears the whole episode: timestamps, flag, peak and window.
func (d *Detector) Reset() {
	d.state = State{}
	d.window.Reset()
}
