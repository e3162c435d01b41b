// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrMalformed marks a motion event without any acceleration vector.
var ErrMalformed = errors.New("imu: malformed motion event")

// Vector is an acceleration vector in m/s² as sent by a motion capability.
// Components that the platform cannot measure are null.
type Vector struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// RotationRate is the gyroscope reading in deg/s.
type RotationRate struct {
	Alpha *float64 `json:"alpha"`
	Beta  *float64 `json:"beta"`
	Gamma *float64 `json:"gamma"`
}

// MotionEvent is a single device motion reading, shaped like the browser
// DeviceMotionEvent so phones can stream it unchanged.
type MotionEvent struct {
	AccelerationIncludingGravity *Vector       `json:"accelerationIncludingGravity,omitempty"`
	Acceleration                 *Vector       `json:"acceleration,omitempty"`
	RotationRate                 *RotationRate `json:"rotationRate,omitempty"`
}

// MotionSample is a validated motion reading with its magnitude.
type MotionSample struct {
	Accel     r3.Vec // m/s², gravity included when available
	Gyro      r3.Vec // deg/s
	Magnitude float64
	Timestamp time.Time
}

func (v *Vector) present() bool {
	return v != nil && (v.X != nil || v.Y != nil || v.Z != nil)
}

func (v *Vector) vec() r3.Vec {
	return r3.Vec{X: orZero(v.X), Y: orZero(v.Y), Z: orZero(v.Z)}
}

func orZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Sample extracts the acceleration-including-gravity vector (falling back to
// pure acceleration) and the rotation rate, and computes the magnitude.
func (ev MotionEvent) Sample(at time.Time) (MotionSample, error) {
	var accel r3.Vec
	switch {
	case ev.AccelerationIncludingGravity.present():
		accel = ev.AccelerationIncludingGravity.vec()
	case ev.Acceleration.present():
		accel = ev.Acceleration.vec()
	default:
		return MotionSample{}, fmt.Errorf("%w: no acceleration vector", ErrMalformed)
	}

	var gyro r3.Vec
	if r := ev.RotationRate; r != nil {
		gyro = r3.Vec{X: orZero(r.Alpha), Y: orZero(r.Beta), Z: orZero(r.Gamma)}
	}

	mag := r3.Norm(accel)
	if math.IsNaN(mag) || math.IsInf(mag, 0) || !finite(gyro) {
		return MotionSample{}, fmt.Errorf("%w: non-finite components", ErrMalformed)
	}

	return MotionSample{
		Accel:     accel,
		Gyro:      gyro,
		Magnitude: mag,
		Timestamp: at,
	}, nil
}

func finite(v r3.Vec) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// NewEvent builds a wire event carrying accel (with gravity) and gyro.
func NewEvent(accel, gyro r3.Vec) MotionEvent {
	ax, ay, az := accel.X, accel.Y, accel.Z
	gx, gy, gz := gyro.X, gyro.Y, gyro.Z
	return MotionEvent{
		AccelerationIncludingGravity: &Vector{X: &ax, Y: &ay, Z: &az},
		RotationRate:                 &RotationRate{Alpha: &gx, Beta: &gy, Gamma: &gz},
	}
}
