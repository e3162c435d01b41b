// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry defines the composite sample sent to the ingestion
// endpoint and the sinks that deliver it.
package telemetry

import (
	"context"
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDelivery wraps every transient submission failure. Callers drop the
// batch; the next tick resubmits current state.
var ErrDelivery = errors.New("telemetry: delivery failed")

// Batch is one emission tick worth of state. Accel and Gyro are nil when no
// motion reading is known. RunID names the engine run that produced it;
// asynchronous acks echo it back.
type Batch struct {
	RunID             string
	Lat               float64
	Lng               float64
	SpeedKmh          float64
	Accel             *r3.Vec
	Gyro              *r3.Vec
	ShakeStopDetected bool
	PeakAccel         float64
}

// Payload is the JSON body accepted by the ingestion endpoint.
type Payload struct {
	RunID             string   `json:"run_id,omitempty"`
	Lat               float64  `json:"lat"`
	Lng               float64  `json:"lng"`
	SpeedKmh          float64  `json:"speed_kmh"`
	AccelX            *float64 `json:"accel_x,omitempty"`
	AccelY            *float64 `json:"accel_y,omitempty"`
	AccelZ            *float64 `json:"accel_z,omitempty"`
	GyroX             *float64 `json:"gyro_x,omitempty"`
	GyroY             *float64 `json:"gyro_y,omitempty"`
	GyroZ             *float64 `json:"gyro_z,omitempty"`
	ShakeStopDetected bool     `json:"shake_stop_detected"`
	PeakAccel         float64  `json:"peak_accel"`
}

// Payload converts the batch into its wire form.
func (b Batch) Payload() Payload {
	p := Payload{
		RunID:             b.RunID,
		Lat:               b.Lat,
		Lng:               b.Lng,
		SpeedKmh:          b.SpeedKmh,
		ShakeStopDetected: b.ShakeStopDetected,
		PeakAccel:         b.PeakAccel,
	}
	if b.Accel != nil {
		x, y, z := b.Accel.X, b.Accel.Y, b.Accel.Z
		p.AccelX, p.AccelY, p.AccelZ = &x, &y, &z
	}
	if b.Gyro != nil {
		x, y, z := b.Gyro.X, b.Gyro.Y, b.Gyro.Z
		p.GyroX, p.GyroY, p.GyroZ = &x, &y, &z
	}
	return p
}

// Ack is the optional reply from the ingestion side. Acks delivered out of
// band carry the RunID of the payload they answer.
type Ack struct {
	AccidentDetected bool   `json:"accident_detected"`
	RequestID        string `json:"request_id,omitempty"`
	RunID            string `json:"run_id,omitempty"`
}

// IncidentCreated reports whether the server opened an incident for this
// episode. A positive detection without a request id (for example during a
// server-side cooldown) does not count.
func (a Ack) IncidentCreated() bool {
	return a.AccidentDetected && a.RequestID != ""
}

// Sink delivers a batch. Sinks with asynchronous acknowledgements return a
// zero Ack.
type Sink interface {
	Submit(ctx context.Context, b Batch) (Ack, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, b Batch) (Ack, error)

func (f SinkFunc) Submit(ctx context.Context, b Batch) (Ack, error) { return f(ctx, b) }
