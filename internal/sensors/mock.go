// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/relabs-tech/accident_detector/internal/clock"
	"github.com/relabs-tech/accident_detector/internal/detect"
	"github.com/relabs-tech/accident_detector/internal/engine"
	"github.com/relabs-tech/accident_detector/internal/gps"
	"github.com/relabs-tech/accident_detector/internal/imu"
)

// CrashScenario scripts a drive that ends in a crash: the vehicle cruises
// along a straight heading with road vibration, takes a hard impact, then
// stands still.
type CrashScenario struct {
	StartLat, StartLng float64
	HeadingDeg         float64
	SpeedKmh           float64
	Cruise             time.Duration
	Impact             time.Duration
	ImpactMagnitude    float64
}

// DefaultScenario is a 30 s drive at 50 km/h followed by a 300 ms, 30 m/s²
// impact.
func DefaultScenario() CrashScenario {
	return CrashScenario{
		StartLat:        12.9716,
		StartLng:        77.5946,
		HeadingDeg:      45,
		SpeedKmh:        50,
		Cruise:          30 * time.Second,
		Impact:          300 * time.Millisecond,
		ImpactMagnitude: 30,
	}
}

// MotionAt returns the motion reading elapsed into the scenario.
func (s CrashScenario) MotionAt(elapsed time.Duration) imu.MotionEvent {
	t := elapsed.Seconds()
	switch {
	case elapsed < s.Cruise:
		// road vibration stays well inside the still band
		return imu.NewEvent(
			r3.Vec{X: 0.6 * math.Sin(t*7), Y: 0.4 * math.Cos(t*5), Z: -detect.Gravity + 0.8*math.Sin(t*11)},
			r3.Vec{X: 2 * math.Sin(t), Y: 1.5 * math.Cos(t*0.7), Z: math.Mod(t*3, 10)},
		)
	case elapsed < s.Cruise+s.Impact:
		return imu.NewEvent(
			r3.Vec{X: s.ImpactMagnitude, Z: -detect.Gravity},
			r3.Vec{X: 120, Y: -80, Z: 45},
		)
	default:
		return imu.NewEvent(detect.AtRestAccel, r3.Vec{})
	}
}

// PositionAt returns the fix elapsed into the scenario, stamped at now.
// The vehicle stops moving at the impact.
func (s CrashScenario) PositionAt(elapsed time.Duration, now time.Time) gps.Fix {
	moving := min(elapsed, s.Cruise)
	meters := s.SpeedKmh / 3.6 * moving.Seconds()

	heading := s.HeadingDeg * math.Pi / 180
	lat := s.StartLat + (meters*math.Cos(heading)/6371000)*180/math.Pi
	lng := s.StartLng + (meters*math.Sin(heading)/(6371000*math.Cos(s.StartLat*math.Pi/180)))*180/math.Pi

	speed := 0.0
	if elapsed < s.Cruise {
		speed = s.SpeedKmh / 3.6
	}
	return gps.Fix{
		Latitude:  &lat,
		Longitude: &lng,
		Speed:     &speed,
		Timestamp: now.UnixMilli(),
	}
}

// MockSource replays a CrashScenario on a clock. Motion is delivered every
// MotionInterval and positions every PositionInterval, both measured from
// the moment of subscription.
type MockSource struct {
	Scenario         CrashScenario
	Clock            clock.Clock
	MotionInterval   time.Duration
	PositionInterval time.Duration
}

// NewMockSource creates a mock source on the real clock with a 100 ms
// motion rate and 1 s position rate.
func NewMockSource(s CrashScenario) *MockSource {
	return &MockSource{
		Scenario:         s,
		Clock:            clock.Real{},
		MotionInterval:   100 * time.Millisecond,
		PositionInterval: time.Second,
	}
}

func (m *MockSource) SubscribePositions(ctx context.Context, h engine.PositionHandler) (engine.Subscription, error) {
	return m.run(ctx, m.PositionInterval, func(elapsed time.Duration, now time.Time) {
		h(m.Scenario.PositionAt(elapsed, now))
	}), nil
}

func (m *MockSource) SubscribeMotion(ctx context.Context, h engine.MotionHandler) (engine.Subscription, error) {
	return m.run(ctx, m.MotionInterval, func(elapsed time.Duration, _ time.Time) {
		h(m.Scenario.MotionAt(elapsed))
	}), nil
}

func (m *MockSource) run(ctx context.Context, interval time.Duration, emit func(elapsed time.Duration, now time.Time)) engine.Subscription {
	start := m.Clock.Now()
	ticker := m.Clock.NewTicker(interval)
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C():
				emit(now.Sub(start), now)
			}
		}
	}()

	var once sync.Once
	return engine.SubscriptionFunc(func() error {
		once.Do(func() {
			cancel()
			<-done
		})
		return nil
	})
}
