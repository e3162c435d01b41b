// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package engine runs accident detection: it owns the sensor
// subscriptions, feeds samples through the shake-stop detector and
// periodically emits telemetry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/relabs-tech/accident_detector/internal/clock"
	"github.com/relabs-tech/accident_detector/internal/detect"
	"github.com/relabs-tech/accident_detector/internal/gps"
	"github.com/relabs-tech/accident_detector/internal/imu"
	"github.com/relabs-tech/accident_detector/internal/observability"
	"github.com/relabs-tech/accident_detector/internal/telemetry"
)

const (
	DefaultSendInterval  = 3 * time.Second
	DefaultSubmitTimeout = 5 * time.Second
)

// Options configures an Engine. Sink is required; sources may be nil, in
// which case samples only arrive through the Ingest methods.
type Options struct {
	Detect        detect.Config
	SendInterval  time.Duration
	SubmitTimeout time.Duration
	Clock         clock.Clock
	Sink          telemetry.Sink
	Positions     PositionSource
	Motion        MotionSource
	Metrics       *observability.DetectorCollector
	Logger        *slog.Logger
	SessionID     string
}

// Engine is one independent detector instance.
type Engine struct {
	cfg           detect.Config
	sendInterval  time.Duration
	submitTimeout time.Duration
	clock         clock.Clock
	sink          telemetry.Sink
	positionSrc   PositionSource
	motionSrc     MotionSource
	metrics       *observability.DetectorCollector
	logger        *slog.Logger
	sessionID     string

	// lifeMu serializes Start and Stop.
	lifeMu sync.Mutex

	// mu guards everything below. Samples, staleness checks, emission
	// snapshots and acks all take it, so they are processed one at a time.
	mu        sync.Mutex
	enabled   bool
	epoch     uint64
	positions gps.Sampler
	motion    imu.Sampler
	detector  *detect.Detector
	staleness detect.StalenessMonitor
	subs      []Subscription
	cancel    context.CancelFunc
	done      chan struct{}
}

// New validates opts and returns a stopped engine.
func New(opts Options) (*Engine, error) {
	if opts.Sink == nil {
		return nil, errors.New("engine: telemetry sink is required")
	}
	if err := opts.Detect.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if opts.SendInterval <= 0 {
		opts.SendInterval = DefaultSendInterval
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = DefaultSubmitTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}

	return &Engine{
		cfg:           opts.Detect,
		sendInterval:  opts.SendInterval,
		submitTimeout: opts.SubmitTimeout,
		clock:         opts.Clock,
		sink:          opts.Sink,
		positionSrc:   opts.Positions,
		motionSrc:     opts.Motion,
		metrics:       opts.Metrics,
		logger:        opts.Logger.With("session", opts.SessionID),
		sessionID:     opts.SessionID,
		detector:      detect.NewDetector(opts.Detect),
		staleness:     detect.StalenessMonitor{StaleAfter: opts.Detect.StaleAfter},
	}, nil
}

// SessionID identifies this engine instance.
func (e *Engine) SessionID() string { return e.sessionID }

// Enabled reports whether the engine is started.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Start resets all state, subscribes the sensor sources and starts the
// emission ticker. It is a no-op while the engine is already running. A
// source that fails or is denied is logged and skipped; the engine stays
// enabled and simply has less input.
func (e *Engine) Start(ctx context.Context) {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.mu.Lock()
	if e.enabled {
		e.mu.Unlock()
		return
	}
	e.enabled = true
	e.epoch++
	e.resetLocked()
	e.mu.Unlock()

	// Sources may deliver synchronously, so subscribe without holding mu.
	var subs []Subscription
	if e.positionSrc != nil {
		sub, err := e.positionSrc.SubscribePositions(ctx, func(f gps.Fix) { _ = e.IngestFix(f) })
		if sub = e.checkSubscribe("position", sub, err); sub != nil {
			subs = append(subs, sub)
		}
	}
	if e.motionSrc != nil {
		sub, err := e.motionSrc.SubscribeMotion(ctx, func(ev imu.MotionEvent) { _ = e.IngestMotion(ev) })
		if sub = e.checkSubscribe("motion", sub, err); sub != nil {
			subs = append(subs, sub)
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ticker := e.clock.NewTicker(e.sendInterval)
	done := make(chan struct{})

	e.mu.Lock()
	e.subs = subs
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go e.run(loopCtx, ticker, done)
	e.logger.Info("accident detection started", "send_interval", e.sendInterval, "sources", len(subs))
}

func (e *Engine) checkSubscribe(kind string, sub Subscription, err error) Subscription {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		e.logger.Warn("sensor permission denied, continuing without it", "sensor", kind, "err", err)
		return nil
	case err != nil:
		e.logger.Warn("sensor subscription failed, continuing without it", "sensor", kind, "err", err)
		return nil
	}
	return sub
}

// Stop tears down subscriptions and the ticker and resets state. It is safe
// to call repeatedly or before Start.
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.mu.Lock()
	wasEnabled := e.enabled
	e.enabled = false
	e.epoch++
	e.resetLocked()
	subs, cancel, done := e.subs, e.cancel, e.done
	e.subs, e.cancel, e.done = nil, nil, nil
	e.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			e.logger.Debug("closing sensor subscription", "err", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if wasEnabled {
		e.logger.Info("accident detection stopped")
	}
}

func (e *Engine) run(ctx context.Context, ticker clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			e.Emit(ctx)
		}
	}
}

// resetLocked clears positions, motion and the detection episode.
func (e *Engine) resetLocked() {
	e.positions.Reset()
	e.motion.Reset()
	e.detector.Reset()
	e.metrics.SetDetection(false, 0)
}

// IngestFix converts a wire fix and ingests it.
func (e *Engine) IngestFix(f gps.Fix) error {
	p, err := f.Sample(e.clock.Now())
	if err != nil {
		e.metrics.IncDropped(observability.KindPosition)
		e.logger.Debug("dropping position fix", "err", err)
		return err
	}
	return e.IngestPosition(p)
}

// IngestPosition feeds a position sample to the geolocation sampler.
// Samples arriving while the engine is stopped are ignored.
func (e *Engine) IngestPosition(p gps.PositionSample) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return nil
	}
	if err := e.positions.Ingest(p); err != nil {
		e.metrics.IncDropped(observability.KindPosition)
		e.logger.Debug("dropping position fix", "err", err)
		return err
	}
	return nil
}

// IngestMotion stamps ev with the current time and runs it through the
// detector.
func (e *Engine) IngestMotion(ev imu.MotionEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return nil
	}

	sample, err := e.motion.Ingest(ev, e.clock.Now())
	if err != nil {
		e.metrics.IncDropped(observability.KindMotion)
		e.logger.Debug("dropping motion event", "err", err)
		return err
	}
	e.handleEvent(e.detector.Observe(sample.Timestamp, sample.Magnitude), sample.Magnitude)
	return nil
}

// CheckStaleness runs the staleness monitor against the current time and
// reports whether motion input is stale.
func (e *Engine) CheckStaleness() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return false
	}
	return e.checkStalenessLocked(e.clock.Now())
}

func (e *Engine) checkStalenessLocked(now time.Time) bool {
	stale, ev := e.staleness.Check(e.detector, e.motion.LastEventAt(), now)
	if stale {
		e.handleEvent(ev, detect.Gravity)
	}
	return stale
}

func (e *Engine) handleEvent(ev detect.Event, magnitude float64) {
	st := e.detector.State()
	switch ev {
	case detect.EventShake:
		e.metrics.IncShakes()
		e.logger.Info("shake detected", "magnitude", magnitude)
	case detect.EventStop:
		e.metrics.IncStops()
		e.logger.Warn("device still after shake, probable crash",
			"shake_at", st.ShakeDetectedAt, "still_since", st.StillStartAt, "peak", st.PeakMagnitude)
	}
	e.metrics.SetDetection(st.StopDetected, st.PeakMagnitude)
}

// Emit runs one emission tick: it snapshots current state into a batch,
// submits it and applies the acknowledgement. Nothing is sent while the
// engine is stopped or before the first position fix.
func (e *Engine) Emit(ctx context.Context) {
	batch, epoch, ok := e.prepareBatch()
	if !ok {
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, e.submitTimeout)
	ack, err := e.sink.Submit(submitCtx, batch)
	cancel()
	if err != nil {
		e.metrics.IncDeliveryFailures()
		e.logger.Debug("telemetry submission failed", "err", err)
		return
	}
	e.metrics.IncBatchesSent()
	e.acknowledge(epoch, ack)
}

func (e *Engine) prepareBatch() (telemetry.Batch, uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return telemetry.Batch{}, 0, false
	}
	// Staleness is evaluated every tick, sent or not, so a stop completed
	// by silence shows up in state and metrics even without a position.
	stale := e.checkStalenessLocked(e.clock.Now())
	pos, ok := e.positions.CurrentPosition()
	if !ok {
		return telemetry.Batch{}, 0, false
	}

	b := telemetry.Batch{
		RunID:    e.runIDLocked(),
		Lat:      pos.Lat,
		Lng:      pos.Lng,
		SpeedKmh: e.positions.CurrentSpeed(),
	}
	if stale {
		accel := detect.AtRestAccel
		b.Accel = &accel
		b.Gyro = &r3.Vec{}
	} else if m, ok := e.motion.Latest(); ok {
		accel, gyro := m.Accel, m.Gyro
		b.Accel = &accel
		b.Gyro = &gyro
	}

	st := e.detector.State()
	b.ShakeStopDetected = st.StopDetected
	b.PeakAccel = st.PeakMagnitude
	return b, e.epoch, true
}

// runIDLocked names the current Start/Stop cycle on the wire.
func (e *Engine) runIDLocked() string {
	return fmt.Sprintf("%s/%d", e.sessionID, e.epoch)
}

// Acknowledge applies an acknowledgement that arrived out of band, for
// example on an MQTT ack topic. The ack must echo the RunID of the batch it
// answers; acks for another engine or an earlier run are dropped.
func (e *Engine) Acknowledge(ack telemetry.Ack) {
	e.mu.Lock()
	epoch := e.epoch
	current := ack.RunID == e.runIDLocked()
	e.mu.Unlock()
	if !current {
		if ack.IncidentCreated() {
			e.logger.Debug("ignoring ack for another run", "run_id", ack.RunID, "request_id", ack.RequestID)
		}
		return
	}
	e.acknowledge(epoch, ack)
}

// acknowledge resets the episode when the server created an incident. Acks
// for a session that has since been stopped or restarted are ignored.
func (e *Engine) acknowledge(epoch uint64, ack telemetry.Ack) {
	if !ack.IncidentCreated() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled || epoch != e.epoch {
		return
	}
	e.detector.Reset()
	e.metrics.IncIncidents()
	e.metrics.SetDetection(false, 0)
	e.logger.Info("incident created, detection reset", "request_id", ack.RequestID)
}

// Snapshot is a read-only view of engine state.
type Snapshot struct {
	SessionID       string    `json:"session_id"`
	RunID           string    `json:"run_id"`
	Enabled         bool      `json:"enabled"`
	Phase           string    `json:"phase"`
	ShakeDetectedAt time.Time `json:"shake_detected_at,omitzero"`
	StillStartAt    time.Time `json:"still_start_at,omitzero"`
	StopDetected    bool      `json:"shake_stop_detected"`
	PeakMagnitude   float64   `json:"peak_accel"`
	WindowSize      int       `json:"window_size"`
	WindowMax       float64   `json:"window_max"`
	HasPosition     bool      `json:"has_position"`
	Lat             float64   `json:"lat,omitempty"`
	Lng             float64   `json:"lng,omitempty"`
	SpeedKmh        float64   `json:"speed_kmh"`
	LastMotionAt    time.Time `json:"last_motion_at,omitzero"`
	MotionStale     bool      `json:"motion_stale"`
}

// Snapshot returns the current state without mutating it.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.detector.State()
	s := Snapshot{
		SessionID:       e.sessionID,
		RunID:           e.runIDLocked(),
		Enabled:         e.enabled,
		Phase:           st.Phase().String(),
		ShakeDetectedAt: st.ShakeDetectedAt,
		StillStartAt:    st.StillStartAt,
		StopDetected:    st.StopDetected,
		PeakMagnitude:   st.PeakMagnitude,
		WindowSize:      e.detector.Window().Len(),
		WindowMax:       e.detector.Window().Max(),
		SpeedKmh:        e.positions.CurrentSpeed(),
		LastMotionAt:    e.motion.LastEventAt(),
		MotionStale:     e.staleness.Stale(e.motion.LastEventAt(), e.clock.Now()),
	}
	if pos, ok := e.positions.CurrentPosition(); ok {
		s.HasPosition = true
		s.Lat, s.Lng = pos.Lat, pos.Lng
	}
	return s
}
