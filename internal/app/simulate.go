// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/accident_detector/internal/clock"
	"github.com/relabs-tech/accident_detector/internal/config"
	"github.com/relabs-tech/accident_detector/internal/engine"
	"github.com/relabs-tech/accident_detector/internal/sensors"
	"github.com/relabs-tech/accident_detector/internal/telemetry"
)

const (
	simMotionStep   = 100 * time.Millisecond
	simPositionStep = time.Second
)

// SimulationResult summarizes a scenario run.
type SimulationResult struct {
	Batches        int
	StopDetected   bool
	StopDetectedAt time.Duration // scenario time of the stop detection
	RequestID      string        // incident id handed out by the simulated server
	ResetAfterAck  bool          // detection state was clear after the ack
}

// RunSimulation replays scenario through an engine on a mock clock for up
// to duration of scenario time, printing every telemetry batch to out. The
// simulated server opens an incident for the first batch that reports a
// shake-stop, and the run ends once that ack has been applied.
func RunSimulation(ctx context.Context, cfg *config.Config, scenario sensors.CrashScenario, duration time.Duration, out io.Writer, logger *slog.Logger) (SimulationResult, error) {
	start := time.Now().Truncate(time.Second)
	clk := clock.NewMock(start)

	var res SimulationResult
	sink := telemetry.SinkFunc(func(_ context.Context, b telemetry.Batch) (telemetry.Ack, error) {
		res.Batches++
		fmt.Fprintf(out, "t=%6.1fs lat=%.5f lng=%.5f speed=%5.1fkm/h peak=%5.2f stop=%t\n",
			clk.Now().Sub(start).Seconds(), b.Lat, b.Lng, b.SpeedKmh, b.PeakAccel, b.ShakeStopDetected)
		if !b.ShakeStopDetected || res.RequestID != "" {
			return telemetry.Ack{}, nil
		}
		res.RequestID = uuid.NewString()
		return telemetry.Ack{AccidentDetected: true, RequestID: res.RequestID}, nil
	})

	eng, err := engine.New(engine.Options{
		Detect:       cfg.Detection(),
		SendInterval: cfg.SendInterval(),
		Clock:        clk,
		Sink:         sink,
		Logger:       logger,
	})
	if err != nil {
		return res, err
	}
	eng.Start(ctx)
	defer eng.Stop()

	// Set never fires tickers, so the engine's own loop stays idle and
	// emission below happens at exact scenario times.
	sendEvery := max(cfg.SendInterval().Round(simMotionStep), simMotionStep)
	for elapsed := time.Duration(0); elapsed <= duration; elapsed += simMotionStep {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		now := start.Add(elapsed)
		clk.Set(now)

		if elapsed%simPositionStep == 0 {
			_ = eng.IngestFix(scenario.PositionAt(elapsed, now))
		}
		_ = eng.IngestMotion(scenario.MotionAt(elapsed))

		if snap := eng.Snapshot(); snap.StopDetected && !res.StopDetected {
			res.StopDetected = true
			res.StopDetectedAt = elapsed
			fmt.Fprintf(out, "t=%6.1fs shake-stop detected (peak %.2f m/s²)\n", elapsed.Seconds(), snap.PeakMagnitude)
		}

		if elapsed > 0 && elapsed%sendEvery == 0 {
			eng.Emit(ctx)
			if res.RequestID != "" {
				res.ResetAfterAck = !eng.Snapshot().StopDetected
				fmt.Fprintf(out, "t=%6.1fs incident %s created, detection reset=%t\n",
					elapsed.Seconds(), res.RequestID, res.ResetAfterAck)
				return res, nil
			}
		}
	}
	return res, nil
}
