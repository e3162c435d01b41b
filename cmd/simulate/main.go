// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/accident_detector/internal/app"
	"github.com/relabs-tech/accident_detector/internal/config"
	"github.com/relabs-tech/accident_detector/internal/sensors"
)

func main() {
	configPath := flag.String("config", "", "optional KEY=VALUE config file for detection tunables")
	duration := flag.Duration("duration", 2*time.Minute, "scenario time to simulate")
	cruise := flag.Duration("cruise", 30*time.Second, "driving time before the impact")
	impact := flag.Float64("impact", 30, "impact acceleration in m/s²")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	logger := app.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scenario := sensors.DefaultScenario()
	scenario.Cruise = *cruise
	scenario.ImpactMagnitude = *impact

	res, err := app.RunSimulation(ctx, cfg, scenario, *duration, os.Stdout, logger)
	if err != nil {
		logger.Error("simulation failed", "err", err)
		os.Exit(1)
	}
	logger.Info("simulation finished",
		"batches", res.Batches, "stop_detected", res.StopDetected,
		"stop_at", res.StopDetectedAt, "request_id", res.RequestID, "reset", res.ResetAfterAck)
	if !res.StopDetected {
		os.Exit(2)
	}
}
