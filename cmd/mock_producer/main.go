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
	configPath := flag.String("config", "detector_config.txt", "path to the KEY=VALUE config file")
	cruise := flag.Duration("cruise", 30*time.Second, "driving time before the impact")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := app.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scenario := sensors.DefaultScenario()
	scenario.Cruise = *cruise

	logger.Info("starting mock sensor producer (MQTT)")
	if err := app.RunMockProducer(ctx, cfg, scenario, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}
