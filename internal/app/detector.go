// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/relabs-tech/accident_detector/internal/clock"
	"github.com/relabs-tech/accident_detector/internal/config"
	"github.com/relabs-tech/accident_detector/internal/engine"
	"github.com/relabs-tech/accident_detector/internal/observability"
	"github.com/relabs-tech/accident_detector/internal/sensors"
	"github.com/relabs-tech/accident_detector/internal/telemetry"
)

// RunDetector runs the detection engine with the sources and sink selected
// in cfg, plus the web server, until ctx is cancelled.
func RunDetector(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewDetectorCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	var client mqtt.Client
	if cfg.UsesMQTT() {
		client, err = connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDetector, logger)
		if err != nil {
			return err
		}
		defer client.Disconnect(mqttDisconnectMS)
	}

	sessionID := uuid.NewString()
	bridge := sensors.NewBridge(logger.With("component", "bridge"))
	mqttSource := &sensors.MQTTSource{
		Client:        client,
		PositionTopic: cfg.TopicGPS,
		MotionTopic:   cfg.TopicMotion,
		Logger:        logger,
	}

	eng, err := engine.New(engine.Options{
		Detect:        cfg.Detection(),
		SendInterval:  cfg.SendInterval(),
		SubmitTimeout: cfg.IngestTimeout(),
		Clock:         clock.Real{},
		Sink:          telemetrySink(cfg, client, sessionID),
		Positions:     positionSource(cfg, mqttSource, bridge, logger),
		Motion:        motionSource(cfg, mqttSource, bridge),
		Metrics:       metrics,
		Logger:        logger,
		SessionID:     sessionID,
	})
	if err != nil {
		return err
	}

	if cfg.TelemetrySink == config.SinkMQTT && cfg.TopicAck != "" {
		unsubscribe, err := telemetry.SubscribeAcks(client, cfg.TopicAck, cfg.IngestTimeout(), logger, eng.Acknowledge)
		if err != nil {
			return err
		}
		defer unsubscribe()
	}

	eng.Start(ctx)
	defer eng.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           newWebMux(eng, bridge, metrics, staticDir, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("web server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func telemetrySink(cfg *config.Config, client mqtt.Client, sessionID string) telemetry.Sink {
	if cfg.TelemetrySink == config.SinkHTTP {
		return telemetry.NewHTTPSink(cfg.IngestURL, cfg.IngestToken, sessionID)
	}
	return &telemetry.MQTTSink{
		Client:  client,
		Topic:   cfg.TopicTelemetry,
		Timeout: cfg.IngestTimeout(),
	}
}

func positionSource(cfg *config.Config, mqttSource *sensors.MQTTSource, bridge *sensors.Bridge, logger *slog.Logger) engine.PositionSource {
	switch cfg.PositionSource {
	case config.PositionNMEA:
		return &sensors.NMEASource{
			PortName: cfg.GPSSerialPort,
			BaudRate: uint(cfg.GPSBaudRate),
			Logger:   logger,
		}
	case config.PositionMQTT:
		return mqttSource
	case config.PositionWeb:
		return bridge
	default:
		return nil
	}
}

func motionSource(cfg *config.Config, mqttSource *sensors.MQTTSource, bridge *sensors.Bridge) engine.MotionSource {
	switch cfg.MotionSource {
	case config.MotionMQTT:
		return mqttSource
	case config.MotionWeb:
		return bridge
	case config.MotionMock:
		return sensors.NewMockSource(sensors.DefaultScenario())
	default:
		return nil
	}
}
