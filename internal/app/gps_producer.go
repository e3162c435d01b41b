// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/accident_detector/internal/clock"
	"github.com/relabs-tech/accident_detector/internal/config"
	"github.com/relabs-tech/accident_detector/internal/gps"
	"github.com/relabs-tech/accident_detector/internal/sensors"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences and
// publishes every position fix as JSON to the GPS topic, where a detector
// with POSITION_SOURCE=mqtt picks it up.
func RunGPSProducer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(mqttDisconnectMS)

	src := &sensors.NMEASource{
		PortName: cfg.GPSSerialPort,
		BaudRate: uint(cfg.GPSBaudRate),
		Logger:   logger,
	}
	port, err := src.OpenPort()
	if err != nil {
		return err
	}
	logger.Info("GPS serial port opened", "port", cfg.GPSSerialPort, "baud", cfg.GPSBaudRate)

	go func() {
		<-ctx.Done()
		port.Close()
	}()

	err = publishFixes(port, client, cfg.TopicGPS, clock.Real{}, logger)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// publishFixes reads NMEA from r until it is exhausted and publishes each
// fix retained, so late subscribers get the last known position.
func publishFixes(r io.Reader, client mqtt.Client, topic string, clk clock.Clock, logger *slog.Logger) error {
	return sensors.ReadNMEA(r, clk, logger, func(p gps.PositionSample) {
		payload, err := json.Marshal(gps.NewFix(p))
		if err != nil {
			logger.Warn("GPS JSON marshal error", "err", err)
			return
		}

		token := client.Publish(topic, 0, true, payload)
		token.Wait()
		if token.Error() != nil {
			logger.Warn("GPS publish error", "topic", topic, "err", token.Error())
			return
		}
		logger.Debug("published GPS fix", "lat", p.Lat, "lng", p.Lng)
	})
}
