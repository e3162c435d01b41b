// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/accident_detector/internal/config"
	"github.com/relabs-tech/accident_detector/internal/gps"
	"github.com/relabs-tech/accident_detector/internal/telemetry"
)

// RunConsoleMQTT prints GPS fixes, telemetry batches and incident acks seen
// on the broker until ctx is cancelled.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(mqttDisconnectMS)

	var mu sync.Mutex
	emit := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, line)
	}

	subs := []struct {
		topic  string
		format func([]byte) (string, error)
	}{
		{cfg.TopicGPS, formatFix},
		{cfg.TopicTelemetry, formatTelemetry},
		{cfg.TopicAck, formatAck},
	}
	for _, s := range subs {
		if s.topic == "" {
			continue
		}
		format := s.format
		token := client.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			line, err := format(msg.Payload())
			if err != nil {
				logger.Warn("console: unmarshal error", "topic", msg.Topic(), "err", err)
				return
			}
			emit(line)
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		logger.Info("console: subscribed", "topic", s.topic)
	}

	<-ctx.Done()
	logger.Info("console: shutting down")
	return nil
}

func formatFix(payload []byte) (string, error) {
	var f gps.Fix
	if err := json.Unmarshal(payload, &f); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("[GPS ] ")
	if f.Latitude != nil && f.Longitude != nil {
		fmt.Fprintf(&b, "lat=%.6f lon=%.6f", *f.Latitude, *f.Longitude)
	} else {
		b.WriteString("lat=? lon=?")
	}
	if f.Speed != nil {
		fmt.Fprintf(&b, " speed=%.1fkm/h", *f.Speed*3.6)
	}
	return b.String(), nil
}

func formatTelemetry(payload []byte) (string, error) {
	var p telemetry.Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", err
	}
	line := fmt.Sprintf("[TELE] lat=%.6f lon=%.6f speed=%5.1fkm/h peak=%5.2f",
		p.Lat, p.Lng, p.SpeedKmh, p.PeakAccel)
	if p.AccelX != nil && p.AccelY != nil && p.AccelZ != nil {
		line += fmt.Sprintf(" accel=(%6.2f,%6.2f,%6.2f)", *p.AccelX, *p.AccelY, *p.AccelZ)
	}
	if p.ShakeStopDetected {
		line += "  ** SHAKE-STOP DETECTED **"
	}
	return line, nil
}

func formatAck(payload []byte) (string, error) {
	var a telemetry.Ack
	if err := json.Unmarshal(payload, &a); err != nil {
		return "", err
	}
	switch {
	case a.IncidentCreated():
		return fmt.Sprintf("[ACK ] incident created request_id=%s", a.RequestID), nil
	case a.AccidentDetected:
		return "[ACK ] accident detected, no incident (cooldown)", nil
	default:
		return "[ACK ] no accident", nil
	}
}
