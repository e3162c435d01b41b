// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/accident_detector/internal/config"
	"github.com/relabs-tech/accident_detector/internal/engine"
	"github.com/relabs-tech/accident_detector/internal/gps"
	"github.com/relabs-tech/accident_detector/internal/imu"
	"github.com/relabs-tech/accident_detector/internal/sensors"
)

// RunMockProducer publishes a scripted crash drive to the GPS and motion
// topics until ctx is cancelled, standing in for a phone or vehicle unit.
func RunMockProducer(ctx context.Context, cfg *config.Config, scenario sensors.CrashScenario, logger *slog.Logger) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS+"-mock", logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(mqttDisconnectMS)

	subs, err := startMockPublishing(ctx, client, cfg, sensors.NewMockSource(scenario), logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()

	logger.Info("publishing mock crash scenario",
		"gps_topic", cfg.TopicGPS, "motion_topic", cfg.TopicMotion, "impact_after", scenario.Cruise)
	<-ctx.Done()
	return nil
}

func startMockPublishing(ctx context.Context, client mqtt.Client, cfg *config.Config, src *sensors.MockSource, logger *slog.Logger) ([]engine.Subscription, error) {
	publish := func(topic string, v any) {
		payload, err := json.Marshal(v)
		if err != nil {
			logger.Warn("json marshal error", "err", err)
			return
		}
		if token := client.Publish(topic, 0, false, payload); token.Wait() && token.Error() != nil {
			logger.Warn("publish error", "topic", topic, "err", token.Error())
		}
	}

	posSub, err := src.SubscribePositions(ctx, func(f gps.Fix) { publish(cfg.TopicGPS, f) })
	if err != nil {
		return nil, err
	}
	motionSub, err := src.SubscribeMotion(ctx, func(ev imu.MotionEvent) { publish(cfg.TopicMotion, ev) })
	if err != nil {
		posSub.Close()
		return nil, err
	}
	return []engine.Subscription{posSub, motionSub}, nil
}
