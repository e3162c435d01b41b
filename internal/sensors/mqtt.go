// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/accident_detector/internal/engine"
	"github.com/relabs-tech/accident_detector/internal/gps"
	"github.com/relabs-tech/accident_detector/internal/imu"
)

// subscribeFailure is the SUBACK return code for a refused subscription.
const subscribeFailure = 0x80

// MQTTSource receives position fixes and motion events as JSON on MQTT
// topics. An empty topic disables that capability.
type MQTTSource struct {
	Client        mqtt.Client
	PositionTopic string
	MotionTopic   string
	QoS           byte
	Timeout       time.Duration
	Logger        *slog.Logger
}

func (s *MQTTSource) SubscribePositions(_ context.Context, h engine.PositionHandler) (engine.Subscription, error) {
	return s.subscribe(s.PositionTopic, func(payload []byte) error {
		var f gps.Fix
		if err := json.Unmarshal(payload, &f); err != nil {
			return err
		}
		h(f)
		return nil
	})
}

func (s *MQTTSource) SubscribeMotion(_ context.Context, h engine.MotionHandler) (engine.Subscription, error) {
	return s.subscribe(s.MotionTopic, func(payload []byte) error {
		var ev imu.MotionEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return err
		}
		h(ev)
		return nil
	})
}

func (s *MQTTSource) subscribe(topic string, decode func([]byte) error) (engine.Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("mqtt source: no topic configured")
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	token := s.Client.Subscribe(topic, s.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		if err := decode(msg.Payload()); err != nil {
			logger.Debug("sensor payload unmarshal error", "topic", msg.Topic(), "err", err)
		}
	})
	if err := s.wait(token); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	if st, ok := token.(*mqtt.SubscribeToken); ok {
		if code, ok := st.Result()[topic]; ok && code == subscribeFailure {
			return nil, fmt.Errorf("%w: broker refused %s", engine.ErrPermissionDenied, topic)
		}
	}
	logger.Info("subscribed to sensor topic", "topic", topic)

	return engine.SubscriptionFunc(func() error {
		return s.wait(s.Client.Unsubscribe(topic))
	}), nil
}

func (s *MQTTSource) wait(token mqtt.Token) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out after %s", timeout)
	}
	return token.Error()
}
