// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSink publishes batches to a topic. The decision service answers on a
// separate ack topic, see SubscribeAcks.
type MQTTSink struct {
	Client  mqtt.Client
	Topic   string
	QoS     byte
	Timeout time.Duration
}

func (s *MQTTSink) Submit(ctx context.Context, b Batch) (Ack, error) {
	payload, err := json.Marshal(b.Payload())
	if err != nil {
		return Ack{}, fmt.Errorf("marshal batch: %w", err)
	}

	token := s.Client.Publish(s.Topic, s.QoS, false, payload)
	if err := waitToken(ctx, token, s.Timeout); err != nil {
		return Ack{}, fmt.Errorf("%w: publish %s: %v", ErrDelivery, s.Topic, err)
	}
	return Ack{}, nil
}

// SubscribeAcks delivers every Ack published on topic to handle. The
// returned function unsubscribes.
func SubscribeAcks(client mqtt.Client, topic string, timeout time.Duration, logger *slog.Logger, handle func(Ack)) (func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var ack Ack
		if err := json.Unmarshal(msg.Payload(), &ack); err != nil {
			logger.Debug("ack unmarshal error", "topic", msg.Topic(), "err", err)
			return
		}
		handle(ack)
	})
	if err := waitToken(context.Background(), token, timeout); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	return func() error {
		return waitToken(context.Background(), client.Unsubscribe(topic), timeout)
	}, nil
}

// waitToken waits for a paho token, bounded by timeout and ctx.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	return token.Error()
}
