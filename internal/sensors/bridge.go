// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/accident_detector/internal/engine"
	"github.com/relabs-tech/accident_detector/internal/gps"
	"github.com/relabs-tech/accident_detector/internal/imu"
)

// Bridge message types.
const (
	MessagePosition   = "position"
	MessageMotion     = "motion"
	MessagePermission = "permission"
	MessageError      = "error"
)

// Sensor names used in permission messages.
const (
	SensorPosition = "position"
	SensorMotion   = "motion"
)

// BridgeMessage is one frame on the sensor WebSocket. A phone or browser
// streams position and motion frames; a permission frame reports whether
// the user granted a sensor. A permission frame without a sensor applies
// to both.
type BridgeMessage struct {
	Type     string           `json:"type"`
	Position *gps.Fix         `json:"position,omitempty"`
	Motion   *imu.MotionEvent `json:"motion,omitempty"`
	Sensor   string           `json:"sensor,omitempty"`
	Granted  *bool            `json:"granted,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// Bridge accepts sensor streams over WebSocket and fans them out to the
// engine. It serves as both a PositionSource and a MotionSource.
type Bridge struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu        sync.Mutex
	nextID    int
	positions map[int]engine.PositionHandler
	motion    map[int]engine.MotionHandler
	denied    map[string]bool
}

// NewBridge creates a bridge. A nil logger uses slog.Default.
func NewBridge(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // sensor pages are served from anywhere on the LAN
			},
		},
		logger:    logger,
		positions: make(map[int]engine.PositionHandler),
		motion:    make(map[int]engine.MotionHandler),
		denied:    make(map[string]bool),
	}
}

func (b *Bridge) SubscribePositions(_ context.Context, h engine.PositionHandler) (engine.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.denied[SensorPosition] {
		return nil, fmt.Errorf("%w: %s", engine.ErrPermissionDenied, SensorPosition)
	}
	id := b.nextID
	b.nextID++
	b.positions[id] = h
	return b.unsubscribe(func() { delete(b.positions, id) }), nil
}

func (b *Bridge) SubscribeMotion(_ context.Context, h engine.MotionHandler) (engine.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.denied[SensorMotion] {
		return nil, fmt.Errorf("%w: %s", engine.ErrPermissionDenied, SensorMotion)
	}
	id := b.nextID
	b.nextID++
	b.motion[id] = h
	return b.unsubscribe(func() { delete(b.motion, id) }), nil
}

func (b *Bridge) unsubscribe(remove func()) engine.Subscription {
	return engine.SubscriptionFunc(func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		remove()
		return nil
	})
}

// Denied reports whether the named sensor was refused by the client.
func (b *Bridge) Denied(sensor string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.denied[sensor]
}

// ServeHTTP upgrades the request and reads sensor frames until the client
// disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("sensor bridge: websocket upgrade error", "err", err)
		return
	}
	defer conn.Close()
	b.logger.Info("sensor bridge: client connected", "remote", r.RemoteAddr)

	for {
		var msg BridgeMessage
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Warn("sensor bridge: websocket error", "err", err)
			}
			break
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			b.sendError(conn, "invalid JSON")
			continue
		}
		if err := b.dispatch(msg); err != nil {
			b.sendError(conn, err.Error())
		}
	}
	b.logger.Info("sensor bridge: client disconnected", "remote", r.RemoteAddr)
}

func (b *Bridge) dispatch(msg BridgeMessage) error {
	switch msg.Type {
	case MessagePosition:
		if msg.Position == nil {
			return fmt.Errorf("position frame without position")
		}
		for _, h := range b.positionHandlers() {
			h(*msg.Position)
		}
	case MessageMotion:
		if msg.Motion == nil {
			return fmt.Errorf("motion frame without motion")
		}
		for _, h := range b.motionHandlers() {
			h(*msg.Motion)
		}
	case MessagePermission:
		if msg.Granted == nil {
			return fmt.Errorf("permission frame without granted")
		}
		b.setPermission(msg.Sensor, *msg.Granted)
	default:
		return fmt.Errorf("unknown message type: %q", msg.Type)
	}
	return nil
}

// setPermission records a grant or denial. Live subscriptions stay
// registered; frames for a denied sensor are dropped until the client grants
// it again, so a later grant resumes delivery without resubscribing.
func (b *Bridge) setPermission(sensor string, granted bool) {
	sensors := []string{SensorPosition, SensorMotion}
	if sensor != "" {
		sensors = []string{sensor}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range sensors {
		was := b.denied[s]
		b.denied[s] = !granted
		switch {
		case !granted:
			b.logger.Warn("sensor bridge: permission denied by client", "sensor", s)
		case was:
			b.logger.Info("sensor bridge: permission granted by client", "sensor", s)
		}
	}
}

func (b *Bridge) positionHandlers() []engine.PositionHandler {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.denied[SensorPosition] {
		return nil
	}
	hs := make([]engine.PositionHandler, 0, len(b.positions))
	for _, h := range b.positions {
		hs = append(hs, h)
	}
	return hs
}

func (b *Bridge) motionHandlers() []engine.MotionHandler {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.denied[SensorMotion] {
		return nil
	}
	hs := make([]engine.MotionHandler, 0, len(b.motion))
	for _, h := range b.motion {
		hs = append(hs, h)
	}
	return hs
}

func (b *Bridge) sendError(conn *websocket.Conn, message string) {
	if err := conn.WriteJSON(BridgeMessage{Type: MessageError, Message: message}); err != nil {
		b.logger.Debug("sensor bridge: write error", "err", err)
	}
}
