// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package engine

import (
	"context"
	"errors"

	"github.com/relabs-tech/accident_detector/internal/gps"
	"github.com/relabs-tech/accident_detector/internal/imu"
)

// ErrPermissionDenied is returned by a source whose sensor capability was
// refused. The engine keeps running without that input.
var ErrPermissionDenied = errors.New("sensor permission denied")

// PositionHandler receives location fixes from a source.
type PositionHandler func(gps.Fix)

// MotionHandler receives motion events from a source.
type MotionHandler func(imu.MotionEvent)

// Subscription is a live sensor subscription.
type Subscription interface {
	Close() error
}

// PositionSource is a location capability.
type PositionSource interface {
	SubscribePositions(ctx context.Context, h PositionHandler) (Subscription, error)
}

// MotionSource is a motion capability.
type MotionSource interface {
	SubscribeMotion(ctx context.Context, h MotionHandler) (Subscription, error)
}

// SubscriptionFunc adapts a close function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Close() error { return f() }
