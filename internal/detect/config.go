// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package detect

import (
	"fmt"
	"math"
	"time"
)

// Config holds the detection thresholds. Magnitudes are in m/s² and include
// gravity, so a device at rest reads about 9.8.
type Config struct {
	ShakeThreshold  float64       // magnitude that starts a shake episode
	StillThreshold  float64       // magnitude below which the device counts as still
	StillDuration   time.Duration // continuous stillness required after a shake
	StaleAfter      time.Duration // silence after which motion input is stale
	WindowRetention time.Duration // how long magnitudes stay in the window
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		ShakeThreshold:  15,
		StillThreshold:  12,
		StillDuration:   10 * time.Second,
		StaleAfter:      1500 * time.Millisecond,
		WindowRetention: 30 * time.Second,
	}
}

// Validate checks that the thresholds describe a usable hysteresis band.
func (c Config) Validate() error {
	for name, v := range map[string]float64{"shake": c.ShakeThreshold, "still": c.StillThreshold} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s threshold must be finite, got %v", name, v)
		}
	}
	if c.StillThreshold <= 0 {
		return fmt.Errorf("still threshold must be positive, got %v", c.StillThreshold)
	}
	if c.ShakeThreshold < c.StillThreshold {
		return fmt.Errorf("shake threshold %v must not be below still threshold %v", c.ShakeThreshold, c.StillThreshold)
	}
	if c.StillDuration <= 0 {
		return fmt.Errorf("still duration must be positive, got %v", c.StillDuration)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale timeout must be positive, got %v", c.StaleAfter)
	}
	if c.WindowRetention <= 0 {
		return fmt.Errorf("window retention must be positive, got %v", c.WindowRetention)
	}
	return nil
}
