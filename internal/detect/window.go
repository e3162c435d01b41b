// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package detect

import "time"

// Entry is one magnitude observation.
type Entry struct {
	At        time.Time
	Magnitude float64
}

// Window is the rolling record of recent magnitudes, in insertion order.
type Window struct {
	retention time.Duration
	entries   []Entry
}

// NewWindow returns an empty window keeping entries younger than retention.
func NewWindow(retention time.Duration) *Window {
	return &Window{retention: retention}
}

// Add appends an observation and drops every entry that is retention or
// more older than at.
func (w *Window) Add(at time.Time, magnitude float64) {
	w.entries = append(w.entries, Entry{At: at, Magnitude: magnitude})
	w.prune(at)
}

func (w *Window) prune(now time.Time) {
	kept := w.entries[:0]
	for _, e := range w.entries {
		if now.Sub(e.At) < w.retention {
			kept = append(kept, e)
		}
	}
	// release references held past the new length
	clear(w.entries[len(kept):])
	w.entries = kept
}

func (w *Window) Len() int { return len(w.entries) }

// Entries returns a copy of the retained observations.
func (w *Window) Entries() []Entry {
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Max returns the largest retained magnitude, 0 when empty.
func (w *Window) Max() float64 {
	var m float64
	for _, e := range w.entries {
		if e.Magnitude > m {
			m = e.Magnitude
		}
	}
	return m
}

func (w *Window) Reset() {
	w.entries = nil
}
