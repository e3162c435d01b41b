// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/relabs-tech/accident_detector/internal/engine"
	"github.com/relabs-tech/accident_detector/internal/observability"
	"github.com/relabs-tech/accident_detector/internal/sensors"
)

// staticDir holds the sensor page served at the web root.
const staticDir = "web"

// newWebMux serves the detector's HTTP surface:
//
//	GET  /api/state          detection snapshot
//	POST /api/engine/start   start detection
//	POST /api/engine/stop    stop detection
//	     /ws/sensors         sensor bridge (WebSocket)
//	GET  /metrics            Prometheus metrics
//	     /                   static files
func newWebMux(eng *engine.Engine, bridge *sensors.Bridge, metrics *observability.DetectorCollector, static string, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, eng.Snapshot(), logger)
	})
	mux.HandleFunc("POST /api/engine/start", func(w http.ResponseWriter, r *http.Request) {
		eng.Start(r.Context())
		writeJSON(w, eng.Snapshot(), logger)
	})
	mux.HandleFunc("POST /api/engine/stop", func(w http.ResponseWriter, r *http.Request) {
		eng.Stop()
		writeJSON(w, eng.Snapshot(), logger)
	})
	// Without this the file server at / would answer other methods with 404.
	mux.HandleFunc("/api/engine/{action}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("action") {
		case "start", "stop":
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		default:
			http.NotFound(w, r)
		}
	})

	if bridge != nil {
		mux.Handle("/ws/sensors", bridge)
	}
	mux.Handle("GET /metrics", metrics.Handler())
	if static != "" {
		mux.Handle("/", http.FileServer(http.Dir(static)))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("json encode error", "err", err)
	}
}
