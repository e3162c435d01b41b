// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package observability exposes detector metrics to Prometheus.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dropped sample kinds.
const (
	KindPosition = "position"
	KindMotion   = "motion"
)

// DetectorCollector holds the detector's Prometheus metrics. A nil
// collector is valid and records nothing.
type DetectorCollector struct {
	gatherer prometheus.Gatherer

	BatchesSent           prometheus.Counter
	DeliveryFailures      prometheus.Counter
	IncidentsAcknowledged prometheus.Counter
	ShakeEpisodes         prometheus.Counter
	StopDetections        prometheus.Counter
	SamplesDropped        *prometheus.CounterVec
	StopDetected          prometheus.Gauge
	PeakAccel             prometheus.Gauge
}

// NewDetectorCollector registers detector metrics against reg, or the
// default registerer when reg is nil.
func NewDetectorCollector(reg prometheus.Registerer) (*DetectorCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &DetectorCollector{gatherer: gatherer}
	var err error

	if c.BatchesSent, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "detector_telemetry_batches_sent_total",
		Help: "Telemetry batches accepted by the ingestion endpoint.",
	}), "detector_telemetry_batches_sent_total"); err != nil {
		return nil, err
	}
	if c.DeliveryFailures, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "detector_telemetry_delivery_failures_total",
		Help: "Telemetry batches dropped after a failed submission.",
	}), "detector_telemetry_delivery_failures_total"); err != nil {
		return nil, err
	}
	if c.IncidentsAcknowledged, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "detector_incidents_acknowledged_total",
		Help: "Incidents the ingestion side reported as created.",
	}), "detector_incidents_acknowledged_total"); err != nil {
		return nil, err
	}
	if c.ShakeEpisodes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "detector_shake_episodes_total",
		Help: "Readings at or above the shake threshold.",
	}), "detector_shake_episodes_total"); err != nil {
		return nil, err
	}
	if c.StopDetections, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "detector_stop_detections_total",
		Help: "Shake episodes that ended in sustained stillness.",
	}), "detector_stop_detections_total"); err != nil {
		return nil, err
	}
	if c.SamplesDropped, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "detector_samples_dropped_total",
		Help: "Malformed sensor samples dropped, by kind.",
	}, []string{"kind"}), "detector_samples_dropped_total"); err != nil {
		return nil, err
	}
	if c.StopDetected, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detector_stop_detected",
		Help: "1 while a shake-then-stop is detected, else 0.",
	}), "detector_stop_detected"); err != nil {
		return nil, err
	}
	if c.PeakAccel, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detector_peak_accel_mps2",
		Help: "Peak acceleration magnitude of the current episode.",
	}), "detector_peak_accel_mps2"); err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the gatherer that serves these metrics.
func (c *DetectorCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *DetectorCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *DetectorCollector) IncBatchesSent() {
	if c == nil || c.BatchesSent == nil {
		return
	}
	c.BatchesSent.Inc()
}

func (c *DetectorCollector) IncDeliveryFailures() {
	if c == nil || c.DeliveryFailures == nil {
		return
	}
	c.DeliveryFailures.Inc()
}

func (c *DetectorCollector) IncIncidents() {
	if c == nil || c.IncidentsAcknowledged == nil {
		return
	}
	c.IncidentsAcknowledged.Inc()
}

func (c *DetectorCollector) IncShakes() {
	if c == nil || c.ShakeEpisodes == nil {
		return
	}
	c.ShakeEpisodes.Inc()
}

func (c *DetectorCollector) IncStops() {
	if c == nil || c.StopDetections == nil {
		return
	}
	c.StopDetections.Inc()
}

// IncDropped counts a dropped sample of the given kind.
func (c *DetectorCollector) IncDropped(kind string) {
	if c == nil || c.SamplesDropped == nil {
		return
	}
	c.SamplesDropped.WithLabelValues(kind).Inc()
}

// SetDetection mirrors the detection flag and peak into the gauges.
func (c *DetectorCollector) SetDetection(stop bool, peak float64) {
	if c == nil || c.StopDetected == nil || c.PeakAccel == nil {
		return
	}
	if stop {
		c.StopDetected.Set(1)
	} else {
		c.StopDetected.Set(0)
	}
	c.PeakAccel.Set(peak)
}

// register adds col to reg, reusing an identical collector that is
// already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
