// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/accident_detector/internal/detect"
)

// Position sources.
const (
	PositionNMEA = "nmea"
	PositionMQTT = "mqtt"
	PositionWeb  = "web"
	PositionNone = "none"
)

// Motion sources.
const (
	MotionMQTT = "mqtt"
	MotionWeb  = "web"
	MotionMock = "mock"
	MotionNone = "none"
)

// Telemetry sinks.
const (
	SinkHTTP = "http"
	SinkMQTT = "mqtt"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDDetector string
	MQTTClientIDGPS      string
	MQTTClientIDConsole  string

	// Topics
	TopicGPS       string
	TopicMotion    string
	TopicTelemetry string
	TopicAck       string

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// Sources and sink
	PositionSource string
	MotionSource   string
	TelemetrySink  string

	// Ingestion endpoint
	IngestURL       string
	IngestToken     string
	IngestTimeoutMS int

	// Web Server
	WebServerPort int

	LogLevel slog.Level

	// Detection tunables, milliseconds and m/s²
	SendIntervalMS      int
	ShakeAccelThreshold float64
	StillAccelThreshold float64
	StillDurationMS     int
	MotionStaleMS       int
	WindowRetentionMS   int
}

// Default returns the configuration used for keys a file does not set.
func Default() *Config {
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDDetector: "accident-detector",
		MQTTClientIDGPS:      "accident-gps-producer",
		MQTTClientIDConsole:  "accident-console",

		TopicGPS:       "accident/gps",
		TopicMotion:    "accident/motion",
		TopicTelemetry: "accident/telemetry",
		TopicAck:       "accident/ack",

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,

		PositionSource: PositionMQTT,
		MotionSource:   MotionMQTT,
		TelemetrySink:  SinkMQTT,

		IngestTimeoutMS: 5000,
		WebServerPort:   8080,
		LogLevel:        slog.LevelInfo,

		SendIntervalMS:      3000,
		ShakeAccelThreshold: 15,
		StillAccelThreshold: 12,
		StillDurationMS:     10000,
		MotionStaleMS:       1500,
		WindowRetentionMS:   30000,
	}
}

// Load reads the configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines from r. Blank lines and lines starting with
// '#' are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_DETECTOR":
		c.MQTTClientIDDetector = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_MOTION":
		c.TopicMotion = value
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value
	case "TOPIC_ACK":
		c.TopicAck = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		return setInt(&c.GPSBaudRate, key, value)

	// Sources and sink
	case "POSITION_SOURCE":
		c.PositionSource = strings.ToLower(value)
	case "MOTION_SOURCE":
		c.MotionSource = strings.ToLower(value)
	case "TELEMETRY_SINK":
		c.TelemetrySink = strings.ToLower(value)

	// Ingestion endpoint
	case "INGEST_URL":
		c.IngestURL = value
	case "INGEST_TOKEN":
		c.IngestToken = value
	case "INGEST_TIMEOUT_MS":
		return setInt(&c.IngestTimeoutMS, key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		return setInt(&c.WebServerPort, key, value)

	case "LOG_LEVEL":
		if err := c.LogLevel.UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL %q: %w", value, err)
		}

	// Detection
	case "SEND_INTERVAL_MS":
		return setInt(&c.SendIntervalMS, key, value)
	case "SHAKE_ACCEL_THRESHOLD":
		return setFloat(&c.ShakeAccelThreshold, key, value)
	case "STILL_ACCEL_THRESHOLD":
		return setFloat(&c.StillAccelThreshold, key, value)
	case "STILL_DURATION_MS":
		return setInt(&c.StillDurationMS, key, value)
	case "MOTION_STALE_MS":
		return setInt(&c.MotionStaleMS, key, value)
	case "WINDOW_RETENTION_MS":
		return setInt(&c.WindowRetentionMS, key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setInt(dst *int, key, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, key, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

// validate checks that all required fields are set and consistent.
func (c *Config) validate() error {
	switch c.PositionSource {
	case PositionNMEA:
		if c.GPSSerialPort == "" {
			return fmt.Errorf("GPS_SERIAL_PORT is required for POSITION_SOURCE=nmea")
		}
		if c.GPSBaudRate <= 0 {
			return fmt.Errorf("GPS_BAUD_RATE must be positive")
		}
	case PositionMQTT, PositionWeb, PositionNone:
	default:
		return fmt.Errorf("unknown POSITION_SOURCE %q", c.PositionSource)
	}

	switch c.MotionSource {
	case MotionMQTT, MotionWeb, MotionMock, MotionNone:
	default:
		return fmt.Errorf("unknown MOTION_SOURCE %q", c.MotionSource)
	}

	switch c.TelemetrySink {
	case SinkHTTP:
		if c.IngestURL == "" {
			return fmt.Errorf("INGEST_URL is required for TELEMETRY_SINK=http")
		}
	case SinkMQTT:
		if c.TopicTelemetry == "" {
			return fmt.Errorf("TOPIC_TELEMETRY is required for TELEMETRY_SINK=mqtt")
		}
	default:
		return fmt.Errorf("unknown TELEMETRY_SINK %q", c.TelemetrySink)
	}

	if c.UsesMQTT() && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.SendIntervalMS <= 0 {
		return fmt.Errorf("SEND_INTERVAL_MS must be positive")
	}
	if c.IngestTimeoutMS <= 0 {
		return fmt.Errorf("INGEST_TIMEOUT_MS must be positive")
	}
	if err := c.Detection().Validate(); err != nil {
		return err
	}
	return nil
}

// UsesMQTT reports whether the detector needs a broker connection.
func (c *Config) UsesMQTT() bool {
	return c.PositionSource == PositionMQTT || c.MotionSource == MotionMQTT || c.TelemetrySink == SinkMQTT
}

// Detection returns the detector thresholds.
func (c *Config) Detection() detect.Config {
	return detect.Config{
		ShakeThreshold:  c.ShakeAccelThreshold,
		StillThreshold:  c.StillAccelThreshold,
		StillDuration:   ms(c.StillDurationMS),
		StaleAfter:      ms(c.MotionStaleMS),
		WindowRetention: ms(c.WindowRetentionMS),
	}
}

func (c *Config) SendInterval() time.Duration  { return ms(c.SendIntervalMS) }
func (c *Config) IngestTimeout() time.Duration { return ms(c.IngestTimeoutMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
