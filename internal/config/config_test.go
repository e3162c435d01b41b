package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/accident_detector/internal/detect"
)

func TestDefaultsMatchDetectorDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, detect.DefaultConfig(), cfg.Detection())
	assert.Equal(t, 3*time.Second, cfg.SendInterval())
	assert.Equal(t, 5*time.Second, cfg.IngestTimeout())
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.True(t, cfg.UsesMQTT())
}

func TestParseOverridesDefaults(t *testing.T) {
	input := `
# comment
TELEMETRY_SINK = HTTP
INGEST_URL=https://ingest.example.com/api/telemetry
INGEST_TOKEN=secret=with=equals
POSITION_SOURCE=web
MOTION_SOURCE=mock
LOG_LEVEL=debug
SHAKE_ACCEL_THRESHOLD=18.5
STILL_DURATION_MS=8000
SEND_INTERVAL_MS=1000
`
	cfg, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, SinkHTTP, cfg.TelemetrySink)
	assert.Equal(t, "secret=with=equals", cfg.IngestToken)
	assert.Equal(t, PositionWeb, cfg.PositionSource)
	assert.Equal(t, MotionMock, cfg.MotionSource)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 18.5, cfg.Detection().ShakeThreshold)
	assert.Equal(t, 8*time.Second, cfg.Detection().StillDuration)
	assert.Equal(t, time.Second, cfg.SendInterval())
	assert.False(t, cfg.UsesMQTT())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing equals", "MQTT_BROKER", "invalid config line 1"},
		{"unknown key", "FOO=bar", "unknown config key"},
		{"bad int", "GPS_BAUD_RATE=fast", "invalid GPS_BAUD_RATE"},
		{"bad float", "STILL_ACCEL_THRESHOLD=low", "invalid STILL_ACCEL_THRESHOLD"},
		{"bad level", "LOG_LEVEL=loud", "invalid LOG_LEVEL"},
		{"unknown source", "MOTION_SOURCE=telepathy", "unknown MOTION_SOURCE"},
		{"http without url", "TELEMETRY_SINK=http", "INGEST_URL is required"},
		{"inverted band", "SHAKE_ACCEL_THRESHOLD=10", "shake threshold"},
		{"nan threshold", "SHAKE_ACCEL_THRESHOLD=NaN", "shake threshold must be finite"},
		{"infinite threshold", "STILL_ACCEL_THRESHOLD=+Inf", "still threshold must be finite"},
		{"zero interval", "SEND_INTERVAL_MS=0", "SEND_INTERVAL_MS must be positive"},
		{"nmea without port", "POSITION_SOURCE=nmea\nGPS_SERIAL_PORT=", "GPS_SERIAL_PORT is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "detector_config.txt"))
	require.NoError(t, err)
	assert.Equal(t, "accident/telemetry", cfg.TopicTelemetry)
	assert.Equal(t, detect.DefaultConfig(), cfg.Detection())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
