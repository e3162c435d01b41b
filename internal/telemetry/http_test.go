package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func sampleBatch() Batch {
	return Batch{
		RunID:             "session-1/1",
		Lat:               12.97,
		Lng:               77.59,
		SpeedKmh:          42,
		Accel:             &r3.Vec{X: 0.1, Y: 0.2, Z: -9.8},
		Gyro:              &r3.Vec{},
		ShakeStopDetected: true,
		PeakAccel:         21.5,
	}
}

func TestPayloadOmitsUnknownMotion(t *testing.T) {
	data, err := json.Marshal(Batch{Lat: 1, Lng: 2}.Payload())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{
		"lat":                 1.0,
		"lng":                 2.0,
		"speed_kmh":           0.0,
		"shake_stop_detected": false,
		"peak_accel":          0.0,
	}, got)
}

func TestPayloadCarriesZeroComponentsWhenKnown(t *testing.T) {
	data, err := json.Marshal(sampleBatch().Payload())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 0.0, got["gyro_x"])
	assert.Equal(t, -9.8, got["accel_z"])
	assert.Equal(t, true, got["shake_stop_detected"])
	assert.Equal(t, 21.5, got["peak_accel"])
	assert.Equal(t, "session-1/1", got["run_id"])
}

func TestAckIncidentCreated(t *testing.T) {
	assert.True(t, Ack{AccidentDetected: true, RequestID: "x"}.IncidentCreated())
	assert.False(t, Ack{AccidentDetected: true}.IncidentCreated())
	assert.False(t, Ack{RequestID: "x"}.IncidentCreated())
}

func TestHTTPSinkSubmit(t *testing.T) {
	var gotBody Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sensor/submit", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "session-1", r.Header.Get("X-Session-ID"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &gotBody))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"created","accident_detected":true,"request_id":"abc","ambulance_assigned":true}`))
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL+"/sensor/submit", "secret", "session-1")
	ack, err := sink.Submit(context.Background(), sampleBatch())
	require.NoError(t, err)
	assert.True(t, ack.IncidentCreated())
	assert.Equal(t, "abc", ack.RequestID)
	assert.True(t, gotBody.ShakeStopDetected)
	assert.Equal(t, 42.0, gotBody.SpeedKmh)
}

func TestHTTPSinkEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ack, err := NewHTTPSink(srv.URL, "", "").Submit(context.Background(), sampleBatch())
	require.NoError(t, err)
	assert.Equal(t, Ack{}, ack)
}

func TestHTTPSinkFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		},
		"detection disabled": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"Accident detection not enabled"}`, http.StatusBadRequest)
		},
		"garbage reply": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			_, err := NewHTTPSink(srv.URL, "", "").Submit(context.Background(), sampleBatch())
			require.ErrorIs(t, err, ErrDelivery)
		})
	}
}

func TestHTTPSinkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPSink(url, "", "").Submit(context.Background(), sampleBatch())
	require.ErrorIs(t, err, ErrDelivery)
}

func TestHTTPSinkHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewHTTPSink(srv.URL, "", "").Submit(ctx, sampleBatch())
	require.ErrorIs(t, err, ErrDelivery)
}

func TestSinkFunc(t *testing.T) {
	var called bool
	s := SinkFunc(func(_ context.Context, b Batch) (Ack, error) {
		called = true
		return Ack{AccidentDetected: b.ShakeStopDetected, RequestID: "r"}, nil
	})
	ack, err := s.Submit(context.Background(), sampleBatch())
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, ack.IncidentCreated())
}
