package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewDetectorCollector(reg)
	require.NoError(t, err)
	assert.Equal(t, reg, c.Gatherer())

	c.IncBatchesSent()
	c.IncBatchesSent()
	c.IncDeliveryFailures()
	c.IncIncidents()
	c.IncShakes()
	c.IncStops()
	c.IncDropped(KindMotion)
	c.SetDetection(true, 19.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.BatchesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DeliveryFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.IncidentsAcknowledged))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ShakeEpisodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StopDetections))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SamplesDropped.WithLabelValues(KindMotion)))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.SamplesDropped.WithLabelValues(KindPosition)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StopDetected))
	assert.Equal(t, 19.5, testutil.ToFloat64(c.PeakAccel))

	c.SetDetection(false, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.StopDetected))
}

func TestDetectorCollectorReusesRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewDetectorCollector(reg)
	require.NoError(t, err)
	second, err := NewDetectorCollector(reg)
	require.NoError(t, err)

	second.IncBatchesSent()
	assert.Equal(t, 1.0, testutil.ToFloat64(first.BatchesSent))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *DetectorCollector
	assert.NotPanics(t, func() {
		c.IncBatchesSent()
		c.IncDeliveryFailures()
		c.IncIncidents()
		c.IncShakes()
		c.IncStops()
		c.IncDropped(KindPosition)
		c.SetDetection(true, 1)
	})
	assert.Nil(t, c.Gatherer())
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewDetectorCollector(reg)
	require.NoError(t, err)
	c.IncShakes()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "detector_shake_episodes_total 1")
}
