package detect

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1700000000, 0)

func at(ms int) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }

func TestStrongShakeAlwaysRestartsEpisode(t *testing.T) {
	d := NewDetector(DefaultConfig())
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 2000; i++ {
		m := rng.Float64() * 25
		ev := d.Observe(at(i*100), m)
		if m >= 15 {
			st := d.State()
			assert.Equal(t, EventShake, ev)
			assert.False(t, st.StopDetected)
			assert.True(t, st.StillStartAt.IsZero())
			assert.Equal(t, at(i*100), st.ShakeDetectedAt)
		}
	}
}

func TestShakeThenStillScenario(t *testing.T) {
	d := NewDetector(DefaultConfig())

	require.Equal(t, EventShake, d.Observe(at(0), 18))
	assert.Equal(t, PhaseShakeDetected, d.State().Phase())

	for ms := 0; ms < 10000; ms += 500 {
		assert.Equal(t, EventNone, d.Observe(at(ms), 5))
		assert.False(t, d.State().StopDetected, "t=%d", ms)
		assert.Equal(t, PhaseAccumulatingStill, d.State().Phase())
	}

	assert.Equal(t, EventStop, d.Observe(at(10000), 5))
	st := d.State()
	assert.True(t, st.StopDetected)
	assert.Equal(t, PhaseStopDetected, st.Phase())
	assert.Equal(t, 18.0, st.PeakMagnitude)

	// stays detected without re-reporting
	assert.Equal(t, EventNone, d.Observe(at(10500), 5))
	assert.True(t, d.State().StopDetected)
}

func TestHysteresisBandRestartsCountdown(t *testing.T) {
	d := NewDetector(DefaultConfig())

	d.Observe(at(0), 20)
	d.Observe(at(1000), 9.8)
	assert.Equal(t, at(1000), d.State().StillStartAt)

	// band reading interrupts without a new episode
	assert.Equal(t, EventNone, d.Observe(at(6000), 13))
	st := d.State()
	assert.True(t, st.StillStartAt.IsZero())
	assert.Equal(t, at(0), st.ShakeDetectedAt)
	assert.False(t, st.StopDetected)

	d.Observe(at(6500), 9.8)
	assert.Equal(t, at(6500), d.State().StillStartAt)

	d.Observe(at(11000), 9.8)
	assert.False(t, d.State().StopDetected, "countdown restarted at 6500")

	d.Observe(at(16500), 9.8)
	assert.True(t, d.State().StopDetected)
}

func TestBandReadingAfterStopKeepsFlag(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.Observe(at(0), 20)
	d.Observe(at(0), 5)
	d.Observe(at(10000), 5)
	require.True(t, d.State().StopDetected)

	d.Observe(at(10500), 13)
	st := d.State()
	assert.True(t, st.StopDetected)
	assert.True(t, st.StillStartAt.IsZero())
}

func TestLowMagnitudesNeverStartEpisode(t *testing.T) {
	d := NewDetector(DefaultConfig())
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 5000; i++ {
		assert.Equal(t, EventNone, d.Observe(at(i*200), rng.Float64()*8))
	}
	st := d.State()
	assert.False(t, st.StopDetected)
	assert.True(t, st.ShakeDetectedAt.IsZero())
	assert.True(t, st.StillStartAt.IsZero())
	assert.Equal(t, PhaseIdle, st.Phase())
}

func TestPeakIsMonotonicUntilReset(t *testing.T) {
	d := NewDetector(DefaultConfig())
	prev := 0.0
	for i, m := range []float64{3, 9, 16, 4, 22, 1, 11} {
		d.Observe(at(i*100), m)
		peak := d.State().PeakMagnitude
		assert.GreaterOrEqual(t, peak, prev)
		prev = peak
	}
	assert.Equal(t, 22.0, prev)

	d.Reset()
	assert.Equal(t, State{}, d.State())
	assert.Zero(t, d.Window().Len())
}

func TestBackwardClockJumpCannotSatisfyStillness(t *testing.T) {
	d := NewDetector(DefaultConfig())

	d.Observe(at(100000), 20)
	d.Observe(at(100000), 5)
	d.Observe(at(50000), 5)
	assert.False(t, d.State().StopDetected)
	assert.Equal(t, at(100000), d.State().StillStartAt)

	d.Observe(at(109999), 5)
	assert.False(t, d.State().StopDetected)
	d.Observe(at(110000), 5)
	assert.True(t, d.State().StopDetected)
}

func TestWindowRetention(t *testing.T) {
	d := NewDetector(DefaultConfig())

	d.Observe(at(0), 1)
	d.Observe(at(10000), 2)
	d.Observe(at(29999), 3)
	assert.Equal(t, 3, d.Window().Len())

	d.Observe(at(30000), 4)
	entries := d.Window().Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, 2.0, entries[0].Magnitude)
	assert.Equal(t, 4.0, d.Window().Max())

	d.Observe(at(70000), 5)
	assert.Equal(t, 1, d.Window().Len())
}

func TestStaleInputSatisfiesStillness(t *testing.T) {
	cfg := DefaultConfig()
	d := NewDetector(cfg)
	mon := StalenessMonitor{StaleAfter: cfg.StaleAfter}

	d.Observe(at(0), 18)
	last := at(0)

	stale, ev := mon.Check(d, last, at(1500))
	assert.False(t, stale, "exactly at the timeout is not stale yet")
	assert.Equal(t, EventNone, ev)

	stale, ev = mon.Check(d, last, at(3000))
	assert.True(t, stale)
	assert.Equal(t, EventNone, ev)
	assert.Equal(t, at(0), d.State().StillStartAt, "silence counts from the last event")

	_, ev = mon.Check(d, last, at(9999))
	assert.Equal(t, EventNone, ev)

	_, ev = mon.Check(d, last, at(10000))
	assert.Equal(t, EventStop, ev)
	assert.True(t, d.State().StopDetected)
	assert.Equal(t, 18.0, d.State().PeakMagnitude)
}

func TestStalenessContinuesRunningCountdown(t *testing.T) {
	cfg := DefaultConfig()
	d := NewDetector(cfg)
	mon := StalenessMonitor{StaleAfter: cfg.StaleAfter}

	d.Observe(at(0), 18)
	d.Observe(at(2000), 9)
	d.Observe(at(4000), 9)

	mon.Check(d, at(4000), at(11000))
	assert.False(t, d.State().StopDetected)
	assert.Equal(t, at(2000), d.State().StillStartAt)

	mon.Check(d, at(4000), at(12000))
	assert.True(t, d.State().StopDetected)
}

func TestStalenessNeverStartsEpisode(t *testing.T) {
	cfg := DefaultConfig()
	d := NewDetector(cfg)
	mon := StalenessMonitor{StaleAfter: cfg.StaleAfter}

	d.Observe(at(0), 9.8)
	stale, ev := mon.Check(d, at(0), at(60000))
	assert.True(t, stale)
	assert.Equal(t, EventNone, ev)
	assert.Equal(t, PhaseIdle, d.State().Phase())
}

func TestStalenessRequiresSomeMotion(t *testing.T) {
	mon := StalenessMonitor{StaleAfter: time.Second}
	assert.False(t, mon.Stale(time.Time{}, at(100000)))
	assert.True(t, mon.Stale(at(0), at(1001)))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ShakeThreshold = 10
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.StillDuration = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.WindowRetention = -time.Second
	assert.Error(t, cfg.Validate())

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		cfg = DefaultConfig()
		cfg.ShakeThreshold = v
		assert.Error(t, cfg.Validate(), "shake %v", v)

		cfg = DefaultConfig()
		cfg.StillThreshold = v
		assert.Error(t, cfg.Validate(), "still %v", v)
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "accumulating_still", PhaseAccumulatingStill.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
