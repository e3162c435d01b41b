package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAdvance(t *testing.T) {
	start := time.Unix(1700000000, 0)
	c := NewMock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, start.Add(1500*time.Millisecond), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestMockTickerFiresWhenDue(t *testing.T) {
	c := NewMock(time.Unix(0, 0))
	tk := c.NewTicker(3 * time.Second)

	c.Advance(2 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-tk.C():
		assert.Equal(t, time.Unix(3, 0), got)
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestMockTickerDropsTicksForSlowReceiver(t *testing.T) {
	c := NewMock(time.Unix(0, 0))
	tk := c.NewTicker(time.Second)

	c.Advance(time.Second)
	c.Advance(time.Second)
	c.Advance(time.Second)

	<-tk.C()
	select {
	case <-tk.C():
		t.Fatal("expected a single buffered tick")
	default:
	}
}

func TestMockTickerStop(t *testing.T) {
	c := NewMock(time.Unix(0, 0))
	tk := c.NewTicker(time.Second)
	require.Equal(t, 1, c.Tickers())

	tk.Stop()
	assert.Equal(t, 0, c.Tickers())

	c.Advance(5 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockForgetsStoppedTickers(t *testing.T) {
	c := NewMock(time.Unix(0, 0))
	for range 100 {
		c.NewTicker(time.Second).Stop()
	}
	live := c.NewTicker(time.Second)

	assert.Equal(t, 1, c.Tickers())
	assert.Len(t, c.tickers, 1)

	live.Stop()
	c.Advance(time.Second)
	assert.Empty(t, c.tickers)
}
