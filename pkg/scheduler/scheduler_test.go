package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_RunsOnNextFrameOnly(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewManual(start, 10*time.Millisecond)

	var seen []time.Time
	var tick FrameFunc
	tick = func(now time.Time) {
		seen = append(seen, now)
		m.Schedule(tick)
	}
	m.Schedule(tick)

	assert.Equal(t, 1, m.Frame())
	assert.Equal(t, 1, m.Frame())
	require.Len(t, seen, 2)
	assert.Equal(t, start.Add(10*time.Millisecond), seen[0])
	assert.Equal(t, start.Add(20*time.Millisecond), seen[1])
	assert.Equal(t, 1, m.Pending())
}

func TestManual_CancelRemovesPending(t *testing.T) {
	m := NewManual(time.Unix(0, 0), 0)
	ran := false
	cancel := m.Schedule(func(time.Time) { ran = true })
	cancel()
	cancel()

	assert.Equal(t, 0, m.Frame())
	assert.False(t, ran)
}

func TestManual_Advance(t *testing.T) {
	m := NewManual(time.Unix(0, 0), 10*time.Millisecond)
	count := 0
	var tick FrameFunc
	tick = func(time.Time) {
		count++
		m.Schedule(tick)
	}
	m.Schedule(tick)

	m.Advance(100 * time.Millisecond)
	assert.Equal(t, 10, count)
	assert.Equal(t, time.Unix(0, 0).Add(100*time.Millisecond), m.Now())
}

func TestTicker_RunsScheduledCallbacks(t *testing.T) {
	tk := NewTicker(time.Millisecond)
	defer tk.Stop()

	var n atomic.Int32
	done := make(chan struct{})
	var tick FrameFunc
	tick = func(time.Time) {
		if n.Add(1) == 3 {
			close(done)
			return
		}
		tk.Schedule(tick)
	}
	tk.Schedule(tick)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker did not run three frames")
	}
}

func TestTicker_StopIsIdempotent(t *testing.T) {
	tk := NewTicker(time.Millisecond)
	tk.Stop()
	tk.Stop()
}
