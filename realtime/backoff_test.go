package realtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelaySchedule(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, MaxAttempts: 3}

	assert.Equal(t, 1*time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	// Out-of-range attempt clamps to the first slot.
	assert.Equal(t, 1*time.Second, p.Delay(0))
}

func TestBackoffJitterBounds(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, MaxAttempts: 3, Jitter: 0.5}

	for i := 0; i < 100; i++ {
		d := p.Delay(2)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestBackoffExhausted(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, MaxAttempts: 3}

	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}

func TestTimerSetScheduleReplaces(t *testing.T) {
	ts := NewTimerSet()
	var fired atomic.Int32

	ts.Schedule("reconnect", time.Hour, func() { fired.Add(100) })
	ts.Schedule("reconnect", 5*time.Millisecond, func() { fired.Add(1) })
	assert.Equal(t, 1, ts.Pending())

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, ts.Pending())
}

func TestTimerSetCancel(t *testing.T) {
	ts := NewTimerSet()
	var fired atomic.Int32

	ts.Schedule("heartbeat", 10*time.Millisecond, func() { fired.Add(1) })
	ts.Cancel("heartbeat")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 0, ts.Pending())
}

func TestTimerSetCancelAll(t *testing.T) {
	ts := NewTimerSet()
	var fired atomic.Int32

	ts.Schedule("a", 10*time.Millisecond, func() { fired.Add(1) })
	ts.Schedule("b", 10*time.Millisecond, func() { fired.Add(1) })
	ts.Schedule("c", 10*time.Millisecond, func() { fired.Add(1) })
	assert.Equal(t, 3, ts.Pending())

	ts.CancelAll()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 0, ts.Pending())
}

func TestTimerSetRescheduleFromCallback(t *testing.T) {
	ts := NewTimerSet()
	done := make(chan struct{})

	// Scheduling from inside a firing timer must not deadlock.
	ts.Schedule("probe", time.Millisecond, func() {
		ts.Schedule("probe", time.Millisecond, func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rescheduled timer never fired")
	}
}
