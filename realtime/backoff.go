package realtime

import (
	"math/rand"
	"sync"
	"time"
)

// BackoffPolicy computes reconnect delays: base doubled per attempt, with
// optional jitter. Attempt numbers are 1-based, so attempt i waits at least
// base * 2^(i-1).
type BackoffPolicy struct {
	Base        time.Duration
	MaxAttempts int
	Jitter      float64 // extra fraction of the delay, in [0, 1)
}

func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base << uint(attempt-1)
	if p.Jitter > 0 {
		delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
	}
	return delay
}

// Exhausted reports whether attempt exceeds the policy's budget.
func (p BackoffPolicy) Exhausted(attempt int) bool {
	return attempt > p.MaxAttempts
}

// TimerSet owns every named timer a connection schedules. Scheduling a name
// again replaces the previous timer; CancelAll stops everything at once so a
// torn-down connection cannot leave stray callbacks behind.
type TimerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerSet() *TimerSet {
	return &TimerSet{timers: make(map[string]*time.Timer)}
}

func (ts *TimerSet) Schedule(name string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if old, ok := ts.timers[name]; ok {
		old.Stop()
	}
	ts.timers[name] = time.AfterFunc(d, func() {
		ts.mu.Lock()
		delete(ts.timers, name)
		ts.mu.Unlock()
		fn()
	})
}

func (ts *TimerSet) Cancel(name string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if t, ok := ts.timers[name]; ok {
		t.Stop()
		delete(ts.timers, name)
	}
}

func (ts *TimerSet) CancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for name, t := range ts.timers {
		t.Stop()
		delete(ts.timers, name)
	}
}

// Pending reports how many timers are still armed.
func (ts *TimerSet) Pending() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}
