package decorate

import (
	"sync"
	"time"
)

// Throttle runs fn at most once per interval. The first call in a quiet
// period runs immediately; calls made while throttled collapse into one run
// at the end of the interval.
type Throttle struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	last    time.Time
	pending bool
	stopped bool
}

func NewThrottle(interval time.Duration, fn func()) *Throttle {
	return &Throttle{interval: interval, fn: fn}
}

func (t *Throttle) Trigger() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	now := time.Now()
	elapsed := now.Sub(t.last)
	if t.timer == nil && elapsed >= t.interval {
		t.last = now
		t.mu.Unlock()
		t.fn()
		return
	}

	t.pending = true
	if t.timer == nil {
		t.timer = time.AfterFunc(t.interval-elapsed, t.flush)
	}
	t.mu.Unlock()
}

// Stop drops any pending trailing run.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Throttle) flush() {
	t.mu.Lock()
	t.timer = nil
	if !t.pending || t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.last = time.Now()
	t.mu.Unlock()
	t.fn()
}
