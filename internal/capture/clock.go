package capture

import (
	"sort"
	"sync"
	"time"
)

// Clock schedules the callbacks that drive sampling and restarts.
type Clock interface {
	Now() time.Time
	// Every calls fn every d until stop is called.
	Every(d time.Duration, fn func()) (stop func())
	// AfterFunc calls fn once after d unless stop is called first.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

// RealClock is a Clock backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (RealClock) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// ManualClock is a Clock that only moves when Advance is called. Callbacks
// run synchronously on the goroutine calling Advance, in due-time order
// with ties broken by registration order.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	seq     int
	at      time.Time
	period  time.Duration
	fn      func()
	stopped bool
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Every(d time.Duration, fn func()) func() {
	t := c.add(d, d, fn)
	return func() { c.stop(t) }
}

func (c *ManualClock) AfterFunc(d time.Duration, fn func()) func() bool {
	t := c.add(d, 0, fn)
	return func() bool { return c.stop(t) }
}

// Pending returns the number of active timers.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every callback that falls
// due on the way.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		t := c.nextDueLocked(target)
		if t == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = t.at
		if t.period > 0 {
			t.at = t.at.Add(t.period)
		} else {
			t.stopped = true
		}
		fn := t.fn
		c.mu.Unlock()
		fn()
	}
}

func (c *ManualClock) add(d, period time.Duration, fn func()) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{seq: c.seq, at: c.now.Add(d), period: period, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *ManualClock) stop(t *manualTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (c *ManualClock) nextDueLocked(target time.Time) *manualTimer {
	active := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped {
			active = append(active, t)
		}
	}
	c.timers = active
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].at.Equal(active[j].at) {
			return active[i].seq < active[j].seq
		}
		return active[i].at.Before(active[j].at)
	})
	if len(active) == 0 || active[0].at.After(target) {
		return nil
	}
	return active[0]
}
