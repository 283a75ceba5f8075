// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called; timers, tickers, and sleeps register
// waiters that fire when the clock passes their deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock for tests. AfterFunc callbacks
// run synchronously inside Advance, in deadline order; do not call
// Advance or Sleep from within a callback.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*waiter
}

type waiter struct {
	deadline time.Time

	// channel receives the fire time for After, Sleep, and Ticker
	// waiters; nil for AfterFunc waiters.
	channel chan time.Time

	// callback runs during Advance for AfterFunc waiters; nil
	// otherwise.
	callback func()

	// interval is non-zero for tickers: after firing, the waiter is
	// rescheduled at deadline + interval.
	interval time.Duration

	stopped bool
	fired   bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock advances past
// duration d. If d <= 0 the channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.waiters = append(c.waiters, &waiter{
		deadline: c.current.Add(d),
		channel:  channel,
	})
	return channel
}

// AfterFunc schedules f to run when the clock advances past duration
// d. If d <= 0, f runs synchronously before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	if d <= 0 {
		c.mu.Unlock()
		f()
		return &Timer{stop: func() bool { return false }}
	}
	w := &waiter{
		deadline: c.current.Add(d),
		callback: f,
	}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w.fired || w.stopped {
			return false
		}
		w.stopped = true
		return true
	}}
}

// NewTicker returns a ticker that fires each time the clock advances
// past another interval boundary.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	w := &waiter{
		deadline: c.current.Add(d),
		channel:  channel,
		interval: d,
	}
	c.waiters = append(c.waiters, w)

	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.stopped = true
		},
	}
}

// Sleep blocks the calling goroutine until another goroutine advances
// the clock past duration d.
func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Advance moves the clock forward by d, firing every waiter whose
// deadline falls inside the advanced window, in deadline order.
// Ticker waiters fire once per elapsed interval.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)

	for {
		next := c.nextDeadlineLocked(target)
		if next == nil {
			break
		}
		c.current = next.deadline
		c.fireLocked(next)
	}

	c.current = target
	c.mu.Unlock()
}

// nextDeadlineLocked returns the unstopped waiter with the earliest
// deadline not after target, or nil when none remain in the window.
func (c *FakeClock) nextDeadlineLocked(target time.Time) *waiter {
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			live = append(live, w)
		}
	}
	c.waiters = live

	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})

	if len(c.waiters) == 0 || c.waiters[0].deadline.After(target) {
		return nil
	}
	return c.waiters[0]
}

// fireLocked delivers one waiter. Tickers are rescheduled; one-shot
// waiters are marked fired. Callbacks run with the lock released so
// they can use the clock.
func (c *FakeClock) fireLocked(w *waiter) {
	if w.interval > 0 {
		select {
		case w.channel <- w.deadline:
		default:
			// Slow consumer: drop the tick, matching time.Ticker.
		}
		w.deadline = w.deadline.Add(w.interval)
		return
	}

	w.fired = true
	if w.channel != nil {
		w.channel <- w.deadline
		return
	}
	if w.callback != nil {
		c.mu.Unlock()
		w.callback()
		c.mu.Lock()
	}
}
