// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNowAdvance(t *testing.T) {
	c := Fake(base)
	if !c.Now().Equal(base) {
		t.Errorf("Now = %v, want %v", c.Now(), base)
	}
	c.Advance(90 * time.Second)
	if want := base.Add(90 * time.Second); !c.Now().Equal(want) {
		t.Errorf("Now = %v, want %v", c.Now(), want)
	}
}

func TestAfterFiresAtDeadline(t *testing.T) {
	c := Fake(base)
	ch := c.After(10 * time.Second)

	c.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		if want := base.Add(10 * time.Second); !got.Equal(want) {
			t.Errorf("fire time = %v, want %v", got, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestAfterNonPositiveFiresImmediately(t *testing.T) {
	c := Fake(base)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestAfterFuncRunsInOrder(t *testing.T) {
	c := Fake(base)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("callback order = %v, want [1 2 3]", order)
	}
}

func TestAfterFuncStop(t *testing.T) {
	c := Fake(base)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop on pending timer returned false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if timer.Stop() {
		t.Error("second Stop returned true")
	}
}

func TestTickerFiresPerInterval(t *testing.T) {
	c := Fake(base)
	ticker := c.NewTicker(10 * time.Second)
	defer ticker.Stop()

	c.Advance(10 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	// Two intervals with a capacity-1 channel: the second tick of the
	// window is dropped, matching time.Ticker.
	c.Advance(20 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after further intervals")
	}
	select {
	case <-ticker.C:
		t.Fatal("slow consumer received a queued tick; expected drop")
	default:
	}
}

func TestTickerStop(t *testing.T) {
	c := Fake(base)
	ticker := c.NewTicker(time.Second)
	ticker.Stop()
	c.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestSleepBlocksUntilAdvance(t *testing.T) {
	c := Fake(base)
	done := make(chan struct{})
	go func() {
		c.Sleep(5 * time.Second)
		close(done)
	}()

	// Let the sleeper register its waiter before advancing.
	for {
		c.mu.Lock()
		registered := len(c.waiters) > 0
		c.mu.Unlock()
		if registered {
			break
		}
		time.Sleep(time.Millisecond)
	}

	c.Advance(5 * time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}
