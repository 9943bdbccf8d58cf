// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability. Production
// code injects Real(); tests inject Fake() and advance time explicitly.
//
// The poll loop's tick interval and the lifecycle controller's
// dismiss-after timers are the two time-driven behaviors in the SDK.
// Both take a Clock so tests never sleep.
package clock

import "time"

// Clock is the time source used by every timer-driven component.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d elapses. If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc waits for duration d, then calls f in its own
	// goroutine (real clock) or synchronously during Advance (fake
	// clock). The returned Timer cancels the pending call via Stop.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Read ticks from C; call Stop when
// done. C has capacity 1: ticks are dropped, not queued, when the
// consumer falls behind. This matches time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. No further ticks are sent on C. Stop
// does not close C.
func (t *Ticker) Stop() { t.stop() }

// Timer is a scheduled one-shot event created by AfterFunc. Its C
// field does not exist: AfterFunc timers only fire their callback.
type Timer struct {
	stop func() bool
}

// Stop prevents the timer from firing. It returns true if the call
// stopped the timer, false if the timer already fired or was stopped.
func (t *Timer) Stop() bool { return t.stop() }
