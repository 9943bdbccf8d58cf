// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

// Package tokens buffers push-token events between the native bridge
// and the SDK consumer.
//
// Native token callbacks can fire before any consumer has attached a
// listener: immediately after a permission grant during app launch,
// before the consumer's own wiring is up. Dropping those events
// silently would mean the backend never learns the token and push
// updates never arrive. The Buffer holds early events and replays
// them, in arrival order, to the first listener that attaches.
package tokens

import (
	"errors"
	"sync"
)

// Kind discriminates the two token event shapes.
type Kind string

const (
	// KindLiveActivity is a per-activity push token, scoped to one job.
	KindLiveActivity Kind = "live_activity"

	// KindDevice is the device-wide push token.
	KindDevice Kind = "device"
)

// Event is one push-token delivery from the native layer. JobID is
// set only for live-activity tokens.
type Event struct {
	Kind  Kind
	JobID string
	Token string
}

// ErrListenerAttached is returned by Attach when a listener is
// already present. Detach the existing listener first; silently
// replacing it would make delivery ownership ambiguous.
var ErrListenerAttached = errors.New("tokens: a listener is already attached")

// Listener receives token events. Called synchronously from Publish
// (or from Attach during the flush); implementations must not block.
type Listener func(Event)

// Buffer queues token events while no listener is attached and
// replays them exactly once, in intra-kind arrival order, when one
// attaches. With a listener attached, Publish delivers immediately
// and nothing is buffered.
//
// Ordering is guaranteed within each kind. Live-activity and device
// events are flushed as two separate sequences; cross-kind
// interleaving is not preserved.
type Buffer struct {
	mu sync.Mutex

	listener     Listener
	liveActivity []Event
	device       []Event

	// generation increments on every Attach so a stale detach func
	// from an earlier attachment cannot remove a newer listener.
	generation uint64
}

// NewBuffer returns an empty Buffer with no listener.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Publish delivers event to the attached listener, or buffers it for
// the next attachment when no listener is present.
func (b *Buffer) Publish(event Event) {
	b.mu.Lock()
	listener := b.listener
	if listener == nil {
		switch event.Kind {
		case KindDevice:
			b.device = append(b.device, event)
		default:
			b.liveActivity = append(b.liveActivity, event)
		}
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	// Deliver outside the lock so a listener that publishes (or
	// detaches) re-entrantly cannot deadlock.
	listener(event)
}

// Attach registers the listener and flushes both buffers to it in
// original arrival order, live-activity events first. Flushed events
// are discarded: a later attachment never sees them again. The
// returned detach func removes the listener; it is safe to call more
// than once.
//
// Returns ErrListenerAttached when a listener is already present.
func (b *Buffer) Attach(listener Listener) (detach func(), err error) {
	b.mu.Lock()
	if b.listener != nil {
		b.mu.Unlock()
		return nil, ErrListenerAttached
	}
	b.listener = listener
	b.generation++
	attachedGeneration := b.generation
	backlogActivity := b.liveActivity
	backlogDevice := b.device
	b.liveActivity = nil
	b.device = nil
	b.mu.Unlock()

	for _, event := range backlogActivity {
		listener(event)
	}
	for _, event := range backlogDevice {
		listener(event)
	}

	return func() {
		b.mu.Lock()
		if b.generation == attachedGeneration {
			b.listener = nil
		}
		b.mu.Unlock()
	}, nil
}

// Pending returns the number of buffered events awaiting a listener.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.liveActivity) + len(b.device)
}
