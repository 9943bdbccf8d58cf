// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
)

// ErrBridgeNotRegistered reports that no platform host is reachable:
// the socket does not exist, the connection is gone, or the host
// explicitly answered that its native side never registered. The
// lifecycle controller surfaces this as its bridge-not-registered
// code rather than a generic failure.
var ErrBridgeNotRegistered = errors.New("bridge: platform host not registered")

// ErrClosed reports a call on a closed bridge.
var ErrClosed = errors.New("bridge: closed")

// Caller is the command half of the bridge boundary. Implementations
// must be safe for concurrent calls.
//
// Call returns a transport error only when the command could not be
// exchanged at all; a host that processed the command and rejected it
// answers with Response.OK == false and an error code, not an error.
type Caller interface {
	Call(ctx context.Context, request Request) (Response, error)

	// Events is the one-directional token event stream. The channel
	// closes when the bridge closes.
	Events() <-chan TokenEvent

	Close() error
}
