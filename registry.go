// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package livetrack

import (
	"errors"
	"sync"
)

// ErrAlreadyInitialized is returned by Init when the process-wide
// instance already exists. Call Teardown first.
var ErrAlreadyInitialized = errors.New("livetrack: already initialized")

// ErrNotInitialized is returned by Instance before Init (or after
// Teardown).
var ErrNotInitialized = errors.New("livetrack: not initialized")

// registry holds the optional process-wide SDK instance. The explicit
// initialized flag is the only static state; nothing else in the SDK
// is package-global.
var registry struct {
	mu          sync.Mutex
	sdk         *SDK
	initialized bool
}

// Init constructs the process-wide SDK instance. A second Init without
// an intervening Teardown fails with ErrAlreadyInitialized.
func Init(cfg Config, opts ...Option) (*SDK, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.initialized {
		return nil, ErrAlreadyInitialized
	}
	sdk, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	registry.sdk = sdk
	registry.initialized = true
	return sdk, nil
}

// Instance returns the process-wide SDK created by Init.
func Instance() (*SDK, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if !registry.initialized {
		return nil, ErrNotInitialized
	}
	return registry.sdk, nil
}

// Teardown disposes the process-wide SDK and clears the registry.
// A later Init is allowed. Teardown without Init is a no-op.
func Teardown() {
	registry.mu.Lock()
	sdk := registry.sdk
	registry.sdk = nil
	registry.initialized = false
	registry.mu.Unlock()

	if sdk != nil {
		sdk.Dispose()
	}
}
