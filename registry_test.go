// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package livetrack

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/livetrack-foundation/livetrack/bridge"
)

func registryConfig(t *testing.T) Config {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)
	return Config{BaseURL: server.URL}
}

func registryOptions() []Option {
	return []Option{
		WithBridge(bridge.NewMemoryBridge()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
}

func TestRegistryLifecycle(t *testing.T) {
	t.Cleanup(Teardown)

	if _, err := Instance(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Instance() before Init = %v, want ErrNotInitialized", err)
	}

	sdk, err := Init(registryConfig(t), registryOptions()...)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	got, err := Instance()
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}
	if got != sdk {
		t.Error("Instance() returned a different SDK than Init()")
	}

	if _, err := Init(registryConfig(t), registryOptions()...); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Init = %v, want ErrAlreadyInitialized", err)
	}

	Teardown()
	if _, err := Instance(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Instance() after Teardown = %v, want ErrNotInitialized", err)
	}

	// Re-Init after Teardown is allowed.
	if _, err := Init(registryConfig(t), registryOptions()...); err != nil {
		t.Fatalf("re-Init after Teardown: %v", err)
	}
}

func TestFailedInitLeavesRegistryUsable(t *testing.T) {
	t.Cleanup(Teardown)

	if _, err := Init(Config{}); err == nil {
		t.Fatal("Init accepted an empty BaseURL")
	}
	if _, err := Init(registryConfig(t), registryOptions()...); err != nil {
		t.Fatalf("Init after failed Init: %v", err)
	}
}
