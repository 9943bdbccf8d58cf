// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package livetrack

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/livetrack-foundation/livetrack/bridge"
	"github.com/livetrack-foundation/livetrack/job"
	"github.com/livetrack-foundation/livetrack/lib/clock"
	"github.com/livetrack-foundation/livetrack/lib/testutil"
	"github.com/livetrack-foundation/livetrack/lifecycle"
	"github.com/livetrack-foundation/livetrack/tokens"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeBackend serves a per-job queue of JSON bodies; the last body
// repeats.
type fakeBackend struct {
	mu     sync.Mutex
	bodies map[string][]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{bodies: make(map[string][]string)}
}

func (b *fakeBackend) script(jobID string, bodies ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bodies[jobID] = append(b.bodies[jobID], bodies...)
}

func (b *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jobID := path.Base(r.URL.Path)
		b.mu.Lock()
		queue := b.bodies[jobID]
		if len(queue) == 0 {
			b.mu.Unlock()
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body := queue[0]
		if len(queue) > 1 {
			b.bodies[jobID] = queue[1:]
		}
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	})
}

func jobJSON(id string, status job.Status, progress int) string {
	return fmt.Sprintf(`{"jobId":%q,"userId":"u1","appId":"a1","status":%q,"progress":%d}`,
		id, status, progress)
}

type sdkHarness struct {
	backend *fakeBackend
	bridge  *bridge.MemoryBridge
	clock   *clock.FakeClock
	sdk     *SDK
}

func newSDKHarness(t *testing.T) *sdkHarness {
	t.Helper()
	backend := newFakeBackend()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	memoryBridge := bridge.NewMemoryBridge()
	fake := clock.Fake(testEpoch)

	sdk, err := New(Config{
		BaseURL:      server.URL,
		APIKey:       "test-key",
		PollInterval: time.Second,
		Platform:     lifecycle.PlatformIOS,
	},
		WithClock(fake),
		WithBridge(memoryBridge),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sdk.Dispose)

	return &sdkHarness{backend: backend, bridge: memoryBridge, clock: fake, sdk: sdk}
}

func waitFor(t *testing.T, condition func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within 2s: %s", message)
}

func TestLoadConfigMapsFileFields(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "livetrack.yaml")
	content := `
backend:
  base_url: https://api.example.dev
  api_key: key-abc
  poll_interval: 2s
  initial_job_ids:
    - job_1
    - job_2
bridge:
  platform: android
notifications:
  dismiss_after: 30s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.BaseURL != "https://api.example.dev" || cfg.APIKey != "key-abc" {
		t.Errorf("backend fields = (%q, %q), want file values", cfg.BaseURL, cfg.APIKey)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if len(cfg.InitialJobIDs) != 2 || cfg.InitialJobIDs[0] != "job_1" || cfg.InitialJobIDs[1] != "job_2" {
		t.Errorf("InitialJobIDs = %v, want [job_1 job_2]", cfg.InitialJobIDs)
	}
	if cfg.Platform != lifecycle.PlatformAndroid {
		t.Errorf("Platform = %q, want android", cfg.Platform)
	}
	if cfg.DismissAfter != 30*time.Second {
		t.Errorf("DismissAfter = %v, want 30s", cfg.DismissAfter)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New accepted an empty BaseURL")
	}
}

func TestSDKDrivesNotificationsFromPolling(t *testing.T) {
	h := newSDKHarness(t)
	h.backend.script("job-1",
		jobJSON("job-1", job.StatusRunning, 30),
		jobJSON("job-1", job.StatusRunning, 70),
		jobJSON("job-1", job.StatusCompleted, 100),
	)

	if err := h.sdk.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.sdk.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// The first merged snapshot (running, inactive) starts an
	// activity through the sync loop.
	waitFor(t, func() bool { return h.bridge.CallCount(bridge.ActionStart) == 1 },
		"start call from first snapshot")

	// The next tick merges running/70, which updates in place.
	h.clock.Advance(time.Second)
	waitFor(t, func() bool { return h.bridge.CallCount(bridge.ActionUpdate) == 1 },
		"update call from second snapshot")

	// The terminal snapshot ends the activity and unsubscribes.
	h.clock.Advance(time.Second)
	waitFor(t, func() bool { return h.bridge.CallCount(bridge.ActionEnd) == 1 },
		"end call from terminal snapshot")
	waitFor(t, func() bool { return len(h.sdk.Subscribed()) == 0 },
		"terminal auto-unsubscribe")

	snapshot, found := h.sdk.Store().Get("job-1")
	if !found || snapshot.Status != job.StatusCompleted {
		t.Errorf("store snapshot = %+v (found=%v), want completed", snapshot, found)
	}
}

func TestSDKRoutesTokenEventsIntoBuffer(t *testing.T) {
	h := newSDKHarness(t)

	h.bridge.EmitToken(bridge.TokenEvent{
		Kind: bridge.TokenKindLiveActivity, JobID: "job-1", Token: "tok-a",
	})
	h.bridge.EmitToken(bridge.TokenEvent{
		Kind: bridge.TokenKindDevice, Token: "tok-dev",
	})

	// EmitToken delivers asynchronously; wait for both events to land
	// in the buffer before attaching.
	waitFor(t, func() bool { return h.sdk.tokens.Pending() == 2 }, "buffering emitted tokens")

	received := make(chan tokens.Event, 4)
	detach, err := h.sdk.OnTokenEvent(func(e tokens.Event) { received <- e })
	if err != nil {
		t.Fatalf("OnTokenEvent: %v", err)
	}
	defer detach()

	// Buffered events replay live-activity tokens first.
	first := testutil.RequireReceive(t, received, 2*time.Second, "first replayed token")
	if first.Kind != tokens.KindLiveActivity || first.Token != "tok-a" {
		t.Errorf("first event = %+v, want live-activity tok-a", first)
	}
	second := testutil.RequireReceive(t, received, 2*time.Second, "second replayed token")
	if second.Kind != tokens.KindDevice || second.Token != "tok-dev" {
		t.Errorf("second event = %+v, want device tok-dev", second)
	}

	// Live events flow straight through once attached.
	h.bridge.EmitToken(bridge.TokenEvent{
		Kind: bridge.TokenKindLiveActivity, JobID: "job-2", Token: "tok-b",
	})
	third := testutil.RequireReceive(t, received, 2*time.Second, "live token")
	if third.JobID != "job-2" || third.Token != "tok-b" {
		t.Errorf("live event = %+v, want job-2 tok-b", third)
	}
}

func TestTrackJobStreamsSnapshots(t *testing.T) {
	h := newSDKHarness(t)
	h.backend.script("job-1",
		jobJSON("job-1", job.StatusRunning, 10),
		jobJSON("job-1", job.StatusRunning, 90),
	)
	if err := h.sdk.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	updates, cancel, err := h.sdk.TrackJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("TrackJob: %v", err)
	}
	defer cancel()

	first := testutil.RequireReceive(t, updates, 2*time.Second, "first tracked snapshot")
	if first.Progress != 10 {
		t.Errorf("first progress = %d, want 10", first.Progress)
	}

	h.clock.Advance(time.Second)
	second := testutil.RequireReceive(t, updates, 2*time.Second, "second tracked snapshot")
	if second.Progress != 90 {
		t.Errorf("second progress = %d, want 90", second.Progress)
	}

	cancel()
	if got := h.sdk.Subscribed(); len(got) != 0 {
		t.Errorf("Subscribed() = %v, want empty after TrackJob cancel", got)
	}
}

func TestDisposeIsIdempotentAndStopsEverything(t *testing.T) {
	h := newSDKHarness(t)
	if err := h.sdk.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	h.sdk.Dispose()
	h.sdk.Dispose()

	// Post-dispose store writes are no-ops.
	h.sdk.Store().UpdateJob(job.Job{JobID: "late", Status: job.StatusRunning})
	if h.sdk.Store().Len() != 0 {
		t.Error("store accepted a write after Dispose")
	}
	if err := h.sdk.Subscribe(context.Background(), "job-1"); err == nil {
		t.Error("Subscribe accepted after Dispose")
	}
}

func TestSDKWithoutBridgeStillPolls(t *testing.T) {
	backend := newFakeBackend()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)
	backend.script("job-1", jobJSON("job-1", job.StatusRunning, 40))

	// No WithBridge and no reachable socket: notification calls fail
	// with bridge-not-registered, polling is unaffected.
	sdk, err := New(Config{
		BaseURL:      server.URL,
		BridgeSocket: "/nonexistent/bridge.sock",
	},
		WithClock(clock.Fake(testEpoch)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sdk.Dispose)

	if err := sdk.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sdk.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, found := sdk.Store().Get("job-1"); !found {
		t.Error("polling did not reach the store without a bridge")
	}

	result := sdk.Lifecycle().Start(context.Background(), lifecycle.StartRequest{
		JobID: "job-1", Title: "Job",
	})
	if result.Success || result.Code != lifecycle.CodeBridgeNotRegistered {
		t.Errorf("Start result = %+v, want bridge-not-registered failure", result)
	}
}
