// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package poll

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/livetrack-foundation/livetrack/job"
	"github.com/livetrack-foundation/livetrack/lib/clock"
	"github.com/livetrack-foundation/livetrack/lib/testutil"
	"github.com/livetrack-foundation/livetrack/store"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type scriptedResponse struct {
	status int
	body   string
}

// scriptedBackend serves a queue of responses per job id. The last
// queued response repeats once the queue is exhausted; an id with no
// script answers 404.
type scriptedBackend struct {
	mu        sync.Mutex
	responses map[string][]scriptedResponse
	requests  map[string]int
	lastAuth  string
	lastUA    string
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{
		responses: make(map[string][]scriptedResponse),
		requests:  make(map[string]int),
	}
}

func (b *scriptedBackend) script(jobID string, responses ...scriptedResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[jobID] = append(b.responses[jobID], responses...)
}

func (b *scriptedBackend) requestCount(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[jobID]
}

func (b *scriptedBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jobID := path.Base(r.URL.Path)
		b.mu.Lock()
		b.requests[jobID]++
		b.lastAuth = r.Header.Get("Authorization")
		b.lastUA = r.Header.Get("User-Agent")
		queue := b.responses[jobID]
		var response scriptedResponse
		if len(queue) == 0 {
			response = scriptedResponse{status: http.StatusNotFound, body: `{"error":"not found"}`}
		} else {
			response = queue[0]
			if len(queue) > 1 {
				b.responses[jobID] = queue[1:]
			}
		}
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(response.status)
		io.WriteString(w, response.body)
	})
}

func jobJSON(id string, status job.Status, progress int) string {
	return fmt.Sprintf(
		`{"jobId":%q,"userId":"user-1","appId":"app-1","status":%q,"progress":%d,`+
			`"createdAt":"2026-03-01T09:00:00Z","updatedAt":"2026-03-01T09:05:00Z"}`,
		id, status, progress)
}

func ok(id string, status job.Status, progress int) scriptedResponse {
	return scriptedResponse{status: http.StatusOK, body: jobJSON(id, status, progress)}
}

type pollerHarness struct {
	backend *scriptedBackend
	server  *httptest.Server
	store   *store.Store
	clock   *clock.FakeClock
	poller  *Poller
}

func newHarness(t *testing.T, options ...Option) *pollerHarness {
	t.Helper()
	backend := newScriptedBackend()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	st := store.New()
	t.Cleanup(st.Close)

	fake := clock.Fake(testEpoch)
	base := []Option{
		WithClock(fake),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	p := New(Config{
		BaseURL:      server.URL,
		APIKey:       "test-key",
		PollInterval: time.Second,
	}, st, append(base, options...)...)
	t.Cleanup(p.Close)

	return &pollerHarness{backend: backend, server: server, store: st, clock: fake, poller: p}
}

// waitFor polls condition with a wall-clock deadline; used for
// outcomes of asynchronous tick fetches.
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

func TestConnectPerformsImmediatePass(t *testing.T) {
	h := newHarness(t)
	h.poller.config.InitialJobIDs = []string{"job-1"}
	h.backend.script("job-1", ok("job-1", job.StatusRunning, 40))

	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := h.poller.State(); got != StateConnected {
		t.Fatalf("state = %q, want %q", got, StateConnected)
	}
	snapshot, found := h.store.Get("job-1")
	if !found {
		t.Fatal("job-1 not in store after initial pass")
	}
	if snapshot.Status != job.StatusRunning || snapshot.Progress != 40 {
		t.Errorf("snapshot = %q/%d, want running/40", snapshot.Status, snapshot.Progress)
	}
	if got := h.backend.requestCount("job-1"); got != 1 {
		t.Errorf("request count = %d, want 1", got)
	}
}

func TestConnectTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t)
	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if got := h.poller.State(); got != StateConnected {
		t.Errorf("state = %q, want %q", got, StateConnected)
	}
}

func TestRequestHeaders(t *testing.T) {
	h := newHarness(t)
	h.backend.script("job-1", ok("job-1", job.StatusRunning, 10))

	if err := h.poller.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	h.backend.mu.Lock()
	auth, userAgent := h.backend.lastAuth, h.backend.lastUA
	h.backend.mu.Unlock()
	if auth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer token", auth)
	}
	if !strings.HasPrefix(userAgent, "livetrack-go/") {
		t.Errorf("User-Agent = %q, want livetrack-go/ prefix", userAgent)
	}
}

func TestSubscribeFetchesImmediately(t *testing.T) {
	h := newHarness(t)
	h.backend.script("job-1", ok("job-1", job.StatusPending, 0))

	if err := h.poller.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, found := h.store.Get("job-1"); !found {
		t.Fatal("job-1 not merged by the immediate fetch")
	}
	if got := h.poller.Subscribed(); len(got) != 1 || got[0] != "job-1" {
		t.Errorf("Subscribed() = %v, want [job-1]", got)
	}
}

func TestSubscribeValidatesJobID(t *testing.T) {
	h := newHarness(t)
	if err := h.poller.Subscribe(context.Background(), ""); err == nil {
		t.Error("empty job id accepted")
	}
	long := strings.Repeat("x", job.MaxJobIDLength+1)
	if err := h.poller.Subscribe(context.Background(), long); err == nil {
		t.Error("oversized job id accepted")
	}
	if got := h.backend.requestCount(""); got != 0 {
		t.Errorf("backend was called %d times for invalid ids", got)
	}
}

func TestTickRefetchesSubscribedJobs(t *testing.T) {
	h := newHarness(t)
	h.backend.script("job-1",
		ok("job-1", job.StatusRunning, 30),
		ok("job-1", job.StatusRunning, 60),
	)
	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.poller.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	changes, cancel := h.store.Changes()
	defer cancel()

	h.clock.Advance(time.Second)
	update := testutil.RequireReceive(t, changes, 2*time.Second, "waiting for tick update")
	if update.Progress != 60 {
		t.Errorf("progress after tick = %d, want 60", update.Progress)
	}
}

func TestTerminalJobAutoUnsubscribes(t *testing.T) {
	h := newHarness(t)
	h.backend.script("job-1",
		ok("job-1", job.StatusRunning, 40),
		ok("job-1", job.StatusCompleted, 100),
	)
	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.poller.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	changes, cancel := h.store.Changes()
	defer cancel()

	h.clock.Advance(time.Second)
	update := testutil.RequireReceive(t, changes, 2*time.Second, "waiting for terminal update")
	if update.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want completed", update.Status)
	}
	// The unsubscribe happens before the store write, so the set is
	// already empty by the time the change is observable.
	if got := h.poller.Subscribed(); len(got) != 0 {
		t.Errorf("Subscribed() = %v, want empty after terminal status", got)
	}

	// The terminal snapshot stays queryable; further ticks fetch
	// nothing.
	if _, found := h.store.Get("job-1"); !found {
		t.Error("terminal snapshot evicted from store")
	}
	h.clock.Advance(time.Second)
	testutil.RequireNoReceive(t, changes, 50*time.Millisecond, "update after unsubscribe")
	if got := h.backend.requestCount("job-1"); got != 2 {
		t.Errorf("request count = %d, want 2", got)
	}
}

func TestNotFoundUnsubscribesWithoutTombstone(t *testing.T) {
	h := newHarness(t)
	// No script: the backend answers 404.
	if err := h.poller.Subscribe(context.Background(), "ghost"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := h.poller.Subscribed(); len(got) != 0 {
		t.Errorf("Subscribed() = %v, want empty after 404", got)
	}
	if _, found := h.store.Get("ghost"); found {
		t.Error("404 wrote a store entry")
	}
}

func TestMalformedBodyKeepsSubscription(t *testing.T) {
	h := newHarness(t)
	h.backend.script("job-1",
		scriptedResponse{status: http.StatusOK, body: `{"this is": not json`},
		ok("job-1", job.StatusRunning, 20),
	)
	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.poller.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, found := h.store.Get("job-1"); found {
		t.Error("malformed body reached the store")
	}
	if got := h.poller.Subscribed(); len(got) != 1 {
		t.Fatalf("Subscribed() = %v, want job-1 retained", got)
	}

	changes, cancel := h.store.Changes()
	defer cancel()
	h.clock.Advance(time.Second)
	update := testutil.RequireReceive(t, changes, 2*time.Second, "waiting for recovery fetch")
	if update.Progress != 20 {
		t.Errorf("progress = %d, want 20", update.Progress)
	}
}

func TestMismatchedJobIDDiscarded(t *testing.T) {
	h := newHarness(t)
	h.backend.script("job-1", ok("other-job", job.StatusRunning, 50))
	if err := h.poller.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if h.store.Len() != 0 {
		t.Error("mismatched response reached the store")
	}
	if got := h.poller.Subscribed(); len(got) != 1 {
		t.Errorf("Subscribed() = %v, want job-1 retained", got)
	}
}

func TestServerErrorRetriesNextTick(t *testing.T) {
	h := newHarness(t)
	h.backend.script("job-1",
		scriptedResponse{status: http.StatusInternalServerError, body: `{"error":"boom"}`},
		ok("job-1", job.StatusRunning, 75),
	)
	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.poller.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, found := h.store.Get("job-1"); found {
		t.Error("500 response reached the store")
	}
	if got := h.poller.Subscribed(); len(got) != 1 {
		t.Fatalf("Subscribed() = %v, want job-1 retained after 500", got)
	}

	changes, cancel := h.store.Changes()
	defer cancel()
	h.clock.Advance(time.Second)
	update := testutil.RequireReceive(t, changes, 2*time.Second, "waiting for retry fetch")
	if update.Progress != 75 {
		t.Errorf("progress = %d, want 75", update.Progress)
	}
}

// failingTransport fails every round trip while tripped.
type failingTransport struct {
	mu   sync.Mutex
	fail bool
	base http.RoundTripper
}

func (f *failingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	f.mu.Lock()
	tripped := f.fail
	f.mu.Unlock()
	if tripped {
		return nil, fmt.Errorf("connection refused")
	}
	return f.base.RoundTrip(r)
}

func (f *failingTransport) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func TestTransportFailureEntersReconnecting(t *testing.T) {
	transport := &failingTransport{base: http.DefaultTransport}
	h := newHarness(t, WithHTTPClient(&http.Client{Transport: transport}))
	h.backend.script("job-1", ok("job-1", job.StatusRunning, 10))

	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.poller.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	transport.setFail(true)
	h.clock.Advance(time.Second)
	waitFor(t, func() bool { return h.poller.State() == StateReconnecting },
		"state transition to reconnecting")
	if got := h.poller.Subscribed(); len(got) != 1 {
		t.Errorf("Subscribed() = %v, want subscription retained across outage", got)
	}

	transport.setFail(false)
	h.clock.Advance(time.Second)
	waitFor(t, func() bool { return h.poller.State() == StateConnected },
		"state recovery to connected")
}

func TestDisconnectStopsTickingAndKeepsSubscriptions(t *testing.T) {
	h := newHarness(t)
	h.backend.script("job-1", ok("job-1", job.StatusRunning, 10))
	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.poller.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	before := h.backend.requestCount("job-1")

	h.poller.Disconnect()
	if got := h.poller.State(); got != StateDisconnected {
		t.Fatalf("state = %q, want %q", got, StateDisconnected)
	}

	changes, cancel := h.store.Changes()
	defer cancel()
	h.clock.Advance(3 * time.Second)
	testutil.RequireNoReceive(t, changes, 50*time.Millisecond, "tick after disconnect")
	if got := h.backend.requestCount("job-1"); got != before {
		t.Errorf("request count moved %d -> %d while disconnected", before, got)
	}

	// Reconnecting resumes the same subscription set.
	h.backend.script("job-1", ok("job-1", job.StatusRunning, 55))
	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if got := h.backend.requestCount("job-1"); got != before+1 {
		t.Errorf("request count = %d, want %d after reconnect pass", got, before+1)
	}
}

func TestUnsubscribeStopsFetching(t *testing.T) {
	h := newHarness(t)
	h.backend.script("job-1", ok("job-1", job.StatusRunning, 10))
	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.poller.Subscribe(context.Background(), "job-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	before := h.backend.requestCount("job-1")

	h.poller.Unsubscribe("job-1")
	h.clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := h.backend.requestCount("job-1"); got != before {
		t.Errorf("request count moved %d -> %d after unsubscribe", before, got)
	}
	// The last snapshot is untouched.
	if _, found := h.store.Get("job-1"); !found {
		t.Error("unsubscribe evicted the store snapshot")
	}
}

func TestSubscribeAllFetchesEveryJob(t *testing.T) {
	h := newHarness(t)
	h.backend.script("job-a", ok("job-a", job.StatusRunning, 10))
	h.backend.script("job-b", ok("job-b", job.StatusPending, 0))

	if err := h.poller.SubscribeAll(context.Background(), []string{"job-b", "job-a"}); err != nil {
		t.Fatalf("SubscribeAll: %v", err)
	}
	if h.store.Len() != 2 {
		t.Fatalf("store has %d jobs, want 2", h.store.Len())
	}
	got := h.poller.Subscribed()
	if len(got) != 2 || got[0] != "job-a" || got[1] != "job-b" {
		t.Errorf("Subscribed() = %v, want sorted [job-a job-b]", got)
	}
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	h := newHarness(t)
	if err := h.poller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	h.poller.Close()
	if err := h.poller.Subscribe(context.Background(), "job-1"); err == nil {
		t.Error("Subscribe accepted after Close")
	}
	if err := h.poller.Connect(context.Background()); err == nil {
		t.Error("Connect accepted after Close")
	}
}
