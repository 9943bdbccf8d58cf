// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

// Package poll implements the fetch-and-merge reconciliation loop
// between the job backend and the state store.
//
// The loop maintains a subscription set of job ids. On a fixed
// interval it fetches every subscribed job independently and writes
// each response into the store as a complete snapshot. Terminal jobs
// and 404s drop their subscription; transient failures stay
// subscribed and heal passively on the next tick; there is no backoff
// and no circuit breaker.
package poll

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/livetrack-foundation/livetrack/job"
	"github.com/livetrack-foundation/livetrack/lib/clock"
	"github.com/livetrack-foundation/livetrack/lib/version"
	"github.com/livetrack-foundation/livetrack/store"
)

// State is the poller's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"

	// StateReconnecting means the last fetch hit a transport-level
	// failure; the loop keeps ticking and returns to connected on the
	// first success.
	StateReconnecting State = "reconnecting"
)

// Default configuration values.
const (
	DefaultBasePath     = "/v1"
	DefaultPollInterval = 5 * time.Second
	DefaultTimeout      = 30 * time.Second
)

// Config configures the poller. Zero values take the defaults above.
type Config struct {
	// BaseURL is the backend origin, e.g. "https://api.example.dev".
	BaseURL string

	// BasePath prefixes every request path. Default "/v1".
	BasePath string

	// APIKey is sent as a bearer token.
	APIKey string

	// PollInterval is the tick period. Default 5s.
	PollInterval time.Duration

	// Timeout bounds each individual job fetch. Default 30s.
	Timeout time.Duration

	// InitialJobIDs are subscribed on Connect.
	InitialJobIDs []string

	// Debug enables per-fetch debug logging.
	Debug bool
}

func (c Config) withDefaults() Config {
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Poller periodically reconciles subscribed jobs into the store.
type Poller struct {
	config Config
	store  *store.Store
	client *http.Client
	clock  clock.Clock
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	subscribed map[string]struct{}
	stopTick   chan struct{}
	ticker     *clock.Ticker
	closed     bool

	inflight sync.WaitGroup
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock injects the tick time source. Tests use clock.Fake.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

// WithHTTPClient replaces the HTTP transport.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Poller) { p.client = client }
}

// New returns a disconnected Poller writing into st.
func New(config Config, st *store.Store, options ...Option) *Poller {
	p := &Poller{
		config:     config.withDefaults(),
		store:      st,
		client:     &http.Client{},
		clock:      clock.Real(),
		logger:     slog.Default(),
		state:      StateDisconnected,
		subscribed: make(map[string]struct{}),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// State returns the current connection state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Connect seeds the subscription set with the configured initial job
// ids, starts the tick loop, and runs one immediate fetch pass. A
// poller that is already connected returns nil without doing
// anything. After a Disconnect, Connect resumes the prior
// subscription set (plus the initial ids).
func (p *Poller) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("poll: poller is closed")
	}
	if p.state == StateConnected || p.state == StateConnecting || p.state == StateReconnecting {
		p.mu.Unlock()
		return nil
	}
	p.state = StateConnecting
	for _, id := range p.config.InitialJobIDs {
		if id != "" {
			p.subscribed[id] = struct{}{}
		}
	}
	p.stopTick = make(chan struct{})
	p.ticker = p.clock.NewTicker(p.config.PollInterval)
	stopTick, ticker := p.stopTick, p.ticker
	p.mu.Unlock()

	go p.tickLoop(ticker, stopTick)

	// One immediate pass so consumers see current state without
	// waiting out the first interval. Connect returns when the pass
	// completes; each fetch is bounded by the configured timeout.
	p.fetchAll(ctx, p.Subscribed())

	p.mu.Lock()
	if p.state == StateConnecting {
		p.state = StateConnected
	}
	p.mu.Unlock()
	p.logger.Info("poller connected", "interval", p.config.PollInterval, "jobs", len(p.Subscribed()))
	return nil
}

// Disconnect stops the tick loop and releases idle transport
// connections. The subscription set survives for a later Connect.
// Fetches already in flight complete and still write to the store.
func (p *Poller) Disconnect() {
	p.mu.Lock()
	if p.state == StateDisconnected {
		p.mu.Unlock()
		return
	}
	p.state = StateDisconnected
	if p.ticker != nil {
		p.ticker.Stop()
		p.ticker = nil
	}
	if p.stopTick != nil {
		close(p.stopTick)
		p.stopTick = nil
	}
	p.mu.Unlock()

	p.client.CloseIdleConnections()
	p.logger.Info("poller disconnected")
}

// Close disconnects, waits for in-flight fetches, and makes the
// poller permanently unusable.
func (p *Poller) Close() {
	p.mu.Lock()
	alreadyClosed := p.closed
	p.closed = true
	p.mu.Unlock()
	if alreadyClosed {
		return
	}
	p.Disconnect()
	p.inflight.Wait()
}

// Subscribe adds id to the subscription set and fetches it
// immediately rather than waiting for the next tick. The call returns
// once the immediate fetch has been merged (or failed); the
// subscription persists either way unless the fetch proved the job
// gone.
func (p *Poller) Subscribe(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("poll: job id is empty")
	}
	if len(id) > job.MaxJobIDLength {
		return fmt.Errorf("poll: job id exceeds %d characters", job.MaxJobIDLength)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("poll: poller is closed")
	}
	p.subscribed[id] = struct{}{}
	p.mu.Unlock()

	p.fetchJob(ctx, id)
	return nil
}

// SubscribeAll is the batched Subscribe: every id is added and
// fetched immediately, the fetches running concurrently.
func (p *Poller) SubscribeAll(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("poll: job id is empty")
		}
		if len(id) > job.MaxJobIDLength {
			return fmt.Errorf("poll: job id exceeds %d characters", job.MaxJobIDLength)
		}
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("poll: poller is closed")
	}
	for _, id := range ids {
		p.subscribed[id] = struct{}{}
	}
	p.mu.Unlock()

	p.fetchAll(ctx, ids)
	return nil
}

// Unsubscribe removes id from the subscription set. The store's last
// snapshot for the job is untouched.
func (p *Poller) Unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subscribed, id)
}

// Subscribed returns the subscription set, sorted.
func (p *Poller) Subscribed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.subscribed))
	for id := range p.subscribed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// tickLoop drives periodic passes until Disconnect. Each pass fires
// its fetches and returns immediately so a slow backend can never
// delay the next tick.
func (p *Poller) tickLoop(ticker *clock.Ticker, stopTick chan struct{}) {
	for {
		select {
		case <-stopTick:
			return
		case <-ticker.C:
			// Snapshot under the lock; fetch outcomes mutate the set
			// mid-pass.
			ids := p.Subscribed()
			if p.config.Debug {
				p.logger.Debug("poll tick", "jobs", len(ids))
			}
			for _, id := range ids {
				p.inflight.Add(1)
				go func(jobID string) {
					defer p.inflight.Done()
					p.fetchJob(context.Background(), jobID)
				}(id)
			}
		}
	}
}

// fetchAll fetches the given ids concurrently and waits for all of
// them.
func (p *Poller) fetchAll(ctx context.Context, ids []string) {
	var pass sync.WaitGroup
	for _, id := range ids {
		p.inflight.Add(1)
		pass.Add(1)
		go func(jobID string) {
			defer p.inflight.Done()
			defer pass.Done()
			p.fetchJob(ctx, jobID)
		}(id)
	}
	pass.Wait()
}

// fetchJob performs one job fetch and applies its outcome. Outcomes
// are isolated: nothing here can fail a sibling fetch or escape to a
// caller.
func (p *Poller) fetchJob(ctx context.Context, id string) {
	requestCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, p.jobURL(id), nil)
	if err != nil {
		p.logger.Error("building job request", "job_id", id, "error", err)
		return
	}
	if p.config.APIKey != "" {
		request.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())

	response, err := p.client.Do(request)
	if err != nil {
		// Transport failure: stay subscribed, the next tick retries.
		p.noteTransportFailure()
		if p.config.Debug {
			p.logger.Debug("job fetch failed", "job_id", id, "error", err)
		}
		return
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusOK:
		body, err := io.ReadAll(response.Body)
		if err != nil {
			p.noteTransportFailure()
			p.logger.Warn("reading job response", "job_id", id, "error", err)
			return
		}
		p.noteSuccess()
		p.applySnapshot(id, body)

	case response.StatusCode == http.StatusNotFound:
		// Permanently gone: drop the subscription, keep whatever
		// snapshot the store already has.
		p.noteSuccess()
		p.Unsubscribe(id)
		p.logger.Info("job gone, unsubscribed", "job_id", id)

	default:
		p.logger.Warn("job fetch returned non-success status",
			"job_id", id, "status", response.StatusCode)
	}
}

// applySnapshot decodes and merges one 200 response body. Terminal
// jobs are unsubscribed before the store write so observers of the
// write already see the subscription gone.
func (p *Poller) applySnapshot(id string, body []byte) {
	snapshot, err := job.Decode(body)
	if err != nil {
		// A malformed body must not crash the loop or drop the
		// subscription; the next tick may return a good one.
		p.logger.Warn("discarding malformed job response", "job_id", id, "error", err)
		return
	}
	if snapshot.JobID != id {
		p.logger.Warn("response job id mismatch", "requested", id, "received", snapshot.JobID)
		return
	}

	if snapshot.IsTerminal() {
		p.Unsubscribe(id)
		if p.config.Debug {
			p.logger.Debug("terminal job auto-unsubscribed", "job_id", id, "status", snapshot.Status)
		}
	}
	p.store.UpdateJob(snapshot)
}

func (p *Poller) jobURL(id string) string {
	return p.config.BaseURL + p.config.BasePath + "/jobs/" + url.PathEscape(id)
}

// noteTransportFailure flips connected → reconnecting.
func (p *Poller) noteTransportFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateConnected {
		p.state = StateReconnecting
	}
}

// noteSuccess flips reconnecting → connected.
func (p *Poller) noteSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateReconnecting {
		p.state = StateConnected
	}
}
