// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package livetrack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/livetrack-foundation/livetrack/bridge"
	"github.com/livetrack-foundation/livetrack/job"
	"github.com/livetrack-foundation/livetrack/lib/clock"
	"github.com/livetrack-foundation/livetrack/lib/config"
	"github.com/livetrack-foundation/livetrack/lifecycle"
	"github.com/livetrack-foundation/livetrack/poll"
	"github.com/livetrack-foundation/livetrack/store"
	"github.com/livetrack-foundation/livetrack/tokens"
)

// Config configures an SDK instance.
type Config struct {
	// BaseURL is the job backend origin. Required.
	BaseURL string

	// BasePath prefixes every backend request path. Default "/v1".
	BasePath string

	// APIKey is sent as a bearer token on every backend request.
	APIKey string

	// PollInterval is the reconciliation tick period. Default 5s.
	PollInterval time.Duration

	// Timeout bounds each individual job fetch. Default 30s.
	Timeout time.Duration

	// InitialJobIDs are subscribed when the poller connects.
	InitialJobIDs []string

	// Platform selects the notification surface. Default ios.
	Platform lifecycle.Platform

	// BridgeSocket is the Unix socket of the platform host process.
	// Leave empty when injecting a bridge via WithBridge.
	BridgeSocket string

	// DismissAfter overrides how long a finished job's notification
	// stays visible. Zero uses the platform default (4h on iOS, 5s
	// on Android).
	DismissAfter time.Duration

	// Debug enables per-fetch debug logging.
	Debug bool
}

// LoadConfig reads an SDK Config from a YAML or JSONC file via
// lib/config. The file's environment overrides and variable expansion
// are applied before conversion.
func LoadConfig(path string) (Config, error) {
	fileConfig, err := config.LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := fileConfig.Validate(); err != nil {
		return Config{}, err
	}
	return Config{
		BaseURL:       fileConfig.Backend.BaseURL,
		BasePath:      fileConfig.Backend.BasePath,
		APIKey:        fileConfig.Backend.APIKey,
		PollInterval:  fileConfig.PollInterval(),
		Timeout:       fileConfig.Timeout(),
		InitialJobIDs: fileConfig.Backend.InitialJobIDs,
		Platform:      lifecycle.Platform(fileConfig.Bridge.Platform),
		BridgeSocket:  fileConfig.Bridge.SocketPath,
		DismissAfter:  fileConfig.DismissAfter(),
		Debug:         fileConfig.Logging.Level == "debug",
	}, nil
}

// SDK bundles the store, poller, lifecycle controller, and token
// buffer behind one lifecycle. Construct with New, release with
// Dispose.
type SDK struct {
	config Config
	logger *slog.Logger

	store      *store.Store
	poller     *poll.Poller
	controller *lifecycle.Controller
	tokens     *tokens.Buffer
	bridge     bridge.Caller

	// baseCtx bounds the bridge calls made by the internal sync
	// goroutine; Dispose cancels it.
	baseCtx    context.Context
	cancelBase func()

	cancelChanges func()
	syncDone      chan struct{}
	tokenDone     chan struct{}

	disposeOnce sync.Once
}

// Option configures an SDK.
type Option func(*options)

type options struct {
	clock      clock.Clock
	logger     *slog.Logger
	bridge     bridge.Caller
	httpClient *http.Client
}

// WithClock injects the time source used by the poll ticker and the
// lifecycle dismiss timers.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the structured logger for all components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBridge injects the platform bridge, replacing the Unix socket
// dial. Tests use bridge.NewMemoryBridge.
func WithBridge(caller bridge.Caller) Option {
	return func(o *options) { o.bridge = caller }
}

// WithHTTPClient replaces the poller's HTTP transport.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// New constructs a fully wired SDK. The poller starts disconnected;
// call Connect to begin polling. If no bridge is injected and the
// platform host socket cannot be reached, notification calls fail
// with the bridge-not-registered code but the SDK itself is usable.
func New(cfg Config, opts ...Option) (*SDK, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("livetrack: Config.BaseURL is required")
	}
	if cfg.Platform == "" {
		cfg.Platform = lifecycle.PlatformIOS
	}

	o := options{
		clock:  clock.Real(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	caller := o.bridge
	if caller == nil {
		socketBridge, err := bridge.DialSocket(cfg.BridgeSocket, o.logger)
		if err != nil {
			o.logger.Warn("platform bridge unavailable", "socket", cfg.BridgeSocket, "error", err)
			caller = unregisteredBridge{}
		} else {
			caller = socketBridge
		}
	}

	st := store.New()

	pollOptions := []poll.Option{
		poll.WithClock(o.clock),
		poll.WithLogger(o.logger),
	}
	if o.httpClient != nil {
		pollOptions = append(pollOptions, poll.WithHTTPClient(o.httpClient))
	}
	poller := poll.New(poll.Config{
		BaseURL:       cfg.BaseURL,
		BasePath:      cfg.BasePath,
		APIKey:        cfg.APIKey,
		PollInterval:  cfg.PollInterval,
		Timeout:       cfg.Timeout,
		InitialJobIDs: cfg.InitialJobIDs,
		Debug:         cfg.Debug,
	}, st, pollOptions...)

	controllerOptions := []lifecycle.ControllerOption{
		lifecycle.WithClock(o.clock),
		lifecycle.WithLogger(o.logger),
	}
	if cfg.DismissAfter > 0 {
		controllerOptions = append(controllerOptions, lifecycle.WithDismissAfter(cfg.DismissAfter))
	}
	controller := lifecycle.NewController(
		lifecycle.ForPlatform(cfg.Platform, caller),
		controllerOptions...,
	)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	s := &SDK{
		config:     cfg,
		logger:     o.logger,
		store:      st,
		poller:     poller,
		controller: controller,
		tokens:     tokens.NewBuffer(),
		bridge:     caller,
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
		syncDone:   make(chan struct{}),
		tokenDone:  make(chan struct{}),
	}

	changes, cancelChanges := st.Changes()
	s.cancelChanges = cancelChanges
	go s.syncLoop(changes)
	go s.tokenLoop(caller.Events())

	return s, nil
}

// syncLoop drives the lifecycle controller from store changes. Every
// merged job snapshot becomes a start, update, or end on the platform
// surface per the controller's reducer. The loop ends when the store
// closes.
func (s *SDK) syncLoop(changes <-chan job.Job) {
	defer close(s.syncDone)
	for snapshot := range changes {
		result := s.controller.SyncWithJob(s.baseCtx, snapshot)
		if !result.Success && result.Code != lifecycle.CodeBridgeNotRegistered {
			s.logger.Warn("notification sync failed",
				"job_id", snapshot.JobID, "code", result.Code, "message", result.Message)
		}
	}
}

// tokenLoop routes bridge token events into the token buffer. The
// loop ends when the bridge closes its event channel.
func (s *SDK) tokenLoop(events <-chan bridge.TokenEvent) {
	defer close(s.tokenDone)
	if events == nil {
		return
	}
	for event := range events {
		kind, known := tokenKind(event.Kind)
		if !known {
			s.logger.Warn("dropping token event of unknown kind", "kind", event.Kind)
			continue
		}
		s.tokens.Publish(tokens.Event{Kind: kind, JobID: event.JobID, Token: event.Token})
	}
}

func tokenKind(wireKind string) (tokens.Kind, bool) {
	switch wireKind {
	case bridge.TokenKindLiveActivity:
		return tokens.KindLiveActivity, true
	case bridge.TokenKindDevice:
		return tokens.KindDevice, true
	}
	return "", false
}

// Connect starts the poll loop and runs one immediate fetch pass over
// the subscription set.
func (s *SDK) Connect(ctx context.Context) error {
	return s.poller.Connect(ctx)
}

// Disconnect stops the poll loop. Subscriptions and store contents
// survive; Connect resumes where polling left off.
func (s *SDK) Disconnect() {
	s.poller.Disconnect()
}

// Subscribe tracks a job: it is fetched immediately and on every tick
// until it reaches a terminal status or is unsubscribed.
func (s *SDK) Subscribe(ctx context.Context, jobID string) error {
	return s.poller.Subscribe(ctx, jobID)
}

// SubscribeAll tracks several jobs at once.
func (s *SDK) SubscribeAll(ctx context.Context, jobIDs []string) error {
	return s.poller.SubscribeAll(ctx, jobIDs)
}

// Unsubscribe stops tracking a job. Its last snapshot stays in the
// store.
func (s *SDK) Unsubscribe(jobID string) {
	s.poller.Unsubscribe(jobID)
}

// Subscribed returns the tracked job ids, sorted.
func (s *SDK) Subscribed() []string {
	return s.poller.Subscribed()
}

// TrackJob subscribes to a job and returns a channel of its snapshots,
// beginning with the current one if the store already has it. The
// returned cancel both detaches the watch and unsubscribes the job.
func (s *SDK) TrackJob(ctx context.Context, jobID string) (<-chan job.Job, func(), error) {
	if err := s.poller.Subscribe(ctx, jobID); err != nil {
		return nil, nil, err
	}
	watch, cancelWatch := s.store.WatchJob(jobID)
	cancel := func() {
		cancelWatch()
		s.poller.Unsubscribe(jobID)
	}
	return watch, cancel, nil
}

// OnTokenEvent attaches the single token listener, first replaying any
// buffered events. The returned detach re-enables buffering.
func (s *SDK) OnTokenEvent(listener tokens.Listener) (func(), error) {
	return s.tokens.Attach(listener)
}

// Store exposes the job state store for direct reads and watches.
func (s *SDK) Store() *store.Store { return s.store }

// Lifecycle exposes the notification controller for manual
// start/update/end calls alongside the automatic sync.
func (s *SDK) Lifecycle() *lifecycle.Controller { return s.controller }

// PollState reports the poll loop's connection state.
func (s *SDK) PollState() poll.State { return s.poller.State() }

// Dispose releases everything: the poller stops and waits for
// in-flight fetches, the bridge closes, and the store closes its
// watch channels. Store writes after Dispose are no-ops. Dispose is
// idempotent.
func (s *SDK) Dispose() {
	s.disposeOnce.Do(func() {
		s.cancelBase()
		s.poller.Close()
		if err := s.bridge.Close(); err != nil {
			s.logger.Warn("closing bridge", "error", err)
		}
		s.cancelChanges()
		s.store.Close()
		<-s.syncDone
		<-s.tokenDone
	})
}

// Close is an alias for Dispose, for callers that prefer io.Closer
// shape.
func (s *SDK) Close() error {
	s.Dispose()
	return nil
}

// unregisteredBridge is the stand-in used when no platform host is
// reachable. Every call fails with ErrBridgeNotRegistered; its event
// channel never delivers.
type unregisteredBridge struct{}

func (unregisteredBridge) Call(context.Context, bridge.Request) (bridge.Response, error) {
	return bridge.Response{}, bridge.ErrBridgeNotRegistered
}

func (unregisteredBridge) Events() <-chan bridge.TokenEvent { return nil }

func (unregisteredBridge) Close() error { return nil }
