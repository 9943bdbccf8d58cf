// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

// Livetrack-backend-mock is a drop-in replacement for the job backend
// in development and integration tests. It serves the same job
// endpoint the SDK polls (GET /v1/jobs/{id}) from an in-memory job
// set that advances progress on every fetch and completes after a
// configurable number of fetches, so a watching SDK sees a full
// pending → running → completed lifecycle without a real backend.
//
// Endpoints:
//   - GET /v1/jobs/{id}: fetch a job snapshot; unknown ids are
//     auto-created on first fetch so any subscription works
//   - POST /v1/jobs: create a job with a generated id
//   - DELETE /v1/jobs/{id}: remove a job (subsequent fetches 404)
//   - GET /healthz: liveness probe
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/livetrack-foundation/livetrack/job"
	"github.com/livetrack-foundation/livetrack/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var addr string
	var ticksToComplete int
	var failEvery int
	var showVersion bool
	pflag.StringVar(&addr, "addr", ":8787", "listen address")
	pflag.IntVar(&ticksToComplete, "ticks-to-complete", 5, "fetches until a job completes")
	pflag.IntVar(&failEvery, "fail-every", 0, "fail every Nth created job instead of completing it (0 disables)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("livetrack-backend-mock %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	mock := &backendMock{
		jobs:            make(map[string]*mockJob),
		ticksToComplete: ticksToComplete,
		failEvery:       failEvery,
		logger:          logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", mock.handleCreate)
		r.Get("/{jobID}", mock.handleFetch)
		r.Delete("/{jobID}", mock.handleDelete)
	})

	server := &http.Server{Addr: addr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.ListenAndServe()
	}()

	logger.Info("backend mock running", "addr", addr, "ticks_to_complete", ticksToComplete)

	select {
	case err := <-serveDone:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-serveDone; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// mockJob is one scripted job plus its fetch counter. The snapshot is
// recomputed from the counter on every fetch.
type mockJob struct {
	snapshot job.Job
	fetches  int
	failing  bool
}

// backendMock holds the in-memory job set.
type backendMock struct {
	mu              sync.Mutex
	jobs            map[string]*mockJob
	created         int
	ticksToComplete int
	failEvery       int
	logger          *slog.Logger
}

func (m *backendMock) handleCreate(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	jobID := uuid.NewString()
	m.created++
	entry := m.newJobLocked(jobID)
	m.jobs[jobID] = entry
	snapshot := entry.snapshot
	failing := entry.failing
	m.mu.Unlock()

	m.logger.Info("job created", "job_id", jobID, "failing", failing)
	writeJSON(w, http.StatusCreated, snapshot)
}

func (m *backendMock) handleFetch(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	m.mu.Lock()
	entry, found := m.jobs[jobID]
	if !found {
		// Auto-create so any subscribed id produces a lifecycle.
		m.created++
		entry = m.newJobLocked(jobID)
		m.jobs[jobID] = entry
	}
	entry.fetches++
	m.advanceLocked(entry)
	snapshot := entry.snapshot
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, snapshot)
}

func (m *backendMock) handleDelete(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	m.mu.Lock()
	_, found := m.jobs[jobID]
	delete(m.jobs, jobID)
	m.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *backendMock) newJobLocked(jobID string) *mockJob {
	now := time.Now().UTC()
	return &mockJob{
		snapshot: job.Job{
			JobID:     jobID,
			UserID:    uuid.NewString(),
			AppID:     "mock",
			Status:    job.StatusPending,
			Metadata:  map[string]any{"title": "Mock job " + jobID},
			CreatedAt: now,
			UpdatedAt: now,
		},
		failing: m.failEvery > 0 && m.created%m.failEvery == 0,
	}
}

// advanceLocked moves the job along its scripted lifecycle: pending on
// the first fetch, running with linearly increasing progress, then
// completed (or failed) once the fetch budget is spent.
func (m *backendMock) advanceLocked(entry *mockJob) {
	now := time.Now().UTC()
	entry.snapshot.UpdatedAt = now

	switch {
	case entry.fetches <= 1:
		entry.snapshot.Status = job.StatusPending
		entry.snapshot.Progress = 0

	case entry.fetches <= m.ticksToComplete:
		if entry.snapshot.StartedAt == nil {
			started := now
			entry.snapshot.StartedAt = &started
		}
		entry.snapshot.Status = job.StatusRunning
		entry.snapshot.Progress = (entry.fetches - 1) * 100 / m.ticksToComplete
		entry.snapshot.Stage = &job.Stage{
			Name:    "processing",
			Current: entry.fetches - 1,
			Total:   m.ticksToComplete,
		}

	default:
		completed := now
		entry.snapshot.CompletedAt = &completed
		entry.snapshot.Stage = nil
		if entry.failing {
			entry.snapshot.Status = job.StatusFailed
			entry.snapshot.Error = &job.Error{
				Code:    "mock_failure",
				Message: "scripted failure",
			}
			return
		}
		entry.snapshot.Status = job.StatusCompleted
		entry.snapshot.Progress = 100
		entry.snapshot.Result = &job.Result{
			Type: "mock",
			Data: map[string]any{"fetches": entry.fetches},
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encoding response", "error", err)
	}
}
