// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/livetrack-foundation/livetrack/job"
	"github.com/livetrack-foundation/livetrack/lib/clock"
)

// StartRequest creates a native activity/notification for a job.
type StartRequest struct {
	JobID   string
	Title   string
	JobType string

	// Progress is the initial progress, 0-100.
	Progress int

	// Message is the optional initial detail line.
	Message string
}

// UpdateRequest refreshes an active surface.
type UpdateRequest struct {
	JobID    string
	Progress int
	Status   job.Status
	Message  string
}

// EndRequest transitions a surface to its terminal visual state.
type EndRequest struct {
	JobID    string
	Progress int
	Status   job.Status
	Message  string

	// DismissAfter is how long the terminal state stays visible
	// before automatic removal. Zero means the platform default.
	DismissAfter time.Duration
}

// Controller is the cross-platform lifecycle façade. Every operation
// validates its inputs locally first, then drives the selected
// Surface; expected failures come back as Result values, never
// errors.
//
// The controller tracks which job ids it started (the active set) to
// route SyncWithJob and to own dismiss timers; truth about what is
// actually on screen always comes from the surface.
type Controller struct {
	surface Surface
	clock   clock.Clock
	logger  *slog.Logger

	// TitleFor derives the surface title when SyncWithJob has to
	// start an activity. Overridable; the default prefers the job's
	// metadata title and falls back to the job id.
	TitleFor func(job.Job) string

	// defaultDismissAfter, when positive, overrides the surface's
	// built-in dismiss window for End requests that leave
	// DismissAfter unset.
	defaultDismissAfter time.Duration

	mu      sync.Mutex
	dismiss map[string]*clock.Timer
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithClock injects the time source for dismiss timers. Tests use
// clock.Fake.
func WithClock(c clock.Clock) ControllerOption {
	return func(controller *Controller) { controller.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(controller *Controller) { controller.logger = logger }
}

// WithDismissAfter overrides the platform's default dismiss window
// for End requests that do not set one themselves.
func WithDismissAfter(d time.Duration) ControllerOption {
	return func(controller *Controller) { controller.defaultDismissAfter = d }
}

// NewController returns a Controller over surface.
func NewController(surface Surface, options ...ControllerOption) *Controller {
	controller := &Controller{
		surface: surface,
		clock:   clock.Real(),
		logger:  slog.Default(),
		dismiss: make(map[string]*clock.Timer),
		TitleFor: func(j job.Job) string {
			if title, ok := j.Metadata["title"].(string); ok && title != "" {
				return title
			}
			return j.JobID
		},
	}
	for _, option := range options {
		option(controller)
	}
	return controller
}

// Start creates the native surface for the job. Starting a job id
// that already has an active surface replaces it: the existing
// activity is cancelled first so the platform never shows duplicates.
func (c *Controller) Start(ctx context.Context, request StartRequest) Result {
	if code, message := validateJobID(request.JobID); code != "" {
		return failure(code, message)
	}
	if code, message := validateTitle(request.Title); code != "" {
		return failure(code, message)
	}
	if code, message := validateProgress(request.Progress); code != "" {
		return failure(code, message)
	}

	active, err := c.surface.IsActive(ctx, request.JobID)
	if err != nil {
		return resultFromError(err)
	}
	if active {
		c.logger.Debug("replacing active surface", "job_id", request.JobID)
		c.stopDismissTimer(request.JobID)
		if err := c.surface.Cancel(ctx, request.JobID); err != nil {
			return resultFromError(err)
		}
	}

	activityID, err := c.surface.Start(ctx, request.JobID, request.Title, request.JobType,
		request.Progress, request.Message)
	if err != nil {
		return resultFromError(err)
	}

	c.logger.Info("surface started",
		"job_id", request.JobID,
		"activity_id", activityID,
		"platform", c.surface.Platform(),
	)
	return success(activityID)
}

// Update refreshes an active surface. A job id with no active surface
// is a non-fatal outcome: the caller gets activity-not-found and is
// expected to treat it as "nothing to update".
func (c *Controller) Update(ctx context.Context, request UpdateRequest) Result {
	if code, message := validateJobID(request.JobID); code != "" {
		return failure(code, message)
	}
	if code, message := validateProgress(request.Progress); code != "" {
		return failure(code, message)
	}
	if code, message := validateUpdateStatus(request.Status); code != "" {
		return failure(code, message)
	}

	if err := c.surface.Update(ctx, request.JobID, request.Progress,
		string(request.Status), request.Message); err != nil {
		return resultFromError(err)
	}
	return success("")
}

// End moves the surface to its terminal visual state and schedules
// removal after the dismiss window. The job id stays active, still
// reported by IsActive, until the scheduled removal fires; only then
// does it leave the active set.
func (c *Controller) End(ctx context.Context, request EndRequest) Result {
	if code, message := validateJobID(request.JobID); code != "" {
		return failure(code, message)
	}
	if code, message := validateProgress(request.Progress); code != "" {
		return failure(code, message)
	}
	if code, message := validateFinalStatus(request.Status); code != "" {
		return failure(code, message)
	}

	dismissAfter := request.DismissAfter
	if dismissAfter <= 0 {
		dismissAfter = c.defaultDismissAfter
	}
	if dismissAfter <= 0 {
		dismissAfter = c.surface.DefaultDismissAfter()
	}

	// The window rides along on the end command so the host can
	// dismiss on its own if this process dies before the timer fires.
	if err := c.surface.End(ctx, request.JobID, request.Progress,
		string(request.Status), request.Message, dismissAfter); err != nil {
		return resultFromError(err)
	}
	c.scheduleDismiss(request.JobID, dismissAfter)

	c.logger.Info("surface ended",
		"job_id", request.JobID,
		"status", request.Status,
		"dismiss_after", dismissAfter,
	)
	return success("")
}

// Cancel removes the surface immediately, superseding any pending
// dismiss timer. Cancelling a job with no surface is a no-op success:
// the desired end state (nothing on screen) already holds.
func (c *Controller) Cancel(ctx context.Context, jobID string) Result {
	if code, message := validateJobID(jobID); code != "" {
		return failure(code, message)
	}

	c.stopDismissTimer(jobID)
	if err := c.surface.Cancel(ctx, jobID); err != nil {
		return resultFromError(err)
	}
	c.logger.Info("surface cancelled", "job_id", jobID)
	return success("")
}

// CancelAll removes every surface immediately and drops all pending
// dismiss timers.
func (c *Controller) CancelAll(ctx context.Context) Result {
	c.mu.Lock()
	for jobID, timer := range c.dismiss {
		timer.Stop()
		delete(c.dismiss, jobID)
	}
	c.mu.Unlock()

	if err := c.surface.CancelAll(ctx); err != nil {
		return resultFromError(err)
	}
	c.logger.Info("all surfaces cancelled")
	return success("")
}

// IsActive reports whether the job has a live native surface. The
// query goes to the surface, not local bookkeeping, so it stays
// truthful when native activities outlive the process.
func (c *Controller) IsActive(ctx context.Context, jobID string) (bool, error) {
	return c.surface.IsActive(ctx, jobID)
}

// ActiveIDs lists the job ids with a live native surface.
func (c *Controller) ActiveIDs(ctx context.Context) ([]string, error) {
	return c.surface.ActiveIDs(ctx)
}

// Permissions reports the platform's push-authorization state.
func (c *Controller) Permissions(ctx context.Context) (PermissionStatus, error) {
	return c.surface.Permissions(ctx)
}

// SyncWithJob maps one job snapshot onto the matching lifecycle
// operation. The decision is a pure function of (status, isActive):
//
//	pending|running, inactive → Start
//	running, active           → Update
//	terminal, active          → End
//	anything else             → no-op
//
// The no-op cases return a success Result so pollers can feed every
// store change through here unconditionally.
func (c *Controller) SyncWithJob(ctx context.Context, j job.Job) Result {
	if code, message := validateJobID(j.JobID); code != "" {
		return failure(code, message)
	}

	active, err := c.surface.IsActive(ctx, j.JobID)
	if err != nil {
		return resultFromError(err)
	}

	switch {
	case !active && (j.Status == job.StatusPending || j.Status == job.StatusRunning):
		return c.Start(ctx, StartRequest{
			JobID:    j.JobID,
			Title:    c.TitleFor(j),
			JobType:  jobType(j),
			Progress: j.Progress,
			Message:  stageMessage(j),
		})
	case active && j.Status == job.StatusRunning:
		return c.Update(ctx, UpdateRequest{
			JobID:    j.JobID,
			Progress: j.Progress,
			Status:   j.Status,
			Message:  stageMessage(j),
		})
	case active && j.IsTerminal():
		return c.End(ctx, EndRequest{
			JobID:    j.JobID,
			Progress: j.Progress,
			Status:   j.Status,
			Message:  terminalMessage(j),
		})
	}
	return success("")
}

// scheduleDismiss arms (or re-arms) the removal timer for jobID.
func (c *Controller) scheduleDismiss(jobID string, after time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.dismiss[jobID]; ok {
		existing.Stop()
	}
	c.dismiss[jobID] = c.clock.AfterFunc(after, func() {
		c.mu.Lock()
		delete(c.dismiss, jobID)
		c.mu.Unlock()

		// The window elapsed; remove the surface. A job the user (or
		// a Cancel) already removed makes this a harmless no-op on
		// the host side.
		if err := c.surface.Cancel(context.Background(), jobID); err != nil {
			c.logger.Warn("dismiss-after removal failed", "job_id", jobID, "error", err)
			return
		}
		c.logger.Debug("surface dismissed", "job_id", jobID)
	})
}

// stopDismissTimer cancels a pending removal, if any.
func (c *Controller) stopDismissTimer(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer, ok := c.dismiss[jobID]; ok {
		timer.Stop()
		delete(c.dismiss, jobID)
	}
}

// jobType pulls the job type out of metadata; the backend stores it
// there rather than as a first-class field.
func jobType(j job.Job) string {
	if jobType, ok := j.Metadata["jobType"].(string); ok {
		return jobType
	}
	return ""
}

// stageMessage renders the stage as the surface detail line.
func stageMessage(j job.Job) string {
	if j.Stage == nil {
		return ""
	}
	return j.Stage.Name
}

// terminalMessage prefers the job error message for failed jobs.
func terminalMessage(j job.Job) string {
	if j.Status == job.StatusFailed && j.Error != nil && j.Error.Message != "" {
		return j.Error.Message
	}
	return ""
}
