// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

// Package job defines the job model shared by the store, the poll
// loop, and the lifecycle controller. A Job is an immutable snapshot
// of backend state: it is created from a fetch response, replaced
// wholesale on every subsequent fetch, and never patched field by
// field.
package job

import "time"

// MaxJobIDLength is the policy cap on job id length. The backend
// enforces the same limit; the SDK rejects longer ids before any
// network or bridge call.
const MaxJobIDLength = 128

// Status is the job state reported by the backend.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal jobs never
// transition again; the poll loop drops its subscription the moment
// it observes one.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Known reports whether the status is one of the defined values.
// Unknown statuses are preserved verbatim through the store (the
// backend may be newer than this SDK) but are never terminal.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusQueued, StatusRunning,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Stage describes the named phase a running job is in. Current is
// 1-based.
type Stage struct {
	Name    string `json:"name"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// Queue describes the job's position while waiting for a worker.
type Queue struct {
	Position int `json:"position"`
}

// Result carries the output of a completed job. Exactly which fields
// are set depends on the job type; the SDK passes them through.
type Result struct {
	Type string         `json:"type,omitempty"`
	URL  string         `json:"url,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Error carries the failure detail of a failed job.
type Error struct {
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Parent links a child job to its parent.
type Parent struct {
	ParentJobID string `json:"parentJobId"`
	ChildIndex  int    `json:"childIndex"`
}

// Children aggregates the states of a parent job's children.
type Children struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
	Pending   int `json:"pending"`
}

// Remaining returns the number of children not yet in a terminal
// state.
func (c Children) Remaining() int {
	remaining := c.Total - c.Completed - c.Failed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Job is one backend job snapshot. A job is a parent, a child, or
// neither; the backend never sets Parent and Children together.
type Job struct {
	JobID  string `json:"jobId"`
	UserID string `json:"userId,omitempty"`
	AppID  string `json:"appId,omitempty"`

	Status   Status `json:"status"`
	Progress int    `json:"progress"`

	Stage *Stage `json:"stage,omitempty"`
	Queue *Queue `json:"queue,omitempty"`

	// ETA fields. Confidence is 0.0-1.0; BasedOn is the number of
	// completed samples the estimate was derived from.
	EstimatedCompletionAt *time.Time `json:"estimatedCompletionAt,omitempty"`
	ETAConfidence         float64    `json:"etaConfidence,omitempty"`
	ETABasedOn            int        `json:"etaBasedOn,omitempty"`

	Result *Result `json:"result,omitempty"`
	Error  *Error  `json:"error,omitempty"`

	Parent   *Parent   `json:"parent,omitempty"`
	Children *Children `json:"children,omitempty"`

	// ChildProgressMode (average, weighted, sequential) describes how
	// the backend aggregates child progress into the parent. The SDK
	// stores and forwards it; no aggregation happens client-side.
	ChildProgressMode string `json:"childProgressMode,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// IsTerminal reports whether the job's status is final.
func (j Job) IsTerminal() bool { return j.Status.Terminal() }

// IsParent reports whether the job aggregates child jobs.
func (j Job) IsParent() bool { return j.Children != nil }

// IsChild reports whether the job belongs to a parent job.
func (j Job) IsChild() bool { return j.Parent != nil }
