// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingJobID is returned by Decode when the payload carries no
// job id. A snapshot without an identity cannot be stored.
var ErrMissingJobID = errors.New("job: response body has no jobId")

// Decode parses one backend job response body into a Job.
//
// Decoding is deliberately tolerant: the nested objects (stage,
// queue, result, error, parent, children) are each decoded
// independently, so a missing or malformed sub-object never prevents
// the rest of the snapshot from being used. Only a body that is not a
// JSON object, lacks a job id, or violates the children-count
// invariant is rejected.
//
// Normalization applied to the decoded value:
//   - Progress is clamped to [0, 100].
//   - CompletedAt is dropped on non-terminal jobs; the backend only
//     sets it on terminal snapshots and stale values would confuse
//     consumers that key off it.
func Decode(data []byte) (Job, error) {
	var envelope struct {
		JobID  string `json:"jobId"`
		UserID string `json:"userId"`
		AppID  string `json:"appId"`

		Status   Status `json:"status"`
		Progress int    `json:"progress"`

		Stage    json.RawMessage `json:"stage"`
		Queue    json.RawMessage `json:"queue"`
		Result   json.RawMessage `json:"result"`
		Error    json.RawMessage `json:"error"`
		Parent   json.RawMessage `json:"parent"`
		Children json.RawMessage `json:"children"`

		EstimatedCompletionAt *timestamp `json:"estimatedCompletionAt"`
		ETAConfidence         float64    `json:"etaConfidence"`
		ETABasedOn            int        `json:"etaBasedOn"`

		ChildProgressMode string         `json:"childProgressMode"`
		Metadata          map[string]any `json:"metadata"`

		CreatedAt   timestamp  `json:"createdAt"`
		UpdatedAt   timestamp  `json:"updatedAt"`
		StartedAt   *timestamp `json:"startedAt"`
		CompletedAt *timestamp `json:"completedAt"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Job{}, fmt.Errorf("job: decoding response body: %w", err)
	}
	if envelope.JobID == "" {
		return Job{}, ErrMissingJobID
	}

	decoded := Job{
		JobID:             envelope.JobID,
		UserID:            envelope.UserID,
		AppID:             envelope.AppID,
		Status:            envelope.Status,
		Progress:          clampProgress(envelope.Progress),
		ETAConfidence:     envelope.ETAConfidence,
		ETABasedOn:        envelope.ETABasedOn,
		ChildProgressMode: envelope.ChildProgressMode,
		Metadata:          envelope.Metadata,
		CreatedAt:         envelope.CreatedAt.Time,
		UpdatedAt:         envelope.UpdatedAt.Time,
	}
	decoded.EstimatedCompletionAt = envelope.EstimatedCompletionAt.ptr()
	decoded.StartedAt = envelope.StartedAt.ptr()
	decoded.CompletedAt = envelope.CompletedAt.ptr()

	// Each nested object stands alone: a malformed stage must not
	// discard a perfectly good queue position.
	decoded.Stage = decodeOptional[Stage](envelope.Stage)
	decoded.Queue = decodeOptional[Queue](envelope.Queue)
	decoded.Result = decodeOptional[Result](envelope.Result)
	decoded.Error = decodeOptional[Error](envelope.Error)
	decoded.Parent = decodeOptional[Parent](envelope.Parent)
	decoded.Children = decodeOptional[Children](envelope.Children)

	if decoded.Children != nil {
		children := *decoded.Children
		if children.Completed+children.Failed > children.Total {
			return Job{}, fmt.Errorf("job %s: children counts exceed total (%d completed + %d failed > %d)",
				decoded.JobID, children.Completed, children.Failed, children.Total)
		}
	}

	if !decoded.IsTerminal() {
		decoded.CompletedAt = nil
	}
	return decoded, nil
}

// decodeOptional parses an optional nested object, returning nil when
// the field is absent, null, or malformed.
func decodeOptional[T any](raw json.RawMessage) *T {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return &value
}

func clampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// timestamp accepts both RFC 3339 strings and Unix epoch milliseconds,
// the two formats the backend has shipped over time.
type timestamp struct {
	Time time.Time
}

func (ts *timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return ts.Time.UnmarshalJSON(data)
	}
	var millis int64
	if err := json.Unmarshal(data, &millis); err != nil {
		return err
	}
	ts.Time = time.UnixMilli(millis).UTC()
	return nil
}

func (ts *timestamp) ptr() *time.Time {
	if ts == nil || ts.Time.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}
