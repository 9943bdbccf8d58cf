// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"fmt"

	"github.com/livetrack-foundation/livetrack/job"
)

// Validation runs before any bridge call: these checks are local and
// cheap, and a request that fails them must never reach the native
// layer. Each check reports the specific code for its field; the
// first failing check wins.

func validateJobID(jobID string) (Code, string) {
	if jobID == "" {
		return CodeInvalidJobID, "job id is empty"
	}
	if len(jobID) > job.MaxJobIDLength {
		return CodeInvalidJobID, fmt.Sprintf("job id exceeds %d characters", job.MaxJobIDLength)
	}
	return "", ""
}

func validateTitle(title string) (Code, string) {
	if title == "" {
		return CodeInvalidTitle, "title is empty"
	}
	return "", ""
}

func validateProgress(progress int) (Code, string) {
	if progress < 0 || progress > 100 {
		return CodeInvalidProgress, fmt.Sprintf("progress %d outside [0, 100]", progress)
	}
	return "", ""
}

// updateStatuses is the status set accepted by Update. Terminal
// cancellation goes through End or Cancel, never Update.
var updateStatuses = map[job.Status]bool{
	job.StatusPending:   true,
	job.StatusRunning:   true,
	job.StatusCompleted: true,
	job.StatusFailed:    true,
}

func validateUpdateStatus(status job.Status) (Code, string) {
	if !updateStatuses[status] {
		return CodeInvalidStatus, fmt.Sprintf("status %q not allowed for update", status)
	}
	return "", ""
}

func validateFinalStatus(status job.Status) (Code, string) {
	if !status.Terminal() {
		return CodeInvalidStatus, fmt.Sprintf("final status %q is not terminal", status)
	}
	return "", ""
}
