// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle maps job-state transitions onto platform-native
// progress surfaces: iOS Live Activities and Android ongoing
// notifications. The controller owns the four lifecycle operations
// (start, update, end, cancel), enforces idempotency and input
// validation before any bridge call, and schedules auto-dismiss after
// terminal states.
package lifecycle

import (
	"context"
	"errors"

	"github.com/livetrack-foundation/livetrack/bridge"
)

// Code is the fixed failure taxonomy for every lifecycle operation.
// A failure result carries exactly one code; success results carry
// none. The set is closed: new conditions must map onto an existing
// code or extend this list deliberately, never invent ad-hoc strings.
type Code string

const (
	CodePlatformNotSupported    Code = "platform-not-supported"
	CodeBridgeNotRegistered     Code = "bridge-not-registered"
	CodeActivityNotFound        Code = "activity-not-found"
	CodeActivitiesDisabled      Code = "activities-disabled"
	CodePermissionDenied        Code = "permission-denied"
	CodePermissionNotDetermined Code = "permission-not-determined"
	CodeValidationError         Code = "validation-error"
	CodeInvalidJobID            Code = "invalid-job-id"
	CodeInvalidProgress         Code = "invalid-progress"
	CodeInvalidTitle            Code = "invalid-title"
	CodeInvalidStatus           Code = "invalid-status"
	CodeNetworkError            Code = "network-error"
	CodeTimeout                 Code = "timeout"
	CodeUnknownError            Code = "unknown-error"
)

// Result is the outcome of one lifecycle operation. Expected failure
// modes (unsupported platform, invalid input, unknown activity) are
// reported here, never as returned errors; callers branch on Success
// and Code, not on error types.
type Result struct {
	Success    bool
	ActivityID string
	Code       Code
	Message    string
}

func success(activityID string) Result {
	return Result{Success: true, ActivityID: activityID}
}

func failure(code Code, message string) Result {
	return Result{Success: false, Code: code, Message: message}
}

// resultFromError converts a surface/bridge error into a failed
// Result, mapping known bridge conditions 1:1 onto the taxonomy.
func resultFromError(err error) Result {
	var surfaceErr *SurfaceError
	if errors.As(err, &surfaceErr) {
		return failure(surfaceErr.Code, surfaceErr.Message)
	}
	switch {
	case errors.Is(err, ErrUnsupported):
		return failure(CodePlatformNotSupported, err.Error())
	case errors.Is(err, bridge.ErrBridgeNotRegistered), errors.Is(err, bridge.ErrClosed):
		return failure(CodeBridgeNotRegistered, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return failure(CodeTimeout, err.Error())
	}
	return failure(CodeUnknownError, err.Error())
}

// codeFromBridge maps a host-process error code onto the taxonomy.
func codeFromBridge(bridgeCode string) Code {
	switch bridgeCode {
	case bridge.ErrorCodeNotRegistered:
		return CodeBridgeNotRegistered
	case bridge.ErrorCodeActivityNotFound:
		return CodeActivityNotFound
	case bridge.ErrorCodeActivitiesDisabled:
		return CodeActivitiesDisabled
	case bridge.ErrorCodePermissionDenied:
		return CodePermissionDenied
	}
	return CodeUnknownError
}
