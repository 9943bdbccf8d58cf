// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livetrack-foundation/livetrack/bridge"
)

// Platform selects which native capability model backs the surface.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ErrUnsupported reports an operation the active platform cannot
// perform at all (for example a Live Activity on a platform without
// one). The controller converts it into the platform-not-supported
// outcome without attempting any bridge call.
var ErrUnsupported = errors.New("lifecycle: operation not supported on this platform")

// SurfaceError is a failure the platform host reported for a command
// it did process. Code is already mapped onto the public taxonomy.
type SurfaceError struct {
	Code    Code
	Message string
}

func (e *SurfaceError) Error() string {
	return fmt.Sprintf("lifecycle: %s: %s", e.Code, e.Message)
}

// PermissionStatus is the push-authorization state of the app.
type PermissionStatus string

const (
	PermissionNotDetermined PermissionStatus = "not-determined"
	PermissionProvisional   PermissionStatus = "provisional"
	PermissionAuthorized    PermissionStatus = "authorized"
	PermissionDenied        PermissionStatus = "denied"
)

// Surface is the capability interface over one platform's native
// progress UI. The two implementations are structurally similar but
// deliberately independent; the platforms' capability models differ
// enough (dismissal conventions, permission tiers) that sharing code
// between them has historically obscured those differences.
type Surface interface {
	// Platform identifies the backing platform.
	Platform() Platform

	// Start creates the native activity/notification and returns its
	// native id.
	Start(ctx context.Context, jobID, title, jobType string, progress int, message string) (string, error)

	// Update refreshes progress, status, and message on the native
	// surface.
	Update(ctx context.Context, jobID string, progress int, status, message string) error

	// End transitions the surface to its terminal visual state. The
	// native layer keeps it visible for dismissAfter; the controller's
	// own dismiss timer calls Cancel after the same window, and the
	// host-side deadline covers the case where the app dies first.
	End(ctx context.Context, jobID string, progress int, status, message string, dismissAfter time.Duration) error

	// Cancel removes the native surface immediately.
	Cancel(ctx context.Context, jobID string) error

	// CancelAll removes every native surface this app owns.
	CancelAll(ctx context.Context) error

	// IsActive queries native state, not SDK bookkeeping, so the
	// answer stays correct across process restarts where native
	// activities survived.
	IsActive(ctx context.Context, jobID string) (bool, error)

	// ActiveIDs lists the job ids with a live native surface.
	ActiveIDs(ctx context.Context) ([]string, error)

	// Permissions reports the push-authorization state.
	Permissions(ctx context.Context) (PermissionStatus, error)

	// DefaultDismissAfter is the platform's terminal-state display
	// window when the caller does not choose one.
	DefaultDismissAfter() time.Duration
}

// ForPlatform selects the Surface implementation for platform.
// Unknown platforms get a surface whose every operation reports
// ErrUnsupported.
func ForPlatform(platform Platform, caller bridge.Caller) Surface {
	switch platform {
	case PlatformIOS:
		return &IOSSurface{caller: caller}
	case PlatformAndroid:
		return &AndroidSurface{caller: caller}
	}
	return UnsupportedSurface{platform: platform}
}

// call sends one command and folds the host's structured error into a
// SurfaceError. Shared by both surfaces; the interesting differences
// between platforms live in their defaults, not their plumbing.
func call(ctx context.Context, caller bridge.Caller, request bridge.Request) (bridge.Response, error) {
	response, err := caller.Call(ctx, request)
	if err != nil {
		return bridge.Response{}, err
	}
	if !response.OK {
		return bridge.Response{}, &SurfaceError{
			Code:    codeFromBridge(response.ErrorCode),
			Message: response.Error,
		}
	}
	return response, nil
}

// IOSSurface drives Live Activities through the platform host. The
// Lock Screen keeps terminal activities useful for hours, so the
// default dismiss window is long.
type IOSSurface struct {
	caller bridge.Caller
}

// iosDefaultDismissAfter matches Lock Screen UX conventions: a
// finished activity stays readable until the user gets to it.
const iosDefaultDismissAfter = 4 * time.Hour

func (s *IOSSurface) Platform() Platform { return PlatformIOS }

func (s *IOSSurface) Start(ctx context.Context, jobID, title, jobType string, progress int, message string) (string, error) {
	response, err := call(ctx, s.caller, bridge.Request{
		Action:   bridge.ActionStart,
		JobID:    jobID,
		Title:    title,
		JobType:  jobType,
		Progress: progress,
		Message:  message,
	})
	if err != nil {
		return "", err
	}
	return response.ActivityID, nil
}

func (s *IOSSurface) Update(ctx context.Context, jobID string, progress int, status, message string) error {
	_, err := call(ctx, s.caller, bridge.Request{
		Action:   bridge.ActionUpdate,
		JobID:    jobID,
		Progress: progress,
		Status:   status,
		Message:  message,
	})
	return err
}

func (s *IOSSurface) End(ctx context.Context, jobID string, progress int, status, message string, dismissAfter time.Duration) error {
	_, err := call(ctx, s.caller, bridge.Request{
		Action:         bridge.ActionEnd,
		JobID:          jobID,
		Progress:       progress,
		Status:         status,
		Message:        message,
		DismissAfterMS: dismissAfter.Milliseconds(),
	})
	return err
}

func (s *IOSSurface) Cancel(ctx context.Context, jobID string) error {
	_, err := call(ctx, s.caller, bridge.Request{Action: bridge.ActionCancel, JobID: jobID})
	return err
}

func (s *IOSSurface) CancelAll(ctx context.Context) error {
	_, err := call(ctx, s.caller, bridge.Request{Action: bridge.ActionCancelAll})
	return err
}

func (s *IOSSurface) IsActive(ctx context.Context, jobID string) (bool, error) {
	response, err := call(ctx, s.caller, bridge.Request{Action: bridge.ActionIsActive, JobID: jobID})
	if err != nil {
		return false, err
	}
	return response.Active, nil
}

func (s *IOSSurface) ActiveIDs(ctx context.Context) ([]string, error) {
	response, err := call(ctx, s.caller, bridge.Request{Action: bridge.ActionActiveIDs})
	if err != nil {
		return nil, err
	}
	return response.ActiveIDs, nil
}

func (s *IOSSurface) Permissions(ctx context.Context) (PermissionStatus, error) {
	response, err := call(ctx, s.caller, bridge.Request{Action: bridge.ActionPermissions})
	if err != nil {
		return "", err
	}
	switch status := PermissionStatus(response.Permission); status {
	case PermissionNotDetermined, PermissionProvisional, PermissionAuthorized, PermissionDenied:
		return status, nil
	default:
		return "", fmt.Errorf("lifecycle: host reported unknown permission %q", response.Permission)
	}
}

func (s *IOSSurface) DefaultDismissAfter() time.Duration { return iosDefaultDismissAfter }

// AndroidSurface drives ongoing notifications through the platform
// host. The notification drawer clutters fast, so terminal
// notifications clear quickly.
type AndroidSurface struct {
	caller bridge.Caller
}

const androidDefaultDismissAfter = 5 * time.Second

func (s *AndroidSurface) Platform() Platform { return PlatformAndroid }

func (s *AndroidSurface) Start(ctx context.Context, jobID, title, jobType string, progress int, message string) (string, error) {
	response, err := call(ctx, s.caller, bridge.Request{
		Action:   bridge.ActionStart,
		JobID:    jobID,
		Title:    title,
		JobType:  jobType,
		Progress: progress,
		Message:  message,
	})
	if err != nil {
		return "", err
	}
	return response.ActivityID, nil
}

func (s *AndroidSurface) Update(ctx context.Context, jobID string, progress int, status, message string) error {
	_, err := call(ctx, s.caller, bridge.Request{
		Action:   bridge.ActionUpdate,
		JobID:    jobID,
		Progress: progress,
		Status:   status,
		Message:  message,
	})
	return err
}

func (s *AndroidSurface) End(ctx context.Context, jobID string, progress int, status, message string, dismissAfter time.Duration) error {
	_, err := call(ctx, s.caller, bridge.Request{
		Action:         bridge.ActionEnd,
		JobID:          jobID,
		Progress:       progress,
		Status:         status,
		Message:        message,
		DismissAfterMS: dismissAfter.Milliseconds(),
	})
	return err
}

func (s *AndroidSurface) Cancel(ctx context.Context, jobID string) error {
	_, err := call(ctx, s.caller, bridge.Request{Action: bridge.ActionCancel, JobID: jobID})
	return err
}

func (s *AndroidSurface) CancelAll(ctx context.Context) error {
	_, err := call(ctx, s.caller, bridge.Request{Action: bridge.ActionCancelAll})
	return err
}

func (s *AndroidSurface) IsActive(ctx context.Context, jobID string) (bool, error) {
	response, err := call(ctx, s.caller, bridge.Request{Action: bridge.ActionIsActive, JobID: jobID})
	if err != nil {
		return false, err
	}
	return response.Active, nil
}

func (s *AndroidSurface) ActiveIDs(ctx context.Context) ([]string, error) {
	response, err := call(ctx, s.caller, bridge.Request{Action: bridge.ActionActiveIDs})
	if err != nil {
		return nil, err
	}
	return response.ActiveIDs, nil
}

// Permissions on Android: ongoing notifications need no runtime push
// permission on the API levels the host supports, so the answer is
// constant and costs no bridge call.
func (s *AndroidSurface) Permissions(ctx context.Context) (PermissionStatus, error) {
	return PermissionAuthorized, nil
}

func (s *AndroidSurface) DefaultDismissAfter() time.Duration { return androidDefaultDismissAfter }

// UnsupportedSurface answers every operation with ErrUnsupported. It
// backs platforms with no live-progress capability so callers get the
// typed unsupported outcome instead of a nil-interface panic.
type UnsupportedSurface struct {
	platform Platform
}

func (s UnsupportedSurface) Platform() Platform { return s.platform }

func (s UnsupportedSurface) Start(context.Context, string, string, string, int, string) (string, error) {
	return "", ErrUnsupported
}

func (s UnsupportedSurface) Update(context.Context, string, int, string, string) error {
	return ErrUnsupported
}

func (s UnsupportedSurface) End(context.Context, string, int, string, string, time.Duration) error {
	return ErrUnsupported
}

func (s UnsupportedSurface) Cancel(context.Context, string) error { return ErrUnsupported }

func (s UnsupportedSurface) CancelAll(context.Context) error { return ErrUnsupported }

func (s UnsupportedSurface) IsActive(context.Context, string) (bool, error) {
	return false, ErrUnsupported
}

func (s UnsupportedSurface) ActiveIDs(context.Context) ([]string, error) {
	return nil, ErrUnsupported
}

func (s UnsupportedSurface) Permissions(context.Context) (PermissionStatus, error) {
	return "", ErrUnsupported
}

func (s UnsupportedSurface) DefaultDismissAfter() time.Duration { return 0 }
