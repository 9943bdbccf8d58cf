// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Action names the bridge commands. The set is fixed; the host
// process rejects unknown actions with ErrorCodeUnknown.
type Action string

const (
	ActionStart       Action = "start"
	ActionUpdate      Action = "update"
	ActionEnd         Action = "end"
	ActionCancel      Action = "cancel"
	ActionCancelAll   Action = "cancel_all"
	ActionIsActive    Action = "is_active"
	ActionActiveIDs   Action = "active_ids"
	ActionPermissions Action = "permissions"
)

// Error codes the host process may return. The lifecycle controller
// maps each 1:1 into its public taxonomy.
const (
	ErrorCodeNotRegistered      = "bridge_not_registered"
	ErrorCodeActivityNotFound   = "activity_not_found"
	ErrorCodeActivitiesDisabled = "activities_disabled"
	ErrorCodePermissionDenied   = "permission_denied"
	ErrorCodeUnknown            = "unknown"
)

// Request is one command sent to the platform host. Fields beyond ID
// and Action are set per action; unused fields are omitted from the
// wire encoding.
type Request struct {
	// ID correlates the response. Responses may arrive interleaved
	// with token events, so the host echoes the id back.
	ID     string `cbor:"id"`
	Action Action `cbor:"action"`

	JobID   string `cbor:"job_id,omitempty"`
	Title   string `cbor:"title,omitempty"`
	JobType string `cbor:"job_type,omitempty"`
	Message string `cbor:"message,omitempty"`

	Progress int    `cbor:"progress,omitempty"`
	Status   string `cbor:"status,omitempty"`

	// DismissAfterMS is the terminal-state display window for end
	// commands, in milliseconds.
	DismissAfterMS int64 `cbor:"dismiss_after_ms,omitempty"`
}

// Response is the host's reply to one Request.
type Response struct {
	ID string `cbor:"id"`
	OK bool   `cbor:"ok"`

	// ActivityID identifies the native activity or notification the
	// command produced or addressed.
	ActivityID string `cbor:"activity_id,omitempty"`

	// Active and ActiveIDs answer the query commands.
	Active    bool     `cbor:"active,omitempty"`
	ActiveIDs []string `cbor:"active_ids,omitempty"`

	// Permission answers the permissions command: not-determined,
	// provisional, authorized, or denied.
	Permission string `cbor:"permission,omitempty"`

	// ErrorCode and Error are set when OK is false.
	ErrorCode string `cbor:"error_code,omitempty"`
	Error     string `cbor:"error,omitempty"`
}

// TokenEvent is one push-token delivery from the host. JobID is set
// only for live-activity tokens.
type TokenEvent struct {
	// Kind is "push_token" (live-activity scoped) or
	// "device_push_token".
	Kind  string `cbor:"kind"`
	JobID string `cbor:"job_id,omitempty"`
	Token string `cbor:"token"`
}

// Token event kinds.
const (
	TokenKindLiveActivity = "push_token"
	TokenKindDevice       = "device_push_token"
)

// frame is the host→SDK envelope: exactly one of Response or Token is
// set, discriminated by Kind so the read loop can dispatch without
// sniffing.
type frame struct {
	Kind     string      `cbor:"kind"`
	Response *Response   `cbor:"response,omitempty"`
	Token    *TokenEvent `cbor:"token,omitempty"`
}

const (
	frameKindResponse = "response"
	frameKindToken    = "token"
)

// encMode is configured with Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding. The same logical
// command always produces identical bytes, which keeps host-side
// request logs diffable.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields for
// forward compatibility with newer hosts.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("bridge: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("bridge: CBOR decoder initialization failed: " + err.Error())
	}
}

func newEncoder(w io.Writer) *cbor.Encoder { return encMode.NewEncoder(w) }

func newDecoder(r io.Reader) *cbor.Decoder { return decMode.NewDecoder(r) }
