// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the boundary between the SDK core and the
// platform-native layer that renders live progress surfaces (iOS
// ActivityKit, Android NotificationManager).
//
// The boundary has two halves:
//
//   - a request/response command channel: start, update, end, cancel,
//     cancel-all, is-active, active-ids, permissions. Each command is
//     a flat argument record; each response carries either a success
//     payload (activity id, active set, permission status) or a
//     machine-readable error code.
//   - a one-directional event stream delivering push-token events
//     asynchronously, tagged by kind (per-activity or device-wide).
//
// [Caller] is the transport-agnostic interface the lifecycle
// controller talks to. [SocketBridge] implements it over a local Unix
// socket to the platform host process, exchanging CBOR frames with
// deterministic encoding so the same logical command always produces
// identical bytes. [MemoryBridge] is an in-process implementation for
// tests: scripted responses, recorded calls, injectable token events.
//
// The core imposes no timeout on bridge calls; transport latency
// policy belongs to the host process. Callers bound waiting through
// the context they pass to Call.
package bridge
