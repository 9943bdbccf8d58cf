// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

// Package livetrack is the client SDK for surfacing backend job
// progress as platform notifications (iOS Live Activities, Android
// ongoing notifications).
//
// The SDK owns four cooperating components:
//
//   - [github.com/livetrack-foundation/livetrack/store]: the reactive
//     job state store, the single source of truth for job snapshots.
//   - [github.com/livetrack-foundation/livetrack/poll]: the
//     reconciliation loop that fetches subscribed jobs from the
//     backend and merges them into the store.
//   - [github.com/livetrack-foundation/livetrack/lifecycle]: the
//     notification controller that translates job snapshots into
//     start/update/end calls on the platform surface.
//   - [github.com/livetrack-foundation/livetrack/tokens]: the buffer
//     that holds push tokens emitted by the platform until the
//     application attaches a listener.
//
// [New] wires them together: every store change drives the lifecycle
// controller, and every bridge token event lands in the token buffer.
// Applications that want a process-wide singleton use [Init],
// [Instance], and [Teardown] instead of holding the [SDK] themselves.
package livetrack
