// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"strconv"
	"sync"
)

// MemoryBridge is an in-process Caller for tests and examples. It
// keeps the active-id bookkeeping a real platform host would keep, so
// lifecycle tests exercise the controller against truthful is-active
// answers without a native layer.
//
// Responses can be overridden per action via Script; every call is
// recorded for assertion.
type MemoryBridge struct {
	mu sync.Mutex

	calls     []Request
	active    map[string]string // job id → activity id
	scripted  map[Action]Response
	failWith  error
	nextSeq   int
	events    chan TokenEvent
	closed    bool
	closeOnce sync.Once
}

// NewMemoryBridge returns an empty MemoryBridge.
func NewMemoryBridge() *MemoryBridge {
	return &MemoryBridge{
		active:   make(map[string]string),
		scripted: make(map[Action]Response),
		events:   make(chan TokenEvent, eventBufferSize),
	}
}

// Script forces the next responses for action. The response is
// returned verbatim (with the request id filled in) instead of the
// default bookkeeping behavior.
func (mb *MemoryBridge) Script(action Action, response Response) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.scripted[action] = response
}

// FailWith makes every Call return err, simulating a dead transport.
func (mb *MemoryBridge) FailWith(err error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.failWith = err
}

// Calls returns a copy of the recorded requests, in call order.
func (mb *MemoryBridge) Calls() []Request {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return append([]Request(nil), mb.calls...)
}

// CallCount returns the number of recorded requests for action.
func (mb *MemoryBridge) CallCount(action Action) int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	count := 0
	for _, call := range mb.calls {
		if call.Action == action {
			count++
		}
	}
	return count
}

// EmitToken injects a token event, as the native layer would.
func (mb *MemoryBridge) EmitToken(event TokenEvent) {
	mb.events <- event
}

// Call records the request and answers from the scripted response or
// the built-in bookkeeping.
func (mb *MemoryBridge) Call(ctx context.Context, request Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return Response{}, ErrClosed
	}
	if mb.failWith != nil {
		return Response{}, mb.failWith
	}
	mb.calls = append(mb.calls, request)

	if scripted, ok := mb.scripted[request.Action]; ok {
		scripted.ID = request.ID
		return scripted, nil
	}

	response := Response{ID: request.ID, OK: true}
	switch request.Action {
	case ActionStart:
		mb.nextSeq++
		activityID := "activity-" + strconv.Itoa(mb.nextSeq)
		mb.active[request.JobID] = activityID
		response.ActivityID = activityID
	case ActionUpdate, ActionEnd:
		activityID, ok := mb.active[request.JobID]
		if !ok {
			return Response{
				ID:        request.ID,
				OK:        false,
				ErrorCode: ErrorCodeActivityNotFound,
				Error:     "no active activity for job " + request.JobID,
			}, nil
		}
		response.ActivityID = activityID
	case ActionCancel:
		delete(mb.active, request.JobID)
	case ActionCancelAll:
		mb.active = make(map[string]string)
	case ActionIsActive:
		_, response.Active = mb.active[request.JobID]
	case ActionActiveIDs:
		for jobID := range mb.active {
			response.ActiveIDs = append(response.ActiveIDs, jobID)
		}
	case ActionPermissions:
		response.Permission = "authorized"
	default:
		response.OK = false
		response.ErrorCode = ErrorCodeUnknown
		response.Error = "unknown action " + string(request.Action)
	}
	return response, nil
}

// Remove drops a job from the active bookkeeping, simulating an
// activity the user dismissed natively.
func (mb *MemoryBridge) Remove(jobID string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	delete(mb.active, jobID)
}

// Events returns the injectable token event stream.
func (mb *MemoryBridge) Events() <-chan TokenEvent { return mb.events }

// Close closes the event channel. Subsequent calls fail with
// ErrClosed.
func (mb *MemoryBridge) Close() error {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		mb.closed = true
		mb.mu.Unlock()
		close(mb.events)
	})
	return nil
}
