// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/livetrack-foundation/livetrack/lib/testutil"
)

// fakeHost is a minimal platform host: it accepts one connection,
// answers every command OK, and can push token events.
type fakeHost struct {
	listener net.Listener
	requests chan Request
	outbound chan frame
}

func startFakeHost(t *testing.T) (*fakeHost, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "host.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host := &fakeHost{
		listener: listener,
		requests: make(chan Request, 16),
		outbound: make(chan frame, 16),
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		connection, err := listener.Accept()
		if err != nil {
			return
		}
		defer connection.Close()

		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			encoder := newEncoder(connection)
			for outgoing := range host.outbound {
				if err := encoder.Encode(outgoing); err != nil {
					return
				}
			}
		}()

		decoder := newDecoder(connection)
		for {
			var request Request
			if err := decoder.Decode(&request); err != nil {
				return
			}
			host.requests <- request
			host.outbound <- frame{
				Kind:     frameKindResponse,
				Response: &Response{ID: request.ID, OK: true, ActivityID: "native-1"},
			}
		}
	}()
	return host, socketPath
}

func TestDialSocketMissingSocketReportsNotRegistered(t *testing.T) {
	_, err := DialSocket(filepath.Join(t.TempDir(), "absent.sock"), nil)
	if !errors.Is(err, ErrBridgeNotRegistered) {
		t.Fatalf("err = %v, want ErrBridgeNotRegistered", err)
	}
}

func TestCallRoundTrip(t *testing.T) {
	host, socketPath := startFakeHost(t)
	sb, err := DialSocket(socketPath, nil)
	if err != nil {
		t.Fatalf("DialSocket: %v", err)
	}
	defer sb.Close()

	response, err := sb.Call(context.Background(), Request{
		Action:   ActionStart,
		JobID:    "job_1",
		Title:    "Rendering",
		Progress: 0,
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !response.OK || response.ActivityID != "native-1" {
		t.Fatalf("response = %+v, want OK with native-1", response)
	}

	received := testutil.RequireReceive(t, host.requests, 2*time.Second, "host-side request")
	if received.Action != ActionStart || received.JobID != "job_1" {
		t.Errorf("host received %+v, want start for job_1", received)
	}
	if received.ID == "" {
		t.Error("request id not assigned")
	}
}

func TestTokenEventsInterleaveWithResponses(t *testing.T) {
	host, socketPath := startFakeHost(t)
	sb, err := DialSocket(socketPath, nil)
	if err != nil {
		t.Fatalf("DialSocket: %v", err)
	}
	defer sb.Close()

	host.outbound <- frame{
		Kind:  frameKindToken,
		Token: &TokenEvent{Kind: TokenKindLiveActivity, JobID: "job_1", Token: "tok-a"},
	}

	if _, err := sb.Call(context.Background(), Request{Action: ActionIsActive, JobID: "job_1"}); err != nil {
		t.Fatalf("Call: %v", err)
	}

	event := testutil.RequireReceive(t, sb.Events(), 2*time.Second, "token event")
	if event.Token != "tok-a" || event.JobID != "job_1" {
		t.Fatalf("event = %+v, want tok-a for job_1", event)
	}
}

func TestCallContextCancellation(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "silent.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	go func() {
		// Accept but never answer.
		connection, err := listener.Accept()
		if err == nil {
			defer connection.Close()
			<-time.After(5 * time.Second)
		}
	}()

	sb, err := DialSocket(socketPath, nil)
	if err != nil {
		t.Fatalf("DialSocket: %v", err)
	}
	defer sb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := sb.Call(ctx, Request{Action: ActionIsActive, JobID: "j"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestCloseFailsPendingAndClosesEvents(t *testing.T) {
	_, socketPath := startFakeHost(t)
	sb, err := DialSocket(socketPath, nil)
	if err != nil {
		t.Fatalf("DialSocket: %v", err)
	}

	sb.Close()
	if _, err := sb.Call(context.Background(), Request{Action: ActionIsActive}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Call after Close = %v, want ErrClosed", err)
	}
	testutil.RequireClosed(t, sb.Events(), 2*time.Second, "event channel closed")
}

func TestMemoryBridgeBookkeeping(t *testing.T) {
	mb := NewMemoryBridge()
	defer mb.Close()
	ctx := context.Background()

	response, err := mb.Call(ctx, Request{Action: ActionStart, JobID: "j1", Title: "T"})
	if err != nil || !response.OK {
		t.Fatalf("start = %+v, %v", response, err)
	}

	response, _ = mb.Call(ctx, Request{Action: ActionIsActive, JobID: "j1"})
	if !response.Active {
		t.Fatal("j1 not active after start")
	}

	response, _ = mb.Call(ctx, Request{Action: ActionUpdate, JobID: "unknown"})
	if response.OK || response.ErrorCode != ErrorCodeActivityNotFound {
		t.Fatalf("update unknown = %+v, want activity_not_found", response)
	}

	mb.Call(ctx, Request{Action: ActionCancel, JobID: "j1"})
	response, _ = mb.Call(ctx, Request{Action: ActionIsActive, JobID: "j1"})
	if response.Active {
		t.Fatal("j1 still active after cancel")
	}

	if got := mb.CallCount(ActionIsActive); got != 2 {
		t.Errorf("CallCount(is_active) = %d, want 2", got)
	}
}
