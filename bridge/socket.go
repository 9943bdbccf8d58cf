// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// eventBufferSize bounds the token event channel. The SDK drains the
// channel into its token buffer immediately, so the buffer only
// covers scheduling jitter. On overflow the oldest event is dropped;
// for push tokens the newest delivery supersedes earlier ones.
const eventBufferSize = 64

// SocketBridge talks to the platform host process over a local Unix
// socket. Requests are CBOR-encoded commands; the host answers with
// frames carrying either a correlated response or an asynchronous
// token event, interleaved freely.
type SocketBridge struct {
	logger *slog.Logger

	connection net.Conn
	encoder    *cbor.Encoder
	writeMu    sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Response

	events chan TokenEvent
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// DialSocket connects to the platform host at socketPath. A missing
// or unreachable socket reports ErrBridgeNotRegistered: the native
// layer has not started its host, which the lifecycle controller
// surfaces as a distinct outcome rather than a generic failure.
//
// logger may be nil, in which case slog.Default() is used.
func DialSocket(socketPath string, logger *slog.Logger) (*SocketBridge, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("bridge: socket path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	connection, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrBridgeNotRegistered, socketPath, err)
	}

	sb := &SocketBridge{
		logger:     logger,
		connection: connection,
		encoder:    newEncoder(connection),
		pending:    make(map[string]chan Response),
		events:     make(chan TokenEvent, eventBufferSize),
		done:       make(chan struct{}),
	}
	go sb.readLoop()

	logger.Info("bridge connected", "socket_path", socketPath)
	return sb, nil
}

// Call sends one command and waits for its response. The request id
// is assigned here; callers leave it empty. Waiting is bounded only
// by ctx; the core imposes no transport timeout of its own.
func (sb *SocketBridge) Call(ctx context.Context, request Request) (Response, error) {
	select {
	case <-sb.done:
		return Response{}, ErrClosed
	default:
	}

	request.ID = uuid.NewString()
	responseChannel := make(chan Response, 1)

	sb.pendingMu.Lock()
	sb.pending[request.ID] = responseChannel
	sb.pendingMu.Unlock()
	defer func() {
		sb.pendingMu.Lock()
		delete(sb.pending, request.ID)
		sb.pendingMu.Unlock()
	}()

	sb.writeMu.Lock()
	err := sb.encoder.Encode(request)
	sb.writeMu.Unlock()
	if err != nil {
		return Response{}, fmt.Errorf("bridge: sending %s request: %w", request.Action, err)
	}

	select {
	case response := <-responseChannel:
		return response, nil
	case <-sb.done:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Events returns the token event stream. The channel closes when the
// bridge closes or the host disconnects.
func (sb *SocketBridge) Events() <-chan TokenEvent { return sb.events }

// Close shuts the connection down. Pending calls fail with ErrClosed;
// the event channel is closed. Close is idempotent.
func (sb *SocketBridge) Close() error {
	sb.closeOnce.Do(func() {
		close(sb.done)
		sb.closeErr = sb.connection.Close()
	})
	return sb.closeErr
}

// readLoop decodes host frames and dispatches them: responses to the
// pending call they correlate with, token events to the event
// channel. Runs until the connection fails or the bridge closes.
func (sb *SocketBridge) readLoop() {
	defer close(sb.events)
	decoder := newDecoder(sb.connection)

	for {
		var incoming frame
		if err := decoder.Decode(&incoming); err != nil {
			select {
			case <-sb.done:
			default:
				if !errors.Is(err, io.EOF) {
					sb.logger.Error("bridge read failed", "error", err)
				}
				sb.Close()
			}
			return
		}

		switch incoming.Kind {
		case frameKindResponse:
			if incoming.Response == nil {
				sb.logger.Warn("response frame without payload")
				continue
			}
			sb.dispatchResponse(*incoming.Response)
		case frameKindToken:
			if incoming.Token == nil {
				sb.logger.Warn("token frame without payload")
				continue
			}
			sb.dispatchToken(*incoming.Token)
		default:
			sb.logger.Warn("unknown frame kind", "kind", incoming.Kind)
		}
	}
}

func (sb *SocketBridge) dispatchResponse(response Response) {
	sb.pendingMu.Lock()
	waiting, ok := sb.pending[response.ID]
	sb.pendingMu.Unlock()
	if !ok {
		// The caller gave up (context cancelled) before the host
		// answered.
		sb.logger.Debug("response for abandoned call", "id", response.ID)
		return
	}
	waiting <- response
}

func (sb *SocketBridge) dispatchToken(event TokenEvent) {
	for {
		select {
		case sb.events <- event:
			return
		default:
		}
		select {
		case dropped := <-sb.events:
			sb.logger.Warn("token event dropped on overflow", "kind", dropped.Kind, "job_id", dropped.JobID)
		default:
		}
	}
}
