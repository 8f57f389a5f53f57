// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/wyrover/pime/lib/netutil"
)

// Server owns the listening socket and drives the accept loop. Each
// accepted connection gets its own ClientSession served on its own
// goroutine — the goroutine-per-connection analogue of the original's
// single-threaded libuv accept/read callback chain.
type Server struct {
	listener net.Listener
	registry *Registry
	logger   *slog.Logger

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewServer returns a Server that will accept connections on listener
// and route them through registry.
func NewServer(listener net.Listener, registry *Registry, logger *slog.Logger) *Server {
	return &Server{
		listener:   listener,
		registry:   registry,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// Serve runs the accept loop until ctx is cancelled or a client sends
// the quit control message. It returns once the loop has stopped;
// callers typically treat either termination path as a clean exit.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.requestShutdown()
		case <-s.shutdownCh:
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return
			default:
			}
			if netutil.IsExpectedCloseError(err) {
				return
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// handleConnection serves one accepted connection to completion, then
// tears the session down: best-effort close notification to the bound
// backend, connection close, removal from the session set.
func (s *Server) handleConnection(conn net.Conn) {
	clientID := uuid.NewString()
	session := newClientSession(clientID, conn, s.registry, s.requestShutdown, s.logger)

	s.registry.AddSession(session)
	defer s.registry.RemoveSession(clientID)
	defer session.close()

	session.serve()
}

// requestShutdown terminates every backend supervisor and stops the
// accept loop. Idempotent: a quit control message and a cancelled
// context racing each other both converge here safely.
func (s *Server) requestShutdown() {
	s.shutdownOnce.Do(func() {
		for _, sup := range s.registry.Supervisors() {
			sup.Terminate()
		}
		close(s.shutdownCh)
		_ = s.listener.Close()
	})
}

// ShutdownRequested returns a channel that is closed once shutdown has
// been requested, either by a client's quit message or by context
// cancellation. main() waits on this to decide when to exit.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdownCh
}
