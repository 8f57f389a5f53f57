// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/wyrover/pime/lib/netutil"
)

// closeNotification is the synthetic frame a session sends its bound
// backend when its client connection closes.
var closeNotification = []byte(`{"method":"close"}`)

// quitCommand is the literal control message that triggers broker
// shutdown when received from any session, bound or unbound.
const quitCommand = "quit"

// initEnvelope is the shape of the handshake message a client sends to
// bind its session to a backend. Only Method and ID are meaningful;
// any other fields present in the message are ignored.
type initEnvelope struct {
	Method string `json:"method"`
	ID     string `json:"id"`
}

// ClientSession is the per-connection state for one accepted client.
// It is created unbound (backend == nil) and binds to exactly one
// BackendSupervisor on a successful init handshake; the binding never
// changes afterward, even if that backend later crashes and respawns.
type ClientSession struct {
	clientID string
	conn     net.Conn
	registry *Registry
	shutdown func()
	logger   *slog.Logger

	mu      sync.Mutex
	backend *BackendSupervisor
}

// newClientSession returns a session for an accepted connection. It is
// not yet registered with the registry's session set; the caller
// (Server.handleConnection) does that.
func newClientSession(clientID string, conn net.Conn, registry *Registry, shutdown func(), logger *slog.Logger) *ClientSession {
	return &ClientSession{
		clientID: clientID,
		conn:     conn,
		registry: registry,
		shutdown: shutdown,
		logger:   logger.With("client_id", clientID),
	}
}

// ClientID returns the session's stable, locally-unique identifier.
func (s *ClientSession) ClientID() string {
	return s.clientID
}

// serve reads line-delimited messages from the client connection until
// it closes, dispatching each to the bound backend once the handshake
// completes. It always returns (never panics) so the caller's deferred
// cleanup runs.
func (s *ClientSession) serve() {
	reader := bufio.NewReader(s.conn)
	for {
		line, err := reader.ReadBytes('\n')
		line = bytes.TrimRight(line, "\n")
		if len(line) > 0 {
			s.handleMessage(line)
		}
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Debug("client read error", "error", err)
			}
			return
		}
	}
}

// handleMessage processes one message from the client. The quit
// control message shuts the broker down regardless of whether the
// session is bound — a client does not lose the ability to stop the
// broker just because it completed the handshake. Anything else is
// handed to the bound backend; while unbound, it is instead treated as
// an init handshake attempt and dropped silently if it is not one.
func (s *ClientSession) handleMessage(line []byte) {
	if string(line) == quitCommand {
		s.logger.Info("quit received")
		s.shutdown()
		return
	}

	s.mu.Lock()
	backend := s.backend
	s.mu.Unlock()

	if backend != nil {
		if err := backend.Dispatch(s.clientID, line); err != nil {
			s.logger.Warn("dispatch failed", "error", err)
		}
		return
	}

	var envelope initEnvelope
	if err := json.Unmarshal(line, &envelope); err != nil {
		return
	}
	if envelope.Method != "init" {
		return
	}
	sup, ok := s.registry.ByProfileID(strings.ToLower(envelope.ID))
	if !ok {
		return
	}

	s.mu.Lock()
	s.backend = sup
	s.mu.Unlock()

	// The init message itself is forwarded to the freshly bound
	// backend, not just consumed for binding: the backend needs to see
	// the handshake to initialize its own per-client state.
	if err := sup.Dispatch(s.clientID, line); err != nil {
		s.logger.Warn("dispatch failed", "error", err)
	}
}

// deliver writes a backend reply to the client connection verbatim,
// followed by the line terminator. Called from Registry.RouteReply;
// write errors are logged, not returned, since the reply path has no
// caller to propagate an error to.
func (s *ClientSession) deliver(payload []byte) {
	if _, err := s.conn.Write(append(append([]byte(nil), payload...), '\n')); err != nil {
		if !netutil.IsExpectedCloseError(err) {
			s.logger.Debug("delivering reply", "error", err)
		}
	}
}

// close sends the bound backend a best-effort close notification and
// closes the client connection. Called once, when serve returns.
func (s *ClientSession) close() {
	s.mu.Lock()
	backend := s.backend
	s.mu.Unlock()

	if backend != nil {
		_ = backend.Dispatch(s.clientID, closeNotification)
	}
	_ = s.conn.Close()
}
