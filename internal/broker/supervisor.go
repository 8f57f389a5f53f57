// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/wyrover/pime/lib/catalog"
	"github.com/wyrover/pime/lib/framing"
	"github.com/wyrover/pime/lib/netutil"
)

// replyRouter is the narrow interface a BackendSupervisor needs to
// deliver decoded backend replies to the right session. Registry
// implements it; a supervisor never needs the rest of Registry's
// surface.
type replyRouter interface {
	RouteReply(clientID string, payload []byte)
}

// BackendSupervisor owns the lifecycle of one backend worker process:
// spawn on demand, own its stdin/stdout pipes, route outbound messages
// in, dispatch inbound replies out by client id, and recover from
// exit. One supervisor exists per catalog.Descriptor for the lifetime
// of the broker.
//
// mu serializes spawn and dispatch so that two clients racing into a
// not-yet-running supervisor cannot spawn two children, and so that
// writes to the child's stdin are never interleaved mid-frame.
type BackendSupervisor struct {
	descriptor catalog.Descriptor
	installDir string
	router     replyRouter
	logger     *slog.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	ready bool
}

// terminationSignal is the graceful termination signal sent to backend
// processes, the POSIX analogue of the original's SIGTERM-equivalent
// signal to a libuv child handle.
var terminationSignal = syscall.SIGTERM

// NewBackendSupervisor returns a supervisor in the idle state for the
// given descriptor. installDir is the broker's install directory,
// against which the descriptor's relative command path is resolved.
func NewBackendSupervisor(descriptor catalog.Descriptor, installDir string, router replyRouter, logger *slog.Logger) *BackendSupervisor {
	return &BackendSupervisor{
		descriptor: descriptor,
		installDir: installDir,
		router:     router,
		logger:     logger.With("backend", descriptor.Name),
	}
}

// SetRouter assigns the reply router after construction. Used by
// pime-launcher's startup sequence, which must build every supervisor
// before the Registry that will route their replies exists.
func (s *BackendSupervisor) SetRouter(router replyRouter) {
	s.router = router
}

// Name returns the backend's stable short identifier.
func (s *BackendSupervisor) Name() string {
	return s.descriptor.Name
}

// Dispatch ensures the child is running (spawning it if not) and
// writes an encoded frame carrying payload to its stdin, addressed to
// clientID. If spawning fails, the call returns an error and the
// caller (a ClientSession) drops the triggering message; the
// supervisor remains idle and the next Dispatch retries the spawn.
func (s *BackendSupervisor) Dispatch(clientID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		if err := s.spawnLocked(); err != nil {
			return fmt.Errorf("spawning backend %q: %w", s.descriptor.Name, err)
		}
	}

	frame, err := framing.EncodeFrame(clientID, payload)
	if err != nil {
		return fmt.Errorf("encoding frame for backend %q: %w", s.descriptor.Name, err)
	}
	if _, err := s.stdin.Write(frame); err != nil {
		return fmt.Errorf("writing to backend %q: %w", s.descriptor.Name, err)
	}
	return nil
}

// spawnLocked starts the child process. Caller must hold mu.
func (s *BackendSupervisor) spawnLocked() error {
	commandPath := s.descriptor.Command
	if !filepath.IsAbs(commandPath) {
		commandPath = filepath.Join(s.installDir, commandPath)
	}
	workingDir, err := filepath.Abs(s.descriptor.WorkingDir)
	if err != nil {
		return fmt.Errorf("resolving working directory %q: %w", s.descriptor.WorkingDir, err)
	}

	cmd := exec.Command(commandPath, s.descriptor.Params)
	cmd.Dir = workingDir
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("starting process: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.ready = false

	go s.readLoop(stdout)
	go s.waitLoop(cmd)

	s.logger.Info("backend spawned", "pid", cmd.Process.Pid)
	return nil
}

// readLoop decodes frames from the backend's stdout and routes each
// one to the bound session via the reply router, until the pipe
// closes (normally when the process exits).
func (s *BackendSupervisor) readLoop(stdout io.ReadCloser) {
	decoder := framing.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			frames := decoder.Decode(buf[:n])
			if decoder.ConsumedSentinel {
				s.MarkReady()
				decoder.ConsumedSentinel = false
			}
			for _, frame := range frames {
				s.router.RouteReply(frame.ClientID, frame.Payload)
			}
		}
		if err != nil {
			if !netutil.IsExpectedCloseError(err) && err != io.EOF {
				s.logger.Error("reading backend stdout", "error", err)
			}
			return
		}
	}
}

// waitLoop blocks until the child exits, then resets the supervisor
// to idle. It does not notify any bound session — sessions discover
// the loss only by sending another message, which triggers a respawn.
func (s *BackendSupervisor) waitLoop(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != cmd {
		// Superseded by a later spawn (should not happen given mu
		// serializes spawnLocked, but guards against reordering).
		return
	}
	s.cmd = nil
	s.stdin = nil
	s.ready = false

	if err != nil {
		s.logger.Info("backend exited", "error", err)
	} else {
		s.logger.Info("backend exited")
	}
}

// MarkReady records that the backend has emitted its ready sentinel.
// Advisory only: Dispatch does not consult this flag before writing.
func (s *BackendSupervisor) MarkReady() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
}

// Ready reports whether the backend has emitted its ready sentinel
// since it was last spawned.
func (s *BackendSupervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Terminate sends the running child a graceful termination signal and
// returns immediately; cleanup happens asynchronously in waitLoop when
// the exit fires. A no-op if no child is running.
func (s *BackendSupervisor) Terminate() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(terminationSignal); err != nil {
		s.logger.Debug("signaling backend for termination", "error", err)
	}
}
