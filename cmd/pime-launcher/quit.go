// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"net"
	"time"
)

// quitTimeout bounds how long sendQuit waits to connect to and write
// the control message to a predecessor launcher. The original used a
// 1-second CallNamedPipeA timeout for the same purpose.
const quitTimeout = time.Second

// sendQuit connects to a running launcher's control socket and sends
// it the literal quit message, the single-instance enforcement path:
// a newly started launcher that finds --quit set terminates whatever
// launcher is already listening, then exits itself without ever
// opening its own listener.
//
// A dial failure (nothing listening) is not an error worth reporting:
// there being no predecessor to terminate is the common case on a
// fresh machine.
func sendQuit(socketPath string) error {
	conn, err := net.DialTimeout("unix", socketPath, quitTimeout)
	if err != nil {
		return nil
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(quitTimeout))
	if _, err := conn.Write([]byte("quit\n")); err != nil {
		return fmt.Errorf("sending quit: %w", err)
	}
	return nil
}
