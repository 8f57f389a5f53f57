// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/wyrover/pime/lib/testutil"
)

func TestListenSocket(t *testing.T) {
	socketDir := testutil.SocketDir(t)
	socketPath := filepath.Join(socketDir, "test.sock")

	listener, err := listenSocket(socketPath)
	if err != nil {
		t.Fatalf("listenSocket() error: %v", err)
	}
	defer listener.Close()

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket file not created: %v", err)
	}
	if info.Mode().Perm() != 0666 {
		t.Errorf("socket permissions = %o, want 0666", info.Mode().Perm())
	}

	parentInfo, err := os.Stat(filepath.Dir(socketPath))
	if err != nil {
		t.Fatalf("runtime dir not created: %v", err)
	}
	if parentInfo.Mode().Perm() != 0700 {
		t.Errorf("runtime dir permissions = %o, want 0700", parentInfo.Mode().Perm())
	}

	// Calling listenSocket again should work (removes the stale socket
	// file left behind by the first listener).
	listener.Close()
	listener2, err := listenSocket(socketPath)
	if err != nil {
		t.Fatalf("second listenSocket() error: %v", err)
	}
	listener2.Close()
}

func TestListenSocket_CreatesParentDirectory(t *testing.T) {
	tempDir := testutil.SocketDir(t)
	socketPath := filepath.Join(tempDir, "nested", "dir", "test.sock")

	listener, err := listenSocket(socketPath)
	if err != nil {
		t.Fatalf("listenSocket() error: %v", err)
	}
	listener.Close()
}

func TestDefaultSocketPathUsesXDGRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	path, err := defaultSocketPath()
	if err != nil {
		t.Fatalf("defaultSocketPath() error: %v", err)
	}
	want := filepath.Join("/run/user/1000", "pime", "launcher.sock")
	if path != want {
		t.Errorf("defaultSocketPath() = %q, want %q", path, want)
	}
}

func TestSendQuitWithNoListenerIsNotAnError(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "nobody-listening.sock")

	if err := sendQuit(socketPath); err != nil {
		t.Fatalf("sendQuit() on an empty socket path returned an error: %v", err)
	}
}

func TestSendQuitDeliversQuitMessage(t *testing.T) {
	socketDir := testutil.SocketDir(t)
	socketPath := filepath.Join(socketDir, "launcher.sock")

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
	}()

	if err := sendQuit(socketPath); err != nil {
		t.Fatalf("sendQuit() error: %v", err)
	}

	got := testutil.RequireReceive(t, received, quitTimeout, "waiting for the quit message to arrive")
	if got != "quit\n" {
		t.Fatalf("got %q, want %q", got, "quit\n")
	}
}
