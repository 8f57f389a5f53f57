// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

package security

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/wyrover/pime/lib/testutil"
)

func TestEnsureRuntimeDirCreatesAndTightensMode(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "runtime")

	if err := EnsureRuntimeDir(dir); err != nil {
		t.Fatalf("EnsureRuntimeDir: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != DirMode {
		t.Fatalf("mode = %o, want %o", info.Mode().Perm(), DirMode)
	}

	// Loosen it, then confirm a second call tightens it back.
	if err := os.Chmod(dir, 0o777); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	if err := EnsureRuntimeDir(dir); err != nil {
		t.Fatalf("EnsureRuntimeDir (second call): %v", err)
	}
	info, err = os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != DirMode {
		t.Fatalf("mode after second call = %o, want %o", info.Mode().Perm(), DirMode)
	}
}

func TestSecureSocket(t *testing.T) {
	dir := testutil.SocketDir(t)
	path := filepath.Join(dir, "test.sock")

	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	if err := SecureSocket(path); err != nil {
		t.Fatalf("SecureSocket: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != SocketMode {
		t.Fatalf("mode = %o, want %o", info.Mode().Perm(), SocketMode)
	}
}
