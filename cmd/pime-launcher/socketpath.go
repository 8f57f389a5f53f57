// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

// defaultSocketPath returns the per-user control socket path, the
// POSIX analogue of the named pipe \\.\pipe\<username>\PIME\Launcher:
// a path rooted under the user's own runtime directory so that
// distinct users (and distinct sessions on a shared machine) never
// collide on the same socket.
//
// $XDG_RUNTIME_DIR is preferred, matching the freedesktop convention
// for per-user, per-login ephemeral sockets; it falls back to
// /tmp/pime-<uid> when unset, which is common on minimal systems.
func defaultSocketPath() (string, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		current, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("resolving current user: %w", err)
		}
		runtimeDir = filepath.Join(os.TempDir(), "pime-"+current.Uid)
	}
	return filepath.Join(runtimeDir, "pime", "launcher.sock"), nil
}
