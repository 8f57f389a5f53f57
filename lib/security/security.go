// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

// Package security builds the POSIX runtime-directory layout that
// replaces the Windows named-pipe DACL: a security descriptor granting
// GENERIC_ALL to the Everyone SID and to the AppContainer SID, so that
// both ordinary desktop processes and sandboxed text-service hosts
// running under arbitrary sessions can reach a single per-user pipe.
//
// POSIX has no per-capability principal comparable to an AppContainer
// SID. The closest faithful translation is a private, user-owned
// runtime directory with a world-connectable socket inside it: the
// directory's mode keeps other users out of the filesystem namespace,
// while the socket's own mode controls who may connect, mirroring the
// two-trustee DACL's effect (broad connect access, private location).
package security

import (
	"fmt"
	"os"
)

// DirMode is the permission mode of the per-user runtime directory
// that holds the launcher's socket. Only the owning user may list or
// traverse it.
const DirMode = 0o700

// SocketMode is the permission mode applied to the socket file after
// it is created. net.Listen creates Unix sockets at whatever mode the
// process umask allows; callers must chmod explicitly to guarantee
// GENERIC_ALL-equivalent connect access regardless of the invoking
// user's umask.
const SocketMode = 0o666

// EnsureRuntimeDir creates dir (and any missing parents) with DirMode
// if it does not already exist, and tightens its mode to DirMode if it
// does. This is the POSIX analogue of initSecurityAttributes: it runs
// once at startup, before the socket is created inside dir.
func EnsureRuntimeDir(dir string) error {
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("security: creating runtime directory %s: %w", dir, err)
	}
	if err := os.Chmod(dir, DirMode); err != nil {
		return fmt.Errorf("security: setting mode on runtime directory %s: %w", dir, err)
	}
	return nil
}

// SecureSocket applies SocketMode to the socket file at path. Call
// this immediately after net.Listen("unix", path) succeeds: the
// listener creates the file before this function can change its mode,
// so there is a brief window where the socket exists at whatever mode
// the umask produced.
func SecureSocket(path string) error {
	if err := os.Chmod(path, SocketMode); err != nil {
		return fmt.Errorf("security: setting mode on socket %s: %w", path, err)
	}
	return nil
}
