// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for pime packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. This exists because Unix domain sockets have a
// 108-byte path limit (sun_path in sockaddr_un), and t.TempDir() nests
// under a path that can exceed this limit for long subtest names,
// making it unsuitable for socket files. The directory is automatically
// removed when the test completes.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls for
// channel waits.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// client IDs or message bodies that must be distinguishable from
// other concurrently-running subtests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
