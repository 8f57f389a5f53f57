// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/wyrover/pime/internal/broker"
	"github.com/wyrover/pime/lib/catalog"
	"github.com/wyrover/pime/lib/process"
	"github.com/wyrover/pime/lib/security"
	"github.com/wyrover/pime/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		installDir  string
		socketPath  string
		showVersion bool
		quitFlag    bool
	)

	flag.StringVar(&installDir, "install-dir", ".", "directory containing backends.yaml and each backend's input_methods")
	flag.StringVar(&socketPath, "socket", "", "path to the control socket (default: $XDG_RUNTIME_DIR/pime/launcher.sock)")
	flag.BoolVar(&quitFlag, "quit", false, "send a quit message to an already-running launcher and exit")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("pime-launcher %s\n", version.Info())
		return nil
	}

	if socketPath == "" {
		resolved, err := defaultSocketPath()
		if err != nil {
			return fmt.Errorf("resolving default socket path: %w", err)
		}
		socketPath = resolved
	}

	if quitFlag {
		return sendQuit(socketPath)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cat, err := catalog.Load(installDir)
	if err != nil {
		return fmt.Errorf("loading backend catalog: %w", err)
	}
	logger.Info("backend catalog loaded",
		"backends", len(cat.Descriptors()),
		"profile_bindings", len(cat.ProfileBindings()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := newRegistry(cat, installDir, logger)

	listener, err := listenSocket(socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	defer listener.Close()
	logger.Info("launcher listening", "socket", socketPath)

	server := broker.NewServer(listener, registry, logger)
	go server.Serve(ctx)

	// Serve turns a cancelled ctx into the same shutdown as a client's
	// quit, and ShutdownRequested is closed only after every supervisor
	// has been signalled, so waiting on it covers both paths.
	<-server.ShutdownRequested()
	logger.Info("shutting down")

	return nil
}

// newRegistry builds one BackendSupervisor per descriptor in cat and
// wires them into a broker.Registry. Each supervisor routes decoded
// backend replies through the registry itself, so the registry must
// exist before the supervisors can be constructed with their final
// router; we build the supervisors first with a nil router and patch
// it in once the registry is built.
func newRegistry(cat *catalog.Catalog, installDir string, logger *slog.Logger) *broker.Registry {
	descriptors := cat.Descriptors()
	supervisors := make([]*broker.BackendSupervisor, len(descriptors))
	for i, d := range descriptors {
		supervisors[i] = broker.NewBackendSupervisor(d, installDir, nil, logger)
	}

	registry := broker.NewRegistry(supervisors, cat.ProfileBindings())
	for _, sup := range supervisors {
		sup.SetRouter(registry)
	}
	return registry
}

// listenSocket creates the control socket, removing any stale socket
// file left behind by a predecessor that did not exit cleanly, and
// applies the POSIX DACL-equivalent permissions from lib/security.
func listenSocket(socketPath string) (net.Listener, error) {
	if err := security.EnsureRuntimeDir(filepath.Dir(socketPath)); err != nil {
		return nil, err
	}

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	if err := security.SecureSocket(socketPath); err != nil {
		listener.Close()
		return nil, err
	}

	return listener, nil
}
