// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker implements the multiplexing core: the registry of
// backend supervisors, the client sessions bound to them, and the
// socket server that accepts connections and drives the whole thing.
package broker

import (
	"strings"
	"sync"
)

// Registry is the process-wide catalogue of backend supervisors and
// their profile bindings, plus the live set of client sessions bound
// to them. The supervisor list and profile map are populated once at
// startup from the backend catalog and never mutated afterward; the
// session set is mutated continuously as clients connect and
// disconnect, so it is guarded by mu.
//
// Registry owns the session set (rather than Server) so that a
// supervisor's stdout read loop can route a decoded reply straight to
// the bound session via RouteReply without reaching back into the
// server that accepted the connection.
type Registry struct {
	supervisors []*BackendSupervisor
	byName      map[string]*BackendSupervisor
	byProfileID map[string]*BackendSupervisor // key: lowercased profile id

	mu       sync.Mutex
	sessions map[string]*ClientSession // key: client id
}

// NewRegistry builds a Registry from the given supervisors and profile
// bindings (profile id -> backend name, as produced by lib/catalog).
// Bindings naming an unknown backend are skipped silently; a catalog
// inconsistency should not prevent the broker from starting.
func NewRegistry(supervisors []*BackendSupervisor, profileBindings map[string]string) *Registry {
	r := &Registry{
		supervisors: supervisors,
		byName:      make(map[string]*BackendSupervisor, len(supervisors)),
		byProfileID: make(map[string]*BackendSupervisor, len(profileBindings)),
		sessions:    make(map[string]*ClientSession),
	}
	for _, sup := range supervisors {
		r.byName[sup.Name()] = sup
	}
	for profileID, backendName := range profileBindings {
		if sup, ok := r.byName[backendName]; ok {
			r.byProfileID[strings.ToLower(profileID)] = sup
		}
	}
	return r
}

// ByName looks up a supervisor by its backend name.
func (r *Registry) ByName(name string) (*BackendSupervisor, bool) {
	sup, ok := r.byName[name]
	return sup, ok
}

// ByProfileID looks up a supervisor by profile id, case-insensitively.
func (r *Registry) ByProfileID(profileID string) (*BackendSupervisor, bool) {
	sup, ok := r.byProfileID[strings.ToLower(profileID)]
	return sup, ok
}

// Supervisors returns every supervisor in the registry, in load order.
func (r *Registry) Supervisors() []*BackendSupervisor {
	return r.supervisors
}

// AddSession registers a newly accepted session under its client id.
func (r *Registry) AddSession(session *ClientSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ClientID()] = session
}

// RemoveSession removes a session from the set, typically called when
// its connection closes.
func (r *Registry) RemoveSession(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, clientID)
}

// SessionCount returns the number of currently registered sessions.
// Used by tests to assert the session set tracks open connections.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// RouteReply delivers payload to the session matching clientID. If no
// such session exists — it may have closed racily with the backend's
// reply — the reply is dropped silently; this is not an error from the
// broker's perspective.
func (r *Registry) RouteReply(clientID string, payload []byte) {
	r.mu.Lock()
	session, ok := r.sessions[clientID]
	r.mu.Unlock()
	if !ok {
		return
	}
	session.deliver(payload)
}
