// registry.go - session registry.
// Copyright (C) 2026  catwalk authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package registry is the authoritative map from session nicknames to
// live session state.  Every cross-connection interaction goes through
// it: creating a session claims a nickname, stream attachment and
// sidecar ingress resolve one, teardown releases one.
package registry

import (
	"errors"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/anonbridge/catwalk/core/log"
	"github.com/anonbridge/catwalk/destination"
	"github.com/anonbridge/catwalk/router"
	"github.com/anonbridge/catwalk/wire"
)

var (
	// ErrDuplicateNickname rejects claiming a nickname already in use.
	ErrDuplicateNickname = errors.New("registry: nickname already in use")

	// ErrNotFound is returned when a nickname names no live session.
	ErrNotFound = errors.New("registry: no such session")

	// ErrForwarding rejects a second concurrent forwarder on a session.
	ErrForwarding = errors.New("registry: session already forwarding")
)

// Record is one live session.  Records are fully populated before they
// are published through Create and are immutable afterwards, except for
// the forwarding claim.  A Record references the connection that owns
// it but never closes it; connections own themselves.
type Record struct {
	Nickname string
	Style    wire.Style

	// Keys is the private destination the session operates as.
	Keys *destination.PrivateKey

	// Options are the creation options, kept verbatim for diagnostics.
	Options wire.Options

	// Version is the protocol version negotiated on the owning
	// connection at creation time.
	Version wire.Version

	// Format is the inbound framing derived from Version, fixed for the
	// session's whole life.
	Format wire.HeaderFormat

	// Session is the overlay session carrying the traffic.
	Session router.Session

	fwdLock    sync.Mutex
	forwarding bool

	closeOnce sync.Once
}

// ClaimForward marks the session as having an active stream forwarder.
// At most one forwarder may exist at a time.
func (r *Record) ClaimForward() error {
	r.fwdLock.Lock()
	defer r.fwdLock.Unlock()
	if r.forwarding {
		return ErrForwarding
	}
	r.forwarding = true
	return nil
}

// ReleaseForward releases the forwarding claim.
func (r *Record) ReleaseForward() {
	r.fwdLock.Lock()
	defer r.fwdLock.Unlock()
	r.forwarding = false
}

// Forwarding returns true while a stream forwarder holds the session.
func (r *Record) Forwarding() bool {
	r.fwdLock.Lock()
	defer r.fwdLock.Unlock()
	return r.forwarding
}

// Close releases the overlay session.  Safe to call more than once.
func (r *Record) Close() {
	r.closeOnce.Do(func() {
		if r.Session != nil {
			r.Session.Close()
		}
	})
}

// Registry is the nickname table.  A single mutex guards it; no
// operation ever holds the lock across a blocking call.
type Registry struct {
	sync.Mutex

	log      *logging.Logger
	sessions map[string]*Record
}

// New constructs an empty Registry.
func New(logBackend *log.Backend) *Registry {
	return &Registry{
		log:      logBackend.GetLogger("registry"),
		sessions: make(map[string]*Record),
	}
}

// Create atomically verifies the nickname is free and publishes rec.
// The caller must have fully populated rec first, and on failure still
// owns it, including the rollback of whatever rec holds.
func (g *Registry) Create(rec *Record) error {
	g.Lock()
	defer g.Unlock()

	if _, dup := g.sessions[rec.Nickname]; dup {
		return ErrDuplicateNickname
	}
	g.sessions[rec.Nickname] = rec
	g.log.Debugf("Created session '%v' (%v)", rec.Nickname, rec.Style)
	return nil
}

// Lookup resolves a nickname.
func (g *Registry) Lookup(nickname string) (*Record, error) {
	g.Lock()
	defer g.Unlock()

	rec, ok := g.sessions[nickname]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Remove releases a nickname.  Removing an absent nickname is not an
// error, so teardown paths can race without coordination.  Deliveries
// already dispatched against the record complete against their captured
// state; new lookups no longer find it.
func (g *Registry) Remove(nickname string) {
	g.Lock()
	defer g.Unlock()

	if _, ok := g.sessions[nickname]; ok {
		delete(g.sessions, nickname)
		g.log.Debugf("Removed session '%v'", nickname)
	}
}

// Count returns the number of live sessions.
func (g *Registry) Count() int {
	g.Lock()
	defer g.Unlock()
	return len(g.sessions)
}

// Drain empties the registry and returns the evicted records so the
// caller can close them outside the lock.
func (g *Registry) Drain() []*Record {
	g.Lock()
	defer g.Unlock()

	recs := make([]*Record, 0, len(g.sessions))
	for _, rec := range g.sessions {
		recs = append(recs, rec)
	}
	g.sessions = make(map[string]*Record)
	return recs
}
