// router.go - overlay router capability interface.
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

// Package router is the boundary between the bridge and the overlay
// router that actually moves traffic.  The bridge consumes the Backend
// capability and knows nothing about routing or key cryptography; those
// live on the far side of this interface.
package router

import (
	"errors"
	"net"
	"time"

	"github.com/anonbridge/catwalk/destination"
)

var (
	// ErrClosed is returned on operations against a closed backend or
	// session.
	ErrClosed = errors.New("router: closed")

	// ErrDuplicateDest rejects opening a session for a destination that
	// already has one.
	ErrDuplicateDest = errors.New("router: destination already active")

	// ErrNoPeer reports that the overlay found no path to the requested
	// destination.
	ErrNoPeer = errors.New("router: no path to peer")

	// ErrTimeout reports a stream dial that exceeded its deadline.
	ErrTimeout = errors.New("router: dial timed out")
)

// InboundMessage is one connectionless message arriving from the
// overlay for a session.
type InboundMessage struct {
	Sender   destination.Destination
	Payload  []byte
	Proto    uint8
	FromPort uint16
	ToPort   uint16
}

// Handler consumes inbound connectionless messages for one session.
// The backend invokes it on a dedicated goroutine per message, so a slow
// consumer never stalls the backend's read loop.
type Handler func(msg *InboundMessage)

// StreamInfo identifies the remote end of an accepted virtual stream.
type StreamInfo struct {
	Peer     destination.Destination
	FromPort uint16
	ToPort   uint16
}

// SessionConfig carries everything needed to establish a network
// session.
type SessionConfig struct {
	// Keys is the private destination the session operates as.
	Keys *destination.PrivateKey

	// Options are opaque session options passed through to the router.
	Options map[string]string

	// Handler receives inbound connectionless messages.  It may be nil
	// for sessions that only carry streams, in which case such messages
	// are dropped.
	Handler Handler
}

// Backend is the router capability consumed by the bridge.
type Backend interface {
	// Open establishes a network session bound to cfg.Keys.
	Open(cfg *SessionConfig) (Session, error)

	// GenerateKeys asks the router to mint a fresh endpoint identity.
	GenerateKeys() (*destination.PrivateKey, error)

	// Close tears down the backend.  Sessions opened through it become
	// unusable.
	Close() error
}

// Session is one established network session.
type Session interface {
	// LocalDestination returns the public destination the session
	// operates as.
	LocalDestination() destination.Destination

	// SendDatagram submits one connectionless message for delivery.
	// Submission is synchronous; delivery is not acknowledged.  The
	// payload buffer is not retained past the call.
	SendDatagram(dest destination.Destination, payload []byte, proto uint8, fromPort, toPort uint16) error

	// DialStream opens a virtual stream to dest, bounded by timeout.
	DialStream(dest destination.Destination, fromPort, toPort uint16, timeout time.Duration) (net.Conn, error)

	// AcceptStream blocks until an inbound virtual stream arrives, the
	// halt channel closes, or the session closes.
	AcceptStream(halt <-chan struct{}) (net.Conn, *StreamInfo, error)

	// Close releases the session.  It is safe to call more than once.
	Close() error
}
