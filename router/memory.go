// memory.go - process-local loopback backend.
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

package router

import (
	"crypto/rand"
	"net"
	"sync"
	"time"

	"github.com/anonbridge/catwalk/core/worker"
	"github.com/anonbridge/catwalk/destination"
)

const (
	memDestSize   = 387
	memSecretSize = 663

	memAcceptBacklog = 16
)

// Network is a process-local loopback overlay.  Every session opened
// through it can reach every other, and nothing leaves the process.  It
// exists for development configs and tests; identities are random bytes
// with no cryptographic meaning.
type Network struct {
	sync.Mutex

	sessions map[string]*memSession
	closed   bool
}

// NewNetwork creates an empty loopback overlay.
func NewNetwork() *Network {
	return &Network{sessions: make(map[string]*memSession)}
}

// GenerateKeys mints a random identity.
func (n *Network) GenerateKeys() (*destination.PrivateKey, error) {
	dest := make([]byte, memDestSize)
	if _, err := rand.Read(dest); err != nil {
		return nil, err
	}
	secret := make([]byte, memSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return destination.New(dest, secret)
}

// Open registers a session on the loopback.
func (n *Network) Open(cfg *SessionConfig) (Session, error) {
	n.Lock()
	defer n.Unlock()
	if n.closed {
		return nil, ErrClosed
	}

	key := string(cfg.Keys.Destination())
	if _, dup := n.sessions[key]; dup {
		return nil, ErrDuplicateDest
	}
	s := &memSession{
		network:  n,
		keys:     cfg.Keys,
		handler:  cfg.Handler,
		acceptCh: make(chan inboundStream, memAcceptBacklog),
	}
	n.sessions[key] = s
	return s, nil
}

// Close tears down the loopback and every session on it.
func (n *Network) Close() error {
	n.Lock()
	sessions := make([]*memSession, 0, len(n.sessions))
	for _, s := range n.sessions {
		sessions = append(sessions, s)
	}
	n.closed = true
	n.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return nil
}

func (n *Network) lookup(dest destination.Destination) *memSession {
	n.Lock()
	defer n.Unlock()
	return n.sessions[string(dest)]
}

func (n *Network) remove(s *memSession) {
	n.Lock()
	defer n.Unlock()
	key := string(s.keys.Destination())
	if n.sessions[key] == s {
		delete(n.sessions, key)
	}
}

type inboundStream struct {
	conn net.Conn
	info *StreamInfo
}

type memSession struct {
	worker.Worker

	network *Network
	keys    *destination.PrivateKey
	handler Handler

	acceptCh chan inboundStream

	closeOnce sync.Once
}

func (s *memSession) LocalDestination() destination.Destination {
	return s.keys.Destination()
}

func (s *memSession) SendDatagram(dest destination.Destination, payload []byte, proto uint8, fromPort, toPort uint16) error {
	select {
	case <-s.HaltCh():
		return ErrClosed
	default:
	}

	target := s.network.lookup(dest)
	if target == nil {
		return ErrNoPeer
	}
	if target.handler == nil {
		return nil
	}

	// The caller may reuse the payload buffer once this returns.
	msg := &InboundMessage{
		Sender:   s.keys.Destination(),
		Payload:  append([]byte(nil), payload...),
		Proto:    proto,
		FromPort: fromPort,
		ToPort:   toPort,
	}
	go target.handler(msg)
	return nil
}

func (s *memSession) DialStream(dest destination.Destination, fromPort, toPort uint16, timeout time.Duration) (net.Conn, error) {
	target := s.network.lookup(dest)
	if target == nil {
		return nil, ErrNoPeer
	}

	local, remote := net.Pipe()
	in := inboundStream{
		conn: remote,
		info: &StreamInfo{
			Peer:     s.keys.Destination(),
			FromPort: fromPort,
			ToPort:   toPort,
		},
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}

	select {
	case target.acceptCh <- in:
		return local, nil
	case <-target.HaltCh():
		local.Close()
		remote.Close()
		return nil, ErrNoPeer
	case <-s.HaltCh():
		local.Close()
		remote.Close()
		return nil, ErrClosed
	case <-timeoutCh:
		local.Close()
		remote.Close()
		return nil, ErrTimeout
	}
}

func (s *memSession) AcceptStream(halt <-chan struct{}) (net.Conn, *StreamInfo, error) {
	select {
	case in := <-s.acceptCh:
		return in.conn, in.info, nil
	case <-halt:
		return nil, nil, ErrClosed
	case <-s.HaltCh():
		return nil, nil, ErrClosed
	}
}

func (s *memSession) Close() error {
	s.closeOnce.Do(func() {
		s.network.remove(s)
		s.Halt()

		// Release any streams still queued for accept.
		for {
			select {
			case in := <-s.acceptCh:
				in.conn.Close()
			default:
				return
			}
		}
	})
	return nil
}
