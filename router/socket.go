// socket.go - socket backend speaking to an external router daemon.
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
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/anonbridge/catwalk/core/log"
	"github.com/anonbridge/catwalk/core/worker"
	"github.com/anonbridge/catwalk/destination"
)

// SocketBackend drives a router daemon over a local socket.  One
// control connection, opened at construction, carries key generation
// requests; every network session gets a dedicated connection for its
// control and datagram traffic, and every virtual stream a further one
// that is converted into a raw pipe after the dial or accept handshake.
type SocketBackend struct {
	logBackend *log.Backend
	log        *logging.Logger

	network string
	address string

	sync.Mutex // serializes control round-trips
	ctrl   net.Conn
	closed bool

	sessionID uint64
}

// NewSocketBackend connects to the router daemon at addr, a URL of the
// form "unix:///path/to/socket" or "tcp://host:port".
func NewSocketBackend(addr string, logBackend *log.Backend) (*SocketBackend, error) {
	network, address, err := parseRouterAddr(addr)
	if err != nil {
		return nil, err
	}

	b := &SocketBackend{
		logBackend: logBackend,
		log:        logBackend.GetLogger("router/socket"),
		network:    network,
		address:    address,
	}

	b.log.Debugf("Dialing router daemon: %v", addr)
	b.ctrl, err = net.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("router: failed to reach daemon at %v: %v", addr, err)
	}
	return b, nil
}

func parseRouterAddr(addr string) (network, address string, err error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", fmt.Errorf("router: malformed daemon address '%v': %v", addr, err)
	}
	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp", "tcp4", "tcp6":
		return u.Scheme, u.Host, nil
	default:
		return "", "", fmt.Errorf("router: unsupported daemon address scheme '%v'", addr)
	}
}

func (b *SocketBackend) dial() (net.Conn, error) {
	return net.Dial(b.network, b.address)
}

// roundTrip sends req on the control connection and reads one reply.
func (b *SocketBackend) roundTrip(req *frame) (*frame, error) {
	b.Lock()
	defer b.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if err := writeFrame(b.ctrl, req); err != nil {
		return nil, err
	}
	return readFrame(b.ctrl)
}

// GenerateKeys asks the daemon to mint a fresh endpoint identity.
func (b *SocketBackend) GenerateKeys() (*destination.PrivateKey, error) {
	ack, err := b.roundTrip(&frame{Op: opGenKeys})
	if err != nil {
		return nil, err
	}
	if ack.Op != opKeysAck {
		return nil, fmt.Errorf("router: unexpected reply op %d to key generation", ack.Op)
	}
	if err = ackError(ack); err != nil {
		return nil, err
	}
	return destination.PrivateKeyFromBytes(ack.Keys)
}

// Open establishes a network session on a dedicated daemon connection.
func (b *SocketBackend) Open(cfg *SessionConfig) (Session, error) {
	b.Lock()
	if b.closed {
		b.Unlock()
		return nil, ErrClosed
	}
	b.sessionID++
	id := b.sessionID
	b.Unlock()

	conn, err := b.dial()
	if err != nil {
		return nil, err
	}
	if err = writeFrame(conn, &frame{Op: opOpen, Keys: cfg.Keys.Bytes(), Options: cfg.Options}); err != nil {
		conn.Close()
		return nil, err
	}
	ack, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if ack.Op != opOpenAck {
		conn.Close()
		return nil, fmt.Errorf("router: unexpected reply op %d to session open", ack.Op)
	}
	if err = ackError(ack); err != nil {
		conn.Close()
		return nil, err
	}

	s := &socketSession{
		backend: b,
		log:     b.logBackend.GetLogger(fmt.Sprintf("router/socket:%d", id)),
		sid:     ack.SID,
		keys:    cfg.Keys,
		handler: cfg.Handler,
		conn:    conn,
	}
	// The reader is not tracked under the Worker: it tears the session
	// down itself on a read failure, and Halt from within a tracked
	// goroutine would wait on it forever.  It exits once the connection
	// is closed, from either side.
	go s.readWorker()
	return s, nil
}

// Close shuts down the control connection.  Open sessions are closed
// individually by their owners.
func (b *SocketBackend) Close() error {
	b.Lock()
	defer b.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.ctrl.Close()
}

func ackError(f *frame) error {
	switch f.Code {
	case codeOK:
		if f.Err != "" {
			return fmt.Errorf("router: %s", f.Err)
		}
		return nil
	case codeDuplicateDest:
		return ErrDuplicateDest
	case codeNoPeer:
		return ErrNoPeer
	case codeTimeout:
		return ErrTimeout
	default:
		return fmt.Errorf("router: %s", f.Err)
	}
}

type socketSession struct {
	worker.Worker

	backend *SocketBackend
	log     *logging.Logger

	sid     uint64
	keys    *destination.PrivateKey
	handler Handler

	writeLock sync.Mutex
	conn      net.Conn

	closeOnce sync.Once
}

func (s *socketSession) LocalDestination() destination.Destination {
	return s.keys.Destination()
}

// readWorker pumps inbound frames off the session connection.  Each
// message is handed to the handler on its own goroutine so the read
// loop never stalls behind a slow consumer.
func (s *socketSession) readWorker() {
	for {
		f, err := readFrame(s.conn)
		if err != nil {
			select {
			case <-s.HaltCh():
			default:
				s.log.Debugf("Read failure, closing session: %v", err)
			}
			s.Close()
			return
		}
		if f.Op != opMessage {
			s.log.Warningf("Dropping unexpected op %d from daemon", f.Op)
			continue
		}
		if s.handler == nil {
			continue
		}
		msg := &InboundMessage{
			Sender:   destination.Destination(f.Dest),
			Payload:  f.Payload,
			Proto:    f.Proto,
			FromPort: f.FromPort,
			ToPort:   f.ToPort,
		}
		go s.handler(msg)
	}
}

func (s *socketSession) SendDatagram(dest destination.Destination, payload []byte, proto uint8, fromPort, toPort uint16) error {
	select {
	case <-s.HaltCh():
		return ErrClosed
	default:
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	err := writeFrame(s.conn, &frame{
		Op:       opSend,
		SID:      s.sid,
		Dest:     dest,
		Payload:  payload,
		Proto:    proto,
		FromPort: fromPort,
		ToPort:   toPort,
	})
	if err != nil {
		return fmt.Errorf("router: send failed: %v", err)
	}
	return nil
}

// DialStream opens a stream connection: a fresh daemon connection, one
// dial frame, one ack, then the connection is the stream.
func (s *socketSession) DialStream(dest destination.Destination, fromPort, toPort uint16, timeout time.Duration) (net.Conn, error) {
	conn, err := s.backend.dial()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}
	err = writeFrame(conn, &frame{
		Op:       opDialStream,
		SID:      s.sid,
		Dest:     dest,
		FromPort: fromPort,
		ToPort:   toPort,
	})
	if err == nil {
		var ack *frame
		if ack, err = readFrame(conn); err == nil {
			if ack.Op != opStreamAck {
				err = fmt.Errorf("router: unexpected reply op %d to stream dial", ack.Op)
			} else {
				err = ackError(ack)
			}
		}
	}
	if err != nil {
		conn.Close()
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	return conn, nil
}

// AcceptStream blocks for one inbound stream on a fresh daemon
// connection.  The halt channel aborts the wait.
func (s *socketSession) AcceptStream(halt <-chan struct{}) (net.Conn, *StreamInfo, error) {
	select {
	case <-halt:
		return nil, nil, ErrClosed
	case <-s.HaltCh():
		return nil, nil, ErrClosed
	default:
	}

	conn, err := s.backend.dial()
	if err != nil {
		return nil, nil, err
	}
	if err = writeFrame(conn, &frame{Op: opAcceptStream, SID: s.sid}); err != nil {
		conn.Close()
		return nil, nil, err
	}

	type ackResult struct {
		f   *frame
		err error
	}
	ackCh := make(chan ackResult, 1)
	go func() {
		f, err := readFrame(conn)
		ackCh <- ackResult{f, err}
	}()

	select {
	case <-halt:
		conn.Close()
		return nil, nil, ErrClosed
	case <-s.HaltCh():
		conn.Close()
		return nil, nil, ErrClosed
	case r := <-ackCh:
		if r.err == nil {
			if r.f.Op != opStreamAck {
				r.err = fmt.Errorf("router: unexpected reply op %d to stream accept", r.f.Op)
			} else {
				r.err = ackError(r.f)
			}
		}
		if r.err != nil {
			conn.Close()
			return nil, nil, r.err
		}
		info := &StreamInfo{
			Peer:     destination.Destination(r.f.Dest),
			FromPort: r.f.FromPort,
			ToPort:   r.f.ToPort,
		}
		return conn, info, nil
	}
}

func (s *socketSession) Close() error {
	s.closeOnce.Do(func() {
		s.writeLock.Lock()
		writeFrame(s.conn, &frame{Op: opClose, SID: s.sid}) // Best effort.
		s.writeLock.Unlock()
		s.conn.Close()
		s.Halt()
	})
	return nil
}
