// listener.go - catwalk client listener.
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

// Package incoming implements the client control connection support.
package incoming

import (
	"container/list"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"gopkg.in/op/go-logging.v1"

	"github.com/anonbridge/catwalk/core/worker"
	"github.com/anonbridge/catwalk/internal/glue"
	"github.com/anonbridge/catwalk/internal/instrument"
	"github.com/anonbridge/catwalk/quic/common"
)

const keepAliveInterval = 3 * time.Minute

type listener struct {
	sync.Mutex
	worker.Worker

	glue glue.Glue
	log  *logging.Logger

	l     net.Listener
	conns *list.List

	closeAllCh chan struct{}
	closeAllWg sync.WaitGroup
	haltOnce   sync.Once

	connID uint64
}

func (l *listener) Halt() {
	l.haltOnce.Do(func() {
		// Close the listener, wait for worker() to return.
		l.l.Close()
		l.Worker.Halt()

		// Close all connections belonging to the listener.
		//
		// Note: Worst case this can take up to the handshake timeout to
		// actually complete, since the channel isn't checked
		// mid-handshake.
		close(l.closeAllCh)
		l.closeAllWg.Wait()
	})
}

func (l *listener) Addr() net.Addr {
	return l.l.Addr()
}

func (l *listener) worker() {
	addr := l.l.Addr()
	l.log.Noticef("Listening on: %v", addr)
	defer func() {
		l.log.Noticef("Stopping listening on: %v", addr)
		l.l.Close() // Usually redundant, but harmless.
	}()
	for {
		select {
		case <-l.closeAllCh:
			return
		default:
		}
		conn, err := l.l.Accept()
		if err != nil {
			if e, ok := err.(net.Error); ok && !e.Temporary() {
				l.log.Errorf("accept failure: %v", err)
				return
			}
			continue
		}

		tcpConn, ok := conn.(*net.TCPConn)
		if ok {
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(keepAliveInterval)
		}

		l.log.Debugf("Accepted new connection: %v", conn.RemoteAddr())

		l.onNewConn(conn)
	}

	// NOTREACHED
}

func (l *listener) onNewConn(conn net.Conn) {
	c := newConn(l, conn)

	l.closeAllWg.Add(1)
	instrument.ConnectionOpened()
	l.Lock()
	defer func() {
		l.Unlock()
		go c.worker()
	}()
	c.e = l.conns.PushFront(c)
}

func (l *listener) onClosedConn(c *Conn) {
	l.Lock()
	defer func() {
		l.Unlock()
		l.closeAllWg.Done()
		instrument.ConnectionClosed()
	}()
	l.conns.Remove(c.e)
}

// New creates a new listener bound to the URL-style address addr.
func New(g glue.Glue, id int, addr string) (glue.Listener, error) {
	l := &listener{
		glue:       g,
		log:        g.LogBackend().GetLogger(fmt.Sprintf("listener:%d", id)),
		conns:      list.New(),
		closeAllCh: make(chan struct{}),
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("incoming: malformed listener address '%v': %v", addr, err)
	}
	switch u.Scheme {
	case "tcp", "tcp4", "tcp6":
		l.l, err = net.Listen(u.Scheme, u.Host)
		if err != nil {
			l.log.Errorf("Failed to start listener '%v': %v", addr, err)
			return nil, err
		}
	case "quic":
		ql, err := quic.ListenAddr(u.Host, common.GenerateTLSConfig(), nil)
		if err != nil {
			l.log.Errorf("Failed to start listener '%v': %v", addr, err)
			return nil, err
		}
		// Wrap quic.Listener with common.QuicListener
		// so it implements like net.Listener for a
		// single QUIC Stream
		l.l = &common.QuicListener{Listener: ql}
	default:
		return nil, fmt.Errorf("incoming: unsupported listener scheme '%v'", addr)
	}

	l.Go(l.worker)
	return l, nil
}
