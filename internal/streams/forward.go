// forward.go - inbound stream forwarding.
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

package streams

import (
	"fmt"
	"net"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/anonbridge/catwalk/core/log"
	"github.com/anonbridge/catwalk/core/worker"
	"github.com/anonbridge/catwalk/internal/registry"
	"github.com/anonbridge/catwalk/router"
)

// Forwarder accepts inbound virtual streams for a session and bridges
// each of them to a fresh TCP connection to a fixed local address.  A
// session has at most one Forwarder at a time; the forwarding claim on
// the record is taken by the caller and released when the accept loop
// exits.
type Forwarder struct {
	worker.Worker

	log *logging.Logger
	rec *registry.Record

	addr        string
	silent      bool
	dialTimeout time.Duration
}

// NewForwarder starts forwarding inbound streams of rec to addr.  When
// silent is false each bridged connection is prefixed with the peer
// line before any payload bytes.
func NewForwarder(rec *registry.Record, addr string, silent bool, dialTimeout time.Duration, logBackend *log.Backend) *Forwarder {
	f := &Forwarder{
		log:         logBackend.GetLogger(fmt.Sprintf("forward:%s", rec.Nickname)),
		rec:         rec,
		addr:        addr,
		silent:      silent,
		dialTimeout: dialTimeout,
	}
	f.Go(f.acceptWorker)
	return f
}

func (f *Forwarder) acceptWorker() {
	defer f.rec.ReleaseForward()
	f.log.Noticef("Forwarding inbound streams to %s", f.addr)
	for {
		conn, info, err := f.rec.Session.AcceptStream(f.HaltCh())
		if err != nil {
			if err != router.ErrClosed {
				f.log.Debugf("Accept ended: %v", err)
			}
			f.log.Noticef("Stopped forwarding to %s", f.addr)
			return
		}
		// Bridges outlive the accept loop; established streams are
		// not torn down when forwarding stops.
		go f.bridge(conn, info)
	}
}

func (f *Forwarder) bridge(stream net.Conn, info *router.StreamInfo) {
	local, err := net.DialTimeout("tcp", f.addr, f.dialTimeout)
	if err != nil {
		f.log.Errorf("Failed to connect to forward target %s: %v", f.addr, err)
		stream.Close()
		return
	}
	if !f.silent {
		line := f.rec.Format.AppendSenderLine(nil, info.Peer.String(), info.FromPort, info.ToPort)
		if _, err = local.Write(line); err != nil {
			f.log.Debugf("Failed to write peer line: %v", err)
			local.Close()
			stream.Close()
			return
		}
	}
	f.log.Debugf("Bridging inbound stream to %s", f.addr)
	Pipe(local, stream, f.log)
}
