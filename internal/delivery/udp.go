// udp.go - the sidecar datagram channel.
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

package delivery

import (
	"net"

	"gopkg.in/op/go-logging.v1"

	"github.com/anonbridge/catwalk/core/log"
	"github.com/anonbridge/catwalk/core/worker"
	"github.com/anonbridge/catwalk/destination"
	"github.com/anonbridge/catwalk/internal/instrument"
	"github.com/anonbridge/catwalk/internal/registry"
	"github.com/anonbridge/catwalk/wire"
)

// Resolver resolves session nicknames for the ingress path.  The
// registry implements it.
type Resolver interface {
	Lookup(nickname string) (*registry.Record, error)
}

// UDPServer is the sidecar datagram channel: a single UDP socket that
// carries forwarded deliveries out and client-submitted sends in.
// Ingress datagrams have no reply path; anything malformed is counted,
// logged, and dropped.
type UDPServer struct {
	worker.Worker

	log      *logging.Logger
	pc       *net.UDPConn
	resolver Resolver
}

// NewUDPServer binds the sidecar socket and starts the ingress worker.
func NewUDPServer(bind string, resolver Resolver, logBackend *log.Backend) (*UDPServer, error) {
	addr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return nil, err
	}
	pc, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	s := &UDPServer{
		log:      logBackend.GetLogger("delivery/udp"),
		pc:       pc,
		resolver: resolver,
	}
	s.log.Noticef("Datagram channel on: %v", pc.LocalAddr())
	s.Go(s.ingressWorker)
	return s, nil
}

// PacketConn exposes the socket for forward targets to send from.
func (s *UDPServer) PacketConn() net.PacketConn {
	return s.pc
}

// Addr returns the bound address.
func (s *UDPServer) Addr() net.Addr {
	return s.pc.LocalAddr()
}

// Halt closes the socket and stops the ingress worker.
func (s *UDPServer) Halt() {
	s.pc.Close()
	s.Worker.Halt()
}

func (s *UDPServer) ingressWorker() {
	buf := make([]byte, 65536)
	for {
		n, from, err := s.pc.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.HaltCh():
			default:
				s.log.Errorf("Read failure on datagram channel: %v", err)
			}
			return
		}
		if err = s.onIngress(buf[:n]); err != nil {
			s.log.Debugf("Dropped ingress datagram from %v: %v", from, err)
			instrument.MessageDropped("bad_ingress")
		}
	}
}

// onIngress handles one client-submitted datagram.  The payload slice
// aliases the read buffer; sends are synchronous, so that is safe.
func (s *UDPServer) onIngress(b []byte) error {
	in, payload, err := wire.ParseIngress(b)
	if err != nil {
		return err
	}

	rec, err := s.resolver.Lookup(in.Nickname)
	if err != nil {
		return err
	}

	proto, err := wire.ValidateSend(rec.Style, len(payload), in.Proto, in.HasProto)
	if err != nil {
		return err
	}
	dest, err := destination.Parse(in.Destination)
	if err != nil {
		return err
	}

	if err = rec.Session.SendDatagram(dest, payload, proto, in.FromPort, in.ToPort); err != nil {
		return err
	}
	instrument.MessageSent("sidecar")
	return nil
}
