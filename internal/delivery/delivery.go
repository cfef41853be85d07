// delivery.go - inbound message delivery targets.
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

// Package delivery moves inbound overlay messages to their session's
// client, either written back inline on the owning control connection
// or forwarded as UDP datagrams to the host:port registered at session
// creation.  Delivery is lossy on purpose: a client that cannot take a
// message loses that message, and nothing upstream stalls or learns.
package delivery

import (
	"fmt"
	"net"
	"strconv"

	"gopkg.in/op/go-logging.v1"

	"github.com/anonbridge/catwalk/internal/instrument"
	"github.com/anonbridge/catwalk/router"
	"github.com/anonbridge/catwalk/wire"
)

// ConnWriter is the slice of a control connection the inline target
// uses: a serialized, deadline-bounded raw write.
type ConnWriter interface {
	WriteRaw(b []byte) error
}

// Target is one delivery endpoint for fully framed inbound messages.
type Target interface {
	// Deliver hands the framed message to the client.  Failures are
	// counted and dropped, never propagated.
	Deliver(b []byte)
}

// InlineTarget writes messages back on the session's own control
// connection, interleaved with command replies.
type InlineTarget struct {
	w   ConnWriter
	log *logging.Logger
}

// NewInlineTarget builds the write-back target for a control
// connection.
func NewInlineTarget(w ConnWriter, log *logging.Logger) *InlineTarget {
	return &InlineTarget{w: w, log: log}
}

// Deliver implements Target.
func (t *InlineTarget) Deliver(b []byte) {
	if err := t.w.WriteRaw(b); err != nil {
		t.log.Debugf("Dropped inline delivery: %v", err)
		instrument.MessageDropped("conn_write")
		return
	}
	instrument.MessageDelivered("inline")
}

// ForwardTarget sends messages as single UDP datagrams to a fixed
// address.  The address is resolved exactly once, when the session is
// created; later resolution changes do not move the target.
type ForwardTarget struct {
	pc   net.PacketConn
	addr *net.UDPAddr
	log  *logging.Logger
}

// NewForwardTarget resolves host:port and builds the forwarding target.
// A host or port that does not resolve fails session creation; no
// state survives that failure.
func NewForwardTarget(pc net.PacketConn, host string, port uint16, log *logging.Logger) (*ForwardTarget, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, fmt.Errorf("delivery: unusable forward target %v:%d: %v", host, port, err)
	}
	return &ForwardTarget{pc: pc, addr: addr, log: log}, nil
}

// Addr returns the resolved forwarding address.
func (t *ForwardTarget) Addr() *net.UDPAddr {
	return t.addr
}

// Deliver implements Target.  One message, one datagram.
func (t *ForwardTarget) Deliver(b []byte) {
	if _, err := t.pc.WriteTo(b, t.addr); err != nil {
		t.log.Debugf("Dropped forwarded delivery to %v: %v", t.addr, err)
		instrument.MessageDropped("udp_write")
		return
	}
	instrument.MessageDelivered("forward")
}

// Dispatcher frames inbound messages for one session and hands them to
// the session's target.  The framing was fixed when the session was
// created; the dispatcher never consults connection state.
type Dispatcher struct {
	style     wire.Style
	format    wire.HeaderFormat
	rawHeader bool
	target    Target
}

// NewDispatcher builds the per-session dispatcher.  rawHeader marks raw
// sessions created with HEADER=true.
func NewDispatcher(style wire.Style, format wire.HeaderFormat, rawHeader bool, target Target) *Dispatcher {
	return &Dispatcher{
		style:     style,
		format:    format,
		rawHeader: rawHeader,
		target:    target,
	}
}

// Deliver frames one inbound message and delivers it.  The framed bytes
// are identical whether the target is inline or forwarded.
func (d *Dispatcher) Deliver(msg *router.InboundMessage) {
	var b []byte
	switch d.style {
	case wire.StyleDatagram:
		sender := msg.Sender.String()
		b = make([]byte, 0, len(sender)+32+len(msg.Payload))
		b = d.format.AppendSenderLine(b, sender, msg.FromPort, msg.ToPort)
	case wire.StyleRaw:
		if d.rawHeader {
			b = make([]byte, 0, 48+len(msg.Payload))
			b = d.format.AppendRawLine(b, msg.Proto, msg.FromPort, msg.ToPort)
		}
	default:
		// Stream sessions have no datagram path.
		instrument.MessageDropped("bad_style")
		return
	}
	b = append(b, msg.Payload...)
	d.target.Deliver(b)
}
