// format.go - inbound message framing and the sidecar datagram grammar.
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

package wire

import (
	"bytes"
	"fmt"
	"strconv"
)

const (
	// ProtoStream, ProtoDatagram and ProtoRaw mirror the IP protocol
	// number convention.  ProtoStream is reserved for the stream engine
	// and is rejected on RAW sends.
	ProtoStream   uint8 = 6
	ProtoDatagram uint8 = 17
	ProtoRaw      uint8 = 18

	// MaxDatagramPayload caps a repliable datagram payload.
	MaxDatagramPayload = 31744

	// MaxRawPayload caps a raw datagram payload.
	MaxRawPayload = 32768
)

// HeaderFormat describes how inbound messages are framed for one
// session.  It is derived from the negotiated version exactly once, at
// session creation, and never changes afterwards.
type HeaderFormat struct {
	// Ports indicates the FROM_PORT/TO_PORT fields are rendered.
	Ports bool
}

// FormatFor returns the framing for sessions negotiated at v.
func FormatFor(v Version) HeaderFormat {
	return HeaderFormat{Ports: v.HasPorts()}
}

// AppendSenderLine appends the peer identification line: the sender
// destination, the port fields when the format carries them, and the
// line terminator.  Datagram deliveries prefix their payload with it on
// both inline and forwarded targets, and stream accepts write it before
// piping.
func (f HeaderFormat) AppendSenderLine(b []byte, sender string, fromPort, toPort uint16) []byte {
	b = append(b, sender...)
	if f.Ports {
		b = append(b, " FROM_PORT="...)
		b = strconv.AppendUint(b, uint64(fromPort), 10)
		b = append(b, " TO_PORT="...)
		b = strconv.AppendUint(b, uint64(toPort), 10)
	}
	return append(b, '\n')
}

// AppendRawLine appends the optional raw-session header line.  Only
// sessions created with HEADER=true receive it, and creation rejects
// that option below the port threshold, so the format always has ports
// here.
func (f HeaderFormat) AppendRawLine(b []byte, proto uint8, fromPort, toPort uint16) []byte {
	b = append(b, "PROTOCOL="...)
	b = strconv.AppendUint(b, uint64(proto), 10)
	b = append(b, " FROM_PORT="...)
	b = strconv.AppendUint(b, uint64(fromPort), 10)
	b = append(b, " TO_PORT="...)
	b = strconv.AppendUint(b, uint64(toPort), 10)
	return append(b, '\n')
}

// Ingress is the parsed header of an outbound datagram submitted over
// the sidecar UDP channel instead of a control connection.
type Ingress struct {
	Version     Version
	Nickname    string
	Destination string
	FromPort    uint16
	ToPort      uint16
	Proto       uint8
	HasProto    bool
}

// ParseIngress splits a sidecar datagram into its header and payload.
// The header is a single line "$ver $nickname $destination [opts]"; the
// port and protocol options require a version at or above the port
// threshold.
func ParseIngress(b []byte) (*Ingress, []byte, error) {
	nl := bytes.IndexByte(b, '\n')
	if nl < 0 || nl > MaxLineLength {
		return nil, nil, fmt.Errorf("wire: ingress datagram missing header line")
	}
	line, payload := string(b[:nl]), b[nl+1:]

	verTok, rest := NextToken(line)
	ver, err := ParseVersion(verTok)
	if err != nil {
		return nil, nil, err
	}
	if !isSupported(ver) {
		return nil, nil, fmt.Errorf("wire: ingress version %v not supported", ver)
	}

	in := &Ingress{Version: ver}
	in.Nickname, rest = NextToken(rest)
	if !ValidNickname(in.Nickname) {
		return nil, nil, fmt.Errorf("wire: ingress nickname invalid")
	}
	in.Destination, rest = NextToken(rest)
	if in.Destination == "" {
		return nil, nil, fmt.Errorf("wire: ingress destination missing")
	}

	opts, err := ParseOptions(rest)
	if err != nil {
		return nil, nil, err
	}
	if len(opts) > 0 && !ver.HasPorts() {
		return nil, nil, fmt.Errorf("wire: ingress options require version %v", PortThreshold)
	}
	if in.FromPort, _, err = opts.Port("FROM_PORT"); err != nil {
		return nil, nil, err
	}
	if in.ToPort, _, err = opts.Port("TO_PORT"); err != nil {
		return nil, nil, err
	}
	if v, ok := opts["PROTOCOL"]; ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: ingress protocol invalid: '%v'", v)
		}
		in.Proto, in.HasProto = uint8(n), true
	}

	return in, payload, nil
}

func isSupported(v Version) bool {
	for _, s := range Supported {
		if s == v {
			return true
		}
	}
	return false
}

// ValidateSend checks an outbound submission against its session style
// and returns the effective protocol number.  The same rules apply on
// the control path and the sidecar channel.
func ValidateSend(style Style, payloadLen int, proto uint8, hasProto bool) (uint8, error) {
	switch style {
	case StyleDatagram:
		if hasProto {
			return 0, fmt.Errorf("wire: PROTOCOL is only valid on raw sessions")
		}
		if payloadLen > MaxDatagramPayload {
			return 0, fmt.Errorf("wire: datagram payload %d exceeds %d", payloadLen, MaxDatagramPayload)
		}
		return ProtoDatagram, nil
	case StyleRaw:
		p := ProtoRaw
		if hasProto {
			if proto == ProtoStream {
				return 0, fmt.Errorf("wire: protocol %d is reserved for streams", ProtoStream)
			}
			p = proto
		}
		if payloadLen > MaxRawPayload {
			return 0, fmt.Errorf("wire: raw payload %d exceeds %d", payloadLen, MaxRawPayload)
		}
		return p, nil
	default:
		return 0, fmt.Errorf("wire: %v sessions cannot send datagrams", style)
	}
}
