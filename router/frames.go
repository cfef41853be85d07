// frames.go - wire framing for the socket backend.
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
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/fxamacker/cbor/v2"
)

// The router daemon speaks length-prefixed CBOR: a big-endian uint16
// frame length followed by one CBOR-encoded frame.  Raw stream payload
// only ever flows on connections that have been converted to pipes by a
// successful dial or accept handshake.
const (
	opOpen uint8 = iota + 1
	opOpenAck
	opGenKeys
	opKeysAck
	opSend
	opMessage
	opDialStream
	opAcceptStream
	opStreamAck
	opClose
)

// Ack codes carried on *Ack frames.  codeOK with a non-empty Err string
// still reports a failure, just an untyped one.
const (
	codeOK uint8 = iota
	codeDuplicateDest
	codeNoPeer
	codeTimeout
)

type frame struct {
	Op       uint8             `cbor:"op"`
	SID      uint64            `cbor:"sid,omitempty"`
	Code     uint8             `cbor:"code,omitempty"`
	Err      string            `cbor:"err,omitempty"`
	Keys     []byte            `cbor:"keys,omitempty"`
	Dest     []byte            `cbor:"dest,omitempty"`
	Payload  []byte            `cbor:"payload,omitempty"`
	Proto    uint8             `cbor:"proto,omitempty"`
	FromPort uint16            `cbor:"fport,omitempty"`
	ToPort   uint16            `cbor:"tport,omitempty"`
	Options  map[string]string `cbor:"options,omitempty"`
}

func readFrame(conn net.Conn) (*frame, error) {
	rawLen := make([]byte, 2)
	if _, err := io.ReadFull(conn, rawLen); err != nil {
		return nil, err
	}
	raw := make([]byte, binary.BigEndian.Uint16(rawLen))
	if _, err := io.ReadFull(conn, raw); err != nil {
		return nil, err
	}
	f := new(frame)
	if err := cbor.Unmarshal(raw, f); err != nil {
		return nil, err
	}
	return f, nil
}

func writeFrame(conn net.Conn, f *frame) error {
	serialized, err := cbor.Marshal(f)
	if err != nil {
		return err
	}
	if len(serialized) > 0xffff {
		return fmt.Errorf("router: frame exceeds length prefix: %d", len(serialized))
	}
	out := make([]byte, 2, 2+len(serialized))
	binary.BigEndian.PutUint16(out, uint16(len(serialized)))
	out = append(out, serialized...)
	_, err = conn.Write(out)
	return err
}
