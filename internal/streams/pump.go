// pump.go - bidirectional byte pumps.
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

// Package streams adapts client byte streams onto overlay virtual
// streams.  After attachment a connection is nothing but a pipe; no
// framing, no inspection.
package streams

import (
	"io"
	"net"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/anonbridge/catwalk/internal/instrument"
)

// Pipe pumps bytes both ways between the client side and the overlay
// stream until either side ends, then tears both down.  It returns once
// both directions have drained.
func Pipe(client, stream net.Conn, log *logging.Logger) {
	instrument.StreamOpened()
	defer instrument.StreamClosed()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		n, err := io.Copy(stream, client)
		if err != nil {
			log.Debugf("Pipe out ended: %v", err)
		}
		instrument.StreamBytes("out", n)
		// Either side ending tears down both, promptly.
		stream.Close()
		client.Close()
	}()
	go func() {
		defer wg.Done()
		n, err := io.Copy(client, stream)
		if err != nil {
			log.Debugf("Pipe in ended: %v", err)
		}
		instrument.StreamBytes("in", n)
		client.Close()
		stream.Close()
	}()

	wg.Wait()
}
