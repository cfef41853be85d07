// streams_test.go - stream adapter tests.
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
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonbridge/catwalk/core/log"
	"github.com/anonbridge/catwalk/destination"
	"github.com/anonbridge/catwalk/internal/registry"
	"github.com/anonbridge/catwalk/router"
	"github.com/anonbridge/catwalk/wire"
)

func testLogBackend(t *testing.T) *log.Backend {
	b, err := log.New("", "DEBUG", false)
	require.NoError(t, err, "log.New()")
	return b
}

func TestPipe(t *testing.T) {
	require := require.New(t)

	app, client := net.Pipe()
	peer, stream := net.Pipe()
	logger := testLogBackend(t).GetLogger("pipe")

	doneCh := make(chan struct{})
	go func() {
		Pipe(client, stream, logger)
		close(doneCh)
	}()

	// Client to stream direction.
	go app.Write([]byte("hello overlay"))
	buf := make([]byte, 13)
	_, err := io.ReadFull(peer, buf)
	require.NoError(err, "read peer side")
	require.Equal("hello overlay", string(buf))

	// Stream to client direction.
	go peer.Write([]byte("hello app"))
	buf = make([]byte, 9)
	_, err = io.ReadFull(app, buf)
	require.NoError(err, "read app side")
	require.Equal("hello app", string(buf))

	// Either side ending tears everything down.
	app.Close()
	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not stop after close")
	}
	_, err = peer.Read(buf)
	require.Error(err, "peer side still open after teardown")
}

func newStreamRecord(t *testing.T, n *router.Network, nick string, v wire.Version) *registry.Record {
	keys, err := n.GenerateKeys()
	require.NoError(t, err, "GenerateKeys()")
	s, err := n.Open(&router.SessionConfig{Keys: keys})
	require.NoError(t, err, "Open()")
	return &registry.Record{
		Nickname: nick,
		Style:    wire.StyleStream,
		Keys:     keys,
		Version:  v,
		Format:   wire.FormatFor(v),
		Session:  s,
	}
}

func openPeer(t *testing.T, n *router.Network) (router.Session, destination.Destination) {
	keys, err := n.GenerateKeys()
	require.NoError(t, err, "GenerateKeys()")
	s, err := n.Open(&router.SessionConfig{Keys: keys})
	require.NoError(t, err, "Open()")
	return s, keys.Destination()
}

func TestForwarder(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	n := router.NewNetwork()
	defer n.Close()
	rec := newStreamRecord(t, n, "httpd", wire.V1_1)
	defer rec.Close()
	peer, peerDest := openPeer(t, n)
	defer peer.Close()

	// The local service inbound streams get bridged to.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err, "Listen()")
	defer l.Close()
	type accepted struct {
		line    string
		payload string
	}
	acceptCh := make(chan accepted, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		br := bufio.NewReader(c)
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		payload, err := br.ReadString('\n')
		if err != nil {
			return
		}
		c.Write([]byte("220 ready\n"))
		acceptCh <- accepted{line: line, payload: payload}
	}()

	require.NoError(rec.ClaimForward(), "ClaimForward()")
	f := NewForwarder(rec, l.Addr().String(), false, 5*time.Second, testLogBackend(t))

	conn, err := peer.DialStream(rec.Keys.Destination(), 2525, 25, 5*time.Second)
	require.NoError(err, "DialStream()")
	defer conn.Close()
	_, err = conn.Write([]byte("EHLO example\n"))
	require.NoError(err, "stream write")

	select {
	case got := <-acceptCh:
		wantLine := fmt.Sprintf("%s FROM_PORT=2525 TO_PORT=25\n", peerDest.String())
		assert.Equal(wantLine, got.line)
		assert.Equal("EHLO example\n", got.payload)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for bridged stream")
	}

	// Reply flows back through the same bridge.
	br := bufio.NewReader(conn)
	reply, err := br.ReadString('\n')
	require.NoError(err, "read reply")
	assert.Equal("220 ready\n", reply)

	// Halting the forwarder releases the claim.
	f.Halt()
	require.NoError(rec.ClaimForward(), "ClaimForward() after Halt()")
}

func TestForwarderSilent(t *testing.T) {
	require := require.New(t)

	n := router.NewNetwork()
	defer n.Close()
	rec := newStreamRecord(t, n, "quiet", wire.V1_0)
	defer rec.Close()
	peer, _ := openPeer(t, n)
	defer peer.Close()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err, "Listen()")
	defer l.Close()
	firstCh := make(chan string, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 4)
		if _, err := io.ReadFull(c, buf); err != nil {
			return
		}
		firstCh <- string(buf)
	}()

	require.NoError(rec.ClaimForward(), "ClaimForward()")
	f := NewForwarder(rec, l.Addr().String(), true, 5*time.Second, testLogBackend(t))
	defer f.Halt()

	conn, err := peer.DialStream(rec.Keys.Destination(), 0, 0, 5*time.Second)
	require.NoError(err, "DialStream()")
	defer conn.Close()
	_, err = conn.Write([]byte("PING"))
	require.NoError(err, "stream write")

	select {
	case first := <-firstCh:
		// No peer line; payload arrives first.
		require.Equal("PING", first)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for bridged stream")
	}
}
