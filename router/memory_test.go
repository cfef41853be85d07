// memory_test.go - loopback backend tests.
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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonbridge/catwalk/destination"
)

func openMemSession(t *testing.T, n *Network, h Handler) (Session, *destination.PrivateKey) {
	keys, err := n.GenerateKeys()
	require.NoError(t, err, "GenerateKeys()")
	s, err := n.Open(&SessionConfig{Keys: keys, Handler: h})
	require.NoError(t, err, "Open()")
	return s, keys
}

func TestMemoryDatagram(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	n := NewNetwork()
	defer n.Close()

	recvCh := make(chan *InboundMessage, 1)
	alice, aliceKeys := openMemSession(t, n, nil)
	bob, _ := openMemSession(t, n, func(msg *InboundMessage) { recvCh <- msg })

	payload := []byte("up and over")
	err := alice.SendDatagram(bob.LocalDestination(), payload, 17, 25, 7655)
	require.NoError(err, "SendDatagram()")

	// Mutating the caller's buffer must not affect the delivery.
	payload[0] = 'X'

	select {
	case msg := <-recvCh:
		assert.True(msg.Sender.Equal(aliceKeys.Destination()))
		assert.Equal([]byte("up and over"), msg.Payload)
		assert.Equal(uint8(17), msg.Proto)
		assert.Equal(uint16(25), msg.FromPort)
		assert.Equal(uint16(7655), msg.ToPort)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	// No path to an unknown destination.
	ghost, err := n.GenerateKeys()
	require.NoError(err)
	err = alice.SendDatagram(ghost.Destination(), []byte("x"), 18, 0, 0)
	assert.ErrorIs(err, ErrNoPeer)

	// Sessions without a handler silently eat datagrams.
	err = bob.SendDatagram(alice.LocalDestination(), []byte("x"), 17, 0, 0)
	assert.NoError(err)
}

func TestMemoryDuplicateDestination(t *testing.T) {
	require := require.New(t)

	n := NewNetwork()
	defer n.Close()

	keys, err := n.GenerateKeys()
	require.NoError(err)

	s, err := n.Open(&SessionConfig{Keys: keys})
	require.NoError(err)

	_, err = n.Open(&SessionConfig{Keys: keys})
	require.ErrorIs(err, ErrDuplicateDest)

	// Freed after close.
	require.NoError(s.Close())
	s, err = n.Open(&SessionConfig{Keys: keys})
	require.NoError(err)
	s.Close()
}

func TestMemoryStreams(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	n := NewNetwork()
	defer n.Close()

	alice, aliceKeys := openMemSession(t, n, nil)
	bob, _ := openMemSession(t, n, nil)

	type acceptResult struct {
		info *StreamInfo
		got  []byte
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, info, err := bob.AcceptStream(nil)
		if err != nil {
			acceptCh <- acceptResult{err: err}
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		if _, err = conn.Read(buf); err != nil {
			acceptCh <- acceptResult{err: err}
			return
		}
		conn.Write([]byte("reply"))
		acceptCh <- acceptResult{info: info, got: buf}
	}()

	conn, err := alice.DialStream(bob.LocalDestination(), 4444, 5555, time.Second)
	require.NoError(err, "DialStream()")
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(err)
	buf := make([]byte, 5)
	_, err = conn.Read(buf)
	require.NoError(err)
	assert.Equal([]byte("reply"), buf)

	r := <-acceptCh
	require.NoError(r.err, "AcceptStream()")
	assert.Equal([]byte("hello"), r.got)
	assert.True(r.info.Peer.Equal(aliceKeys.Destination()))
	assert.Equal(uint16(4444), r.info.FromPort)
	assert.Equal(uint16(5555), r.info.ToPort)

	// Dial with nobody accepting times out once the backlog is full.
	for i := 0; i < memAcceptBacklog; i++ {
		c, err := alice.DialStream(bob.LocalDestination(), 0, 0, time.Second)
		require.NoError(err)
		defer c.Close()
	}
	_, err = alice.DialStream(bob.LocalDestination(), 0, 0, 50*time.Millisecond)
	assert.ErrorIs(err, ErrTimeout)

	// Halted accept wait.
	halt := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		_, _, err := alice.AcceptStream(halt)
		errCh <- err
	}()
	close(halt)
	assert.ErrorIs(<-errCh, ErrClosed)
}

func TestMemoryClose(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	n := NewNetwork()
	alice, _ := openMemSession(t, n, nil)
	bob, _ := openMemSession(t, n, nil)

	require.NoError(bob.Close())
	require.NoError(bob.Close(), "Close() must be idempotent")

	err := alice.SendDatagram(bob.LocalDestination(), []byte("x"), 17, 0, 0)
	assert.ErrorIs(err, ErrNoPeer)

	require.NoError(n.Close())
	err = alice.SendDatagram(alice.LocalDestination(), []byte("x"), 17, 0, 0)
	assert.ErrorIs(err, ErrClosed)

	_, err = n.Open(&SessionConfig{})
	assert.ErrorIs(err, ErrClosed)
}
