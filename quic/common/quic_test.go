package common

import (
	"context"
	"crypto/tls"
	"io"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/stretchr/testify/require"
)

func TestNewQuicConnNilConn(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("NewQuicConn should panic with nil connection")
		}
	}()
	NewQuicConn(nil, &quic.Stream{})
}

func TestNewQuicConnNilStream(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("NewQuicConn should panic with nil stream")
		}
	}()
	NewQuicConn(&quic.Conn{}, nil)
}

func TestQuicLoopback(t *testing.T) {
	require := require.New(t)

	ql, err := quic.ListenAddr("127.0.0.1:0", GenerateTLSConfig(), nil)
	require.NoError(err, "ListenAddr()")
	l := &QuicListener{Listener: ql}
	defer l.Close()

	echoCh := make(chan error, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			echoCh <- err
			return
		}
		defer c.Close()
		buf := make([]byte, 5)
		if _, err := io.ReadFull(c, buf); err != nil {
			echoCh <- err
			return
		}
		_, err = c.Write(buf)
		echoCh <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := quic.DialAddr(ctx, l.Addr().String(), &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{http3.NextProtoH3},
	}, nil)
	require.NoError(err, "DialAddr()")
	stream, err := conn.OpenStreamSync(ctx)
	require.NoError(err, "OpenStreamSync()")
	qc := NewQuicConn(conn, stream)
	defer qc.Close()

	// The stream only materializes on the listener side once data
	// flows, so write before expecting the accept to complete.
	_, err = qc.Write([]byte("hello"))
	require.NoError(err, "Write()")

	buf := make([]byte, 5)
	qc.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err = io.ReadFull(qc, buf)
	require.NoError(err, "ReadFull()")
	require.Equal("hello", string(buf))
	require.NoError(<-echoCh, "echo side")
}
