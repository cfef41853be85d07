// conn.go - catwalk control connection handler.
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

package incoming

import (
	"bufio"
	"container/list"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/anonbridge/catwalk/destination"
	"github.com/anonbridge/catwalk/internal/delivery"
	"github.com/anonbridge/catwalk/internal/instrument"
	"github.com/anonbridge/catwalk/internal/registry"
	"github.com/anonbridge/catwalk/internal/streams"
	"github.com/anonbridge/catwalk/naming"
	"github.com/anonbridge/catwalk/router"
	"github.com/anonbridge/catwalk/wire"
)

type connState int

const (
	// stateAwaitingHello accepts nothing but version negotiation.
	stateAwaitingHello connState = iota

	// stateNegotiated accepts session creation, stream attachment, and
	// the utility commands.
	stateNegotiated

	// stateReady additionally accepts the style commands of the session
	// this connection created.
	stateReady
)

// errPiped ends the command loop of a connection that has become a raw
// stream pipe; the pumps have already drained by the time it is seen.
var errPiped = errors.New("incoming: connection converted to stream pipe")

// Conn is one client control connection.
type Conn struct {
	l   *listener
	log *logging.Logger

	c  net.Conn
	br *bufio.Reader
	e  *list.Element

	id uint64

	state   connState
	version wire.Version

	// remoteIP is captured once at accept time; it is the HOST default
	// for forwarded delivery targets for the connection's lifetime.
	remoteIP string

	rec *registry.Record
	fwd *streams.Forwarder

	writeLock    sync.Mutex
	writeTimeout time.Duration
}

func newConn(l *listener, conn net.Conn) *Conn {
	c := &Conn{
		l:            l,
		c:            conn,
		br:           bufio.NewReaderSize(conn, wire.MaxLineLength),
		id:           atomic.AddUint64(&l.connID, 1),
		state:        stateAwaitingHello,
		writeTimeout: time.Duration(l.glue.Config().Debug.WriteTimeout) * time.Millisecond,
	}
	c.log = l.glue.LogBackend().GetLogger(fmt.Sprintf("conn:%d", c.id))
	if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		c.remoteIP = host
	}
	return c
}

// WriteRaw writes b to the connection under the write lock, bounded by
// the configured write deadline.  Inline deliveries and command replies
// serialize through here, so a delivery can never split a reply line.
func (c *Conn) WriteRaw(b []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	c.c.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	defer c.c.SetWriteDeadline(time.Time{})
	_, err := c.c.Write(b)
	return err
}

func (c *Conn) writeReply(r *wire.Reply) error {
	line := r.String()
	c.log.Debugf("S->C: '%v'", line)
	return c.WriteRaw([]byte(line + "\n"))
}

func (c *Conn) reply(topic, verb string, code wire.ResultCode, msg string) error {
	r := wire.NewReply(topic, verb).WithResult(code)
	if msg != "" {
		r.With("MESSAGE", msg)
	}
	return c.writeReply(r)
}

func (c *Conn) worker() {
	closedCh := make(chan struct{})
	defer func() {
		c.log.Debugf("Closing")
		c.c.Close()
		c.teardown()
		c.l.onClosedConn(c)
	}()

	go func() {
		defer close(closedCh)
		c.commandLoop()
	}()

	// Wait for listener teardown, or for the command processing
	// goroutine to return for whatever reason.
	select {
	case <-c.l.closeAllCh:
		c.c.Close()
		<-closedCh
	case <-closedCh:
	}
}

func (c *Conn) teardown() {
	if c.fwd != nil {
		c.fwd.Halt()
	}
	if c.rec != nil {
		c.l.glue.Registry().Remove(c.rec.Nickname)
		c.rec.Close()
		instrument.SessionClosed()
		c.log.Debugf("Removed session '%v'", c.rec.Nickname)
	}
}

func (c *Conn) commandLoop() {
	// The handshake deadline applies until version negotiation is done.
	hsTimeout := time.Duration(c.l.glue.Config().Debug.HandshakeTimeout) * time.Millisecond
	c.c.SetReadDeadline(time.Now().Add(hsTimeout))

	for {
		line, err := c.readLine()
		if err != nil {
			c.log.Debugf("Failed to receive command: %v", err)
			return
		}
		if line == "" {
			continue
		}
		c.log.Debugf("C->S: '%v'", line)
		if err = c.onCommand(line); err != nil {
			c.log.Debugf("Closing connection: %v", err)
			return
		}
	}
}

func (c *Conn) readLine() (string, error) {
	b, err := c.br.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return "", fmt.Errorf("line exceeds %d bytes", wire.MaxLineLength)
		}
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// onCommand dispatches one command line.  Handlers send their own
// replies; a non-nil return closes the connection.
func (c *Conn) onCommand(line string) error {
	topic, rest := wire.NextToken(line)
	topic = strings.ToUpper(topic)

	if c.state == stateAwaitingHello {
		if topic != "HELLO" {
			c.reply(topic, "REPLY", wire.ResultSyntaxError, "expected HELLO")
			return fmt.Errorf("command before handshake")
		}
		return c.onHello(rest)
	}

	switch topic {
	case "HELLO":
		c.reply("HELLO", "REPLY", wire.ResultSyntaxError, "already negotiated")
		return fmt.Errorf("redundant HELLO")
	case "SESSION":
		return c.onSession(rest)
	case "DATAGRAM":
		return c.onSend(wire.StyleDatagram, rest)
	case "RAW":
		return c.onSend(wire.StyleRaw, rest)
	case "STREAM":
		return c.onStream(rest)
	case "NAMING":
		return c.onNaming(rest)
	case "DEST":
		return c.onDest(rest)
	case "PING":
		return c.onPing(rest)
	case "QUIT":
		c.log.Debugf("Peer requested disconnection")
		return fmt.Errorf("peer requested disconnection")
	default:
		return c.reply(topic, "REPLY", wire.ResultSyntaxError, "unknown command")
	}
}

func (c *Conn) onHello(rest string) error {
	// Handshake failures are all connection-fatal.
	verb, rest := wire.NextToken(rest)
	if strings.ToUpper(verb) != "VERSION" {
		c.reply("HELLO", "REPLY", wire.ResultSyntaxError, "expected HELLO VERSION")
		return fmt.Errorf("malformed HELLO")
	}
	opts, err := wire.ParseOptions(rest)
	if err != nil {
		c.reply("HELLO", "REPLY", wire.ResultSyntaxError, err.Error())
		return fmt.Errorf("malformed HELLO: %v", err)
	}

	min, max := wire.Version{}, wire.Version{Major: 255, Minor: 255}
	if opts.Has("MIN") {
		if min, err = wire.ParseVersion(opts.Get("MIN")); err != nil {
			c.reply("HELLO", "REPLY", wire.ResultSyntaxError, err.Error())
			return fmt.Errorf("malformed HELLO: %v", err)
		}
	}
	if opts.Has("MAX") {
		if max, err = wire.ParseVersion(opts.Get("MAX")); err != nil {
			c.reply("HELLO", "REPLY", wire.ResultSyntaxError, err.Error())
			return fmt.Errorf("malformed HELLO: %v", err)
		}
	}

	v, err := wire.Negotiate(min, max)
	if err != nil {
		c.writeReply(wire.NewReply("HELLO", "REPLY").WithResult(wire.ResultNoVersion))
		return err
	}

	c.version = v
	c.state = stateNegotiated
	c.c.SetReadDeadline(time.Time{})
	c.log.Debugf("Negotiated protocol %v", v)
	return c.writeReply(wire.NewReply("HELLO", "REPLY").
		WithResult(wire.ResultOK).
		With("VERSION", v.String()))
}

func (c *Conn) onSession(rest string) error {
	verb, rest := wire.NextToken(rest)
	if strings.ToUpper(verb) != "CREATE" {
		return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, "unknown verb")
	}
	if c.rec != nil {
		return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, "session already created")
	}
	if c.fwd != nil {
		return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, "connection is a forwarding anchor")
	}
	opts, err := wire.ParseOptions(rest)
	if err != nil {
		return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, err.Error())
	}

	style, err := wire.ParseStyle(opts.Get("STYLE"))
	if err != nil {
		return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, err.Error())
	}
	nickname := opts.Get("ID")
	if !wire.ValidNickname(nickname) {
		return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, "invalid nickname")
	}
	destSpec := opts.Get("DESTINATION")
	if destSpec == "" {
		return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, "missing DESTINATION")
	}
	rawHeader, err := opts.Bool("HEADER", false)
	if err != nil {
		return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, err.Error())
	}
	if rawHeader {
		if style != wire.StyleRaw {
			return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, "HEADER applies to raw sessions only")
		}
		if !c.version.HasPorts() {
			return c.reply("SESSION", "STATUS", wire.ResultSyntaxError,
				fmt.Sprintf("HEADER requires protocol %v", wire.PortThreshold))
		}
	}
	if opts.Has("PROTOCOL") {
		if style != wire.StyleRaw {
			return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, "PROTOCOL applies to raw sessions only")
		}
		u, err := strconv.ParseUint(opts.Get("PROTOCOL"), 10, 8)
		if err != nil {
			return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, "invalid PROTOCOL")
		}
		if _, err = wire.ValidateSend(style, 0, uint8(u), true); err != nil {
			return c.reply("SESSION", "STATUS", wire.ResultSyntaxError, err.Error())
		}
	}

	// The delivery target is fixed here.  A target that cannot be
	// resolved fails creation outright; it must never surface later as
	// a delivery failure.
	format := wire.FormatFor(c.version)
	var handler router.Handler
	if style != wire.StyleStream {
		var target delivery.Target
		port, hasPort, err := opts.Port("PORT")
		if err != nil {
			return c.reply("SESSION", "STATUS", wire.ResultInvalidTarget, err.Error())
		}
		if hasPort {
			host := opts.Get("HOST")
			if host == "" {
				host = c.remoteIP
			}
			if host == "" {
				return c.reply("SESSION", "STATUS", wire.ResultInvalidTarget, "no usable forwarding host")
			}
			ft, err := delivery.NewForwardTarget(c.l.glue.UDP().PacketConn(), host, port, c.log)
			if err != nil {
				return c.reply("SESSION", "STATUS", wire.ResultInvalidTarget, err.Error())
			}
			target = ft
		} else {
			target = delivery.NewInlineTarget(c, c.log)
		}
		handler = delivery.NewDispatcher(style, format, rawHeader, target).Deliver
	}

	var keys *destination.PrivateKey
	if destSpec == "TRANSIENT" {
		if keys, err = c.l.glue.Router().GenerateKeys(); err != nil {
			return c.reply("SESSION", "STATUS", wire.ResultRouterError, err.Error())
		}
	} else {
		if keys, err = destination.ParsePrivateKey(destSpec); err != nil {
			return c.reply("SESSION", "STATUS", wire.ResultInvalidKey, err.Error())
		}
	}

	sess, err := c.l.glue.Router().Open(&router.SessionConfig{
		Keys:    keys,
		Options: passthroughOptions(opts),
		Handler: handler,
	})
	if err != nil {
		if errors.Is(err, router.ErrDuplicateDest) {
			return c.reply("SESSION", "STATUS", wire.ResultDuplicatedDest, "")
		}
		return c.reply("SESSION", "STATUS", wire.ResultRouterError, err.Error())
	}

	rec := &registry.Record{
		Nickname: nickname,
		Style:    style,
		Keys:     keys,
		Options:  opts,
		Version:  c.version,
		Format:   format,
		Session:  sess,
	}
	if err = c.l.glue.Registry().Create(rec); err != nil {
		// Lost the nickname race; release the session we opened.
		sess.Close()
		return c.reply("SESSION", "STATUS", wire.ResultDuplicatedID, "")
	}

	c.rec = rec
	c.state = stateReady
	instrument.SessionCreated(string(style))
	c.log.Noticef("Created %v session '%v'", style, nickname)
	return c.writeReply(wire.NewReply("SESSION", "STATUS").
		WithResult(wire.ResultOK).
		With("DESTINATION", keys.String()))
}

// passthroughOptions strips the options the bridge itself consumes; the
// remainder is handed to the router untouched.
func passthroughOptions(opts wire.Options) map[string]string {
	out := make(map[string]string)
	for k, v := range opts {
		switch k {
		case "STYLE", "ID", "DESTINATION", "PORT", "HOST", "HEADER", "PROTOCOL", "SILENT":
		default:
			out[k] = v
		}
	}
	return out
}

func (c *Conn) onSend(style wire.Style, rest string) error {
	topic := string(style)
	verb, rest := wire.NextToken(rest)
	if strings.ToUpper(verb) != "SEND" {
		return c.reply(topic, "STATUS", wire.ResultSyntaxError, "unknown verb")
	}

	// SIZE determines how many payload bytes follow the line.  If it
	// cannot be trusted the framing is unrecoverable and the connection
	// must close.
	opts, err := wire.ParseOptions(rest)
	if err != nil {
		c.reply(topic, "STATUS", wire.ResultSyntaxError, err.Error())
		return fmt.Errorf("unrecoverable send framing: %v", err)
	}
	bound := wire.MaxRawPayload
	if style == wire.StyleDatagram {
		bound = wire.MaxDatagramPayload
	}
	size, err := strconv.ParseUint(opts.Get("SIZE"), 10, 31)
	if err != nil {
		c.reply(topic, "STATUS", wire.ResultSyntaxError, "missing or invalid SIZE")
		return fmt.Errorf("unrecoverable send framing: bad SIZE '%v'", opts.Get("SIZE"))
	}
	if int(size) > bound {
		c.reply(topic, "STATUS", wire.ResultSyntaxError,
			fmt.Sprintf("SIZE exceeds %d", bound))
		return fmt.Errorf("unrecoverable send framing: oversized payload %d", size)
	}
	payload := make([]byte, size)
	if _, err = io.ReadFull(c.br, payload); err != nil {
		return err
	}

	// The payload is consumed; everything after this point fails only
	// the command.
	if c.rec == nil {
		return c.reply(topic, "STATUS", wire.ResultSyntaxError, "no session")
	}
	if c.rec.Style != style {
		return c.reply(topic, "STATUS", wire.ResultSyntaxError,
			fmt.Sprintf("not a %v session", strings.ToLower(string(style))))
	}

	destSpec := opts.Get("DESTINATION")
	if destSpec == "" {
		return c.reply(topic, "STATUS", wire.ResultSyntaxError, "missing DESTINATION")
	}
	dest, code := c.resolveDestination(destSpec)
	if code != wire.ResultOK {
		return c.reply(topic, "STATUS", code, "")
	}

	fromPort, toPort, err := c.portPair(opts)
	if err != nil {
		return c.reply(topic, "STATUS", wire.ResultSyntaxError, err.Error())
	}

	// A raw session created with PROTOCOL= supplies the default for
	// sends that omit it.
	protoSpec, hasProto := opts.Get("PROTOCOL"), opts.Has("PROTOCOL")
	if !hasProto && c.rec.Options.Has("PROTOCOL") {
		protoSpec, hasProto = c.rec.Options.Get("PROTOCOL"), true
	}
	var protoVal uint8
	if hasProto {
		u, err := strconv.ParseUint(protoSpec, 10, 8)
		if err != nil {
			return c.reply(topic, "STATUS", wire.ResultSyntaxError, "invalid PROTOCOL")
		}
		protoVal = uint8(u)
	}
	proto, err := wire.ValidateSend(style, len(payload), protoVal, hasProto)
	if err != nil {
		return c.reply(topic, "STATUS", wire.ResultSyntaxError, err.Error())
	}

	if err = c.rec.Session.SendDatagram(dest, payload, proto, fromPort, toPort); err != nil {
		return c.reply(topic, "STATUS", sendResult(err), err.Error())
	}
	instrument.MessageSent("control")
	return c.reply(topic, "STATUS", wire.ResultOK, "")
}

// portPair extracts FROM_PORT/TO_PORT, enforcing the version gate.
func (c *Conn) portPair(opts wire.Options) (fromPort, toPort uint16, err error) {
	fromPort, fromPresent, err := opts.Port("FROM_PORT")
	if err != nil {
		return
	}
	toPort, toPresent, err := opts.Port("TO_PORT")
	if err != nil {
		return
	}
	if (fromPresent || toPresent) && !c.version.HasPorts() {
		err = fmt.Errorf("port options require protocol %v", wire.PortThreshold)
	}
	return
}

// resolveDestination accepts a destination blob or a petname.
func (c *Conn) resolveDestination(spec string) (destination.Destination, wire.ResultCode) {
	if d, err := destination.Parse(spec); err == nil {
		return d, wire.ResultOK
	}
	if len(spec) <= naming.MaxNameLength {
		if d, err := c.l.glue.Naming().Lookup(spec); err == nil {
			return d, wire.ResultOK
		}
		return nil, wire.ResultKeyNotFound
	}
	return nil, wire.ResultInvalidKey
}

func sendResult(err error) wire.ResultCode {
	switch {
	case errors.Is(err, router.ErrNoPeer):
		return wire.ResultCantReachPeer
	case errors.Is(err, router.ErrTimeout):
		return wire.ResultTimeout
	default:
		return wire.ResultRouterError
	}
}

func (c *Conn) onStream(rest string) error {
	verb, rest := wire.NextToken(rest)
	verb = strings.ToUpper(verb)

	if c.rec != nil {
		// Stream attachment rides dedicated connections; the session's
		// own control connection keeps its command loop.
		return c.reply("STREAM", "STATUS", wire.ResultSyntaxError, "connection owns a session")
	}

	opts, err := wire.ParseOptions(rest)
	if err != nil {
		return c.reply("STREAM", "STATUS", wire.ResultSyntaxError, err.Error())
	}

	switch verb {
	case "CONNECT":
		return c.onStreamConnect(opts)
	case "ACCEPT":
		return c.onStreamAccept(opts)
	case "FORWARD":
		return c.onStreamForward(opts)
	default:
		return c.reply("STREAM", "STATUS", wire.ResultSyntaxError, "unknown verb")
	}
}

// streamSession resolves the ID option to a live STREAM session.
func (c *Conn) streamSession(opts wire.Options) (*registry.Record, wire.ResultCode, string) {
	rec, err := c.l.glue.Registry().Lookup(opts.Get("ID"))
	if err != nil {
		return nil, wire.ResultInvalidID, "no such session"
	}
	if rec.Style != wire.StyleStream {
		return nil, wire.ResultInvalidID, "not a stream session"
	}
	return rec, wire.ResultOK, ""
}

func (c *Conn) onStreamConnect(opts wire.Options) error {
	silent, err := opts.Bool("SILENT", false)
	if err != nil {
		return c.reply("STREAM", "STATUS", wire.ResultSyntaxError, err.Error())
	}
	// In silent mode no status line is ever written: failure is a
	// closed socket, success is stream payload.
	fail := func(code wire.ResultCode, msg string) error {
		if silent {
			return fmt.Errorf("silent connect failed: %v", msg)
		}
		return c.reply("STREAM", "STATUS", code, msg)
	}

	rec, code, msg := c.streamSession(opts)
	if code != wire.ResultOK {
		return fail(code, msg)
	}
	destSpec := opts.Get("DESTINATION")
	if destSpec == "" {
		return fail(wire.ResultSyntaxError, "missing DESTINATION")
	}
	dest, code := c.resolveDestination(destSpec)
	if code != wire.ResultOK {
		return fail(code, "")
	}
	fromPort, toPort, err := c.portPair(opts)
	if err != nil {
		return fail(wire.ResultSyntaxError, err.Error())
	}

	timeout := time.Duration(c.l.glue.Config().Debug.ConnectTimeout) * time.Millisecond
	stream, err := rec.Session.DialStream(dest, fromPort, toPort, timeout)
	if err != nil {
		return fail(sendResult(err), err.Error())
	}

	if !silent {
		if err = c.reply("STREAM", "STATUS", wire.ResultOK, ""); err != nil {
			stream.Close()
			return err
		}
	}
	return c.pipe(stream)
}

func (c *Conn) onStreamAccept(opts wire.Options) error {
	silent, err := opts.Bool("SILENT", false)
	if err != nil {
		return c.reply("STREAM", "STATUS", wire.ResultSyntaxError, err.Error())
	}
	rec, code, msg := c.streamSession(opts)
	if code != wire.ResultOK {
		return c.reply("STREAM", "STATUS", code, msg)
	}
	if rec.Forwarding() {
		return c.reply("STREAM", "STATUS", wire.ResultSyntaxError, "already forwarding")
	}

	// The status precedes the accept; the client blocks with us.
	if err = c.reply("STREAM", "STATUS", wire.ResultOK, ""); err != nil {
		return err
	}
	stream, info, err := rec.Session.AcceptStream(c.l.closeAllCh)
	if err != nil {
		return fmt.Errorf("accept failed: %v", err)
	}

	if !silent {
		line := rec.Format.AppendSenderLine(nil, info.Peer.String(), info.FromPort, info.ToPort)
		if err = c.WriteRaw(line); err != nil {
			stream.Close()
			return err
		}
	}
	return c.pipe(stream)
}

func (c *Conn) onStreamForward(opts wire.Options) error {
	if c.fwd != nil {
		return c.reply("STREAM", "STATUS", wire.ResultSyntaxError, "already forwarding")
	}
	silent, err := opts.Bool("SILENT", false)
	if err != nil {
		return c.reply("STREAM", "STATUS", wire.ResultSyntaxError, err.Error())
	}
	rec, code, msg := c.streamSession(opts)
	if code != wire.ResultOK {
		return c.reply("STREAM", "STATUS", code, msg)
	}
	port, present, err := opts.Port("PORT")
	if err != nil || !present {
		return c.reply("STREAM", "STATUS", wire.ResultSyntaxError, "missing or invalid PORT")
	}
	host := opts.Get("HOST")
	if host == "" {
		host = c.remoteIP
	}
	if host == "" {
		return c.reply("STREAM", "STATUS", wire.ResultSyntaxError, "no usable forwarding host")
	}

	if err = rec.ClaimForward(); err != nil {
		return c.reply("STREAM", "STATUS", wire.ResultSyntaxError, "already forwarding")
	}
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	c.fwd = streams.NewForwarder(rec, addr, silent, time.Duration(c.l.glue.Config().Debug.ConnectTimeout)*time.Millisecond, c.l.glue.LogBackend())
	c.log.Noticef("Forwarding session '%v' to %v", rec.Nickname, addr)
	return c.reply("STREAM", "STATUS", wire.ResultOK, "")
}

// pipe converts the connection into a raw byte pipe bridging stream.
// Bytes the reader buffered ahead of the conversion are stream payload,
// not commands, and are flushed to the stream first.
func (c *Conn) pipe(stream net.Conn) error {
	if n := c.br.Buffered(); n > 0 {
		b, _ := c.br.Peek(n)
		if _, err := stream.Write(b); err != nil {
			stream.Close()
			return err
		}
		c.br.Discard(n)
	}
	streams.Pipe(c.c, stream, c.log)
	return errPiped
}

func (c *Conn) onNaming(rest string) error {
	verb, rest := wire.NextToken(rest)
	if strings.ToUpper(verb) != "LOOKUP" {
		return c.reply("NAMING", "REPLY", wire.ResultSyntaxError, "unknown verb")
	}
	opts, err := wire.ParseOptions(rest)
	if err != nil {
		return c.reply("NAMING", "REPLY", wire.ResultSyntaxError, err.Error())
	}
	name := opts.Get("NAME")
	if name == "" {
		return c.reply("NAMING", "REPLY", wire.ResultSyntaxError, "missing NAME")
	}

	if name == "ME" {
		if c.rec == nil {
			return c.writeReply(wire.NewReply("NAMING", "REPLY").
				WithResult(wire.ResultInvalidID).
				With("NAME", "ME"))
		}
		return c.writeReply(wire.NewReply("NAMING", "REPLY").
			WithResult(wire.ResultOK).
			With("NAME", "ME").
			With("VALUE", c.rec.Keys.Destination().String()))
	}

	// A value that is already a destination comes straight back.
	if d, err := destination.Parse(name); err == nil {
		return c.writeReply(wire.NewReply("NAMING", "REPLY").
			WithResult(wire.ResultOK).
			With("NAME", name).
			With("VALUE", d.String()))
	}

	d, err := c.l.glue.Naming().Lookup(name)
	if err != nil {
		return c.writeReply(wire.NewReply("NAMING", "REPLY").
			WithResult(wire.ResultKeyNotFound).
			With("NAME", name))
	}
	return c.writeReply(wire.NewReply("NAMING", "REPLY").
		WithResult(wire.ResultOK).
		With("NAME", name).
		With("VALUE", d.String()))
}

func (c *Conn) onDest(rest string) error {
	verb, _ := wire.NextToken(rest)
	if strings.ToUpper(verb) != "GENERATE" {
		return c.reply("DEST", "REPLY", wire.ResultSyntaxError, "unknown verb")
	}
	keys, err := c.l.glue.Router().GenerateKeys()
	if err != nil {
		return c.reply("DEST", "REPLY", wire.ResultRouterError, err.Error())
	}
	return c.writeReply(wire.NewReply("DEST", "REPLY").
		WithResult(wire.ResultOK).
		With("PUB", keys.Destination().String()).
		With("PRIV", keys.String()))
}

func (c *Conn) onPing(rest string) error {
	if !c.version.HasPorts() {
		return c.reply("PING", "REPLY", wire.ResultSyntaxError,
			fmt.Sprintf("PING requires protocol %v", wire.PortThreshold))
	}
	pong := "PONG"
	if rest != "" {
		pong += " " + rest
	}
	c.log.Debugf("S->C: '%v'", pong)
	return c.WriteRaw([]byte(pong + "\n"))
}
