// reply.go - reply lines and result codes.
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

import "strings"

// ResultCode is the RESULT value of a reply line.
type ResultCode string

const (
	// ResultOK signals successful completion of a command.
	ResultOK ResultCode = "OK"

	// ResultNoVersion is the HELLO reply when the offered version range
	// does not intersect the bridge's.  The connection closes after it.
	ResultNoVersion ResultCode = "NOVERSION"

	// ResultSyntaxError covers malformed lines, unknown commands, and
	// commands invalid in the connection's current state.  It never
	// closes the connection by itself.
	ResultSyntaxError ResultCode = "SYNTAX_ERROR"

	// ResultDuplicatedID rejects a session nickname already in use.
	ResultDuplicatedID ResultCode = "DUPLICATED_ID"

	// ResultDuplicatedDest rejects a destination already bound to a
	// live session.
	ResultDuplicatedDest ResultCode = "DUPLICATED_DEST"

	// ResultInvalidID rejects a nickname that names no live session.
	ResultInvalidID ResultCode = "INVALID_ID"

	// ResultInvalidKey rejects an unparsable destination.
	ResultInvalidKey ResultCode = "INVALID_KEY"

	// ResultInvalidTarget rejects an unusable forwarding host or port at
	// session creation.
	ResultInvalidTarget ResultCode = "INVALID_TARGET"

	// ResultCantReachPeer reports a stream dial the overlay could not
	// complete.
	ResultCantReachPeer ResultCode = "CANT_REACH_PEER"

	// ResultTimeout reports a stream dial that exceeded its deadline.
	ResultTimeout ResultCode = "TIMEOUT"

	// ResultKeyNotFound is the lookup miss reply.
	ResultKeyNotFound ResultCode = "KEY_NOT_FOUND"

	// ResultRouterError reports a failure inside the overlay router.  It
	// applies to the issuing command only.
	ResultRouterError ResultCode = "ROUTER_ERROR"
)

// Reply accumulates a single reply line.  Fields render in the order
// they were added, so replies are byte-deterministic.
type Reply struct {
	b strings.Builder
}

// NewReply starts a reply line for the given topic and verb, e.g.
// ("SESSION", "STATUS").
func NewReply(topic, verb string) *Reply {
	r := new(Reply)
	r.b.WriteString(topic)
	r.b.WriteByte(' ')
	r.b.WriteString(verb)
	return r
}

// WithResult appends the RESULT field.
func (r *Reply) WithResult(rc ResultCode) *Reply {
	return r.With("RESULT", string(rc))
}

// With appends a KEY=VALUE field, quoting the value if needed.
func (r *Reply) With(key, value string) *Reply {
	r.b.WriteByte(' ')
	r.b.WriteString(key)
	r.b.WriteByte('=')
	r.b.WriteString(QuoteValue(value))
	return r
}

// String renders the line without a terminator.
func (r *Reply) String() string {
	return r.b.String()
}

// QuoteValue returns v in the form it appears on a reply line: verbatim
// when it is a plain token, double-quoted with escapes otherwise.
func QuoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \"\\") {
		return v
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(v); i++ {
		if v[i] == '"' || v[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(v[i])
	}
	b.WriteByte('"')
	return b.String()
}
