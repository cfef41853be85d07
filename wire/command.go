// command.go - control line grammar.
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
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxLineLength bounds a single control line, terminator included.
	// Longer lines are a framing failure and close the connection.
	MaxLineLength = 8192

	// MaxNicknameLength bounds session nicknames.
	MaxNicknameLength = 128
)

// NextToken splits the leading space-delimited token from s, returning
// the token and the remainder with leading spaces stripped.
func NextToken(s string) (tok, rest string) {
	s = strings.TrimLeft(s, " ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], strings.TrimLeft(s[i:], " ")
	}
	return s, ""
}

// Options holds the KEY=VALUE tail of a command line.  Keys compare
// case-sensitively; the grammar writes them upper-case.
type Options map[string]string

// ParseOptions parses the KEY=VALUE tail of a command line.  Values may
// be double-quoted to contain spaces, with backslash escaping quotes and
// backslashes inside.  Bare tokens without '=' and duplicate keys are
// rejected.
func ParseOptions(s string) (Options, error) {
	opts := make(Options)
	for i := 0; i < len(s); {
		// Skip separating spaces.
		if s[i] == ' ' {
			i++
			continue
		}

		eq := strings.IndexByte(s[i:], '=')
		sp := strings.IndexByte(s[i:], ' ')
		if eq < 0 || (sp >= 0 && sp < eq) {
			return nil, fmt.Errorf("wire: bare token in options: '%v'", s[i:])
		}
		key := s[i : i+eq]
		if key == "" {
			return nil, fmt.Errorf("wire: empty option key")
		}
		i += eq + 1

		var val string
		if i < len(s) && s[i] == '"' {
			var b strings.Builder
			i++
			closed := false
			for i < len(s) {
				ch := s[i]
				if ch == '\\' && i+1 < len(s) {
					b.WriteByte(s[i+1])
					i += 2
					continue
				}
				if ch == '"' {
					i++
					closed = true
					break
				}
				b.WriteByte(ch)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("wire: unterminated quoted value for %v", key)
			}
			val = b.String()
		} else {
			end := strings.IndexByte(s[i:], ' ')
			if end < 0 {
				end = len(s) - i
			}
			val = s[i : i+end]
			i += end
		}

		if _, dup := opts[key]; dup {
			return nil, fmt.Errorf("wire: duplicate option: %v", key)
		}
		opts[key] = val
	}
	return opts, nil
}

// Get returns the value for key, or "" when absent.
func (o Options) Get(key string) string {
	return o[key]
}

// Has reports whether key was present on the command line.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Port parses the named option as a port number.  present is false when
// the option was omitted.
func (o Options) Port(key string) (port uint16, present bool, err error) {
	v, ok := o[key]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, true, fmt.Errorf("wire: %v: invalid port '%v'", key, v)
	}
	return uint16(n), true, nil
}

// Bool parses the named option as a boolean, returning def when absent.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def, fmt.Errorf("wire: %v: invalid boolean '%v'", key, v)
	}
	return b, nil
}

// Style selects a session's traffic semantics.
type Style string

const (
	// StyleStream sessions carry ordered reliable byte streams.
	StyleStream Style = "STREAM"

	// StyleDatagram sessions carry repliable datagrams: receivers learn
	// the sender destination.
	StyleDatagram Style = "DATAGRAM"

	// StyleRaw sessions carry anonymous datagrams.
	StyleRaw Style = "RAW"
)

// ParseStyle validates a STYLE option value.
func ParseStyle(s string) (Style, error) {
	switch Style(s) {
	case StyleStream, StyleDatagram, StyleRaw:
		return Style(s), nil
	default:
		return "", fmt.Errorf("wire: unknown session style '%v'", s)
	}
}

// ValidNickname reports whether s is acceptable as a session nickname:
// 1 to MaxNicknameLength characters from [A-Za-z0-9_.-].
func ValidNickname(s string) bool {
	if len(s) == 0 || len(s) > MaxNicknameLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '.' || c == '-':
		default:
			return false
		}
	}
	return true
}
