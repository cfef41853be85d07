// version.go - protocol version negotiation.
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

// Package wire implements the catwalk control protocol: version
// negotiation, the line grammar spoken on control connections, and the
// framing of inbound messages handed back to clients.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Version is a bridge protocol version.  Versions are totally ordered by
// (Major, Minor) and negotiated once per control connection, before any
// other command is accepted.
type Version struct {
	Major uint8
	Minor uint8
}

var (
	// V1_0 is the baseline protocol.
	V1_0 = Version{1, 0}

	// V1_1 adds the port metadata fields (FROM_PORT/TO_PORT) and PING.
	V1_1 = Version{1, 1}

	// Supported lists every version this bridge speaks, ascending.
	Supported = []Version{V1_0, V1_1}

	// PortThreshold is the lowest version whose message framing carries
	// port metadata.  Sessions negotiated below it never see port fields
	// in either direction.
	PortThreshold = V1_1

	// ErrNoVersion is returned by Negotiate when the offered range does
	// not intersect Supported.
	ErrNoVersion = errors.New("wire: no mutually supported version")
)

// String returns the wire form, e.g. "1.1".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less returns true if v precedes o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// AtLeast returns true if v is o or newer.
func (v Version) AtLeast(o Version) bool {
	return !v.Less(o)
}

// HasPorts reports whether the version's message framing carries the
// port metadata fields.
func (v Version) HasPorts() bool {
	return v.AtLeast(PortThreshold)
}

// ParseVersion parses the wire form "major.minor".
func ParseVersion(s string) (Version, error) {
	maj, min, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, fmt.Errorf("wire: malformed version: '%v'", s)
	}
	a, err := strconv.ParseUint(maj, 10, 8)
	if err != nil {
		return Version{}, fmt.Errorf("wire: malformed version: '%v'", s)
	}
	b, err := strconv.ParseUint(min, 10, 8)
	if err != nil {
		return Version{}, fmt.Errorf("wire: malformed version: '%v'", s)
	}
	return Version{uint8(a), uint8(b)}, nil
}

// Negotiate returns the highest supported version within [min, max]
// inclusive, or ErrNoVersion.  Callers substitute Version{0, 0} and
// Version{255, 255} for range ends the peer omitted.
func Negotiate(min, max Version) (Version, error) {
	if max.Less(min) {
		return Version{}, ErrNoVersion
	}
	for i := len(Supported) - 1; i >= 0; i-- {
		v := Supported[i]
		if v.Less(min) || max.Less(v) {
			continue
		}
		return v, nil
	}
	return Version{}, ErrNoVersion
}
