// destination.go - overlay endpoint identifiers.
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

// Package destination handles overlay endpoint identifiers.  A
// destination is an opaque blob minted by the overlay router; the bridge
// moves it between its text and binary forms and never looks inside.
package destination

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MinSize is the smallest well-formed destination.
	MinSize = 32

	// MaxSize bounds a destination blob.
	MaxSize = 4096

	// MinSecretSize is the smallest secret blob accepted in a private
	// destination.
	MinSecretSize = 32
)

// Text encoding is base64 with the URL-hostile characters swapped for
// '-' and '~', the overlay's convention for destinations in addresses
// and petnames.
var encoding = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-~")

var (
	// ErrMalformed is returned for destination blobs or text that do not
	// decode to a well-formed destination.
	ErrMalformed = errors.New("destination: malformed")
)

// Destination is a public overlay endpoint identifier.
type Destination []byte

// Parse decodes the text form of a destination.
func Parse(s string) (Destination, error) {
	b, err := encoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(b) < MinSize || len(b) > MaxSize {
		return nil, fmt.Errorf("%w: implausible length %d", ErrMalformed, len(b))
	}
	return Destination(b), nil
}

// String returns the text form.
func (d Destination) String() string {
	return encoding.EncodeToString(d)
}

// Equal compares two destinations for identity.
func (d Destination) Equal(o Destination) bool {
	return bytes.Equal(d, o)
}

// PrivateKey binds a destination to the secret material the router
// needs to operate it.  The secret is opaque to the bridge; it is held
// only to be echoed back to clients and handed to the router.
//
// The binary layout is a big-endian uint16 destination length, the
// destination, then the secret.
type PrivateKey struct {
	dest   Destination
	secret []byte
}

// New builds a PrivateKey from its parts.
func New(dest Destination, secret []byte) (*PrivateKey, error) {
	if len(dest) < MinSize || len(dest) > MaxSize {
		return nil, fmt.Errorf("%w: implausible destination length %d", ErrMalformed, len(dest))
	}
	if len(secret) < MinSecretSize {
		return nil, fmt.Errorf("%w: implausible secret length %d", ErrMalformed, len(secret))
	}
	return &PrivateKey{dest: dest, secret: secret}, nil
}

// ParsePrivateKey decodes the text form of a private destination.
func ParsePrivateKey(s string) (*PrivateKey, error) {
	b, err := encoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return PrivateKeyFromBytes(b)
}

// PrivateKeyFromBytes decodes the binary form of a private destination.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: truncated private destination", ErrMalformed)
	}
	dLen := int(binary.BigEndian.Uint16(b))
	if dLen < MinSize || dLen > MaxSize || len(b) < 2+dLen+MinSecretSize {
		return nil, fmt.Errorf("%w: truncated private destination", ErrMalformed)
	}
	dest := make(Destination, dLen)
	copy(dest, b[2:2+dLen])
	secret := make([]byte, len(b)-2-dLen)
	copy(secret, b[2+dLen:])
	return &PrivateKey{dest: dest, secret: secret}, nil
}

// Destination returns the public destination the key operates.
func (k *PrivateKey) Destination() Destination {
	return k.dest
}

// Bytes returns the binary form.
func (k *PrivateKey) Bytes() []byte {
	b := make([]byte, 2, 2+len(k.dest)+len(k.secret))
	binary.BigEndian.PutUint16(b, uint16(len(k.dest)))
	b = append(b, k.dest...)
	return append(b, k.secret...)
}

// String returns the text form.
func (k *PrivateKey) String() string {
	return encoding.EncodeToString(k.Bytes())
}
