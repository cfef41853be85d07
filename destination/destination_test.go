// destination_test.go - endpoint identifier tests.
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

package destination

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestDestinationText(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	d := Destination(randBytes(t, 387))
	s := d.String()

	// The text form stays inside the address-safe alphabet.
	assert.NotContains(s, "+")
	assert.NotContains(s, "/")

	got, err := Parse(s)
	require.NoError(err)
	assert.True(got.Equal(d))

	_, err = Parse(strings.Repeat("A", 8))
	assert.ErrorIs(err, ErrMalformed)
	_, err = Parse("not*base64*at*all")
	assert.ErrorIs(err, ErrMalformed)
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	dest := Destination(randBytes(t, 387))
	secret := randBytes(t, 663)

	k, err := New(dest, secret)
	require.NoError(err)
	assert.True(k.Destination().Equal(dest))

	fromText, err := ParsePrivateKey(k.String())
	require.NoError(err)
	assert.True(fromText.Destination().Equal(dest))
	assert.Equal(k.Bytes(), fromText.Bytes())

	fromBytes, err := PrivateKeyFromBytes(k.Bytes())
	require.NoError(err)
	assert.Equal(k.Bytes(), fromBytes.Bytes())
}

func TestPrivateKeyMalformed(t *testing.T) {
	assert := assert.New(t)

	_, err := New(Destination(randBytes(t, 8)), randBytes(t, 64))
	assert.ErrorIs(err, ErrMalformed)
	_, err = New(Destination(randBytes(t, 64)), randBytes(t, 4))
	assert.ErrorIs(err, ErrMalformed)

	_, err = PrivateKeyFromBytes(nil)
	assert.ErrorIs(err, ErrMalformed)
	_, err = PrivateKeyFromBytes([]byte{0x01})
	assert.ErrorIs(err, ErrMalformed)

	// Length prefix pointing past the end of the blob.
	b := append([]byte{0xff, 0xff}, randBytes(t, 64)...)
	_, err = PrivateKeyFromBytes(b)
	assert.ErrorIs(err, ErrMalformed)

	_, err = ParsePrivateKey("???")
	assert.ErrorIs(err, ErrMalformed)
}
