// command_test.go - line grammar tests.
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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextToken(t *testing.T) {
	assert := assert.New(t)

	tok, rest := NextToken("SESSION CREATE STYLE=DATAGRAM")
	assert.Equal("SESSION", tok)
	assert.Equal("CREATE STYLE=DATAGRAM", rest)

	tok, rest = NextToken("  padded   out  ")
	assert.Equal("padded", tok)
	assert.Equal("out  ", rest)

	tok, rest = NextToken("solo")
	assert.Equal("solo", tok)
	assert.Equal("", rest)

	tok, rest = NextToken("")
	assert.Equal("", tok)
	assert.Equal("", rest)
}

func TestParseOptions(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	opts, err := ParseOptions("STYLE=DATAGRAM ID=mailer DESTINATION=TRANSIENT PORT=7655")
	require.NoError(err)
	assert.Equal("DATAGRAM", opts.Get("STYLE"))
	assert.Equal("mailer", opts.Get("ID"))
	assert.True(opts.Has("PORT"))
	assert.False(opts.Has("HOST"))
	assert.Equal("", opts.Get("HOST"))

	opts, err = ParseOptions(`MESSAGE="spaces inside" NEXT=ok`)
	require.NoError(err)
	assert.Equal("spaces inside", opts.Get("MESSAGE"))
	assert.Equal("ok", opts.Get("NEXT"))

	opts, err = ParseOptions(`MESSAGE="a \"quoted\" word" TAIL="back\\slash"`)
	require.NoError(err)
	assert.Equal(`a "quoted" word`, opts.Get("MESSAGE"))
	assert.Equal(`back\slash`, opts.Get("TAIL"))

	opts, err = ParseOptions(`EMPTY=""`)
	require.NoError(err)
	assert.True(opts.Has("EMPTY"))
	assert.Equal("", opts.Get("EMPTY"))

	opts, err = ParseOptions("")
	require.NoError(err)
	assert.Empty(opts)

	for _, bad := range []string{
		"BARE",
		"KEY=ok BARE",
		"KEY=a KEY=b",
		`KEY="unterminated`,
		"=value",
	} {
		_, err = ParseOptions(bad)
		assert.Errorf(err, "ParseOptions(%q)", bad)
	}
}

func TestOptionsHelpers(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	opts, err := ParseOptions("PORT=7655 SILENT=true LOUD=false")
	require.NoError(err)

	port, present, err := opts.Port("PORT")
	require.NoError(err)
	assert.True(present)
	assert.Equal(uint16(7655), port)

	_, present, err = opts.Port("FROM_PORT")
	require.NoError(err)
	assert.False(present)

	silent, err := opts.Bool("SILENT", false)
	require.NoError(err)
	assert.True(silent)
	loud, err := opts.Bool("LOUD", true)
	require.NoError(err)
	assert.False(loud)
	missing, err := opts.Bool("MISSING", true)
	require.NoError(err)
	assert.True(missing)

	opts, err = ParseOptions("PORT=99999 SILENT=perhaps")
	require.NoError(err)
	_, present, err = opts.Port("PORT")
	assert.True(present)
	assert.Error(err)
	_, err = opts.Bool("SILENT", false)
	assert.Error(err)
}

func TestValidNickname(t *testing.T) {
	assert := assert.New(t)

	for _, good := range []string{"a", "mailer", "web-proxy_7", "dots.are.ok", "A1-b2.C_3"} {
		assert.Truef(ValidNickname(good), "ValidNickname(%q)", good)
	}
	for _, bad := range []string{"", "has space", "sneaky\n", "ütf8", "semi;colon", strings.Repeat("x", MaxNicknameLength+1)} {
		assert.Falsef(ValidNickname(bad), "ValidNickname(%q)", bad)
	}
	assert.True(ValidNickname(strings.Repeat("x", MaxNicknameLength)))
}
