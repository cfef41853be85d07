// format_test.go - message framing tests.
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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderLine(t *testing.T) {
	assert := assert.New(t)

	withPorts := FormatFor(V1_1)
	bare := FormatFor(V1_0)

	b := withPorts.AppendSenderLine(nil, "destAAAA", 25, 7655)
	assert.Equal("destAAAA FROM_PORT=25 TO_PORT=7655\n", string(b))

	b = bare.AppendSenderLine(nil, "destAAAA", 25, 7655)
	assert.Equal("destAAAA\n", string(b))

	// Appends after existing content, no reformatting.
	b = withPorts.AppendSenderLine([]byte("x"), "d", 0, 0)
	assert.Equal("xd FROM_PORT=0 TO_PORT=0\n", string(b))
}

func TestRawLine(t *testing.T) {
	assert := assert.New(t)

	f := FormatFor(V1_1)
	b := f.AppendRawLine(nil, ProtoRaw, 8000, 8001)
	assert.Equal("PROTOCOL=18 FROM_PORT=8000 TO_PORT=8001\n", string(b))
}

func TestParseIngress(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	payload := []byte("hello overlay")

	in, p, err := ParseIngress(append([]byte("1.0 mailer destBBBB\n"), payload...))
	require.NoError(err)
	assert.Equal(V1_0, in.Version)
	assert.Equal("mailer", in.Nickname)
	assert.Equal("destBBBB", in.Destination)
	assert.False(in.HasProto)
	assert.Equal(payload, p)

	in, p, err = ParseIngress(append([]byte("1.1 mailer destBBBB FROM_PORT=25 TO_PORT=587 PROTOCOL=18\n"), payload...))
	require.NoError(err)
	assert.Equal(V1_1, in.Version)
	assert.Equal(uint16(25), in.FromPort)
	assert.Equal(uint16(587), in.ToPort)
	assert.True(in.HasProto)
	assert.Equal(uint8(18), in.Proto)
	assert.Equal(payload, p)

	// Empty payload is legal.
	_, p, err = ParseIngress([]byte("1.0 mailer destBBBB\n"))
	require.NoError(err)
	assert.Empty(p)

	for _, bad := range [][]byte{
		[]byte("no newline at all"),
		[]byte("9.9 mailer destBBBB\nx"),
		[]byte("1.0 mailer destBBBB FROM_PORT=25\nx"),
		[]byte("1.1 mailer destBBBB FROM_PORT=nope\nx"),
		[]byte("1.1 mailer destBBBB PROTOCOL=999\nx"),
		[]byte("1.1 bad;nick destBBBB\nx"),
		[]byte("1.1 mailer\nx"),
		[]byte("\nx"),
	} {
		_, _, err = ParseIngress(bad)
		assert.Errorf(err, "ParseIngress(%q)", bad)
	}
}

func TestReplyBuilder(t *testing.T) {
	assert := assert.New(t)

	r := NewReply("SESSION", "STATUS").WithResult(ResultOK).With("DESTINATION", "privAAAA")
	assert.Equal("SESSION STATUS RESULT=OK DESTINATION=privAAAA", r.String())

	r = NewReply("NAMING", "REPLY").WithResult(ResultKeyNotFound).With("NAME", "nowhere")
	assert.Equal("NAMING REPLY RESULT=KEY_NOT_FOUND NAME=nowhere", r.String())

	r = NewReply("SESSION", "STATUS").WithResult(ResultRouterError).With("MESSAGE", "no route to peer")
	assert.Equal(`SESSION STATUS RESULT=ROUTER_ERROR MESSAGE="no route to peer"`, r.String())
}

func TestQuoteValue(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("plain", QuoteValue("plain"))
	assert.Equal(`""`, QuoteValue(""))
	assert.Equal(`"two words"`, QuoteValue("two words"))
	assert.Equal(`"a \"b\" c"`, QuoteValue(`a "b" c`))
	assert.Equal(`"back\\slash"`, QuoteValue(`back\slash`))

	// Round-trips through the option parser.
	opts, err := ParseOptions("MESSAGE=" + QuoteValue(`a "b" \ c`))
	assert.NoError(err)
	assert.Equal(`a "b" \ c`, opts.Get("MESSAGE"))
}
