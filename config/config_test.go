// config_test.go - catwalk bridge configuration tests.
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

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	cfg, err := Load([]byte(`
[Bridge]
DataDir = "/var/lib/catwalk"
`))
	require.NoError(err, "Load()")

	assert.Equal([]string{"tcp://127.0.0.1:7656"}, cfg.Bridge.Addresses)
	assert.Equal("NOTICE", cfg.Logging.Level)
	assert.Equal("socket", cfg.Router.Backend)
	assert.Equal("unix:///var/run/overlay/router.sock", cfg.Router.Address)
	assert.Equal("127.0.0.1:7655", cfg.Datagram.BindAddress)
	assert.Equal(filepath.Join("/var/lib/catwalk", "naming.db"), cfg.Naming.DBFile)
	assert.Equal(60*1000, cfg.Debug.HandshakeTimeout)
	assert.Equal(60*1000, cfg.Debug.ConnectTimeout)
	assert.Equal(5*1000, cfg.Debug.WriteTimeout)
}

func TestConfigFull(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	cfg, err := Load([]byte(`
[Bridge]
Addresses = [ "tcp://127.0.0.1:7656", "quic://127.0.0.1:7657" ]
DataDir = "/var/lib/catwalk"
MetricsAddress = "127.0.0.1:6040"

[Logging]
File = "catwalk.log"
Level = "debug"

[Router]
Backend = "socket"
Address = "tcp://127.0.0.1:4000"

[Datagram]
BindAddress = "127.0.0.1:7655"

[Naming]
DBFile = "petnames.db"
HostsFile = "hosts.txt"

[Debug]
HandshakeTimeout = 1000
ConnectTimeout = 2000
WriteTimeout = 300
`))
	require.NoError(err, "Load()")

	assert.Equal("DEBUG", cfg.Logging.Level)
	assert.Equal(filepath.Join("/var/lib/catwalk", "catwalk.log"), cfg.Logging.File)
	assert.Equal(filepath.Join("/var/lib/catwalk", "petnames.db"), cfg.Naming.DBFile)
	assert.Equal(filepath.Join("/var/lib/catwalk", "hosts.txt"), cfg.Naming.HostsFile)
	assert.Equal(1000, cfg.Debug.HandshakeTimeout)
	assert.Equal(300, cfg.Debug.WriteTimeout)
}

func TestConfigRejects(t *testing.T) {
	assert := assert.New(t)

	for name, body := range map[string]string{
		"no bridge block": `[Logging]`,
		"relative datadir": `
[Bridge]
DataDir = "catwalk"
`,
		"bad listener scheme": `
[Bridge]
Addresses = [ "udp://127.0.0.1:7656" ]
DataDir = "/var/lib/catwalk"
`,
		"bad listener host": `
[Bridge]
Addresses = [ "tcp://127.0.0.1" ]
DataDir = "/var/lib/catwalk"
`,
		"bad log level": `
[Bridge]
DataDir = "/var/lib/catwalk"
[Logging]
Level = "TRACE"
`,
		"bad router backend": `
[Bridge]
DataDir = "/var/lib/catwalk"
[Router]
Backend = "carrier-pigeon"
`,
		"bad router address": `
[Bridge]
DataDir = "/var/lib/catwalk"
[Router]
Address = "quic://127.0.0.1:4000"
`,
		"bad datagram bind": `
[Bridge]
DataDir = "/var/lib/catwalk"
[Datagram]
BindAddress = "localhost"
`,
		"undecoded key": `
[Bridge]
DataDir = "/var/lib/catwalk"
Frobnicate = true
`,
	} {
		_, err := Load([]byte(body))
		assert.Errorf(err, "Load(%s)", name)
	}
}

func TestConfigMemoryBackend(t *testing.T) {
	require := require.New(t)

	cfg, err := Load([]byte(`
[Bridge]
DataDir = "/var/lib/catwalk"
[Router]
Backend = "memory"
`))
	require.NoError(err, "Load()")
	require.Equal("memory", cfg.Router.Backend)
	// The memory backend needs no daemon endpoint.
	require.Equal("", cfg.Router.Address)
}
