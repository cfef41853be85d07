// config.go - catwalk bridge configuration.
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

// Package config implements the catwalk bridge configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultAddress     = "tcp://127.0.0.1:7656"
	defaultUDPAddress  = "127.0.0.1:7655"
	defaultLogLevel    = "NOTICE"
	defaultNamingDB    = "naming.db"
	defaultRouterSock  = "unix:///var/run/overlay/router.sock"
	defaultHandshakeMs = 60 * 1000
	defaultConnectMs   = 60 * 1000
	defaultWriteMs     = 5 * 1000
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Bridge is the bridge configuration.
type Bridge struct {
	// Addresses are the URL-style address/port combinations that the
	// bridge will bind to for client control connections.  The schemes
	// tcp, tcp4, tcp6 and quic are supported.
	Addresses []string

	// DataDir is the absolute path to the bridge's state files.
	DataDir string

	// MetricsAddress is the IP address/port combination the metrics
	// endpoint listens on.  If omitted metrics are not served.
	MetricsAddress string
}

func (bCfg *Bridge) validate() error {
	if bCfg.Addresses != nil {
		for _, v := range bCfg.Addresses {
			if err := validateTransportAddr(v); err != nil {
				return fmt.Errorf("config: Bridge: Address '%v' is invalid: %v", v, err)
			}
		}
	} else {
		// Client apps are expected to be local, so a loopback default
		// is the sensible one.
		bCfg.Addresses = []string{defaultAddress}
	}
	if !filepath.IsAbs(bCfg.DataDir) {
		return fmt.Errorf("config: Bridge: DataDir '%v' is not an absolute path", bCfg.DataDir)
	}
	if bCfg.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(bCfg.MetricsAddress); err != nil {
			return fmt.Errorf("config: Bridge: MetricsAddress '%v' is invalid: %v", bCfg.MetricsAddress, err)
		}
	}
	return nil
}

func validateTransportAddr(addr string) error {
	u, err := url.Parse(addr)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "tcp", "tcp4", "tcp6", "quic":
	default:
		return fmt.Errorf("unsupported scheme '%v'", u.Scheme)
	}
	if _, _, err = net.SplitHostPort(u.Host); err != nil {
		return err
	}
	return nil
}

// Logging is the bridge logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	// Relative paths are interpreted under DataDir.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Router is the overlay router backend configuration.
type Router struct {
	// Backend selects how the bridge reaches the overlay: "socket"
	// connects to an external router daemon, "memory" is an in-process
	// loopback for development and tests.
	Backend string

	// Address is the router daemon endpoint for the socket backend,
	// a unix:// or tcp:// URL.
	Address string
}

func (rCfg *Router) validate() error {
	switch rCfg.Backend {
	case "":
		rCfg.Backend = "socket"
	case "socket", "memory":
	default:
		return fmt.Errorf("config: Router: Backend '%v' is invalid", rCfg.Backend)
	}
	if rCfg.Backend == "memory" {
		return nil
	}
	if rCfg.Address == "" {
		rCfg.Address = defaultRouterSock
	}
	u, err := url.Parse(rCfg.Address)
	if err != nil {
		return fmt.Errorf("config: Router: Address '%v' is invalid: %v", rCfg.Address, err)
	}
	switch u.Scheme {
	case "unix":
		if u.Path == "" {
			return fmt.Errorf("config: Router: Address '%v' is missing a socket path", rCfg.Address)
		}
	case "tcp", "tcp4", "tcp6":
		if _, _, err = net.SplitHostPort(u.Host); err != nil {
			return fmt.Errorf("config: Router: Address '%v' is invalid: %v", rCfg.Address, err)
		}
	default:
		return fmt.Errorf("config: Router: Address scheme '%v' is invalid", u.Scheme)
	}
	return nil
}

// Datagram is the sidecar datagram channel configuration.
type Datagram struct {
	// BindAddress is the IP address/port combination of the UDP socket
	// used for forwarded deliveries and connectionless client sends.
	BindAddress string
}

func (dCfg *Datagram) validate() error {
	if dCfg.BindAddress == "" {
		dCfg.BindAddress = defaultUDPAddress
	}
	if _, _, err := net.SplitHostPort(dCfg.BindAddress); err != nil {
		return fmt.Errorf("config: Datagram: BindAddress '%v' is invalid: %v", dCfg.BindAddress, err)
	}
	return nil
}

// Naming is the petname store configuration.
type Naming struct {
	// DBFile is the naming store database.  Relative paths are
	// interpreted under DataDir.
	DBFile string

	// HostsFile is an optional "name=destination" file imported at
	// startup.  Names already in the store are never clobbered.
	// Relative paths are interpreted under DataDir.
	HostsFile string
}

func (nCfg *Naming) applyDefaults() {
	if nCfg.DBFile == "" {
		nCfg.DBFile = defaultNamingDB
	}
}

// Debug is the bridge debug configuration.
type Debug struct {
	// HandshakeTimeout is the handshake read timeout in milliseconds;
	// it applies to a connection until version negotiation completes.
	HandshakeTimeout int

	// ConnectTimeout bounds stream dials, in milliseconds.
	ConnectTimeout int

	// WriteTimeout bounds writes to client connections, in
	// milliseconds.  Inline deliveries that exceed it are dropped.
	WriteTimeout int
}

func (dCfg *Debug) applyDefaults() {
	if dCfg.HandshakeTimeout <= 0 {
		dCfg.HandshakeTimeout = defaultHandshakeMs
	}
	if dCfg.ConnectTimeout <= 0 {
		dCfg.ConnectTimeout = defaultConnectMs
	}
	if dCfg.WriteTimeout <= 0 {
		dCfg.WriteTimeout = defaultWriteMs
	}
}

// Config is the top level bridge configuration.
type Config struct {
	Bridge   *Bridge
	Logging  *Logging
	Router   *Router
	Datagram *Datagram
	Naming   *Naming
	Debug    *Debug
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.  Most people should call one of the Load
// variants instead.
func (cfg *Config) FixupAndValidate() error {
	// Handle missing sections if possible.
	if cfg.Bridge == nil {
		return errors.New("config: No Bridge block was present")
	}
	if cfg.Logging == nil {
		cfg.Logging = &defaultLogging
	}
	if cfg.Router == nil {
		cfg.Router = &Router{}
	}
	if cfg.Datagram == nil {
		cfg.Datagram = &Datagram{}
	}
	if cfg.Naming == nil {
		cfg.Naming = &Naming{}
	}
	if cfg.Debug == nil {
		cfg.Debug = &Debug{}
	}

	// Validate and fixup the various sections.
	if err := cfg.Bridge.validate(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	if err := cfg.Router.validate(); err != nil {
		return err
	}
	if err := cfg.Datagram.validate(); err != nil {
		return err
	}
	cfg.Naming.applyDefaults()
	cfg.Debug.applyDefaults()

	// Anchor the relative paths under DataDir.
	if cfg.Logging.File != "" && !filepath.IsAbs(cfg.Logging.File) {
		cfg.Logging.File = filepath.Join(cfg.Bridge.DataDir, cfg.Logging.File)
	}
	if !filepath.IsAbs(cfg.Naming.DBFile) {
		cfg.Naming.DBFile = filepath.Join(cfg.Bridge.DataDir, cfg.Naming.DBFile)
	}
	if cfg.Naming.HostsFile != "" && !filepath.IsAbs(cfg.Naming.HostsFile) {
		cfg.Naming.HostsFile = filepath.Join(cfg.Bridge.DataDir, cfg.Naming.HostsFile)
	}

	return nil
}

// Load parses and validates the provided buffer b as a config file body
// and returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns
// the Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
