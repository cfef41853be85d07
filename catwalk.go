// catwalk.go - catwalk bridge instance.
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

// Package catwalk implements the application bridge daemon: it accepts
// client control connections, negotiates the bridge protocol, and moves
// traffic between clients and the anonymous overlay's router.
package catwalk

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/anonbridge/catwalk/config"
	"github.com/anonbridge/catwalk/core/log"
	"github.com/anonbridge/catwalk/internal/delivery"
	"github.com/anonbridge/catwalk/internal/glue"
	"github.com/anonbridge/catwalk/internal/incoming"
	"github.com/anonbridge/catwalk/internal/instrument"
	"github.com/anonbridge/catwalk/internal/registry"
	"github.com/anonbridge/catwalk/naming"
	"github.com/anonbridge/catwalk/router"
)

// Bridge is a catwalk bridge instance.
type Bridge struct {
	cfg *config.Config

	logBackend *log.Backend
	log        *logging.Logger

	registry  *registry.Registry
	backend   router.Backend
	names     *naming.Store
	udp       *delivery.UDPServer
	metrics   *http.Server
	listeners []glue.Listener

	fatalErrCh chan error
	haltedCh   chan interface{}
	haltOnce   sync.Once
}

func (b *Bridge) initDataDir() error {
	const dirMode = os.ModeDir | 0700
	d := b.cfg.Bridge.DataDir

	// Initialize the data directory, by ensuring that it exists (or can
	// be created), and that it has the appropriate permissions.
	if fi, err := os.Lstat(d); err != nil {
		// Directory doesn't exist, create one.
		if !os.IsNotExist(err) {
			return fmt.Errorf("catwalk: failed to stat() DataDir: %v", err)
		}
		if err = os.Mkdir(d, dirMode); err != nil {
			return fmt.Errorf("catwalk: failed to create DataDir: %v", err)
		}
	} else {
		if !fi.IsDir() {
			return fmt.Errorf("catwalk: DataDir '%v' is not a directory", d)
		}
		if fi.Mode() != dirMode {
			return fmt.Errorf("catwalk: DataDir '%v' has invalid permissions '%v', should be '%v'", d, fi.Mode(), dirMode)
		}
	}

	return nil
}

func (b *Bridge) initLogging() error {
	// Relative log paths were anchored under DataDir at config load.
	var err error
	b.logBackend, err = log.New(b.cfg.Logging.File, b.cfg.Logging.Level, b.cfg.Logging.Disable)
	if err == nil {
		b.log = b.logBackend.GetLogger("catwalk")
	}
	return err
}

// RotateLog rotates the log file if logging to a file is enabled.
func (b *Bridge) RotateLog() {
	err := b.logBackend.Rotate()
	if err != nil {
		b.fatalErrCh <- fmt.Errorf("failed to rotate log file, shutting down bridge")
	}
	b.log.Notice("Log rotated.")
}

// ListenerAddrs returns the addresses the bridge listens on, in config
// order.  Useful when a listener was bound to port 0.
func (b *Bridge) ListenerAddrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(b.listeners))
	for _, l := range b.listeners {
		addrs = append(addrs, l.Addr())
	}
	return addrs
}

// Wait waits till the bridge is terminated for any reason.
func (b *Bridge) Wait() {
	<-b.haltedCh
}

// Shutdown cleanly shuts down a given Bridge instance.
func (b *Bridge) Shutdown() {
	b.haltOnce.Do(func() { b.halt() })
}

func (b *Bridge) halt() {
	b.log.Notice("Starting graceful shutdown.")

	// Halting the listeners closes every control connection, which in
	// turn tears down the sessions those connections own.
	for i, l := range b.listeners {
		if l != nil {
			l.Halt()
		}
		b.listeners[i] = nil
	}

	if b.udp != nil {
		b.udp.Halt()
		b.udp = nil
	}

	for _, rec := range b.registry.Drain() {
		rec.Close()
	}

	if b.backend != nil {
		b.backend.Close()
		b.backend = nil
	}
	if b.names != nil {
		b.names.Close()
		b.names = nil
	}
	if b.metrics != nil {
		b.metrics.Close()
		b.metrics = nil
	}
	close(b.fatalErrCh)

	b.log.Notice("Shutdown complete.")
	close(b.haltedCh)
}

// New returns a new Bridge instance parameterized with the specified
// configuration.
func New(cfg *config.Config) (*Bridge, error) {
	b := &Bridge{
		cfg:        cfg,
		fatalErrCh: make(chan error),
		haltedCh:   make(chan interface{}),
	}
	goo := &bridgeGlue{b}

	// Do the early initialization and bring up logging.
	if err := b.initDataDir(); err != nil {
		return nil, err
	}
	if err := b.initLogging(); err != nil {
		return nil, err
	}

	if b.cfg.Logging.Level == "DEBUG" {
		b.log.Warning("Unsafe Debug logging is enabled.")
	}

	b.registry = registry.New(b.logBackend)

	var err error
	switch cfg.Router.Backend {
	case "memory":
		b.log.Warning("Using the in-process memory router; traffic will NOT leave this process.")
		b.backend = router.NewNetwork()
	default:
		if b.backend, err = router.NewSocketBackend(cfg.Router.Address, b.logBackend); err != nil {
			b.log.Errorf("Failed to connect to the router: %v", err)
			return nil, err
		}
	}

	// Past this point, failures need to call b.Shutdown() to do cleanup.
	isOk := false
	defer func() {
		if !isOk {
			b.Shutdown()
		}
	}()

	// Start the fatal error watcher.
	go func() {
		err, ok := <-b.fatalErrCh
		if !ok {
			// Graceful termination.
			return
		}
		b.log.Warningf("Shutting down due to error: %v", err)
		b.Shutdown()
	}()

	// Bring up the naming store and import the hosts file.
	if b.names, err = naming.New(cfg.Naming.DBFile); err != nil {
		b.log.Errorf("Failed to initialize naming store: %v", err)
		return nil, err
	}
	if cfg.Naming.HostsFile != "" {
		added, skipped, err := b.names.ImportHosts(cfg.Naming.HostsFile)
		switch {
		case err == nil:
			b.log.Noticef("Imported %d names from '%v' (%d skipped)", added, cfg.Naming.HostsFile, skipped)
		case os.IsNotExist(err):
			b.log.Debugf("No hosts file at '%v'", cfg.Naming.HostsFile)
		default:
			b.log.Errorf("Failed to import hosts file: %v", err)
			return nil, err
		}
	}

	// Bring up the sidecar datagram channel.
	if b.udp, err = delivery.NewUDPServer(cfg.Datagram.BindAddress, b.registry, b.logBackend); err != nil {
		b.log.Errorf("Failed to bind datagram channel: %v", err)
		return nil, err
	}
	b.log.Noticef("Datagram channel is: %v", b.udp.Addr())

	if cfg.Bridge.MetricsAddress != "" {
		b.metrics = instrument.Init(cfg.Bridge.MetricsAddress, b.logBackend.GetGoLogger("metrics", "ERROR"))
		b.log.Noticef("Serving metrics on: %v", cfg.Bridge.MetricsAddress)
	}

	// Bring the listener(s) online.
	b.listeners = make([]glue.Listener, 0, len(cfg.Bridge.Addresses))
	for i, addr := range cfg.Bridge.Addresses {
		l, err := incoming.New(goo, i, addr)
		if err != nil {
			b.log.Errorf("Failed to spawn listener on: %v: %v", addr, err)
			return nil, err
		}
		b.listeners = append(b.listeners, l)
		b.log.Noticef("Listening on: %v", l.Addr())
	}

	isOk = true
	return b, nil
}

type bridgeGlue struct {
	b *Bridge
}

func (g *bridgeGlue) Config() *config.Config       { return g.b.cfg }
func (g *bridgeGlue) LogBackend() *log.Backend     { return g.b.logBackend }
func (g *bridgeGlue) Registry() *registry.Registry { return g.b.registry }
func (g *bridgeGlue) Router() router.Backend       { return g.b.backend }
func (g *bridgeGlue) Naming() *naming.Store        { return g.b.names }
func (g *bridgeGlue) UDP() *delivery.UDPServer     { return g.b.udp }
func (g *bridgeGlue) Listeners() []glue.Listener   { return g.b.listeners }
