// main.go - catwalk bridge binary.
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

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/carlmjohnson/versioninfo"

	"github.com/anonbridge/catwalk"
	"github.com/anonbridge/catwalk/config"
)

func main() {
	cfgFile := flag.String("f", "catwalk.toml", "Path to the bridge config file.")
	version := flag.Bool("v", false, "Print the version and exit immediately.")
	flag.Parse()

	if *version {
		fmt.Printf("catwalk %v\n", versioninfo.Short())
		os.Exit(0)
	}

	// Set the umask to something "paranoid".
	syscall.Umask(0077)

	// Ensure that a sane number of OS threads is allowed.
	if os.Getenv("GOMAXPROCS") == "" {
		// But only if the user isn't trying to override it.
		nProcs := runtime.GOMAXPROCS(0)
		nCPU := runtime.NumCPU()
		if nProcs < nCPU {
			runtime.GOMAXPROCS(nCPU)
		}
	}

	cfg, err := config.LoadFile(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config file '%v': %v\n", *cfgFile, err)
		os.Exit(-1)
	}

	// Setup the signal handling.
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)

	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)

	// Start up the bridge.
	bridge, err := catwalk.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to spawn bridge instance: %v\n", err)
		os.Exit(-1)
	}
	defer bridge.Shutdown()

	// Halt the bridge gracefully on SIGINT/SIGTERM.
	go func() {
		<-haltCh
		bridge.Shutdown()
	}()

	// Rotate logs upon SIGHUP.
	go func() {
		for {
			<-rotateCh
			bridge.RotateLog()
		}
	}()

	// Wait for the bridge to explode or be terminated.
	bridge.Wait()
}
