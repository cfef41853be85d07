// glue.go - catwalk internal glue.
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

// Package glue implements the glue structure that ties all the internal
// subpackages together.
package glue

import (
	"net"

	"github.com/anonbridge/catwalk/config"
	"github.com/anonbridge/catwalk/core/log"
	"github.com/anonbridge/catwalk/internal/delivery"
	"github.com/anonbridge/catwalk/internal/registry"
	"github.com/anonbridge/catwalk/naming"
	"github.com/anonbridge/catwalk/router"
)

// Glue is the structure that binds the internal components together.
type Glue interface {
	Config() *config.Config
	LogBackend() *log.Backend

	Registry() *registry.Registry
	Router() router.Backend
	Naming() *naming.Store

	// UDP is the datagram ingress/egress socket.
	UDP() *delivery.UDPServer

	Listeners() []Listener
}

// Listener is a client transport listener.
type Listener interface {
	Halt()
	Addr() net.Addr
}
