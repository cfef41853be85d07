// instrument.go - prometheus instrumentation.
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

// Package instrument exposes the bridge's prometheus metrics.
package instrument

import (
	goLog "log"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catwalk_connections_active",
			Help: "Number of open control connections",
		},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catwalk_sessions_active",
			Help: "Number of live sessions",
		},
	)
	sessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catwalk_sessions_created_total",
			Help: "Number of sessions created",
		},
		[]string{"style"},
	)
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catwalk_messages_sent_total",
			Help: "Number of outbound messages submitted to the overlay",
		},
		[]string{"source"},
	)
	messagesDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catwalk_messages_delivered_total",
			Help: "Number of inbound messages delivered to clients",
		},
		[]string{"target"},
	)
	messagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catwalk_messages_dropped_total",
			Help: "Number of inbound messages dropped",
		},
		[]string{"reason"},
	)
	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catwalk_streams_active",
			Help: "Number of active stream pipes",
		},
	)
	streamBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catwalk_stream_bytes_total",
			Help: "Bytes moved through stream pipes",
		},
		[]string{"direction"},
	)

	registerOnce sync.Once
)

// Init registers the collectors and starts serving /metrics on address.
// The returned server is already listening; the caller owns shutdown.
func Init(address string, errorLog *goLog.Logger) *http.Server {
	registerOnce.Do(func() {
		prometheus.MustRegister(connectionsActive)
		prometheus.MustRegister(sessionsActive)
		prometheus.MustRegister(sessionsCreated)
		prometheus.MustRegister(messagesSent)
		prometheus.MustRegister(messagesDelivered)
		prometheus.MustRegister(messagesDropped)
		prometheus.MustRegister(streamsActive)
		prometheus.MustRegister(streamBytes)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:     address,
		Handler:  mux,
		ErrorLog: errorLog,
	}
	go srv.ListenAndServe()
	return srv
}

// ConnectionOpened counts a new control connection.
func ConnectionOpened() {
	connectionsActive.Inc()
}

// ConnectionClosed counts a control connection teardown.
func ConnectionClosed() {
	connectionsActive.Dec()
}

// SessionCreated counts a session create by style.
func SessionCreated(style string) {
	sessionsCreated.With(prometheus.Labels{"style": style}).Inc()
	sessionsActive.Inc()
}

// SessionClosed counts a session teardown.
func SessionClosed() {
	sessionsActive.Dec()
}

// MessageSent counts an outbound message by its submission source
// ("control" or "sidecar").
func MessageSent(source string) {
	messagesSent.With(prometheus.Labels{"source": source}).Inc()
}

// MessageDelivered counts an inbound delivery by target kind ("inline"
// or "forward").
func MessageDelivered(target string) {
	messagesDelivered.With(prometheus.Labels{"target": target}).Inc()
}

// MessageDropped counts an undeliverable inbound message.
func MessageDropped(reason string) {
	messagesDropped.With(prometheus.Labels{"reason": reason}).Inc()
}

// StreamOpened counts a stream pipe going active.
func StreamOpened() {
	streamsActive.Inc()
}

// StreamClosed counts a stream pipe teardown.
func StreamClosed() {
	streamsActive.Dec()
}

// StreamBytes counts payload bytes moved through a pipe.
func StreamBytes(direction string, n int64) {
	if n > 0 {
		streamBytes.With(prometheus.Labels{"direction": direction}).Add(float64(n))
	}
}
