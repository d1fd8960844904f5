package server

import (
	"compress/flate"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

// upgrader validates that the Origin header matches the request Host, so
// a page on another site can't silently subscribe a visitor's browser to
// this server's transfer progress feed.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients (the CLI) send no Origin header
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
	EnableCompression: true,
}

// handleWebSocket upgrades the connection and registers it with the hub
// extracted from the request context, subscribing the caller to that
// repo's push/fetch/branch-update progress events. Upgrades go through
// the rate limiter to prevent resource exhaustion.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !s.rateLimiter.allow(ip) {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	hub := hubFromCtx(r.Context())
	if hub == nil {
		http.Error(w, "Repository not available", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	conn.EnableWriteCompression(true)
	if err := conn.SetCompressionLevel(flate.BestSpeed); err != nil {
		s.logger.Error("failed to set compression level", "err", err)
	}
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error("failed to set read deadline", "addr", conn.RemoteAddr(), "err", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := hub.registerClient(conn)

	done := make(chan struct{})
	hub.clientWg.Add(2)
	go hub.clientReadPump(conn, done)
	go hub.clientWritePump(conn, done, writeMu)
}
