package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConn is the interface for WebSocket connection operations.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v any) error
	ReadJSON(v any) error
}

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin reports whether the WebSocket connection origin is allowed.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}

	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	slog.Warn("rejected WebSocket connection", "origin", origin, "host", host)
	return false
}

// UpgradeConnection upgrades an HTTP connection to WebSocket.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// Push sends build() to conn immediately and then every interval until the
// client disconnects or ctx is cancelled. Any message from the client
// triggers an extra push.
//
// Only the writer goroutine writes to the connection; the reader exists to
// notice the close frame.
func Push(ctx context.Context, conn WebSocketConn, interval time.Duration, build func() any) {
	send := make(chan any, 4)
	done := make(chan struct{})
	refresh := make(chan struct{}, 1)

	go runWriter(conn, send)
	go runReader(conn, done, refresh)

	runEventLoop(ctx, interval, build, send, done, refresh)
}

// runWriter writes messages from the send channel to the connection.
func runWriter(conn WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runReader reads until the connection fails and closes done.
func runReader(conn WebSocketConn, done chan<- struct{}, refresh chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case refresh <- struct{}{}:
		default:
		}
	}
}

// runEventLoop pushes periodic updates and closes send when finished.
func runEventLoop(ctx context.Context, interval time.Duration, build func() any, send chan<- any, done, refresh <-chan struct{}) {
	defer close(send)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	trySend := func() bool {
		select {
		case send <- build():
			return true
		case <-done:
			return false
		case <-ctx.Done():
			return false
		}
	}

	if !trySend() {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-refresh:
			if !trySend() {
				return
			}
		case <-ticker.C:
			if !trySend() {
				return
			}
		}
	}
}
