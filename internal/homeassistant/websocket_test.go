package homeassistant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
)

// fakeHA is a minimal Home Assistant websocket endpoint.
type fakeHA struct {
	token    string
	fail     map[string]string // service -> error code
	upgrader websocket.Upgrader

	mu          sync.Mutex
	calls       []wsCallService
	connections int
	dropAfter   int // close the connection after this many calls (0 = never)
}

func (f *fakeHA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/websocket" {
		http.NotFound(w, r)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	f.mu.Lock()
	f.connections++
	f.mu.Unlock()

	_ = conn.WriteJSON(map[string]string{"type": "auth_required", "ha_version": "2024.5.0"})
	var auth wsAuth
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth.AccessToken != f.token {
		_ = conn.WriteJSON(map[string]string{"type": "auth_invalid", "message": "Invalid access token or password"})
		return
	}
	_ = conn.WriteJSON(map[string]string{"type": "auth_ok", "ha_version": "2024.5.0"})

	served := 0
	for {
		var call wsCallService
		if err := conn.ReadJSON(&call); err != nil {
			return
		}
		f.mu.Lock()
		f.calls = append(f.calls, call)
		drop := f.dropAfter
		f.mu.Unlock()

		// An unrelated event first, to check the client skips it.
		_ = conn.WriteJSON(map[string]any{"id": call.ID + 100, "type": "event"})

		if code, ok := f.fail[call.Service]; ok {
			_ = conn.WriteJSON(map[string]any{
				"id": call.ID, "type": "result", "success": false,
				"error": map[string]string{"code": code, "message": "Service not found."},
			})
		} else {
			_ = conn.WriteJSON(map[string]any{"id": call.ID, "type": "result", "success": true})
		}

		served++
		if drop > 0 && served >= drop {
			return
		}
	}
}

func (f *fakeHA) Calls() []wsCallService {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wsCallService(nil), f.calls...)
}

func (f *fakeHA) Connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connections
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://homeassistant.local:8123", "ws://homeassistant.local:8123/api/websocket"},
		{"https://ha.example.com/", "wss://ha.example.com/api/websocket"},
		{"http://proxy.local/ha", "ws://proxy.local/ha/api/websocket"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			is := is.New(t)
			got, err := WebSocketURL(tt.in)
			is.NoErr(err)
			is.Equal(got, tt.want)
		})
	}

	_, err := WebSocketURL("ftp://ha.local")
	if err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestWebSocketCallService(t *testing.T) {
	is := is.New(t)
	fake := &fakeHA{token: "secret-token"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := NewWebSocket(testOptions(srv.URL))
	defer c.Close()

	ctx := context.Background()
	is.NoErr(c.TurnOn(ctx))
	is.NoErr(c.TurnOff(ctx))

	calls := fake.Calls()
	is.Equal(len(calls), 2)
	is.Equal(calls[0].Type, "call_service")
	is.Equal(calls[0].Domain, "switch")
	is.Equal(calls[0].Service, "turn_on")
	is.Equal(calls[0].Target.EntityID, "switch.speakers")
	is.Equal(calls[1].Service, "turn_off")
	is.True(calls[1].ID > calls[0].ID)
	is.Equal(fake.Connections(), 1) // connection is reused
}

func TestWebSocketAuthInvalid(t *testing.T) {
	is := is.New(t)
	fake := &fakeHA{token: "other-token"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := NewWebSocket(testOptions(srv.URL))
	err := c.TurnOn(context.Background())
	is.True(errors.Is(err, ErrUnauthorized))
	is.True(strings.Contains(err.Error(), "Invalid access token"))
	is.Equal(fake.Connections(), 1) // never retried
}

func TestWebSocketResultError(t *testing.T) {
	is := is.New(t)
	fake := &fakeHA{token: "secret-token", fail: map[string]string{"turn_on": "not_found"}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := NewWebSocket(testOptions(srv.URL))
	defer c.Close()

	err := c.TurnOn(context.Background())
	var resultErr *ResultError
	is.True(errors.As(err, &resultErr))
	is.Equal(resultErr.Code, "not_found")
	is.Equal(len(fake.Calls()), 1)
}

func TestWebSocketReconnectsAfterDrop(t *testing.T) {
	is := is.New(t)
	fake := &fakeHA{token: "secret-token", dropAfter: 1}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.MaxRetries = 0
	c := NewWebSocket(opts)
	defer c.Close()

	ctx := context.Background()
	is.NoErr(c.TurnOn(ctx))
	time.Sleep(20 * time.Millisecond) // let the server close the first connection
	is.NoErr(c.TurnOff(ctx))

	is.Equal(fake.Connections(), 2)
	is.Equal(len(fake.Calls()), 2)
}

func TestWebSocketUnreachable(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	opts := testOptions(url)
	opts.MaxRetries = 1
	err := NewWebSocket(opts).TurnOn(context.Background())
	is.True(err != nil)
}
