package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// ResultError is a failed call_service result.
type ResultError struct {
	Code    string
	Message string
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("home assistant service call failed: %s: %s", e.Code, e.Message)
}

// wsMessage covers every message type the client reads.
type wsMessage struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	HAVersion string `json:"ha_version"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsAuth struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

type wsCallService struct {
	ID      int      `json:"id"`
	Type    string   `json:"type"`
	Domain  string   `json:"domain"`
	Service string   `json:"service"`
	Target  wsTarget `json:"target"`
}

type wsTarget struct {
	EntityID string `json:"entity_id"`
}

// WSClient calls Home Assistant services over the WebSocket API.
// The connection is opened on first use and re-opened after errors.
// It is safe for concurrent use; calls are serialized.
type WSClient struct {
	opts   Options
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int
}

// NewWebSocket returns a WebSocket client.
func NewWebSocket(opts Options) *WSClient {
	opts = opts.withDefaults()
	return &WSClient{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.Timeout,
		},
	}
}

// WebSocketURL derives the websocket endpoint from a Home Assistant base URL.
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", util.WrapError("parse base url", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/websocket"
	return u.String(), nil
}

// TurnOn switches the entity on.
func (c *WSClient) TurnOn(ctx context.Context) error {
	return c.CallService(ctx, ServiceTurnOn)
}

// TurnOff switches the entity off.
func (c *WSClient) TurnOff(ctx context.Context) error {
	return c.CallService(ctx, ServiceTurnOff)
}

// CallService sends call_service for the configured entity and logs the outcome.
func (c *WSClient) CallService(ctx context.Context, service string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	backoff := util.NewBackoff(c.opts.RetryWait, maxRetryWait)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := backoff.Wait(ctx); err != nil {
				lastErr = errors.Join(lastErr, err)
				break
			}
		}
		attempts++

		lastErr = c.callOnce(ctx, service)
		if lastErr == nil || !retryable(ctx, lastErr) {
			break
		}
	}

	logCall(c.opts, service, "websocket", attempts, time.Since(start), lastErr)
	return lastErr
}

// callOnce performs one call. A failure on a reused connection is retried
// once on a fresh connection, since Home Assistant may have dropped it
// while idle.
func (c *WSClient) callOnce(ctx context.Context, service string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	reused := c.conn != nil
	err := c.exchange(ctx, service)
	if err != nil && reused && ctx.Err() == nil && !errors.Is(err, ErrUnauthorized) {
		var resultErr *ResultError
		if !errors.As(err, &resultErr) {
			slog.Debug("home assistant websocket connection lost, reconnecting", "error", err)
			err = c.exchange(ctx, service)
		}
	}
	return err
}

func (c *WSClient) exchange(ctx context.Context, service string) error {
	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}
	conn := c.conn

	stop := bindDeadline(ctx, conn)
	defer stop()

	c.nextID++
	id := c.nextID
	err := conn.WriteJSON(wsCallService{
		ID:      id,
		Type:    "call_service",
		Domain:  c.opts.Domain,
		Service: service,
		Target:  wsTarget{EntityID: c.opts.EntityID},
	})
	if err != nil {
		c.closeConn()
		return util.WrapError("send call_service", err)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.closeConn()
			return util.WrapError("read call_service result", err)
		}
		if msg.Type != "result" || msg.ID != id {
			continue
		}
		if msg.Success {
			return nil
		}
		resultErr := &ResultError{Code: "unknown_error"}
		if msg.Error != nil {
			resultErr.Code = msg.Error.Code
			resultErr.Message = msg.Error.Message
		}
		return resultErr
	}
}

// connect dials and authenticates. Caller must hold c.mu.
func (c *WSClient) connect(ctx context.Context) error {
	wsURL, err := WebSocketURL(c.opts.BaseURL)
	if err != nil {
		return err
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return util.WrapError("connect to home assistant websocket", err)
	}

	stop := bindDeadline(ctx, conn)
	defer stop()

	if err := authenticate(conn, c.opts.Token); err != nil {
		_ = conn.Close()
		return err
	}

	c.conn = conn
	c.nextID = 0
	slog.Info("connected to home assistant websocket", "url", wsURL)
	return nil
}

// authenticate runs the auth_required, auth, auth_ok handshake.
func authenticate(conn *websocket.Conn, token string) error {
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return util.WrapError("read auth_required", err)
	}
	if msg.Type != "auth_required" {
		return fmt.Errorf("expected auth_required, got %s", msg.Type)
	}

	if err := conn.WriteJSON(wsAuth{Type: "auth", AccessToken: token}); err != nil {
		return util.WrapError("send auth", err)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		return util.WrapError("read auth result", err)
	}
	switch msg.Type {
	case "auth_ok":
		slog.Debug("home assistant websocket authenticated", "ha_version", msg.HAVersion)
		return nil
	case "auth_invalid":
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg.Message)
	default:
		return fmt.Errorf("expected auth_ok, got %s", msg.Type)
	}
}

// bindDeadline applies ctx's deadline to conn and unblocks pending I/O
// when ctx is cancelled.
func bindDeadline(ctx context.Context, conn *websocket.Conn) (stop func() bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)
	return context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
		_ = conn.SetWriteDeadline(time.Now())
	})
}

// closeConn drops the connection. Caller must hold c.mu.
func (c *WSClient) closeConn() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
}

// Close closes the connection, if open.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}
