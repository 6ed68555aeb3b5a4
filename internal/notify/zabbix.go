package notify

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// Zabbix protocol constants.
const (
	defaultZabbixTimeout = 5 * time.Second
	zabbixHeaderSize     = 13        // "ZBXD\x01" (5) + uint64 length (8)
	maxReplySize         = 64 * 1024 // 64KB max reply to prevent memory exhaustion
)

// zabbixMagic is the protocol header prefix.
var zabbixMagic = [5]byte{'Z', 'B', 'X', 'D', 0x01}

// Zabbix sender errors.
var (
	ErrZabbixRejected    = errors.New("zabbix rejected data")
	ErrZabbixNoneHandled = errors.New("zabbix processed no items (check host/key config)")
)

type zabbixRequest struct {
	Request string       `json:"request"`
	Data    []zabbixItem `json:"data"`
}

type zabbixItem struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Clock int64  `json:"clock,omitempty"`
}

type zabbixResponse struct {
	Response string `json:"response"`
	Info     string `json:"info"`
}

// encodeZabbixFrame prefixes data with the sender protocol header.
func encodeZabbixFrame(data []byte) []byte {
	frame := make([]byte, zabbixHeaderSize, zabbixHeaderSize+len(data))
	copy(frame[0:5], zabbixMagic[:])
	binary.LittleEndian.PutUint64(frame[5:], uint64(len(data)))
	return append(frame, data...)
}

// readZabbixFrame reads one framed message from r.
func readZabbixFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, zabbixHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, util.WrapError("read zabbix reply header", err)
	}
	if !bytes.Equal(header[0:5], zabbixMagic[:]) {
		return nil, fmt.Errorf("invalid zabbix reply header")
	}

	size := binary.LittleEndian.Uint64(header[5:])
	if size == 0 {
		return nil, fmt.Errorf("empty zabbix reply")
	}
	if size > maxReplySize {
		return nil, fmt.Errorf("zabbix reply too large: %d bytes (max %d)", size, maxReplySize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, util.WrapError("read zabbix reply body", err)
	}
	return body, nil
}

// checkZabbixReply interprets the server's answer.
func checkZabbixReply(body []byte) error {
	var resp zabbixResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return util.WrapError("parse zabbix reply", err)
	}
	if resp.Response == "failed" {
		return fmt.Errorf("%w: %s", ErrZabbixRejected, resp.Info)
	}
	// Host or key unknown to the server.
	if strings.Contains(resp.Info, "processed: 0;") && strings.Contains(resp.Info, "failed: 0;") {
		return ErrZabbixNoneHandled
	}
	return nil
}

// sendZabbixPayload sends a payload to the Zabbix server and checks the reply.
func sendZabbixPayload(ctx context.Context, cfg types.ZabbixConfig, payload zabbixRequest) error {
	timeout := defaultZabbixTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return util.WrapError("connect to zabbix", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return util.WrapError("set deadline", err)
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal zabbix payload", err)
	}
	if _, err := conn.Write(encodeZabbixFrame(data)); err != nil {
		return util.WrapError("write zabbix payload", err)
	}

	reply, err := readZabbixFrame(conn)
	if err != nil {
		return err
	}
	return checkZabbixReply(reply)
}

// sendZabbixValue sends a single trapper value. Missing settings make it a
// no-op.
func sendZabbixValue(ctx context.Context, cfg types.ZabbixConfig, value string, at time.Time) error {
	if !util.IsConfigured(cfg.Server, cfg.Host, cfg.Key) {
		return nil
	}
	item := zabbixItem{Host: cfg.Host, Key: cfg.Key, Value: value}
	if !at.IsZero() {
		item.Clock = at.Unix()
	}
	return sendZabbixPayload(ctx, cfg, zabbixRequest{
		Request: "sender data",
		Data:    []zabbixItem{item},
	})
}

// zabbixValue renders alert as a key=value trapper string.
func zabbixValue(alert Alert) string {
	switch alert.Event {
	case EventDegraded:
		return fmt.Sprintf("event=DEGRADED failures=%d error=%q", alert.Failures, alert.Error)
	case EventRecovered:
		return fmt.Sprintf("event=RECOVERED duration_ms=%d", alert.Duration.Milliseconds())
	default:
		return "event=" + strings.ToUpper(alert.Event)
	}
}

// SendZabbix sends alert as a trapper item.
func SendZabbix(ctx context.Context, cfg types.ZabbixConfig, alert Alert) error {
	return sendZabbixValue(ctx, cfg, zabbixValue(alert), alert.Time)
}

// SendTestZabbix sends a test message to verify Zabbix config.
func SendTestZabbix(ctx context.Context, cfg types.ZabbixConfig) error {
	return sendZabbixValue(ctx, cfg, "event=TEST source=zwfm-speakerswitch", time.Time{})
}
