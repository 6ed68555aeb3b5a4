// Package homeassistant switches a Home Assistant entity on and off over the
// REST or WebSocket API.
package homeassistant

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service names called on the entity's domain.
const (
	ServiceTurnOn  = "turn_on"
	ServiceTurnOff = "turn_off"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultDomain    = "switch"
	DefaultTimeout   = 10 * time.Second
	DefaultRetryWait = 500 * time.Millisecond
	maxRetryWait     = 5 * time.Second
	maxErrorBody     = 512
)

// ErrUnauthorized is returned when Home Assistant rejects the access token.
// It is never retried.
var ErrUnauthorized = errors.New("home assistant rejected the access token")

// Options configures a client.
type Options struct {
	BaseURL    string        // e.g. http://homeassistant.local:8123
	Token      string        // Long-lived access token
	EntityID   string        // e.g. switch.speakers
	Domain     string        // Service domain, default "switch"
	Timeout    time.Duration // Per-attempt timeout
	MaxRetries int           // Retries after the first attempt
	RetryWait  time.Duration // First retry delay, doubled per attempt
}

func (o Options) withDefaults() Options {
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	o.Domain = cmp.Or(o.Domain, DefaultDomain)
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryWait <= 0 {
		o.RetryWait = DefaultRetryWait
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	return o
}

// ServiceName returns "domain.service" for logs.
func (o Options) ServiceName(service string) string {
	return o.Domain + "." + service
}

// StatusError is a non-success HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("home assistant returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("home assistant returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// EntityState is the state object of one entity.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// IsOn reports whether the entity state is "on".
func (s *EntityState) IsOn() bool {
	return s.State == "on"
}

// FriendlyName returns the friendly_name attribute, or the entity id.
func (s *EntityState) FriendlyName() string {
	if name, ok := s.Attributes["friendly_name"].(string); ok && name != "" {
		return name
	}
	return s.EntityID
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
