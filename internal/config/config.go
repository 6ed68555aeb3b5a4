// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultDomain              = "switch"
	DefaultTransport           = TransportREST
	DefaultTimeoutMs           = 10000
	DefaultMaxRetries          = 2
	DefaultThreshold           = 0.001
	DefaultCheckIntervalMs     = 1000
	DefaultSilenceDelaySeconds = 15
	DefaultStartupState        = StartupOff
	DefaultWebPort             = 8088
	DefaultWebBind             = "127.0.0.1"
	DefaultZabbixPort          = 10051
)

// Transport values for HomeAssistantConfig.Transport.
const (
	TransportREST      = "rest"
	TransportWebSocket = "websocket"
)

// Startup state values for AudioConfig.StartupState.
const (
	StartupOff  = "off"
	StartupNone = "none"
)

// ErrActuatorNotConfigured is returned by RequireActuator when the Home
// Assistant connection is incomplete.
var ErrActuatorNotConfigured = errors.New("home assistant is not configured")

// HomeAssistantConfig holds the switch actuator settings.
type HomeAssistantConfig struct {
	BaseURL    string `json:"base_url" validate:"omitempty,url"`                               // e.g. http://homeassistant.local:8123
	Token      string `json:"token" validate:"omitempty,max=1024"`                             // Long-lived access token
	EntityID   string `json:"entity_id" validate:"omitempty,max=255,contains=."`               // e.g. switch.speakers
	Domain     string `json:"domain" validate:"required,oneof=switch light input_boolean fan"` // Service domain
	Transport  string `json:"transport" validate:"required,oneof=rest websocket"`              // API transport
	TimeoutMs  int    `json:"timeout_ms" validate:"gte=500,lte=120000"`                        // Per-call timeout
	MaxRetries int    `json:"max_retries" validate:"gte=0,lte=10"`                             // Retries on transient failures
	Discover   bool   `json:"discover"`                                                        // mDNS lookup when base_url is empty
}

// AudioConfig holds playback detection settings.
type AudioConfig struct {
	Device              string  `json:"device"`                                          // Capture device (empty = default monitor)
	CapturePath         string  `json:"capture_path"`                                    // Capture binary (empty = PATH lookup)
	Threshold           float64 `json:"threshold" validate:"gt=0,lte=1"`                 // Linear peak counted as playing
	CheckIntervalMs     int     `json:"check_interval_ms" validate:"gte=1,lte=60000"`    // Outer poll interval
	SilenceDelaySeconds int     `json:"silence_delay_seconds" validate:"gte=0,lte=3600"` // Silence confirmation window
	StartupState        string  `json:"startup_state" validate:"oneof=off none"`         // Switch state forced at startup
}

// WebConfig holds the status server settings.
type WebConfig struct {
	Port int    `json:"port" validate:"gte=0,lte=65535"` // 0 disables the server
	Bind string `json:"bind" validate:"required,ip|hostname"`
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url" validate:"omitempty,url,max=2048"` // Webhook URL for health alerts
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path" validate:"omitempty,max=4096"` // Log file path for health events
}

// ZabbixConfig holds Zabbix trapper settings.
type ZabbixConfig struct {
	Server string `json:"server" validate:"omitempty,max=253"`
	Port   int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
	Host   string `json:"host" validate:"omitempty,max=253"`
	Key    string `json:"key" validate:"omitempty,max=256"`
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`     // Azure AD tenant ID
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`     // App registration client ID
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"` // App registration client secret
	FromAddress  string `json:"from_address" validate:"omitempty,max=254"`  // Shared mailbox sender address
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`   // Comma-separated recipient addresses
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"`
	Log     LogConfig     `json:"log"`
	Zabbix  ZabbixConfig  `json:"zabbix"`
	Email   EmailConfig   `json:"email"`
}

// ArchiveConfig holds S3 settings for rotated event logs.
type ArchiveConfig struct {
	Endpoint        string `json:"endpoint" validate:"omitempty,url"`
	Region          string `json:"region" validate:"omitempty,max=64"`
	Bucket          string `json:"bucket" validate:"omitempty,max=63"`
	AccessKeyID     string `json:"access_key_id" validate:"omitempty,max=128"`
	SecretAccessKey string `json:"secret_access_key" validate:"omitempty,max=256"`
	Prefix          string `json:"prefix" validate:"omitempty,max=512"`
}

// EventLogConfig holds the transition event log settings.
type EventLogConfig struct {
	Path    string        `json:"path" validate:"omitempty,max=4096"` // empty = platform default
	Archive ArchiveConfig `json:"archive"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	HomeAssistant HomeAssistantConfig `json:"home_assistant"`
	Audio         AudioConfig         `json:"audio"`
	Web           WebConfig           `json:"web"`
	Notifications NotificationsConfig `json:"notifications"`
	EventLog      EventLogConfig      `json:"event_log"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
//
// Defaults are set before the file is decoded so an explicit zero in the
// file (web.port 0, silence_delay_seconds 0) is kept.
func New(filePath string) *Config {
	return &Config{
		HomeAssistant: HomeAssistantConfig{
			Domain:     DefaultDomain,
			Transport:  DefaultTransport,
			TimeoutMs:  DefaultTimeoutMs,
			MaxRetries: DefaultMaxRetries,
		},
		Audio: AudioConfig{
			Threshold:           DefaultThreshold,
			CheckIntervalMs:     DefaultCheckIntervalMs,
			SilenceDelaySeconds: DefaultSilenceDelaySeconds,
			StartupState:        DefaultStartupState,
		},
		Web: WebConfig{
			Port: DefaultWebPort,
			Bind: DefaultWebBind,
		},
		filePath: filePath,
	}
}

// DefaultPath returns config.json next to the running binary.
func DefaultPath() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", util.WrapError("get executable path", err)
	}
	return filepath.Join(filepath.Dir(execPath), "config.json"), nil
}

// Path returns the file the configuration is loaded from.
func (c *Config) Path() string {
	return c.filePath
}

// Load reads config from file, creating a default if none exists.
// Environment overrides are applied after the file and are never saved.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	switch {
	case os.IsNotExist(err):
		if err := c.saveLocked(); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("failed to read config: %w", err)
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return util.WrapError("parse config", err)
		}
	}

	if err := applyEnv(c); err != nil {
		return err
	}

	c.applyDefaults()

	return c.validate()
}

// applyDefaults fills fields whose zero value is never valid.
func (c *Config) applyDefaults() {
	ha := &c.HomeAssistant
	if ha.Domain == "" {
		ha.Domain = DefaultDomain
	}
	if ha.Transport == "" {
		ha.Transport = DefaultTransport
	}
	if ha.TimeoutMs == 0 {
		ha.TimeoutMs = DefaultTimeoutMs
	}
	ha.BaseURL = strings.TrimRight(ha.BaseURL, "/")

	if c.Audio.Threshold == 0 {
		c.Audio.Threshold = DefaultThreshold
	}
	if c.Audio.CheckIntervalMs == 0 {
		c.Audio.CheckIntervalMs = DefaultCheckIntervalMs
	}
	if c.Audio.StartupState == "" {
		c.Audio.StartupState = DefaultStartupState
	}

	if c.Web.Bind == "" {
		c.Web.Bind = DefaultWebBind
	}
	if c.Notifications.Zabbix.Server != "" && c.Notifications.Zabbix.Port == 0 {
		c.Notifications.Zabbix.Port = DefaultZabbixPort
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// RequireActuator returns ErrActuatorNotConfigured, wrapped with the
// missing fields, when the monitor cannot drive Home Assistant.
func (c *Config) RequireActuator() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var missing []string
	if c.HomeAssistant.BaseURL == "" && !c.HomeAssistant.Discover {
		missing = append(missing, "home_assistant.base_url")
	}
	if c.HomeAssistant.Token == "" {
		missing = append(missing, "home_assistant.token")
	}
	if c.HomeAssistant.EntityID == "" {
		missing = append(missing, "home_assistant.entity_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s in %s or the environment",
			ErrActuatorNotConfigured, strings.Join(missing, ", "), c.filePath)
	}
	return nil
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// Home Assistant
	BaseURL    string
	Token      string
	EntityID   string
	Domain     string
	Transport  string
	Timeout    time.Duration
	MaxRetries int
	Discover   bool

	// Audio
	Device         string
	CapturePath    string
	Threshold      float64
	CheckInterval  time.Duration
	ConfirmSamples int
	StartupOff     bool

	// Web
	WebPort int
	WebBind string

	// Notifications
	WebhookURL        string
	LogPath           string
	ZabbixServer      string
	ZabbixPort        int
	ZabbixHost        string
	ZabbixKey         string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string

	// Event log
	EventLogPath string
	Archive      types.S3Config
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// Home Assistant
		BaseURL:    c.HomeAssistant.BaseURL,
		Token:      c.HomeAssistant.Token,
		EntityID:   c.HomeAssistant.EntityID,
		Domain:     c.HomeAssistant.Domain,
		Transport:  c.HomeAssistant.Transport,
		Timeout:    time.Duration(c.HomeAssistant.TimeoutMs) * time.Millisecond,
		MaxRetries: c.HomeAssistant.MaxRetries,
		Discover:   c.HomeAssistant.Discover,

		// Audio
		Device:         c.Audio.Device,
		CapturePath:    c.Audio.CapturePath,
		Threshold:      c.Audio.Threshold,
		CheckInterval:  time.Duration(c.Audio.CheckIntervalMs) * time.Millisecond,
		ConfirmSamples: c.Audio.SilenceDelaySeconds,
		StartupOff:     c.Audio.StartupState == StartupOff,

		// Web
		WebPort: c.Web.Port,
		WebBind: c.Web.Bind,

		// Notifications
		WebhookURL:        c.Notifications.Webhook.URL,
		LogPath:           c.Notifications.Log.Path,
		ZabbixServer:      c.Notifications.Zabbix.Server,
		ZabbixPort:        c.Notifications.Zabbix.Port,
		ZabbixHost:        c.Notifications.Zabbix.Host,
		ZabbixKey:         c.Notifications.Zabbix.Key,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,

		// Event log
		EventLogPath: c.EventLog.Path,
		Archive: types.S3Config{
			Endpoint:        c.EventLog.Archive.Endpoint,
			Region:          c.EventLog.Archive.Region,
			Bucket:          c.EventLog.Archive.Bucket,
			AccessKeyID:     c.EventLog.Archive.AccessKeyID,
			SecretAccessKey: c.EventLog.Archive.SecretAccessKey,
			Prefix:          c.EventLog.Archive.Prefix,
		},
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && s.GraphRecipients != ""
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasZabbix reports whether Zabbix trapper notifications are configured.
func (s *Snapshot) HasZabbix() bool {
	return s.ZabbixServer != "" && s.ZabbixHost != "" && s.ZabbixKey != ""
}

// HasArchive reports whether rotated event logs are uploaded to S3.
func (s *Snapshot) HasArchive() bool {
	return s.Archive.Bucket != "" && s.Archive.AccessKeyID != "" && s.Archive.SecretAccessKey != ""
}

// ZabbixConfig returns the Zabbix settings in notifier form.
func (s *Snapshot) ZabbixConfig() types.ZabbixConfig {
	return types.ZabbixConfig{
		Server: s.ZabbixServer,
		Port:   s.ZabbixPort,
		Host:   s.ZabbixHost,
		Key:    s.ZabbixKey,
	}
}
