// Package types provides shared type definitions used across speakerswitch.
package types

import (
	"time"
)

// ProcessState represents the state of the audio capture process.
type ProcessState string

const (
	// ProcessStopped indicates the process is not running.
	ProcessStopped ProcessState = "stopped"
	// ProcessStarting indicates the process is initializing.
	ProcessStarting ProcessState = "starting"
	// ProcessRunning indicates the process is delivering audio.
	ProcessRunning ProcessState = "running"
	// ProcessUnavailable indicates the capture binary was not found.
	ProcessUnavailable ProcessState = "unavailable"
	// ProcessError indicates the process failed and is waiting to restart.
	ProcessError ProcessState = "error"
)

const (
	// InitialRetryDelay is the starting delay between capture restarts.
	InitialRetryDelay = 1000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between capture restarts.
	MaxRetryDelay = 30000 * time.Millisecond
	// SuccessThreshold is the run time after which the restart backoff resets.
	SuccessThreshold = 30000 * time.Millisecond
)

// CaptureStatus contains runtime status for the capture process.
type CaptureStatus struct {
	State       ProcessState `json:"state"`                  // Current process state
	Command     string       `json:"command,omitempty"`      // Capture binary in use
	Device      string       `json:"device,omitempty"`       // Capture device
	RetryCount  int          `json:"retry_count,omitempty"`  // Restarts since the last stable run
	Error       string       `json:"error,omitempty"`        // Most recent error
	LastBlockAt time.Time    `json:"last_block_at,omitzero"` // Time the last PCM block arrived
	Uptime      string       `json:"uptime,omitzero"`        // Time since the current process started
}

// AudioLevels contains current audio level measurements.
type AudioLevels struct {
	Left      float64 `json:"left"`       // RMS level in dB
	Right     float64 `json:"right"`      // RMS level in dB
	PeakLeft  float64 `json:"peak_left"`  // Peak level in dB
	PeakRight float64 `json:"peak_right"` // Peak level in dB
	Peak      float64 `json:"peak"`       // Linear peak 0..1 over both channels
	Active    bool    `json:"active"`     // Peak above the activity threshold
	ClipLeft  int     `json:"clip_left,omitzero"`
	ClipRight int     `json:"clip_right,omitzero"`
}

// AudioDevice represents an available capture device.
type AudioDevice struct {
	ID   string `json:"id"`   // Device identifier
	Name string `json:"name"` // Device display name
}

// GraphConfig contains Microsoft Graph API settings for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// ZabbixConfig contains settings for sending trapper items to a Zabbix server.
type ZabbixConfig struct {
	Server    string `json:"server,omitempty"`
	Port      int    `json:"port,omitempty"`
	Host      string `json:"host,omitempty"`
	Key       string `json:"key,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// S3Config contains settings for an S3-compatible bucket.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty"`          // Custom endpoint (empty = AWS)
	Region          string `json:"region,omitempty"`            // Bucket region (empty = auto)
	Bucket          string `json:"bucket,omitempty"`            // Bucket name
	AccessKeyID     string `json:"access_key_id,omitempty"`     // Access key
	SecretAccessKey string `json:"secret_access_key,omitempty"` // Secret key
	Prefix          string `json:"prefix,omitempty"`            // Object key prefix
}

// SecretExpiryInfo contains client secret expiration data.
type SecretExpiryInfo struct {
	ExpiresAt   string `json:"expires_at,omitempty"`   // RFC3339 expiration timestamp
	ExpiresSoon bool   `json:"expires_soon,omitempty"` // True if expires within 30 days
	DaysLeft    int    `json:"days_left,omitempty"`    // Days until expiration
	Error       string `json:"error,omitempty"`        // Error message if check failed
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
