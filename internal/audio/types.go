package audio

import "errors"

// Sampler errors. ErrCaptureNotRunning and ErrCaptureStalled are transient;
// ErrCaptureUnavailable means no capture binary exists on this host.
var (
	ErrNoAudioDevice      = errors.New("no audio capture device found")
	ErrCaptureUnavailable = errors.New("audio capture command not available")
	ErrCaptureNotRunning  = errors.New("audio capture has not delivered audio yet")
	ErrCaptureStalled     = errors.New("audio capture stalled")
)

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// Command is the executable name (e.g., "parec", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// PreferDevice reports whether an auto-detected device captures
	// playback (a monitor or loopback device).
	PreferDevice func(d Device) bool

	// BuildArgs returns the command arguments for audio capture.
	// The device parameter is the capture device identifier.
	BuildArgs func(device string) []string

	// DeviceList describes how to enumerate capture devices.
	DeviceList DeviceListConfig
}

// Device represents an available audio capture device.
type Device struct {
	// ID is the device identifier.
	ID string `json:"id"`
	// Name is the device display name.
	Name string `json:"name"`
}
