package audio

// PCM format delivered by every capture command.
const (
	SampleRate     = 48000
	Channels       = 2
	BytesPerSample = 2
	BytesPerFrame  = Channels * BytesPerSample
)

// BlockBytes is one metering block: 100ms of S16LE stereo at 48kHz.
const BlockBytes = SampleRate / 10 * BytesPerFrame

// BuildCaptureCommand returns the command and arguments for audio capture.
// If device is empty, it uses the platform default or auto-detects a
// playback monitor. A non-empty command replaces the platform binary.
func BuildCaptureCommand(device, command string) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}

	// Auto-detect if still empty (Windows has no safe default).
	if device == "" {
		device, err = detectDevice(cfg)
		if err != nil {
			return "", nil, err
		}
	}

	if command == "" {
		command = cfg.Command
	}

	return command, cfg.BuildArgs(device), nil
}

// CaptureCommandName returns the platform capture binary name.
func CaptureCommandName() string {
	return getPlatformConfig().Command
}

// detectDevice picks the first device that captures playback, falling
// back to the first device listed.
func detectDevice(cfg CaptureConfig) (string, error) {
	devices := parseDeviceList(cfg.DeviceList)
	if len(devices) == 0 {
		return "", ErrNoAudioDevice
	}
	if cfg.PreferDevice != nil {
		for _, d := range devices {
			if cfg.PreferDevice(d) {
				return d.ID, nil
			}
		}
	}
	return devices[0].ID, nil
}
