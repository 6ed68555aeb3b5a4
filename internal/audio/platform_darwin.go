//go:build darwin

package audio

import (
	"regexp"
	"strings"
)

// macOS has no built-in output monitor; a loopback driver such as
// BlackHole has to be installed and selected as a multi-output device.
func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "ffmpeg",
		DefaultDevice: "",
		PreferDevice: func(d Device) bool {
			name := strings.ToLower(d.Name)
			return strings.Contains(name, "blackhole") || strings.Contains(name, "loopback") ||
				strings.Contains(name, "soundflower")
		},
		BuildArgs: buildDarwinArgs,
		DeviceList: DeviceListConfig{
			Command:          []string{"ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
			AudioStartMarker: "AVFoundation audio devices:",
			AudioStopMarker:  "AVFoundation video devices:",
			DevicePattern:    regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
			ParseDevice: func(matches []string) *Device {
				if len(matches) < 3 {
					return nil
				}
				return &Device{
					ID:   ":" + matches[1],
					Name: strings.TrimSpace(matches[2]),
				}
			},
		},
	}
}

func buildDarwinArgs(device string) []string {
	return buildFFmpegCaptureArgs("avfoundation", device)
}
