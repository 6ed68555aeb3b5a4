//go:build windows

package audio

import (
	"regexp"
	"strings"
)

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "ffmpeg",
		DefaultDevice: "", // Auto-detect, no safe default on Windows
		PreferDevice: func(d Device) bool {
			name := strings.ToLower(d.Name)
			return strings.Contains(name, "stereo mix") || strings.Contains(name, "what u hear") ||
				strings.Contains(name, "loopback")
		},
		BuildArgs: buildWindowsArgs,
		DeviceList: DeviceListConfig{
			Command: []string{"ffmpeg", "-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
			// FFmpeg versions differ in section headers, so lines are
			// filtered by their "(audio)" suffix instead.
			DevicePattern: regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*\(audio\)`),
			ParseDevice: func(matches []string) *Device {
				if len(matches) < 2 {
					return nil
				}
				name := strings.TrimSpace(matches[1])
				return &Device{
					ID:   "audio=" + name,
					Name: name,
				}
			},
		},
	}
}

func buildWindowsArgs(device string) []string {
	return buildFFmpegCaptureArgs("dshow", device)
}
