//go:build linux

package audio

import (
	"regexp"
	"strconv"
	"strings"
)

// defaultMonitor is the PulseAudio/PipeWire alias for the monitor of the
// current default output.
const defaultMonitor = "@DEFAULT_MONITOR@"

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "parec",
		DefaultDevice: defaultMonitor,
		PreferDevice: func(d Device) bool {
			return strings.HasSuffix(d.ID, ".monitor")
		},
		BuildArgs: buildLinuxArgs,
		DeviceList: DeviceListConfig{
			Command:       []string{"pactl", "list", "short", "sources"},
			DevicePattern: regexp.MustCompile(`^\d+\s+(\S+)\s+\S+\s+(\S+ \d+ch \d+Hz)`),
			ParseDevice: func(matches []string) *Device {
				if len(matches) < 3 {
					return nil
				}
				return &Device{
					ID:   matches[1],
					Name: matches[1] + " (" + matches[2] + ")",
				}
			},
			FallbackDevices: []Device{
				{ID: defaultMonitor, Name: "Default output monitor"},
			},
		},
	}
}

func buildLinuxArgs(device string) []string {
	return []string{
		"--device=" + device,
		"--format=s16le",
		"--rate=" + strconv.Itoa(SampleRate),
		"--channels=" + strconv.Itoa(Channels),
		"--latency-msec=100",
		"--raw",
	}
}
