package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
)

// pcm returns frames of S16LE stereo with alternating sign at amplitude amp.
func pcm(frames int, amp int16) []byte {
	buf := make([]byte, frames*BytesPerFrame)
	for i := range frames {
		v := amp
		if i%2 == 1 {
			v = -amp
		}
		binary.LittleEndian.PutUint16(buf[i*4:], uint16(v))
		binary.LittleEndian.PutUint16(buf[i*4+2:], uint16(v/2))
	}
	return buf
}

func block(amp int16) []byte {
	return pcm(BlockBytes/BytesPerFrame, amp)
}

func TestProcessSamples(t *testing.T) {
	is := is.New(t)
	buf := pcm(100, 16384)

	var data LevelData
	ProcessSamples(buf, len(buf), &data)

	is.Equal(data.SampleCount, 100)
	is.Equal(data.PeakL, 16384.0)
	is.Equal(data.PeakR, 8192.0)
	is.Equal(data.LinearPeak(), 0.5)

	levels := CalculateLevels(&data)
	is.True(levels.PeakLeft > -6.1 && levels.PeakLeft < -6.0)
	is.Equal(levels.ClipLeft, 0)
}

func TestProcessSamplesClipping(t *testing.T) {
	is := is.New(t)
	buf := pcm(10, 32767)

	var data LevelData
	ProcessSamples(buf, len(buf), &data)
	is.Equal(data.ClipCountL, 10)
	is.Equal(data.ClipCountR, 0)
}

func TestCalculateLevelsSilence(t *testing.T) {
	is := is.New(t)
	var data LevelData
	levels := CalculateLevels(&data)
	is.Equal(levels.RMSLeft, MinDB)
	is.Equal(levels.PeakRight, MinDB)

	ProcessSamples(pcm(10, 0), 40, &data)
	levels = CalculateLevels(&data)
	is.Equal(levels.PeakLeft, MinDB) // digital silence is floored, not -Inf
}

func TestPeakWindow(t *testing.T) {
	is := is.New(t)
	var w PeakWindow
	t0 := time.Unix(1000, 0)

	_, _, ok := w.Take()
	is.True(!ok)

	w.Observe(0.2, t0)
	w.Observe(0.7, t0.Add(100*time.Millisecond))
	w.Observe(0.1, t0.Add(200*time.Millisecond))

	peak, at, ok := w.Take()
	is.True(ok)
	is.Equal(peak, 0.7)
	is.Equal(at, t0.Add(100*time.Millisecond))

	peak, at, ok = w.Take()
	is.True(!ok)
	is.Equal(peak, 0.1) // falls back to the latest block
	is.Equal(at, t0.Add(200*time.Millisecond))

	w.Reset()
	peak, _, _ = w.Take()
	is.Equal(peak, 0.0)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCaptureSample(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	clk := &clock{t: time.Unix(5000, 0)}

	c := newCapture("parec", nil, "@DEFAULT_MONITOR@", 0.001, time.Second)
	c.now = clk.now

	_, err := c.Sample(ctx)
	is.True(errors.Is(err, ErrCaptureNotRunning))

	// Loud block then silence: the window keeps the loud peak.
	is.NoErr(c.consume(bytes.NewReader(append(block(3000), block(0)...))))
	active, err := c.Sample(ctx)
	is.NoErr(err)
	is.True(active)

	is.NoErr(c.consume(bytes.NewReader(block(10))))
	active, err = c.Sample(ctx)
	is.NoErr(err)
	is.True(!active) // 10/32768 is below 0.001

	// No new block: the latest block answers.
	clk.advance(time.Second)
	active, err = c.Sample(ctx)
	is.NoErr(err)
	is.True(!active)

	clk.advance(2 * time.Second)
	_, err = c.Sample(ctx)
	is.True(errors.Is(err, ErrCaptureStalled))

	levels := c.Levels()
	is.True(!levels.Active)
	is.True(c.Status().LastBlockAt.Equal(time.Unix(5000, 0)))
}

func TestCaptureSampleCancelled(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newCapture("parec", nil, "", 0.001, time.Second)
	_, err := c.Sample(ctx)
	is.True(errors.Is(err, context.Canceled))
}

func TestCaptureConsumePartialBlock(t *testing.T) {
	is := is.New(t)
	c := newCapture("parec", nil, "", 0.001, time.Second)

	is.NoErr(c.consume(bytes.NewReader(pcm(100, 20000))))
	levels := c.Levels()
	is.True(levels.Active)
	is.True(levels.Peak > 0.6)
}

func TestCaptureRecordExit(t *testing.T) {
	is := is.New(t)
	c := newCapture("parec", nil, "", 0.001, time.Second)

	is.Equal(c.recordExit(time.Second, "connection refused"), 1)
	is.Equal(c.recordExit(time.Second, "connection refused"), 2)
	is.Equal(c.recordExit(time.Minute, "killed"), 1) // a stable run resets the count

	st := c.Status()
	is.Equal(st.State, types.ProcessError)
	is.Equal(st.Error, "killed")
}

func TestStallTimeout(t *testing.T) {
	is := is.New(t)
	is.Equal(StallTimeout(100*time.Millisecond), 2*time.Second)
	is.Equal(StallTimeout(5*time.Second), 10*time.Second)
}

func TestUnavailable(t *testing.T) {
	is := is.New(t)
	u := Unavailable{Err: ErrCaptureUnavailable}
	_, err := u.Sample(context.Background())
	is.True(errors.Is(err, ErrCaptureUnavailable))
	is.Equal(u.Status().State, types.ProcessUnavailable)
}

func TestParseDeviceOutput(t *testing.T) {
	is := is.New(t)

	cfg := DeviceListConfig{
		AudioStartMarker: "audio devices:",
		AudioStopMarker:  "video devices:",
		DevicePattern:    regexp.MustCompile(`\[(\d+)\]\s*(.+)`),
		ParseDevice: func(m []string) *Device {
			return &Device{ID: ":" + m[1], Name: strings.TrimSpace(m[2])}
		},
	}
	output := strings.Join([]string{
		"[0] FaceTime Camera",
		"audio devices:",
		"[0] MacBook Microphone\r",
		"[1] BlackHole 2ch",
		"video devices:",
		"[1] Screen",
	}, "\n")

	devices := parseDeviceOutput(output, cfg)
	is.Equal(devices, []Device{
		{ID: ":0", Name: "MacBook Microphone"},
		{ID: ":1", Name: "BlackHole 2ch"},
	})
}

func TestDetectDevicePrefersMonitor(t *testing.T) {
	is := is.New(t)
	cfg := CaptureConfig{
		PreferDevice: func(d Device) bool { return strings.HasSuffix(d.ID, ".monitor") },
		DeviceList: DeviceListConfig{
			FallbackDevices: []Device{{ID: "mic"}, {ID: "out.monitor"}},
		},
	}
	id, err := detectDevice(cfg)
	is.NoErr(err)
	is.Equal(id, "out.monitor")

	_, err = detectDevice(CaptureConfig{})
	is.True(errors.Is(err, ErrNoAudioDevice))
}
