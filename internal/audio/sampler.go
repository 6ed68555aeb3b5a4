package audio

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// captureStopTimeout is how long a capture process gets to exit after the
// graceful signal before it is killed.
const captureStopTimeout = 2 * time.Second

// Capture runs the platform capture command and answers activity samples
// from the PCM it produces.
type Capture struct {
	command   string
	args      []string
	device    string
	threshold float64
	stall     time.Duration
	backoff   *util.Backoff
	window    PeakWindow
	now       func() time.Time

	mu         sync.RWMutex
	status     types.CaptureStatus
	levels     types.AudioLevels
	startTime  time.Time
	firstBlock bool
}

// NewCapture resolves the capture command for device.
//
// It returns ErrCaptureUnavailable when the binary cannot be found;
// callers run degraded with an Unavailable sampler in that case.
func NewCapture(device, capturePath string, threshold float64, checkInterval time.Duration) (*Capture, error) {
	command := util.ResolveCommand(capturePath, CaptureCommandName())
	if command == "" {
		return nil, fmt.Errorf("%w: %s", ErrCaptureUnavailable, cmp.Or(capturePath, CaptureCommandName()))
	}

	cmdName, args, err := BuildCaptureCommand(device, command)
	if err != nil {
		return nil, err
	}

	return newCapture(cmdName, args, device, threshold, checkInterval), nil
}

func newCapture(command string, args []string, device string, threshold float64, checkInterval time.Duration) *Capture {
	return &Capture{
		command:   command,
		args:      args,
		device:    device,
		threshold: threshold,
		stall:     StallTimeout(checkInterval),
		backoff:   util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay),
		now:       time.Now,
		status: types.CaptureStatus{
			State:   types.ProcessStopped,
			Command: command,
			Device:  device,
		},
		levels: silentLevels(),
	}
}

// StallTimeout is how long the sampler accepts no PCM before it reports
// ErrCaptureStalled.
func StallTimeout(checkInterval time.Duration) time.Duration {
	return 2 * max(checkInterval, time.Second)
}

// Sample reports whether the highest peak since the previous call is above
// the threshold.
func (c *Capture) Sample(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.RLock()
	started := c.firstBlock
	last := c.status.LastBlockAt
	c.mu.RUnlock()

	if !started {
		return false, ErrCaptureNotRunning
	}
	if idle := c.now().Sub(last); idle > c.stall {
		return false, fmt.Errorf("%w: no audio for %s", ErrCaptureStalled, idle.Round(time.Millisecond))
	}

	peak, _, _ := c.window.Take()
	return peak > c.threshold, nil
}

// Run keeps the capture process running until ctx is cancelled,
// restarting it with exponential backoff.
func (c *Capture) Run(ctx context.Context) error {
	defer c.setState(types.ProcessStopped, "")

	for {
		c.setState(types.ProcessStarting, "")
		started := c.now()

		stderr, err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		errMsg := stderr
		if errMsg == "" && err != nil {
			errMsg = err.Error()
		}
		if errMsg == "" {
			errMsg = "capture process exited"
		}

		retries := c.recordExit(c.now().Sub(started), errMsg)
		delay := c.backoff.Next()
		slog.Warn("audio capture stopped, restarting",
			"command", c.command, "error", errMsg, "delay", delay, "attempt", retries)

		if err := util.SleepContext(ctx, delay); err != nil {
			return nil
		}
	}
}

// recordExit updates retry bookkeeping after the process ended.
func (c *Capture) recordExit(ran time.Duration, errMsg string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ran >= types.SuccessThreshold {
		c.status.RetryCount = 0
		c.backoff.Reset()
	}
	c.status.RetryCount++
	c.status.State = types.ProcessError
	c.status.Error = errMsg
	return c.status.RetryCount
}

// runOnce executes the capture process until it exits.
func (c *Capture) runOnce(ctx context.Context) (string, error) {
	slog.Info("starting audio capture", "command", c.command, "args", c.args)

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = captureStopTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.startTime = c.now()
	c.status.State = types.ProcessRunning
	c.status.Error = ""
	c.mu.Unlock()

	readErr := c.consume(stdout)
	waitErr := cmd.Wait()

	return util.ExtractLastError(stderrBuf.String()), errors.Join(waitErr, readErr)
}

// consume meters r in BlockBytes blocks until it ends.
func (c *Capture) consume(r io.Reader) error {
	buf := make([]byte, BlockBytes)
	var data LevelData

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			data.Reset()
			ProcessSamples(buf, n, &data)
			c.observe(&data)
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.ErrClosedPipe):
			return nil
		default:
			return err
		}
	}
}

// observe records one metering block.
func (c *Capture) observe(data *LevelData) {
	now := c.now()
	peak := data.LinearPeak()
	c.window.Observe(peak, now)

	levels := CalculateLevels(data)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.firstBlock = true
	c.status.LastBlockAt = now
	c.levels = types.AudioLevels{
		Left:      levels.RMSLeft,
		Right:     levels.RMSRight,
		PeakLeft:  levels.PeakLeft,
		PeakRight: levels.PeakRight,
		Peak:      peak,
		Active:    peak > c.threshold,
		ClipLeft:  levels.ClipLeft,
		ClipRight: levels.ClipRight,
	}
}

func (c *Capture) setState(state types.ProcessState, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.State = state
	if errMsg != "" {
		c.status.Error = errMsg
	}
	if state == types.ProcessStopped {
		c.levels = silentLevels()
	}
}

// Status returns the capture process status.
func (c *Capture) Status() types.CaptureStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status := c.status
	if status.State == types.ProcessRunning && !c.startTime.IsZero() {
		status.Uptime = util.FormatDuration(c.now().Sub(c.startTime))
	}
	return status
}

// Levels returns the most recent block's levels.
func (c *Capture) Levels() types.AudioLevels {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.levels
}

func silentLevels() types.AudioLevels {
	return types.AudioLevels{Left: MinDB, Right: MinDB, PeakLeft: MinDB, PeakRight: MinDB}
}

// Unavailable is the sampler used when capture cannot start at all.
// Every sample fails, so the monitor reports degraded health.
type Unavailable struct {
	Err error
}

// Sample always returns u.Err.
func (u Unavailable) Sample(context.Context) (bool, error) {
	return false, u.Err
}

// Status reports the capture as unavailable.
func (u Unavailable) Status() types.CaptureStatus {
	return types.CaptureStatus{State: types.ProcessUnavailable, Error: u.Err.Error()}
}

// Levels returns silent levels.
func (u Unavailable) Levels() types.AudioLevels {
	return silentLevels()
}
