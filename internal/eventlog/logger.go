// Package eventlog records speaker switch transitions and sampler health
// events in a JSON lines file that rotates daily.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/monitor"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/playback"
)

// EventType mirrors the monitor event types that are persisted.
type EventType = monitor.EventType

// Event is a single log entry.
type Event struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"ts"`
	Type      EventType       `json:"type"`
	Excursion string          `json:"excursion,omitempty"`
	State     playback.State  `json:"state"`
	Action    playback.Action `json:"action,omitzero"`
	Message   string          `json:"msg,omitempty"`
	Details   *Details        `json:"details,omitempty"`
}

// Details carries the type-specific fields of an event.
type Details struct {
	Error     string `json:"error,omitempty"`
	Failures  int    `json:"failures,omitempty"`
	Startup   bool   `json:"startup,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
}

// rotatedPrefix and rotatedExt name rotated files: events-YYYY-MM-DD.jsonl.
const (
	rotatedPrefix = "events-"
	rotatedExt    = ".jsonl"
)

// Logger writes events to a JSON lines file. At the first event of a new
// UTC day the current file is renamed to events-YYYY-MM-DD.jsonl for the
// day it holds.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
	day      string
	now      func() time.Time
	onRotate func(path string)
}

// DefaultLogPath returns the platform-specific event log path.
func DefaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "speakerswitch", "logs", "events.jsonl")
	default:
		//nolint:gocritic // Intentional absolute path for Unix systems
		return filepath.Join("/var/log/speakerswitch", "events.jsonl")
	}
}

// NewLogger opens (or creates) the event log at filePath.
func NewLogger(filePath string) (*Logger, error) {
	l := &Logger{filePath: filePath, now: time.Now}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := l.open(); err != nil {
		return nil, err
	}

	// An existing file belongs to the day it was last written.
	if info, err := l.file.Stat(); err == nil && info.Size() > 0 {
		l.day = dayOf(info.ModTime())
	}
	return l, nil
}

// OnRotate registers fn to receive the path of every rotated file. fn runs
// with the logger lock held and must not block.
func (l *Logger) OnRotate(fn func(path string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRotate = fn
}

func (l *Logger) open() error {
	file, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// Log writes an event, assigning an id and timestamp when missing.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	day := dayOf(event.Timestamp)
	if l.day != "" && day != l.day {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}
	l.day = day

	return l.encoder.Encode(event)
}

// rotateLocked renames the current file after the day it holds and opens a
// fresh one. A name collision gets a numeric suffix.
func (l *Logger) rotateLocked() error {
	if err := l.file.Close(); err != nil {
		slog.Warn("failed to close event log before rotation", "error", err)
	}
	l.file = nil

	dir := filepath.Dir(l.filePath)
	target := filepath.Join(dir, rotatedPrefix+l.day+rotatedExt)
	for i := 1; ; i++ {
		if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
			break
		}
		target = filepath.Join(dir, fmt.Sprintf("%s%s-%d%s", rotatedPrefix, l.day, i, rotatedExt))
	}

	renameErr := os.Rename(l.filePath, target)
	if err := l.open(); err != nil {
		return errors.Join(renameErr, err)
	}
	if renameErr != nil {
		return fmt.Errorf("rotate event log: %w", renameErr)
	}

	slog.Info("event log rotated", "file", filepath.Base(target))
	if l.onRotate != nil {
		l.onRotate(target)
	}
	return nil
}

// Observe implements monitor.Observer. Sample events are not persisted.
func (l *Logger) Observe(e monitor.Event) {
	if e.Type == monitor.EventSample {
		return
	}
	if err := l.Log(fromMonitor(e)); err != nil {
		slog.Warn("failed to write event log", "type", e.Type, "error", err)
	}
}

func fromMonitor(e monitor.Event) *Event {
	ev := &Event{
		Timestamp: e.Time,
		Type:      e.Type,
		Excursion: e.Excursion,
		State:     e.State,
		Action:    e.Action,
		Message:   describe(e),
	}

	d := Details{
		Failures:  e.Failures,
		Startup:   e.Startup,
		ElapsedMs: e.Elapsed.Milliseconds(),
	}
	if e.Err != nil {
		d.Error = e.Err.Error()
	}
	if d != (Details{}) {
		ev.Details = &d
	}
	return ev
}

func describe(e monitor.Event) string {
	switch e.Type {
	case monitor.EventSwitchOn:
		return "speakers switched on"
	case monitor.EventSwitchOff:
		if e.Startup {
			return "speakers re-affirmed off at startup"
		}
		return "speakers switched off"
	case monitor.EventConfirmStarted:
		return "audio stopped, confirming silence"
	case monitor.EventConfirmCancelled:
		return "audio resumed before switch-off"
	case monitor.EventActuatorFailed:
		return "switch command failed"
	case monitor.EventSamplerDegraded:
		return "audio sampler degraded"
	case monitor.EventSamplerRecovered:
		return "audio sampler recovered"
	default:
		return ""
	}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the path to the active log file.
func (l *Logger) Path() string {
	return l.filePath
}

func dayOf(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
