package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// LogEntry is one line in the notification log file.
type LogEntry struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Source     string `json:"source,omitempty"`
	Failures   int    `json:"consecutive_failures,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"degraded_duration_ms,omitempty"`
}

// AppendLog records alert in the JSON lines file at logPath. An empty path
// is a no-op.
func AppendLog(logPath string, alert Alert) error {
	return appendLogEntry(logPath, &LogEntry{
		Timestamp:  timestampUTC(alert.Time),
		Event:      alert.Event,
		Source:     alert.Source,
		Failures:   alert.Failures,
		Error:      alert.Error,
		DurationMs: alert.Duration.Milliseconds(),
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &LogEntry{
		Timestamp: timestampUTC(time.Now()),
		Event:     EventTest,
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *LogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(append(jsonData, '\n')); err != nil {
		return util.WrapError("write log entry", err)
	}

	return nil
}
