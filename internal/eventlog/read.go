package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/monitor"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterSwitch  TypeFilter = "switch"
	FilterConfirm TypeFilter = "confirm"
	FilterHealth  TypeFilter = "health"
)

// ParseFilter maps a query value to a TypeFilter.
func ParseFilter(s string) (TypeFilter, bool) {
	switch f := TypeFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterAll, FilterSwitch, FilterConfirm, FilterHealth:
		return f, true
	default:
		return FilterAll, false
	}
}

// Matches reports whether t passes the filter.
func (f TypeFilter) Matches(t EventType) bool {
	switch f {
	case FilterSwitch:
		return IsSwitchEvent(t)
	case FilterConfirm:
		return t == monitor.EventConfirmStarted || t == monitor.EventConfirmCancelled
	case FilterHealth:
		return t == monitor.EventSamplerDegraded || t == monitor.EventSamplerRecovered
	default:
		return true
	}
}

// IsSwitchEvent reports whether t records a switch command.
func IsSwitchEvent(t EventType) bool {
	return t == monitor.EventSwitchOn || t == monitor.EventSwitchOff || t == monitor.EventActuatorFailed
}

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast reads events from the log file with pagination support.
// Events are returned newest first; hasMore reports whether older matching
// events exist beyond the page.
func ReadLast(filePath string, n, offset int, filter TypeFilter) (events []Event, hasMore bool, err error) {
	n = min(n, MaxReadLimit)
	offset = max(offset, 0)
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events = make([]Event, 0, n)
	skipped := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !filter.Matches(event.Type) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) == n {
			return events, true, nil
		}
		events = append(events, event)
	}

	return events, false, nil
}

// RotatedFiles lists rotated event logs next to the active file at
// filePath, oldest first.
func RotatedFiles(filePath string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(filePath), rotatedPrefix+"*"+rotatedExt))
	if err != nil {
		return nil, err
	}

	rotated := matches[:0]
	for _, m := range matches {
		if _, ok := util.ExtractDateFromFilename(filepath.Base(m)); ok {
			rotated = append(rotated, m)
		}
	}
	slices.Sort(rotated)
	return rotated, nil
}
