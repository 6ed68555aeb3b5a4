package eventlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/monitor"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/playback"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "logs", "events.jsonl"))
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLogAssignsIDAndTimestamp(t *testing.T) {
	is := is.New(t)
	l := newTestLogger(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	ev := &Event{Type: monitor.EventSwitchOn, State: playback.StateActive}
	is.NoErr(l.Log(ev))
	is.True(ev.ID != "")
	is.Equal(ev.Timestamp, fixed)

	events, more, err := ReadLast(l.Path(), 10, 0, FilterAll)
	is.NoErr(err)
	is.True(!more)
	is.Equal(len(events), 1)
	is.Equal(events[0].ID, ev.ID)
	is.Equal(events[0].State, playback.StateActive)
}

func TestObserve(t *testing.T) {
	is := is.New(t)
	l := newTestLogger(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	l.Observe(monitor.Event{Type: monitor.EventSample, Time: at, Active: true})
	l.Observe(monitor.Event{
		Type:      monitor.EventConfirmStarted,
		Time:      at,
		State:     playback.StateConfirmingSilence,
		Excursion: "exc-1",
	})
	l.Observe(monitor.Event{
		Type:      monitor.EventSwitchOff,
		Time:      at.Add(15 * time.Second),
		State:     playback.StateInactive,
		Action:    playback.ActionTurnOff,
		Excursion: "exc-1",
		Err:       errors.New("boom"),
		Elapsed:   250 * time.Millisecond,
	})

	events, _, err := ReadLast(l.Path(), 10, 0, FilterAll)
	is.NoErr(err)
	is.Equal(len(events), 2) // sample not persisted

	off := events[0]
	is.Equal(off.Type, monitor.EventSwitchOff)
	is.Equal(off.Action, playback.ActionTurnOff)
	is.Equal(off.Excursion, "exc-1")
	is.Equal(off.Message, "speakers switched off")
	is.True(off.Details != nil)
	is.Equal(off.Details.Error, "boom")
	is.Equal(off.Details.ElapsedMs, int64(250))

	started := events[1]
	is.Equal(started.Type, monitor.EventConfirmStarted)
	is.Equal(started.Excursion, off.Excursion)
	is.Equal(started.Details, nil)
}

func TestReadLastPagination(t *testing.T) {
	is := is.New(t)
	l := newTestLogger(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	types := []EventType{
		monitor.EventSwitchOn,
		monitor.EventConfirmStarted,
		monitor.EventConfirmCancelled,
		monitor.EventConfirmStarted,
		monitor.EventSwitchOff,
		monitor.EventSamplerDegraded,
		monitor.EventSamplerRecovered,
	}
	for i, typ := range types {
		is.NoErr(l.Log(&Event{Type: typ, Timestamp: base.Add(time.Duration(i) * time.Minute)}))
	}

	events, more, err := ReadLast(l.Path(), 3, 0, FilterAll)
	is.NoErr(err)
	is.True(more)
	is.Equal(len(events), 3)
	is.Equal(events[0].Type, monitor.EventSamplerRecovered)
	is.Equal(events[2].Type, monitor.EventSwitchOff)

	events, more, err = ReadLast(l.Path(), 3, 6, FilterAll)
	is.NoErr(err)
	is.True(!more)
	is.Equal(len(events), 1)
	is.Equal(events[0].Type, monitor.EventSwitchOn)

	events, more, err = ReadLast(l.Path(), 1, 0, FilterSwitch)
	is.NoErr(err)
	is.True(more)
	is.Equal(events[0].Type, monitor.EventSwitchOff)

	events, _, err = ReadLast(l.Path(), 10, 0, FilterConfirm)
	is.NoErr(err)
	is.Equal(len(events), 3)

	events, _, err = ReadLast(l.Path(), 10, 0, FilterHealth)
	is.NoErr(err)
	is.Equal(len(events), 2)
}

func TestReadLastEdgeCases(t *testing.T) {
	is := is.New(t)

	events, more, err := ReadLast(filepath.Join(t.TempDir(), "missing.jsonl"), 10, 0, FilterAll)
	is.NoErr(err)
	is.True(!more)
	is.Equal(len(events), 0)

	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"id":"a","type":"switch_on","state":"active"}` + "\n" +
		"not json\n" +
		`{"id":"b","type":"switch_off","state":"inactive","action":"turn_off"}` + "\n"
	is.NoErr(os.WriteFile(path, []byte(content), 0o644))

	events, _, err = ReadLast(path, 10, 0, FilterAll)
	is.NoErr(err)
	is.Equal(len(events), 2)
	is.Equal(events[0].ID, "b")

	events, _, err = ReadLast(path, 0, 0, FilterAll)
	is.NoErr(err)
	is.Equal(len(events), 0)
}

func TestParseFilter(t *testing.T) {
	is := is.New(t)
	for in, want := range map[string]TypeFilter{
		"":        FilterAll,
		"switch":  FilterSwitch,
		" Health": FilterHealth,
		"confirm": FilterConfirm,
	} {
		got, ok := ParseFilter(in)
		is.True(ok)
		is.Equal(got, want)
	}
	_, ok := ParseFilter("stream")
	is.True(!ok)
}

func TestDailyRotation(t *testing.T) {
	is := is.New(t)
	l := newTestLogger(t)

	var rotated []string
	l.OnRotate(func(path string) { rotated = append(rotated, path) })

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Minute)

	is.NoErr(l.Log(&Event{Type: monitor.EventSwitchOn, Timestamp: day1}))
	is.NoErr(l.Log(&Event{Type: monitor.EventConfirmStarted, Timestamp: day1.Add(30 * time.Second)}))
	is.NoErr(l.Log(&Event{Type: monitor.EventSwitchOff, Timestamp: day2}))

	is.Equal(len(rotated), 1)
	is.Equal(filepath.Base(rotated[0]), "events-2026-03-01.jsonl")

	old, _, err := ReadLast(rotated[0], 10, 0, FilterAll)
	is.NoErr(err)
	is.Equal(len(old), 2)

	current, _, err := ReadLast(l.Path(), 10, 0, FilterAll)
	is.NoErr(err)
	is.Equal(len(current), 1)
	is.Equal(current[0].Type, monitor.EventSwitchOff)

	files, err := RotatedFiles(l.Path())
	is.NoErr(err)
	is.Equal(files, rotated)
}

func TestRotationNameCollision(t *testing.T) {
	is := is.New(t)
	l := newTestLogger(t)
	dir := filepath.Dir(l.Path())
	is.NoErr(os.WriteFile(filepath.Join(dir, "events-2026-03-01.jsonl"), []byte("{}\n"), 0o644))

	is.NoErr(l.Log(&Event{Type: monitor.EventSwitchOn, Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}))
	is.NoErr(l.Log(&Event{Type: monitor.EventSwitchOff, Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}))

	files, err := RotatedFiles(l.Path())
	is.NoErr(err)
	is.Equal(len(files), 2)
	is.True(strings.HasSuffix(files[0], "events-2026-03-01-1.jsonl"))
	is.True(strings.HasSuffix(files[1], "events-2026-03-01.jsonl"))
}

func TestLogAfterClose(t *testing.T) {
	is := is.New(t)
	l := newTestLogger(t)
	is.NoErr(l.Close())
	is.True(errors.Is(l.Log(&Event{Type: monitor.EventSwitchOn}), os.ErrClosed))
	is.NoErr(l.Close())
}
