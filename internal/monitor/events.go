package monitor

import (
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/playback"
)

// EventType identifies a loop event.
type EventType string

// Event types. Sample events fire on every tick; the rest mark transitions.
const (
	EventSample           EventType = "sample"
	EventSwitchOn         EventType = "switch_on"
	EventSwitchOff        EventType = "switch_off"
	EventConfirmStarted   EventType = "confirm_started"
	EventConfirmCancelled EventType = "confirm_cancelled"
	EventActuatorFailed   EventType = "actuator_failed"
	EventSamplerDegraded  EventType = "sampler_degraded"
	EventSamplerRecovered EventType = "sampler_recovered"
)

// Event describes something the loop did or observed.
type Event struct {
	Type      EventType
	Time      time.Time
	State     playback.State
	Action    playback.Action
	Excursion string // links a confirmation window to its outcome
	Active    bool   // sample value, for EventSample
	Err       error
	Failures  int // consecutive sampler failures
	Startup   bool
	Elapsed   time.Duration // actuator call duration
}

// Observer receives loop events. Observe runs on the loop goroutine and
// must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }
