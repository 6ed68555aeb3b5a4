// Package playback turns a noisy "is audio playing" sample stream into a
// stable on/off signal.
//
// A drop to silence has to persist for a number of consecutive samples
// before the off-action is committed. Resumed activity cancels a pending
// off-action immediately; there is no matching delay for switching on.
package playback

import "fmt"

// State is the debounced playback state.
type State int

const (
	// StateInactive means no audio is playing and the speakers are considered off.
	StateInactive State = iota
	// StateConfirmingSilence means audio stopped and the silence is not yet confirmed.
	StateConfirmingSilence
	// StateActive means audio is playing and the speakers are considered on.
	StateActive
)

// String returns the lower-case name used in logs and JSON.
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateConfirmingSilence:
		return "confirming_silence"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for _, v := range []State{StateInactive, StateConfirmingSilence, StateActive} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown playback state %q", text)
}

// Action is the actuator command produced by a state transition.
type Action int

const (
	// ActionNone means no actuator call is needed.
	ActionNone Action = iota
	// ActionTurnOn switches the speakers on.
	ActionTurnOn
	// ActionTurnOff switches the speakers off.
	ActionTurnOff
)

// String returns the lower-case name used in logs and JSON.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionTurnOn:
		return "turn_on"
	case ActionTurnOff:
		return "turn_off"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	for _, v := range []Action{ActionNone, ActionTurnOn, ActionTurnOff} {
		if v.String() == string(text) {
			*a = v
			return nil
		}
	}
	return fmt.Errorf("unknown playback action %q", text)
}

// Debouncer is the playback state machine.
//
// It performs no I/O and is not safe for concurrent use; a single control
// loop owns it.
type Debouncer struct {
	confirmSamples int
	state          State
	silentSamples  int // consecutive silent samples in the current confirmation window
}

// NewDebouncer returns a Debouncer in StateInactive.
//
// confirmSamples is the number of consecutive silent samples, counting the
// one that ended playback, required before ActionTurnOff is emitted.
// Zero or less switches off on the first silent sample.
func NewDebouncer(confirmSamples int) *Debouncer {
	return &Debouncer{confirmSamples: max(confirmSamples, 0)}
}

// OnSample feeds one activity sample and returns the action to perform.
func (d *Debouncer) OnSample(active bool) Action {
	switch d.state {
	case StateInactive:
		if active {
			d.state = StateActive
			return ActionTurnOn
		}
		return ActionNone

	case StateActive:
		if active {
			return ActionNone
		}
		d.state = StateConfirmingSilence
		d.silentSamples = 1
		return d.commitIfConfirmed()

	case StateConfirmingSilence:
		if active {
			// The actuator is still on, so resuming needs no command.
			d.state = StateActive
			d.silentSamples = 0
			return ActionNone
		}
		d.silentSamples++
		return d.commitIfConfirmed()
	}
	return ActionNone
}

// OnMissedSample records a tick for which no sample could be taken.
//
// A missed sample counts as silence while a confirmation window is already
// running, but it never opens one: an active state is held until a real
// silent sample arrives.
func (d *Debouncer) OnMissedSample() Action {
	if d.state != StateConfirmingSilence {
		return ActionNone
	}
	return d.OnSample(false)
}

func (d *Debouncer) commitIfConfirmed() Action {
	if d.silentSamples < d.confirmSamples {
		return ActionNone
	}
	d.state = StateInactive
	d.silentSamples = 0
	return ActionTurnOff
}

// State returns the current state.
func (d *Debouncer) State() State {
	return d.state
}

// SilentSamples returns how many consecutive silent samples the current
// confirmation window has seen. It is zero outside StateConfirmingSilence.
func (d *Debouncer) SilentSamples() int {
	return d.silentSamples
}

// ConfirmSamples returns the configured confirmation length.
func (d *Debouncer) ConfirmSamples() int {
	return d.confirmSamples
}

// Reset returns the debouncer to StateInactive.
func (d *Debouncer) Reset() {
	d.state = StateInactive
	d.silentSamples = 0
}
