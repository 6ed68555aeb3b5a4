package monitor

import (
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/playback"
)

// Status is a point-in-time copy of the loop state for readers outside the
// loop goroutine.
type Status struct {
	Running             bool            `json:"running"`
	State               playback.State  `json:"state"`
	SilentSamples       int             `json:"silent_samples"`
	ConfirmSamples      int             `json:"confirm_samples"`
	Excursion           string          `json:"excursion,omitempty"`
	LastSample          bool            `json:"last_sample"`
	LastSampleAt        time.Time       `json:"last_sample_at,omitzero"`
	LastAction          playback.Action `json:"last_action"`
	LastTransitionAt    time.Time       `json:"last_transition_at,omitzero"`
	SwitchOnCount       int64           `json:"switch_on_count"`
	SwitchOffCount      int64           `json:"switch_off_count"`
	ActuatorFailures    int64           `json:"actuator_failures"`
	LastActuatorError   string          `json:"last_actuator_error,omitempty"`
	SamplerFailures     int64           `json:"sampler_failures"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastSamplerError    string          `json:"last_sampler_error,omitempty"`
	Degraded            bool            `json:"degraded"`
	StartedAt           time.Time       `json:"started_at,omitzero"`
}
