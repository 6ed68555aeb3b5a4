package clip

import (
	"context"
	"errors"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/playback"
)

// Transition is one debouncer state change during a simulation.
type Transition struct {
	Offset time.Duration   `json:"offset"`
	Peak   float64         `json:"peak"`
	From   playback.State  `json:"from"`
	To     playback.State  `json:"to"`
	Action playback.Action `json:"action"`
}

// Result summarizes a simulation run.
type Result struct {
	Transitions []Transition   `json:"transitions"`
	Ticks       int            `json:"ticks"`
	SwitchOns   int            `json:"switch_ons"`
	SwitchOffs  int            `json:"switch_offs"`
	OnTime      time.Duration  `json:"on_time"`
	FinalState  playback.State `json:"final_state"`
}

// Simulate replays env through a Sampler and a debouncer on a virtual
// clock until the clip ends. The speakers are assumed off at offset zero.
// It fails only when ctx is cancelled.
func Simulate(ctx context.Context, env *Envelope, threshold float64, confirmSamples int) (Result, error) {
	sampler := NewSampler(env, threshold)
	deb := playback.NewDebouncer(confirmSamples)
	var res Result
	var onSince time.Duration
	speakersOn := false

	for {
		offset := sampler.Offset()
		active, err := sampler.Sample(ctx)
		if errors.Is(err, ErrClipEnded) {
			break
		}
		if err != nil {
			return res, err
		}
		peak := env.Peaks[res.Ticks]

		from := deb.State()
		action := deb.OnSample(active)
		to := deb.State()
		res.Ticks++

		switch action {
		case playback.ActionTurnOn:
			res.SwitchOns++
			speakersOn = true
			onSince = offset
		case playback.ActionTurnOff:
			res.SwitchOffs++
			if speakersOn {
				res.OnTime += offset - onSince
			}
			speakersOn = false
		}

		if from != to || action != playback.ActionNone {
			res.Transitions = append(res.Transitions, Transition{
				Offset: offset,
				Peak:   peak,
				From:   from,
				To:     to,
				Action: action,
			})
		}
	}

	if speakersOn {
		res.OnTime += sampler.Offset() - onSince
	}
	res.FinalState = deb.State()
	return res, nil
}
