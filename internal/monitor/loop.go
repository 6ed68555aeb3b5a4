package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/playback"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// Loop polls a Sampler, feeds the Debouncer and calls the Switch.
type Loop struct {
	cfg       Config
	sampler   Sampler
	sw        Switch
	debouncer *playback.Debouncer // owned by the Run goroutine
	observers []Observer
	now       func() time.Time

	mu     sync.RWMutex
	status Status
}

// New returns a Loop. The debouncer starts inactive.
func New(cfg Config, sampler Sampler, sw Switch, observers ...Observer) *Loop {
	cfg = cfg.withDefaults()
	l := &Loop{
		cfg:       cfg,
		sampler:   sampler,
		sw:        sw,
		debouncer: playback.NewDebouncer(cfg.ConfirmSamples),
		observers: observers,
		now:       time.Now,
	}
	l.status.State = playback.StateInactive
	l.status.ConfirmSamples = cfg.ConfirmSamples
	return l
}

// Status returns a copy of the current status. Safe for concurrent use.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Healthy reports whether the sampler is working.
func (l *Loop) Healthy() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.status.Degraded
}

// Run drives the loop until ctx is cancelled. Sampler and actuator errors
// never end it; a cancelled context returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.updateStatus(func(s *Status) {
		s.Running = true
		s.StartedAt = l.now()
	})
	defer l.updateStatus(func(s *Status) { s.Running = false })

	slog.Info("playback monitor started",
		"poll_interval", l.cfg.PollInterval,
		"confirm_samples", l.cfg.ConfirmSamples,
		"confirm_tick", l.cfg.ConfirmTick)

	if l.cfg.ReaffirmOff {
		slog.Info("re-affirming speakers off at startup")
		l.actuate(ctx, playback.ActionTurnOff, "", true)
	}

	for {
		if ctx.Err() != nil {
			break
		}
		l.tick(ctx)
		if err := util.SleepContext(ctx, l.cfg.PollInterval); err != nil {
			break
		}
	}

	slog.Info("playback monitor stopped")
	return nil
}

// tick takes one outer sample and, when that opens a confirmation window,
// stays in the window until it resolves.
func (l *Loop) tick(ctx context.Context) {
	l.step(ctx)
	if l.debouncer.State() == playback.StateConfirmingSilence {
		l.confirmSilence(ctx)
	}
}

// confirmSilence re-samples once per ConfirmTick, at most ConfirmSamples
// times, until the debouncer leaves the confirming state.
func (l *Loop) confirmSilence(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.ConfirmTick)
	defer ticker.Stop()

	for range l.cfg.ConfirmSamples {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		l.step(ctx)
		if l.debouncer.State() != playback.StateConfirmingSilence {
			return
		}
	}
}

// step samples once, feeds the debouncer and acts on the result.
func (l *Loop) step(ctx context.Context) {
	prev := l.debouncer.State()

	active, err := l.sampler.Sample(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}

	var action playback.Action
	if err != nil {
		l.samplerFailed(err)
		action = l.debouncer.OnMissedSample()
	} else {
		l.samplerSucceeded(active)
		action = l.debouncer.OnSample(active)
	}

	next := l.debouncer.State()
	excursion := l.Status().Excursion

	switch {
	case prev != playback.StateConfirmingSilence && next == playback.StateConfirmingSilence:
		excursion = uuid.NewString()
		slog.Info("audio stopped, confirming silence",
			"confirm_samples", l.cfg.ConfirmSamples, "excursion", excursion)
		l.updateStatus(func(s *Status) { s.Excursion = excursion })
		l.emit(Event{Type: EventConfirmStarted, State: next, Excursion: excursion})

	case prev == playback.StateConfirmingSilence && next == playback.StateActive:
		slog.Info("audio resumed, switch-off cancelled",
			"silent_samples", l.Status().SilentSamples, "excursion", excursion)
		l.updateStatus(func(s *Status) { s.Excursion = "" })
		l.emit(Event{Type: EventConfirmCancelled, State: next, Excursion: excursion})
	}

	l.updateStatus(func(s *Status) {
		s.State = next
		s.SilentSamples = l.debouncer.SilentSamples()
	})
	l.emit(Event{Type: EventSample, State: next, Active: active, Err: err, Excursion: excursion})

	switch action {
	case playback.ActionTurnOn:
		slog.Info("audio detected, switching speakers on")
		l.actuate(ctx, action, "", false)
	case playback.ActionTurnOff:
		slog.Info("silence confirmed, switching speakers off", "excursion", excursion)
		l.updateStatus(func(s *Status) { s.Excursion = "" })
		l.actuate(ctx, action, excursion, false)
	}
}

// actuate calls the switch. Failures are counted and reported to observers
// but never change the debouncer state.
func (l *Loop) actuate(ctx context.Context, action playback.Action, excursion string, startup bool) {
	start := l.now()
	var err error
	var eventType EventType
	switch action {
	case playback.ActionTurnOn:
		err = l.sw.TurnOn(ctx)
		eventType = EventSwitchOn
	case playback.ActionTurnOff:
		err = l.sw.TurnOff(ctx)
		eventType = EventSwitchOff
	default:
		return
	}
	elapsed := l.now().Sub(start)

	l.updateStatus(func(s *Status) {
		s.LastAction = action
		s.LastTransitionAt = start
		if action == playback.ActionTurnOn {
			s.SwitchOnCount++
		} else {
			s.SwitchOffCount++
		}
		if err != nil {
			s.ActuatorFailures++
			s.LastActuatorError = err.Error()
		}
	})

	state := l.debouncer.State()
	l.emit(Event{Type: eventType, State: state, Action: action, Excursion: excursion, Startup: startup, Err: err, Elapsed: elapsed})
	if err != nil && ctx.Err() == nil {
		l.emit(Event{Type: EventActuatorFailed, State: state, Action: action, Excursion: excursion, Startup: startup, Err: err, Elapsed: elapsed})
	}
}

func (l *Loop) samplerFailed(err error) {
	var failures int
	var degraded bool
	l.updateStatus(func(s *Status) {
		s.SamplerFailures++
		s.ConsecutiveFailures++
		s.LastSamplerError = err.Error()
		failures = s.ConsecutiveFailures
		if failures == l.cfg.DegradedAfter {
			s.Degraded = true
			degraded = true
		}
	})

	slog.Warn("audio sample failed", "error", err, "consecutive_failures", failures)
	if degraded {
		slog.Warn("audio sampler degraded", "consecutive_failures", failures)
		l.emit(Event{Type: EventSamplerDegraded, State: l.debouncer.State(), Err: err, Failures: failures})
	}
}

func (l *Loop) samplerSucceeded(active bool) {
	var failures int
	var recovered bool
	now := l.now()
	l.updateStatus(func(s *Status) {
		s.LastSample = active
		s.LastSampleAt = now
		failures = s.ConsecutiveFailures
		recovered = s.Degraded
		s.ConsecutiveFailures = 0
		s.Degraded = false
		if recovered {
			s.LastSamplerError = ""
		}
	})

	if recovered {
		slog.Info("audio sampler recovered", "failed_samples", failures)
		l.emit(Event{Type: EventSamplerRecovered, State: l.debouncer.State(), Failures: failures})
	}
}

func (l *Loop) updateStatus(fn func(*Status)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.status)
}

func (l *Loop) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	for _, o := range l.observers {
		o.Observe(e)
	}
}
