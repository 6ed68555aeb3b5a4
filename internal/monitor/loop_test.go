package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/playback"
)

var errSample = errors.New("capture stalled")

type result struct {
	active bool
	err    error
}

func on() result     { return result{active: true} }
func off() result    { return result{} }
func failed() result { return result{err: errSample} }

// scriptSampler replays results and cancels the loop when it runs out.
type scriptSampler struct {
	mu     sync.Mutex
	script []result
	cancel context.CancelFunc
	calls  int
}

func (s *scriptSampler) Sample(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.script) {
		s.cancel()
		return false, context.Canceled
	}
	r := s.script[s.calls]
	s.calls++
	return r.active, r.err
}

type samplerFunc func(ctx context.Context) (bool, error)

func (f samplerFunc) Sample(ctx context.Context) (bool, error) { return f(ctx) }

type fakeSwitch struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSwitch) TurnOn(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "on")
	return f.err
}

func (f *fakeSwitch) TurnOff(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "off")
	return f.err
}

func (f *fakeSwitch) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	if e.Type == EventSample {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func fastConfig(confirm int) Config {
	return Config{
		PollInterval:   time.Millisecond,
		ConfirmSamples: confirm,
		ConfirmTick:    time.Millisecond,
	}
}

// runScript runs a loop over script and returns it after the script ends.
func runScript(t *testing.T, cfg Config, sw *fakeSwitch, script ...result) (*Loop, *recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &recorder{}
	sampler := &scriptSampler{script: script, cancel: cancel}
	loop := New(cfg, sampler, sw, rec)

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Fatal("loop did not finish the script in time")
	}
	return loop, rec
}

func TestLoopBriefPauseSuppressed(t *testing.T) {
	is := is.New(t)
	sw := &fakeSwitch{}

	loop, rec := runScript(t, fastConfig(3), sw, on(), off(), off(), on())

	is.Equal(sw.Calls(), []string{"on"})
	is.Equal(rec.Types(), []EventType{EventSwitchOn, EventConfirmStarted, EventConfirmCancelled})
	is.Equal(loop.Status().State, playback.StateActive)
	is.Equal(loop.Status().Excursion, "")
}

func TestLoopSustainedSilenceSwitchesOff(t *testing.T) {
	is := is.New(t)
	sw := &fakeSwitch{}

	loop, rec := runScript(t, fastConfig(3), sw, on(), off(), off(), off(), off())

	is.Equal(sw.Calls(), []string{"on", "off"})
	is.Equal(rec.Types(), []EventType{EventSwitchOn, EventConfirmStarted, EventSwitchOff})

	events := rec.Events()
	is.True(events[1].Excursion != "")
	is.Equal(events[1].Excursion, events[2].Excursion) // confirm window linked to its outcome

	st := loop.Status()
	is.Equal(st.State, playback.StateInactive)
	is.Equal(st.SwitchOnCount, int64(1))
	is.Equal(st.SwitchOffCount, int64(1))
	is.Equal(st.LastAction, playback.ActionTurnOff)
}

func TestLoopZeroConfirmSwitchesOffImmediately(t *testing.T) {
	is := is.New(t)
	sw := &fakeSwitch{}

	_, rec := runScript(t, fastConfig(0), sw, on(), off())

	is.Equal(sw.Calls(), []string{"on", "off"})
	is.Equal(rec.Types(), []EventType{EventSwitchOn, EventSwitchOff})
}

func TestLoopSamplerErrorWhileActive(t *testing.T) {
	is := is.New(t)
	sw := &fakeSwitch{}

	loop, _ := runScript(t, fastConfig(3), sw, on(), failed(), on())

	is.Equal(sw.Calls(), []string{"on"})
	st := loop.Status()
	is.Equal(st.State, playback.StateActive)
	is.Equal(st.SamplerFailures, int64(1))
	is.Equal(st.ConsecutiveFailures, 0)
	is.True(!st.Degraded)
}

func TestLoopSamplerErrorDuringConfirmation(t *testing.T) {
	is := is.New(t)
	sw := &fakeSwitch{}

	runScript(t, fastConfig(3), sw, on(), off(), failed(), failed())

	is.Equal(sw.Calls(), []string{"on", "off"})
}

func TestLoopDegradedAndRecovered(t *testing.T) {
	is := is.New(t)
	sw := &fakeSwitch{}

	loop, rec := runScript(t, fastConfig(3), sw, on(), failed(), failed(), failed(), failed(), on())

	is.Equal(sw.Calls(), []string{"on"}) // errors while active hold the speakers on
	is.Equal(rec.Types(), []EventType{EventSwitchOn, EventSamplerDegraded, EventSamplerRecovered})

	events := rec.Events()
	is.Equal(events[1].Failures, 3)
	is.Equal(events[2].Failures, 4)
	is.True(loop.Healthy())
	is.Equal(loop.Status().SamplerFailures, int64(4))
}

func TestLoopDegradedFlagWhileFailing(t *testing.T) {
	is := is.New(t)
	sw := &fakeSwitch{}

	loop, _ := runScript(t, fastConfig(3), sw, failed(), failed(), failed())

	is.True(!loop.Healthy())
	is.Equal(loop.Status().ConsecutiveFailures, 3)
	is.Equal(loop.Status().LastSamplerError, errSample.Error())
	is.Equal(len(sw.Calls()), 0)
}

func TestLoopReaffirmOffAtStartup(t *testing.T) {
	is := is.New(t)
	sw := &fakeSwitch{}
	cfg := fastConfig(3)
	cfg.ReaffirmOff = true

	_, rec := runScript(t, cfg, sw, off(), on())

	is.Equal(sw.Calls(), []string{"off", "on"})
	events := rec.Events()
	is.Equal(events[0].Type, EventSwitchOff)
	is.True(events[0].Startup)
}

func TestLoopActuatorFailureDoesNotStopLoop(t *testing.T) {
	is := is.New(t)
	sw := &fakeSwitch{err: errors.New("home assistant unreachable")}

	loop, rec := runScript(t, fastConfig(1), sw, on(), on(), off(), on())

	is.Equal(sw.Calls(), []string{"on", "off", "on"})
	is.Equal(rec.Types(), []EventType{
		EventSwitchOn, EventActuatorFailed,
		EventSwitchOff, EventActuatorFailed,
		EventSwitchOn, EventActuatorFailed,
	})
	st := loop.Status()
	is.Equal(st.State, playback.StateActive) // state follows samples, not remote success
	is.Equal(st.ActuatorFailures, int64(3))
	is.Equal(st.LastActuatorError, "home assistant unreachable")
}

func TestLoopCancelDuringConfirmation(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	sampler := samplerFunc(func(context.Context) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return calls == 1, nil
	})

	rec := &recorder{}
	loop := New(Config{
		PollInterval:   time.Millisecond,
		ConfirmSamples: 60,
		ConfirmTick:    time.Hour,
	}, sampler, &fakeSwitch{}, rec)

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// Wait until the loop sits in the confirmation window.
	deadline := time.Now().Add(5 * time.Second)
	for loop.Status().State != playback.StateConfirmingSilence {
		if time.Now().After(deadline) {
			t.Fatal("loop never entered confirmation")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		is.NoErr(err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after cancel")
	}
	is.True(!loop.Status().Running)
}

func TestLoopCancelDuringPollSleep(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithCancel(context.Background())

	sampled := make(chan struct{}, 1)
	sampler := samplerFunc(func(context.Context) (bool, error) {
		select {
		case sampled <- struct{}{}:
		default:
		}
		return false, nil
	})

	loop := New(Config{PollInterval: time.Hour, ConfirmSamples: 3}, sampler, &fakeSwitch{})

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	<-sampled
	cancel()
	select {
	case err := <-done:
		is.NoErr(err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after cancel")
	}
}

// offSignal records when TurnOff is called.
type offSignal struct {
	fakeSwitch
	off chan time.Time
}

func (o *offSignal) TurnOff(ctx context.Context) error {
	err := o.fakeSwitch.TurnOff(ctx)
	select {
	case o.off <- time.Now():
	default:
	}
	return err
}

func TestLoopConfirmIgnoresPollInterval(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const poll = 400 * time.Millisecond
	script := []bool{true, false, false, false}

	var mu sync.Mutex
	var calls int
	var firstSilent time.Time
	sampler := samplerFunc(func(context.Context) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if calls >= len(script) {
			return false, nil
		}
		active := script[calls]
		if calls == 1 {
			firstSilent = time.Now()
		}
		calls++
		return active, nil
	})

	sw := &offSignal{off: make(chan time.Time, 1)}
	loop := New(Config{
		PollInterval:   poll,
		ConfirmSamples: 3,
		ConfirmTick:    time.Millisecond,
	}, sampler, sw)

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	var offAt time.Time
	select {
	case offAt = <-sw.off:
	case <-ctx.Done():
		t.Fatal("speakers were never switched off")
	}
	cancel()
	is.NoErr(<-done)

	mu.Lock()
	defer mu.Unlock()
	is.Equal(calls, len(script))             // window sampled on fine ticks
	is.True(offAt.Sub(firstSilent) < poll/2) // off committed before the next outer poll
	is.Equal(sw.Calls(), []string{"on", "off"})
	is.Equal(loop.Status().State, playback.StateInactive)
}

func TestLoopStatusConcurrentReaders(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var mu sync.Mutex
	n := 0
	sampler := samplerFunc(func(context.Context) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return n%5 != 0, nil
	})
	loop := New(fastConfig(2), sampler, &fakeSwitch{})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				_ = loop.Status()
				_ = loop.Healthy()
			}
		}()
	}

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wg.Wait()
}

func TestConfigDefaults(t *testing.T) {
	is := is.New(t)
	cfg := Config{ConfirmSamples: -1}.withDefaults()
	is.Equal(cfg.PollInterval, time.Second)
	is.Equal(cfg.ConfirmTick, DefaultConfirmTick)
	is.Equal(cfg.DegradedAfter, DefaultDegradedAfter)
	is.Equal(cfg.ConfirmSamples, 0)
}
