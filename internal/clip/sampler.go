package clip

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrClipEnded is returned by Sampler.Sample once every tick has been
// consumed. It wraps io.EOF.
var ErrClipEnded = fmt.Errorf("clip ended: %w", io.EOF)

// Sampler replays an envelope one tick per call.
type Sampler struct {
	env       *Envelope
	threshold float64

	mu  sync.Mutex
	pos int
}

// NewSampler returns a sampler that reports activity when a tick's peak
// exceeds threshold.
func NewSampler(env *Envelope, threshold float64) *Sampler {
	return &Sampler{env: env, threshold: threshold}
}

// Sample reports whether the next tick of the clip is active.
func (s *Sampler) Sample(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.env.Peaks) {
		return false, ErrClipEnded
	}
	peak := s.env.Peaks[s.pos]
	s.pos++
	return peak > s.threshold, nil
}

// Offset returns the clip position of the next tick.
func (s *Sampler) Offset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.pos) * s.env.Tick
}
