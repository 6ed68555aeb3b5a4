package audio

import (
	"sync"
	"time"
)

// PeakWindow holds the highest linear peak seen since it was last taken.
// It is safe for concurrent use.
type PeakWindow struct {
	mu     sync.Mutex
	peak   float64
	peakAt time.Time
	blocks int
	last   float64
	lastAt time.Time
}

// Observe records the peak of one metering block.
func (w *PeakWindow) Observe(peak float64, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.blocks == 0 || peak > w.peak {
		w.peak = peak
		w.peakAt = now
	}
	w.blocks++
	w.last = peak
	w.lastAt = now
}

// Take returns the held peak and starts a new window.
// With no block since the previous call it returns the most recent block's
// peak and ok=false.
func (w *PeakWindow) Take() (peak float64, at time.Time, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.blocks == 0 {
		return w.last, w.lastAt, false
	}
	peak, at = w.peak, w.peakAt
	w.peak = 0
	w.peakAt = time.Time{}
	w.blocks = 0
	return peak, at, true
}

// Reset clears the window and the most recent block.
func (w *PeakWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.peak, w.peakAt, w.blocks = 0, time.Time{}, 0
	w.last, w.lastAt = 0, time.Time{}
}
