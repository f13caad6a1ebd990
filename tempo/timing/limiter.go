// Package timing paces a run against the wall clock. The core never
// waits; only frontends use this.
package timing

import "time"

// Limiter controls how fast frames are produced.
type Limiter interface {
	// WaitForNextFrame blocks until it's time for the next frame.
	// Returns immediately if timing is behind schedule.
	WaitForNextFrame()

	// Reset resets the timing state, useful after pauses.
	Reset()
}

// NewNoOpLimiter returns a limiter that doesn't limit (for headless mode).
func NewNoOpLimiter() Limiter {
	return &noOpLimiter{}
}

type noOpLimiter struct{}

func (n *noOpLimiter) WaitForNextFrame() {}
func (n *noOpLimiter) Reset()            {}

// FrameRate is the number of frames per second of a machine whose frames
// last frameCycles master cycles.
func FrameRate(masterHz, frameCycles uint64) float64 {
	return float64(masterHz) / float64(frameCycles)
}

// FrameDuration returns the wall-clock length of one frame.
func FrameDuration(masterHz, frameCycles uint64) time.Duration {
	if masterHz == 0 || frameCycles == 0 {
		panic("timing: zero clock rate or frame length")
	}
	return time.Duration(float64(time.Second) * float64(frameCycles) / float64(masterHz))
}
