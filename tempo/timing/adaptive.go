package timing

import (
	"log/slog"
	"time"
)

// AdaptiveLimiter uses precise timing with drift compensation.
// Combines sleep for efficiency with busy-waiting for accuracy.
type AdaptiveLimiter struct {
	frame        time.Duration
	next         time.Time
	frameCounter int64
	now          func() time.Time
}

func NewAdaptiveLimiter(frame time.Duration) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		frame: frame,
		next:  time.Now(),
		now:   time.Now,
	}
}

func (a *AdaptiveLimiter) WaitForNextFrame() {
	now := a.now()
	sleep := a.next.Sub(now)

	switch {
	case sleep >= 2*time.Millisecond:
		time.Sleep(sleep - time.Millisecond)
		a.spinUntil(a.next)
	case sleep > 0:
		// busy-wait under 2ms, sleep isn't accurate enough
		a.spinUntil(a.next)
	case sleep < -5*time.Millisecond:
		// too far behind to catch up
		a.next = now
	}

	a.next = a.next.Add(a.frame)
	a.frameCounter++

	if a.frameCounter%60 == 0 {
		drift := a.now().Sub(a.next.Add(-a.frame))
		if drift.Abs() > 10*time.Millisecond {
			a.next = a.next.Add(drift / 10)
			slog.Debug("Frame timing drift correction", "drift_ms", drift.Milliseconds(), "frames", a.frameCounter)
		}
	}
}

func (a *AdaptiveLimiter) spinUntil(t time.Time) {
	for a.now().Before(t) {
	}
}

func (a *AdaptiveLimiter) Reset() {
	a.next = a.now()
	a.frameCounter = 0
}
