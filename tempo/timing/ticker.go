package timing

import "time"

// TickerLimiter uses time.Ticker for simple, consistent frame timing.
// Less accurate than AdaptiveLimiter but simpler and good enough for a monitor.
type TickerLimiter struct {
	ticker *time.Ticker
	frame  time.Duration
}

func NewTickerLimiter(frame time.Duration) *TickerLimiter {
	return &TickerLimiter{
		ticker: time.NewTicker(frame),
		frame:  frame,
	}
}

// C exposes the tick channel, for select loops.
func (t *TickerLimiter) C() <-chan time.Time {
	return t.ticker.C
}

func (t *TickerLimiter) WaitForNextFrame() {
	<-t.ticker.C
}

func (t *TickerLimiter) Reset() {
	t.ticker.Reset(t.frame)
}

func (t *TickerLimiter) Stop() {
	t.ticker.Stop()
}
