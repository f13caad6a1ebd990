package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameDuration(t *testing.T) {
	tests := []struct {
		name        string
		hz, cycles  uint64
		rate        float64
		approxFrame time.Duration
	}{
		{"gba", 1 << 24, 280896, 59.727, 16_742_706 * time.Nanosecond},
		{"dmg", 4194304, 70224, 59.727, 16_742_706 * time.Nanosecond},
		{"genesis", 53693175, 3420 * 262, 59.923, 16_688_154 * time.Nanosecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.rate, FrameRate(tt.hz, tt.cycles), 0.001)
			assert.InDelta(t, float64(tt.approxFrame), float64(FrameDuration(tt.hz, tt.cycles)), float64(time.Microsecond))
		})
	}

	assert.Panics(t, func() { FrameDuration(0, 1) })
}

func TestNoOpLimiter(t *testing.T) {
	l := NewNoOpLimiter()
	start := time.Now()
	for range 1000 {
		l.WaitForNextFrame()
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAdaptiveLimiterPaces(t *testing.T) {
	l := NewAdaptiveLimiter(3 * time.Millisecond)
	start := time.Now()
	for range 5 {
		l.WaitForNextFrame()
	}
	// the first frame is due immediately
	assert.GreaterOrEqual(t, time.Since(start), 12*time.Millisecond)
}

func TestAdaptiveLimiterSkipsWhenFarBehind(t *testing.T) {
	l := NewAdaptiveLimiter(time.Millisecond)
	base := time.Now()
	now := base
	l.now = func() time.Time { return now }
	l.Reset()

	now = base.Add(time.Second)
	l.WaitForNextFrame()

	assert.Equal(t, now.Add(time.Millisecond), l.next, "no burst of catch-up frames after a stall")
}
