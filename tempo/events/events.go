package events

import "fmt"

// Kind is a hardware event source. There is at most one pending event per Kind.
type Kind uint8

const (
	// VBlank fires when the timing generator enters the vertical blanking period.
	VBlank Kind = iota
	// HBlank fires at the end of the visible part of a scanline.
	HBlank
	// VCounter fires at the start of every scanline, when the line counter
	// moves on and is compared against its match value.
	VCounter
	// Timer0 to Timer3 fire on overflow of the matching timer.
	Timer0
	Timer1
	Timer2
	Timer3
	// DMA fires when a deferred DMA transfer is due to start.
	DMA

	// NumKinds is the number of real event kinds.
	NumKinds = iota
)

// sentinel is never returned by Pop. It sits at the bottom of the heap so that
// the heap is never empty.
const sentinel Kind = NumKinds

var kindNames = [...]string{
	VBlank:   "VBlank",
	HBlank:   "HBlank",
	VCounter: "VCounter",
	Timer0:   "Timer0",
	Timer1:   "Timer1",
	Timer2:   "Timer2",
	Timer3:   "Timer3",
	DMA:      "DMA",
	sentinel: "sentinel",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is one of the real event kinds.
func (k Kind) Valid() bool {
	return k < NumKinds
}

// TimerKind returns the overflow event for timer n (0-3).
func TimerKind(n int) Kind {
	if n < 0 || n > 3 {
		panic(fmt.Sprintf("events: invalid timer index %d", n))
	}
	return Timer0 + Kind(n)
}

func (k Kind) bit() uint16 {
	return 1 << k
}

// Event is a scheduled point in simulated time, in master clock cycles.
type Event struct {
	Kind Kind
	Due  uint64
}

func (e Event) String() string {
	return fmt.Sprintf("%s@%d", e.Kind, e.Due)
}

// before orders events by due cycle, then by kind so that simultaneous events
// always dispatch in the same order.
func (e Event) before(o Event) bool {
	if e.Due != o.Due {
		return e.Due < o.Due
	}
	return e.Kind < o.Kind
}
