// Package timer implements four cascadable 16-bit overflow timers.
//
// Timers don't tick every cycle. Each running timer works out the master
// cycle of its next overflow and schedules it; the counter is only brought
// up to date when it is read or reprogrammed.
package timer

import (
	"fmt"
	"log/slog"

	"github.com/valerio/go-tempo/tempo/bit"
	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/irq"
)

// Count is the number of timers in a Bank.
const Count = 4

// prescalerShifts maps control bits 0-1 to log2 of the prescaler (1, 64, 256, 1024).
var prescalerShifts = [4]uint8{0, 6, 8, 10}

// Timer is one counter. Times are in timer ticks, not master cycles.
type Timer struct {
	enabled bool
	cascade bool
	irq     bool
	shift   uint8
	reload  uint16
	// counter is the value at tick base.
	counter uint16
	base    uint64
}

// Bank is four timers that run off one clock and raise interrupts
// first, first+1, ... It is plain data: copying the struct clones it.
type Bank struct {
	timers  [Count]Timer
	divider uint64
	first   irq.Source
}

// NewBank returns a Bank whose timers tick once every divider master
// cycles and raise interrupt sources first to first+3.
func NewBank(divider uint64, first irq.Source) Bank {
	if divider == 0 {
		panic("timer: zero divider")
	}
	return Bank{divider: divider, first: first}
}

func mustHave(n int) {
	if n < 0 || n >= Count {
		panic(fmt.Sprintf("timer: invalid timer %d", n))
	}
}

func (b *Bank) tick(master uint64) uint64 {
	return master / b.divider
}

// running reports whether t counts on its own clock, as opposed to
// being stopped or counting the previous timer's overflows.
func (t *Timer) running() bool {
	return t.enabled && !t.cascade
}

// overflowTick is the first tick at which a running timer wraps.
func (t *Timer) overflowTick() uint64 {
	steps := uint64(0x10000 - uint32(t.counter))
	return ((t.base >> t.shift) + steps) << t.shift
}

// advance brings a running timer's counter up to tick. The caller has
// already handled any overflow at or before tick.
func (t *Timer) advance(tick uint64) {
	if !t.running() || tick <= t.base {
		return
	}
	t.counter += uint16((tick >> t.shift) - (t.base >> t.shift))
	t.base = tick
}

// WriteReload sets the value loaded on enable and after every overflow.
func (b *Bank) WriteReload(n int, value uint16) {
	mustHave(n)
	b.timers[n].reload = value
}

// Reload returns timer n's reload value.
func (b *Bank) Reload(n int) uint16 {
	mustHave(n)
	return b.timers[n].reload
}

// WriteControl programs timer n at master cycle now.
//
//	bits 0-1 prescaler (1, 64, 256, 1024)
//	bit  2   count overflows of timer n-1 (not timer 0)
//	bit  6   raise an interrupt on overflow
//	bit  7   enable
func (b *Bank) WriteControl(n int, value uint16, now uint64, sched *events.Scheduler, arb *irq.Arbiter) {
	mustHave(n)
	b.Sync(now, sched, arb)

	t := &b.timers[n]
	wasEnabled := t.enabled
	t.shift = prescalerShifts[value&3]
	t.cascade = n != 0 && bit.IsSet(2, value)
	t.irq = bit.IsSet(6, value)
	t.enabled = bit.IsSet(7, value)

	tick := b.tick(now)
	switch {
	case t.enabled && !wasEnabled:
		// counting starts the tick after the enable
		t.counter = t.reload
		t.base = tick + 1
	case t.enabled:
		t.base = max(t.base, tick)
	}

	slog.Debug("Timer control write", "timer", n, "value", fmt.Sprintf("0x%04X", value),
		"prescaler", 1<<t.shift, "cascade", t.cascade, "irq", t.irq, "enabled", t.enabled, "cycle", now)

	b.schedule(n, sched)
}

// ReadControl returns timer n's control register.
func (b *Bank) ReadControl(n int) uint16 {
	mustHave(n)
	t := &b.timers[n]
	var value uint16
	for i, s := range prescalerShifts {
		if s == t.shift {
			value = uint16(i)
		}
	}
	if t.cascade {
		value = bit.Set(2, value)
	}
	if t.irq {
		value = bit.Set(6, value)
	}
	if t.enabled {
		value = bit.Set(7, value)
	}
	return value
}

// ReadCounter returns timer n's counter as of master cycle now.
func (b *Bank) ReadCounter(n int, now uint64, sched *events.Scheduler, arb *irq.Arbiter) uint16 {
	mustHave(n)
	b.Sync(now, sched, arb)
	return b.timers[n].counter
}

// Sync brings every counter up to master cycle now, handling any overflow
// the driving loop hasn't dispatched yet.
func (b *Bank) Sync(now uint64, sched *events.Scheduler, arb *irq.Arbiter) {
	b.sync(now, sched, arb)
}

// Counter returns timer n's counter as of master cycle now without
// touching the bank, the scheduler or the interrupt controller.
func (b *Bank) Counter(n int, now uint64) uint16 {
	mustHave(n)
	dry := *b
	dry.sync(now, nil, nil)
	return dry.timers[n].counter
}

// sync is Sync; with a nil scheduler it is a dry run that only moves the
// counters.
func (b *Bank) sync(now uint64, sched *events.Scheduler, arb *irq.Arbiter) {
	tick := b.tick(now)
	for {
		next, nextTick := -1, uint64(0)
		for i := range b.timers {
			t := &b.timers[i]
			if !t.running() {
				continue
			}
			if at := t.overflowTick(); at <= tick && (next < 0 || at < nextTick) {
				next, nextTick = i, at
			}
		}
		if next < 0 {
			break
		}
		b.overflow(next, nextTick, sched, arb)
	}

	for i := range b.timers {
		b.timers[i].advance(tick)
	}
}

// HandleOverflow is called by the driving loop when a timer event fires.
func (b *Bank) HandleOverflow(ev events.Event, sched *events.Scheduler, arb *irq.Arbiter) {
	n := int(ev.Kind - events.Timer0)
	mustHave(n)
	t := &b.timers[n]
	if !t.running() {
		slog.Warn("Overflow event for a stopped timer", "timer", n, "cycle", ev.Due)
		return
	}
	b.overflow(n, t.overflowTick(), sched, arb)
}

func (b *Bank) overflow(n int, tick uint64, sched *events.Scheduler, arb *irq.Arbiter) {
	t := &b.timers[n]
	t.counter = t.reload
	t.base = tick
	live := sched != nil

	if live {
		if t.irq {
			arb.RaiseAt(b.first+irq.Source(n), tick*b.divider)
		}
		slog.Debug("Timer overflow", "timer", n, "reload", fmt.Sprintf("0x%04X", t.reload), "cycle", tick*b.divider)
	}

	if n+1 < Count {
		if next := &b.timers[n+1]; next.enabled && next.cascade {
			next.counter++
			if next.counter == 0 {
				b.overflow(n+1, tick, sched, arb)
			}
		}
	}

	if live {
		b.schedule(n, sched)
	}
}

func (b *Bank) schedule(n int, sched *events.Scheduler) {
	t := &b.timers[n]
	kind := events.TimerKind(n)
	if !t.running() {
		sched.Remove(kind)
		return
	}
	sched.InsertOrUpdate(kind, t.overflowTick()*b.divider)
}
