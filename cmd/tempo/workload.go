package main

import (
	"github.com/valerio/go-tempo/tempo"
	"github.com/valerio/go-tempo/tempo/bus"
	"github.com/valerio/go-tempo/tempo/clock"
	"github.com/valerio/go-tempo/tempo/events"
)

// loopLength is the size in bytes of the synthetic program loop.
const loopLength = 0x400

// workload stands in for a real CPU: it fetches instructions in a tight
// loop, mixes in data accesses and internal cycles, lets the secondary
// chips take the bus now and then and services interrupts.
type workload struct {
	start, pc uint32
	prefetch  bool
	secondary int
	steps     uint64
	serviced  uint64

	// seq is the last value posted to mailbox 0, which the secondary
	// chips poll as of their own, lagging, time.
	seq uint32
}

func newWorkload(sys *tempo.System) *workload {
	w := &workload{secondary: -1}

	regions := sys.Bus().Table().Regions()
	w.start = regions[0].Start
	for _, r := range regions {
		if r.Prefetch {
			w.start, w.prefetch = r.Start, true
			break
		}
	}
	w.pc = w.start

	if sys.Clock().Len() > 1 {
		w.secondary = 1
	}
	return w
}

// setup enables every interrupt source, VBlank interrupts and a free-running timer.
func (w *workload) setup(sys *tempo.System) {
	ints := sys.Interrupts()
	ints.WriteEnable(^uint32(0))
	ints.SetMasterEnable(true)
	sys.LCD().WriteStatus(1 << 3)
	sys.WriteTimerReload(0, 0xC000)
	sys.WriteTimerControl(0, 0xC1)
}

// resume picks the loop back up from a loaded save state.
func (w *workload) resume(sys *tempo.System) {
	w.seq = sys.Mailbox(0).Latest()
	p := sys.Bus().Prefetcher()
	if addr := p.ReadAddress(); w.prefetch && addr >= w.start && addr < w.start+loopLength {
		w.pc = addr &^ 1
	}
}

func (w *workload) Step(sys *tempo.System) uint64 {
	w.steps++
	b := sys.Bus()
	if w.steps%32 == 0 {
		w.seq++
		sys.PostMailbox(0, w.seq)
	}

	var cycles uint64
	if w.prefetch {
		_, cycles = b.Read(w.pc)
	} else {
		cycles = b.DataAccess(w.pc, bus.Halfword, bus.Sequential)
	}
	if cycles > 1 {
		sys.MarkBusWait()
	}
	w.pc += 2
	if w.pc >= w.start+loopLength {
		w.pc = w.start
	}

	switch {
	case w.steps%16 == 0:
		cycles += b.DataAccess(0x02000000+uint32(w.steps%256)*4, bus.Word, bus.NonSequential)
	case w.steps%4 == 0:
		cycles += b.DataAccess(0x03000000, bus.Word, bus.Sequential)
	default:
		b.Idle(1)
		cycles++
	}

	if w.secondary != -1 && w.steps%64 == 0 {
		sys.Clock().RecordSecondaryBusAccess(w.secondary)
	}
	if w.steps%512 == 0 {
		sys.Clock().RecordPrimaryToSecondaryAccess()
	}
	if w.steps%4096 == 0 && !sys.Scheduler().Scheduled(events.DMA) {
		sys.Schedule(events.DMA, sys.Cycles())
	}

	ints := sys.Interrupts()
	if ints.IRQ() {
		source, _ := ints.HighestPriorityPending()
		ints.Acknowledge(source)
		w.serviced++
		cycles += 3
	}
	return cycles
}

// chip counts the ticks a secondary domain receives and polls mailbox 0.
type chip struct {
	name string
	id   int
	sys  *tempo.System

	ticks uint64
	last  uint32
}

func (c *chip) Tick(ticks uint64) {
	c.ticks += ticks
	c.last = c.sys.ReadMailbox(0, c.id)
}

// attachChips gives every secondary domain a counting chip.
func attachChips(sys *tempo.System) []*chip {
	var chips []*chip
	for id := clock.Primary + 1; id < sys.Clock().Len(); id++ {
		c := &chip{name: sys.Clock().Domain(id).Name, id: id, sys: sys}
		sys.SetSecondary(c.name, c)
		chips = append(chips, c)
	}
	return chips
}

// patternROM is an address-derived cartridge.
type patternROM struct{}

func (patternROM) ReadHalfword(address uint32) uint16 {
	return uint16(address>>1) ^ 0xA5A5
}

// holdBusOnDMA models a DMA transfer: a DMA event holds the primary bus
// for a fixed time and schedules its own release.
func holdBusOnDMA(length uint64) tempo.EventHandler {
	return func(sys *tempo.System, ev events.Event) {
		c := sys.Clock()
		if c.BusHeld() {
			c.SetBusHeld(false)
			return
		}
		c.SetBusHeld(true)
		sys.Schedule(events.DMA, ev.Due+length)
	}
}
