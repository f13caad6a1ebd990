// Package debug captures a plain-data view of a System for monitors and traces.
package debug

import (
	"fmt"
	"strings"

	"github.com/valerio/go-tempo/tempo"
	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/irq"
	"github.com/valerio/go-tempo/tempo/timer"
)

// Domain is one clock domain.
type Domain struct {
	Name           string
	Divider        uint64
	Accumulator    uint64
	StallRemaining uint64
	Halted         bool
}

// PrefetchState is the cartridge prefetch unit.
type PrefetchState struct {
	Active          bool
	ReadAddress     uint32
	Buffered        int
	CyclesRemaining uint64
}

// TimerState is one overflow timer.
type TimerState struct {
	Counter uint16
	Reload  uint16
	Control uint16
}

// Snapshot contains everything the monitor displays. It shares nothing
// with the System it was taken from.
type Snapshot struct {
	Cycles uint64
	Events []events.Event

	Domains             []Domain
	PendingPrimaryStall uint64
	BusHeld             bool
	OddAccess           bool

	WaitControl uint16
	Prefetch    PrefetchState

	InterruptEnable uint32
	InterruptFlags  uint32
	MasterEnable    bool
	Halted          bool
	Highest         irq.Source
	HighestOK       bool

	Line     uint16
	Frames   uint64
	InVBlank bool
	InHBlank bool
	Status   uint16

	Timers [timer.Count]TimerState
}

// Take captures sys without changing it.
func Take(sys *tempo.System) Snapshot {
	s := Snapshot{
		Cycles: sys.Cycles(),
		Events: sys.Scheduler().Events(),
	}

	c := sys.Clock()
	for id := range c.Len() {
		d := c.Domain(id)
		s.Domains = append(s.Domains, Domain{
			Name:           d.Name,
			Divider:        d.Divider,
			Accumulator:    d.Accumulator,
			StallRemaining: d.StallRemaining,
			Halted:         c.Halted(id),
		})
	}
	s.PendingPrimaryStall = c.PendingPrimaryStall()
	s.BusHeld = c.BusHeld()
	s.OddAccess = c.OddAccess()

	b := sys.Bus()
	s.WaitControl = b.Control().Raw()
	p := b.Prefetcher()
	s.Prefetch = PrefetchState{
		Active:          p.Active(),
		ReadAddress:     p.ReadAddress(),
		Buffered:        p.Len(),
		CyclesRemaining: p.CyclesRemaining(),
	}

	ints := sys.Interrupts()
	s.InterruptEnable = ints.Enable()
	s.InterruptFlags = ints.Flag()
	s.MasterEnable = ints.MasterEnable()
	s.Halted = ints.Halted()
	s.Highest, s.HighestOK = ints.HighestPriorityPending()

	l := sys.LCD()
	s.Line = l.Line()
	s.Frames = l.Frames()
	s.InVBlank = l.InVBlank()
	s.InHBlank = l.InHBlank()
	s.Status = l.ReadStatus()

	bank := sys.Timers()
	for n := range timer.Count {
		s.Timers[n] = TimerState{
			Counter: bank.Counter(n, s.Cycles),
			Reload:  bank.Reload(n),
			Control: bank.ReadControl(n),
		}
	}

	return s
}

// Lines renders the snapshot as text, one fact per line.
func (s Snapshot) Lines() []string {
	lines := []string{
		fmt.Sprintf("cycle     %d", s.Cycles),
		fmt.Sprintf("frame     %d line %d vblank=%t hblank=%t stat=0x%04X", s.Frames, s.Line, s.InVBlank, s.InHBlank, s.Status),
		"",
		"events",
	}
	if len(s.Events) == 0 {
		lines = append(lines, "  (none)")
	}
	for _, ev := range s.Events {
		lines = append(lines, fmt.Sprintf("  %-8s @ %d (+%d)", ev.Kind, ev.Due, ev.Due-min(ev.Due, s.Cycles)))
	}

	lines = append(lines, "", "clock domains")
	for _, d := range s.Domains {
		state := ""
		if d.Halted {
			state = " HALTED"
		}
		lines = append(lines, fmt.Sprintf("  %-8s /%-3d acc=%-3d stall=%d%s", d.Name, d.Divider, d.Accumulator, d.StallRemaining, state))
	}
	lines = append(lines, fmt.Sprintf("  primary stall=%d bus held=%t odd=%t", s.PendingPrimaryStall, s.BusHeld, s.OddAccess))

	lines = append(lines, "", "bus",
		fmt.Sprintf("  waitcnt=0x%04X", s.WaitControl),
		fmt.Sprintf("  prefetch active=%t addr=0x%08X buffered=%d remaining=%d",
			s.Prefetch.Active, s.Prefetch.ReadAddress, s.Prefetch.Buffered, s.Prefetch.CyclesRemaining))

	highest := "-"
	if s.HighestOK {
		highest = fmt.Sprint(s.Highest)
	}
	lines = append(lines, "", "interrupts",
		fmt.Sprintf("  IE=0x%08X IF=0x%08X IME=%t halt=%t next=%s", s.InterruptEnable, s.InterruptFlags, s.MasterEnable, s.Halted, highest))

	lines = append(lines, "", "timers")
	for n, t := range s.Timers {
		lines = append(lines, fmt.Sprintf("  %d counter=0x%04X reload=0x%04X control=0x%04X", n, t.Counter, t.Reload, t.Control))
	}
	return lines
}

// String renders the snapshot as a block of text.
func (s Snapshot) String() string {
	return strings.Join(s.Lines(), "\n")
}
