// Package lcd generates the scanline timing edges of a display controller.
//
// Nothing is drawn here. The generator only schedules the HBlank, VBlank
// and VCounter events a renderer and the interrupt controller care about.
package lcd

import (
	"fmt"
	"log/slog"

	"github.com/valerio/go-tempo/tempo/bit"
	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/irq"
)

// Timing describes a frame in master cycles.
type Timing struct {
	LineCycles   uint64
	HBlankStart  uint64
	VisibleLines uint16
	TotalLines   uint16
}

// GBA returns the Game Boy Advance timing: 1232 cycles per line, HBlank
// from cycle 1006, 160 visible lines out of 228.
func GBA() Timing {
	return Timing{LineCycles: 1232, HBlankStart: 1006, VisibleLines: 160, TotalLines: 228}
}

// GameBoy returns the DMG timing: OAM scan (80) + transfer (172) + HBlank
// (204) per line, 144 visible lines out of 154.
func GameBoy() Timing {
	return Timing{LineCycles: 456, HBlankStart: 80 + 172, VisibleLines: 144, TotalLines: 154}
}

// FrameCycles is the length of a whole frame.
func (t Timing) FrameCycles() uint64 {
	return t.LineCycles * uint64(t.TotalLines)
}

// Validate reports whether t describes a usable frame.
func (t Timing) Validate() error {
	switch {
	case t.LineCycles == 0:
		return fmt.Errorf("lcd: zero line length")
	case t.HBlankStart == 0 || t.HBlankStart >= t.LineCycles:
		return fmt.Errorf("lcd: hblank start %d outside a %d cycle line", t.HBlankStart, t.LineCycles)
	case t.VisibleLines == 0 || t.VisibleLines >= t.TotalLines:
		return fmt.Errorf("lcd: %d visible lines out of %d", t.VisibleLines, t.TotalLines)
	}
	return nil
}

// Sources are the interrupts raised by the generator.
type Sources struct {
	VBlank   irq.Source
	HBlank   irq.Source
	VCounter irq.Source
}

// GBASources returns the GBA interrupt assignment.
func GBASources() Sources {
	return Sources{VBlank: irq.GBAVBlank, HBlank: irq.GBAHBlank, VCounter: irq.GBAVCounter}
}

// Generator tracks the current line and raises its interrupts. It is plain
// data: copying the struct clones it.
type Generator struct {
	timing  Timing
	sources Sources

	running   bool
	line      uint16
	lineStart uint64
	hblank    bool
	frames    uint64

	vblankIRQ   bool
	hblankIRQ   bool
	vcounterIRQ bool
	match       uint8
}

// New returns a stopped Generator. An invalid timing panics.
func New(timing Timing, sources Sources) Generator {
	if err := timing.Validate(); err != nil {
		panic(err.Error())
	}
	return Generator{timing: timing, sources: sources}
}

// Timing returns the frame layout.
func (g *Generator) Timing() Timing {
	return g.timing
}

// Start begins a frame at line 0 on master cycle now.
func (g *Generator) Start(now uint64, sched *events.Scheduler) {
	g.running = true
	g.line = 0
	g.lineStart = now
	g.hblank = false

	sched.InsertOrUpdate(events.HBlank, now+g.timing.HBlankStart)
	sched.InsertOrUpdate(events.VCounter, now+g.timing.LineCycles)
	sched.InsertOrUpdate(events.VBlank, now+uint64(g.timing.VisibleLines)*g.timing.LineCycles)
	slog.Debug("LCD started", "cycle", now)
}

// Stop cancels every pending edge. The current line is kept.
func (g *Generator) Stop(sched *events.Scheduler) {
	g.running = false
	sched.Remove(events.HBlank)
	sched.Remove(events.VCounter)
	sched.Remove(events.VBlank)
}

// Running reports whether the generator has been started.
func (g *Generator) Running() bool {
	return g.running
}

// Line returns the current scanline.
func (g *Generator) Line() uint16 {
	return g.line
}

// Frames returns the number of VBlank edges seen so far.
func (g *Generator) Frames() uint64 {
	return g.frames
}

// InVBlank reports whether the current line is a blanking line. The flag
// drops on the last line of the frame.
func (g *Generator) InVBlank() bool {
	return g.line >= g.timing.VisibleLines && g.line < g.timing.TotalLines-1
}

// InHBlank reports whether the current line has reached HBlank.
func (g *Generator) InHBlank() bool {
	return g.hblank
}

// Handle processes one of the generator's events and schedules the next
// edge of the same kind. Other kinds panic.
func (g *Generator) Handle(ev events.Event, sched *events.Scheduler, arb *irq.Arbiter) {
	if !g.running {
		slog.Warn("LCD event while stopped", "event", ev)
		return
	}

	switch ev.Kind {
	case events.HBlank:
		g.hblank = true
		if g.hblankIRQ {
			arb.RaiseAt(g.sources.HBlank, ev.Due)
		}
		sched.InsertOrUpdate(events.HBlank, ev.Due+g.timing.LineCycles)

	case events.VBlank:
		g.frames++
		if g.vblankIRQ {
			arb.RaiseAt(g.sources.VBlank, ev.Due)
		}
		slog.Debug("VBlank", "frame", g.frames, "cycle", ev.Due)
		sched.InsertOrUpdate(events.VBlank, ev.Due+g.timing.FrameCycles())

	case events.VCounter:
		g.hblank = false
		g.lineStart = ev.Due
		g.line++
		if g.line == g.timing.TotalLines {
			g.line = 0
		}
		if g.vcounterIRQ && uint8(g.line) == g.match {
			arb.RaiseAt(g.sources.VCounter, ev.Due)
		}
		sched.InsertOrUpdate(events.VCounter, ev.Due+g.timing.LineCycles)

	default:
		panic(fmt.Sprintf("lcd: unexpected event %v", ev))
	}
}

// ReadStatus returns the display status register.
//
//	bit 0    in VBlank
//	bit 1    in HBlank
//	bit 2    line == match
//	bit 3-5  VBlank, HBlank, VCounter interrupt enables
//	bit 8-15 line to match
func (g *Generator) ReadStatus() uint16 {
	value := uint16(g.match) << 8
	flags := []bool{g.InVBlank(), g.hblank, uint8(g.line) == g.match, g.vblankIRQ, g.hblankIRQ, g.vcounterIRQ}
	for i, set := range flags {
		if set {
			value = bit.Set(uint8(i), value)
		}
	}
	return value
}

// WriteStatus writes the writable bits of the status register.
func (g *Generator) WriteStatus(value uint16) {
	g.vblankIRQ = bit.IsSet(3, value)
	g.hblankIRQ = bit.IsSet(4, value)
	g.vcounterIRQ = bit.IsSet(5, value)
	g.match = uint8(value >> 8)
}
