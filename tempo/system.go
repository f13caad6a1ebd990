// Package tempo drives a multi-clock system in simulated time.
//
// A System owns the event scheduler, the clock domains, the bus timing
// model, the interrupt controller and the built-in timer and display edge
// generators. Each Step runs one primary CPU instruction, charges the
// stalls it caused, advances every secondary chip by its share of master
// cycles and dispatches the events that became due.
package tempo

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/valerio/go-tempo/tempo/bus"
	"github.com/valerio/go-tempo/tempo/clock"
	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/irq"
	"github.com/valerio/go-tempo/tempo/lcd"
	"github.com/valerio/go-tempo/tempo/timed"
	"github.com/valerio/go-tempo/tempo/timer"
)

// Mailboxes is the number of cross-domain registers a System owns.
const Mailboxes = 4

// CPU executes primary instructions.
type CPU interface {
	// Step runs one instruction and returns its length in primary cycles,
	// bus waits included.
	Step(sys *System) uint64
}

// Secondary is a chip clocked by a non-primary domain.
type Secondary interface {
	Tick(ticks uint64)
}

// EventHandler reacts to a scheduled event.
type EventHandler func(sys *System, ev events.Event)

// System is the single owner of all timing state. It is not safe for
// concurrent use.
type System struct {
	cycles uint64
	waited bool

	sched  events.Scheduler
	clock  clock.Converter
	bus    bus.Bus
	irq    irq.Arbiter
	timers timer.Bank
	lcd    lcd.Generator

	mailboxes [Mailboxes]timed.Register[uint32]

	cpu         CPU
	secondaries [clock.MaxDomains]Secondary
	handlers    [events.NumKinds]EventHandler
	logger      *slog.Logger
}

// New builds a System at cycle 0 with the display generator running.
// Invalid configuration panics.
func New(cfg Config, opts ...Option) *System {
	irqOpts := []irq.Option{irq.WithMasterEnable(cfg.IRQMaster)}
	if len(cfg.IRQPriority) > 0 {
		irqOpts = append(irqOpts, irq.WithPriority(cfg.IRQPriority...))
	}

	s := &System{
		sched:  events.NewScheduler(),
		clock:  *clock.New(cfg.Clock),
		bus:    *bus.New(bus.NewTable(cfg.Regions), nil),
		irq:    irq.New(cfg.IRQWidth, irqOpts...),
		timers: timer.NewBank(cfg.TimerDivider, cfg.TimerSource),
		lcd:    lcd.New(cfg.LCD, cfg.LCDSources),
		logger: slog.Default(),
	}
	s.bus.WriteControl(cfg.WaitControl)

	for kind := range events.Kind(events.NumKinds) {
		switch kind {
		case events.Timer0, events.Timer1, events.Timer2, events.Timer3:
			s.handlers[kind] = handleTimer
		case events.HBlank, events.VBlank, events.VCounter:
			s.handlers[kind] = handleLCD
		}
	}

	for _, opt := range opts {
		opt(s)
	}

	s.lcd.Start(0, &s.sched)
	return s
}

func handleTimer(sys *System, ev events.Event) {
	sys.timers.HandleOverflow(ev, &sys.sched, &sys.irq)
}

func handleLCD(sys *System, ev events.Event) {
	sys.lcd.Handle(ev, &sys.sched, &sys.irq)
}

// Cycles returns the master cycle count.
func (s *System) Cycles() uint64 {
	return s.cycles
}

// Scheduler returns the event scheduler.
func (s *System) Scheduler() *events.Scheduler {
	return &s.sched
}

// Clock returns the clock domain converter.
func (s *System) Clock() *clock.Converter {
	return &s.clock
}

// Bus returns the bus timing model.
func (s *System) Bus() *bus.Bus {
	return &s.bus
}

// Interrupts returns the interrupt controller.
func (s *System) Interrupts() *irq.Arbiter {
	return &s.irq
}

// LCD returns the display edge generator.
func (s *System) LCD() *lcd.Generator {
	return &s.lcd
}

// Timers returns a copy of the timer bank. Use the timer methods on
// System to change it.
func (s *System) Timers() timer.Bank {
	return s.timers
}

// Mailbox returns cross-domain register i. Writers stamp values with
// their own cycle and readers ask for the value as of theirs, see
// PostMailbox and ReadMailbox.
func (s *System) Mailbox(i int) *timed.Register[uint32] {
	if i < 0 || i >= Mailboxes {
		panic(fmt.Sprintf("tempo: invalid mailbox %d", i))
	}
	return &s.mailboxes[i]
}

// PostMailbox writes v to mailbox i as of the current master cycle, for
// the primary CPU.
func (s *System) PostMailbox(i int, v uint32) {
	s.Mailbox(i).Write(v, s.cycles)
}

// ReadMailbox returns mailbox i as seen by clock domain id at its own
// local cycle.
func (s *System) ReadMailbox(i, id int) uint32 {
	return s.Mailbox(i).Read(s.clock.LocalCycle(id))
}

// SetCPU replaces the primary CPU.
func (s *System) SetCPU(cpu CPU) {
	s.cpu = cpu
}

// SetSecondary attaches chip to the named domain; nil detaches it.
func (s *System) SetSecondary(domain string, chip Secondary) {
	id, ok := s.clock.Lookup(domain)
	if !ok {
		panic(fmt.Sprintf("tempo: unknown clock domain %q", domain))
	}
	if id == clock.Primary {
		panic(fmt.Sprintf("tempo: %q is the primary domain, attach a CPU instead", domain))
	}
	s.secondaries[id] = chip
}

// Handle replaces the handler of kind; nil removes it.
func (s *System) Handle(kind events.Kind, h EventHandler) {
	if !kind.Valid() {
		panic(fmt.Sprintf("tempo: invalid event kind %d", kind))
	}
	s.handlers[kind] = h
}

// Schedule sets the due cycle of kind, for producers outside the core
// such as a DMA controller.
func (s *System) Schedule(kind events.Kind, due uint64) {
	s.sched.InsertOrUpdate(kind, due)
}

// Cancel removes kind from the schedule.
func (s *System) Cancel(kind events.Kind) {
	s.sched.Remove(kind)
}

// ClearInterruptFlags acknowledges the sources in mask (write 1 to clear)
// as of the current cycle. A source raised later on this same cycle stays
// clear.
func (s *System) ClearInterruptFlags(mask uint32) {
	s.irq.ClearFlagsAt(mask, s.cycles)
}

// MarkBusWait tells the System the running instruction sat out a bus
// wait, which hides a memory refresh falling inside it.
func (s *System) MarkBusWait() {
	s.waited = true
}

// WriteTimerReload sets the reload value of timer n.
func (s *System) WriteTimerReload(n int, value uint16) {
	s.timers.WriteReload(n, value)
}

// WriteTimerControl programs timer n as of the current cycle.
func (s *System) WriteTimerControl(n int, value uint16) {
	s.timers.WriteControl(n, value, s.cycles, &s.sched, &s.irq)
}

// ReadTimerCounter returns timer n's counter as of the current cycle.
func (s *System) ReadTimerCounter(n int) uint16 {
	return s.timers.ReadCounter(n, s.cycles, &s.sched, &s.irq)
}

// Step runs one CPU instruction and everything it causes, and returns the
// master cycles that passed. A halted CPU runs nothing: the System skips to
// the next event instead. Stepping without a CPU panics.
func (s *System) Step() uint64 {
	if s.cpu == nil {
		panic("tempo: Step without a CPU")
	}
	if s.irq.Halted() {
		if s.sched.NextDue() == math.MaxUint64 {
			panic("tempo: CPU halted with no event left to wake it")
		}
		return s.idle(math.MaxUint64)
	}

	s.waited = false
	cycles := s.cpu.Step(s)
	master := s.clock.RecordPrimary(cycles, s.waited)
	if stall := s.clock.TakePrimaryStall(); stall > 0 {
		master += s.clock.RecordPrimary(stall, true)
	}

	s.advance(master)
	return master
}

// RunUntil steps until the master cycle count reaches cycle. Without a
// CPU, or while it is halted, it jumps from one event to the next instead.
func (s *System) RunUntil(cycle uint64) {
	for s.cycles < cycle {
		if s.cpu != nil && !s.irq.Halted() {
			s.Step()
			continue
		}
		s.idle(cycle)
	}
}

// idle advances to the next event, or to limit if that comes first,
// without running the CPU.
func (s *System) idle(limit uint64) uint64 {
	next := max(min(s.sched.NextDue(), limit), s.cycles)
	master := next - s.cycles
	s.advance(master)
	return master
}

func (s *System) advance(master uint64) {
	ticks := s.clock.Advance(master)
	for id := 1; id < ticks.Len(); id++ {
		if chip := s.secondaries[id]; chip != nil && ticks.Of(id) > 0 {
			chip.Tick(ticks.Of(id))
		}
	}
	s.cycles += master
	s.dispatch()
}

// dispatch runs every event due by the current cycle, in order. Handlers
// may schedule more events, including ones already due.
func (s *System) dispatch() {
	for {
		ev, ok := s.sched.Pop(s.cycles)
		if !ok {
			return
		}

		h := s.handlers[ev.Kind]
		if h == nil {
			s.logger.Warn("No handler for event", "event", ev.Kind, "due", ev.Due, "cycle", s.cycles)
			continue
		}
		s.logger.Debug("Dispatch", "event", ev.Kind, "due", ev.Due, "late", s.cycles-ev.Due)
		h(s, ev)
	}
}

// Clone returns an independent copy of the timing state, mailboxes
// included. The collaborators (CPU, secondaries, ROM, handlers) are shared
// with s; replace them with SetCPU, SetSecondary and Bus().AttachROM as
// needed.
func (s *System) Clone() *System {
	c := *s
	return &c
}
