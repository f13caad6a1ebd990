package tempo

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valerio/go-tempo/tempo/bus"
	"github.com/valerio/go-tempo/tempo/clock"
	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/irq"
	"github.com/valerio/go-tempo/tempo/state"
)

// twoCPUConfig is a GBA bus with a Genesis-style clock tree: the primary
// CPU on a /7 divider and a secondary CPU on /15.
func twoCPUConfig() Config {
	cfg := GBAConfig()
	cfg.Clock = clock.Config{
		Domains: []clock.DomainConfig{
			{Name: "m68k", Divider: 7},
			{Name: "z80", Divider: 15},
		},
		GrantPrimaryStall:    11,
		GrantSecondaryStall:  49,
		SecondaryAccessStall: 1,
		MaxStallMaster:       1225,
	}
	cfg.WaitControl = 0x4317
	return cfg
}

type fixedCPU struct {
	cycles uint64
	steps  int
	hook   func(sys *System)
}

func (c *fixedCPU) Step(sys *System) uint64 {
	c.steps++
	if c.hook != nil {
		c.hook(sys)
	}
	return c.cycles
}

type tickCounter struct {
	ticks uint64
	calls int
}

func (t *tickCounter) Tick(ticks uint64) {
	t.ticks += ticks
	t.calls++
}

type patternROM struct{}

func (patternROM) ReadHalfword(address uint32) uint16 {
	return uint16(address >> 1)
}

// scriptCPU drives every part of the system from a step counter, so two
// copies of it replay identically.
type scriptCPU struct {
	n uint64
}

func (c *scriptCPU) Step(sys *System) uint64 {
	c.n++
	cycles := 1 + c.n%8

	if c.n%5 == 0 {
		sys.Clock().RecordSecondaryBusAccess(1)
	}
	if c.n%3 == 0 {
		cycles += sys.Bus().DataAccess(0x02000000, bus.Word, bus.NonSequential)
	}
	if c.n%11 == 0 {
		_, wait := sys.Bus().Read(0x08000000 + uint32(c.n%64)*2)
		cycles += wait
	}
	if c.n%13 == 0 {
		sys.MarkBusWait()
	}
	if c.n%97 == 0 {
		timer := int(c.n % 4)
		sys.WriteTimerReload(timer, uint16(c.n))
		sys.WriteTimerControl(timer, 0xC0|uint16(c.n%4))
	}
	if c.n%7 == 0 {
		sys.PostMailbox(int(c.n%2), uint32(c.n))
	}
	if c.n%301 == 0 {
		sys.ClearInterruptFlags(0xFFFF)
	}
	return cycles
}

type recorder struct {
	seen []events.Event
}

func (r *recorder) handle(_ *System, ev events.Event) {
	r.seen = append(r.seen, ev)
}

func TestSchedulerScenario(t *testing.T) {
	rec := &recorder{}
	sys := New(GBAConfig(), WithHandler(events.Timer0, rec.handle), WithHandler(events.VBlank, rec.handle))
	sys.Schedule(events.Timer0, 100)
	sys.Schedule(events.VBlank, 50)

	sys.RunUntil(60)
	assert.Equal(t, uint64(60), sys.Cycles())
	assert.Equal(t, []events.Event{{Kind: events.VBlank, Due: 50}}, rec.seen)

	sys.RunUntil(100)
	assert.Equal(t, []events.Event{
		{Kind: events.VBlank, Due: 50},
		{Kind: events.Timer0, Due: 100},
	}, rec.seen)
}

func TestNewStartsDisplay(t *testing.T) {
	sys := New(GBAConfig())

	assert.True(t, sys.LCD().Running())
	due, ok := sys.Scheduler().Due(events.HBlank)
	require.True(t, ok)
	assert.Equal(t, uint64(1006), due)
}

func TestRunWithoutCPUFollowsDisplay(t *testing.T) {
	sys := New(GBAConfig())
	sys.LCD().WriteStatus(1 << 3)

	sys.RunUntil(sys.LCD().Timing().FrameCycles())
	assert.Equal(t, uint64(1), sys.LCD().Frames())
	assert.Equal(t, uint16(0), sys.LCD().Line())
	assert.Equal(t, uint32(1)<<irq.GBAVBlank, sys.Interrupts().Flag())
}

func TestStepWithoutCPUPanics(t *testing.T) {
	sys := New(GBAConfig())
	assert.Panics(t, func() { sys.Step() })
}

func TestStepAdvancesDomains(t *testing.T) {
	cpu := &fixedCPU{cycles: 4}
	z80 := &tickCounter{}
	sys := New(twoCPUConfig(), WithCPU(cpu), WithSecondary("z80", z80))

	for range 100 {
		assert.Equal(t, uint64(28), sys.Step())
	}

	assert.Equal(t, uint64(2800), sys.Cycles())
	assert.Equal(t, uint64(2800/15), z80.ticks)
	assert.Equal(t, uint64(2800%15), sys.Clock().Domain(1).Accumulator)
}

func TestRefreshStall(t *testing.T) {
	cfg := twoCPUConfig()
	cfg.Clock.RefreshInterval = 128
	cfg.Clock.RefreshStall = 2
	sys := New(cfg, WithCPU(&fixedCPU{cycles: 4}))

	for i := 1; i < 32; i++ {
		require.Equal(t, uint64(28), sys.Step(), "step %d", i)
	}
	assert.Equal(t, uint64(42), sys.Step(), "the 32nd step crosses the refresh interval")
	assert.Equal(t, uint64(31*28+42), sys.Cycles())
}

func TestRefreshHiddenByBusWait(t *testing.T) {
	cfg := twoCPUConfig()
	cfg.Clock.RefreshInterval = 128
	cfg.Clock.RefreshStall = 2
	cpu := &fixedCPU{cycles: 4, hook: func(sys *System) { sys.MarkBusWait() }}
	sys := New(cfg, WithCPU(cpu))

	sys.RunUntil(32 * 28)
	assert.Equal(t, uint64(32*28), sys.Cycles())
}

func TestBusGrantStall(t *testing.T) {
	cpu := &fixedCPU{cycles: 4, hook: func(sys *System) {
		sys.Clock().RecordSecondaryBusAccess(1)
	}}
	z80 := &tickCounter{}
	sys := New(twoCPUConfig(), WithCPU(cpu), WithSecondary("z80", z80))

	assert.Equal(t, uint64((4+11)*7), sys.Step())
	assert.Equal(t, uint64((105-49)/15), z80.ticks)
	assert.Equal(t, uint64((105-49)%15), sys.Clock().Domain(1).Accumulator)
}

func TestBusHeldHaltsSecondary(t *testing.T) {
	cpu := &fixedCPU{cycles: 4, hook: func(sys *System) {
		sys.Clock().RecordSecondaryBusAccess(1)
	}}
	z80 := &tickCounter{}
	sys := New(twoCPUConfig(), WithCPU(cpu), WithSecondary("z80", z80))
	sys.Clock().SetBusHeld(true)

	assert.Equal(t, uint64(28), sys.Step(), "no primary stall while the bus is held")
	assert.True(t, sys.Clock().Halted(1))
	assert.Zero(t, z80.ticks)

	cpu.hook = nil
	sys.Clock().SetBusHeld(false)
	sys.Step()
	assert.False(t, sys.Clock().Halted(1))
	assert.Equal(t, uint64(49-28), sys.Clock().Domain(1).StallRemaining, "the grant stall is paid once the secondary runs")

	sys.Step()
	sys.Step()
	assert.Equal(t, uint64(2), z80.ticks)
}

func TestTimerInterrupt(t *testing.T) {
	sys := New(GBAConfig(), WithCPU(&fixedCPU{cycles: 1}))
	sys.WriteTimerReload(0, 0xFFF0)
	sys.WriteTimerControl(0, 0xC0)

	sys.RunUntil(16)
	assert.Zero(t, sys.Interrupts().Flag())
	assert.Equal(t, uint16(0xFFFF), sys.ReadTimerCounter(0))

	sys.RunUntil(17)
	assert.Equal(t, uint32(1)<<irq.GBATimer0, sys.Interrupts().Flag())
	assert.Equal(t, uint16(0xFFF0), sys.ReadTimerCounter(0))
}

func TestEventWithoutHandler(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	sys := New(GBAConfig(), WithLogger(logger))

	sys.Schedule(events.DMA, 10)
	sys.RunUntil(10)

	assert.False(t, sys.Scheduler().Scheduled(events.DMA))
	assert.Contains(t, logs.String(), "No handler for event")
	assert.Contains(t, logs.String(), "event=DMA")
}

func TestHandlersCanReschedule(t *testing.T) {
	count := 0
	sys := New(GBAConfig(), WithHandler(events.DMA, func(sys *System, ev events.Event) {
		count++
		if count < 3 {
			sys.Schedule(events.DMA, ev.Due)
		}
	}))
	sys.Schedule(events.DMA, 5)

	sys.RunUntil(5)
	assert.Equal(t, 3, count, "events scheduled at the current cycle run in the same dispatch")
}

func TestCancel(t *testing.T) {
	rec := &recorder{}
	sys := New(GBAConfig(), WithHandler(events.DMA, rec.handle))
	sys.Schedule(events.DMA, 5)
	sys.Cancel(events.DMA)

	sys.RunUntil(10)
	assert.Empty(t, rec.seen)
}

func TestInvalidAttachments(t *testing.T) {
	assert.Panics(t, func() { New(twoCPUConfig(), WithSecondary("ym2612", &tickCounter{})) })
	assert.Panics(t, func() { New(twoCPUConfig(), WithSecondary("m68k", &tickCounter{})) })
	assert.Panics(t, func() { New(GBAConfig()).Handle(events.NumKinds, nil) })
}

func newScripted(cpu *scriptCPU) *System {
	return New(twoCPUConfig(), WithCPU(cpu), WithSecondary("z80", &tickCounter{}), WithROM(patternROM{}))
}

func TestReplayIsDeterministic(t *testing.T) {
	a := newScripted(&scriptCPU{})
	b := newScripted(&scriptCPU{})

	a.RunUntil(200_000)
	b.RunUntil(200_000)

	sa, err := a.Save()
	require.NoError(t, err)
	sb, err := b.Save()
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
	assert.Equal(t, uint64(1), a.LCD().Frames())
}

func TestSaveLoadReplay(t *testing.T) {
	cpu := &scriptCPU{}
	a := newScripted(cpu)
	a.RunUntil(100_000)

	mid, err := a.Save()
	require.NoError(t, err)
	resume := *cpu
	midEntries := a.Mailbox(1).Entries()
	midRead := a.ReadMailbox(1, 1)
	require.Len(t, midEntries, 4)
	require.NotZero(t, midRead)

	a.RunUntil(300_000)
	want, err := a.Save()
	require.NoError(t, err)

	b := newScripted(&resume)
	require.NoError(t, b.Load(mid))
	again, err := b.Save()
	require.NoError(t, err)
	assert.Equal(t, mid, again, "save, load, save is byte identical")
	assert.Equal(t, midEntries, b.Mailbox(1).Entries())
	assert.Equal(t, midRead, b.ReadMailbox(1, 1))

	b.RunUntil(300_000)
	got, err := b.Save()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestClone(t *testing.T) {
	cpu := &scriptCPU{}
	a := newScripted(cpu)
	a.RunUntil(50_000)

	c := a.Clone()
	resume := *cpu
	c.SetCPU(&resume)

	a.RunUntil(120_000)
	c.RunUntil(120_000)

	sa, err := a.Save()
	require.NoError(t, err)
	sc, err := c.Save()
	require.NoError(t, err)
	assert.Equal(t, sa, sc)

	c.RunUntil(130_000)
	assert.Less(t, a.Cycles(), c.Cycles(), "clones advance independently")

	assert.Equal(t, a.Mailbox(0).Entries()[0], c.Mailbox(0).Entries()[0], "mailboxes are copied")
	a.PostMailbox(3, 42)
	assert.Zero(t, c.Mailbox(3).Len(), "and not shared")
}

func TestMailboxReadAtLocalCycle(t *testing.T) {
	cpu := &fixedCPU{cycles: 4, hook: func(sys *System) {
		sys.Clock().RecordSecondaryBusAccess(1)
	}}
	sys := New(twoCPUConfig(), WithCPU(cpu))

	for range 50 {
		sys.PostMailbox(0, uint32(cpu.steps+1))
		sys.Step()
		// every grant stalls the z80 longer than a step lasts, so it never
		// ticks, yet it sees the write made at the start of this step
		assert.Equal(t, uint32(cpu.steps), sys.ReadMailbox(0, 1))
	}
	assert.Less(t, sys.Cycles()-sys.Clock().LocalCycle(1), uint64(15))
	assert.Panics(t, func() { sys.Mailbox(Mailboxes) })
}

func TestHaltSkipsToWakingEvent(t *testing.T) {
	cpu := &fixedCPU{cycles: 1}
	cpu.hook = func(sys *System) {
		if cpu.steps == 1 {
			sys.Interrupts().Halt()
		}
	}
	sys := New(GBAConfig(), WithCPU(cpu))
	sys.Interrupts().WriteEnable(1 << irq.GBATimer0)
	sys.WriteTimerReload(0, 0xFF00)
	sys.WriteTimerControl(0, 0xC0)

	assert.Equal(t, uint64(1), sys.Step())
	require.True(t, sys.Interrupts().Halted())

	assert.Equal(t, uint64(256), sys.Step(), "straight to the timer overflow at 257")
	assert.False(t, sys.Interrupts().Halted())
	assert.Equal(t, 1, cpu.steps)

	assert.Equal(t, uint64(1), sys.Step())
	assert.Equal(t, 2, cpu.steps)
}

func TestRunUntilWhileHalted(t *testing.T) {
	cpu := &fixedCPU{cycles: 1, hook: func(sys *System) { sys.Interrupts().Halt() }}
	sys := New(GBAConfig(), WithCPU(cpu))

	sys.RunUntil(5000)
	assert.Equal(t, uint64(5000), sys.Cycles())
	assert.Equal(t, 1, cpu.steps, "nothing enabled wakes the CPU")
	assert.Equal(t, uint16(4), sys.LCD().Line())

	assert.Equal(t, uint64(934), sys.Step(), "to the next HBlank")
	assert.Equal(t, 1, cpu.steps)

	sys.LCD().Stop(sys.Scheduler())
	assert.Panics(t, func() { sys.Step() })
}

func TestLoadErrors(t *testing.T) {
	sys := newScripted(&scriptCPU{})
	sys.RunUntil(10_000)
	before, err := sys.Save()
	require.NoError(t, err)

	other := New(GBAConfig())
	foreign, err := other.Save()
	require.NoError(t, err)

	badVersion := bytes.Clone(before)
	badVersion[4+len(stateMagic)] = 0xFF

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not a save state")},
		{"bad version", badVersion},
		{"truncated", before[:len(before)-3]},
		{"trailing bytes", append(bytes.Clone(before), 0)},
		{"different clock tree", foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, sys.Load(tt.data), state.ErrCorrupt)

			after, err := sys.Save()
			require.NoError(t, err)
			assert.Equal(t, before, after, "a failed load leaves the system alone")
		})
	}
}
