// Package irq arbitrates between interrupt sources.
//
// Each source owns one bit of the enable and flag registers. A source is
// pending when both its bits are set, and when several are pending the
// arbiter always picks the same one: by default the lowest bit wins, as on
// the Game Boy and GBA, or the first one in a declared priority list.
package irq

import (
	"fmt"

	"github.com/valerio/go-tempo/tempo/bit"
)

// MaxSources is the widest interrupt register supported.
const MaxSources = 32

// Source is a bit position in the enable and flag registers.
type Source uint8

// Game Boy interrupt sources, highest priority first.
const (
	VBlank Source = iota
	LCDStat
	Timer
	Serial
	Joypad
)

// GBA interrupt sources.
const (
	GBAVBlank Source = iota
	GBAHBlank
	GBAVCounter
	GBATimer0
	GBATimer1
	GBATimer2
	GBATimer3
	GBASerial
	GBADMA0
	GBADMA1
	GBADMA2
	GBADMA3
	GBAKeypad
	GBAGamePak
)

// Arbiter holds the enable and flag registers. It is plain data: copying
// the struct clones it.
type Arbiter struct {
	width  uint8
	mask   uint32
	enable uint32
	flag   uint32
	master bool

	halted  bool
	stopped bool

	// flag clears written on clearCycle, which beat raises on the same cycle
	clearCycle uint64
	clearMask  uint32

	ranked bool
	order  [MaxSources]Source
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithPriority declares an explicit priority order, highest first. Every
// source must appear exactly once.
func WithPriority(order ...Source) Option {
	return func(a *Arbiter) {
		if len(order) != int(a.width) {
			panic(fmt.Sprintf("irq: priority list has %d sources, register has %d", len(order), a.width))
		}
		var seen uint32
		for i, s := range order {
			if int(s) >= int(a.width) || bit.IsSet(uint8(s), seen) {
				panic(fmt.Sprintf("irq: invalid or repeated source %d in priority list", s))
			}
			seen = bit.Set(uint8(s), seen)
			a.order[i] = s
		}
		a.ranked = true
	}
}

// WithMasterEnable sets the initial state of the master enable.
func WithMasterEnable(enabled bool) Option {
	return func(a *Arbiter) {
		a.master = enabled
	}
}

// New returns an Arbiter with width sources, all disabled and clear.
func New(width int, opts ...Option) Arbiter {
	if width < 1 || width > MaxSources {
		panic(fmt.Sprintf("irq: invalid register width %d", width))
	}
	a := Arbiter{
		width: uint8(width),
		mask:  bit.Mask[uint32](width),
	}
	for i := range a.order[:width] {
		a.order[i] = Source(i)
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

func (a *Arbiter) mustHave(s Source) {
	if uint8(s) >= a.width {
		panic(fmt.Sprintf("irq: source %d outside a %d-bit register", s, a.width))
	}
}

// Width returns the number of sources.
func (a *Arbiter) Width() int {
	return int(a.width)
}

// SetFlag raises s. Raising an already raised source does nothing.
func (a *Arbiter) SetFlag(s Source) {
	a.mustHave(s)
	a.flag = bit.Set(uint8(s), a.flag)
	a.wake()
}

// RaiseAt raises s as of master cycle. A flag clear written on the same
// cycle wins and the raise is dropped.
func (a *Arbiter) RaiseAt(s Source, cycle uint64) {
	a.mustHave(s)
	if cycle == a.clearCycle && bit.IsSet(uint8(s), a.clearMask) {
		return
	}
	a.SetFlag(s)
}

// Acknowledge clears s only.
func (a *Arbiter) Acknowledge(s Source) {
	a.mustHave(s)
	a.flag = bit.Clear(uint8(s), a.flag)
}

// WriteEnable replaces the enable register.
func (a *Arbiter) WriteEnable(mask uint32) {
	a.enable = mask & a.mask
	a.wake()
}

// WriteFlag replaces the flag register (Game Boy IF).
func (a *Arbiter) WriteFlag(mask uint32) {
	a.flag = mask & a.mask
	a.wake()
}

// WriteFlagClear clears every flag whose bit is set in mask (GBA IF,
// write 1 to clear).
func (a *Arbiter) WriteFlagClear(mask uint32) {
	a.flag &^= mask & a.mask
}

// ClearFlagsAt is WriteFlagClear as of master cycle. Sources raised later
// on the same cycle stay clear.
func (a *Arbiter) ClearFlagsAt(mask uint32, cycle uint64) {
	if cycle != a.clearCycle {
		a.clearMask = 0
	}
	a.clearCycle = cycle
	a.clearMask |= mask & a.mask
	a.WriteFlagClear(mask)
}

// Enable returns the enable register.
func (a *Arbiter) Enable() uint32 {
	return a.enable
}

// Flag returns the flag register.
func (a *Arbiter) Flag() uint32 {
	return a.flag
}

// Pending returns the sources that are both enabled and raised.
func (a *Arbiter) Pending() uint32 {
	return a.enable & a.flag
}

// HighestPriorityPending returns the pending source the CPU must service first.
func (a *Arbiter) HighestPriorityPending() (Source, bool) {
	pending := a.Pending()
	if pending == 0 {
		return 0, false
	}

	if !a.ranked {
		i, _ := bit.Lowest(pending)
		return Source(i), true
	}

	for _, s := range a.order[:a.width] {
		if bit.IsSet(uint8(s), pending) {
			return s, true
		}
	}
	panic("irq: pending source missing from priority list")
}

// SetMasterEnable sets the CPU-side master enable (IME).
func (a *Arbiter) SetMasterEnable(enabled bool) {
	a.master = enabled
}

// MasterEnable returns the master enable.
func (a *Arbiter) MasterEnable() bool {
	return a.master
}

// IRQ reports whether the CPU should take an interrupt now.
func (a *Arbiter) IRQ() bool {
	return a.master && a.Pending() != 0
}

// Halt parks the CPU until an enabled source is raised, whether or not the
// master enable is set.
func (a *Arbiter) Halt() {
	a.halted = true
	a.wake()
}

// Stop is the low power variant of Halt. It wakes up the same way.
func (a *Arbiter) Stop() {
	a.halted = true
	a.stopped = true
	a.wake()
}

// Halted reports whether the CPU is waiting for an interrupt.
func (a *Arbiter) Halted() bool {
	return a.halted
}

// Stopped reports whether the CPU is in the low power halt.
func (a *Arbiter) Stopped() bool {
	return a.stopped
}

func (a *Arbiter) wake() {
	if a.halted && a.Pending() != 0 {
		a.halted = false
		a.stopped = false
	}
}
