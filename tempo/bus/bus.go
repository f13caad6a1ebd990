// Package bus models what memory accesses cost.
//
// A Table maps every address to a Region with its wait states, a
// WaitControl register picks the configurable ones, and the cartridge
// prefetch unit hides ROM latency by fetching instruction halfwords while
// the CPU is busy elsewhere.
package bus

import (
	"fmt"
	"log/slog"
)

// ROM is the cartridge the prefetch unit reads from.
type ROM interface {
	ReadHalfword(address uint32) uint16
}

// Bus owns the timing state of one system's memory bus.
type Bus struct {
	table    *Table
	control  WaitControl
	prefetch Prefetcher
	rom      ROM
}

// New returns a Bus with the control register at zero.
func New(table *Table, rom ROM) *Bus {
	return &Bus{
		table:   table,
		control: DecodeWaitControl(0),
		rom:     rom,
	}
}

// Table returns the bus's region table.
func (b *Bus) Table() *Table {
	return b.table
}

// AttachROM replaces the prefetch unit's ROM, e.g. after a clone.
func (b *Bus) AttachROM(rom ROM) {
	b.rom = rom
}

// WriteControl writes the wait state control register.
func (b *Bus) WriteControl(value uint16) {
	b.control = DecodeWaitControl(value)
	slog.Debug("Wait control write", "value", fmt.Sprintf("0x%04X", b.control.Raw()),
		"prefetch", b.control.PrefetchEnabled())
}

// Control returns the decoded control register.
func (b *Bus) Control() WaitControl {
	return b.control
}

// Prefetcher returns a copy of the prefetch unit's state.
func (b *Bus) Prefetcher() Prefetcher {
	return b.prefetch
}

// Cost returns the cycles an access takes, without side effects.
func (b *Bus) Cost(address uint32, width Width, access Access) uint64 {
	return b.table.Lookup(address).cost(b.control, width, access)
}

// DataAccess charges a data read or write. A cartridge access takes the
// cartridge bus away from the prefetch unit and stops it; any other access
// leaves the prefetch unit running in the background.
func (b *Bus) DataAccess(address uint32, width Width, access Access) uint64 {
	r := b.table.Lookup(address)
	cycles := r.cost(b.control, width, access)
	if r.Prefetch {
		return b.StopPrefetch() + cycles
	}
	b.Idle(cycles)
	return cycles
}

// PrepareRead points the prefetch unit at address. If it is already there
// nothing changes; otherwise any fetch in progress is abandoned and a new
// non-sequential fetch starts. It returns the cycles lost abandoning the
// old fetch.
func (b *Bus) PrepareRead(address uint32) uint64 {
	if b.prefetch.canUseFor(address) {
		return 0
	}

	r := b.table.Lookup(address)
	if !r.Prefetch {
		panic(fmt.Sprintf("bus: prefetch read from 0x%08X in %s", address, r.Name))
	}

	penalty := b.abandonFetch()
	n, _ := r.waits(b.control)
	b.prefetch.restart(address, 1+n)

	slog.Debug("Prefetch restart", "address", fmt.Sprintf("0x%08X", address), "penalty", penalty)
	return penalty
}

// Read fetches the instruction halfword at address through the prefetch
// unit. A buffered halfword costs one cycle; otherwise the caller waits for
// the fetch in progress to finish.
func (b *Bus) Read(address uint32) (uint16, uint64) {
	cycles := b.PrepareRead(address)

	if b.prefetch.Empty() {
		wait := b.prefetch.cyclesRemaining
		b.Idle(wait)
		value := b.prefetch.pop()
		return value, cycles + wait
	}

	value := b.prefetch.pop()
	b.Idle(1)
	return value, cycles + 1
}

// Idle lets the prefetch unit run for cycles during which the CPU doesn't
// use the cartridge bus. Fetching pauses when the buffer fills, when it
// crosses a 128 KiB boundary or when prefetch is disabled, and resumes
// only once the buffer has been drained.
func (b *Bus) Idle(cycles uint64) {
	p := &b.prefetch
	if !p.active {
		return
	}

	for cycles != 0 {
		if cycles < p.cyclesRemaining {
			p.cyclesRemaining -= cycles
			return
		}

		cycles -= p.cyclesRemaining
		p.push(b.rom.ReadHalfword(p.writeAddr))

		if p.Full() || p.writeAddr&prefetchPageMask == 0 || !b.control.PrefetchEnabled() {
			p.pause()
			return
		}

		_, s := b.table.Lookup(p.writeAddr).waits(b.control)
		p.cyclesRemaining = 1 + s
	}
}

// StopPrefetch halts the prefetch unit and drops its buffer. It returns the
// cycles lost abandoning the fetch in progress.
func (b *Bus) StopPrefetch() uint64 {
	penalty := uint64(0)
	if b.prefetch.active {
		penalty = b.abandonFetch()
	}
	b.prefetch = Prefetcher{}
	return penalty
}

// abandonFetch charges one extra cycle when the fetch being abandoned was
// in its last cycle.
func (b *Bus) abandonFetch() uint64 {
	if b.prefetch.active && b.prefetch.cyclesRemaining == 1 {
		return 1
	}
	return 0
}
