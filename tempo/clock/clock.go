// Package clock converts master clock cycles into per-chip ticks.
//
// Every chip runs from the same master clock through an integer divider. The
// Converter carries each chip's leftover master cycles between calls, charges
// the primary CPU for memory refresh and for bus grants to a secondary CPU,
// and holds a secondary back for the cycles it loses while it owns the
// primary bus.
package clock

import (
	"fmt"

	"github.com/valerio/go-tempo/tempo/bit"
)

// MaxDomains is the number of clock domains a Converter can hold.
const MaxDomains = 8

// Primary is the index of the domain whose instructions drive the loop.
const Primary = 0

// Domain is one chip's view of the master clock.
type Domain struct {
	Name string
	// Divider is the number of master cycles per domain tick.
	Divider uint64
	// Accumulator holds master cycles not yet converted into a tick.
	Accumulator uint64
	// StallRemaining is master cycles the domain must wait before it advances again.
	StallRemaining uint64
	// Elapsed is every master cycle the domain has been through, stalled,
	// halted or not.
	Elapsed uint64
}

// DomainConfig registers a domain with a Converter.
type DomainConfig struct {
	Name    string
	Divider uint64
}

// Config describes the clock tree and stall constants. Domains[0] is the
// primary domain.
type Config struct {
	Domains []DomainConfig

	// RefreshInterval is the number of primary cycles between memory
	// refreshes, 0 disables refresh stalls.
	RefreshInterval uint64
	// RefreshStall is the primary cycles lost per refresh.
	RefreshStall uint64

	// GrantPrimaryStall is the primary cycles lost each time a secondary
	// takes over the primary bus.
	GrantPrimaryStall uint64
	// GrantSecondaryStall is the master cycles the secondary waits for an
	// even access; odd accesses wait one more.
	GrantSecondaryStall uint64
	// SecondaryAccessStall is the primary cycles lost when the primary
	// reaches into a secondary's bus.
	SecondaryAccessStall uint64

	// MaxStallMaster caps the pending primary stall, in master cycles.
	// 0 means no cap.
	MaxStallMaster uint64
}

// Ticks is the result of one Advance.
type Ticks struct {
	n       int
	ticks   [MaxDomains]uint64
	stalled [MaxDomains]uint64
}

// Of returns the ticks domain id advanced by.
func (t Ticks) Of(id int) uint64 {
	return t.ticks[id]
}

// Stalled returns the master cycles domain id spent waiting instead of advancing.
func (t Ticks) Stalled(id int) uint64 {
	return t.stalled[id]
}

// Len returns the number of domains in the result.
func (t Ticks) Len() int {
	return t.n
}

// Converter owns every clock domain of one system. It is plain data:
// copying the struct clones it.
type Converter struct {
	domains [MaxDomains]Domain
	n       int

	refreshInterval      uint64
	refreshStall         uint64
	grantPrimaryStall    uint64
	grantSecondaryStall  uint64
	secondaryAccessStall uint64
	maxStallMaster       uint64

	refreshCounter  uint64
	primaryStall    uint64
	maxPrimaryStall uint64
	oddAccess       bool
	busHeld         bool
	halted          uint8
}

// New builds a Converter. A zero divider or a bad domain count is a programming error and panics.
func New(cfg Config) *Converter {
	if len(cfg.Domains) == 0 || len(cfg.Domains) > MaxDomains {
		panic(fmt.Sprintf("clock: need 1 to %d domains, got %d", MaxDomains, len(cfg.Domains)))
	}

	c := &Converter{
		n:                    len(cfg.Domains),
		refreshInterval:      cfg.RefreshInterval,
		refreshStall:         cfg.RefreshStall,
		grantPrimaryStall:    cfg.GrantPrimaryStall,
		grantSecondaryStall:  cfg.GrantSecondaryStall,
		secondaryAccessStall: cfg.SecondaryAccessStall,
		maxStallMaster:       cfg.MaxStallMaster,
	}
	for i, d := range cfg.Domains {
		if d.Divider == 0 {
			panic(fmt.Sprintf("clock: domain %q has a zero divider", d.Name))
		}
		c.domains[i] = Domain{Name: d.Name, Divider: d.Divider}
	}
	c.updateMaxPrimaryStall()

	return c
}

func (c *Converter) mustHave(id int) {
	if id < 0 || id >= c.n {
		panic(fmt.Sprintf("clock: unknown domain %d", id))
	}
}

func (c *Converter) mustBeSecondary(id int) {
	c.mustHave(id)
	if id == Primary {
		panic("clock: the primary domain can't take a bus grant from itself")
	}
}

// Len returns the number of registered domains.
func (c *Converter) Len() int {
	return c.n
}

// Domain returns a copy of domain id.
func (c *Converter) Domain(id int) Domain {
	c.mustHave(id)
	return c.domains[id]
}

// Lookup finds a domain by name.
func (c *Converter) Lookup(name string) (int, bool) {
	for i := 0; i < c.n; i++ {
		if c.domains[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// Advance moves every domain forward by master cycles. Pending stall is
// paid first, what is left is converted into ticks. While the bus is held
// a secondary's stall is put off: it keeps running and pays once the
// hold is released.
func (c *Converter) Advance(master uint64) Ticks {
	t := Ticks{n: c.n}
	for i := 0; i < c.n; i++ {
		d := &c.domains[i]
		d.Elapsed += master
		avail := master

		if c.halted&(1<<i) != 0 {
			t.stalled[i] = avail
			continue
		}

		if d.StallRemaining > 0 && !c.busHeld {
			paid := min(d.StallRemaining, avail)
			d.StallRemaining -= paid
			avail -= paid
			t.stalled[i] = paid
		}

		d.Accumulator += avail
		t.ticks[i] = d.Accumulator / d.Divider
		d.Accumulator %= d.Divider
	}
	return t
}

// LocalCycle returns the master cycle domain id has reached: the end of
// its last whole tick. It never goes backwards and is never more than one
// divider behind the master clock, whatever the domain lost to stalls.
func (c *Converter) LocalCycle(id int) uint64 {
	c.mustHave(id)
	d := &c.domains[id]
	return d.Elapsed - min(d.Accumulator, d.Elapsed)
}

// Stall holds domain id back for master cycles on top of any pending stall.
func (c *Converter) Stall(id int, master uint64) {
	c.mustHave(id)
	c.domains[id].StallRemaining += master
}

// RecordPrimary accounts for one primary instruction of cycles primary
// ticks and returns the master cycles it took. waited is true when the
// instruction already sat out a bus wait, which hides the refresh.
//
// Refresh is charged at most once per instruction, even when a long
// instruction spans several refresh periods.
func (c *Converter) RecordPrimary(cycles uint64, waited bool) uint64 {
	if c.refreshInterval > 0 {
		if c.busHeld {
			c.refreshCounter = 0
		} else {
			c.refreshCounter += cycles
			if c.refreshCounter >= c.refreshInterval {
				if !waited {
					c.addPrimaryStall(c.refreshStall)
				}
				c.refreshCounter %= c.refreshInterval
			}
		}
	}

	return cycles * c.domains[Primary].Divider
}

// RecordSecondaryBusAccess accounts for secondary domain id reading or
// writing the primary bus. The secondary waits GrantSecondaryStall master
// cycles, plus one on every other access. If the bus is held (DMA) the
// secondary halts until the hold is released, otherwise the primary loses
// GrantPrimaryStall cycles.
func (c *Converter) RecordSecondaryBusAccess(id int) {
	c.mustBeSecondary(id)

	c.domains[id].StallRemaining += c.grantSecondaryStall + bit.FromBool(c.oddAccess)
	c.oddAccess = !c.oddAccess

	if c.busHeld {
		c.halted |= 1 << id
		return
	}
	c.addPrimaryStall(c.grantPrimaryStall)
}

// RecordPrimaryToSecondaryAccess accounts for the primary reaching into a
// secondary's bus.
func (c *Converter) RecordPrimaryToSecondaryAccess() {
	c.addPrimaryStall(c.secondaryAccessStall)
}

// SetBusHeld marks the primary bus as held by DMA. Releasing it lets halted
// secondaries run again.
func (c *Converter) SetBusHeld(held bool) {
	c.busHeld = held
	if !held {
		c.halted = 0
	}
}

// BusHeld reports whether the primary bus is held by DMA.
func (c *Converter) BusHeld() bool {
	return c.busHeld
}

// Halted reports whether secondary domain id is halted waiting for the bus.
func (c *Converter) Halted(id int) bool {
	c.mustHave(id)
	return c.halted&(1<<id) != 0
}

// OddAccess returns the parity of the next secondary bus access.
func (c *Converter) OddAccess() bool {
	return c.oddAccess
}

// PendingPrimaryStall returns the primary cycles charged but not yet taken.
func (c *Converter) PendingPrimaryStall() uint64 {
	return c.primaryStall
}

// TakePrimaryStall returns the pending primary stall and clears it. The
// driving loop adds it to the next instruction's cycles.
func (c *Converter) TakePrimaryStall() uint64 {
	s := c.primaryStall
	c.primaryStall = 0
	return s
}

// SetDivider changes a domain's divider, e.g. on a clock speed switch.
// The accumulator is kept and is brought back under the divider by the next Advance.
func (c *Converter) SetDivider(id int, divider uint64) {
	c.mustHave(id)
	if divider == 0 {
		panic(fmt.Sprintf("clock: zero divider for domain %q", c.domains[id].Name))
	}
	c.domains[id].Divider = divider
	if id == Primary {
		c.updateMaxPrimaryStall()
		c.primaryStall = c.clampPrimaryStall(c.primaryStall)
	}
}

func (c *Converter) addPrimaryStall(cycles uint64) {
	c.primaryStall = c.clampPrimaryStall(c.primaryStall + cycles)
}

func (c *Converter) clampPrimaryStall(cycles uint64) uint64 {
	if c.maxPrimaryStall == 0 {
		return cycles
	}
	return min(cycles, c.maxPrimaryStall)
}

func (c *Converter) updateMaxPrimaryStall() {
	if c.maxStallMaster == 0 {
		c.maxPrimaryStall = 0
		return
	}
	c.maxPrimaryStall = max(1, c.maxStallMaster/c.domains[Primary].Divider)
}
