package bus

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

// Width is the size of one access in bytes.
type Width uint8

const (
	Byte     Width = 1
	Halfword Width = 2
	Word     Width = 4
)

func (w Width) valid() bool {
	return w == Byte || w == Halfword || w == Word
}

func (w Width) String() string {
	switch w {
	case Byte:
		return "byte"
	case Halfword:
		return "halfword"
	case Word:
		return "word"
	default:
		return fmt.Sprintf("Width(%d)", uint8(w))
	}
}

// Access tells whether an access follows on from the previous one.
type Access uint8

const (
	NonSequential Access = iota
	Sequential
)

// WaitSlot selects where a region's wait states come from.
type WaitSlot uint8

const (
	// Fixed regions use the N and S waits declared on the region.
	Fixed WaitSlot = iota
	// SRAM regions use the SRAM wait from the control register.
	SRAM
	// WS0 to WS2 use one of the three cartridge ROM wait state slots.
	WS0
	WS1
	WS2
)

var slotNames = [...]string{"fixed", "sram", "ws0", "ws1", "ws2"}

func (s WaitSlot) String() string {
	if int(s) < len(slotNames) {
		return slotNames[s]
	}
	return fmt.Sprintf("WaitSlot(%d)", uint8(s))
}

// ParseWaitSlot is the inverse of WaitSlot.String.
func ParseWaitSlot(name string) (WaitSlot, bool) {
	i := slices.Index(slotNames[:], name)
	if i < 0 {
		return 0, false
	}
	return WaitSlot(i), true
}

// Region is a contiguous address range with uniform timing.
type Region struct {
	Name       string
	Start, End uint32 // inclusive
	// DataBus is the width of the region's data bus. Wider accesses are
	// split into several beats, the ones after the first are sequential.
	DataBus Width
	Slot    WaitSlot
	// N and S are the non-sequential and sequential waits of Fixed regions.
	N, S uint64
	// OneBeat regions answer wider accesses with a single narrow access (8-bit SRAM).
	OneBeat bool
	// Prefetch regions are served by the cartridge prefetch unit.
	Prefetch bool
}

func (r Region) contains(address uint32) bool {
	return address >= r.Start && address <= r.End
}

func (r Region) waits(c WaitControl) (n, s uint64) {
	switch r.Slot {
	case SRAM:
		return c.sram, c.sram
	case WS0, WS1, WS2:
		i := r.Slot - WS0
		return c.n[i], c.s[i]
	default:
		return r.N, r.S
	}
}

// cost is the cycles of one access: one bus cycle plus the first wait,
// then one sequential beat per extra data bus width.
func (r Region) cost(c WaitControl, width Width, access Access) uint64 {
	n, s := r.waits(c)
	first := n
	if access == Sequential {
		first = s
	}

	beats := uint64(1)
	if !r.OneBeat && width > r.DataBus {
		beats = uint64(width / r.DataBus)
	}

	return 1 + first + (beats-1)*(1+s)
}

// ErrRegions is returned by ValidateRegions.
var ErrRegions = errors.New("invalid bus regions")

// ValidateRegions checks that regions cover the whole 32-bit address space
// exactly once.
func ValidateRegions(regions []Region) error {
	if len(regions) == 0 {
		return fmt.Errorf("%w: no regions", ErrRegions)
	}

	sorted := slices.Clone(regions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	next := uint64(0)
	for _, r := range sorted {
		if r.End < r.Start {
			return fmt.Errorf("%w: %s ends before it starts", ErrRegions, r.Name)
		}
		if uint64(r.Start) != next {
			if uint64(r.Start) < next {
				return fmt.Errorf("%w: %s overlaps the previous region at 0x%08X", ErrRegions, r.Name, r.Start)
			}
			return fmt.Errorf("%w: gap at 0x%08X before %s", ErrRegions, next, r.Name)
		}
		if !r.DataBus.valid() {
			return fmt.Errorf("%w: %s has data bus %s", ErrRegions, r.Name, r.DataBus)
		}
		if r.Slot > WS2 {
			return fmt.Errorf("%w: %s has wait slot %s", ErrRegions, r.Name, r.Slot)
		}
		next = uint64(r.End) + 1
	}
	if next != math.MaxUint32+1 {
		return fmt.Errorf("%w: gap at 0x%08X to the end of the address space", ErrRegions, next)
	}
	return nil
}

// Table is an immutable map from address to Region. It may be shared by
// any number of Bus values.
type Table struct {
	regions []Region
}

// NewTable builds a Table. Regions that don't cover the address space
// exactly once are a programming error and panic; use ValidateRegions first
// when they come from user input.
func NewTable(regions []Region) *Table {
	if err := ValidateRegions(regions); err != nil {
		panic("bus: " + err.Error())
	}

	sorted := slices.Clone(regions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	return &Table{regions: sorted}
}

// Lookup returns the region containing address.
func (t *Table) Lookup(address uint32) Region {
	i := sort.Search(len(t.regions), func(i int) bool { return t.regions[i].End >= address })
	return t.regions[i]
}

// Regions returns a copy of the table's regions in address order.
func (t *Table) Regions() []Region {
	return slices.Clone(t.regions)
}

// GBARegions returns the Game Boy Advance memory map. EWRAM has fixed
// waits, the three cartridge mirrors and SRAM use the wait control slots.
func GBARegions() []Region {
	return []Region{
		{Name: "bios", Start: 0x00000000, End: 0x01FFFFFF, DataBus: Word},
		{Name: "ewram", Start: 0x02000000, End: 0x02FFFFFF, DataBus: Halfword, N: 2, S: 2},
		{Name: "iwram", Start: 0x03000000, End: 0x03FFFFFF, DataBus: Word},
		{Name: "io", Start: 0x04000000, End: 0x04FFFFFF, DataBus: Word},
		{Name: "vram", Start: 0x05000000, End: 0x06FFFFFF, DataBus: Halfword},
		{Name: "oam", Start: 0x07000000, End: 0x07FFFFFF, DataBus: Word},
		{Name: "rom0", Start: 0x08000000, End: 0x09FFFFFF, DataBus: Halfword, Slot: WS0, Prefetch: true},
		{Name: "rom1", Start: 0x0A000000, End: 0x0BFFFFFF, DataBus: Halfword, Slot: WS1, Prefetch: true},
		{Name: "rom2", Start: 0x0C000000, End: 0x0DFFFFFF, DataBus: Halfword, Slot: WS2, Prefetch: true},
		{Name: "sram", Start: 0x0E000000, End: 0x0FFFFFFF, DataBus: Byte, Slot: SRAM, OneBeat: true},
		{Name: "open", Start: 0x10000000, End: 0xFFFFFFFF, DataBus: Word},
	}
}
