package bus

import "github.com/valerio/go-tempo/tempo/bit"

// Wait state choices of the control register.
var (
	nWaits   = [4]uint64{4, 3, 2, 8}
	sWaitWS0 = [2]uint64{2, 1}
	sWaitWS1 = [2]uint64{4, 1}
	sWaitWS2 = [2]uint64{8, 1}
)

// writableBits excludes the read-only cartridge type bit and the unused bit 13.
const writableBits = 0x5FFF

// WaitControl is the decoded wait state control register.
//
//	bits 0-1   SRAM wait          (4, 3, 2, 8)
//	bits 2-3   WS0 first access   (4, 3, 2, 8)
//	bit  4     WS0 second access  (2, 1)
//	bits 5-6   WS1 first access   (4, 3, 2, 8)
//	bit  7     WS1 second access  (4, 1)
//	bits 8-9   WS2 first access   (4, 3, 2, 8)
//	bit  10    WS2 second access  (8, 1)
//	bits 11-12 PHI terminal output (no timing effect)
//	bit  14    prefetch buffer enable
type WaitControl struct {
	raw      uint16
	sram     uint64
	n        [3]uint64
	s        [3]uint64
	prefetch bool
}

// DecodeWaitControl decodes a register write.
func DecodeWaitControl(value uint16) WaitControl {
	value &= writableBits
	return WaitControl{
		raw:  value,
		sram: nWaits[bit.Extract(value, 1, 0)],
		n: [3]uint64{
			nWaits[bit.Extract(value, 3, 2)],
			nWaits[bit.Extract(value, 6, 5)],
			nWaits[bit.Extract(value, 9, 8)],
		},
		s: [3]uint64{
			sWaitWS0[bit.Extract(value, 4, 4)],
			sWaitWS1[bit.Extract(value, 7, 7)],
			sWaitWS2[bit.Extract(value, 10, 10)],
		},
		prefetch: bit.IsSet(14, value),
	}
}

// Raw returns the register value as written (minus read-only bits).
func (c WaitControl) Raw() uint16 {
	return c.raw
}

// PrefetchEnabled reports whether the cartridge prefetch unit may run ahead.
func (c WaitControl) PrefetchEnabled() bool {
	return c.prefetch
}

// SRAMWait returns the SRAM wait cycles.
func (c WaitControl) SRAMWait() uint64 {
	return c.sram
}

// ROMWaits returns the first and second access waits of ROM slot 0-2.
func (c WaitControl) ROMWaits(slot int) (n, s uint64) {
	return c.n[slot], c.s[slot]
}
