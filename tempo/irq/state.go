package irq

import "github.com/valerio/go-tempo/tempo/state"

// Save writes the registers and the priority order.
func (a *Arbiter) Save(w *state.Writer) {
	w.Tag("irq")
	w.U8(a.width)
	w.U32(a.enable)
	w.U32(a.flag)
	w.Bool(a.master)
	w.Bool(a.halted)
	w.Bool(a.stopped)
	w.U64(a.clearCycle)
	w.U32(a.clearMask)
	w.Bool(a.ranked)
	for _, s := range a.order[:a.width] {
		w.U8(uint8(s))
	}
}

// Load restores a state written by Save. The register width must match
// the Arbiter's; the Arbiter is left untouched on error.
func (a *Arbiter) Load(r *state.Reader) error {
	r.Expect("irq")
	loaded := *a
	if width := r.U8(); r.Err() == nil && width != a.width {
		r.Fail("irq: saved %d-bit register, configured %d", width, a.width)
		return r.Err()
	}
	loaded.enable = r.U32()
	loaded.flag = r.U32()
	loaded.master = r.Bool()
	loaded.halted = r.Bool()
	loaded.stopped = r.Bool()
	loaded.clearCycle = r.U64()
	loaded.clearMask = r.U32()
	loaded.ranked = r.Bool()
	var seen uint32
	for i := range loaded.order[:a.width] {
		s := Source(r.U8())
		if r.Err() == nil && (uint8(s) >= a.width || seen&(1<<s) != 0) {
			r.Fail("irq: invalid priority list entry %d", s)
		}
		seen |= 1 << s
		loaded.order[i] = s
	}
	if err := r.Err(); err != nil {
		return err
	}
	if loaded.stopped && !loaded.halted {
		r.Fail("irq: stopped without being halted")
		return r.Err()
	}
	if loaded.enable&^a.mask != 0 || loaded.flag&^a.mask != 0 || loaded.clearMask&^a.mask != 0 {
		r.Fail("irq: register bits outside a %d-bit register", a.width)
		return r.Err()
	}
	*a = loaded
	return nil
}
