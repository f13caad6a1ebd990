package bus

import "github.com/valerio/go-tempo/tempo/state"

// Save writes the control register and the prefetch unit. The buffer is
// written in logical order, oldest halfword first, so the ring's physical
// position doesn't leak into the save state.
func (b *Bus) Save(w *state.Writer) {
	p := &b.prefetch
	w.Tag("bus")
	w.U16(b.control.Raw())
	w.U32(p.readAddr)
	w.U32(p.writeAddr)
	w.Bool(p.active)
	w.U64(p.cyclesRemaining)
	w.U8(p.len)
	for _, v := range p.Buffered() {
		w.U16(v)
	}
}

// Load restores a state written by Save. The Bus is left untouched on error.
func (b *Bus) Load(r *state.Reader) error {
	r.Expect("bus")
	control := DecodeWaitControl(r.U16())

	var p Prefetcher
	p.readAddr = r.U32()
	p.writeAddr = r.U32()
	p.active = r.Bool()
	p.cyclesRemaining = r.U64()
	n := r.U8()
	if err := r.Err(); err != nil {
		return err
	}

	switch {
	case n > PrefetchDepth:
		r.Fail("bus: %d buffered halfwords, depth is %d", n, PrefetchDepth)
	case !p.active && p.cyclesRemaining != 0:
		r.Fail("bus: idle prefetch unit with %d cycles remaining", p.cyclesRemaining)
	case p.active && p.cyclesRemaining == 0:
		r.Fail("bus: active prefetch unit with no cycles remaining")
	case p.writeAddr-p.readAddr != 2*uint32(n):
		r.Fail("bus: prefetch addresses 0x%08X-0x%08X don't match %d buffered halfwords", p.readAddr, p.writeAddr, n)
	}
	if err := r.Err(); err != nil {
		return err
	}

	for i := uint8(0); i < n; i++ {
		p.buffer[i] = r.U16()
	}
	p.len = n
	p.writeIdx = n % PrefetchDepth
	if err := r.Err(); err != nil {
		return err
	}

	b.control = control
	b.prefetch = p
	return nil
}
