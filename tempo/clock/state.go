package clock

import "github.com/valerio/go-tempo/tempo/state"

// Save writes the mutable state of every domain and of the stall trackers.
// Constants from Config are not saved; Load expects a Converter built from
// the same Config.
func (c *Converter) Save(w *state.Writer) {
	w.Tag("clock")
	w.U8(uint8(c.n))
	for _, d := range c.domains[:c.n] {
		w.String(d.Name)
		w.U64(d.Divider)
		w.U64(d.Accumulator)
		w.U64(d.StallRemaining)
		w.U64(d.Elapsed)
	}
	w.U64(c.refreshCounter)
	w.U64(c.primaryStall)
	w.U64(c.maxPrimaryStall)
	w.Bool(c.oddAccess)
	w.Bool(c.busHeld)
	w.U8(c.halted)
}

// Load restores a state written by Save. The Converter is left untouched on error.
func (c *Converter) Load(r *state.Reader) error {
	r.Expect("clock")
	loaded := *c
	if n := int(r.U8()); r.Err() == nil && n != c.n {
		r.Fail("clock: saved %d domains, configured %d", n, c.n)
		return r.Err()
	}
	for i := 0; i < c.n; i++ {
		d := &loaded.domains[i]
		if name := r.String(); r.Err() == nil && name != d.Name {
			r.Fail("clock: saved domain %d is %q, configured %q", i, name, d.Name)
		}
		d.Divider = r.U64()
		d.Accumulator = r.U64()
		d.StallRemaining = r.U64()
		d.Elapsed = r.U64()
		if r.Err() == nil && d.Divider == 0 {
			r.Fail("clock: domain %q has a zero divider", d.Name)
		}
	}
	loaded.refreshCounter = r.U64()
	loaded.primaryStall = r.U64()
	loaded.maxPrimaryStall = r.U64()
	loaded.oddAccess = r.Bool()
	loaded.busHeld = r.Bool()
	loaded.halted = r.U8()
	if err := r.Err(); err != nil {
		return err
	}
	if loaded.halted&1 != 0 {
		r.Fail("clock: primary domain marked halted")
		return r.Err()
	}
	*c = loaded
	return nil
}
