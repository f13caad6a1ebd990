package timer

import "github.com/valerio/go-tempo/tempo/state"

// Save writes every timer.
func (b *Bank) Save(w *state.Writer) {
	w.Tag("timer")
	for _, t := range b.timers {
		w.Bool(t.enabled)
		w.Bool(t.cascade)
		w.Bool(t.irq)
		w.U8(t.shift)
		w.U16(t.reload)
		w.U16(t.counter)
		w.U64(t.base)
	}
}

// Load restores a state written by Save. The Bank is left untouched on error.
func (b *Bank) Load(r *state.Reader) error {
	r.Expect("timer")
	loaded := *b
	for i := range loaded.timers {
		t := &loaded.timers[i]
		t.enabled = r.Bool()
		t.cascade = r.Bool()
		t.irq = r.Bool()
		t.shift = r.U8()
		t.reload = r.U16()
		t.counter = r.U16()
		t.base = r.U64()
		if r.Err() == nil && !validShift(t.shift) {
			r.Fail("timer: invalid prescaler shift %d", t.shift)
		}
		if r.Err() == nil && i == 0 && t.cascade {
			r.Fail("timer: timer 0 can't cascade")
		}
	}
	if err := r.Err(); err != nil {
		return err
	}
	*b = loaded
	return nil
}

func validShift(s uint8) bool {
	for _, v := range prescalerShifts {
		if v == s {
			return true
		}
	}
	return false
}
