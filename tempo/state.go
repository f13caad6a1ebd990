package tempo

import (
	"fmt"

	"github.com/valerio/go-tempo/tempo/state"
)

const (
	stateMagic   = "go-tempo"
	stateVersion = 2
)

// Save encodes the whole timing state. Saving, loading and saving again
// produces the same bytes.
func (s *System) Save() ([]byte, error) {
	w := state.NewWriter()
	w.String(stateMagic)
	w.U16(stateVersion)

	w.Tag("system")
	w.U64(s.cycles)
	s.sched.Save(w)
	s.clock.Save(w)
	s.bus.Save(w)
	s.irq.Save(w)
	s.timers.Save(w)
	s.lcd.Save(w)
	for i := range s.mailboxes {
		s.mailboxes[i].Save(w)
	}

	data, err := w.Bytes()
	if err != nil {
		return nil, fmt.Errorf("saving state: %w", err)
	}
	return data, nil
}

// Load replaces the timing state with one produced by Save on a System
// with the same configuration. On error the System is unchanged.
func (s *System) Load(data []byte) error {
	r := state.NewReader(data)
	if magic := r.String(); r.Err() == nil && magic != stateMagic {
		r.Fail("not a save state")
	}
	if version := r.U16(); r.Err() == nil && version != stateVersion {
		r.Fail("unsupported version %d", version)
	}

	loaded := *s
	r.Expect("system")
	loaded.cycles = r.U64()
	steps := []func(*state.Reader) error{
		loaded.sched.Load,
		loaded.clock.Load,
		loaded.bus.Load,
		loaded.irq.Load,
		loaded.timers.Load,
		loaded.lcd.Load,
	}
	for i := range loaded.mailboxes {
		steps = append(steps, loaded.mailboxes[i].Load)
	}
	for _, load := range steps {
		if err := load(r); err != nil {
			return fmt.Errorf("loading state: %w", err)
		}
	}
	if err := r.Done(); err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	*s = loaded
	s.logger.Debug("State loaded", "cycle", s.cycles, "bytes", len(data))
	return nil
}
