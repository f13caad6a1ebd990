package lcd

import "github.com/valerio/go-tempo/tempo/state"

// Save writes the generator's position and registers. The timing is
// configuration and isn't saved.
func (g *Generator) Save(w *state.Writer) {
	w.Tag("lcd")
	w.Bool(g.running)
	w.U16(g.line)
	w.U64(g.lineStart)
	w.Bool(g.hblank)
	w.U64(g.frames)
	w.U16(g.ReadStatus())
}

// Load restores a state written by Save. The Generator is left untouched on error.
func (g *Generator) Load(r *state.Reader) error {
	r.Expect("lcd")
	loaded := *g
	loaded.running = r.Bool()
	loaded.line = r.U16()
	loaded.lineStart = r.U64()
	loaded.hblank = r.Bool()
	loaded.frames = r.U64()
	loaded.WriteStatus(r.U16())
	if r.Err() == nil && loaded.line >= loaded.timing.TotalLines {
		r.Fail("lcd: line %d outside a %d line frame", loaded.line, loaded.timing.TotalLines)
	}
	if err := r.Err(); err != nil {
		return err
	}
	*g = loaded
	return nil
}
