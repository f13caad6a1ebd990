// Package timed lets one clock domain read a value another domain wrote,
// as of the reader's own cycle count.
//
// Domains run in bursts, so a writer can be ahead of or behind the reader
// when it writes. Register keeps the last few writes with their cycle
// stamps and answers each read with the newest value written at or before
// the reader's cycle.
package timed

import (
	"fmt"

	"github.com/valerio/go-tempo/tempo/state"
)

// Depth is the number of writes a Register remembers.
const Depth = 4

// Entry is one write.
type Entry[V any] struct {
	Cycle uint64
	Value V
}

// Register is plain data: copying the struct clones it.
type Register[V any] struct {
	entries [Depth]Entry[V]
	n       int
	def     V
}

// New returns a Register that reads as def until the first write is visible.
func New[V any](def V) Register[V] {
	return Register[V]{def: def}
}

// Write records v as written at cycle. A write stamped with the same cycle
// as an earlier one replaces it. When more than Depth writes are held the
// oldest is dropped.
func (r *Register[V]) Write(v V, cycle uint64) {
	i := r.n
	for i > 0 && r.entries[i-1].Cycle > cycle {
		i--
	}
	if i > 0 && r.entries[i-1].Cycle == cycle {
		r.entries[i-1].Value = v
		return
	}

	if r.n == Depth {
		if i == 0 {
			// older than everything held, it would be evicted straight away
			return
		}
		copy(r.entries[:], r.entries[1:])
		r.n--
		i--
	}

	copy(r.entries[i+1:r.n+1], r.entries[i:r.n])
	r.entries[i] = Entry[V]{Cycle: cycle, Value: v}
	r.n++
}

// Read returns the newest value written at or before cycle, or the default.
func (r *Register[V]) Read(cycle uint64) V {
	for i := r.n - 1; i >= 0; i-- {
		if r.entries[i].Cycle <= cycle {
			return r.entries[i].Value
		}
	}
	return r.def
}

// Latest returns the newest value regardless of cycle.
func (r *Register[V]) Latest() V {
	if r.n == 0 {
		return r.def
	}
	return r.entries[r.n-1].Value
}

// Len returns the number of writes held.
func (r *Register[V]) Len() int {
	return r.n
}

// Entries returns the writes held, oldest first.
func (r *Register[V]) Entries() []Entry[V] {
	return append([]Entry[V](nil), r.entries[:r.n]...)
}

// Save writes the default and every held write. V must be a fixed-size
// type as understood by encoding/binary.
func (r *Register[V]) Save(w *state.Writer) {
	w.Tag("timed")
	w.Value(r.def)
	w.U8(uint8(r.n))
	for _, e := range r.entries[:r.n] {
		w.U64(e.Cycle)
		w.Value(e.Value)
	}
}

// Load restores a state written by Save. The Register is left untouched on error.
func (r *Register[V]) Load(rd *state.Reader) error {
	rd.Expect("timed")
	var loaded Register[V]
	rd.Value(&loaded.def)
	n := int(rd.U8())
	if rd.Err() == nil && n > Depth {
		rd.Fail("timed: %d entries, depth is %d", n, Depth)
	}
	if err := rd.Err(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		loaded.entries[i].Cycle = rd.U64()
		rd.Value(&loaded.entries[i].Value)
		if i > 0 && rd.Err() == nil && loaded.entries[i].Cycle <= loaded.entries[i-1].Cycle {
			rd.Fail("timed: entry %d at cycle %d isn't after cycle %d", i, loaded.entries[i].Cycle, loaded.entries[i-1].Cycle)
		}
	}
	if err := rd.Err(); err != nil {
		return err
	}
	loaded.n = n
	*r = loaded
	return nil
}

func (e Entry[V]) String() string {
	return fmt.Sprintf("%v@%d", e.Value, e.Cycle)
}
