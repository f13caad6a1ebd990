package events

import (
	"fmt"
	"math"
	"sort"

	"github.com/valerio/go-tempo/tempo/state"
)

const capacity = NumKinds + 1

// Scheduler is a fixed capacity binary min-heap of pending events, keyed by
// absolute master cycle. It is plain data: copying the struct clones it.
//
// Slot 0 holds the earliest event. A sentinel entry due at math.MaxUint64 is
// always present so the heap is never empty; it is never returned by Pop.
type Scheduler struct {
	heap      [capacity]Event
	len       int
	scheduled uint16
}

// NewScheduler returns a scheduler with nothing pending.
func NewScheduler() Scheduler {
	var s Scheduler
	s.Reset()
	return s
}

// Reset drops every pending event.
func (s *Scheduler) Reset() {
	s.heap = [capacity]Event{}
	s.heap[0] = Event{Kind: sentinel, Due: math.MaxUint64}
	s.len = 1
	s.scheduled = sentinel.bit()
}

func mustBeValid(k Kind) {
	if !k.Valid() {
		panic(fmt.Sprintf("events: invalid event kind %d", uint8(k)))
	}
}

// InsertOrUpdate schedules k at due. If k is already pending its due cycle
// is moved instead.
func (s *Scheduler) InsertOrUpdate(k Kind, due uint64) {
	mustBeValid(k)

	if s.scheduled&k.bit() != 0 {
		i := s.find(k)
		old := s.heap[i]
		s.heap[i].Due = due
		switch {
		case s.heap[i].before(old):
			s.up(i)
		case old.before(s.heap[i]):
			s.down(i)
		}
		return
	}

	if s.len == capacity {
		panic("events: scheduler heap full with an inconsistent presence mask")
	}
	s.scheduled |= k.bit()
	s.heap[s.len] = Event{Kind: k, Due: due}
	s.len++
	s.up(s.len - 1)
}

// Remove cancels k. It does nothing if k isn't pending.
func (s *Scheduler) Remove(k Kind) {
	mustBeValid(k)

	if s.scheduled&k.bit() == 0 {
		return
	}
	s.scheduled &^= k.bit()

	i := s.find(k)
	removed := s.heap[i]
	last := s.len - 1
	s.heap[i] = s.heap[last]
	s.heap[last] = Event{}
	s.len--
	if i == last {
		return
	}

	switch {
	case s.heap[i].before(removed):
		s.up(i)
	case removed.before(s.heap[i]):
		s.down(i)
	}
}

// IsReady reports whether the earliest pending event is due at or before now.
func (s *Scheduler) IsReady(now uint64) bool {
	return s.heap[0].Kind != sentinel && s.heap[0].Due <= now
}

// Pop removes and returns the earliest event if it is due at or before now.
func (s *Scheduler) Pop(now uint64) (Event, bool) {
	if !s.IsReady(now) {
		return Event{}, false
	}

	ev := s.heap[0]
	last := s.len - 1
	s.heap[0] = s.heap[last]
	s.heap[last] = Event{}
	s.len--
	s.down(0)
	s.scheduled &^= ev.Kind.bit()

	return ev, true
}

// NextDue returns the due cycle of the earliest pending event, or
// math.MaxUint64 when nothing is pending.
func (s *Scheduler) NextDue() uint64 {
	return s.heap[0].Due
}

// Scheduled reports whether k is pending.
func (s *Scheduler) Scheduled(k Kind) bool {
	mustBeValid(k)
	return s.scheduled&k.bit() != 0
}

// Due returns the due cycle of k if it is pending.
func (s *Scheduler) Due(k Kind) (uint64, bool) {
	if !s.Scheduled(k) {
		return 0, false
	}
	return s.heap[s.find(k)].Due, true
}

// Len returns the number of pending events.
func (s *Scheduler) Len() int {
	return s.len - 1
}

// Events returns the pending events in dispatch order.
func (s *Scheduler) Events() []Event {
	out := make([]Event, 0, s.Len())
	for _, ev := range s.heap[:s.len] {
		if ev.Kind != sentinel {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].before(out[j]) })
	return out
}

// find is a linear scan; the heap never holds more than NumKinds+1 entries.
func (s *Scheduler) find(k Kind) int {
	for i := 0; i < s.len; i++ {
		if s.heap[i].Kind == k {
			return i
		}
	}
	panic(fmt.Sprintf("events: %s marked as scheduled but missing from heap", k))
}

func (s *Scheduler) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !s.heap[i].before(s.heap[parent]) {
			return
		}
		s.heap[i], s.heap[parent] = s.heap[parent], s.heap[i]
		i = parent
	}
}

func (s *Scheduler) down(i int) {
	for {
		smallest := i
		left := 2*i + 1
		right := left + 1
		if left < s.len && s.heap[left].before(s.heap[smallest]) {
			smallest = left
		}
		if right < s.len && s.heap[right].before(s.heap[smallest]) {
			smallest = right
		}
		if smallest == i {
			return
		}
		s.heap[i], s.heap[smallest] = s.heap[smallest], s.heap[i]
		i = smallest
	}
}

// validate checks the heap ordering and the presence mask against the heap contents.
func (s *Scheduler) validate() error {
	if s.len < 1 || s.len > capacity {
		return fmt.Errorf("heap length %d out of range", s.len)
	}
	var seen uint16
	for i := 0; i < s.len; i++ {
		ev := s.heap[i]
		if ev.Kind > sentinel {
			return fmt.Errorf("slot %d holds invalid kind %d", i, uint8(ev.Kind))
		}
		if seen&ev.Kind.bit() != 0 {
			return fmt.Errorf("%s appears twice", ev.Kind)
		}
		seen |= ev.Kind.bit()
		for _, child := range []int{2*i + 1, 2*i + 2} {
			if child < s.len && s.heap[child].before(ev) {
				return fmt.Errorf("slot %d (%s) is ordered before its parent %d (%s)", child, s.heap[child], i, ev)
			}
		}
	}
	if seen != s.scheduled {
		return fmt.Errorf("presence mask %09b doesn't match heap contents %09b", s.scheduled, seen)
	}
	if seen&sentinel.bit() == 0 {
		return fmt.Errorf("sentinel missing")
	}
	for _, ev := range s.heap[:s.len] {
		if ev.Kind == sentinel && ev.Due != math.MaxUint64 {
			return fmt.Errorf("sentinel due at %d", ev.Due)
		}
	}
	return nil
}

// Save writes the heap verbatim, slot by slot.
func (s *Scheduler) Save(w *state.Writer) {
	w.Tag("events")
	w.U8(uint8(s.len))
	w.U16(s.scheduled)
	for _, ev := range s.heap[:s.len] {
		w.U8(uint8(ev.Kind))
		w.U64(ev.Due)
	}
}

// Load restores a heap written by Save. The scheduler is left untouched on error.
func (s *Scheduler) Load(r *state.Reader) error {
	r.Expect("events")
	var loaded Scheduler
	n := int(r.U8())
	loaded.scheduled = r.U16()
	if n > capacity {
		r.Fail("scheduler holds %d events, capacity is %d", n, capacity)
		return r.Err()
	}
	loaded.len = n
	for i := 0; i < n; i++ {
		loaded.heap[i] = Event{Kind: Kind(r.U8()), Due: r.U64()}
	}
	if err := r.Err(); err != nil {
		return err
	}
	if err := loaded.validate(); err != nil {
		r.Fail("scheduler: %v", err)
		return r.Err()
	}
	*s = loaded
	return nil
}
