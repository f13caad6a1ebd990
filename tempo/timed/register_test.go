package timed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valerio/go-tempo/tempo/state"
)

func TestCausality(t *testing.T) {
	r := New("")
	r.Write("a", 5)
	r.Write("b", 10)

	assert.Equal(t, "a", r.Read(7))
	assert.Equal(t, "b", r.Read(10))
	assert.Equal(t, "", r.Read(3))
	assert.Equal(t, "b", r.Latest())
}

func TestOutOfOrderWrites(t *testing.T) {
	r := New(-1)
	r.Write(30, 30)
	r.Write(10, 10)
	r.Write(20, 20)

	assert.Equal(t, []Entry[int]{{10, 10}, {20, 20}, {30, 30}}, r.Entries())
	assert.Equal(t, 20, r.Read(25))
	assert.Equal(t, -1, r.Read(9))
}

func TestSameCycleReplaces(t *testing.T) {
	r := New(0)
	r.Write(1, 100)
	r.Write(2, 100)

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 2, r.Read(100))
}

func TestEvictsOldest(t *testing.T) {
	r := New(uint8(0xFF))
	for i := uint64(1); i <= Depth+2; i++ {
		r.Write(uint8(i), i*10)
	}

	assert.Equal(t, Depth, r.Len())
	assert.Equal(t, uint8(0xFF), r.Read(20))
	assert.Equal(t, uint8(3), r.Read(30))
	assert.Equal(t, uint8(Depth+2), r.Read(1000))

	// a write older than everything held is dropped
	r.Write(9, 5)
	assert.Equal(t, uint8(3), r.Entries()[0].Value)
}

func TestEvictionInTheMiddle(t *testing.T) {
	r := New(0)
	r.Write(10, 10)
	r.Write(20, 20)
	r.Write(40, 40)
	r.Write(50, 50)
	r.Write(30, 30)

	assert.Equal(t, []Entry[int]{{20, 20}, {30, 30}, {40, 40}, {50, 50}}, r.Entries())
}

func TestStrictlyIncreasing(t *testing.T) {
	r := New(0)
	for _, c := range []uint64{7, 3, 9, 3, 1, 12, 9, 5, 5, 20} {
		r.Write(int(c), c)
		entries := r.Entries()
		for i := 1; i < len(entries); i++ {
			require.Less(t, entries[i-1].Cycle, entries[i].Cycle)
		}
	}
}

func TestClone(t *testing.T) {
	r := New(0)
	r.Write(1, 1)
	clone := r
	clone.Write(2, 2)

	assert.Equal(t, 1, r.Latest())
	assert.Equal(t, 2, clone.Latest())
}

func TestSaveLoad(t *testing.T) {
	r := New(uint16(0xFFFF))
	r.Write(0x1234, 40)
	r.Write(0xBEEF, 12)

	w := state.NewWriter()
	r.Save(w)
	data, err := w.Bytes()
	require.NoError(t, err)

	loaded := New(uint16(0))
	rd := state.NewReader(data)
	require.NoError(t, loaded.Load(rd))
	require.NoError(t, rd.Done())
	assert.Equal(t, r, loaded)
}

func TestLoadRejectsUnorderedEntries(t *testing.T) {
	w := state.NewWriter()
	w.Tag("timed")
	w.Value(uint16(0))
	w.U8(2)
	w.U64(10)
	w.Value(uint16(1))
	w.U64(10)
	w.Value(uint16(2))
	data, err := w.Bytes()
	require.NoError(t, err)

	r := New(uint16(7))
	assert.ErrorIs(t, r.Load(state.NewReader(data)), state.ErrCorrupt)
	assert.Equal(t, uint16(7), r.Latest())
}
