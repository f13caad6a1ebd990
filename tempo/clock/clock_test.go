package clock

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valerio/go-tempo/tempo/state"
)

// genesisLike mirrors a 68000 + Z80 + FM + PSG clock tree.
func genesisLike() Config {
	return Config{
		Domains: []DomainConfig{
			{Name: "m68k", Divider: 7},
			{Name: "z80", Divider: 15},
			{Name: "ym2612", Divider: 42},
			{Name: "psg", Divider: 15},
		},
		RefreshInterval:      128,
		RefreshStall:         2,
		GrantPrimaryStall:    11,
		GrantSecondaryStall:  49,
		SecondaryAccessStall: 1,
		MaxStallMaster:       1225,
	}
}

func TestAdvanceConservation(t *testing.T) {
	c := New(genesisLike())
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 5000; i++ {
		before := make([]uint64, c.Len())
		for id := range before {
			before[id] = c.Domain(id).Accumulator
		}

		master := uint64(rng.Intn(300))
		ticks := c.Advance(master)

		for id := 0; id < c.Len(); id++ {
			d := c.Domain(id)
			require.Less(t, d.Accumulator, d.Divider)
			require.Equal(t, before[id]+master, ticks.Of(id)*d.Divider+d.Accumulator,
				"domain %s lost or created cycles", d.Name)
		}
	}
}

func TestAdvanceTicks(t *testing.T) {
	c := New(genesisLike())

	ticks := c.Advance(44)
	assert.Equal(t, uint64(6), ticks.Of(0))
	assert.Equal(t, uint64(2), ticks.Of(1))
	assert.Equal(t, uint64(1), ticks.Of(2))
	assert.Equal(t, uint64(2), c.Domain(0).Accumulator)
	assert.Equal(t, uint64(14), c.Domain(1).Accumulator)

	ticks = c.Advance(1)
	assert.Equal(t, uint64(1), ticks.Of(1))
	assert.Equal(t, uint64(0), c.Domain(1).Accumulator)
	assert.Equal(t, 4, ticks.Len())
}

func TestStallIsPaidFirst(t *testing.T) {
	c := New(genesisLike())
	c.Stall(1, 20)

	ticks := c.Advance(30)
	assert.Equal(t, uint64(20), ticks.Stalled(1))
	assert.Equal(t, uint64(0), ticks.Of(1))
	assert.Equal(t, uint64(10), c.Domain(1).Accumulator)
	assert.Equal(t, uint64(0), c.Domain(1).StallRemaining)

	// other domains are unaffected
	assert.Equal(t, uint64(4), ticks.Of(0))
	assert.Equal(t, uint64(0), ticks.Stalled(0))
}

func TestRefreshStall(t *testing.T) {
	t.Run("charged once per interval", func(t *testing.T) {
		c := New(genesisLike())
		for i := 0; i < 31; i++ {
			assert.Equal(t, uint64(4*7), c.RecordPrimary(4, false))
		}
		assert.Equal(t, uint64(0), c.PendingPrimaryStall())

		c.RecordPrimary(4, false)
		assert.Equal(t, uint64(2), c.TakePrimaryStall())
		assert.Equal(t, uint64(0), c.TakePrimaryStall())
	})

	t.Run("long instruction is charged once", func(t *testing.T) {
		c := New(genesisLike())
		c.RecordPrimary(300, false)
		assert.Equal(t, uint64(2), c.TakePrimaryStall())

		// 300 % 128 carried over
		c.RecordPrimary(83, false)
		assert.Equal(t, uint64(0), c.TakePrimaryStall())
		c.RecordPrimary(1, false)
		assert.Equal(t, uint64(2), c.TakePrimaryStall())
	})

	t.Run("hidden by bus wait", func(t *testing.T) {
		c := New(genesisLike())
		c.RecordPrimary(130, true)
		assert.Equal(t, uint64(0), c.TakePrimaryStall())
	})

	t.Run("reset while bus held", func(t *testing.T) {
		c := New(genesisLike())
		c.RecordPrimary(100, false)
		c.SetBusHeld(true)
		c.RecordPrimary(100, false)
		c.SetBusHeld(false)
		c.RecordPrimary(100, false)
		assert.Equal(t, uint64(0), c.TakePrimaryStall())
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := genesisLike()
		cfg.RefreshInterval = 0
		c := New(cfg)
		c.RecordPrimary(1000, false)
		assert.Equal(t, uint64(0), c.TakePrimaryStall())
	})
}

func TestSecondaryBusAccess(t *testing.T) {
	c := New(genesisLike())

	assert.False(t, c.OddAccess())
	c.RecordSecondaryBusAccess(1)
	assert.True(t, c.OddAccess())
	assert.Equal(t, uint64(49), c.Domain(1).StallRemaining)
	assert.Equal(t, uint64(11), c.PendingPrimaryStall())

	c.RecordSecondaryBusAccess(1)
	assert.False(t, c.OddAccess())
	assert.Equal(t, uint64(49+50), c.Domain(1).StallRemaining)
	assert.Equal(t, uint64(22), c.PendingPrimaryStall())

	c.RecordPrimaryToSecondaryAccess()
	assert.Equal(t, uint64(23), c.TakePrimaryStall())

	assert.Panics(t, func() { c.RecordSecondaryBusAccess(Primary) })
	assert.Panics(t, func() { c.RecordSecondaryBusAccess(9) })
}

func TestSecondaryHaltsWhileBusHeld(t *testing.T) {
	c := New(genesisLike())
	c.SetBusHeld(true)
	c.RecordSecondaryBusAccess(1)

	assert.True(t, c.Halted(1))
	assert.Equal(t, uint64(0), c.PendingPrimaryStall())

	ticks := c.Advance(300)
	assert.Equal(t, uint64(0), ticks.Of(1))
	assert.Equal(t, uint64(300), ticks.Stalled(1))
	assert.Equal(t, uint64(49), c.Domain(1).StallRemaining)

	c.SetBusHeld(false)
	assert.False(t, c.Halted(1))
	ticks = c.Advance(64)
	assert.Equal(t, uint64(49), ticks.Stalled(1))
	assert.Equal(t, uint64(1), ticks.Of(1))
}

func TestPrimaryStallClamp(t *testing.T) {
	c := New(genesisLike())
	for i := 0; i < 100; i++ {
		c.RecordSecondaryBusAccess(1)
	}
	// 1225 / 7
	assert.Equal(t, uint64(175), c.PendingPrimaryStall())

	c.SetDivider(Primary, 35)
	assert.Equal(t, uint64(35), c.PendingPrimaryStall())
}

func TestSetDivider(t *testing.T) {
	c := New(genesisLike())
	c.Advance(6)
	c.SetDivider(0, 4)
	ticks := c.Advance(2)
	assert.Equal(t, uint64(2), ticks.Of(0))
	assert.Equal(t, uint64(0), c.Domain(0).Accumulator)

	assert.Panics(t, func() { c.SetDivider(0, 0) })
}

func TestNewPanics(t *testing.T) {
	assert.Panics(t, func() { New(Config{}) })
	assert.Panics(t, func() {
		New(Config{Domains: []DomainConfig{{Name: "cpu", Divider: 0}}})
	})
}

func TestLookup(t *testing.T) {
	c := New(genesisLike())
	id, ok := c.Lookup("ym2612")
	assert.True(t, ok)
	assert.Equal(t, 2, id)
	_, ok = c.Lookup("sh2")
	assert.False(t, ok)
}

func TestClone(t *testing.T) {
	c := New(genesisLike())
	c.Advance(10)
	clone := *c
	clone.Advance(100)
	clone.RecordSecondaryBusAccess(1)

	assert.Equal(t, uint64(3), c.Domain(0).Accumulator)
	assert.False(t, c.OddAccess())
}

func TestSaveLoad(t *testing.T) {
	c := New(genesisLike())
	c.Advance(1234)
	c.RecordPrimary(200, false)
	c.RecordSecondaryBusAccess(1)
	c.SetBusHeld(true)
	c.RecordSecondaryBusAccess(3)

	w := state.NewWriter()
	c.Save(w)
	data, err := w.Bytes()
	require.NoError(t, err)

	loaded := New(genesisLike())
	r := state.NewReader(data)
	require.NoError(t, loaded.Load(r))
	require.NoError(t, r.Done())
	assert.Equal(t, c, loaded)
	assert.False(t, loaded.OddAccess())
	assert.True(t, loaded.Halted(3))

	w2 := state.NewWriter()
	loaded.Save(w2)
	again, err := w2.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestLoadRejectsOtherClockTree(t *testing.T) {
	c := New(genesisLike())
	w := state.NewWriter()
	c.Save(w)
	data, err := w.Bytes()
	require.NoError(t, err)

	other := New(Config{Domains: []DomainConfig{{Name: "arm7", Divider: 1}}})
	err = other.Load(state.NewReader(data))
	assert.ErrorIs(t, err, state.ErrCorrupt)
	assert.Equal(t, uint64(1), other.Domain(0).Divider)
}

func TestStallPutOffWhileBusHeld(t *testing.T) {
	c := New(genesisLike())
	c.RecordSecondaryBusAccess(1)
	c.SetBusHeld(true)

	ticks := c.Advance(30)
	assert.Equal(t, uint64(2), ticks.Of(1), "the secondary keeps running during the hold")
	assert.Equal(t, uint64(0), ticks.Stalled(1))
	assert.Equal(t, uint64(49), c.Domain(1).StallRemaining)

	c.SetBusHeld(false)
	ticks = c.Advance(30)
	assert.Equal(t, uint64(0), ticks.Of(1))
	assert.Equal(t, uint64(30), ticks.Stalled(1))
	assert.Equal(t, uint64(19), c.Domain(1).StallRemaining)
}

func TestLocalCycle(t *testing.T) {
	c := New(genesisLike())
	rng := rand.New(rand.NewSource(2))

	var master, last uint64
	for i := 0; i < 5000; i++ {
		switch rng.Intn(10) {
		case 0:
			c.RecordSecondaryBusAccess(1)
		case 1:
			c.SetBusHeld(!c.BusHeld())
		}
		step := uint64(rng.Intn(200))
		c.Advance(step)
		master += step

		local := c.LocalCycle(1)
		require.GreaterOrEqual(t, local, last, "local time went backwards")
		require.LessOrEqual(t, local, master)
		require.Less(t, master-local, uint64(15), "stalls and halts still count as time passing")
		last = local
	}
	assert.Equal(t, master, c.Domain(1).Elapsed)
	assert.Equal(t, master, c.Domain(2).Elapsed)
}
