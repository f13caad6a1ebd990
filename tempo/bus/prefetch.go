package bus

// PrefetchDepth is the number of halfwords the prefetch unit buffers.
const PrefetchDepth = 8

// prefetchPageMask detects 128 KiB boundaries, where prefetching pauses.
const prefetchPageMask = 0x1FFFF

// Prefetcher is the cartridge prefetch unit's state. It is plain data;
// the fetch engine lives on Bus, which owns the ROM and the wait states.
//
// Full and empty come from the length counter, not from comparing indexes,
// and writeAddr is always readAddr + 2*len.
type Prefetcher struct {
	buffer          [PrefetchDepth]uint16
	readAddr        uint32
	writeAddr       uint32
	readIdx         uint8
	writeIdx        uint8
	len             uint8
	active          bool
	cyclesRemaining uint64
}

func (p Prefetcher) Empty() bool {
	return p.len == 0
}

func (p Prefetcher) Full() bool {
	return p.len == PrefetchDepth
}

// Len returns the number of buffered halfwords.
func (p Prefetcher) Len() int {
	return int(p.len)
}

// Active reports whether a fetch is in progress.
func (p Prefetcher) Active() bool {
	return p.active
}

// ReadAddress is the address of the next halfword Read will return.
func (p Prefetcher) ReadAddress() uint32 {
	return p.readAddr
}

// CyclesRemaining is the cycles left until the in-progress fetch completes.
func (p Prefetcher) CyclesRemaining() uint64 {
	return p.cyclesRemaining
}

// Buffered returns the buffered halfwords, oldest first.
func (p Prefetcher) Buffered() []uint16 {
	out := make([]uint16, p.len)
	for i := range out {
		out[i] = p.buffer[(int(p.readIdx)+i)%PrefetchDepth]
	}
	return out
}

// canUseFor reports whether a read of address can be served without
// restarting: the unit is pointed at it and has data or a fetch under way.
func (p *Prefetcher) canUseFor(address uint32) bool {
	return p.readAddr == address && (p.active || !p.Empty())
}

func (p *Prefetcher) restart(address uint32, cycles uint64) {
	*p = Prefetcher{
		readAddr:        address,
		writeAddr:       address,
		active:          true,
		cyclesRemaining: cycles,
	}
}

func (p *Prefetcher) push(value uint16) {
	if p.Full() {
		panic("bus: push to a full prefetch buffer")
	}
	p.buffer[p.writeIdx] = value
	p.writeAddr += 2
	p.writeIdx = (p.writeIdx + 1) % PrefetchDepth
	p.len++
}

func (p *Prefetcher) pop() uint16 {
	if p.Empty() {
		panic("bus: pop from an empty prefetch buffer")
	}
	value := p.buffer[p.readIdx]
	p.readAddr += 2
	p.readIdx = (p.readIdx + 1) % PrefetchDepth
	p.len--
	return value
}

func (p *Prefetcher) pause() {
	p.active = false
	p.cyclesRemaining = 0
}
