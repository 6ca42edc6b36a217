package core

import (
	"sync/atomic"
)

// LookupTable is the memory-hard table of a work seed. Slot i holds the
// largest preimage x with H0(x) mod entries == i, or 0 when none maps there.
// The content depends only on seed and size, never on fill order.
type LookupTable struct {
	slots []uint32
	mask  uint64
}

// NewLookupTable allocates a zeroed table of size bytes
func NewLookupTable(size uint64) (*LookupTable, error) {
	if err := CheckTableSize(size); err != nil {
		return nil, err
	}
	entries := TableSizeToEntries(size)
	return &LookupTable{
		slots: make([]uint32, entries),
		mask:  entries - 1,
	}, nil
}

// Entries returns the slot count
func (t *LookupTable) Entries() uint64 {
	return uint64(len(t.slots))
}

// Size returns the table size in bytes
func (t *LookupTable) Size() uint64 {
	return t.Entries() * EntrySize
}

// Mask returns Entries()-1
func (t *LookupTable) Mask() uint64 {
	return t.mask
}

// Clear zeroes every slot
func (t *LookupTable) Clear() {
	clear(t.slots)
}

// ClearRange zeroes slots in [begin, end)
func (t *LookupTable) ClearRange(begin, end uint64) {
	clear(t.slots[begin:end])
}

// Slot returns the content of slot i
func (t *LookupTable) Slot(i uint64) uint32 {
	return atomic.LoadUint32(&t.slots[i&t.mask])
}

// Insert stores preimage lhs in its slot unless a larger one is already there.
// Safe for concurrent use.
func (t *LookupTable) Insert(c Canonical, lhs uint64) {
	slot := &t.slots[c.H0(lhs)&t.mask]
	value := uint32(lhs)
	for {
		current := atomic.LoadUint32(slot)
		if current >= value {
			return
		}
		if atomic.CompareAndSwapUint32(slot, current, value) {
			return
		}
	}
}

// FillRange inserts every preimage in [begin, end)
func (t *LookupTable) FillRange(c Canonical, begin, end uint64) {
	for lhs := begin; lhs < end; lhs++ {
		t.Insert(c, lhs)
	}
}

// Fill builds the whole table on the calling goroutine
func (t *LookupTable) Fill(c Canonical) {
	t.Clear()
	t.FillRange(c, 0, t.Entries())
}

// Probe looks up the preimage paired with candidate rhs and returns it with the combined sum.
// The pair is consistent when sum&Mask() == 0.
func (t *LookupTable) Probe(c Canonical, rhs uint64) (lhs uint64, sum uint64) {
	h := c.H1(rhs)
	lhs = uint64(t.Slot(-h))
	return lhs, c.H0(lhs) + h
}

// Search probes count candidates starting at start and advancing by stride,
// returning the first accepted solution.
func (t *LookupTable) Search(c Canonical, difficulty, start, stride, count uint64) (Nonce, bool) {
	reject := QuickMask(difficulty) | t.mask
	rhs := start & CandidateMask
	for i := uint64(0); i < count; i++ {
		lhs, sum := t.Probe(c, rhs)
		if sum&reject == 0 && Passes(sum, difficulty) {
			return Nonce{Hi: lhs, Lo: rhs}, true
		}
		rhs = (rhs + stride) & CandidateMask
	}
	return Nonce{}, false
}

// Verify checks solution against a fully built table for the same seed
func (t *LookupTable) Verify(c Canonical, solution Nonce, difficulty uint64) bool {
	if solution.Lo > CandidateMask {
		return false
	}
	return VerifyProbe(c, solution, difficulty, t.Entries(), t.Slot(ProbeSlot(c, solution.Lo, t.Entries())))
}

// ProbeSlot returns the slot read when probing candidate rhs in a table of entries slots
func ProbeSlot(c Canonical, rhs, entries uint64) uint64 {
	return -c.H1(rhs) & (entries - 1)
}

// VerifyProbe checks solution given the content of the slot its candidate probes.
// Drivers holding the table outside host memory read that one slot and call this.
func VerifyProbe(c Canonical, solution Nonce, difficulty, entries uint64, slot uint32) bool {
	if solution.Hi >= entries || solution.Lo > CandidateMask || uint64(slot) != solution.Hi {
		return false
	}
	sum := c.Sum(solution.Hi, solution.Lo)
	return sum&(entries-1) == 0 && Passes(sum, difficulty)
}
