// Package mapping holds the forward (L2P) and reverse (P2L) address
// maps. Both are flat, pre-sized slices with bounds checks on every
// access, the same shape as biscuit/src/mem/dmap.go's direct-map
// array: a fixed-size table indexed by a small integer key, resized
// never, bounds-asserted always.
package mapping

import (
	"fmt"

	"hcftl/internal/geom"
)

// InvalidLPN is the reverse map's sentinel for "no logical page owns
// this physical page".
const InvalidLPN geom.LPN = -1

// Tables holds L2P[lpn] -> PPA (packed) and P2L[pgidx] -> LPN.
type Tables struct {
	ttPgs int
	l2p   []uint64
	p2l   []geom.LPN
}

// New allocates both tables for ttPgs logical/physical pages, L2P
// initialized to unmapped and P2L initialized to InvalidLPN.
func New(ttPgs int) *Tables {
	t := &Tables{
		ttPgs: ttPgs,
		l2p:   make([]uint64, ttPgs),
		p2l:   make([]geom.LPN, ttPgs),
	}
	for i := range t.l2p {
		t.l2p[i] = geom.AllOnes
	}
	for i := range t.p2l {
		t.p2l[i] = InvalidLPN
	}
	return t
}

func (t *Tables) checkLPN(lpn geom.LPN) {
	if lpn < 0 || int(lpn) >= t.ttPgs {
		panic(fmt.Sprintf("mapping: lpn %d out of bounds [0,%d)", lpn, t.ttPgs))
	}
}

func (t *Tables) checkPgIdx(pgidx int) {
	if pgidx < 0 || pgidx >= t.ttPgs {
		panic(fmt.Sprintf("mapping: pgidx %d out of bounds [0,%d)", pgidx, t.ttPgs))
	}
}

// Get returns the packed PPA mapped to lpn, or geom.AllOnes if unmapped.
func (t *Tables) Get(lpn geom.LPN) uint64 {
	t.checkLPN(lpn)
	return t.l2p[lpn]
}

// IsMapped reports whether lpn currently resolves to a PPA.
func (t *Tables) IsMapped(lpn geom.LPN) bool {
	return !geom.IsUnmapped(t.Get(lpn))
}

// Set installs the forward mapping lpn -> ppa.
func (t *Tables) Set(lpn geom.LPN, ppa uint64) {
	t.checkLPN(lpn)
	t.l2p[lpn] = ppa
}

// Unset clears the forward mapping for lpn.
func (t *Tables) Unset(lpn geom.LPN) {
	t.checkLPN(lpn)
	t.l2p[lpn] = geom.AllOnes
}

// SetReverse installs the reverse mapping pgidx -> lpn.
func (t *Tables) SetReverse(pgidx int, lpn geom.LPN) {
	t.checkPgIdx(pgidx)
	t.p2l[pgidx] = lpn
}

// ReverseGet returns the LPN owning pgidx, or InvalidLPN.
func (t *Tables) ReverseGet(pgidx int) geom.LPN {
	t.checkPgIdx(pgidx)
	return t.p2l[pgidx]
}

// ClearReverse resets pgidx's reverse entry to InvalidLPN.
func (t *Tables) ClearReverse(pgidx int) {
	t.checkPgIdx(pgidx)
	t.p2l[pgidx] = InvalidLPN
}
