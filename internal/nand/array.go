// Package nand tracks the per-page, per-block and per-LUN state of the
// emulated NAND array: status bits, valid/invalid page counts, erase
// counts, and the per-LUN availability clock the timing model advances.
//
// The free-list bookkeeping style here (flat slices indexed by a
// deterministic index rather than pointer-chasing objects) follows
// biscuit/src/mem/mem.go's Physmem_t, which tracks every physical page
// of host memory the same way: one flat []Physpg_t indexed by page
// number, never individually heap-allocated structs.
package nand

import (
	"fmt"

	"hcftl/internal/geom"
	"hcftl/internal/invariant"
)

// Status is the lifecycle state of a single NAND page.
type Status int

const (
	Free Status = iota
	Valid
	Invalid
)

func (s Status) String() string {
	switch s {
	case Free:
		return "free"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Block holds the page-state counters tracked for one NAND block.
type Block struct {
	ValidPC   int32
	InvalidPC int32
	EraseCnt  uint64
}

// LUN holds the per-LUN availability clock the timing model advances.
type LUN struct {
	NextAvailableNs uint64
}

// Array owns every page's status, every block's counters and every
// LUN's clock for one geometry. It has no notion of lines or logical
// pages; that bookkeeping lives one layer up, in package line and
// package mapping respectively.
type Array struct {
	G      geom.Geometry
	pages  []Status
	sector []Status // per-sector shadow of pages, mirrored 1:1 with page writes
	blocks []Block
	luns   []LUN
}

// New allocates an Array sized for g, with every page FREE.
func New(g geom.Geometry) *Array {
	return &Array{
		G:      g,
		pages:  make([]Status, g.TTPgs),
		sector: make([]Status, g.TTPgs*g.SecsPerPg),
		blocks: make([]Block, g.LunsTotal*g.PlsPerLun*g.BlksPerPl),
		luns:   make([]LUN, g.LunsTotal),
	}
}

func (a *Array) lunIdx(p geom.PPA) int {
	return int(p.Ch)*a.G.LunsPerCh + int(p.Lun)
}

func (a *Array) blkIdx(p geom.PPA) int {
	idx := a.lunIdx(p)
	idx = idx*a.G.PlsPerLun + int(p.Pl)
	idx = idx*a.G.BlksPerPl + int(p.Blk)
	return idx
}

// PageStatus returns the status of the page at pgidx.
func (a *Array) PageStatus(pgidx int) Status {
	return a.pages[pgidx]
}

// Block returns the mutable block counters backing p.
func (a *Array) Block(p geom.PPA) *Block {
	return &a.blocks[a.blkIdx(p)]
}

// LUN returns the mutable LUN clock backing p.
func (a *Array) LUN(p geom.PPA) *LUN {
	return &a.luns[a.lunIdx(p)]
}

// MarkValid transitions a page FREE -> VALID and increments the
// block's valid-page counter. It is the caller's job (package line) to
// also advance the owning line's vpc and last_update_seq.
func (a *Array) MarkValid(p geom.PPA) {
	idx := a.G.PgIdx(p)
	invariant.Check(a.pages[idx] == Free, "mark_valid on non-FREE page")
	a.pages[idx] = Valid
	a.markSectors(idx, Valid)
	blk := a.Block(p)
	blk.ValidPC++
	invariant.Check(int(blk.ValidPC+blk.InvalidPC) <= a.G.PgsPerBlk, "block valid+invalid exceeds pgs_per_blk")
}

// MarkInvalid transitions a page VALID -> INVALID and updates the
// block's counters.
func (a *Array) MarkInvalid(p geom.PPA) {
	idx := a.G.PgIdx(p)
	invariant.Check(a.pages[idx] == Valid, "mark_invalid on non-VALID page")
	a.pages[idx] = Invalid
	a.markSectors(idx, Invalid)
	blk := a.Block(p)
	blk.ValidPC--
	blk.InvalidPC++
	invariant.Check(blk.ValidPC >= 0, "block valid_pc went negative")
}

func (a *Array) markSectors(pgidx int, s Status) {
	base := pgidx * a.G.SecsPerPg
	for i := 0; i < a.G.SecsPerPg; i++ {
		a.sector[base+i] = s
	}
}

// EraseBlock resets every page in the block backing p to FREE, zeroes
// the block's valid/invalid counters and bumps its erase count.
func (a *Array) EraseBlock(p geom.PPA) {
	blk := a.Block(p)
	blk.ValidPC = 0
	blk.InvalidPC = 0
	blk.EraseCnt++
	base := geom.PPA{Ch: p.Ch, Lun: p.Lun, Pl: p.Pl, Blk: p.Blk}
	for pg := 0; pg < a.G.PgsPerBlk; pg++ {
		base.Pg = uint16(pg)
		idx := a.G.PgIdx(base)
		a.pages[idx] = Free
		a.markSectors(idx, Free)
	}
}
