// Package wp implements the two write pointers, one per line class,
// each advancing a fixed traversal order over its current line —
// stripe across every (channel, LUN) at a page offset before moving to
// the next page offset — and transparently obtaining a fresh line
// (possibly via a forced GC retry) when the current one is exhausted.
package wp

import (
	"github.com/pkg/errors"

	"hcftl/internal/ftlerr"
	"hcftl/internal/geom"
	"hcftl/internal/line"
)

// Pointer is one write pointer. pl is always 0: the geometry strides
// one block per LUN into a line, so planes are not part of the
// striping order the write pointer walks.
type Pointer struct {
	g   geom.Geometry
	mgr *line.Manager
	cls line.Class

	cur     *line.Line
	ch, lun int
	pg      int
}

func take(mgr *line.Manager, cls line.Class) (*line.Line, error) {
	if cls == line.Hot {
		return mgr.TakeFreeHot()
	}
	return mgr.TakeFreeCold()
}

// New obtains an initial line of class cls and returns a pointer
// positioned at its first page.
func New(g geom.Geometry, mgr *line.Manager, cls line.Class, hostWrites uint64) (*Pointer, error) {
	l, err := take(mgr, cls)
	if err != nil {
		return nil, errors.Wrapf(ftlerr.ErrAllocationExhausted, "wp: initial %s line: %v", cls, err)
	}
	l.LastUpdateSeq = hostWrites
	l.ColdScore = 0
	return &Pointer{g: g, mgr: mgr, cls: cls, cur: l}, nil
}

// Line returns the line currently backing this pointer's allocations.
func (p *Pointer) Line() *line.Line { return p.cur }

// Current returns the PPA the next Alloc call would hand out, without
// consuming it. Useful for GC to recognize "this is an active write
// pointer's line" without mutating pointer state.
func (p *Pointer) Current() geom.PPA {
	return geom.PPA{
		Ch:  uint8(p.ch),
		Lun: uint8(p.lun),
		Pl:  0,
		Blk: uint16(p.cur.ID),
		Pg:  uint16(p.pg),
	}
}

// Alloc hands out the pointer's current PPA and advances to the next
// position, obtaining a new line (possibly via a forced GC retry) if
// the current line's traversal has wrapped. A non-nil error means the
// PPA returned is still valid and already consumed by the caller, but
// the pointer could not prepare its NEXT allocation: fatal
// (AllocationExhausted).
func (p *Pointer) Alloc(hostWrites uint64) (geom.PPA, error) {
	ppa := p.Current()
	err := p.advance(hostWrites)
	return ppa, err
}

func (p *Pointer) advance(hostWrites uint64) error {
	p.lun++
	if p.lun < p.g.LunsPerCh {
		return nil
	}
	p.lun = 0
	p.ch++
	if p.ch < p.g.NChs {
		return nil
	}
	p.ch = 0
	p.pg++
	if p.pg < p.g.PgsPerBlk {
		return nil
	}
	p.pg = 0
	return p.rollLine(hostWrites)
}

func (p *Pointer) rollLine(hostWrites uint64) error {
	// The page Alloc is handing out is marked valid by the caller only
	// after Alloc returns, so it is counted here.
	if int(p.cur.Vpc)+1 == p.g.PgsPerLine {
		p.mgr.MarkFull(p.cur)
	} else {
		// Neither free nor full: this line is reachable only through
		// the lines array from here on.
		p.mgr.MarkPartial(p.cur)
	}

	l, err := take(p.mgr, p.cls)
	if err != nil {
		return errors.Wrapf(ftlerr.ErrAllocationExhausted, "wp: roll %s line: %v", p.cls, err)
	}
	l.LastUpdateSeq = hostWrites
	l.ColdScore = 0
	p.cur = l
	return nil
}
