// Package gc implements the garbage collector: a dispatcher that picks
// the scarcer class first, a greedy hot-victim scan, an
// age-x-benefit cold-victim scan, and the page-relocation routine that
// drains a victim line back to free.
//
// The two-phase scan-then-score shape (walk every line once computing
// a candidate score, keep the best) needs no auxiliary heap or sorted
// index, just a single pass over a flat slice.
package gc

import (
	"github.com/sirupsen/logrus"

	"hcftl/internal/classifier"
	"hcftl/internal/ftlerr"
	"hcftl/internal/geom"
	"hcftl/internal/line"
	"hcftl/internal/mapping"
	"hcftl/internal/nand"
	"hcftl/internal/stats"
	"hcftl/internal/timing"
	"hcftl/internal/wp"
)

// hotMinInvalidDivisor and the cold ratio/age tunables control victim
// eligibility during an unforced GC pass.
const (
	hotMinInvalidDivisor = 8

	coldMinRatioForced    = 0.25
	coldMinRatioUnforced  = 0.30
	coldAgeDivisorUnforced = 4
	coldStrongRatio       = 0.7
	coldStrongAgeMultiple = 5
)

// Pointers lets the collector reach both write pointers without
// importing package ftl (which in turn depends on gc), mirroring how
// package line depends on gc only through the Reclaimer interface.
type Pointers interface {
	Hot() *wp.Pointer
	Cold() *wp.Pointer
}

// Dispatcher owns the collaborators a GC pass needs: the line
// manager, the NAND array, the mapping tables, the classifier, the
// timing model, the two write pointers and the shared counters.
//
// Dispatcher implements line.Reclaimer so the line manager can call
// back into it on allocation pressure without an import cycle.
type Dispatcher struct {
	g    geom.Geometry
	mgr  *line.Manager
	arr  *nand.Array
	tbl  *mapping.Tables
	cls  *classifier.Classifier
	tim  timing.Model
	ptrs Pointers
	cnt  *stats.Counters
	log  *logrus.Logger

	decayWindow uint64
}

// New builds a Dispatcher. decayWindow should be the same value
// passed to classifier.New, since the cold-victim age thresholds are
// expressed in terms of it.
func New(
	g geom.Geometry,
	mgr *line.Manager,
	arr *nand.Array,
	tbl *mapping.Tables,
	cls *classifier.Classifier,
	tim timing.Model,
	ptrs Pointers,
	cnt *stats.Counters,
	decayWindow uint64,
	log *logrus.Logger,
) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{g: g, mgr: mgr, arr: arr, tbl: tbl, cls: cls, tim: tim, ptrs: ptrs, cnt: cnt, decayWindow: decayWindow, log: log}
}

// ForceGC implements line.Reclaimer: a forced, single-class GC round
// triggered synchronously by an exhausted write pointer.
func (d *Dispatcher) ForceGC(cls line.Class) error {
	d.cnt.ForcedGCRounds++
	var victim *line.Line
	if cls == line.Hot {
		victim = d.selectHotVictim(true)
	} else {
		victim = d.selectColdVictim(true)
	}
	if victim == nil {
		return ftlerr.ErrEmptyGCVictim
	}
	d.gcOneLine(victim)
	return nil
}

// DoGC tries the scarcer class first, then the other. Returns
// ftlerr.ErrEmptyGCVictim if neither class produced a victim.
func (d *Dispatcher) DoGC(force bool) error {
	first, second := line.Hot, line.Cold
	if d.mgr.HotFreeCount() > d.mgr.ColdFreeCount() {
		first, second = line.Cold, line.Hot
	}
	if d.tryClass(first, force) {
		return nil
	}
	if d.tryClass(second, force) {
		return nil
	}
	return ftlerr.ErrEmptyGCVictim
}

func (d *Dispatcher) tryClass(cls line.Class, force bool) bool {
	var victim *line.Line
	if cls == line.Hot {
		victim = d.selectHotVictim(force)
	} else {
		victim = d.selectColdVictim(force)
	}
	if victim == nil {
		return false
	}
	d.gcOneLine(victim)
	return true
}

func (d *Dispatcher) isActiveWPLine(l *line.Line) bool {
	if d.ptrs == nil {
		return false
	}
	if h := d.ptrs.Hot(); h != nil && h.Line() == l {
		return true
	}
	if c := d.ptrs.Cold(); c != nil && c.Line() == l {
		return true
	}
	return false
}

// selectHotVictim picks the hot line with the most invalid pages,
// skipping active write-pointer lines.
func (d *Dispatcher) selectHotVictim(force bool) *line.Line {
	var best *line.Line
	minInvalid := 0
	if !force {
		minInvalid = d.g.PgsPerLine / hotMinInvalidDivisor
	}
	for _, l := range d.mgr.Lines() {
		if d.isActiveWPLine(l) {
			continue
		}
		if l.Cls != line.Hot {
			continue
		}
		if l.Ipc == 0 {
			continue
		}
		if !force && int(l.Ipc) < minInvalid {
			continue
		}
		if best == nil || l.Ipc > best.Ipc {
			best = l
		}
	}
	return best
}

// selectColdVictim scores cold lines by age x invalid ratio, with an
// early-exit shortcut for a sufficiently strong victim.
func (d *Dispatcher) selectColdVictim(force bool) *line.Line {
	minRatio := coldMinRatioUnforced
	if force {
		minRatio = coldMinRatioForced
	}
	minAge := uint64(0)
	if !force {
		minAge = d.decayWindow / coldAgeDivisorUnforced
	}

	var best *line.Line
	var bestScore int64 = -1
	hostWrites := d.cnt.HostWrites

	for _, l := range d.mgr.Lines() {
		if l.Cls != line.Cold {
			continue
		}
		if l.Location() == line.LocFull || int(l.Vpc) == d.g.PgsPerLine {
			continue
		}
		if l.Ipc == 0 {
			continue
		}
		if l.LastUpdateSeq == 0 {
			continue
		}
		invalidRatio := float64(l.Ipc) / float64(d.g.PgsPerLine)
		if invalidRatio < minRatio {
			continue
		}
		age := saturatingSub(hostWrites, l.LastUpdateSeq)
		if !force && age < minAge {
			continue
		}
		if invalidRatio >= coldStrongRatio && age > coldStrongAgeMultiple*d.decayWindow {
			return l
		}
		score := int64(float64(age) * invalidRatio * 1000)
		if score > bestScore {
			bestScore = score
			best = l
		}
	}
	return best
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

// gcOneLine relocates every valid page off the victim, erases every
// block it spans, and returns it to its class's free pool.
func (d *Dispatcher) gcOneLine(victim *line.Line) {
	base := geom.PPA{Blk: uint16(victim.ID)}
	for ch := 0; ch < d.g.NChs; ch++ {
		for lun := 0; lun < d.g.LunsPerCh; lun++ {
			base.Ch, base.Lun = uint8(ch), uint8(lun)
			d.relocateBlock(base, victim)
			d.eraseBlock(base, victim)
		}
	}
	d.mgr.ReleaseToFree(victim)
}

func (d *Dispatcher) relocateBlock(base geom.PPA, victim *line.Line) {
	for pg := 0; pg < d.g.PgsPerBlk; pg++ {
		p := base
		p.Pg = uint16(pg)
		idx := d.g.PgIdx(p)
		if d.arr.PageStatus(idx) != nand.Valid {
			continue
		}
		d.relocatePage(p, idx, victim)
	}
}

func (d *Dispatcher) relocatePage(p geom.PPA, idx int, victim *line.Line) {
	d.tim.Advance(p, timing.Event{Class: timing.CmdRead, Type: timing.GCIO})

	lpn := d.tbl.ReverseGet(idx)
	isHot := d.cls.IsHot(lpn)

	var target *wp.Pointer
	if isHot {
		target = d.ptrs.Hot()
	} else {
		target = d.ptrs.Cold()
	}
	destLine := target.Line()

	newPPA, err := target.Alloc(d.cnt.HostWrites)
	if err != nil {
		d.log.WithError(err).Error("gc: relocation allocation failed fatally")
		panic(err)
	}

	d.arr.MarkInvalid(p)
	d.mgr.OnInvalidate(victim)
	d.tbl.ClearReverse(idx)

	newIdx := d.g.PgIdx(newPPA)
	d.arr.MarkValid(newPPA)
	d.tbl.Set(lpn, geom.Pack(newPPA))
	d.tbl.SetReverse(newIdx, lpn)

	d.mgr.OnValidate(destLine, d.cnt.HostWrites)

	d.cnt.NandWrites++
	d.cnt.GCWrites++

	d.tim.Advance(newPPA, timing.Event{Class: timing.CmdWrite, Type: timing.GCIO})
}

func (d *Dispatcher) eraseBlock(base geom.PPA, victim *line.Line) {
	d.tim.Advance(base, timing.Event{Class: timing.CmdErase, Type: timing.GCIO})
	d.arr.EraseBlock(base)
}
