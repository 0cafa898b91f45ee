// Package line implements the line manager: two class-segregated free
// pools (hot, cold), a full list, and the victim-count bookkeeping the
// garbage collector reads.
//
// List membership is intrusive: every Line keeps the *list.Element
// that currently holds it (or nil if it is active / partially
// invalid), so moving a line between lists is an O(1) Remove+PushBack
// rather than a scan, the same reason a block-list wraps
// container/list rather than walking a plain slice: a line must leave
// one list and join another without a linear search.
package line

import (
	"container/list"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Class is the pool a line currently belongs to. A line's class can
// change at runtime via borrowing.
type Class int

const (
	Hot Class = iota
	Cold
)

func (c Class) String() string {
	if c == Hot {
		return "hot"
	}
	return "cold"
}

// Location records which of the five places a line can be: on the
// hot-free list, the cold-free list, the full list, in use as a write
// pointer's active line, or "partially invalid" (vpc < pgs_per_line,
// ipc > 0, on no list at all — reachable only through Manager.lines).
type Location int

const (
	LocHotFree Location = iota
	LocColdFree
	LocFull
	LocActive
	LocPartial
)

// Line is one GC unit: a stripe of one block per LUN sharing block id.
type Line struct {
	ID            int
	Vpc           int32
	Ipc           int32
	Cls           Class
	LastUpdateSeq uint64
	ColdScore     int64

	loc  Location
	elem *list.Element // position within whichever list loc names, nil for Active/Partial
}

func (l *Line) Location() Location { return l.loc }

// minHotReserve and minColdReserve are the borrowing floors: a class
// never lends its last few free lines away to the other.
const (
	minHotReserve  = 3
	minColdReserve = 3
)

// Reclaimer lets the line manager trigger a forced GC round when an
// allocation would otherwise fail outright. It is implemented by
// package gc; line cannot import gc directly without a cycle, so the
// dependency runs through this interface instead.
type Reclaimer interface {
	ForceGC(cls Class) error
}

// Manager owns every Line for one geometry plus the two free lists,
// the full list, and the two victim counters.
type Manager struct {
	lines []*Line

	hotFree  *list.List
	coldFree *list.List
	full     *list.List

	hotFreeCnt  int
	coldFreeCnt int

	hotVictimCnt  int
	coldVictimCnt int

	reclaim Reclaimer
	log     *logrus.Logger
}

// NewManager builds ttLines lines, classifying the first hotSharePct
// percent of them HOT and the rest COLD, and pushes every line onto
// the free list matching its class in ID order.
func NewManager(ttLines, hotSharePct int, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{
		lines:    make([]*Line, ttLines),
		hotFree:  list.New(),
		coldFree: list.New(),
		full:     list.New(),
		log:      log,
	}
	hotCount := ttLines * hotSharePct / 100
	for i := 0; i < ttLines; i++ {
		l := &Line{ID: i}
		if i < hotCount {
			l.Cls = Hot
		} else {
			l.Cls = Cold
		}
		m.lines[i] = l
		m.pushFree(l)
	}
	return m
}

// SetReclaimer wires the garbage collector in after both have been
// constructed, breaking the line<->gc import cycle.
func (m *Manager) SetReclaimer(r Reclaimer) { m.reclaim = r }

// Lines returns every line this manager owns, for GC victim scans.
func (m *Manager) Lines() []*Line { return m.lines }

func (m *Manager) HotFreeCount() int    { return m.hotFreeCnt }
func (m *Manager) ColdFreeCount() int   { return m.coldFreeCnt }
func (m *Manager) HotVictimCount() int  { return m.hotVictimCnt }
func (m *Manager) ColdVictimCount() int { return m.coldVictimCnt }

func (m *Manager) pushFree(l *Line) {
	switch l.Cls {
	case Hot:
		l.loc = LocHotFree
		l.elem = m.hotFree.PushBack(l)
		m.hotFreeCnt++
	case Cold:
		l.loc = LocColdFree
		l.elem = m.coldFree.PushBack(l)
		m.coldFreeCnt++
	}
}

func (m *Manager) popFront(freeList *list.List) *Line {
	e := freeList.Front()
	if e == nil {
		return nil
	}
	freeList.Remove(e)
	l := e.Value.(*Line)
	l.elem = nil
	return l
}

// ErrNoFreeLine is the EmptyGCVictim-adjacent failure a write pointer
// sees when even a forced GC round could not produce a free line. The
// caller (package wp, via package ftl) treats this as
// AllocationExhausted and aborts.
type ErrNoFreeLine struct{ Class Class }

func (e ErrNoFreeLine) Error() string {
	return fmt.Sprintf("line: no free %s line available", e.Class)
}

// TakeFreeHot pops a free hot line, borrowing from cold (above its
// reserve) or forcing a GC round if none is immediately available.
func (m *Manager) TakeFreeHot() (*Line, error) {
	if l := m.popFront(m.hotFree); l != nil {
		m.hotFreeCnt--
		l.loc = LocActive
		return l, nil
	}
	if m.coldFreeCnt > minColdReserve {
		l := m.popFront(m.coldFree)
		before := m.coldFreeCnt
		m.coldFreeCnt--
		m.log.WithFields(logrus.Fields{
			"line_id":          l.ID,
			"cold_free_before": before,
			"cold_free_after":  m.coldFreeCnt,
		}).Warn("line: borrowing a line from cold-free to satisfy a hot allocation")
		l.Cls = Hot
		l.loc = LocActive
		return l, nil
	}
	if m.reclaim != nil {
		if err := m.reclaim.ForceGC(Hot); err == nil {
			if l := m.popFront(m.hotFree); l != nil {
				m.hotFreeCnt--
				l.loc = LocActive
				return l, nil
			}
		}
	}
	return nil, ErrNoFreeLine{Class: Hot}
}

// TakeFreeCold is the cold counterpart to TakeFreeHot.
func (m *Manager) TakeFreeCold() (*Line, error) {
	if l := m.popFront(m.coldFree); l != nil {
		m.coldFreeCnt--
		l.loc = LocActive
		return l, nil
	}
	if m.hotFreeCnt > minHotReserve {
		l := m.popFront(m.hotFree)
		before := m.hotFreeCnt
		m.hotFreeCnt--
		m.log.WithFields(logrus.Fields{
			"line_id":         l.ID,
			"hot_free_before": before,
			"hot_free_after":  m.hotFreeCnt,
		}).Warn("line: borrowing a line from hot-free to satisfy a cold allocation")
		l.Cls = Cold
		l.loc = LocActive
		return l, nil
	}
	if m.reclaim != nil {
		if err := m.reclaim.ForceGC(Cold); err == nil {
			if l := m.popFront(m.coldFree); l != nil {
				m.coldFreeCnt--
				l.loc = LocActive
				return l, nil
			}
		}
	}
	return nil, ErrNoFreeLine{Class: Cold}
}

// ReleaseToFree resets l's counters and returns it to its class's
// free list, decrementing the victim counter if it was partially
// invalid.
func (m *Manager) ReleaseToFree(l *Line) {
	hadIpc := l.Ipc > 0
	l.Vpc = 0
	l.Ipc = 0
	l.LastUpdateSeq = 0
	if hadIpc {
		m.decVictim(l.Cls)
	}
	m.pushFree(l)
}

// MarkFull moves l onto the full list.
func (m *Manager) MarkFull(l *Line) {
	l.loc = LocFull
	l.elem = m.full.PushBack(l)
}

// MarkPartial records that a line's write pointer has wrapped away
// from it while it is still short of full and holds at least one
// invalid page: it joins no list, remaining reachable only through
// Manager.Lines.
func (m *Manager) MarkPartial(l *Line) {
	l.loc = LocPartial
}

// OnValidate bumps vpc and stamps last_update_seq for a newly valid
// page on l.
func (m *Manager) OnValidate(l *Line, hostWrites uint64) {
	l.Vpc++
	l.LastUpdateSeq = hostWrites
}

// OnInvalidate removes l from the full list if present, bumps the
// victim counter on the 0->1 transition, then applies vpc--/ipc++.
func (m *Manager) OnInvalidate(l *Line) {
	if l.loc == LocFull {
		m.full.Remove(l.elem)
		l.elem = nil
		l.loc = LocPartial
	}
	wasZero := l.Ipc == 0
	l.Vpc--
	l.Ipc++
	if wasZero {
		m.incVictim(l.Cls)
	}
}

func (m *Manager) incVictim(c Class) {
	if c == Hot {
		m.hotVictimCnt++
	} else {
		m.coldVictimCnt++
	}
}

func (m *Manager) decVictim(c Class) {
	if c == Hot {
		m.hotVictimCnt--
	} else {
		m.coldVictimCnt--
	}
}
