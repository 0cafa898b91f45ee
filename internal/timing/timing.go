// Package timing implements the downward "device-timing model"
// collaborator: Advance(ppa, event) -> latency_ns, updating the owning
// LUN's next-available clock.
//
// The shape — a small latency table keyed by command type, consulted
// once per NAND operation to produce both a side effect (the LUN
// clock) and a return value (the latency) — follows syifan-m2sim2's
// fast_timing.go, where a latency table is threaded through the
// simulator and consulted once per instruction to get both the
// timing effect and the latency to report.
package timing

import (
	"github.com/sirupsen/logrus"

	"hcftl/internal/geom"
	"hcftl/internal/nand"
)

// EventClass distinguishes host-triggered I/O from GC-triggered I/O.
type EventClass int

const (
	UserIO EventClass = iota
	GCIO
)

// Cmd is the NAND-level command being timed.
type Cmd int

const (
	CmdRead Cmd = iota
	CmdWrite
	CmdErase
)

// Event describes one timed NAND operation.
type Event struct {
	Class Cmd
	Type  EventClass
	STime uint64
}

// Model is the timing service interface the FTL core calls into.
type Model interface {
	Advance(p geom.PPA, ev Event) uint64
}

// Table holds the four NAND latency constants, all in nanoseconds:
// page read, page write, block erase, and channel transfer.
type Table struct {
	PgRdLatNs  uint64
	PgWrLatNs  uint64
	BlkErLatNs uint64
	ChXferLatNs uint64
}

// SimpleModel is the in-process stand-in for the real per-LUN/
// per-channel device-timing service, treated as an external
// collaborator the core calls into rather than a component this
// simulator owns end to end.
type SimpleModel struct {
	arr   *nand.Array
	table Table
	log   *logrus.Logger
}

// NewSimpleModel builds a timing model backed by arr's LUN clocks.
func NewSimpleModel(arr *nand.Array, table Table, log *logrus.Logger) *SimpleModel {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SimpleModel{arr: arr, table: table, log: log}
}

// Advance implements Model. Unrecognized commands are logged and
// return zero latency; they are never fatal.
func (m *SimpleModel) Advance(p geom.PPA, ev Event) uint64 {
	lun := m.arr.LUN(p)
	start := ev.STime
	if lun.NextAvailableNs > start {
		start = lun.NextAvailableNs
	}

	var lat uint64
	switch ev.Class {
	case CmdRead:
		lat = m.table.PgRdLatNs + m.table.ChXferLatNs
	case CmdWrite:
		lat = m.table.PgWrLatNs + m.table.ChXferLatNs
	case CmdErase:
		lat = m.table.BlkErLatNs
	default:
		m.log.WithField("cmd", ev.Class).Warn("timing: out-of-band NAND command")
		return 0
	}

	finish := start + lat
	lun.NextAvailableNs = finish
	return finish - ev.STime
}
