// Package ftl wires every core component into a single owned
// instance: a struct passed by exclusive reference to every
// operation, with the worker goroutine (Run) as its sole mutator.
package ftl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"hcftl/internal/classifier"
	"hcftl/internal/config"
	"hcftl/internal/gc"
	"hcftl/internal/geom"
	"hcftl/internal/line"
	"hcftl/internal/mapping"
	"hcftl/internal/nand"
	"hcftl/internal/stats"
	"hcftl/internal/timing"
	"hcftl/internal/wp"
)

type ptrsAdapter struct {
	hot, cold *wp.Pointer
}

func (p *ptrsAdapter) Hot() *wp.Pointer  { return p.hot }
func (p *ptrsAdapter) Cold() *wp.Pointer { return p.cold }

// Core is the single owned FTL instance: every field below is private
// to the worker goroutine that calls Dispatch/Write/Read/Trim.
type Core struct {
	g   geom.Geometry
	arr *nand.Array
	mgr *line.Manager
	tbl *mapping.Tables
	cls *classifier.Classifier
	tim timing.Model
	gcd *gc.Dispatcher
	cnt *stats.Counters
	rep *stats.Reporter

	ptrs *ptrsAdapter

	gcLoThresLines int
	gcHiThresLines int

	log *logrus.Logger
}

// New builds every collaborator from cfg, wires the Reclaimer loop
// between package line and package gc, and registers the periodic
// stats reporter on reg.
func New(cfg *config.Config, reg prometheus.Registerer, log *logrus.Logger) (*Core, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	g := geom.New(cfg.SecSz, cfg.SecsPerPg, cfg.PgsPerBlk, cfg.BlksPerPl, cfg.PlsPerLun, cfg.LunsPerCh, cfg.NChs)
	arr := nand.New(g)
	mgr := line.NewManager(g.TTLines, cfg.HotSharePct, log)
	tbl := mapping.New(g.TTPgs)

	decayWindow := uint64(g.TTPgs) / 10
	if decayWindow == 0 {
		decayWindow = 1
	}
	cls := classifier.New(g.TTPgs, decayWindow)

	tim := timing.NewSimpleModel(arr, timing.Table{
		PgRdLatNs:   cfg.PgRdLatNs,
		PgWrLatNs:   cfg.PgWrLatNs,
		BlkErLatNs:  cfg.BlkErLatNs,
		ChXferLatNs: cfg.ChXferLatNs,
	}, log)

	cnt := &stats.Counters{}

	hotPtr, err := wp.New(g, mgr, line.Hot, 0)
	if err != nil {
		return nil, err
	}
	coldPtr, err := wp.New(g, mgr, line.Cold, 0)
	if err != nil {
		return nil, err
	}
	ptrs := &ptrsAdapter{hot: hotPtr, cold: coldPtr}

	gcd := gc.New(g, mgr, arr, tbl, cls, tim, ptrs, cnt, decayWindow, log)
	mgr.SetReclaimer(gcd)

	rep := stats.NewReporter(reg, log, cfg.ReportIntervalWrites)

	return &Core{
		g: g, arr: arr, mgr: mgr, tbl: tbl, cls: cls, tim: tim, gcd: gcd,
		cnt: cnt, rep: rep, ptrs: ptrs,
		gcLoThresLines: g.TTLines * cfg.GCThresPcent / 100,
		gcHiThresLines: g.TTLines * cfg.GCThresPcentHigh / 100,
		log:            log,
	}, nil
}

func (c *Core) freeLinesTotal() int {
	return c.mgr.HotFreeCount() + c.mgr.ColdFreeCount()
}

// ShouldGCBG reports the background GC pressure signal at the low
// threshold.
func (c *Core) ShouldGCBG() bool { return c.freeLinesTotal() <= c.gcLoThresLines }

// ShouldGCHi reports the foreground GC pressure signal at the high
// threshold.
func (c *Core) ShouldGCHi() bool { return c.freeLinesTotal() <= c.gcHiThresLines }

// Snapshot returns the current counters, free-line breakdown and
// histogram, mainly for tests and the periodic reporter.
func (c *Core) Snapshot() stats.Snapshot {
	free := stats.FreeLines{
		Hot:      c.mgr.HotFreeCount(),
		Cold:     c.mgr.ColdFreeCount(),
		Total:    c.freeLinesTotal(),
		AllLines: c.g.TTLines,
	}
	return stats.Snapshot{
		HostWrites:        c.cnt.HostWrites,
		NandWrites:        c.cnt.NandWrites,
		GCWrites:          c.cnt.GCWrites,
		WAF:               c.cnt.WAF(),
		GCOverheadPercent: c.cnt.GCOverheadPercent(),
		ForcedGCRounds:    c.cnt.ForcedGCRounds,
		Free:              free,
		Histogram:         c.cls.Histogram(),
	}
}

func (c *Core) maybeReport() {
	free := stats.FreeLines{
		Hot:      c.mgr.HotFreeCount(),
		Cold:     c.mgr.ColdFreeCount(),
		Total:    c.freeLinesTotal(),
		AllLines: c.g.TTLines,
	}
	c.rep.MaybeReport(c.cnt, free, c.cls.Histogram())
}
