package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// DefaultReportIntervalWrites is the fallback reporting cadence when
// no interval is configured: a status block every 16384 host writes.
const DefaultReportIntervalWrites = 16384

// Reporter periodically turns Counters plus a free-line snapshot into
// a logrus line and a set of Prometheus metrics.
type Reporter struct {
	log      *logrus.Logger
	interval uint64

	lastHost   float64
	lastNand   float64
	lastGC     float64
	lastForced float64

	hostWrites   prometheus.Counter
	nandWrites   prometheus.Counter
	gcWrites     prometheus.Counter
	waf          prometheus.Gauge
	gcOverhead   prometheus.Gauge
	freeHot      prometheus.Gauge
	freeCold     prometheus.Gauge
	forcedRounds prometheus.Counter
}

// NewReporter registers the FTL's metrics on reg (pass a fresh
// prometheus.NewRegistry() in tests to avoid global-registry
// collisions) and returns a Reporter that fires every interval host
// writes.
func NewReporter(reg prometheus.Registerer, log *logrus.Logger, interval uint64) *Reporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if interval == 0 {
		interval = DefaultReportIntervalWrites
	}
	r := &Reporter{
		log:      log,
		interval: interval,
		hostWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hcftl", Name: "host_writes_total", Help: "Host pages written.",
		}),
		nandWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hcftl", Name: "nand_writes_total", Help: "NAND pages written.",
		}),
		gcWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hcftl", Name: "gc_writes_total", Help: "Pages written by the garbage collector.",
		}),
		waf: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hcftl", Name: "write_amplification_factor", Help: "NAND writes / host writes.",
		}),
		gcOverhead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hcftl", Name: "gc_overhead_percent", Help: "gc_writes / host_writes * 100.",
		}),
		freeHot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hcftl", Name: "free_lines_hot", Help: "Free hot lines.",
		}),
		freeCold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hcftl", Name: "free_lines_cold", Help: "Free cold lines.",
		}),
		forcedRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hcftl", Name: "forced_gc_rounds_total", Help: "Forced GC rounds triggered by allocation pressure.",
		}),
	}
	reg.MustRegister(r.hostWrites, r.nandWrites, r.gcWrites, r.waf, r.gcOverhead, r.freeHot, r.freeCold, r.forcedRounds)
	return r
}

// Sync pushes the latest counters into the Prometheus series. The
// caller is responsible for deciding cadence; MaybeReport below is
// the usual entry point from the FTL worker loop.
func (r *Reporter) Sync(c *Counters, free FreeLines) {
	r.hostWrites.Add(float64(c.HostWrites) - r.lastHost)
	r.lastHost = float64(c.HostWrites)
	r.nandWrites.Add(float64(c.NandWrites) - r.lastNand)
	r.lastNand = float64(c.NandWrites)
	r.gcWrites.Add(float64(c.GCWrites) - r.lastGC)
	r.lastGC = float64(c.GCWrites)
	r.forcedRounds.Add(float64(c.ForcedGCRounds) - r.lastForced)
	r.lastForced = float64(c.ForcedGCRounds)

	r.waf.Set(c.WAF())
	r.gcOverhead.Set(c.GCOverheadPercent())
	r.freeHot.Set(float64(free.Hot))
	r.freeCold.Set(float64(free.Cold))
}

// MaybeReport checks whether c.HostWrites is a non-zero multiple of
// the reporting interval; if so it syncs Prometheus, logs a structured
// summary line, and returns the Snapshot. Otherwise it returns nil,
// also when a multi-page write moved c.HostWrites past a multiple
// without landing on it.
func (r *Reporter) MaybeReport(c *Counters, free FreeLines, hist [32]uint64) *Snapshot {
	if c.HostWrites == 0 || c.HostWrites%r.interval != 0 {
		return nil
	}
	r.Sync(c, free)
	snap := &Snapshot{
		HostWrites:        c.HostWrites,
		NandWrites:        c.NandWrites,
		GCWrites:          c.GCWrites,
		WAF:               c.WAF(),
		GCOverheadPercent: c.GCOverheadPercent(),
		ForcedGCRounds:    c.ForcedGCRounds,
		Free:              free,
		Histogram:         hist,
	}
	r.log.WithFields(logrus.Fields{
		"host_writes": snap.HostWrites,
		"nand_writes": snap.NandWrites,
		"gc_writes":   snap.GCWrites,
		"waf":         snap.WAF,
		"gc_overhead": snap.GCOverheadPercent,
		"free_hot":    snap.Free.Hot,
		"free_cold":   snap.Free.Cold,
		"free_total":  snap.Free.Total,
		"total_lines": snap.Free.AllLines,
	}).Info("hcftl: periodic status report")
	return snap
}
