package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestWAFAndOverheadZeroGuarded(t *testing.T) {
	var c Counters
	assert.Zero(t, c.WAF())
	assert.Zero(t, c.GCOverheadPercent())
}

func TestWAFAndOverheadComputed(t *testing.T) {
	c := Counters{HostWrites: 100, NandWrites: 150, GCWrites: 50}
	assert.InDelta(t, 1.5, c.WAF(), 1e-9)
	assert.InDelta(t, 50.0, c.GCOverheadPercent(), 1e-9)
}

func TestReporterFiresOnlyAtInterval(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewReporter(reg, nil, 10)

	c := &Counters{HostWrites: 9, NandWrites: 9}
	assert.Nil(t, r.MaybeReport(c, FreeLines{}, [32]uint64{}))

	c.HostWrites = 10
	c.NandWrites = 11
	snap := r.MaybeReport(c, FreeLines{Hot: 1, Cold: 2, Total: 3, AllLines: 8}, [32]uint64{})
	if assert.NotNil(t, snap) {
		assert.EqualValues(t, 10, snap.HostWrites)
		assert.Equal(t, 3, snap.Free.Total)
	}
}

func TestReporterDefaultsIntervalWhenZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewReporter(reg, nil, 0)
	assert.EqualValues(t, DefaultReportIntervalWrites, r.interval)
}
