package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hcftl/internal/geom"
)

func TestStaysColdWithoutShortIntervals(t *testing.T) {
	c := New(128, 12)
	lpn := geom.LPN(5)
	// Large gaps between writes: access count climbs, but never a
	// qualifying short-interval streak.
	for i, seq := range []uint64{1, 1000, 2000, 3000} {
		_ = i
		c.OnWrite(lpn, seq)
	}
	assert.Equal(t, Cold, c.State(lpn))
}

func TestPromotesToHotOnTightLoop(t *testing.T) {
	// Writing the same LPN back to back, HotIntervalConfirmCount+1
	// times, promotes it to HOT.
	c := New(128, 1000)
	lpn := geom.LPN(42)
	seq := uint64(1)
	for i := 0; i < int(HotIntervalConfirmCount)+1; i++ {
		c.OnWrite(lpn, seq)
		seq++
	}
	assert.Equal(t, Hot, c.State(lpn))
}

func TestDemotesOnLongGapAfterHot(t *testing.T) {
	c := New(128, 10000)
	lpn := geom.LPN(1)
	seq := uint64(1)
	for i := 0; i < int(HotIntervalConfirmCount)+1; i++ {
		c.OnWrite(lpn, seq)
		seq++
	}
	assert.Equal(t, Hot, c.State(lpn))

	seq += 4*HotIntervalThresholdPages + 1
	c.OnWrite(lpn, seq)
	assert.Equal(t, Cold, c.State(lpn))
	assert.EqualValues(t, 0, c.ShortStreak(lpn))
}

func TestDecayHalvesCountersAcrossAllLPNs(t *testing.T) {
	c := New(4, 5)
	for lpn := geom.LPN(0); lpn < 4; lpn++ {
		c.OnWrite(lpn, 1)
		c.OnWrite(lpn, 2)
	}
	before := c.AccessCount(0)
	require := assert.New(t)
	require.GreaterOrEqual(before, uint32(1))

	// Advance far enough to cross the decay window.
	c.OnWrite(0, 100)
	assert.Equal(t, before/2, c.AccessCount(1))
}

func TestHistogramBinsClampTo31(t *testing.T) {
	c := New(4, 1<<40)
	lpn := geom.LPN(0)
	c.OnWrite(lpn, 1)
	c.OnWrite(lpn, 1<<40) // enormous delta, must clamp to bin 31
	hist := c.Histogram()
	assert.EqualValues(t, 1, hist[31])
}

func TestSaturatingAccessCounterNeverOverflows(t *testing.T) {
	v := uint32(1<<32 - 1)
	assert.Equal(t, v, satAddU32(v, 5))
}
