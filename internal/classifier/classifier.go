// Package classifier implements the per-LPN hot/cold classifier: a
// saturating access counter and short-interval streak per logical
// page, state transitions between COLD and HOT, and a periodic global
// decay pass.
//
// The saturating-counter idiom (increment that never wraps) follows
// this codebase's own counter-increment helpers elsewhere, generalized
// from a single global counter to a per-LPN array that is always
// live: the classifier is not a debug-only facility.
package classifier

import (
	"math"
	"math/bits"

	"hcftl/internal/geom"
)

// State is a logical page's current classification.
type State int

const (
	Cold State = iota
	Hot
)

// Tunables controlling when a logical page flips between COLD and HOT.
const (
	HotAccessThreshold         uint32 = 3
	HotIntervalThresholdPages  uint64 = 64
	HotIntervalConfirmCount    uint8  = 2
)

// Classifier holds per-LPN classification state for ttPgs logical
// pages plus the global decay clock and diagnostic histogram.
type Classifier struct {
	decayWindow uint64

	state        []State
	accessCnt    []uint32
	lastWriteSeq []uint64
	shortStreak  []uint8

	lastDecaySeq uint64
	histogram    [32]uint64
}

// New builds a classifier for ttPgs logical pages. decayWindow is
// conventionally ttPgs/10.
func New(ttPgs int, decayWindow uint64) *Classifier {
	return &Classifier{
		decayWindow:  decayWindow,
		state:        make([]State, ttPgs),
		accessCnt:    make([]uint32, ttPgs),
		lastWriteSeq: make([]uint64, ttPgs),
		shortStreak:  make([]uint8, ttPgs),
	}
}

// State returns lpn's current classification.
func (c *Classifier) State(lpn geom.LPN) State { return c.state[lpn] }

// IsHot reports whether lpn is currently classified HOT.
func (c *Classifier) IsHot(lpn geom.LPN) bool { return c.state[lpn] == Hot }

// AccessCount and ShortStreak expose raw per-LPN counters, mainly for
// tests and diagnostics.
func (c *Classifier) AccessCount(lpn geom.LPN) uint32 { return c.accessCnt[lpn] }
func (c *Classifier) ShortStreak(lpn geom.LPN) uint8  { return c.shortStreak[lpn] }

// Histogram returns a copy of the 32-bin log2 update-interval
// histogram, a diagnostic field only.
func (c *Classifier) Histogram() [32]uint64 { return c.histogram }

// OnWrite records a write to lpn at sequence seq, running the decay
// check first, then updating counters and classification state.
func (c *Classifier) OnWrite(lpn geom.LPN, seq uint64) {
	c.maybeDecay(seq)

	last := c.lastWriteSeq[lpn]
	finite := last != 0
	delta := uint64(math.MaxUint64)
	if finite {
		delta = seq - last
		c.histogram[log2Bin(delta)]++
	}

	c.accessCnt[lpn] = satAddU32(c.accessCnt[lpn], 1)

	if delta <= HotIntervalThresholdPages {
		c.shortStreak[lpn] = satAddU8(c.shortStreak[lpn], 1)
	} else {
		c.shortStreak[lpn] = 0
	}

	c.lastWriteSeq[lpn] = seq

	switch c.state[lpn] {
	case Cold:
		if c.accessCnt[lpn] >= HotAccessThreshold && c.shortStreak[lpn] >= HotIntervalConfirmCount {
			c.state[lpn] = Hot
		}
	case Hot:
		if c.accessCnt[lpn] < HotAccessThreshold || delta > 4*HotIntervalThresholdPages {
			c.state[lpn] = Cold
			c.shortStreak[lpn] = 0
		}
	}
}

func (c *Classifier) maybeDecay(seq uint64) {
	if seq-c.lastDecaySeq < c.decayWindow {
		return
	}
	for i := range c.accessCnt {
		c.accessCnt[i] /= 2
		c.shortStreak[i] /= 2
	}
	c.lastDecaySeq = seq
}

// log2Bin returns floor(log2(delta)) clamped to [0,31].
func log2Bin(delta uint64) int {
	if delta == 0 {
		return 0
	}
	bin := bits.Len64(delta) - 1
	if bin > 31 {
		return 31
	}
	return bin
}

func satAddU32(v uint32, inc uint32) uint32 {
	if math.MaxUint32-v < inc {
		return math.MaxUint32
	}
	return v + inc
}

func satAddU8(v uint8, inc uint8) uint8 {
	if math.MaxUint8-v < inc {
		return math.MaxUint8
	}
	return v + inc
}
