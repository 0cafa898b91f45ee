package ftl

import (
	"hcftl/internal/geom"
	"hcftl/internal/request"
	"hcftl/internal/timing"
)

// lpnRange converts an LBA extent to an inclusive logical-page range,
// clamping end to ttPgs-1; fails (ok = false) if start is already out
// of bounds or nlb is zero.
func (c *Core) lpnRange(slba uint64, nlb uint32) (start, end int, ok bool) {
	if nlb == 0 {
		return 0, 0, false
	}
	secsPerPg := uint64(c.g.SecsPerPg)
	s := int(slba / secsPerPg)
	if s >= c.g.TTPgs {
		return 0, 0, false
	}
	e := int((slba + uint64(nlb) - 1) / secsPerPg)
	if e > c.g.TTPgs-1 {
		e = c.g.TTPgs - 1
	}
	return s, e, true
}

// invalidateOld tears down the old mapping for lpn if one exists,
// shared by the write and trim paths.
func (c *Core) invalidateOld(lpn geom.LPN) {
	if !c.tbl.IsMapped(lpn) {
		return
	}
	old := geom.Unpack(c.tbl.Get(lpn))
	oldIdx := c.g.PgIdx(old)
	l := c.mgr.Lines()[old.Blk]
	c.arr.MarkInvalid(old)
	c.mgr.OnInvalidate(l)
	c.tbl.ClearReverse(oldIdx)
}

// Write classifies, invalidates any prior mapping, and allocates a
// fresh page for every LPN in the request's range. A non-nil error is
// always fatal (allocation exhaustion); the caller must abort with no
// further requests serviced.
func (c *Core) Write(req *request.Request) (request.Completion, error) {
	start, end, ok := c.lpnRange(req.SLBA, req.NLB)
	if !ok {
		c.log.WithFields(map[string]interface{}{"slba": req.SLBA, "nlb": req.NLB}).Warn("ftl: write out of range")
		return request.Completion{}, nil
	}

	// Reads host_writes as it stood before this request's per-page
	// loop, rather than re-checking after every page written.
	for c.ShouldGCHi() {
		if err := c.gcd.DoGC(true); err != nil {
			break
		}
	}

	var maxLat uint64
	for lpn := start; lpn <= end; lpn++ {
		l := geom.LPN(lpn)
		c.cnt.HostWrites++
		c.cls.OnWrite(l, c.cnt.HostWrites)
		isHot := c.cls.IsHot(l)

		c.invalidateOld(l)

		ptr := c.ptrs.cold
		if isHot {
			ptr = c.ptrs.hot
		}
		destLine := ptr.Line()
		ppa, err := ptr.Alloc(c.cnt.HostWrites)
		if err != nil {
			return request.Completion{}, err
		}

		c.arr.MarkValid(ppa)
		c.mgr.OnValidate(destLine, c.cnt.HostWrites)
		c.tbl.Set(l, geom.Pack(ppa))
		c.tbl.SetReverse(c.g.PgIdx(ppa), l)
		c.cnt.NandWrites++

		lat := c.tim.Advance(ppa, timing.Event{Class: timing.CmdWrite, Type: timing.UserIO, STime: req.STime})
		if lat > maxLat {
			maxLat = lat
		}
	}

	c.maybeReport()
	return request.Completion{ReqLat: maxLat, ExpireTime: req.STime + maxLat}, nil
}

// Read walks the request's LPN range, timing only mapped pages within
// bounds; unmapped or out-of-bounds pages are skipped.
func (c *Core) Read(req *request.Request) (request.Completion, error) {
	start, end, ok := c.lpnRange(req.SLBA, req.NLB)
	if !ok {
		return request.Completion{}, nil
	}

	var maxLat uint64
	for lpn := start; lpn <= end; lpn++ {
		l := geom.LPN(lpn)
		if !c.tbl.IsMapped(l) {
			continue
		}
		ppa := geom.Unpack(c.tbl.Get(l))
		if !c.g.InBounds(ppa) {
			continue
		}
		lat := c.tim.Advance(ppa, timing.Event{Class: timing.CmdRead, Type: timing.UserIO, STime: req.STime})
		if lat > maxLat {
			maxLat = lat
		}
	}
	return request.Completion{ReqLat: maxLat, ExpireTime: req.STime + maxLat}, nil
}

// Trim unmaps every LPN covered by each DSM range. No NAND latency is
// accounted.
func (c *Core) Trim(req *request.Request) (request.Completion, error) {
	for _, r := range req.DSMRanges {
		start, end, ok := c.lpnRange(r.SLBA, r.NLB)
		if !ok {
			c.log.WithFields(map[string]interface{}{"slba": r.SLBA, "nlb": r.NLB}).Warn("ftl: trim range out of bounds, skipped")
			continue
		}
		for lpn := start; lpn <= end; lpn++ {
			l := geom.LPN(lpn)
			if !c.tbl.IsMapped(l) {
				continue
			}
			c.invalidateOld(l)
			c.tbl.Unset(l)
		}
	}
	return request.Completion{}, nil
}

// Dispatch routes req by opcode. Unknown opcodes produce a
// zero-latency completion and are not an error.
func (c *Core) Dispatch(req *request.Request) (request.Completion, error) {
	switch req.Opcode {
	case request.OpWrite:
		return c.Write(req)
	case request.OpRead:
		return c.Read(req)
	case request.OpTrim:
		return c.Trim(req)
	default:
		c.log.WithField("opcode", req.Opcode).Warn("ftl: unrecognized opcode")
		return request.Completion{}, nil
	}
}
