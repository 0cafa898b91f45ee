package geom

// PPA is the unpacked form of a physical page address, packed into a
// single machine word with shift-and-mask across seven bitfields
// (channel, lun, plane, sector, page, block, and a reserved bit).
type PPA struct {
	Ch  uint8  // 7 bits
	Lun uint8  // 8 bits
	Pl  uint8  // 8 bits
	Sec uint8  // 8 bits
	Pg  uint16 // 16 bits
	Blk uint16 // 16 bits
	Rsv uint8  // 1 bit
}

const (
	chBits  = 7
	lunBits = 8
	plBits  = 8
	secBits = 8
	pgBits  = 16
	blkBits = 16
	rsvBits = 1

	rsvShift = 0
	blkShift = rsvShift + rsvBits
	pgShift  = blkShift + blkBits
	secShift = pgShift + pgBits
	plShift  = secShift + secBits
	lunShift = plShift + plBits
	chShift  = lunShift + lunBits

	chMask  = uint64(1)<<chBits - 1
	lunMask = uint64(1)<<lunBits - 1
	plMask  = uint64(1)<<plBits - 1
	secMask = uint64(1)<<secBits - 1
	pgMask  = uint64(1)<<pgBits - 1
	blkMask = uint64(1)<<blkBits - 1
	rsvMask = uint64(1)<<rsvBits - 1
)

// AllOnes is the sentinel packed value meaning "unmapped/invalid".
const AllOnes uint64 = ^uint64(0)

// Unmapped is the unpacked sentinel; Pack(Unmapped) == AllOnes.
var Unmapped = Unpack(AllOnes)

// Pack encodes p into its 64-bit wire form.
func Pack(p PPA) uint64 {
	var v uint64
	v |= uint64(p.Rsv) & rsvMask << rsvShift
	v |= uint64(p.Blk) & blkMask << blkShift
	v |= uint64(p.Pg) & pgMask << pgShift
	v |= uint64(p.Sec) & secMask << secShift
	v |= uint64(p.Pl) & plMask << plShift
	v |= uint64(p.Lun) & lunMask << lunShift
	v |= uint64(p.Ch) & chMask << chShift
	return v
}

// Unpack decodes a 64-bit wire value back into its component fields.
func Unpack(v uint64) PPA {
	return PPA{
		Rsv: uint8(v >> rsvShift & rsvMask),
		Blk: uint16(v >> blkShift & blkMask),
		Pg:  uint16(v >> pgShift & pgMask),
		Sec: uint8(v >> secShift & secMask),
		Pl:  uint8(v >> plShift & plMask),
		Lun: uint8(v >> lunShift & lunMask),
		Ch:  uint8(v >> chShift & chMask),
	}
}

// IsUnmapped reports whether the packed value is the ALL_ONES sentinel.
func IsUnmapped(v uint64) bool {
	return v == AllOnes
}

// InBounds reports whether p's components fit this geometry, i.e. it
// could have been produced by a write pointer over g.
func (g Geometry) InBounds(p PPA) bool {
	return int(p.Ch) < g.NChs &&
		int(p.Lun) < g.LunsPerCh &&
		int(p.Pl) < g.PlsPerLun &&
		int(p.Blk) < g.BlksPerPl &&
		int(p.Pg) < g.PgsPerBlk
}
