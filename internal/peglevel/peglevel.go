// Package peglevel implements the immutable descriptor of a peg cycle:
// the supply-index triple (now/next/next-next), the signed shift applied
// on top of "now", and the partial-bucket remainder that shift leaves
// behind. A PegLevel never mutates after construction.
package peglevel

import (
	"encoding/hex"
	"fmt"

	"github.com/rawblock/pegengine/internal/fractions"
)

// Level is the peg cycle descriptor value object. Zero value is the
// distinguished invalid sentinel; callers must call IsValid before use.
type Level struct {
	Cycle     uint32
	CyclePrev uint32

	Supply         uint16
	SupplyNext     uint16
	SupplyNextNext uint16

	Shift int16

	ShiftLastPart  int64
	ShiftLastTotal int64

	valid bool
}

// broadcastLookahead is the "+3" scheduling offset getPegLevel applies to
// every supply index before constructing a Level: broadcast-in-3-
// intervals scheduling, so downstream consumers see a level this far
// ahead of the current one before it takes effect.
const broadcastLookahead = 3

// New constructs a Level from numeric fields with no shift applied — the
// plain "from cycle + supply indices" constructor.
func New(cycle, cyclePrev uint32, supply, supplyNext, supplyNextNext uint16) Level {
	return Level{
		Cycle:          cycle,
		CyclePrev:      cyclePrev,
		Supply:         supply,
		SupplyNext:     supplyNext,
		SupplyNextNext: supplyNextNext,
		valid:          true,
	}
}

// FromExchangeSnapshot derives a Level the way the exchange-side
// getPegLevel RPC does: given the exchange's own fraction vector and the
// outstanding pegshift surplus, walk buckets from supply upward, consuming
// whole-bucket shift while the pegshift surplus can fully cover the next
// bucket, then record the partial remainder in ShiftLastPart/Total.
//
// supplyNow/supplyNext/supplyNextNext are the raw (pre-lookahead) supply
// indices; the broadcast-in-3-intervals offset is applied here so callers
// pass plain cycle-boundary values.
func FromExchangeSnapshot(cycle, cyclePrev uint32, supplyNow, supplyNext, supplyNextNext int, exchange, pegShift fractions.Vector) Level {
	now := clampSupply(supplyNow + broadcastLookahead)
	next := clampSupply(supplyNext + broadcastLookahead)
	nextNext := clampSupply(supplyNextNext + broadcastLookahead)

	lvl := Level{
		Cycle:          cycle,
		CyclePrev:      cyclePrev,
		Supply:         now,
		SupplyNext:     next,
		SupplyNextNext: nextNext,
		valid:          true,
	}

	exchange = exchange.Std()
	pegShift = pegShift.Std()

	shiftSurplus := pegShift.Total()
	bucket := int(lvl.Supply)
	var shift int
	for shiftSurplus > 0 && bucket+shift < fractions.Size-1 {
		bucketValue := exchange.F[bucket+shift]
		if bucketValue <= 0 {
			break
		}
		if shiftSurplus < bucketValue {
			break
		}
		shiftSurplus -= bucketValue
		shift++
	}

	lvl.Shift = int16(shift)
	if bucket+shift < fractions.Size {
		total := exchange.F[bucket+shift]
		if total < 0 {
			total = 0
		}
		part := shiftSurplus
		if part > total {
			part = total
		}
		lvl.ShiftLastTotal = total
		lvl.ShiftLastPart = part
	}

	return lvl
}

func clampSupply(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > fractions.MaxSupplyIndex {
		return fractions.MaxSupplyIndex
	}
	return uint16(v)
}

// IsValid reports whether the level satisfies its invariants: supply
// indices in range, ShiftLastPart <= ShiftLastTotal, and the cycle pair
// non-decreasing.
func (l Level) IsValid() bool {
	if !l.valid {
		return false
	}
	if int(l.Supply) > fractions.MaxSupplyIndex {
		return false
	}
	if int(l.SupplyNext) > fractions.MaxSupplyIndex {
		return false
	}
	if int(l.SupplyNextNext) > fractions.MaxSupplyIndex {
		return false
	}
	if l.ShiftLastPart > l.ShiftLastTotal {
		return false
	}
	if l.Cycle < l.CyclePrev {
		return false
	}
	return true
}

// Effective returns nSupply+nShift, the bucket index at which the
// reserve/liquid cut actually falls once shift is applied.
func (l Level) Effective() int {
	return int(l.Supply) + int(l.Shift)
}

const hexLayout = "%08x%08x%04x%04x%04x%04x%016x%016x"

// ToHex packs the level's fields in a fixed order: cycle ∥ cyclePrev ∥
// nSupply ∥ nSupplyNext ∥ nSupplyNextNext ∥ nShift ∥ nShiftLastPart ∥
// nShiftLastTotal, each field fixed-width lower-hex.
func (l Level) ToHex() string {
	return fmt.Sprintf(hexLayout,
		l.Cycle, l.CyclePrev,
		l.Supply, l.SupplyNext, l.SupplyNextNext,
		uint16(l.Shift),
		uint64(l.ShiftLastPart), uint64(l.ShiftLastTotal),
	)
}

// fromHexWidth is the total character length ToHex always produces:
// 8+8+4+4+4+4+16+16.
const fromHexWidth = 8 + 8 + 4 + 4 + 4 + 4 + 16 + 16

// FromHex decodes a Level previously produced by ToHex. A malformed or
// wrong-length string decodes to the invalid sentinel rather than erroring,
// matching CPegLevel(hex)'s "invalid on bad input" constructor behavior;
// callers must still check IsValid.
func FromHex(s string) Level {
	if len(s) != fromHexWidth {
		return Level{}
	}
	if _, err := hex.DecodeString(s); err != nil {
		return Level{}
	}

	var cycle, cyclePrev uint32
	var supply, supplyNext, supplyNextNext, shiftRaw uint16
	var part, total uint64

	off := 0
	readHex32 := func() uint32 {
		var v uint32
		fmt.Sscanf(s[off:off+8], "%08x", &v)
		off += 8
		return v
	}
	readHex16 := func() uint16 {
		var v uint16
		fmt.Sscanf(s[off:off+4], "%04x", &v)
		off += 4
		return v
	}
	readHex64 := func() uint64 {
		var v uint64
		fmt.Sscanf(s[off:off+16], "%016x", &v)
		off += 16
		return v
	}

	cycle = readHex32()
	cyclePrev = readHex32()
	supply = readHex16()
	supplyNext = readHex16()
	supplyNextNext = readHex16()
	shiftRaw = readHex16()
	part = readHex64()
	total = readHex64()

	return Level{
		Cycle:          cycle,
		CyclePrev:      cyclePrev,
		Supply:         supply,
		SupplyNext:     supplyNext,
		SupplyNextNext: supplyNextNext,
		Shift:          int16(shiftRaw),
		ShiftLastPart:  int64(part),
		ShiftLastTotal: int64(total),
		valid:          true,
	}
}
