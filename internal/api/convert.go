package api

import (
	"fmt"

	"github.com/rawblock/pegengine/internal/balance"
	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/pegdata"
	"github.com/rawblock/pegengine/internal/peglevel"
	"github.com/rawblock/pegengine/pkg/models"
)

// levelToModel projects an internal peglevel.Level onto its wire DTO.
func levelToModel(l peglevel.Level) models.PegLevel {
	return models.PegLevel{
		Cycle:          l.Cycle,
		CyclePrev:      l.CyclePrev,
		Supply:         l.Supply,
		SupplyNext:     l.SupplyNext,
		SupplyNextNext: l.SupplyNextNext,
		Shift:          l.Shift,
		ShiftLastPart:  l.ShiftLastPart,
		ShiftLastTotal: l.ShiftLastTotal,
		Hex:            l.ToHex(),
	}
}

// pegDataToModel projects a pegdata.Data onto its wire DTO, re-encoding the
// blob so a round trip through the API always yields the canonical current
// wire shape even if the caller supplied a legacy-encoded blob.
func pegDataToModel(d pegdata.Data) models.PegData {
	return models.PegData{
		Blob:    d.ToString(),
		Reserve: d.Reserve,
		Liquid:  d.Liquid,
		Level:   levelToModel(d.Level),
		Valid:   d.IsValid(),
	}
}

// pegDataFromModel decodes a wire PegData back into a pegdata.Data,
// erroring if the blob is empty or fails to decode to a valid level.
func pegDataFromModel(m models.PegData) (pegdata.Data, error) {
	if m.Blob == "" {
		return pegdata.Data{}, fmt.Errorf("api: empty pegdata blob")
	}
	d := pegdata.FromString(m.Blob)
	if !d.IsValid() {
		return pegdata.Data{}, fmt.Errorf("api: pegdata blob decoded to an invalid level")
	}
	return d, nil
}

// fractionsToModel projects a fractions.Vector onto its wire DTO, adding
// the full STD bucket dump when detailed is set.
func fractionsToModel(v fractions.Vector, detailed bool) models.FractionVector {
	out := models.FractionVector{Total: v.Total(), LockTime: v.LockTime}
	switch {
	case v.Flags&fractions.NotaryF != 0:
		out.Notary = "F"
	case v.Flags&fractions.NotaryV != 0:
		out.Notary = "V"
	case v.Flags&fractions.NotaryL != 0:
		out.Notary = "L"
	}
	if detailed {
		std := v.Std()
		out.Buckets = append([]int64(nil), std.F[:]...)
	}
	return out
}

// levelFromHex decodes a level hex string, erroring on an invalid result
// rather than silently handing back the zero sentinel to callers.
func levelFromHex(hx string) (peglevel.Level, error) {
	lvl := peglevel.FromHex(hx)
	if !lvl.IsValid() {
		return peglevel.Level{}, fmt.Errorf("api: malformed or invalid peglevel hex")
	}
	return lvl, nil
}

// fractionsFromModel reconstructs a fractions.Vector from the wire DTO:
// the full Std-form bucket dump when the caller supplied one (needed by
// callers that read per-bucket shape, e.g. getpeglevel's shift walk), or
// the VALUE shorthand otherwise.
func fractionsFromModel(m models.FractionVector) fractions.Vector {
	if len(m.Buckets) == fractions.Size {
		v := fractions.Vector{Flags: fractions.Std}
		copy(v.F[:], m.Buckets)
		return v
	}
	return fractions.FromValue(m.Total)
}

// pegDataFromModelOrZero is pegDataFromModel, except an empty blob decodes
// to the zero Data value instead of an error — the "subtract/carry
// nothing" case some callers (removecoins' arg2, a withdraw candidate with
// no known PegData yet) legitimately pass.
func pegDataFromModelOrZero(m models.PegData) (pegdata.Data, error) {
	if m.Blob == "" {
		return pegdata.Data{}, nil
	}
	return pegDataFromModel(m)
}

// toBalance and fromBalance translate between pegdata.Data (the wire
// tuple) and balance.Balance (the domain value balance.Update/MoveCoins
// operate on) — both share the same four fields, so this is a pure
// relabeling, not a computation.
func toBalance(d pegdata.Data) balance.Balance {
	return balance.Balance{
		Fractions: d.Fractions,
		Level:     d.Level,
		Reserve:   d.Reserve,
		Liquid:    d.Liquid,
	}
}

func fromBalance(b balance.Balance) pegdata.Data {
	return pegdata.Data{
		Fractions: b.Fractions,
		Level:     b.Level,
		Reserve:   b.Reserve,
		Liquid:    b.Liquid,
	}
}
