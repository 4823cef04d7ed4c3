// Package txpeg implements the per-transaction fraction propagation
// rules: given input FractionVectors and a peg supply index, it derives
// each output's FractionVector (plus a fee vector), enforcing
// reserve/liquid/frozen semantics and notary-driven freezing.
package txpeg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rawblock/pegengine/internal/chain"
	"github.com/rawblock/pegengine/internal/chainconfig"
	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/pegerr"
)

// Input is everything the engine needs about a spent output: its
// resolved address (so per-address pools can be built), its value, and
// the FractionVector it carried.
type Input struct {
	Address   string
	Value     int64
	Fractions fractions.Vector
}

// Output is everything the engine needs about a produced output: its
// value and its script (notary/burn detection reads the script directly;
// the address is resolved by the caller, since full address derivation is
// an external-collaborator concern).
type Output struct {
	Value   int64
	Script  []byte
	Address string
}

// Tx is the minimal transaction shape ComputeStandard/ComputeStaking
// operate over.
type Tx struct {
	Inputs  []Input
	Outputs []Output
	Time    int64
}

// frozenOut is a pending freeze target discovered while scanning inputs
// for notary markers.
type frozenOut struct {
	value      int64
	address    string
	fractions  fractions.Vector
	fairIndex1 int
	fairIndex2 int
}

const notaryPrefixLen = 5 // len("**F**")

// parseNotaryMarker inspects an output's script for the peg engine's
// "**F**1:2", "**V**1", "**L**1" convention: an OP_RETURN push whose
// payload starts with one of the three markers, followed by a
// colon-separated list of target output indices.
func parseNotaryMarker(script []byte) (marker byte, targets string, ok bool) {
	payload, found := chain.NotaryPayload(script)
	if !found || len(payload) <= notaryPrefixLen {
		return 0, "", false
	}
	s := string(payload)
	switch {
	case strings.HasPrefix(s, "**F**"):
		return 'F', s[notaryPrefixLen:], true
	case strings.HasPrefix(s, "**V**"):
		return 'V', s[notaryPrefixLen:], true
	case strings.HasPrefix(s, "**L**"):
		return 'L', s[notaryPrefixLen:], true
	default:
		return 0, "", false
	}
}

// isNotary reports whether an output's script is any OP_RETURN push at
// all (used by the output-assignment loop's burn/notary branch, which
// treats any data-carrying output like a burn for sourcing purposes).
func isNotary(script []byte) bool {
	_, ok := chain.NotaryPayload(script)
	return ok
}

// sortedKeys returns the keys of an address-keyed pool in ascending
// base58-string order, the deterministic iteration pool scans require.
func sortedKeys(m map[string]*fractions.Vector) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ComputeStandard implements the non-stake output-assignment path. It returns one
// FractionVector per tx.Outputs[j] plus the fee FractionVector, or the
// first PegComputationFailure encountered.
func ComputeStandard(tx Tx, supply int, cfg chainconfig.Params) ([]fractions.Vector, fractions.Vector, error) {
	nVin := len(tx.Inputs)
	nVout := len(tx.Outputs)

	var valueIn int64
	poolReserves := make(map[string]*fractions.Vector)
	poolLiquidity := make(map[string]*fractions.Vector)
	poolFrozen := make(map[int]*frozenOut)
	fFreezeAll := false

	for i := 0; i < nVin; i++ {
		in := tx.Inputs[i]
		valueIn += in.Value

		frInp := in.Fractions.Std()
		if frInp.Total() != in.Value {
			return nil, fractions.Vector{}, pegerr.Computation("PI04", "input fraction total mismatches value")
		}
		if frInp.Flags&fractions.NotaryF != 0 && int64(frInp.LockTime) > tx.Time {
			return nil, fractions.Vector{}, pegerr.Computation("PI05", "frozen input used before time expired")
		}
		if frInp.Flags&fractions.NotaryV != 0 && int64(frInp.LockTime) > tx.Time {
			return nil, fractions.Vector{}, pegerr.Computation("PI06", "voluntary-frozen input used before time expired")
		}

		if poolReserves[in.Address] == nil {
			poolReserves[in.Address] = &fractions.Vector{Flags: fractions.Std}
		}
		if poolLiquidity[in.Address] == nil {
			poolLiquidity[in.Address] = &fractions.Vector{Flags: fractions.Std}
		}
		reservePart, reserveIn := frInp.LowPart(supply)
		liquidPart, liquidIn := frInp.HighPart(supply)
		poolReserves[in.Address].Add(reservePart)
		poolLiquidity[in.Address].Add(liquidPart)

		if i < nVout {
			if err := processInputNotary(i, in, tx, nVout, poolReserves, poolLiquidity, poolFrozen, reserveIn, liquidIn, &fFreezeAll); err != nil {
				return nil, fractions.Vector{}, err
			}
		}
	}

	frCommonLiquidity := fractions.Vector{Flags: fractions.Std}
	for _, addr := range sortedKeys(poolLiquidity) {
		frCommonLiquidity.Add(*poolLiquidity[addr])
	}
	commonLiquidity := frCommonLiquidity.Total()

	var valueOut int64
	outputs := make([]fractions.Vector, nVout)

	for i := 0; i < nVout; i++ {
		out := tx.Outputs[i]
		valueOut += out.Value

		frOut := fractions.Vector{Flags: fractions.Std}
		fz, frozenHere := poolFrozen[i]

		switch {
		case fFreezeAll && frozenHere:
			if fz.fractions.Total() > 0 {
				frOut = fz.fractions
				break
			}
			if fz.fractions.Flags&fractions.NotaryV != 0 {
				frOut.Flags |= fractions.NotaryV
				frOut.LockTime = uint32(tx.Time + cfg.PegVFrozenTime)
				// No sufficiency check here:
				// an under-funded draw surfaces later as a P16 total mismatch.
				frCommonLiquidity.MoveRatioPartTo(out.Value, &frOut)
				commonLiquidity -= out.Value
			} else if fz.fractions.Flags&fractions.NotaryF != 0 {
				frOut.Flags |= fractions.NotaryF
				frOut.LockTime = uint32(tx.Time + cfg.PegFrozenTime)
				if err := assignFreezeReserveOutput(i, out, fz, poolFrozen, poolReserves, &frCommonLiquidity, &commonLiquidity, nVout, &frOut); err != nil {
					return nil, fractions.Vector{}, err
				}
			}

		case frozenHere:
			frOut = fz.fractions

		case poolReserves[out.Address] != nil:
			valueLeft := out.Value
			reserve := poolReserves[out.Address]
			reserveTotal := reserve.Total()
			if reserveTotal > 0 {
				take := valueLeft
				if take > reserveTotal {
					take = reserveTotal
				}
				reserve.MoveRatioPartTo(take, &frOut)
				valueLeft -= take
			}
			if valueLeft > 0 {
				if valueLeft > commonLiquidity {
					return nil, fractions.Vector{}, pegerr.Computation("P13", "no liquidity left")
				}
				frCommonLiquidity.MoveRatioPartTo(valueLeft, &frOut)
				commonLiquidity -= valueLeft
			}

		case out.Address == cfg.BurnAddress || isNotary(out.Script):
			valueLeft := out.Value
			for _, addr := range sortedKeys(poolReserves) {
				reserve := poolReserves[addr]
				reserveTotal := reserve.Total()
				if reserveTotal == 0 {
					continue
				}
				take := valueLeft
				if take > reserveTotal {
					take = reserveTotal
				}
				reserve.MoveRatioPartTo(take, &frOut)
				valueLeft -= take
				if valueLeft == 0 {
					break
				}
			}
			if valueLeft > 0 {
				if valueLeft > commonLiquidity {
					return nil, fractions.Vector{}, pegerr.Computation("P14", "no liquidity left")
				}
				frCommonLiquidity.MoveRatioPartTo(valueLeft, &frOut)
				commonLiquidity -= valueLeft
			}

		default:
			if out.Value > commonLiquidity {
				return nil, fractions.Vector{}, pegerr.Computation("P15", "no liquidity left")
			}
			frCommonLiquidity.MoveRatioPartTo(out.Value, &frOut)
			commonLiquidity -= out.Value
		}

		outputs[i] = frOut
	}

	for i := 0; i < nVout; i++ {
		if outputs[i].Total() != tx.Outputs[i].Value || !outputs[i].IsPositive() {
			return nil, fractions.Vector{}, pegerr.Computation("P16", fmt.Sprintf("total mismatch on output %d", i))
		}
	}

	fee := valueIn - valueOut
	feeFractions := fractions.Vector{Flags: fractions.Std}
	feeFractions.Add(frCommonLiquidity)
	for _, addr := range sortedKeys(poolReserves) {
		feeFractions.Add(*poolReserves[addr])
	}
	if fee != feeFractions.Total() || !feeFractions.IsPositive() {
		return nil, fractions.Vector{}, pegerr.Computation("P17", "total mismatch on fee fractions")
	}

	return outputs, feeFractions, nil
}

// processInputNotary handles the "notary aligned with input i" scan: it
// may register frozen targets in poolFrozen and, for single-target
// notaries that aren't shared-freeze, deduct the frozen amount from the
// spending address's reserve/liquidity pool immediately.
func processInputNotary(i int, in Input, tx Tx, nVout int,
	poolReserves, poolLiquidity map[string]*fractions.Vector,
	poolFrozen map[int]*frozenOut, reserveIn, liquidIn int64,
	fFreezeAll *bool) error {

	marker, targetList, ok := parseNotaryMarker(tx.Outputs[i].Script)
	if !ok {
		return nil
	}

	args := strings.Split(targetList, ":")
	indexes := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil || n < 0 || n >= nVout {
			return pegerr.Computation("PI07", "freeze notary: not convertible to output index")
		}
		if n == i {
			return pegerr.Computation("PI08", "freeze notary: output refers itself")
		}
		indexes = append(indexes, n)

		fz := poolFrozen[n]
		if fz == nil {
			fz = &frozenOut{fairIndex1: -1, fairIndex2: -1}
			poolFrozen[n] = fz
		}
		fz.value = tx.Outputs[n].Value
		fz.address = in.Address
		fz.fairIndex1, fz.fairIndex2 = -1, -1
		switch marker {
		case 'F':
			fz.fractions.Flags |= fractions.NotaryF
		case 'V':
			fz.fractions.Flags |= fractions.NotaryV
		case 'L':
			fz.fractions.Flags |= fractions.NotaryL
		}
	}

	fSharedFreeze := false
	if len(args) > 1 {
		*fFreezeAll = true
		fSharedFreeze = true
	}
	if len(indexes) == 2 {
		idx1, idx2 := indexes[0], indexes[1]
		if idx1 > idx2 {
			idx1, idx2 = idx2, idx1
		}
		fz := poolFrozen[idx1]
		fz.fairIndex1, fz.fairIndex2 = idx1, idx2
	}

	if len(indexes) == 1 {
		idx := indexes[0]
		frozenValueOut := tx.Outputs[idx].Value
		fz := poolFrozen[idx]

		switch {
		case marker == 'F' && reserveIn < frozenValueOut:
			*fFreezeAll = true
			fSharedFreeze = true
		case marker == 'V' && liquidIn < frozenValueOut:
			*fFreezeAll = true
			fSharedFreeze = true
		case marker == 'L' && liquidIn < frozenValueOut:
			return pegerr.Computation("PI10", "freeze notary: not enough input liquidity")
		}

		if !fSharedFreeze {
			switch marker {
			case 'F':
				frozenPart := fractions.Vector{Flags: fractions.Std}
				poolReserves[in.Address].MoveRatioPartTo(frozenValueOut, &frozenPart)
				fz.fractions.Add(frozenPart)
				fz.fractions.Flags |= fractions.NotaryF
			case 'V', 'L':
				frozenPart := fractions.Vector{Flags: fractions.Std}
				poolLiquidity[in.Address].MoveRatioPartTo(frozenValueOut, &frozenPart)
				fz.fractions.Add(frozenPart)
				if marker == 'V' {
					fz.fractions.Flags |= fractions.NotaryV
				} else {
					fz.fractions.Flags |= fractions.NotaryL
				}
			}
		}
	}

	return nil
}

// assignFreezeReserveOutput implements the F-frozen branch of the output
// loop: source address first, then the remaining reserve addresses in
// order, with the fair-withdraw-pair scaling applied when this output is
// the lower-indexed half of a two-target freeze notary.
func assignFreezeReserveOutput(i int, out Output, fz *frozenOut, poolFrozen map[int]*frozenOut,
	poolReserves map[string]*fractions.Vector, frCommonLiquidity *fractions.Vector,
	commonLiquidity *int64, nVout int, frOut *fractions.Vector) error {

	addresses := []string{fz.address}
	for _, addr := range sortedKeys(poolReserves) {
		if addr == fz.address {
			continue
		}
		addresses = append(addresses, addr)
	}

	valueLeft := out.Value
	valueToTakeReserves := valueLeft

	if fz.fairIndex1 == i {
		if len(poolFrozen) == 2 {
			idx1, idx2 := fz.fairIndex1, fz.fairIndex2
			if idx1 < 0 || idx2 < 0 || idx1 >= nVout || idx2 >= nVout {
				return pegerr.Computation("P09", "wrong referring output for fair withdraw from escrow")
			}
			value1 := poolFrozen[idx1].value
			value2 := poolFrozen[idx2].value
			if reserve, ok := poolReserves[fz.address]; ok {
				reserveTotal := reserve.Total()
				if reserveTotal <= value1+value2 && value1+value2 > 0 {
					scaled1 := ratioPart(reserveTotal, value1, value1+value2)
					scaled2 := ratioPart(reserveTotal, value2, value1+value2)
					remain := reserveTotal - scaled1 - scaled2
					valueToTakeReserves = scaled1 + remain
				}
			}
		}
	}

	for _, addr := range addresses {
		reserve, ok := poolReserves[addr]
		if !ok {
			continue
		}
		reserveTotal := reserve.Total()
		if reserveTotal == 0 {
			continue
		}
		take := valueToTakeReserves
		if take > reserveTotal {
			take = reserveTotal
		}
		reserve.MoveRatioPartTo(take, frOut)
		valueLeft -= take
		valueToTakeReserves -= take
		if valueToTakeReserves == 0 {
			break
		}
	}

	if valueLeft > 0 {
		if valueLeft > *commonLiquidity {
			return pegerr.Computation("P12", "no liquidity left")
		}
		frCommonLiquidity.MoveRatioPartTo(valueLeft, frOut)
		*commonLiquidity -= valueLeft
	}
	return nil
}

// ratioPart is the plain (non-vector) integer ratio helper the fair-
// withdraw scaling uses: floor(value*part/total).
func ratioPart(value, part, total int64) int64 {
	if total == 0 {
		return 0
	}
	return value * part / total
}
