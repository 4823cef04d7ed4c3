// Package withdraw implements the exchange-side withdraw planner:
// selecting a least-distorting set of candidate coins to cover a liquid
// or reserve withdrawal, computing each input address's take/change
// split, and reconciling the resulting pegshift against the balance and
// the exchange-wide pool.
package withdraw

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"

	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/pegerr"
	"github.com/rawblock/pegengine/internal/peglevel"
)

// minUsableValueRatio caps how thin a candidate coin's available liquid
// may be relative to the withdrawal amount before it is dropped as dust:
// a coin must offer at least amountWithFee/minUsableValueRatio.
const minUsableValueRatio = 20

// Coin is a candidate UTXO the planner may spend: an outpoint, its
// script's resolved address, and the cycle it was observed in.
type Coin struct {
	TxHash  chainhash.Hash
	Index   uint32
	Value   int64
	Address string
	Script  []byte
	Cycle   int
}

// Key returns the outpoint's canonical map key.
func (c Coin) Key() string {
	return fmt.Sprintf("%s:%d", c.TxHash, c.Index)
}

// RatedCoin is a Coin annotated with how much of it is usable toward the
// withdrawal and how distorted its fraction shape is from the target.
type RatedCoin struct {
	Coin
	Available  int64
	Distortion float64
}

// RankCandidates scores each candidate coin by how little its fraction
// shape distorts target (the requested withdrawal's own fraction split),
// dropping coins whose usable part is under the dust floor. fractionsOf
// resolves a coin's stored FractionVector (from PegStore, falling back to
// a mempool overlay); usablePart extracts the relevant liquid or reserve
// slice a candidate can actually contribute.
func RankCandidates(
	coins []Coin,
	fractionsOf func(Coin) (fractions.Vector, bool),
	usablePart func(fractions.Vector) (fractions.Vector, int64),
	target fractions.Vector,
	amountWithFee int64,
) []RatedCoin {
	dustFloor := amountWithFee / minUsableValueRatio

	var ranked []RatedCoin
	for _, c := range coins {
		fr, ok := fractionsOf(c)
		if !ok {
			continue
		}
		usable, available := usablePart(fr)
		if available < dustFloor {
			continue
		}
		ranked = append(ranked, RatedCoin{
			Coin:       c,
			Available:  available,
			Distortion: usable.Distortion(target),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distortion < ranked[j].Distortion
	})
	return ranked
}

// SelectCoins greedily takes ranked coins in increasing-distortion order
// until their combined available value covers amountWithFee, erroring if
// the whole candidate set still falls short.
func SelectCoins(ranked []RatedCoin, amountWithFee int64) ([]Coin, int64, error) {
	var selected []Coin
	var totalAvailable int64
	left := amountWithFee

	for _, r := range ranked {
		selected = append(selected, r.Coin)
		totalAvailable += r.Available
		left -= r.Available
		if left <= 0 {
			break
		}
	}

	if left > 0 {
		return nil, 0, fmt.Errorf("withdraw: not enough liquid or coins too fragmented to withdraw %d (short %d)", amountWithFee, left)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Address < selected[j].Address
	})
	return selected, totalAvailable, nil
}

// AddressTakes computes, for a set of selected coins ordered by address,
// how much value is drawn from each address's available liquidity to
// cover valueNeeded: available values are common, drawn from the front of
// the sorted list first.
func AddressTakes(selected []Coin, available map[string]int64, valueNeeded int64) map[string]int64 {
	takes := make(map[string]int64)
	seen := make(map[string]bool)

	var addrsInOrder []string
	for _, c := range selected {
		if !seen[c.Address] {
			seen[c.Address] = true
			addrsInOrder = append(addrsInOrder, c.Address)
		}
	}

	left := valueNeeded
	for _, addr := range addrsInOrder {
		take := available[addr]
		if take > left {
			take = left
		}
		takes[addr] = take
		left -= take
		if left <= 0 {
			break
		}
	}
	return takes
}

// ChangeOutput is a single non-withdrawal output the planner must emit
// back to one of the spent addresses.
type ChangeOutput struct {
	Address string
	Value   int64
}

// ChangeOutputs computes the change returned to each input address after
// subtracting its take and the fee-and-already-taken-from-change reserve,
// in deterministically sorted address order (ascending base58 ordering).
func ChangeOutputs(addrsSorted []string, inputValues, takeValues map[string]int64, feeHold int64) []ChangeOutput {
	var out []ChangeOutput
	left := feeHold
	for _, addr := range addrsSorted {
		change := inputValues[addr] - takeValues[addr]
		if change > left {
			change -= left
			left = 0
		} else {
			left -= change
			change = 0
		}
		if change == 0 {
			continue
		}
		out = append(out, ChangeOutput{Address: addr, Value: change})
	}
	return out
}

// consumePegShift folds part of the outstanding pegshift back into
// balance/exchange, limiting the negative side to what balance can
// actually absorb (the bucket-wise conservative intersection And(neg,
// -balance)) and scaling the positive side to match, so the two sides of
// pegshift stay balanced after every partial consumption. After folding,
// pegShift's positive and negative totals must still cancel exactly;
// a mismatch is an accounting error, not a recoverable condition.
func consumePegShift(balance, exchange, pegShift *fractions.Vector, part fractions.Vector) error {
	positive, posTotal := part.Positive()
	negative, _ := part.Negative()

	negBalance := balance.Neg()
	negConsume := fractions.And(negative, negBalance)
	negConsumeTotal := negConsume.Total()

	posConsumeTotal := posTotal
	if -negConsumeTotal > posConsumeTotal {
		toPositive := negConsume.Neg().RatioPart(posConsumeTotal)
		negConsume = toPositive.Neg()
		negConsumeTotal = negConsume.Total()
	}

	posConsumeTotal = -negConsumeTotal
	posConsume := positive.RatioPart(posConsumeTotal)

	consume := fractions.Plus(negConsume, posConsume)

	balance.Add(consume)
	exchange.Add(consume)
	pegShift.Sub(consume)

	_, posAfter := pegShift.Positive()
	_, negAfter := pegShift.Negative()
	if posAfter != -negAfter {
		return pegerr.Wrap(pegerr.AccountingMismatch,
			fmt.Errorf("withdraw: pegshift positive/negative mismatch after consume: %d vs %d", posAfter, -negAfter))
	}
	return nil
}

// ConsumeReservePegShift consumes the reserve-side (low-bucket) part of
// pegShift into balance/exchange at level's cut point, returning an
// AccountingMismatch error if the post-consume pegshift no longer balances.
func ConsumeReservePegShift(balance, exchange, pegShift *fractions.Vector, level peglevel.Level) error {
	effective := level.Effective()
	part, _ := pegShift.LowPart(effective)
	return consumePegShift(balance, exchange, pegShift, part)
}

// ConsumeLiquidPegShift consumes the liquid-side (high-bucket) part of
// pegShift into balance/exchange at level's cut point, returning an
// AccountingMismatch error if the post-consume pegshift no longer balances.
func ConsumeLiquidPegShift(balance, exchange, pegShift *fractions.Vector, level peglevel.Level) error {
	effective := level.Effective()
	part, _ := pegShift.HighPart(effective)
	return consumePegShift(balance, exchange, pegShift, part)
}

// ProvidedCoin is the exchange-issued carry-forward record of a change
// output not yet consumed by a later withdraw — the CCoinToUse
// equivalent, tagged with the cycle it was produced in so a stale record
// (from a since-rolled cycle) is rejected rather than silently reused.
type ProvidedCoin struct {
	RequestID string
	Coin      Coin
}

// NewProvidedCoin stamps a fresh change output with a request ID, for
// exchange-side audit logging.
func NewProvidedCoin(c Coin) ProvidedCoin {
	return ProvidedCoin{RequestID: uuid.NewString(), Coin: c}
}

// IsStale reports whether p was produced in a cycle other than
// currentCycle, and should be dropped rather than reused as an input.
func (p ProvidedCoin) IsStale(currentCycle int) bool {
	return p.Coin.Cycle != currentCycle
}
