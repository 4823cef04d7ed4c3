// Package vote implements the per-block peg vote tally and the
// interval-boundary supply-index advance: each proof-of-stake block casts
// one vote (inflate/deflate/nochange) weighted by its stake input's
// reserve/liquid split, and at every interval boundary the two most
// recent intervals' cumulative votes decide whether the supply index
// moves.
package vote

import (
	"math/big"

	"github.com/rawblock/pegengine/internal/chainconfig"
	"github.com/rawblock/pegengine/internal/fractions"
)

// Kind is the designated payee kind a coin-stake's vote targets.
type Kind int

const (
	Inflate Kind = iota
	Deflate
	Nochange
)

// Weight computes a coin-stake's vote weight from its input FractionVector
// and the current supply index.
func Weight(fr fractions.Vector, supply int, cfg chainconfig.Params) int64 {
	reserveWeight := fr.Low(supply)
	liquidWeight := fr.High(supply)

	liquidWeight -= ratioMul(liquidWeight, int64(supply), int64(cfg.PegMaxSupplyIndex))

	multiplier := int64(supply)/120 + 1

	switch {
	case liquidWeight > 4*reserveWeight:
		return 4 * multiplier
	case liquidWeight > 3*reserveWeight:
		return 3 * multiplier
	case liquidWeight > 2*reserveWeight:
		return 2 * multiplier
	default:
		return 1
	}
}

// ratioMul computes floor(value*part/total), escalating to math/big on
// overflow, the same checked-multiplication discipline fractions.RatioMul
// uses elsewhere.
func ratioMul(value, part, total int64) int64 {
	if total == 0 || part == 0 {
		return 0
	}
	av, ap := abs64(value), abs64(part)
	if av <= (1<<31)-1 && ap <= (1<<31)-1 {
		return (value * part) / total
	}
	bv := big.NewInt(value)
	bp := big.NewInt(part)
	bt := big.NewInt(total)
	prod := new(big.Int).Mul(bv, bp)
	q := new(big.Int).Quo(prod, bt)
	return q.Int64()
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Vote names which coin-stake output address the vote targeted, and its
// computed weight.
type Vote struct {
	Kind   Kind
	Weight int64
}

// ClassifyPayee maps a coin-stake's first matching designated payee
// address to a vote Kind, or ok=false if the address matches none of the
// three designated addresses (in which case the block casts no vote).
func ClassifyPayee(address string, cfg chainconfig.Params) (Kind, bool) {
	switch address {
	case cfg.PegInflateAddr:
		return Inflate, true
	case cfg.PegDeflateAddr:
		return Deflate, true
	case cfg.PegNochangeAddr:
		return Nochange, true
	default:
		return 0, false
	}
}

// Tally accumulates per-interval vote weight for each of the three kinds.
type Tally struct {
	Inflate  int64
	Deflate  int64
	Nochange int64
}

// Add folds a single block's vote into the tally.
func (t *Tally) Add(v Vote) {
	switch v.Kind {
	case Inflate:
		t.Inflate += v.Weight
	case Deflate:
		t.Deflate += v.Weight
	case Nochange:
		t.Nochange += v.Weight
	}
}

// Advance implements the interval-boundary supply-index recomputation:
// given the most recently completed interval's tally (use) and the one
// before that (prev), it returns the clamped next supply index.
func Advance(currentSupply int, use, prev Tally, cfg chainconfig.Params) int {
	delta := 0

	switch {
	case use.Deflate > use.Inflate && use.Deflate > use.Nochange:
		delta++
		if use.Deflate > 2*prev.Inflate && use.Deflate > 2*prev.Nochange {
			delta++
		}
		if use.Deflate > 3*prev.Inflate && use.Deflate > 3*prev.Nochange {
			delta++
		}
	case use.Inflate > use.Deflate && use.Inflate > use.Nochange:
		delta--
		if use.Inflate > 2*prev.Deflate && use.Inflate > 2*prev.Nochange {
			delta--
		}
		if use.Inflate > 3*prev.Deflate && use.Inflate > 3*prev.Nochange {
			delta--
		}
	}

	next := currentSupply + delta
	if next < 0 {
		return 0
	}
	if next > cfg.PegMaxSupplyIndex {
		return cfg.PegMaxSupplyIndex
	}
	return next
}

// IntervalBoundary reports whether height is an interval boundary for
// cfg's interval schedule, and the indices of the two most recently
// completed intervals' representative blocks: use = h-2I-1, prev = h-3I-1.
func IntervalBoundary(height int64, cfg chainconfig.Params) (isBoundary bool, useHeight, prevHeight int64) {
	interval := cfg.Interval(height)
	if interval <= 0 || height%interval != 0 {
		return false, 0, 0
	}
	return true, height - 2*interval - 1, height - 3*interval - 1
}
