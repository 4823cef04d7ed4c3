// Package balance implements the exchange-side peg balance protocol:
// rolling an account's PegData forward across a cycle boundary against
// the exchange's shared pegpool, and moving coins, liquid, or reserve
// between two balances under a peglevel invariant.
package balance

import (
	"fmt"

	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/peglevel"
)

// Balance is a PegData-shaped account: a fraction vector tagged with the
// level it was last reconciled at, and the reserve/liquid split that
// level implies.
type Balance struct {
	Fractions fractions.Vector
	Level     peglevel.Level
	Reserve   int64
	Liquid    int64
}

// Update rolls balance forward from its own (possibly stale) level to
// levelNew, drawing liquidity from pool — the shared exchange-wide
// pegpool balance, which must already be cut at levelNew's cycle — and
// returns the updated balance and pool. A same-cycle balance is returned
// unchanged; nothing else about pool is touched unless liquidity is
// actually drawn.
func Update(bal, pool Balance, levelNew peglevel.Level) (Balance, Balance, error) {
	if pool.Level.Cycle != levelNew.Cycle {
		return Balance{}, Balance{}, fmt.Errorf("balance: pegpool has cycle %d, want %d", pool.Level.Cycle, levelNew.Cycle)
	}
	if bal.Level.Cycle == levelNew.Cycle {
		return bal, pool, nil
	}
	if bal.Level.Cycle > levelNew.Cycle {
		return Balance{}, Balance{}, fmt.Errorf("balance: balance has cycle %d, greater than new level's %d", bal.Level.Cycle, levelNew.Cycle)
	}
	if bal.Level.Cycle != 0 && bal.Level.Cycle != levelNew.CyclePrev {
		return Balance{}, Balance{}, fmt.Errorf("balance: new level's CyclePrev %d mismatches balance's cycle %d", levelNew.CyclePrev, bal.Level.Cycle)
	}

	frBalance := bal.Fractions.Std()
	frPool := pool.Fractions.Std()
	poolReserve := pool.Reserve

	value := frBalance.Total()

	effective := int(levelNew.Supply) + int(levelNew.Shift)
	frReserveStd, reserve := frBalance.LowPart(effective)

	frLiquid := fractions.Vector{Flags: fractions.Std}

	partial := levelNew.ShiftLastPart > 0 && levelNew.ShiftLastTotal > 0
	lastIdx := effective
	if lastIdx >= 0 && lastIdx < fractions.Size && partial {
		lastTotal := frPool.F[lastIdx]
		lastReserve := frReserveStd.F[lastIdx]
		takeReserve := min64(lastReserve, lastTotal)
		takeReserve = min64(takeReserve, poolReserve)

		poolReserve -= takeReserve
		frPool.F[lastIdx] -= takeReserve

		if lastReserve > takeReserve {
			diff := lastReserve - takeReserve
			frReserveStd.F[lastIdx] -= diff
			reserve -= diff
		}

		lastTotal = frPool.F[lastIdx]
		poolReserve = min64(poolReserve, lastTotal)

		lastLiquid := lastTotal - poolReserve
		liquidSoFar := value - reserve
		liquidPool := frPool.Total() - poolReserve
		takeLiquid := fractions.RatioMul(lastLiquid, liquidSoFar, liquidPool)
		takeLiquid = min64(takeLiquid, lastTotal)

		frLiquid.F[lastIdx] += takeLiquid
		frPool.F[lastIdx] -= takeLiquid
	}

	liquid := value - reserve
	liquidTodo := value - reserve - frLiquid.Total()
	liquidPool := frPool.Total() - poolReserve
	if liquidTodo > liquidPool {
		return Balance{}, Balance{}, fmt.Errorf("balance: not enough liquid %d on pegpool to balance %d", frPool.Total(), liquidTodo)
	}

	var holdLastPart int64
	if poolReserve > 0 {
		holdLastPart = frPool.F[lastIdx]
		frPool.F[lastIdx] = 0
	}

	liquidTodo = frPool.MoveRatioPartTo(liquidTodo, &frLiquid)

	if liquidTodo > 0 && liquidTodo <= holdLastPart {
		frLiquid.F[lastIdx] += liquidTodo
		holdLastPart -= liquidTodo
		liquidTodo = 0
	}

	if holdLastPart > 0 {
		frPool.F[lastIdx] = holdLastPart
	}

	if liquidTodo > 0 {
		return Balance{}, Balance{}, fmt.Errorf("balance: liquid not enough after draw, shortfall %d", liquidTodo)
	}

	frBalance = frReserveStd
	frBalance.Add(frLiquid)

	if value != frBalance.Total() {
		return Balance{}, Balance{}, fmt.Errorf("balance: total mismatch after update %d vs %d", frBalance.Total(), value)
	}

	poolValue := frPool.Total()
	poolLiquid := poolValue - poolReserve

	newBal := Balance{Fractions: frBalance, Level: levelNew, Reserve: reserve, Liquid: liquid}
	newPool := Balance{Fractions: frPool, Level: levelNew, Reserve: poolReserve, Liquid: poolLiquid}
	return newBal, newPool, nil
}

// MoveCoins moves amount of total value from src to dst, both of which
// must carry the same level unless crossCycles allows a stale src.
func MoveCoins(src, dst Balance, level peglevel.Level, amount int64, crossCycles bool) (Balance, Balance, error) {
	if !crossCycles && !sameLevel(level, src.Level) {
		return Balance{}, Balance{}, fmt.Errorf("balance: src is at cycle %d, current %d", src.Level.Cycle, level.Cycle)
	}
	if !sameLevel(level, dst.Level) {
		return Balance{}, Balance{}, fmt.Errorf("balance: dst is at cycle %d, current %d", dst.Level.Cycle, level.Cycle)
	}

	srcValue := src.Fractions.Total()
	if srcValue < amount {
		return Balance{}, Balance{}, fmt.Errorf("balance: not enough amount %d on src to move %d", srcValue, amount)
	}

	nIn := src.Fractions.Total() + dst.Fractions.Total()

	frSrc := src.Fractions.Std()
	frDst := dst.Fractions.Std()

	frMove := frSrc.RatioPart(amount)
	frSrc.Sub(frMove)
	frDst.Add(frMove)

	nOut := frSrc.Total() + frDst.Total()
	if nIn != nOut {
		return Balance{}, Balance{}, fmt.Errorf("balance: mismatch in/out values %d vs %d", nIn, nOut)
	}

	return Balance{Fractions: frSrc, Level: level}, Balance{Fractions: frDst, Level: level}, nil
}

// MoveLiquid moves moveLiquid units of liquid part from src to dst, both
// required to carry level exactly (no crossCycles escape hatch, matching
// the original protocol).
func MoveLiquid(src, dst Balance, level peglevel.Level, moveLiquid int64) (Balance, Balance, error) {
	effective := int(level.Supply) + int(level.Shift)
	if effective < 0 || effective >= fractions.Size {
		return Balance{}, Balance{}, fmt.Errorf("balance: supply index out of bounds %d", effective)
	}
	if !sameLevel(level, src.Level) {
		return Balance{}, Balance{}, fmt.Errorf("balance: src is at cycle %d, current %d", src.Level.Cycle, level.Cycle)
	}
	if !sameLevel(level, dst.Level) {
		return Balance{}, Balance{}, fmt.Errorf("balance: dst is at cycle %d, current %d", dst.Level.Cycle, level.Cycle)
	}
	if src.Liquid < moveLiquid {
		return Balance{}, Balance{}, fmt.Errorf("balance: not enough liquid %d on src to move %d", src.Liquid, moveLiquid)
	}

	nIn := src.Fractions.Total() + dst.Fractions.Total()

	frSrc := src.Fractions.Std()
	frDst := dst.Fractions.Std()

	partial := level.ShiftLastPart > 0 && level.ShiftLastTotal > 0
	cut := effective
	if partial {
		cut++
	}

	frLiquid, _ := frSrc.HighPart(cut)

	if partial {
		partialLiquid := src.Liquid - frLiquid.Total()
		if partialLiquid < 0 {
			return Balance{}, Balance{}, fmt.Errorf("balance: mismatch on partial liquid %d", partialLiquid)
		}
		frLiquid.F[cut-1] = partialLiquid
	}

	if frLiquid.Total() < moveLiquid {
		return Balance{}, Balance{}, fmt.Errorf("balance: not enough liquid %d on src to move %d", frLiquid.Total(), moveLiquid)
	}

	frMove := frLiquid.RatioPart(moveLiquid)
	frSrc.Sub(frMove)
	frDst.Add(frMove)

	srcLiquid := src.Liquid - moveLiquid
	dstLiquid := dst.Liquid + moveLiquid

	nOut := frSrc.Total() + frDst.Total()
	if nIn != nOut {
		return Balance{}, Balance{}, fmt.Errorf("balance: mismatch in/out values %d vs %d", nIn, nOut)
	}
	if !frSrc.IsPositive() {
		return Balance{}, Balance{}, fmt.Errorf("balance: negative detected in src")
	}

	return Balance{Fractions: frSrc, Level: level, Reserve: src.Reserve, Liquid: srcLiquid},
		Balance{Fractions: frDst, Level: level, Reserve: dst.Reserve, Liquid: dstLiquid}, nil
}

// MoveReserve moves moveReserve units of reserve part from src to dst,
// both required to carry level exactly.
func MoveReserve(src, dst Balance, level peglevel.Level, moveReserve int64) (Balance, Balance, error) {
	effective := int(level.Supply) + int(level.Shift)
	if effective < 0 || effective >= fractions.Size {
		return Balance{}, Balance{}, fmt.Errorf("balance: supply index out of bounds %d", effective)
	}
	if !sameLevel(level, src.Level) {
		return Balance{}, Balance{}, fmt.Errorf("balance: src is at cycle %d, current %d", src.Level.Cycle, level.Cycle)
	}
	if !sameLevel(level, dst.Level) {
		return Balance{}, Balance{}, fmt.Errorf("balance: dst is at cycle %d, current %d", dst.Level.Cycle, level.Cycle)
	}
	if src.Reserve < moveReserve {
		return Balance{}, Balance{}, fmt.Errorf("balance: not enough reserve %d on src to move %d", src.Reserve, moveReserve)
	}

	nIn := src.Fractions.Total() + dst.Fractions.Total()

	frSrc := src.Fractions.Std()
	frDst := dst.Fractions.Std()

	frReserve, _ := frSrc.LowPart(effective)

	partial := level.ShiftLastPart > 0 && level.ShiftLastTotal > 0
	if partial {
		partialReserve := src.Reserve - frReserve.Total()
		if partialReserve < 0 {
			return Balance{}, Balance{}, fmt.Errorf("balance: mismatch on partial reserve %d", partialReserve)
		}
		frReserve.F[effective] = partialReserve
	}

	frMove := frReserve.RatioPart(moveReserve)
	frSrc.Sub(frMove)
	frDst.Add(frMove)

	srcReserve := src.Reserve - moveReserve
	dstReserve := dst.Reserve + moveReserve

	nOut := frSrc.Total() + frDst.Total()
	if nIn != nOut {
		return Balance{}, Balance{}, fmt.Errorf("balance: mismatch in/out values %d vs %d", nIn, nOut)
	}
	if !frSrc.IsPositive() {
		return Balance{}, Balance{}, fmt.Errorf("balance: negative detected in src")
	}

	return Balance{Fractions: frSrc, Level: level, Reserve: srcReserve, Liquid: src.Liquid},
		Balance{Fractions: frDst, Level: level, Reserve: dstReserve, Liquid: dst.Liquid}, nil
}

// RemoveCoins subtracts arg2's fractions and reserve/liquid scalars from
// arg1, keeping arg1's level. arg2 need not carry a valid level at all
// (a zero arg2 is accepted, matching the "subtract nothing" case).
func RemoveCoins(arg1, arg2 Balance) Balance {
	fr1 := arg1.Fractions.Std()
	fr2 := arg2.Fractions.Std()
	fr1.Sub(fr2)

	return Balance{
		Fractions: fr1,
		Level:     arg1.Level,
		Reserve:   arg1.Reserve - arg2.Reserve,
		Liquid:    arg1.Liquid - arg2.Liquid,
	}
}

func sameLevel(a, b peglevel.Level) bool {
	return a.Cycle == b.Cycle &&
		a.CyclePrev == b.CyclePrev &&
		a.Supply == b.Supply &&
		a.SupplyNext == b.SupplyNext &&
		a.SupplyNextNext == b.SupplyNextNext &&
		a.Shift == b.Shift &&
		a.ShiftLastPart == b.ShiftLastPart &&
		a.ShiftLastTotal == b.ShiftLastTotal
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
