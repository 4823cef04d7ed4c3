package withdraw

import (
	"testing"

	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/peglevel"
)

func usableHighPart(supply int) func(fractions.Vector) (fractions.Vector, int64) {
	return func(fr fractions.Vector) (fractions.Vector, int64) {
		return fr.HighPart(supply)
	}
}

func TestRankCandidatesDropsDustAndSortsByDistortion(t *testing.T) {
	coinClose := Coin{Index: 0, Address: "close", Value: 10_000}
	coinFar := Coin{Index: 1, Address: "far", Value: 10_000}
	coinDust := Coin{Index: 2, Address: "dust", Value: 10}

	frClose := fractions.FromStd(10_000)
	frFar := fractions.FromValue(10_000).Std()
	frFar.F[0] += 1
	frFar.F[fractions.Size-1] -= 1
	frDust := fractions.FromStd(10)

	fractionsOf := func(c Coin) (fractions.Vector, bool) {
		switch c.Address {
		case "close":
			return frClose, true
		case "far":
			return frFar, true
		case "dust":
			return frDust, true
		}
		return fractions.Vector{}, false
	}

	target := fractions.FromStd(10_000)
	ranked := RankCandidates([]Coin{coinFar, coinDust, coinClose}, fractionsOf, usableHighPart(0), target, 10_000)

	if len(ranked) != 2 {
		t.Fatalf("expected dust coin dropped, got %d ranked", len(ranked))
	}
	if ranked[0].Address != "close" {
		t.Errorf("expected closest-distortion coin first, got %s", ranked[0].Address)
	}
}

func TestSelectCoinsGreedyCoversAmount(t *testing.T) {
	ranked := []RatedCoin{
		{Coin: Coin{Address: "a"}, Available: 4_000, Distortion: 0.0},
		{Coin: Coin{Address: "b"}, Available: 4_000, Distortion: 0.1},
		{Coin: Coin{Address: "c"}, Available: 4_000, Distortion: 0.2},
	}

	selected, total, err := SelectCoins(ranked, 7_000)
	if err != nil {
		t.Fatalf("SelectCoins: %v", err)
	}
	if len(selected) != 2 {
		t.Errorf("expected 2 coins selected to cover 7000, got %d", len(selected))
	}
	if total != 8_000 {
		t.Errorf("total available = %d, want 8000", total)
	}
	if selected[0].Address != "a" || selected[1].Address != "b" {
		t.Errorf("expected coins sorted by address, got %v", selected)
	}
}

func TestSelectCoinsErrorsWhenInsufficient(t *testing.T) {
	ranked := []RatedCoin{
		{Coin: Coin{Address: "a"}, Available: 1_000},
	}
	_, _, err := SelectCoins(ranked, 5_000)
	if err == nil {
		t.Fatalf("expected insufficient-coins error")
	}
}

func TestAddressTakesDrawsFromFrontUntilCovered(t *testing.T) {
	selected := []Coin{
		{Address: "a"}, {Address: "b"}, {Address: "c"},
	}
	available := map[string]int64{"a": 3_000, "b": 3_000, "c": 3_000}

	takes := AddressTakes(selected, available, 5_000)
	if takes["a"] != 3_000 {
		t.Errorf("takes[a] = %d, want 3000", takes["a"])
	}
	if takes["b"] != 2_000 {
		t.Errorf("takes[b] = %d, want 2000", takes["b"])
	}
	if _, ok := takes["c"]; ok {
		t.Errorf("expected c to be untouched once amount is covered")
	}
}

func TestChangeOutputsWithholdsFeeBeforeEmitting(t *testing.T) {
	addrs := []string{"a", "b"}
	inputValues := map[string]int64{"a": 10_000, "b": 5_000}
	takeValues := map[string]int64{"a": 3_000, "b": 2_000}

	changes := ChangeOutputs(addrs, inputValues, takeValues, 1_000)

	var total int64
	for _, c := range changes {
		total += c.Value
	}
	wantTotal := (10_000 - 3_000) + (5_000 - 2_000) - 1_000
	if total != wantTotal {
		t.Errorf("total change = %d, want %d", total, wantTotal)
	}
}

func TestConsumeLiquidPegShiftRebalancesWithinTotal(t *testing.T) {
	balance := fractions.FromStd(5_000)
	exchange := fractions.FromStd(50_000)
	pegShift := fractions.Vector{Flags: fractions.Std}
	pegShift.F[0] = 500
	pegShift.F[1] = -500

	level := peglevel.New(1, 0, 0, 0, 0)

	beforeTotal := balance.Total() + exchange.Total()
	if err := ConsumeLiquidPegShift(&balance, &exchange, &pegShift, level); err != nil {
		t.Fatalf("ConsumeLiquidPegShift: %v", err)
	}
	afterTotal := balance.Total() + exchange.Total()

	if beforeTotal != afterTotal {
		t.Errorf("consuming pegshift should not change balance+exchange total: before=%d after=%d", beforeTotal, afterTotal)
	}
}

func TestProvidedCoinStalenessCheck(t *testing.T) {
	p := NewProvidedCoin(Coin{Cycle: 5})
	if p.RequestID == "" {
		t.Errorf("expected a generated request ID")
	}
	if p.IsStale(5) {
		t.Errorf("expected coin from cycle 5 to not be stale at cycle 5")
	}
	if !p.IsStale(6) {
		t.Errorf("expected coin from cycle 5 to be stale at cycle 6")
	}
}
