package vote

import (
	"testing"

	"github.com/rawblock/pegengine/internal/chainconfig"
	"github.com/rawblock/pegengine/internal/fractions"
)

func testCfg() chainconfig.Params {
	return chainconfig.Params{
		PegMaxSupplyIndex: 1198,
		PegInflateAddr:    "inflate-addr",
		PegDeflateAddr:    "deflate-addr",
		PegNochangeAddr:   "nochange-addr",
	}
}

func TestWeightAllLiquidYieldsHighMultiplier(t *testing.T) {
	cfg := testCfg()
	fr := fractions.FromStd(1_000_000)
	w := Weight(fr, 0, cfg)
	if w != 4 {
		t.Errorf("weight = %d, want 4 (all liquid at supply 0, multiplier 1)", w)
	}
}

func TestWeightAllReserveYieldsBaseMultiplier(t *testing.T) {
	cfg := testCfg()
	fr := fractions.FromStd(1_000_000)
	w := Weight(fr, fractions.Size, cfg)
	if w != 1 {
		t.Errorf("weight = %d, want 1 (all reserve)", w)
	}
}

func TestWeightMultiplierScalesWithSupply(t *testing.T) {
	cfg := testCfg()
	// All value sits in the top bucket, so the vector stays all-liquid at
	// both supply indices and only the multiplier changes.
	fr := fractions.Vector{Flags: fractions.Std}
	fr.F[fractions.Size-1] = 1_000_000
	wLow := Weight(fr, 0, cfg)
	wHigh := Weight(fr, 600, cfg)
	if wHigh <= wLow {
		t.Errorf("weight should grow with supply multiplier: low=%d high=%d", wLow, wHigh)
	}
}

func TestClassifyPayee(t *testing.T) {
	cfg := testCfg()
	if k, ok := ClassifyPayee("inflate-addr", cfg); !ok || k != Inflate {
		t.Errorf("expected Inflate classification")
	}
	if k, ok := ClassifyPayee("deflate-addr", cfg); !ok || k != Deflate {
		t.Errorf("expected Deflate classification")
	}
	if _, ok := ClassifyPayee("random-addr", cfg); ok {
		t.Errorf("expected no classification for unrecognized address")
	}
}

func TestAdvanceDeflateWinsIncreasesSupply(t *testing.T) {
	cfg := testCfg()
	use := Tally{Deflate: 100}
	// prev tallies large enough that neither escalation step fires.
	prev := Tally{Inflate: 100, Nochange: 100}
	next := Advance(500, use, prev, cfg)
	if next != 501 {
		t.Errorf("next supply = %d, want 501", next)
	}
}

func TestAdvanceInflateWinsDecreasesSupply(t *testing.T) {
	cfg := testCfg()
	use := Tally{Inflate: 100}
	// prev tallies large enough that neither escalation step fires.
	prev := Tally{Deflate: 100, Nochange: 100}
	next := Advance(500, use, prev, cfg)
	if next != 499 {
		t.Errorf("next supply = %d, want 499", next)
	}
}

func TestAdvanceStrongDeflateMajorityAccelerates(t *testing.T) {
	cfg := testCfg()
	use := Tally{Deflate: 400}
	prev := Tally{Inflate: 10, Nochange: 10}
	next := Advance(500, use, prev, cfg)
	if next != 503 {
		t.Errorf("next supply = %d, want 503 (use.Deflate > 2x and 3x prev)", next)
	}
}

func TestAdvanceClampsAtZero(t *testing.T) {
	cfg := testCfg()
	use := Tally{Inflate: 400}
	prev := Tally{Deflate: 10, Nochange: 10}
	next := Advance(0, use, prev, cfg)
	if next != 0 {
		t.Errorf("next supply = %d, want clamped 0", next)
	}
}

func TestAdvanceClampsAtMax(t *testing.T) {
	cfg := testCfg()
	use := Tally{Deflate: 400}
	prev := Tally{Inflate: 10, Nochange: 10}
	next := Advance(cfg.PegMaxSupplyIndex, use, prev, cfg)
	if next != cfg.PegMaxSupplyIndex {
		t.Errorf("next supply = %d, want clamped max %d", next, cfg.PegMaxSupplyIndex)
	}
}

func TestAdvanceNochangeMajorityHoldsSupply(t *testing.T) {
	cfg := testCfg()
	use := Tally{Nochange: 100, Inflate: 10, Deflate: 10}
	prev := Tally{}
	next := Advance(500, use, prev, cfg)
	if next != 500 {
		t.Errorf("next supply = %d, want 500 (no change)", next)
	}
}

func TestIntervalBoundaryDetectsMultiples(t *testing.T) {
	cfg := testCfg()
	cfg.IntervalFn = func(height int64) int64 { return 20 }

	isBoundary, use, prev := IntervalBoundary(40, cfg)
	if !isBoundary {
		t.Fatalf("expected height 40 to be a boundary at interval 20")
	}
	if use != -1 || prev != -21 {
		t.Errorf("use=%d prev=%d, want use=-1 prev=-21", use, prev)
	}
}

func TestIntervalBoundaryRejectsNonMultiples(t *testing.T) {
	cfg := testCfg()
	cfg.IntervalFn = func(height int64) int64 { return 20 }

	isBoundary, _, _ := IntervalBoundary(41, cfg)
	if isBoundary {
		t.Errorf("expected height 41 to not be a boundary")
	}
}
