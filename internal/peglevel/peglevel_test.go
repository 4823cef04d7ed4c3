package peglevel

import (
	"testing"

	"github.com/rawblock/pegengine/internal/fractions"
)

func TestHexRoundTrip(t *testing.T) {
	lvl := New(10, 9, 500, 501, 502)
	lvl.Shift = -3
	lvl.ShiftLastPart = 1234
	lvl.ShiftLastTotal = 5678

	hx := lvl.ToHex()
	back := FromHex(hx)

	if !back.IsValid() {
		t.Fatalf("round-tripped level is invalid")
	}
	if back != lvl {
		t.Errorf("round-trip mismatch: got %+v, want %+v", back, lvl)
	}
}

func TestFromHexRejectsWrongLength(t *testing.T) {
	got := FromHex("deadbeef")
	if got.IsValid() {
		t.Errorf("expected invalid sentinel for malformed hex")
	}
}

func TestFromHexRejectsNonHex(t *testing.T) {
	bad := make([]byte, fromHexWidth)
	for i := range bad {
		bad[i] = 'z'
	}
	got := FromHex(string(bad))
	if got.IsValid() {
		t.Errorf("expected invalid sentinel for non-hex input")
	}
}

func TestIsValidRejectsOutOfRangeSupply(t *testing.T) {
	lvl := New(1, 1, fractions.MaxSupplyIndex+1, 0, 0)
	if lvl.IsValid() {
		t.Errorf("expected invalid level for out-of-range supply")
	}
}

func TestIsValidRejectsPartExceedingTotal(t *testing.T) {
	lvl := New(1, 1, 0, 0, 0)
	lvl.ShiftLastPart = 100
	lvl.ShiftLastTotal = 50
	if lvl.IsValid() {
		t.Errorf("expected invalid level when ShiftLastPart > ShiftLastTotal")
	}
}

func TestIsValidRejectsCycleRegression(t *testing.T) {
	lvl := New(5, 10, 0, 0, 0)
	if lvl.IsValid() {
		t.Errorf("expected invalid level when cycle < cyclePrev")
	}
}

func TestFromExchangeSnapshotAppliesLookahead(t *testing.T) {
	exchange := fractions.FromStd(1_000_000)
	shift := fractions.Vector{Flags: fractions.Std}

	lvl := FromExchangeSnapshot(3, 2, 100, 101, 102, exchange, shift)
	if !lvl.IsValid() {
		t.Fatalf("expected valid level")
	}
	if lvl.Supply != 103 {
		t.Errorf("Supply = %d, want 103 (100+3 lookahead)", lvl.Supply)
	}
	if lvl.Shift != 0 {
		t.Errorf("Shift = %d, want 0 with no pegshift surplus", lvl.Shift)
	}
}

func TestFromExchangeSnapshotConsumesWholeBuckets(t *testing.T) {
	exchange := Level{}
	_ = exchange

	var ex fractions.Vector
	ex.Flags = fractions.Std
	ex.F[100] = 1000
	ex.F[101] = 1000
	ex.F[102] = 1000

	shift := fractions.FromValue(1500)

	lvl := FromExchangeSnapshot(1, 1, 100-broadcastLookahead, 0, 0, ex, shift)
	if lvl.Shift != 1 {
		t.Errorf("Shift = %d, want 1 (one whole bucket consumed, remainder partial)", lvl.Shift)
	}
	if lvl.ShiftLastTotal != 1000 {
		t.Errorf("ShiftLastTotal = %d, want 1000", lvl.ShiftLastTotal)
	}
	if lvl.ShiftLastPart != 500 {
		t.Errorf("ShiftLastPart = %d, want 500", lvl.ShiftLastPart)
	}
}

func TestEffectiveBucket(t *testing.T) {
	lvl := New(1, 1, 300, 0, 0)
	lvl.Shift = 5
	if got := lvl.Effective(); got != 305 {
		t.Errorf("Effective() = %d, want 305", got)
	}
}
