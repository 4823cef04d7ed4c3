package fractions

import "testing"

func TestStdExpansionConservesTotal(t *testing.T) {
	v := FromValue(123456789)
	std := v.Std()
	if !std.Flags.has(Std) {
		t.Fatalf("expected STD flag after expansion")
	}
	if got := std.Total(); got != v.F[0] {
		t.Errorf("Total() = %d, want %d", got, v.F[0])
	}
}

func TestStdIdempotent(t *testing.T) {
	v := FromStd(500000)
	twice := v.Std()
	if twice.Total() != v.Total() {
		t.Errorf("Std() on an already-STD vector changed total: %d vs %d", twice.Total(), v.Total())
	}
}

func TestLowHighPartition(t *testing.T) {
	v := FromStd(1_000_000)
	s := 600
	low := v.Low(s)
	high := v.High(s)
	if low+high != v.Total() {
		t.Errorf("Low(%d)+High(%d) = %d, want %d", s, s, low+high, v.Total())
	}
}

func TestPositiveNegativeSplit(t *testing.T) {
	v := Vector{Flags: Std}
	v.F[0] = 10
	v.F[1] = -5
	v.F[2] = 3
	v.F[3] = -2

	pos, posTotal := v.Positive()
	neg, negTotal := v.Negative()

	if posTotal != 13 {
		t.Errorf("posTotal = %d, want 13", posTotal)
	}
	if negTotal != -7 {
		t.Errorf("negTotal = %d, want -7", negTotal)
	}
	if pos.F[1] != 0 || pos.F[3] != 0 {
		t.Errorf("Positive() kept a negative bucket")
	}
	if neg.F[0] != 0 || neg.F[2] != 0 {
		t.Errorf("Negative() kept a positive bucket")
	}
}

func TestRatioPartBoundaryZero(t *testing.T) {
	v := FromStd(1_000_000)
	out := v.RatioPart(0)
	if out.Total() != 0 {
		t.Errorf("RatioPart(0).Total() = %d, want 0", out.Total())
	}
}

func TestRatioPartBoundaryTotal(t *testing.T) {
	v := FromStd(1_000_000)
	out := v.RatioPart(v.Total())
	if out.Total() != v.Total() {
		t.Errorf("RatioPart(total).Total() = %d, want %d", out.Total(), v.Total())
	}
}

func TestRatioPartBoundaryOne(t *testing.T) {
	v := FromStd(1_000_000)
	out := v.RatioPart(1)
	if out.Total() != 1 {
		t.Errorf("RatioPart(1).Total() = %d, want 1", out.Total())
	}
}

func TestRatioPartBoundaryTotalMinusOne(t *testing.T) {
	v := FromStd(1_000_000)
	out := v.RatioPart(v.Total() - 1)
	if out.Total() != v.Total()-1 {
		t.Errorf("RatioPart(total-1).Total() = %d, want %d", out.Total(), v.Total()-1)
	}
}

func TestRatioPartNeverExceedsSource(t *testing.T) {
	v := FromStd(999_999_999)
	out := v.RatioPart(v.Total() / 3)
	for i := 0; i < Size; i++ {
		if out.F[i] > v.Std().F[i] {
			t.Fatalf("bucket %d: RatioPart exceeded source (%d > %d)", i, out.F[i], v.Std().F[i])
		}
	}
}

func TestMoveRatioPartToConservesSum(t *testing.T) {
	src := FromStd(10_000_000)
	dst := Vector{Flags: Std}
	before := src.Total() + dst.Total()

	leftover := src.MoveRatioPartTo(4_000_000, &dst)
	if leftover != 0 {
		t.Errorf("leftover = %d, want 0", leftover)
	}
	after := src.Total() + dst.Total()
	if after != before {
		t.Errorf("MoveRatioPartTo changed grand total: %d vs %d", after, before)
	}
	if dst.Total() != 4_000_000 {
		t.Errorf("dst.Total() = %d, want 4000000", dst.Total())
	}
}

func TestMoveRatioPartToExhaustsSource(t *testing.T) {
	src := FromStd(1000)
	dst := Vector{Flags: Std}
	leftover := src.MoveRatioPartTo(5000, &dst)
	if leftover != 4000 {
		t.Errorf("leftover = %d, want 4000", leftover)
	}
	if src.Total() != 0 {
		t.Errorf("src.Total() = %d, want 0", src.Total())
	}
	if dst.Total() != 1000 {
		t.Errorf("dst.Total() = %d, want 1000", dst.Total())
	}
}

func TestAddSubRoundTrip(t *testing.T) {
	a := FromStd(7_000_000)
	b := FromStd(3_000_000)
	sum := Plus(a, b)
	if sum.Total() != a.Total()+b.Total() {
		t.Errorf("Plus total = %d, want %d", sum.Total(), a.Total()+b.Total())
	}
	back := Minus(sum, b)
	if back.Total() != a.Total() {
		t.Errorf("Minus total = %d, want %d", back.Total(), a.Total())
	}
}

func TestNeg(t *testing.T) {
	v := FromStd(42_000)
	n := v.Neg()
	if n.Total() != -v.Total() {
		t.Errorf("Neg total = %d, want %d", n.Total(), -v.Total())
	}
}

func TestAndConservativeIntersection(t *testing.T) {
	a := Vector{Flags: Std}
	b := Vector{Flags: Std}
	a.F[0], a.F[1] = 10, -5
	b.F[0], b.F[1] = 7, -9

	out := And(a, b)
	if out.F[0] != 7 {
		t.Errorf("And same-sign positive = %d, want 7", out.F[0])
	}
	if out.F[1] != -5 {
		t.Errorf("And same-sign negative = %d, want -5", out.F[1])
	}
}

func TestAndSignMismatchZero(t *testing.T) {
	a := Vector{Flags: Std}
	b := Vector{Flags: Std}
	a.F[0] = 10
	b.F[0] = -3

	out := And(a, b)
	if out.F[0] != 0 {
		t.Errorf("And sign mismatch = %d, want 0", out.F[0])
	}
}

func TestDistortionIdenticalVectorsIsZero(t *testing.T) {
	v := FromStd(555_555)
	if d := v.Distortion(v.Std()); d != 0 {
		t.Errorf("Distortion(identical) = %v, want 0", d)
	}
}

func TestDistortionDisjointSupport(t *testing.T) {
	a := Vector{Flags: Std}
	b := Vector{Flags: Std}
	a.F[0] = 1000
	b.F[Size-1] = 1000

	d := a.Distortion(b)
	if d <= 0 {
		t.Errorf("Distortion(disjoint) = %v, want > 0", d)
	}
}

func TestRatioMulOverflowEscalation(t *testing.T) {
	const big63 = int64(1) << 62
	got := ratioMul(big63, big63, big63)
	if got != big63 {
		t.Errorf("ratioMul overflow path = %d, want %d", got, big63)
	}
}
