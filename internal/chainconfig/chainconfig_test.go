package chainconfig

import "testing"

func TestIntervalDefaultsWithoutIntervalFn(t *testing.T) {
	var p Params
	if got := p.Interval(100); got != 20 {
		t.Fatalf("Interval() = %d, want 20", got)
	}
}

func TestMainnetIntervalIsFlat200(t *testing.T) {
	p := Mainnet()

	if got := p.Interval(0); got != 200 {
		t.Fatalf("Interval(0) = %d, want 200", got)
	}
	if got := p.Interval(899_999); got != 200 {
		t.Fatalf("Interval(899_999) = %d, want 200", got)
	}
	if got := p.Interval(1_000_000); got != 200 {
		t.Fatalf("Interval(1_000_000) = %d, want 200", got)
	}
}

func TestMainnetVFrozenTimeIsFourTimesFrozenTime(t *testing.T) {
	p := Mainnet()
	if p.PegVFrozenTime != p.PegFrozenTime*4 {
		t.Fatalf("PegVFrozenTime = %d, want %d (4x PegFrozenTime)", p.PegVFrozenTime, p.PegFrozenTime*4)
	}
}

func TestMainnetLeavesAddressesBlank(t *testing.T) {
	p := Mainnet()
	if p.PegInflateAddr != "" || p.PegDeflateAddr != "" || p.PegNochangeAddr != "" || p.BurnAddress != "" {
		t.Fatalf("Mainnet() must not compile in deployment addresses, got %+v", p)
	}
}
