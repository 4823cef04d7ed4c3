package api

import (
	"testing"

	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/pegdata"
	"github.com/rawblock/pegengine/internal/peglevel"
	"github.com/rawblock/pegengine/pkg/models"
)

func testLevelAndFractions() (peglevel.Level, fractions.Vector) {
	lvl := peglevel.New(5, 4, 100, 100, 100)
	fr := fractions.FromStd(50_000)
	return lvl, fr
}

func TestPegDataRoundTripThroughModel(t *testing.T) {
	lvl, fr := testLevelAndFractions()
	_, reserve := fr.LowPart(lvl.Effective())
	_, liquid := fr.HighPart(lvl.Effective())

	orig := pegdata.Data{Fractions: fr, Level: lvl, Reserve: reserve, Liquid: liquid}
	if !orig.IsValid() {
		t.Fatalf("fixture pegdata.Data is not valid: %+v", orig)
	}

	m := pegDataToModel(orig)
	if !m.Valid {
		t.Fatalf("expected model PegData to be valid, got %+v", m)
	}
	if m.Level.Hex != lvl.ToHex() {
		t.Fatalf("level hex mismatch: got %s want %s", m.Level.Hex, lvl.ToHex())
	}

	decoded, err := pegDataFromModel(m)
	if err != nil {
		t.Fatalf("pegDataFromModel: %v", err)
	}
	if decoded.Reserve != orig.Reserve || decoded.Liquid != orig.Liquid {
		t.Fatalf("round trip changed reserve/liquid: got (%d,%d) want (%d,%d)",
			decoded.Reserve, decoded.Liquid, orig.Reserve, orig.Liquid)
	}
	if decoded.Fractions.Total() != orig.Fractions.Total() {
		t.Fatalf("round trip changed fraction total: got %d want %d",
			decoded.Fractions.Total(), orig.Fractions.Total())
	}
}

func TestPegDataFromModelRejectsEmptyBlob(t *testing.T) {
	if _, err := pegDataFromModel(models.PegData{Blob: ""}); err == nil {
		t.Fatal("expected an error decoding an empty blob")
	}
}

func TestToBalanceFromBalanceIsLossless(t *testing.T) {
	lvl, fr := testLevelAndFractions()
	d := pegdata.Data{Fractions: fr, Level: lvl, Reserve: 10_000, Liquid: 40_000}

	bal := toBalance(d)
	back := fromBalance(bal)

	if back.Reserve != d.Reserve || back.Liquid != d.Liquid {
		t.Fatalf("toBalance/fromBalance lost reserve/liquid: got (%d,%d) want (%d,%d)",
			back.Reserve, back.Liquid, d.Reserve, d.Liquid)
	}
	if back.Fractions.Total() != d.Fractions.Total() {
		t.Fatalf("toBalance/fromBalance lost fraction total")
	}
}

func TestLevelFromHexRejectsGarbage(t *testing.T) {
	if _, err := levelFromHex("not-a-valid-hex-level"); err == nil {
		t.Fatal("expected an error decoding a malformed level hex")
	}
}

func TestFractionsToModelReportsNotaryFlag(t *testing.T) {
	fr := fractions.FromStd(1000)
	fr.Flags |= fractions.NotaryF
	fr.LockTime = 12345

	m := fractionsToModel(fr, true)
	if m.Notary != "F" {
		t.Fatalf("Notary = %q, want F", m.Notary)
	}
	if m.LockTime != 12345 {
		t.Fatalf("LockTime = %d, want 12345", m.LockTime)
	}
	if len(m.Buckets) == 0 {
		t.Fatal("expected Buckets to be populated when detailed=true")
	}
}
