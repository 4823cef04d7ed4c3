package txpeg

import (
	"testing"

	"github.com/rawblock/pegengine/internal/chainconfig"
	"github.com/rawblock/pegengine/internal/fractions"
)

func simpleCfg() chainconfig.Params {
	return chainconfig.Params{
		BurnAddress:    "burn1",
		PegFrozenTime:  1000,
		PegVFrozenTime: 500,
	}
}

func TestSimplePassthroughConservesTotal(t *testing.T) {
	tx := Tx{
		Inputs: []Input{
			{Address: "alice", Value: 100_000, Fractions: fractions.FromStd(100_000)},
		},
		Outputs: []Output{
			{Value: 90_000, Address: "alice"},
			{Value: 9_000, Address: "bob"},
		},
		Time: 1000,
	}

	outs, fee, err := ComputeStandard(tx, 0, simpleCfg())
	if err != nil {
		t.Fatalf("ComputeStandard: %v", err)
	}

	var totalOut int64
	for _, o := range outs {
		totalOut += o.Total()
	}
	totalOut += fee.Total()
	if totalOut != 100_000 {
		t.Errorf("total conservation: got %d, want 100000", totalOut)
	}
	if fee.Total() != 1_000 {
		t.Errorf("fee = %d, want 1000", fee.Total())
	}
}

func TestUnresolvedReserveFallsBackToLiquidity(t *testing.T) {
	tx := Tx{
		Inputs: []Input{
			{Address: "alice", Value: 50_000, Fractions: fractions.FromStd(50_000)},
		},
		Outputs: []Output{
			{Value: 50_000, Address: "carol"},
		},
		Time: 1000,
	}

	outs, fee, err := ComputeStandard(tx, 0, simpleCfg())
	if err != nil {
		t.Fatalf("ComputeStandard: %v", err)
	}
	if outs[0].Total() != 50_000 {
		t.Errorf("output total = %d, want 50000", outs[0].Total())
	}
	if fee.Total() != 0 {
		t.Errorf("fee = %d, want 0", fee.Total())
	}
}

func TestInsufficientLiquidityErrorsP15(t *testing.T) {
	tx := Tx{
		Inputs: []Input{
			// all-reserve input (supply index very high means everything low)
			{Address: "alice", Value: 10_000, Fractions: fractions.FromStd(10_000)},
		},
		Outputs: []Output{
			{Value: 10_000, Address: "dave"},
		},
		Time: 1000,
	}

	// supply=fractions.Size means low_part covers everything -> liquidity pool empty
	_, _, err := ComputeStandard(tx, fractions.Size, simpleCfg())
	if err == nil {
		t.Fatalf("expected insufficient-liquidity error")
	}
}

func TestInputFractionTotalMismatchErrorsPI04(t *testing.T) {
	badFr := fractions.FromStd(100_000)
	badFr.F[0] += 1 // corrupt total
	tx := Tx{
		Inputs: []Input{
			{Address: "alice", Value: 100_000, Fractions: badFr},
		},
		Outputs: []Output{
			{Value: 100_000, Address: "alice"},
		},
	}
	_, _, err := ComputeStandard(tx, 600, simpleCfg())
	if err == nil {
		t.Fatalf("expected PI04 mismatch error")
	}
}

func TestStakingSimplePassthrough(t *testing.T) {
	tx := Tx{
		Inputs: []Input{
			{Address: "alice", Value: 1_000_000, Fractions: fractions.FromStd(1_000_000)},
		},
		Outputs: []Output{
			{Value: 1_050_000, Address: "alice"},
		},
	}

	outs, err := ComputeStaking(tx, 50_000, fractions.Vector{Flags: fractions.Std})
	if err != nil {
		t.Fatalf("ComputeStaking: %v", err)
	}
	if outs[0].Total() != 1_050_000 {
		t.Errorf("stake output total = %d, want 1050000", outs[0].Total())
	}
}

func TestStakingRejectsMoreThanOneInput(t *testing.T) {
	tx := Tx{
		Inputs: []Input{
			{Address: "a", Value: 1000, Fractions: fractions.FromStd(1000)},
			{Address: "b", Value: 1000, Fractions: fractions.FromStd(1000)},
		},
		Outputs: []Output{{Value: 2000, Address: "a"}},
	}
	_, err := ComputeStaking(tx, 0, fractions.Vector{Flags: fractions.Std})
	if err == nil {
		t.Fatalf("expected error for multiple inputs")
	}
}

func TestStakingRejectsNoReturnToInputAddress(t *testing.T) {
	tx := Tx{
		Inputs: []Input{
			{Address: "alice", Value: 1_000_000, Fractions: fractions.FromStd(1_000_000)},
		},
		Outputs: []Output{
			{Value: 1_000_000, Address: "someone-else"},
		},
	}
	_, err := ComputeStaking(tx, 0, fractions.Vector{Flags: fractions.Std})
	if err == nil {
		t.Fatalf("expected PO02 no-stake-return error")
	}
}

func TestNotaryMarkerParsesTwoTargets(t *testing.T) {
	script := buildNotaryScript("**F**1:2")
	marker, rest, ok := parseNotaryMarker(script)
	if !ok {
		t.Fatalf("expected notary marker to parse")
	}
	if marker != 'F' {
		t.Errorf("marker = %c, want F", marker)
	}
	if rest != "1:2" {
		t.Errorf("rest = %q, want 1:2", rest)
	}
}

func TestNotaryMarkerRejectsNonMarkerPush(t *testing.T) {
	script := buildNotaryScript("hello world")
	_, _, ok := parseNotaryMarker(script)
	if ok {
		t.Errorf("expected non-marker push to not parse as notary")
	}
}

// buildNotaryScript constructs a minimal OP_RETURN push script carrying
// payload, matching what txscript's tokenizer expects.
func buildNotaryScript(payload string) []byte {
	b := []byte{0x6a} // OP_RETURN
	b = append(b, byte(len(payload)))
	b = append(b, payload...)
	return b
}
