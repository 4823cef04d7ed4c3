package mempool

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/rawblock/pegengine/internal/chainconfig"
	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/withdraw"
)

func TestOutpointKeyIsStableAndDistinct(t *testing.T) {
	var h chainhash.Hash
	h[0] = 0xAB

	if outpointKey(h, 0) == outpointKey(h, 1) {
		t.Fatal("distinct indices must produce distinct keys")
	}
	if outpointKey(h, 7) != outpointKey(h, 7) {
		t.Fatal("outpointKey must be deterministic")
	}
}

func TestLookupMissReportsNotFound(t *testing.T) {
	p := NewPoller(nil, nil, chainconfig.Mainnet())
	var h chainhash.Hash
	if _, _, _, ok := p.Lookup(h, 0); ok {
		t.Fatal("expected Lookup to report not-found on an empty overlay")
	}
}

func TestFractionsOfResolvesFromOverlay(t *testing.T) {
	p := NewPoller(nil, nil, chainconfig.Mainnet())
	var h chainhash.Hash
	h[0] = 0x01

	fr := fractions.FromStd(12345)
	p.overlay[outpointKey(h, 3)] = overlayEntry{fractions: fr, address: "addr", value: 12345}

	coin := withdraw.Coin{TxHash: h, Index: 3}
	got, ok := p.FractionsOf(coin)
	if !ok {
		t.Fatal("expected FractionsOf to resolve a coin present in the overlay")
	}
	if got.Total() != 12345 {
		t.Fatalf("FractionsOf total = %d, want 12345", got.Total())
	}
}

func TestSetSupplyUpdatesCurrentSupply(t *testing.T) {
	p := NewPoller(nil, nil, chainconfig.Mainnet())
	p.SetSupply(42)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.currentSupply != 42 {
		t.Fatalf("currentSupply = %d, want 42", p.currentSupply)
	}
}
