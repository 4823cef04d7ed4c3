// Package mempool maintains an in-memory overlay of unconfirmed outputs'
// FractionVectors, so the withdraw planner (internal/withdraw) can rank a
// candidate coin that hasn't confirmed yet without waiting on PegStore.
package mempool

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/rawblock/pegengine/internal/api"
	"github.com/rawblock/pegengine/internal/chain"
	"github.com/rawblock/pegengine/internal/chainconfig"
	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/txpeg"
	"github.com/rawblock/pegengine/internal/withdraw"
)

// overlayEntry is one unconfirmed output's resolved FractionVector,
// computed by propagating its owning transaction's peg fractions.
type overlayEntry struct {
	fractions fractions.Vector
	address   string
	value     int64
}

// mempoolTxSeen is broadcast over the websocket hub whenever the poller
// resolves a previously-unseen transaction's output fractions.
type mempoolTxSeen struct {
	Type    string `json:"type"`
	Txid    string `json:"txid"`
	Outputs int    `json:"outputs"`
}

// Poller periodically scans the node's mempool, computes each new
// transaction's output fractions via txpeg.ComputeStandard, and keeps the
// resulting per-outpoint overlay available to withdraw planning until the
// transaction confirms and PegStore takes over as the source of truth.
type Poller struct {
	client *chain.Client
	wsHub  *api.Hub
	cfg    chainconfig.Params

	mu            sync.RWMutex
	overlay       map[string]overlayEntry
	seen          map[string]bool
	currentSupply int
}

// NewPoller builds a Poller. wsHub may be nil (overlay-only operation,
// e.g. in a test harness with no live websocket feed). The supply index
// starts at cfg.PegMaxSupplyIndex and should be corrected with SetSupply
// whenever the engine observes a confirmed interval boundary — the
// mempool overlay only needs to be approximately right, since PegStore
// takes over as the authority once each transaction confirms.
func NewPoller(client *chain.Client, wsHub *api.Hub, cfg chainconfig.Params) *Poller {
	return &Poller{
		client:        client,
		wsHub:         wsHub,
		cfg:           cfg,
		overlay:       make(map[string]overlayEntry),
		seen:          make(map[string]bool),
		currentSupply: cfg.PegMaxSupplyIndex,
	}
}

// SetSupply updates the supply index the overlay computes unconfirmed
// outputs against, called by the engine after each vote.Advance.
func (p *Poller) SetSupply(idx int) {
	p.mu.Lock()
	p.currentSupply = idx
	p.mu.Unlock()
}

// Lookup resolves a mempool-observed outpoint's FractionVector, the
// fractionsOf fallback withdraw.RankCandidates uses for coins PegStore
// doesn't know about yet.
func (p *Poller) Lookup(hash chainhash.Hash, index uint32) (fractions.Vector, string, int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.overlay[outpointKey(hash, index)]
	if !ok {
		return fractions.Vector{}, "", 0, false
	}
	return e.fractions, e.address, e.value, true
}

// FractionsOf adapts Lookup to withdraw.RankCandidates' fractionsOf
// signature, so a planner can be handed PegStore's own lookup chained
// with this overlay as a fallback for coins still unconfirmed.
func (p *Poller) FractionsOf(c withdraw.Coin) (fractions.Vector, bool) {
	fr, _, _, ok := p.Lookup(c.TxHash, c.Index)
	return fr, ok
}

func outpointKey(hash chainhash.Hash, index uint32) string {
	return hash.String() + ":" + itoa(index)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Run polls the mempool every tick, computing and caching fractions for
// every not-yet-seen transaction, until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p.client == nil {
		log.Println("[mempool] chain client is nil; poller will not start")
		return
	}

	log.Println("[mempool] starting overlay poller")

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	cleanup := time.NewTicker(1 * time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[mempool] stopping overlay poller")
			return
		case <-cleanup.C:
			p.mu.Lock()
			p.overlay = make(map[string]overlayEntry)
			p.seen = make(map[string]bool)
			p.mu.Unlock()
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Poller) tick() {
	txids, err := p.client.RPC.GetRawMempool()
	if err != nil {
		log.Printf("[mempool] fetch mempool: %v", err)
		return
	}

	processed := 0
	for _, hash := range txids {
		key := hash.String()

		p.mu.RLock()
		already := p.seen[key]
		p.mu.RUnlock()
		if already {
			continue
		}

		raw, err := p.client.RPC.GetRawTransaction(hash)
		if err != nil {
			continue
		}
		msgTx := raw.MsgTx()
		if len(msgTx.TxIn) == 0 || len(msgTx.TxOut) == 0 {
			continue
		}

		tx := txpeg.Tx{Time: time.Now().Unix()}
		ok := true
		for _, in := range msgTx.TxIn {
			prev, err := p.client.PrevOut(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
			if err != nil {
				ok = false
				break
			}
			addr, err := chain.AddressFromScript(prev.Script, p.client.Params)
			if err != nil {
				addr = ""
			}
			tx.Inputs = append(tx.Inputs, txpeg.Input{
				Address:   addr,
				Value:     prev.Value,
				Fractions: fractions.FromStd(prev.Value),
			})
		}
		if !ok {
			continue
		}
		for _, out := range msgTx.TxOut {
			addr, err := chain.AddressFromScript(out.PkScript, p.client.Params)
			if err != nil {
				addr = ""
			}
			tx.Outputs = append(tx.Outputs, txpeg.Output{
				Value:   out.Value,
				Script:  out.PkScript,
				Address: addr,
			})
		}

		p.mu.RLock()
		supply := p.currentSupply
		p.mu.RUnlock()

		outs, _, err := txpeg.ComputeStandard(tx, supply, p.cfg)
		if err != nil {
			// A mempool tx that doesn't peg-compute cleanly is skipped,
			// not fatal; it is not marked seen, so the next tick retries it.
			continue
		}

		p.mu.Lock()
		for i, out := range tx.Outputs {
			p.overlay[outpointKey(*hash, uint32(i))] = overlayEntry{
				fractions: outs[i],
				address:   out.Address,
				value:     out.Value,
			}
		}
		p.seen[key] = true
		p.mu.Unlock()

		if p.wsHub != nil {
			p.wsHub.BroadcastJSON(mempoolTxSeen{
				Type:    "mempool_tx_seen",
				Txid:    key,
				Outputs: len(tx.Outputs),
			})
		}

		processed++
		if processed >= 20 {
			break
		}
	}
}
