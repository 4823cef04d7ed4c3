// Package scanner walks confirmed blocks and applies txpeg's fraction
// propagation to every transaction, persisting each output's resolved
// FractionVector to PegStore in one atomic batch per block — the
// block-validation counterpart to the mempool overlay (internal/mempool),
// which only approximates this ahead of confirmation.
package scanner

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/rawblock/pegengine/internal/chain"
	"github.com/rawblock/pegengine/internal/chainconfig"
	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/pegerr"
	"github.com/rawblock/pegengine/internal/pegstore"
	"github.com/rawblock/pegengine/internal/txpeg"
)

// BlockScanner iterates confirmed blocks, computes every transaction's
// peg fractions, and commits them to PegStore. It provides the
// retroactive, authoritative coverage that distinguishes block validation
// from the mempool overlay's best-effort lookahead.
type BlockScanner struct {
	client     *chain.Client
	store      *pegstore.Store
	cfg        chainconfig.Params
	onBoundary func(height int64, out ValidationResult) // optional per-block callback

	currentHeight atomic.Int64
	totalScanned  atomic.Int64
	totalRejected atomic.Int64
	isRunning     atomic.Bool
}

// ValidationResult summarizes one block's validation pass.
type ValidationResult struct {
	Height         int64 `json:"height"`
	TxCount        int   `json:"txCount"`
	Rejected       int   `json:"rejected"`
	OutputsWritten int   `json:"outputsWritten"`
}

// Progress is the scanner's current state for the API layer.
type Progress struct {
	IsRunning     bool  `json:"isRunning"`
	CurrentHeight int64 `json:"currentHeight"`
	TotalScanned  int64 `json:"totalScanned"`
	TotalRejected int64 `json:"totalRejected"`
}

func NewBlockScanner(client *chain.Client, store *pegstore.Store, cfg chainconfig.Params, onBoundary func(int64, ValidationResult)) *BlockScanner {
	return &BlockScanner{client: client, store: store, cfg: cfg, onBoundary: onBoundary}
}

// GetProgress returns the current scanning progress (thread-safe).
func (s *BlockScanner) GetProgress() Progress {
	return Progress{
		IsRunning:     s.isRunning.Load(),
		CurrentHeight: s.currentHeight.Load(),
		TotalScanned:  s.totalScanned.Load(),
		TotalRejected: s.totalRejected.Load(),
	}
}

// ScanRange validates a specific block range asynchronously, committing
// each block's outputs to PegStore in a single batch.
func (s *BlockScanner) ScanRange(ctx context.Context, startHeight, endHeight int64) {
	if s.isRunning.Load() {
		log.Println("[scanner] scan already in progress, ignoring duplicate request")
		return
	}

	s.isRunning.Store(true)
	s.totalScanned.Store(0)
	s.totalRejected.Store(0)

	go func() {
		defer s.isRunning.Store(false)

		log.Printf("[scanner] validating blocks %d -> %d (%d blocks)",
			startHeight, endHeight, endHeight-startHeight+1)

		for height := startHeight; height <= endHeight; height++ {
			select {
			case <-ctx.Done():
				log.Printf("[scanner] scan cancelled at block %d", height)
				return
			default:
			}

			s.currentHeight.Store(height)
			result, err := s.validateBlock(height)
			if err != nil {
				log.Printf("[scanner] block %d: %v", height, err)
				continue
			}
			s.totalScanned.Add(int64(result.TxCount))
			s.totalRejected.Add(int64(result.Rejected))
			if s.onBoundary != nil {
				s.onBoundary(height, result)
			}
		}

		log.Printf("[scanner] scan complete: %d transactions validated, %d rejected",
			s.totalScanned.Load(), s.totalRejected.Load())
	}()
}

// validateBlock fetches one block, propagates fractions for every
// non-coinbase transaction, and commits the resulting outputs to
// PegStore in a single atomic batch.
func (s *BlockScanner) validateBlock(height int64) (ValidationResult, error) {
	if height < s.cfg.PegStartHeight {
		return ValidationResult{Height: height}, nil
	}

	hash, err := s.client.RPC.GetBlockHash(height)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("get block hash: %w", err)
	}
	block, err := s.client.RPC.GetBlockVerbose(hash)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("get block %d: %w", height, err)
	}

	result := ValidationResult{Height: height}
	batch := s.store.NewBatch()

	for i, txidStr := range block.Tx {
		if i == 0 {
			continue // coinbase carries no peg fractions
		}
		txHash, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			continue
		}

		written, err := s.validateTx(batch, *txHash)
		result.TxCount++
		if err != nil {
			result.Rejected++
			var pe *pegerr.Error
			if e, ok := err.(*pegerr.Error); ok {
				pe = e
			}
			log.Printf("[scanner] block %d tx %s rejected: %v (kind=%v)", height, txidStr, err, pe)
			continue
		}
		result.OutputsWritten += written
	}

	if err := batch.Commit(); err != nil {
		return result, fmt.Errorf("commit batch for block %d: %w", height, err)
	}
	return result, nil
}

// validateTx resolves one transaction's inputs from PegStore, computes
// its outputs via txpeg.ComputeStandard, and stages each output's
// FractionVector into batch.
func (s *BlockScanner) validateTx(batch *pegstore.Batch, txHash chainhash.Hash) (int, error) {
	raw, err := s.client.RPC.GetRawTransaction(&txHash)
	if err != nil {
		return 0, fmt.Errorf("fetch tx: %w", err)
	}
	msgTx := raw.MsgTx()
	if len(msgTx.TxIn) == 0 || len(msgTx.TxOut) == 0 {
		return 0, nil
	}

	tx := txpeg.Tx{Time: 0}
	for _, in := range msgTx.TxIn {
		prev, err := s.client.PrevOut(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
		if err != nil {
			return 0, fmt.Errorf("resolve prevout: %w", err)
		}
		fr, found, err := batch.Read(pegstore.Outpoint{Hash: in.PreviousOutPoint.Hash, Index: in.PreviousOutPoint.Index})
		if err != nil {
			return 0, fmt.Errorf("pegstore read: %w", err)
		}
		if !found {
			// A spent output PegStore never recorded (pre-activation
			// coin, or one this scanner hasn't reached yet) gets the
			// default geometric split of its value (fractions.FromStd),
			// the shape a coin that predates peg accounting carries.
			fr = fractions.FromStd(prev.Value)
		}
		addr, err := chain.AddressFromScript(prev.Script, s.client.Params)
		if err != nil {
			addr = ""
		}
		tx.Inputs = append(tx.Inputs, txpeg.Input{Address: addr, Value: prev.Value, Fractions: fr})
	}
	for _, out := range msgTx.TxOut {
		addr, err := chain.AddressFromScript(out.PkScript, s.client.Params)
		if err != nil {
			addr = ""
		}
		tx.Outputs = append(tx.Outputs, txpeg.Output{Value: out.Value, Script: out.PkScript, Address: addr})
	}

	outs, _, err := txpeg.ComputeStandard(tx, s.cfg.PegMaxSupplyIndex, s.cfg)
	if err != nil {
		return 0, err
	}
	for i := range outs {
		if err := batch.Write(pegstore.Outpoint{Hash: txHash, Index: uint32(i)}, outs[i]); err != nil {
			return i, fmt.Errorf("pegstore write: %w", err)
		}
	}
	return len(outs), nil
}
