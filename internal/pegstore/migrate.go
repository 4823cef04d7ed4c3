package pegstore

import (
	"context"
	"log"

	"github.com/rawblock/pegengine/internal/pegerr"
)

// migrateBatchSize is how often the migrator commits and checks for
// cancellation, mirroring SetBlocksIndexesReadyForPeg's batching.
const migrateBatchSize = 10000

// Migrator walks every key currently in the store and marks it peg-ready,
// the one-time migration PegStore must support when peg accounting turns
// on at an existing chain height. It commits in batches and checks ctx
// between batches so a long migration can be cancelled cooperatively.
type Migrator struct {
	store *Store
}

// NewMigrator builds a Migrator over store.
func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// ReadyFn reports whether the value at key should be marked peg-ready.
// MarkFn performs the mark itself, batched alongside the walk.
type ReadyFn func(key []byte) bool
type MarkFn func(batch *Batch, key []byte) error

// Run walks the full keyspace, invoking ready to decide whether a key
// needs marking and mark to stage the write, committing every
// migrateBatchSize keys. It returns the number of keys marked.
func (m *Migrator) Run(ctx context.Context, ready ReadyFn, mark MarkFn) (int, error) {
	marked := 0
	batch := m.store.NewBatch()
	pending := 0

	var walkErr error
	m.store.iterate(func(key []byte) bool {
		select {
		case <-ctx.Done():
			walkErr = ctx.Err()
			return false
		default:
		}

		if !ready(key) {
			return true
		}
		if err := mark(batch, key); err != nil {
			walkErr = err
			return false
		}
		marked++
		pending++

		if pending >= migrateBatchSize {
			if err := batch.Commit(); err != nil {
				walkErr = err
				return false
			}
			log.Printf("pegstore: migration committed %d keys (running total %d)", pending, marked)
			batch = m.store.NewBatch()
			pending = 0
		}
		return true
	})

	if walkErr != nil {
		return marked, pegerr.Wrap(pegerr.StorageFailure, walkErr)
	}
	if pending > 0 {
		if err := batch.Commit(); err != nil {
			return marked, pegerr.Wrap(pegerr.StorageFailure, err)
		}
	}
	log.Printf("pegstore: migration complete, %d keys marked", marked)
	return marked, nil
}

// Pruner exposes an explicit, deliberate pruning hook rather than
// silently replicating dead code: a block-rollback path calls PruneSpent
// when outputs it once created are no longer reachable.
type Pruner struct {
	store *Store
}

// NewPruner builds a Pruner over store.
func NewPruner(store *Store) *Pruner {
	return &Pruner{store: store}
}

// PruneSpent erases every given outpoint's FractionVector. Erasing an
// outpoint that was never written is a no-op.
func (p *Pruner) PruneSpent(outpoints []Outpoint) error {
	batch := p.store.NewBatch()
	for _, op := range outpoints {
		batch.Erase(op)
	}
	if err := batch.Commit(); err != nil {
		return pegerr.Wrap(pegerr.StorageFailure, err)
	}
	return nil
}
