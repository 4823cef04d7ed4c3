// Package pegstore persists FractionVectors keyed by outpoint. It is the
// ordered key-value store PegStore names: block validation groups all
// writes from one block into a single atomic batch, and readers outside
// validation observe a point-in-time snapshot.
package pegstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/pegerr"
)

// Outpoint is the 320-bit key PegStore indexes by: a 256-bit tx hash and
// a 64-bit output index (Index is widened to 64 bits in the stored key).
type Outpoint struct {
	Hash  chainhash.Hash
	Index uint32
}

func (o Outpoint) key() []byte {
	var b [40]byte
	copy(b[:32], o.Hash[:])
	binary.BigEndian.PutUint64(b[32:], uint64(o.Index))
	return b[:]
}

// Store wraps a goleveldb database holding outpoint-keyed FractionVectors.
type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) the goleveldb database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, pegerr.Wrap(pegerr.StorageFailure, fmt.Errorf("open pegstore at %s: %w", path, err))
	}
	log.Printf("pegstore: opened %s", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Read looks up the FractionVector for key. The second return is false
// when the key is absent (not an error).
func (s *Store) Read(key Outpoint) (fractions.Vector, bool, error) {
	raw, err := s.db.Get(key.key(), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return fractions.Vector{}, false, nil
	}
	if err != nil {
		return fractions.Vector{}, false, pegerr.Wrap(pegerr.StorageFailure, err)
	}
	v, uerr := fractions.Unpack(bytes.NewReader(raw))
	if uerr != nil {
		return fractions.Vector{}, false, pegerr.Wrap(pegerr.Corruption, uerr)
	}
	return v, true, nil
}

// Write persists v under key, outside of any batch (for single-write
// callers that need no atomic grouping).
func (s *Store) Write(key Outpoint, v fractions.Vector) error {
	var buf bytes.Buffer
	if err := v.Pack(&buf); err != nil {
		return pegerr.Wrap(pegerr.Corruption, err)
	}
	if err := s.db.Put(key.key(), buf.Bytes(), nil); err != nil {
		return pegerr.Wrap(pegerr.StorageFailure, err)
	}
	return nil
}

// Erase removes key. Erasing an absent key is not an error.
func (s *Store) Erase(key Outpoint) error {
	if err := s.db.Delete(key.key(), nil); err != nil {
		return pegerr.Wrap(pegerr.StorageFailure, err)
	}
	return nil
}

// Batch groups the writes from a single block's validation so they commit
// atomically with that block's index update. Read sees the batch's own
// writes (tracked in-memory here) layered over the committed store.
type Batch struct {
	store   *Store
	batch   *leveldb.Batch
	pending map[Outpoint]fractions.Vector
	erased  map[Outpoint]bool
}

// NewBatch starts a batch against s.
func (s *Store) NewBatch() *Batch {
	return &Batch{
		store:   s,
		batch:   new(leveldb.Batch),
		pending: make(map[Outpoint]fractions.Vector),
		erased:  make(map[Outpoint]bool),
	}
}

// Write stages a write in the batch, visible to subsequent Read calls on
// the same batch before Commit.
func (b *Batch) Write(key Outpoint, v fractions.Vector) error {
	var buf bytes.Buffer
	if err := v.Pack(&buf); err != nil {
		return pegerr.Wrap(pegerr.Corruption, err)
	}
	b.batch.Put(key.key(), buf.Bytes())
	b.pending[key] = v
	delete(b.erased, key)
	return nil
}

// Erase stages a delete in the batch.
func (b *Batch) Erase(key Outpoint) {
	b.batch.Delete(key.key())
	b.erased[key] = true
	delete(b.pending, key)
}

// Read looks up key, preferring the batch's own staged writes over the
// committed store (read-before-commit must see the batch's own writes).
func (b *Batch) Read(key Outpoint) (fractions.Vector, bool, error) {
	if b.erased[key] {
		return fractions.Vector{}, false, nil
	}
	if v, ok := b.pending[key]; ok {
		return v, true, nil
	}
	return b.store.Read(key)
}

// Commit applies every staged write/delete atomically.
func (b *Batch) Commit() error {
	if err := b.store.db.Write(b.batch, nil); err != nil {
		return pegerr.Wrap(pegerr.StorageFailure, fmt.Errorf("commit batch: %w", err))
	}
	return nil
}

// Snapshot gives readers outside validation a consistent point-in-time
// view, isolated from batches committed after it is taken.
type Snapshot struct {
	snap *leveldb.Snapshot
}

// NewSnapshot takes a point-in-time snapshot of the store.
func (s *Store) NewSnapshot() (*Snapshot, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, pegerr.Wrap(pegerr.StorageFailure, err)
	}
	return &Snapshot{snap: snap}, nil
}

// Read looks up key as of the moment the snapshot was taken.
func (sn *Snapshot) Read(key Outpoint) (fractions.Vector, bool, error) {
	raw, err := sn.snap.Get(key.key(), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return fractions.Vector{}, false, nil
	}
	if err != nil {
		return fractions.Vector{}, false, pegerr.Wrap(pegerr.StorageFailure, err)
	}
	v, uerr := fractions.Unpack(bytes.NewReader(raw))
	if uerr != nil {
		return fractions.Vector{}, false, pegerr.Wrap(pegerr.Corruption, uerr)
	}
	return v, true, nil
}

// Release releases the snapshot's resources.
func (sn *Snapshot) Release() {
	sn.snap.Release()
}

// iterate is a small helper Migrator uses to walk the full keyspace
// without pulling goleveldb's iterator type into its API.
func (s *Store) iterate(fn func(key []byte) (cont bool)) {
	it := s.db.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		// it.Key() is only valid until the next Next() call; copy it.
		key := append([]byte(nil), it.Key()...)
		if !fn(key) {
			break
		}
	}
}
