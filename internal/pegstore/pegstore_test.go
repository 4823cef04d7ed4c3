package pegstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/rawblock/pegengine/internal/fractions"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "pegstore"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testOutpoint(b byte, idx uint32) Outpoint {
	var h chainhash.Hash
	h[0] = b
	return Outpoint{Hash: h, Index: idx}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	key := testOutpoint(1, 0)
	v := fractions.FromStd(555_000)

	if err := s.Write(key, v); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, ok, err := s.Read(key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !ok {
		t.Fatalf("expected key to be found")
	}
	if got.Total() != v.Total() {
		t.Errorf("Total() = %d, want %d", got.Total(), v.Total())
	}
}

func TestReadMissingKeyNotAnError(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Read(testOutpoint(9, 0))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ok {
		t.Errorf("expected missing key to report ok=false")
	}
}

func TestEraseRemovesKey(t *testing.T) {
	s := openTestStore(t)
	key := testOutpoint(2, 1)
	v := fractions.FromStd(10_000)
	if err := s.Write(key, v); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Erase(key); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	_, ok, err := s.Read(key)
	if err != nil {
		t.Fatalf("Read after erase: %v", err)
	}
	if ok {
		t.Errorf("expected key to be gone after Erase")
	}
}

func TestBatchSeesOwnWritesBeforeCommit(t *testing.T) {
	s := openTestStore(t)
	key := testOutpoint(3, 0)
	v := fractions.FromStd(42_000)

	b := s.NewBatch()
	if err := b.Write(key, v); err != nil {
		t.Fatalf("batch Write: %v", err)
	}

	got, ok, err := b.Read(key)
	if err != nil {
		t.Fatalf("batch Read: %v", err)
	}
	if !ok {
		t.Fatalf("expected batch to see its own uncommitted write")
	}
	if got.Total() != v.Total() {
		t.Errorf("Total() = %d, want %d", got.Total(), v.Total())
	}

	// not yet visible to the underlying store
	_, ok, err = s.Read(key)
	if err != nil {
		t.Fatalf("store Read: %v", err)
	}
	if ok {
		t.Errorf("uncommitted batch write leaked into the store")
	}

	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	_, ok, err = s.Read(key)
	if err != nil {
		t.Fatalf("store Read after commit: %v", err)
	}
	if !ok {
		t.Errorf("committed batch write did not land in the store")
	}
}

func TestSnapshotIsolatesLaterWrites(t *testing.T) {
	s := openTestStore(t)
	key := testOutpoint(4, 0)
	v1 := fractions.FromStd(1000)
	if err := s.Write(key, v1); err != nil {
		t.Fatalf("Write: %v", err)
	}

	snap, err := s.NewSnapshot()
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	defer snap.Release()

	v2 := fractions.FromStd(2000)
	if err := s.Write(key, v2); err != nil {
		t.Fatalf("Write v2: %v", err)
	}

	got, ok, err := snap.Read(key)
	if err != nil {
		t.Fatalf("snapshot Read: %v", err)
	}
	if !ok {
		t.Fatalf("expected key present in snapshot")
	}
	if got.Total() != v1.Total() {
		t.Errorf("snapshot Total() = %d, want %d (pre-write value)", got.Total(), v1.Total())
	}
}

func TestMigratorMarksAndCommits(t *testing.T) {
	s := openTestStore(t)
	for i := byte(0); i < 5; i++ {
		if err := s.Write(testOutpoint(i, 0), fractions.FromStd(int64(i+1)*1000)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	m := NewMigrator(s)
	marked, err := m.Run(context.Background(),
		func(key []byte) bool { return true },
		func(batch *Batch, key []byte) error { return nil },
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if marked != 5 {
		t.Errorf("marked = %d, want 5", marked)
	}
}

func TestPrunerErasesGivenOutpoints(t *testing.T) {
	s := openTestStore(t)
	key := testOutpoint(6, 2)
	if err := s.Write(key, fractions.FromStd(7000)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	p := NewPruner(s)
	if err := p.PruneSpent([]Outpoint{key}); err != nil {
		t.Fatalf("PruneSpent: %v", err)
	}

	_, ok, err := s.Read(key)
	if err != nil {
		t.Fatalf("Read after prune: %v", err)
	}
	if ok {
		t.Errorf("expected pruned outpoint to be gone")
	}
}
