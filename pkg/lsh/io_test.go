package lsh

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestDumpLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.lsh")

	index, err := SRP(NewMem[float32, int8](5, 8, 3).Seed(4))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	vs := [][]float32{
		{2, 3, 4}, {-1, -1, 1}, {0.5, 0, 2}, {3, -2, 1},
	}
	if _, err := index.StoreVecs(vs); err != nil {
		t.Fatalf("bulk store failed: %v", err)
	}
	if err := index.Dump(path); err != nil {
		t.Fatalf("dump failed: %v", err)
	}

	// a differently seeded index converges to the dumped state after Load
	restored, err := SRP(NewMem[float32, int8](5, 8, 3).Seed(99))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := restored.Load(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	for _, v := range vs {
		want, err := index.QueryBucketIDs(v)
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		got, err := restored.QueryBucketIDs(v)
		if err != nil {
			t.Fatalf("query on restored index failed: %v", err)
		}
		if !sameIDSet(want, got) {
			t.Errorf("restored query differs for %v: %v vs %v", v, want, got)
		}
	}

	// the restored index keeps assigning ids where the dump left off
	id, err := restored.StoreVec([]float32{7, 7, 7})
	if err != nil {
		t.Fatalf("store on restored index failed: %v", err)
	}
	if id != uint32(len(vs)) {
		t.Errorf("id after load: got %d, want %d", id, len(vs))
	}
}

func TestDumpOnSqlBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lsh.db")
	index, err := SRP(NewSQL[float32, int32](4, 2, 3).Seed(1).SetDatabaseFile(path))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer index.Close()

	if err := index.Dump(filepath.Join(t.TempDir(), "x.lsh")); !errors.Is(err, ErrWrongBackend) {
		t.Errorf("expected ErrWrongBackend, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	index, err := SRP(NewMem[float32, int8](4, 2, 3).Seed(1))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := index.Load(filepath.Join(t.TempDir(), "absent.lsh")); err == nil {
		t.Error("expected error for a missing dump file")
	}
}
