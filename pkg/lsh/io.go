package lsh

import (
	"bytes"
	"encoding/gob"
	"os"

	"github.com/lshkit/lshkit/pkg/hash"
	"github.com/lshkit/lshkit/pkg/store"
)

// indexBlob carries the serialized state needed for reproducible results.
// The hashers and tables are nested blobs so the outer structure stays stable
// across family and backend combinations.
type indexBlob struct {
	Hashers      []byte
	Tables       []byte
	NTables      int
	NProjections int
	Dim          int
	Seed         uint64
}

// Dump writes the whole index state to path. Memory backend only.
func (l *LSH[N, E]) Dump(path string) error {
	mt, ok := l.tables.(*store.MemoryTable[N, E])
	if !ok {
		return wrapError("dump", ErrWrongBackend)
	}

	var hashers bytes.Buffer
	if err := gob.NewEncoder(&hashers).Encode(&l.hashers); err != nil {
		return wrapError("dump", err)
	}
	var tables bytes.Buffer
	if err := gob.NewEncoder(&tables).Encode(mt); err != nil {
		return wrapError("dump", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return wrapError("dump", err)
	}
	defer f.Close()

	blob := indexBlob{
		Hashers:      hashers.Bytes(),
		Tables:       tables.Bytes(),
		NTables:      l.nTables,
		NProjections: l.nProjections,
		Dim:          l.dim,
		Seed:         l.seed,
	}
	if err := gob.NewEncoder(f).Encode(&blob); err != nil {
		return wrapError("dump", err)
	}
	return nil
}

// Load restores index state previously written by Dump, replacing the
// hashers and tables of the receiver. Memory backend only.
func (l *LSH[N, E]) Load(path string) error {
	if _, ok := l.tables.(*store.MemoryTable[N, E]); !ok {
		return wrapError("load", ErrWrongBackend)
	}

	f, err := os.Open(path)
	if err != nil {
		return wrapError("load", err)
	}
	defer f.Close()

	var blob indexBlob
	if err := gob.NewDecoder(f).Decode(&blob); err != nil {
		return wrapError("load", err)
	}

	var hashers []hash.Hasher[N, E]
	if err := gob.NewDecoder(bytes.NewReader(blob.Hashers)).Decode(&hashers); err != nil {
		return wrapError("load", err)
	}
	mt := &store.MemoryTable[N, E]{}
	if err := gob.NewDecoder(bytes.NewReader(blob.Tables)).Decode(mt); err != nil {
		return wrapError("load", err)
	}

	l.hashers = hashers
	l.tables = mt
	l.nTables = blob.NTables
	l.nProjections = blob.NProjections
	l.dim = blob.Dim
	l.seed = blob.Seed
	return nil
}
