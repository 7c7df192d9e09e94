// Package store provides the posting storage behind the LSH engine: L
// independent hash tables mapping codewords to sets of item ids, together
// with an optional store of the original vectors. Two interchangeable
// implementations exist, an in-memory one and a SQLite-backed one.
package store

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/lshkit/lshkit/pkg/hash"
)

// Bucket is the set of item ids sharing a codeword in one table. The bool
// values are always true; gob cannot carry empty-struct values, and buckets
// travel through dumps.
type Bucket map[uint32]bool

// clone returns a copy of the bucket so callers can mutate it freely.
func (b Bucket) clone() Bucket {
	out := make(Bucket, len(b))
	for id := range b {
		out[id] = true
	}
	return out
}

// HashTables is the backend contract: storage for codeword -> id postings
// across L tables plus the vector store holding the original inputs.
//
// Item ids are assigned by the backend. Each table keeps a put cursor; the
// global id counter advances when a vector's codeword has been inserted into
// the last table, so a full pass over all L tables assigns exactly one id.
type HashTables[N hash.Numeric, E hash.Element] interface {
	// Put inserts a posting into table t and returns the item id. On t = 0
	// the vector is also appended to the vector store unless the backend is
	// index-only.
	Put(code []E, v []N, t int) (uint32, error)

	// Delete locates v's id by scanning the vector store and removes it from
	// the bucket of code in table t. The vector-store slot is kept.
	Delete(code []E, v []N, t int) error

	// UpdateByIdx moves id from the bucket of oldCode to the bucket of
	// newCode in table t.
	UpdateByIdx(oldCode, newCode []E, id uint32, t int) error

	// QueryBucket returns the ids stored under code in table t, or
	// ErrNotFound if the codeword has no bucket.
	QueryBucket(code []E, t int) (Bucket, error)

	// IdxToDatapoint returns the stored vector for id.
	IdxToDatapoint(id uint32) ([]N, error)

	// IncreaseStorage reserves capacity for n additional vectors. Advisory;
	// backends may ignore it.
	IncreaseStorage(n int)

	// Describe returns a human-readable summary of the tables.
	Describe() (string, error)

	// StoreHashers persists the hasher state. Returns ErrHashersStored when
	// state is already present so the caller can load it instead.
	StoreHashers(hashers []hash.Hasher[N, E]) error

	// LoadHashers restores previously persisted hasher state.
	LoadHashers() ([]hash.Hasher[N, E], error)

	// UniqueHashValues returns the distinct codeword element values seen
	// across all tables.
	UniqueHashValues() (map[E]struct{}, error)
}

// describeStats formats table statistics the same way for every backend.
func describeStats[E hash.Element](nTables int, bucketLens []int, values map[E]struct{}) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tables: %d\n", nTables)
	fmt.Fprintf(&sb, "buckets: %d\n", len(bucketLens))
	if len(bucketLens) > 0 {
		lens := make([]float64, len(bucketLens))
		min, max := bucketLens[0], bucketLens[0]
		for i, l := range bucketLens {
			lens[i] = float64(l)
			if l < min {
				min = l
			}
			if l > max {
				max = l
			}
		}
		mean := stat.Mean(lens, nil)
		var std float64
		if len(lens) > 1 {
			std = stat.StdDev(lens, nil)
		}
		fmt.Fprintf(&sb, "collisions: avg %.2f std %.2f min %d max %d\n", mean, std, min, max)
	}
	vals := make([]int64, 0, len(values))
	for v := range values {
		vals = append(vals, int64(v))
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	fmt.Fprintf(&sb, "hash values: %v\n", vals)
	return sb.String()
}
