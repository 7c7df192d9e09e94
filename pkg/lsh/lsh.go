// Package lsh implements the LSH index engine: construction of a seeded
// hasher per hash table, the multi-table insert/query/update/delete protocol
// over pluggable backends, and multi-probe querying.
package lsh

import (
	"encoding/gob"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/lshkit/lshkit/pkg/hash"
	"github.com/lshkit/lshkit/pkg/store"
)

type backendKind int

const (
	memBackend backendKind = iota
	sqlBackend
)

// DefaultDatabaseFile is the SQLite file used when none is configured.
const DefaultDatabaseFile = "lsh.db"

// DefaultMultiProbeBudget is the probing budget a new builder starts with.
// MultiProbe replaces it with the budget it is given.
const DefaultMultiProbeBudget = 16

// LSH is the index engine. It is created by NewMem or NewSQL, configured
// through the builder methods and finished by one of the family terminals
// (SRP, L2, MIPS, MinHash), which install the hashers and the backend.
//
// Queries are safe for concurrent use; inserts, updates, deletes and Fit
// require exclusive access.
type LSH[N hash.Numeric, E hash.Element] struct {
	nTables      int
	nProjections int
	dim          int
	seed         uint64
	onlyIndex    bool
	multiProbe   bool
	probeBudget  int
	dbPath       string
	kind         backendKind
	storageHint  int
	log          store.Logger

	hashers []hash.Hasher[N, E]
	tables  store.HashTables[N, E]
}

// NewMem starts building an index backed by in-memory hash tables.
//
// nProjections is the codeword length (K), nTables the number of hash tables
// (L), dim the input dimension.
func NewMem[N hash.Numeric, E hash.Element](nProjections, nTables, dim int) *LSH[N, E] {
	return &LSH[N, E]{
		nTables:      nTables,
		nProjections: nProjections,
		dim:          dim,
		probeBudget:  DefaultMultiProbeBudget,
		dbPath:       DefaultDatabaseFile,
		kind:         memBackend,
		log:          store.NopLogger(),
	}
}

// NewSQL starts building an index backed by SQLite hash tables.
func NewSQL[N hash.Numeric, E hash.Element](nProjections, nTables, dim int) *LSH[N, E] {
	b := NewMem[N, E](nProjections, nTables, dim)
	b.kind = sqlBackend
	return b
}

// Seed sets the seed of the hasher RNGs. Zero (the default) seeds from the OS.
func (l *LSH[N, E]) Seed(seed uint64) *LSH[N, E] {
	l.seed = seed
	return l
}

// OnlyIndex disables vector storage; only ids flow through the index and the
// caller maps them back to vectors externally.
func (l *LSH[N, E]) OnlyIndex() *LSH[N, E] {
	l.onlyIndex = true
	return l
}

// SetDatabaseFile sets the SQLite database path used by SQL-backed indexes.
func (l *LSH[N, E]) SetDatabaseFile(path string) *LSH[N, E] {
	l.dbPath = path
	return l
}

// MultiProbe enables multi-probe querying with the given probing budget.
func (l *LSH[N, E]) MultiProbe(budget int) *LSH[N, E] {
	l.multiProbe = true
	l.probeBudget = budget
	return l
}

// Base disables multi-probe querying.
func (l *LSH[N, E]) Base() *LSH[N, E] {
	l.multiProbe = false
	return l
}

// Logger installs a logger on the index and its backend.
func (l *LSH[N, E]) Logger(log store.Logger) *LSH[N, E] {
	l.log = log
	return l
}

// IncreaseStorage reserves capacity for n additional vectors.
func (l *LSH[N, E]) IncreaseStorage(n int) *LSH[N, E] {
	if l.tables != nil {
		l.tables.IncreaseStorage(n)
	} else {
		l.storageHint = n
	}
	return l
}

// HashTables exposes the backend, mainly for statistics.
func (l *LSH[N, E]) HashTables() store.HashTables[N, E] {
	return l.tables
}

func (l *LSH[N, E]) validateConfig() error {
	if l.nProjections < 1 || l.nTables < 1 || l.dim < 1 {
		return wrapError("build", fmt.Errorf("%w: need nProjections, nTables and dim >= 1", ErrInvalidConfig))
	}
	return nil
}

// attach installs freshly built hashers and the configured backend. When the
// backend already persists hasher state, that state wins over the fresh
// hashers so reattached sessions hash identically.
func attach[N hash.Numeric, E hash.Element](l *LSH[N, E], hashers []hash.Hasher[N, E]) (*LSH[N, E], error) {
	// Register the concrete family instantiation so gob can round-trip the
	// hasher slice through dumps and the SQL state table.
	gob.Register(hashers[0])

	var backend store.HashTables[N, E]
	switch l.kind {
	case sqlBackend:
		sq, err := store.NewSqlTable[N, E](l.nTables, l.onlyIndex, l.dbPath, l.log)
		if err != nil {
			return nil, wrapError("build", err)
		}
		backend = sq
	default:
		backend = store.NewMemoryTable[N, E](l.nTables, l.onlyIndex)
	}

	if err := backend.StoreHashers(hashers); err != nil {
		if !errors.Is(err, store.ErrHashersStored) {
			return nil, wrapError("build", err)
		}
		loaded, lerr := backend.LoadHashers()
		if lerr != nil {
			return nil, wrapError("build", lerr)
		}
		l.log.Info("reattached to persisted hashers", "tables", len(loaded))
		hashers = loaded
	}

	l.hashers = hashers
	l.tables = backend
	if l.storageHint > 0 {
		backend.IncreaseStorage(l.storageHint)
	}
	return l, nil
}

// SRP finishes the builder with sign-random-projection hashers (cosine
// similarity).
func SRP[N hash.Float, E hash.Element](b *LSH[N, E]) (*LSH[N, E], error) {
	if err := b.validateConfig(); err != nil {
		return nil, err
	}
	rng := hash.NewRNG(b.seed)
	hashers := make([]hash.Hasher[N, E], b.nTables)
	for i := range hashers {
		hashers[i] = hash.NewSignRandomProjections[N, E](b.nProjections, b.dim, rng.Uint64())
	}
	return attach(b, hashers)
}

// L2 finishes the builder with L2 hashers (Euclidean distance). r is the
// slot width of the hash function.
func L2[N hash.Float, E hash.Element](b *LSH[N, E], r float64) (*LSH[N, E], error) {
	if err := b.validateConfig(); err != nil {
		return nil, err
	}
	if r <= 0 {
		return nil, wrapError("build", fmt.Errorf("%w: r must be positive", ErrInvalidConfig))
	}
	rng := hash.NewRNG(b.seed)
	hashers := make([]hash.Hasher[N, E], b.nTables)
	for i := range hashers {
		hashers[i] = hash.NewL2[N, E](b.dim, r, b.nProjections, rng.Uint64())
	}
	return attach(b, hashers)
}

// MIPS finishes the builder with asymmetric inner-product hashers. The index
// must be fitted with Fit before vectors are stored.
func MIPS[N hash.Float, E hash.Element](b *LSH[N, E], r, u float64, m int) (*LSH[N, E], error) {
	if err := b.validateConfig(); err != nil {
		return nil, err
	}
	if r <= 0 || u <= 0 || u >= 1 || m < 1 {
		return nil, wrapError("build", fmt.Errorf("%w: need r > 0, U in (0,1) and m >= 1", ErrInvalidConfig))
	}
	rng := hash.NewRNG(b.seed)
	hashers := make([]hash.Hasher[N, E], b.nTables)
	for i := range hashers {
		hashers[i] = hash.NewMIPS[N, E](b.dim, r, u, m, b.nProjections, rng.Uint64())
	}
	return attach(b, hashers)
}

// MinHash finishes the builder with MinHash hashers (Jaccard similarity) over
// integer presence vectors.
func MinHash[N hash.Integer, E hash.Element](b *LSH[N, E]) (*LSH[N, E], error) {
	if err := b.validateConfig(); err != nil {
		return nil, err
	}
	rng := hash.NewRNG(b.seed)
	hashers := make([]hash.Hasher[N, E], b.nTables)
	for i := range hashers {
		hashers[i] = hash.NewMinHash[N, E](b.nProjections, b.dim, rng.Uint64())
	}
	return attach(b, hashers)
}

func (l *LSH[N, E]) validateVec(v []N) error {
	if len(v) != l.dim {
		return wrapError("validate", fmt.Errorf("%w: got %d, want %d", ErrInvalidDimension, len(v), l.dim))
	}
	return nil
}

// Fit scans vs and fits stateful hasher families (MIPS). It must not overlap
// with queries or inserts.
func (l *LSH[N, E]) Fit(vs [][]N) error {
	fitted := false
	for _, h := range l.hashers {
		if f, ok := h.(hash.Fitter[N]); ok {
			f.Fit(vs)
			fitted = true
		}
	}
	if !fitted {
		return wrapError("fit", ErrNotFitted)
	}
	return nil
}

// StoreVec hashes v once per table, inserts the postings and returns the
// assigned id.
func (l *LSH[N, E]) StoreVec(v []N) (uint32, error) {
	if err := l.validateVec(v); err != nil {
		return 0, err
	}
	var id uint32
	for t, h := range l.hashers {
		code := h.HashVecPut(v)
		var err error
		if id, err = l.tables.Put(code, v, t); err != nil {
			return 0, wrapError("store_vec", err)
		}
	}
	return id, nil
}

// StoreVecs bulk-inserts vs and returns the assigned ids in input order.
// Tables form the outer loop, which keeps all writes of one SQL table
// adjacent inside the transaction.
func (l *LSH[N, E]) StoreVecs(vs [][]N) ([]uint32, error) {
	for _, v := range vs {
		if err := l.validateVec(v); err != nil {
			return nil, err
		}
	}
	l.tables.IncreaseStorage(len(vs))
	ids := make([]uint32, len(vs))
	for t, h := range l.hashers {
		for j, v := range vs {
			id, err := l.tables.Put(h.HashVecPut(v), v, t)
			if err != nil {
				return nil, wrapError("store_vecs", err)
			}
			ids[j] = id
		}
	}
	return ids, nil
}

// StoreArray bulk-inserts a flat row-major array of vectors of the
// configured dimension.
func (l *LSH[N, E]) StoreArray(flat []N) ([]uint32, error) {
	if l.dim == 0 || len(flat)%l.dim != 0 {
		return nil, wrapError("store_array", fmt.Errorf("%w: flat length %d is not a multiple of dim %d", ErrInvalidDimension, len(flat), l.dim))
	}
	vs := make([][]N, 0, len(flat)/l.dim)
	for off := 0; off < len(flat); off += l.dim {
		vs = append(vs, flat[off:off+l.dim])
	}
	return l.StoreVecs(vs)
}

// processBucket adds the ids under code in table t to union. A missing
// bucket contributes nothing.
func (l *LSH[N, E]) processBucket(code []E, t int, union map[uint32]struct{}) error {
	bucket, err := l.tables.QueryBucket(code, t)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	for id := range bucket {
		union[id] = struct{}{}
	}
	return nil
}

func (l *LSH[N, E]) queryBucketUnion(v []N) (map[uint32]struct{}, error) {
	if err := l.validateVec(v); err != nil {
		return nil, err
	}
	if l.multiProbe {
		return l.multiProbeBucketUnion(v)
	}
	union := make(map[uint32]struct{})
	for t, h := range l.hashers {
		if err := l.processBucket(h.HashVecQuery(v), t, union); err != nil {
			return nil, wrapError("query_bucket", err)
		}
	}
	return union, nil
}

// QueryBucketIDs returns the union of the ids in v's bucket over all tables.
func (l *LSH[N, E]) QueryBucketIDs(v []N) ([]uint32, error) {
	union, err := l.queryBucketUnion(v)
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, 0, len(union))
	for id := range union {
		ids = append(ids, id)
	}
	return ids, nil
}

// QueryBucket resolves the bucket union of v to the stored vectors.
func (l *LSH[N, E]) QueryBucket(v []N) ([][]N, error) {
	if l.onlyIndex {
		return nil, wrapError("query_bucket", ErrOnlyIndex)
	}
	union, err := l.queryBucketUnion(v)
	if err != nil {
		return nil, err
	}
	out := make([][]N, 0, len(union))
	for id := range union {
		dp, err := l.tables.IdxToDatapoint(id)
		if err != nil {
			return nil, wrapError("query_bucket", err)
		}
		out = append(out, dp)
	}
	return out, nil
}

// QueryBucketIDsBatch applies QueryBucketIDs to every vector in vs.
func (l *LSH[N, E]) QueryBucketIDsBatch(vs [][]N) ([][]uint32, error) {
	out := make([][]uint32, len(vs))
	for i, v := range vs {
		ids, err := l.QueryBucketIDs(v)
		if err != nil {
			return nil, err
		}
		out[i] = ids
	}
	return out, nil
}

// QueryBucketIDsBatchPar is QueryBucketIDsBatch fanned out over worker
// goroutines. The hashers and backend are only read.
func (l *LSH[N, E]) QueryBucketIDsBatchPar(vs [][]N) ([][]uint32, error) {
	out := make([][]uint32, len(vs))
	errs := make([]error, len(vs))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup
	for i, v := range vs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, v []N) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i], errs[i] = l.QueryBucketIDs(v)
		}(i, v)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateByIdx rehashes id from oldV's buckets into newV's buckets in every
// table.
func (l *LSH[N, E]) UpdateByIdx(id uint32, newV, oldV []N) error {
	if err := l.validateVec(newV); err != nil {
		return err
	}
	if err := l.validateVec(oldV); err != nil {
		return err
	}
	for t, h := range l.hashers {
		oldCode := h.HashVecPut(oldV)
		newCode := h.HashVecPut(newV)
		if err := l.tables.UpdateByIdx(oldCode, newCode, id, t); err != nil {
			return wrapError("update_by_idx", err)
		}
	}
	return nil
}

// DeleteVec removes v's postings from every table. Missing postings are
// ignored; the vector-store slot is kept.
func (l *LSH[N, E]) DeleteVec(v []N) error {
	if err := l.validateVec(v); err != nil {
		return err
	}
	for t, h := range l.hashers {
		code := h.HashVecQuery(v)
		if err := l.tables.Delete(code, v, t); err != nil && !errors.Is(err, store.ErrNotFound) {
			return wrapError("delete_vec", err)
		}
	}
	return nil
}

// Describe returns a summary of the backend state.
func (l *LSH[N, E]) Describe() (string, error) {
	return l.tables.Describe()
}

// Commit makes all puts since the last commit durable. SQL backend only.
func (l *LSH[N, E]) Commit() error {
	sq, ok := l.tables.(*store.SqlTable[N, E])
	if !ok {
		return wrapError("commit", ErrWrongBackend)
	}
	return sq.Commit()
}

// InitTransaction opens the next write transaction. SQL backend only.
func (l *LSH[N, E]) InitTransaction() error {
	sq, ok := l.tables.(*store.SqlTable[N, E])
	if !ok {
		return wrapError("init_transaction", ErrWrongBackend)
	}
	return sq.InitTransaction()
}

// Close releases backend resources.
func (l *LSH[N, E]) Close() error {
	if c, ok := l.tables.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
