package store

import (
	"github.com/lshkit/lshkit/internal/encoding"
	"github.com/lshkit/lshkit/pkg/hash"
)

// VecStore is the indexable storage of original vectors. Ids index into the
// append-only Items slice; deleted slots are kept so earlier ids stay valid.
type VecStore[N hash.Numeric] struct {
	Items [][]N
}

func (s *VecStore[N]) push(v []N) uint32 {
	d := make([]N, len(v))
	copy(d, v)
	s.Items = append(s.Items, d)
	return uint32(len(s.Items) - 1)
}

// position does a linear scan for v.
func (s *VecStore[N]) position(v []N) (uint32, bool) {
	for i, item := range s.Items {
		if allEq(item, v) {
			return uint32(i), true
		}
	}
	return 0, false
}

func (s *VecStore[N]) get(id uint32) ([]N, bool) {
	if int(id) >= len(s.Items) {
		return nil, false
	}
	return s.Items[id], true
}

func (s *VecStore[N]) increaseStorage(n int) {
	if cap(s.Items)-len(s.Items) < n {
		grown := make([][]N, len(s.Items), len(s.Items)+n)
		copy(grown, s.Items)
		s.Items = grown
	}
}

func allEq[N hash.Numeric](u, v []N) bool {
	if len(u) != len(v) {
		return false
	}
	for i := range u {
		if u[i] != v[i] {
			return false
		}
	}
	return true
}

// MemoryTable stores postings in nested maps. Fields are exported so the
// whole table state survives a gob round trip.
type MemoryTable[N hash.Numeric, E hash.Element] struct {
	// Tables maps encoded codewords to buckets, one map per hash table.
	Tables []map[string]Bucket
	// NTables is the number of hash tables (L).
	NTables int
	// Vecs holds the original vectors unless OnlyIndex is set.
	Vecs VecStore[N]
	// OnlyIndex disables the vector store; only ids flow through.
	OnlyIndex bool
	// Puts tracks the number of puts per table.
	Puts []uint32
	// Counter is the next item id, equal to the put cursor of the last table.
	Counter uint32
}

// NewMemoryTable creates an in-memory backend with nTables hash tables.
func NewMemoryTable[N hash.Numeric, E hash.Element](nTables int, onlyIndex bool) *MemoryTable[N, E] {
	tables := make([]map[string]Bucket, nTables)
	for i := range tables {
		tables[i] = make(map[string]Bucket)
	}
	return &MemoryTable[N, E]{
		Tables:    tables,
		NTables:   nTables,
		OnlyIndex: onlyIndex,
		Puts:      make([]uint32, nTables),
	}
}

// Put implements HashTables.
func (m *MemoryTable[N, E]) Put(code []E, v []N, t int) (uint32, error) {
	if t < 0 || t >= m.NTables {
		return 0, wrapError("put", ErrTableNotExist)
	}
	key := string(encoding.EncodeCodeword(code))
	id := m.Puts[t]
	bucket, ok := m.Tables[t][key]
	if !ok {
		bucket = make(Bucket)
		m.Tables[t][key] = bucket
	}
	bucket[id] = true

	if t == 0 && !m.OnlyIndex {
		m.Vecs.push(v)
	}
	m.Puts[t]++
	if t == m.NTables-1 {
		m.Counter = m.Puts[t]
	}
	return id, nil
}

// Delete implements HashTables. The vector-store entry is kept; shrinking it
// would invalidate every id assigned after it.
func (m *MemoryTable[N, E]) Delete(code []E, v []N, t int) error {
	if t < 0 || t >= m.NTables {
		return wrapError("delete", ErrTableNotExist)
	}
	id, ok := m.Vecs.position(v)
	if !ok {
		return nil
	}
	key := string(encoding.EncodeCodeword(code))
	bucket, ok := m.Tables[t][key]
	if !ok {
		return wrapError("delete", ErrNotFound)
	}
	delete(bucket, id)
	return nil
}

// UpdateByIdx implements HashTables.
func (m *MemoryTable[N, E]) UpdateByIdx(oldCode, newCode []E, id uint32, t int) error {
	if t < 0 || t >= m.NTables {
		return wrapError("update_by_idx", ErrTableNotExist)
	}
	oldKey := string(encoding.EncodeCodeword(oldCode))
	if bucket, ok := m.Tables[t][oldKey]; ok {
		delete(bucket, id)
	}
	newKey := string(encoding.EncodeCodeword(newCode))
	bucket, ok := m.Tables[t][newKey]
	if !ok {
		bucket = make(Bucket)
		m.Tables[t][newKey] = bucket
	}
	bucket[id] = true
	return nil
}

// QueryBucket implements HashTables.
func (m *MemoryTable[N, E]) QueryBucket(code []E, t int) (Bucket, error) {
	if t < 0 || t >= m.NTables {
		return nil, wrapError("query_bucket", ErrTableNotExist)
	}
	bucket, ok := m.Tables[t][string(encoding.EncodeCodeword(code))]
	if !ok {
		return nil, ErrNotFound
	}
	return bucket.clone(), nil
}

// IdxToDatapoint implements HashTables.
func (m *MemoryTable[N, E]) IdxToDatapoint(id uint32) ([]N, error) {
	if m.OnlyIndex {
		return nil, wrapError("idx_to_datapoint", ErrNotImplemented)
	}
	v, ok := m.Vecs.get(id)
	if !ok {
		return nil, wrapError("idx_to_datapoint", ErrNotFound)
	}
	return v, nil
}

// IncreaseStorage implements HashTables.
func (m *MemoryTable[N, E]) IncreaseStorage(n int) {
	m.Vecs.increaseStorage(n)
}

// Describe implements HashTables.
func (m *MemoryTable[N, E]) Describe() (string, error) {
	var lens []int
	for _, tbl := range m.Tables {
		for _, bucket := range tbl {
			lens = append(lens, len(bucket))
		}
	}
	values, err := m.UniqueHashValues()
	if err != nil {
		return "", err
	}
	return describeStats(m.NTables, lens, values), nil
}

// StoreHashers implements HashTables. The in-memory backend does not persist
// hashers on its own; whole-index persistence goes through Dump/Load.
func (m *MemoryTable[N, E]) StoreHashers([]hash.Hasher[N, E]) error {
	return nil
}

// LoadHashers implements HashTables.
func (m *MemoryTable[N, E]) LoadHashers() ([]hash.Hasher[N, E], error) {
	return nil, wrapError("load_hashers", ErrNotImplemented)
}

// UniqueHashValues implements HashTables.
func (m *MemoryTable[N, E]) UniqueHashValues() (map[E]struct{}, error) {
	values := make(map[E]struct{})
	for _, tbl := range m.Tables {
		for key := range tbl {
			code, err := encoding.DecodeCodeword[E]([]byte(key))
			if err != nil {
				return nil, wrapError("unique_hash_values", err)
			}
			for _, e := range code {
				values[e] = struct{}{}
			}
		}
	}
	return values, nil
}
