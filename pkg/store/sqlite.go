package store

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/lshkit/lshkit/internal/encoding"
	"github.com/lshkit/lshkit/pkg/hash"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// SqlTable stores postings in SQLite: one table per hash table with an index
// on the codeword bytes, a vectors table holding the original inputs unless
// index-only, and a state table persisting the hasher blob so a later session
// reattaches to the same index.
//
// All writes run inside a single explicit transaction. Commit makes them
// visible and durable; InitTransaction opens the next one.
type SqlTable[N hash.Numeric, E hash.Element] struct {
	db         *sql.DB
	tx         *sql.Tx
	nTables    int
	onlyIndex  bool
	puts       []uint32
	counter    uint32
	tableNames []string
	log        Logger
}

// NewSqlTable opens (or creates) the database at path and prepares nTables
// hash tables inside it.
func NewSqlTable[N hash.Numeric, E hash.Element](nTables int, onlyIndex bool, path string, log Logger) (*SqlTable[N, E], error) {
	if nTables < 1 {
		return nil, wrapError("open", ErrTableNotExist)
	}
	if log == nil {
		log = NopLogger()
	}
	dsn := fmt.Sprintf(
		"%s?_pragma=journal_mode(OFF)&_pragma=synchronous(OFF)&_pragma=locking_mode(EXCLUSIVE)&_pragma=cache_size(100000)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapError("open", err)
	}
	// The explicit transaction must see every statement on one connection.
	db.SetMaxOpenConns(1)

	s := &SqlTable[N, E]{
		db:         db,
		nTables:    nTables,
		onlyIndex:  onlyIndex,
		puts:       make([]uint32, nTables),
		tableNames: make([]string, nTables),
		log:        log,
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.restoreCursors(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.InitTransaction(); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("database opened", "path", path, "tables", nTables, "next_id", s.counter)
	return s, nil
}

func (s *SqlTable[N, E]) createTables() error {
	for t := 0; t < s.nTables; t++ {
		s.tableNames[t] = fmt.Sprintf("hash_table_%d", t)
		schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			hash BLOB,
			id   INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_hash ON %[1]s(hash);
		`, s.tableNames[t])
		if _, err := s.db.Exec(schema); err != nil {
			return wrapError("create_tables", err)
		}
	}
	schema := `
	CREATE TABLE IF NOT EXISTS state (
		hashers BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS vectors (
		id     INTEGER PRIMARY KEY,
		vector BLOB NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return wrapError("create_tables", err)
	}
	return nil
}

// restoreCursors recovers per-table put cursors after reattaching to an
// existing database.
func (s *SqlTable[N, E]) restoreCursors() error {
	for t, name := range s.tableNames {
		var next int64
		row := s.db.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(id)+1, 0) FROM %s", name))
		if err := row.Scan(&next); err != nil {
			return wrapError("restore_cursors", err)
		}
		s.puts[t] = uint32(next)
	}
	s.counter = s.puts[s.nTables-1]
	return nil
}

// q returns the active transaction, or the bare connection outside one.
func (s *SqlTable[N, E]) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Commit makes all puts since the last commit visible and durable.
func (s *SqlTable[N, E]) Commit() error {
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Commit(); err != nil {
		return wrapError("commit", err)
	}
	s.tx = nil
	s.log.Debug("transaction committed")
	return nil
}

// InitTransaction opens a new write transaction.
func (s *SqlTable[N, E]) InitTransaction() error {
	if s.tx != nil {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return wrapError("init_transaction", err)
	}
	s.tx = tx
	return nil
}

// Close commits any open transaction and closes the database.
func (s *SqlTable[N, E]) Close() error {
	if err := s.Commit(); err != nil {
		return err
	}
	if err := s.db.Close(); err != nil {
		return wrapError("close", err)
	}
	return nil
}

// Put implements HashTables.
func (s *SqlTable[N, E]) Put(code []E, v []N, t int) (uint32, error) {
	if t < 0 || t >= s.nTables {
		return 0, wrapError("put", ErrTableNotExist)
	}
	id := s.puts[t]
	blob := encoding.EncodeCodeword(code)
	stmt := fmt.Sprintf("INSERT INTO %s (hash, id) VALUES (?, ?)", s.tableNames[t])
	if _, err := s.q().Exec(stmt, blob, int64(id)); err != nil {
		return 0, wrapError("put", err)
	}
	if t == 0 && !s.onlyIndex {
		vec, err := encoding.EncodeVector(v)
		if err != nil {
			return 0, wrapError("put", err)
		}
		if _, err := s.q().Exec("INSERT INTO vectors (id, vector) VALUES (?, ?)", int64(id), vec); err != nil {
			return 0, wrapError("put", err)
		}
	}
	s.puts[t]++
	if t == s.nTables-1 {
		s.counter = s.puts[t]
	}
	return id, nil
}

// Delete implements HashTables. With an index-only database the id of v is
// unknown, so the delete is silently skipped.
func (s *SqlTable[N, E]) Delete(code []E, v []N, t int) error {
	if t < 0 || t >= s.nTables {
		return wrapError("delete", ErrTableNotExist)
	}
	if s.onlyIndex {
		return nil
	}
	id, ok, err := s.position(v)
	if err != nil {
		return wrapError("delete", err)
	}
	if !ok {
		return nil
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE hash = ? AND id = ?", s.tableNames[t])
	if _, err := s.q().Exec(stmt, encoding.EncodeCodeword(code), int64(id)); err != nil {
		return wrapError("delete", err)
	}
	return nil
}

// position scans the vectors table for v.
func (s *SqlTable[N, E]) position(v []N) (uint32, bool, error) {
	rows, err := s.q().Query("SELECT id, vector FROM vectors")
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return 0, false, err
		}
		stored, err := encoding.DecodeVector[N](blob)
		if err != nil {
			return 0, false, err
		}
		if allEq(stored, v) {
			return uint32(id), true, nil
		}
	}
	return 0, false, rows.Err()
}

// UpdateByIdx implements HashTables.
func (s *SqlTable[N, E]) UpdateByIdx(oldCode, newCode []E, id uint32, t int) error {
	if t < 0 || t >= s.nTables {
		return wrapError("update_by_idx", ErrTableNotExist)
	}
	del := fmt.Sprintf("DELETE FROM %s WHERE hash = ? AND id = ?", s.tableNames[t])
	if _, err := s.q().Exec(del, encoding.EncodeCodeword(oldCode), int64(id)); err != nil {
		return wrapError("update_by_idx", err)
	}
	ins := fmt.Sprintf("INSERT INTO %s (hash, id) VALUES (?, ?)", s.tableNames[t])
	if _, err := s.q().Exec(ins, encoding.EncodeCodeword(newCode), int64(id)); err != nil {
		return wrapError("update_by_idx", err)
	}
	return nil
}

// QueryBucket implements HashTables.
func (s *SqlTable[N, E]) QueryBucket(code []E, t int) (Bucket, error) {
	if t < 0 || t >= s.nTables {
		return nil, wrapError("query_bucket", ErrTableNotExist)
	}
	stmt := fmt.Sprintf("SELECT id FROM %s WHERE hash = ?", s.tableNames[t])
	rows, err := s.q().Query(stmt, encoding.EncodeCodeword(code))
	if err != nil {
		return nil, wrapError("query_bucket", err)
	}
	defer rows.Close()
	bucket := make(Bucket)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapError("query_bucket", err)
		}
		bucket[uint32(id)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("query_bucket", err)
	}
	if len(bucket) == 0 {
		return nil, ErrNotFound
	}
	return bucket, nil
}

// IdxToDatapoint implements HashTables.
func (s *SqlTable[N, E]) IdxToDatapoint(id uint32) ([]N, error) {
	if s.onlyIndex {
		return nil, wrapError("idx_to_datapoint", ErrNotImplemented)
	}
	var blob []byte
	row := s.q().QueryRow("SELECT vector FROM vectors WHERE id = ?", int64(id))
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, wrapError("idx_to_datapoint", ErrNotFound)
		}
		return nil, wrapError("idx_to_datapoint", err)
	}
	v, err := encoding.DecodeVector[N](blob)
	if err != nil {
		return nil, wrapError("idx_to_datapoint", err)
	}
	return v, nil
}

// IncreaseStorage implements HashTables. SQLite manages its own pages.
func (s *SqlTable[N, E]) IncreaseStorage(int) {}

// Describe implements HashTables.
func (s *SqlTable[N, E]) Describe() (string, error) {
	var lens []int
	values := make(map[E]struct{})
	for _, name := range s.tableNames {
		rows, err := s.q().Query(fmt.Sprintf("SELECT hash, COUNT(id) FROM %s GROUP BY hash", name))
		if err != nil {
			return "", wrapError("describe", err)
		}
		for rows.Next() {
			var blob []byte
			var n int
			if err := rows.Scan(&blob, &n); err != nil {
				rows.Close()
				return "", wrapError("describe", err)
			}
			lens = append(lens, n)
			code, err := encoding.DecodeCodeword[E](blob)
			if err != nil {
				rows.Close()
				return "", wrapError("describe", err)
			}
			for _, e := range code {
				values[e] = struct{}{}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return "", wrapError("describe", err)
		}
		rows.Close()
	}
	return describeStats(s.nTables, lens, values), nil
}

// StoreHashers implements HashTables. It fails with ErrHashersStored when the
// state table already holds a blob, so the engine reattaches to the persisted
// hashers instead of overwriting them.
func (s *SqlTable[N, E]) StoreHashers(hashers []hash.Hasher[N, E]) error {
	var n int
	if err := s.q().QueryRow("SELECT COUNT(*) FROM state").Scan(&n); err != nil {
		return wrapError("store_hashers", err)
	}
	if n > 0 {
		return wrapError("store_hashers", ErrHashersStored)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&hashers); err != nil {
		return wrapError("store_hashers", err)
	}
	if _, err := s.q().Exec("INSERT INTO state (hashers) VALUES (?)", buf.Bytes()); err != nil {
		return wrapError("store_hashers", err)
	}
	return nil
}

// LoadHashers implements HashTables.
func (s *SqlTable[N, E]) LoadHashers() ([]hash.Hasher[N, E], error) {
	var blob []byte
	if err := s.q().QueryRow("SELECT hashers FROM state").Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, wrapError("load_hashers", ErrNotFound)
		}
		return nil, wrapError("load_hashers", err)
	}
	var hashers []hash.Hasher[N, E]
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&hashers); err != nil {
		return nil, wrapError("load_hashers", err)
	}
	s.log.Debug("hashers loaded from state table", "count", len(hashers))
	return hashers, nil
}

// UniqueHashValues implements HashTables.
func (s *SqlTable[N, E]) UniqueHashValues() (map[E]struct{}, error) {
	values := make(map[E]struct{})
	for _, name := range s.tableNames {
		rows, err := s.q().Query(fmt.Sprintf("SELECT DISTINCT hash FROM %s", name))
		if err != nil {
			return nil, wrapError("unique_hash_values", err)
		}
		for rows.Next() {
			var blob []byte
			if err := rows.Scan(&blob); err != nil {
				rows.Close()
				return nil, wrapError("unique_hash_values", err)
			}
			code, err := encoding.DecodeCodeword[E](blob)
			if err != nil {
				rows.Close()
				return nil, wrapError("unique_hash_values", err)
			}
			for _, e := range code {
				values[e] = struct{}{}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, wrapError("unique_hash_values", err)
		}
		rows.Close()
	}
	return values, nil
}
