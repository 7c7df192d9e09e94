package hash

import (
	"fmt"

	"github.com/lshkit/lshkit/internal/encoding"
)

// MinHash hashes integer presence vectors for Jaccard similarity. Every
// codeword entry is the minimum nonzero value of a random permutation of
// 1..dim multiplied elementwise with the input, or dim when the input is all
// zero under that row.
type MinHash[N Integer, E Element] struct {
	// Pi holds K rows, each a permutation of 1..dim.
	Pi [][]int64
	// Dim is the input dimension, doubling as the empty-row sentinel.
	Dim int
}

// NewMinHash samples k permutations of 1..dim.
func NewMinHash[N Integer, E Element](k, dim int, seed uint64) *MinHash[N, E] {
	rng := NewRNG(seed)
	pi := make([][]int64, k)
	for i := range pi {
		row := make([]int64, dim)
		for j, p := range rng.Perm(dim) {
			row[j] = int64(p) + 1
		}
		pi[i] = row
	}
	return &MinHash[N, E]{Pi: pi, Dim: dim}
}

func (h *MinHash[N, E]) hashVec(v []N) []E {
	code := make([]E, len(h.Pi))
	min, max := encoding.ElementRange[E]()
	for i, row := range h.Pi {
		best := int64(h.Dim)
		found := false
		for j, vj := range v {
			if vj == 0 {
				continue
			}
			if p := row[j] * int64(vj); !found || p < best {
				best = p
				found = true
			}
		}
		if best < min || best > max {
			panic(fmt.Sprintf("hash value %d does not fit the codeword element type, choose a wider element", best))
		}
		code[i] = E(best)
	}
	return code
}

// HashVecQuery implements Hasher.
func (h *MinHash[N, E]) HashVecQuery(v []N) []E {
	return h.hashVec(v)
}

// HashVecPut implements Hasher.
func (h *MinHash[N, E]) HashVecPut(v []N) []E {
	return h.hashVec(v)
}
