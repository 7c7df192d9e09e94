package hash

import (
	"github.com/lshkit/lshkit/internal/vecmath"
)

// MIPS hashes for maximum inner product search by reducing the problem to L2
// through a pair of asymmetric transforms. Stored vectors are shrunk below
// unit norm and extended with powers of their squared norm; queries are
// normalized and extended with constant halves.
//
// Fit must scan the dataset before any put-side hashing so the shrink factor
// M is known.
type MIPS[N Float, E Element] struct {
	// U is the target upper bound of the shrunk norms, in (0, 1).
	U N
	// M is the maximum L2 norm seen by Fit. Zero means unfitted.
	M N
	// Ext is the number of appended coordinates.
	Ext int
	// Dim is the input dimension before extension.
	Dim int
	// Hasher is the wrapped L2 family over Dim+Ext dimensions.
	Hasher *L2[N, E]
}

// NewMIPS creates a MIPS family wrapping an L2 hasher over dim+m dimensions.
func NewMIPS[N Float, E Element](dim int, r, u float64, m, nProjections int, seed uint64) *MIPS[N, E] {
	return &MIPS[N, E]{
		U:      N(u),
		Ext:    m,
		Dim:    dim,
		Hasher: NewL2[N, E](dim+m, r, nProjections, seed),
	}
}

// Fit scans vs and records the maximum L2 norm.
func (h *MIPS[N, E]) Fit(vs [][]N) {
	var max N
	for _, v := range vs {
		if norm := vecmath.L2Norm(v); norm > max {
			max = norm
		}
	}
	h.M = max
}

// transformPut shrinks x below unit norm and appends powers of its squared
// norm.
func (h *MIPS[N, E]) transformPut(x []N) []N {
	if h.M == 0 {
		panic("MIPS is not fitted, call Fit before storing vectors")
	}
	out := make([]N, len(x), len(x)+h.Ext)
	for i, xi := range x {
		out[i] = xi / h.M * h.U
	}
	normSq := vecmath.L2Norm(out) * vecmath.L2Norm(out)
	pow := normSq
	for i := 0; i < h.Ext; i++ {
		out = append(out, pow)
		pow *= normSq
	}
	return out
}

// transformQuery normalizes q and appends constant halves.
func (h *MIPS[N, E]) transformQuery(q []N) []N {
	out := make([]N, len(q), len(q)+h.Ext)
	norm := vecmath.L2Norm(q)
	for i, qi := range q {
		out[i] = qi / norm
	}
	for i := 0; i < h.Ext; i++ {
		out = append(out, 0.5)
	}
	return out
}

// HashVecQuery implements Hasher.
func (h *MIPS[N, E]) HashVecQuery(v []N) []E {
	return h.Hasher.HashVecQuery(h.transformQuery(v))
}

// HashVecPut implements Hasher.
func (h *MIPS[N, E]) HashVecPut(v []N) []E {
	return h.Hasher.HashVecQuery(h.transformPut(v))
}

// QueryDirectedProbe implements QueryDirectedProber by probing the wrapped L2
// family with the transformed query.
func (h *MIPS[N, E]) QueryDirectedProbe(q []N, budget int) ([][]E, error) {
	return h.Hasher.QueryDirectedProbe(h.transformQuery(q), budget)
}
