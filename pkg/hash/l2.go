package hash

import (
	"fmt"
	"math"

	"github.com/lshkit/lshkit/internal/encoding"
)

// L2 hashes for Euclidean distance. Every codeword entry is the index of the
// slot of width R the projection of the input falls into:
//
//	h_i(v) = floor((A_i . v + B_i) / R)
type L2[N Float, E Element] struct {
	// A holds K Gaussian projection vectors of the input dimension.
	A [][]N
	// B holds K offsets, uniform on [0, R).
	B []N
	// R is the slot width.
	R N
}

// NewL2 samples a K x dim Gaussian projection matrix and uniform offsets on
// [0, r).
func NewL2[N Float, E Element](dim int, r float64, nProjections int, seed uint64) *L2[N, E] {
	rng := NewRNG(seed)
	a := make([][]N, nProjections)
	for i := range a {
		row := make([]N, dim)
		for j := range row {
			row[j] = N(rng.NormFloat64())
		}
		a[i] = row
	}
	b := make([]N, nProjections)
	for i := range b {
		b[i] = N(rng.Float64() * r)
	}
	return &L2[N, E]{A: a, B: b, R: N(r)}
}

// project returns A.v + B per projection.
func (l *L2[N, E]) project(v []N) []float64 {
	f := make([]float64, len(l.A))
	for i, row := range l.A {
		var dot N
		for j := range row {
			dot += row[j] * v[j]
		}
		f[i] = float64(dot) + float64(l.B[i])
	}
	return f
}

func (l *L2[N, E]) hashVec(v []N) []E {
	f := l.project(v)
	code := make([]E, len(f))
	r := float64(l.R)
	min, max := encoding.ElementRange[E]()
	for i, fi := range f {
		h := math.Floor(fi / r)
		if h < float64(min) || h > float64(max) {
			panic(fmt.Sprintf("hash value %v does not fit the codeword element type, choose a wider element", h))
		}
		code[i] = E(h)
	}
	return code
}

// HashVecQuery implements Hasher.
func (l *L2[N, E]) HashVecQuery(v []N) []E {
	return l.hashVec(v)
}

// HashVecPut implements Hasher.
func (l *L2[N, E]) HashVecPut(v []N) []E {
	return l.hashVec(v)
}

// distanceToBound returns, per projection, the distance of q to the lower and
// upper boundary of the slot its codeword entry falls into.
func (l *L2[N, E]) distanceToBound(q []N, code []E) (xiMin, xiPlus []float64) {
	f := l.project(q)
	r := float64(l.R)
	xiMin = make([]float64, len(f))
	xiPlus = make([]float64, len(f))
	for i := range f {
		xiMin[i] = f[i] - float64(code[i])*r
		xiPlus[i] = r - xiMin[i]
	}
	return xiMin, xiPlus
}

// QueryDirectedProbe implements QueryDirectedProber. The returned sequence
// starts with the codeword of q, followed by budget perturbed codewords in
// ascending order of the summed slot-boundary distances of their
// perturbations.
func (l *L2[N, E]) QueryDirectedProbe(q []N, budget int) ([][]E, error) {
	code := l.hashVec(q)
	xiMin, xiPlus := l.distanceToBound(q, code)
	return probeSequence(code, xiMin, xiPlus, budget)
}
