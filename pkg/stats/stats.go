// Package stats helps choose LSH parameters: hash collision probabilities
// per family, the table count needed for a target recall, and grid searches
// that measure real bucket behavior on sample data.
package stats

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lshkit/lshkit/internal/vecmath"
	"github.com/lshkit/lshkit/pkg/lsh"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// L2PH returns the hash collision probability for the L2 family, assuming
// data normalized to query distance R = 1.
//
// r is the slot width of the hash function, c the approximation factor:
// pass c = 1 for P1, c = c for P2.
func L2PH(r, c float64) float64 {
	return 1 - 2*stdNormal.CDF(-r/c) -
		2/(math.Sqrt(2*math.Pi)*r/c)*(1-math.Exp(-(r*r)/(2*c*c)))
}

// SRPPH returns the hash collision probability of sign random projections
// for a given cosine similarity.
func SRPPH(cosineSim float64) float64 {
	return 1 - math.Acos(cosineSim)/math.Pi
}

// EstimateL returns the number of hash tables needed to return the nearest
// neighbor with probability 1-delta, given per-projection collision
// probability p1 and codeword length k.
func EstimateL(delta, p1 float64, k int) int {
	return int(math.Round(math.Log(delta) / math.Log(1-math.Pow(p1, float64(k)))))
}

// OptRes is the outcome of one grid-search cell.
type OptRes struct {
	K          int
	L          int
	SearchTime float64
	HashTime   float64
	MinLen     int
	MaxLen     int
	AvgLen     float64
	// UniqueHashValues are the distinct codeword element values the index
	// produced on the sample data.
	UniqueHashValues map[int32]struct{}
}

// measure stores vs in the index, queries every vector back and records
// bucket sizes and timings.
func measure(index *lsh.LSH[float32, int32], vs [][]float32, k, l int) (OptRes, error) {
	res := OptRes{K: k, L: l}
	if _, err := index.StoreVecs(vs); err != nil {
		return res, err
	}

	lens := make([]int, 0, len(vs))
	for _, v := range vs {
		t0 := time.Now()
		ids, err := index.QueryBucketIDs(v)
		res.HashTime += time.Since(t0).Seconds()
		if err != nil {
			return res, err
		}
		lens = append(lens, len(ids))

		t1 := time.Now()
		candidates := make([][]float32, len(ids))
		for i, id := range ids {
			candidates[i] = vs[id]
		}
		vecmath.SortByDistance(v, candidates, vecmath.L2Dist[float32])
		res.SearchTime += time.Since(t1).Seconds()
	}

	if len(lens) > 0 {
		sort.Ints(lens)
		res.MinLen = lens[0]
		res.MaxLen = lens[len(lens)-1]
		sum := 0
		for _, n := range lens {
			sum += n
		}
		res.AvgLen = float64(sum) / float64(len(lens))
	}
	values, err := index.HashTables().UniqueHashValues()
	if err != nil {
		return res, err
	}
	res.UniqueHashValues = values
	return res, nil
}

// OptimizeL2Params grid-searches codeword lengths ks for the L2 family,
// estimating L per k from the collision probability at slot width 4. The
// sample data should be normalized by the query distance beforehand.
func OptimizeL2Params(delta float64, dim int, ks []int, vs [][]float32) ([]OptRes, error) {
	const r = 4.0
	p1 := L2PH(r, 1)
	return optimize(ks, vs, func(k int) (*lsh.LSH[float32, int32], int, error) {
		l := EstimateL(delta, p1, k)
		index, err := lsh.L2(lsh.NewMem[float32, int32](k, l, dim), r)
		return index, l, err
	})
}

// OptimizeSRPParams grid-searches codeword lengths ks for the SRP family,
// estimating L per k from the collision probability at the given cosine
// similarity.
func OptimizeSRPParams(delta, cosineSim float64, dim int, ks []int, vs [][]float32) ([]OptRes, error) {
	p1 := SRPPH(cosineSim)
	return optimize(ks, vs, func(k int) (*lsh.LSH[float32, int32], int, error) {
		l := EstimateL(delta, p1, k)
		index, err := lsh.SRP(lsh.NewMem[float32, int32](k, l, dim))
		return index, l, err
	})
}

func optimize(ks []int, vs [][]float32, build func(k int) (*lsh.LSH[float32, int32], int, error)) ([]OptRes, error) {
	results := make([]OptRes, len(ks))
	errs := make([]error, len(ks))
	var wg sync.WaitGroup
	for i, k := range ks {
		wg.Add(1)
		go func(i, k int) {
			defer wg.Done()
			index, l, err := build(k)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = measure(index, vs, k, l)
		}(i, k)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
