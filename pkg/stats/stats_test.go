package stats

import (
	"math"
	"math/rand"
	"testing"
)

func TestL2PH(t *testing.T) {
	// verified against the closed form evaluated with numpy
	got := L2PH(2, 1)
	want := 0.609548422215397
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("L2PH(2, 1) = %v, want %v", got, want)
	}
}

func TestSRPPH(t *testing.T) {
	if got := SRPPH(1); math.Abs(got-1) > 1e-12 {
		t.Errorf("SRPPH(1) = %v, want 1", got)
	}
	// cos 0.5 -> angle pi/3 -> collision probability 2/3
	if got := SRPPH(0.5); math.Abs(got-2.0/3) > 1e-12 {
		t.Errorf("SRPPH(0.5) = %v, want 2/3", got)
	}
	if got := SRPPH(0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("SRPPH(0) = %v, want 0.5", got)
	}
}

func TestEstimateL(t *testing.T) {
	if got := EstimateL(0.2, 0.6, 5); got != 20 {
		t.Errorf("EstimateL(0.2, 0.6, 5) = %d, want 20", got)
	}
}

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	vs := make([][]float32, n)
	for i := range vs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vs[i] = v
	}
	return vs
}

func TestOptimizeSRPParams(t *testing.T) {
	vs := randomVectors(30, 4, 1)
	results, err := OptimizeSRPParams(0.2, 0.8, 4, []int{3, 5}, vs)
	if err != nil {
		t.Fatalf("grid search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("result count: got %d, want 2", len(results))
	}
	for _, res := range results {
		if res.L < 1 {
			t.Errorf("K=%d: estimated L=%d, want >= 1", res.K, res.L)
		}
		// every query is a stored vector, so it at least retrieves itself
		if res.MinLen < 1 {
			t.Errorf("K=%d: min bucket length %d, want >= 1", res.K, res.MinLen)
		}
		if res.AvgLen < 1 {
			t.Errorf("K=%d: avg bucket length %v, want >= 1", res.K, res.AvgLen)
		}
		if len(res.UniqueHashValues) == 0 {
			t.Errorf("K=%d: no unique hash values recorded", res.K)
		}
	}
}

func TestOptimizeL2Params(t *testing.T) {
	vs := randomVectors(20, 3, 7)
	results, err := OptimizeL2Params(0.2, 3, []int{4}, vs)
	if err != nil {
		t.Fatalf("grid search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("result count: got %d, want 1", len(results))
	}
	if results[0].MinLen < 1 {
		t.Errorf("min bucket length %d, want >= 1 (self retrieval)", results[0].MinLen)
	}
}
