package hash

import (
	"math"
	"testing"
)

func TestMIPSUnfittedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for put-hash before Fit")
		}
	}()
	h := NewMIPS[float32, int32](3, 4, 0.83, 3, 5, 1)
	h.HashVecPut([]float32{1, 2, 3})
}

func TestMIPSFit(t *testing.T) {
	h := NewMIPS[float32, int32](2, 4, 0.83, 3, 5, 1)
	h.Fit([][]float32{{3, 4}, {1, 0}})
	if math.Abs(float64(h.M)-5) > 1e-6 {
		t.Errorf("M after fit: got %v, want 5", h.M)
	}
}

func TestMIPSTransforms(t *testing.T) {
	h := NewMIPS[float64, int32](2, 4, 0.5, 2, 5, 1)
	h.Fit([][]float64{{3, 4}})

	p := h.transformPut([]float64{3, 4})
	if len(p) != 4 {
		t.Fatalf("put transform length: got %d, want dim+m = 4", len(p))
	}
	// the scaled prefix has norm U, the appended entries are powers of its
	// squared norm
	normSq := p[0]*p[0] + p[1]*p[1]
	if math.Abs(math.Sqrt(normSq)-0.5) > 1e-9 {
		t.Errorf("scaled norm: got %v, want U = 0.5", math.Sqrt(normSq))
	}
	if math.Abs(p[2]-normSq) > 1e-9 || math.Abs(p[3]-normSq*normSq) > 1e-9 {
		t.Errorf("appended put coordinates: got %v, want [%v %v]", p[2:], normSq, normSq*normSq)
	}

	q := h.transformQuery([]float64{0, 7})
	if len(q) != 4 {
		t.Fatalf("query transform length: got %d, want 4", len(q))
	}
	if math.Abs(math.Sqrt(q[0]*q[0]+q[1]*q[1])-1) > 1e-9 {
		t.Errorf("query prefix should be normalized, got %v", q[:2])
	}
	if q[2] != 0.5 || q[3] != 0.5 {
		t.Errorf("appended query coordinates: got %v, want [0.5 0.5]", q[2:])
	}
}

func TestMIPSHashesThroughL2(t *testing.T) {
	h := NewMIPS[float32, int16](3, 4, 0.83, 2, 6, 9)
	h.Fit([][]float32{{1, 2, 2}, {0, 1, 0}})

	put := h.HashVecPut([]float32{1, 2, 2})
	query := h.HashVecQuery([]float32{1, 2, 2})
	if len(put) != 6 || len(query) != 6 {
		t.Fatalf("codeword lengths: got %d and %d, want 6", len(put), len(query))
	}
}

func TestMIPSQueryDirectedProbe(t *testing.T) {
	h := NewMIPS[float32, int32](3, 4, 0.83, 2, 4, 9)
	h.Fit([][]float32{{1, 2, 2}})
	hashes, err := h.QueryDirectedProbe([]float32{1, 2, 2}, 3)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if len(hashes) != 4 {
		t.Fatalf("probe count: got %d, want 4", len(hashes))
	}
}
