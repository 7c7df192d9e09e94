package hash

import (
	"math"
	"testing"
)

func TestPerturbStateArithmetic(t *testing.T) {
	space := &perturbSpace{
		distances:   []float64{1, 0.1, 3, 2, 9, 4, 0.8, 5},
		z:           []int{1, 6, 0, 3, 2, 5, 7, 4},
		switchpoint: 4,
	}
	code := []int32{0, 0, 0, 0}

	a0 := space.initial()
	if len(a0.selection) != 1 || a0.selection[0] != 0 {
		t.Fatalf("initial selection: got %v, want [0]", a0.selection)
	}
	if math.Abs(a0.score-0.1) > 1e-12 {
		t.Errorf("initial score: got %v, want 0.1", a0.score)
	}
	if got := genHash(space, a0, code); !eqCode(got, []int32{0, -1, 0, 0}) {
		t.Errorf("initial hash: got %v, want [0 -1 0 0]", got)
	}

	ae, ok := space.expand(a0)
	if !ok {
		t.Fatal("expand out of range")
	}
	if !eqInts(ae.selection, []int{0, 1}) {
		t.Errorf("expanded selection: got %v, want [0 1]", ae.selection)
	}
	if math.Abs(ae.score-0.9) > 1e-12 {
		t.Errorf("expanded score: got %v, want 0.9", ae.score)
	}
	if got := genHash(space, ae, code); !eqCode(got, []int32{0, -1, 1, 0}) {
		t.Errorf("expanded hash: got %v, want [0 -1 1 0]", got)
	}

	as, ok := space.shift(a0)
	if !ok {
		t.Fatal("shift out of range")
	}
	if !eqInts(as.selection, []int{1}) {
		t.Errorf("shifted selection: got %v, want [1]", as.selection)
	}
	if math.Abs(as.score-0.8) > 1e-12 {
		t.Errorf("shifted score: got %v, want 0.8", as.score)
	}
	if got := genHash(space, as, code); !eqCode(got, []int32{0, 0, 1, 0}) {
		t.Errorf("shifted hash: got %v, want [0 0 1 0]", got)
	}
}

func TestPerturbSuccessorsOutOfRange(t *testing.T) {
	space := &perturbSpace{
		distances:   []float64{0.5, 1.5},
		z:           []int{0, 1},
		switchpoint: 1,
	}
	last := &perturbState{selection: []int{1}, score: 1.5}
	if _, ok := space.shift(last); ok {
		t.Error("shift past the end of z should be discarded")
	}
	if _, ok := space.expand(last); ok {
		t.Error("expand past the end of z should be discarded")
	}
}

func TestProbeSequenceExhaustion(t *testing.T) {
	// a codeword of length 1 has two distance entries and three reachable
	// states; a larger budget must surface an error
	code := []int32{0}
	xiMin := []float64{1}
	xiPlus := []float64{3}
	if _, err := probeSequence(code, xiMin, xiPlus, 2); err != nil {
		t.Fatalf("budget within range should succeed: %v", err)
	}
	if _, err := probeSequence(code, xiMin, xiPlus, 64); err == nil {
		t.Error("expected budget exhaustion error")
	}
}

func TestProbeSequenceOrdered(t *testing.T) {
	code := []int32{0, 0, 0}
	xiMin := []float64{0.3, 2.0, 0.9}
	xiPlus := []float64{3.7, 2.0, 3.1}
	hashes, err := probeSequence(code, xiMin, xiPlus, 5)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	// cheapest single perturbation first: projection 0 by -1 (distance 0.3)
	if !eqCode(hashes[1], []int32{-1, 0, 0}) {
		t.Errorf("first perturbation: got %v, want [-1 0 0]", hashes[1])
	}
	// then projection 2 by -1 (distance 0.9)
	if !eqCode(hashes[2], []int32{0, 0, -1}) {
		t.Errorf("second perturbation: got %v, want [0 0 -1]", hashes[2])
	}
}

func eqCode(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func eqInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
