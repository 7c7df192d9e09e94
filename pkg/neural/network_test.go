package neural

import (
	"math"
	"testing"
)

func getModel(t *testing.T, outputSize int) *Network {
	t.Helper()
	dims := []int{2, 3, outputSize}
	acts := []Activation{ReLU, Identity}
	// a single projection and many hash tables make every neuron active with
	// near certainty
	n, err := NewNetwork(dims, acts, 1, 100, 0.01, 1)
	if err != nil {
		t.Fatalf("failed to build network: %v", err)
	}
	return n
}

func TestShapes(t *testing.T) {
	n := getModel(t, 4)
	if len(n.w[0]) != 3 {
		t.Errorf("layer 0 width: got %d, want 3", len(n.w[0]))
	}
	if len(n.w[1]) != 4 {
		t.Errorf("layer 1 width: got %d, want 4", len(n.w[1]))
	}
}

// setWeight replaces a perceptron's weight vector and rehashes it in its
// layer index, so bucket membership reflects the new weights.
func setWeight(t *testing.T, n *Network, layer int, j uint32, w []float32) {
	t.Helper()
	old := n.GetWeight(layer, j)
	copy(n.pool.pool[n.lsh2pool[layer][j]], w)
	if err := n.layers[layer].UpdateByIdx(j, w, old); err != nil {
		t.Fatalf("rehash of neuron (%d, %d) failed: %v", layer, j, err)
	}
}

func TestFlow(t *testing.T) {
	dims := []int{2, 3, 2}
	acts := []Activation{Identity, Identity}
	n, err := NewNetwork(dims, acts, 1, 100, 0.01, 1)
	if err != nil {
		t.Fatalf("failed to build network: %v", err)
	}

	// weights well within a quarter turn of their layer inputs, so every
	// neuron lands in its input's bucket in some table
	x := []float32{1, -1}
	setWeight(t, n, 0, 0, []float32{1, -1})
	setWeight(t, n, 0, 1, []float32{1, 0})
	setWeight(t, n, 0, 2, []float32{0, -1})
	setWeight(t, n, 1, 0, []float32{1, 1, 1})
	setWeight(t, n, 1, 1, []float32{1, 0, 1})

	comps, err := n.Forward(x)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if len(comps[len(comps)-1]) == 0 {
		t.Fatal("no active output neurons")
	}

	before := n.GetWeight(0, 0)
	if err := n.Backprop(x, comps, []float32{0, 1}); err != nil {
		t.Fatalf("backprop failed: %v", err)
	}
	after := n.GetWeight(0, 0)
	if before[0] == after[0] {
		t.Error("first-layer weight (0, 0) unchanged by backprop")
	}
}

func TestForwardPreActivations(t *testing.T) {
	dims := []int{2, 3, 2}
	acts := []Activation{ReLU, Identity}
	n, err := NewNetwork(dims, acts, 1, 200, 0.01, 1)
	if err != nil {
		t.Fatalf("failed to build network: %v", err)
	}

	x := []float32{1, -1} //                          z          a
	setWeight(t, n, 0, 0, []float32{1, -1}) //  1 + 1 = 2        2
	setWeight(t, n, 0, 1, []float32{2, 2})  //  2 - 2 = 0        0
	setWeight(t, n, 0, 2, []float32{4, 3})  //  4 - 3 = 1        1

	// second layer sees the dense input [2, 0, 1]
	setWeight(t, n, 1, 0, []float32{1, 0.5, 0.5})   // 2 + 0 + 0.5 = 2.5
	setWeight(t, n, 1, 1, []float32{0.5, -0.2, 0.2}) // 1 + 0 + 0.2 = 1.2

	comps, err := n.Forward(x)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	wantLayer1 := map[uint32]float32{0: 2, 1: 0, 2: 1}
	if len(comps[0]) != 3 {
		t.Fatalf("layer 0 active neurons: got %d, want 3", len(comps[0]))
	}
	for _, c := range comps[0] {
		want, ok := wantLayer1[c.J]
		if !ok {
			t.Fatalf("unexpected neuron %d in layer 0", c.J)
		}
		if math.Abs(float64(c.Z-want)) > 1e-6 {
			t.Errorf("layer 0 neuron %d: z = %v, want %v", c.J, c.Z, want)
		}
	}

	wantLayer2 := map[uint32]float32{0: 2.5, 1: 1.2}
	if len(comps[1]) != 2 {
		t.Fatalf("layer 1 active neurons: got %d, want 2", len(comps[1]))
	}
	for _, c := range comps[1] {
		want, ok := wantLayer2[c.J]
		if !ok {
			t.Fatalf("unexpected neuron %d in layer 1", c.J)
		}
		if math.Abs(float64(c.Z-want)) > 1e-6 {
			t.Errorf("layer 1 neuron %d: z = %v, want %v", c.J, c.Z, want)
		}
	}
}

func TestLossDecreases(t *testing.T) {
	dims := []int{2, 4, 2}
	acts := []Activation{Identity, Identity}
	n, err := NewNetwork(dims, acts, 1, 100, 0.05, 3)
	if err != nil {
		t.Fatalf("failed to build network: %v", err)
	}

	x := []float32{0.5, -0.25}
	y := []float32{0, 1}

	comps, err := n.Forward(x)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	before := n.Loss(y, comps)
	for i := 0; i < 20; i++ {
		if err := n.Backprop(x, comps, y); err != nil {
			t.Fatalf("backprop failed: %v", err)
		}
		if comps, err = n.Forward(x); err != nil {
			t.Fatalf("forward failed: %v", err)
		}
	}
	after := n.Loss(y, comps)
	if after >= before {
		t.Errorf("loss did not decrease: before %v, after %v", before, after)
	}
}

func TestActivations(t *testing.T) {
	if ReLU.Activate(-2) != 0 || ReLU.Activate(3) != 3 {
		t.Error("ReLU misbehaves")
	}
	if ReLU.Prime(-2) != 0 || ReLU.Prime(3) != 1 {
		t.Error("ReLU derivative misbehaves")
	}
	if Identity.Activate(-2) != -2 || Identity.Prime(-2) != 1 {
		t.Error("Identity misbehaves")
	}
}

func TestMSELoss(t *testing.T) {
	l := MSELoss{Act: Identity}
	if l.Loss(1, 3) != 4 {
		t.Errorf("Loss(1, 3) = %v, want 4", l.Loss(1, 3))
	}
	if l.Prime(1, 3) != 2 {
		t.Errorf("Prime(1, 3) = %v, want 2", l.Prime(1, 3))
	}
	if l.Delta(1, 3, 3) != 2 {
		t.Errorf("Delta(1, 3, 3) = %v, want 2", l.Delta(1, 3, 3))
	}
}
