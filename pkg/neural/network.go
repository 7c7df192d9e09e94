package neural

import (
	"fmt"
	"math"

	"github.com/lshkit/lshkit/pkg/hash"
	"github.com/lshkit/lshkit/pkg/lsh"
)

// arena pools perceptron weight vectors. Freed slots are reused before the
// pool grows.
type arena struct {
	pool [][]float32
	free []int
}

func (a *arena) add(p []float32) int {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.pool[idx] = p
		return idx
	}
	a.pool = append(a.pool, p)
	return len(a.pool) - 1
}

// Computation is the result of one active neuron during a forward pass.
type Computation struct {
	// Layer is the weight-layer index.
	Layer int
	// J is the neuron's id, equal to its position in the layer.
	J uint32
	// Z is the pre-activation, A the activation.
	Z float32
	A float32
}

// Network is an LSH-sparsified feed-forward network. Layer i holds
// dims[i+1] perceptrons of dims[i] weights each, indexed by an SRP memory
// index over their weight vectors; a forward pass only visits the perceptrons whose bucket
// the input falls into.
type Network struct {
	layers   []*lsh.LSH[float32, int8]
	w        [][]uint32
	bias     []map[uint32]float32
	lsh2pool []map[uint32]int
	pool     arena
	acts     []Activation
	dims     []int
	lr       float32
}

// NewNetwork creates a network with the given layer dimensions and one
// activation per weight layer. nProjections and nTables configure the SRP
// index of every layer; lr is the learning rate.
func NewNetwork(dims []int, acts []Activation, nProjections, nTables int, lr float32, seed uint64) (*Network, error) {
	if len(dims) < 2 {
		return nil, fmt.Errorf("need at least an input and an output dimension")
	}
	nLayers := len(dims) - 1
	if len(acts) != nLayers {
		return nil, fmt.Errorf("got %d activations for %d layers", len(acts), nLayers)
	}

	rng := hash.NewRNG(seed)
	n := &Network{
		layers:   make([]*lsh.LSH[float32, int8], nLayers),
		w:        make([][]uint32, nLayers),
		bias:     make([]map[uint32]float32, nLayers),
		lsh2pool: make([]map[uint32]int, nLayers),
		acts:     acts,
		dims:     dims,
		lr:       lr,
	}

	for i := 0; i < nLayers; i++ {
		in, out := dims[i], dims[i+1]
		index, err := lsh.SRP(lsh.NewMem[float32, int8](nProjections, nTables, in).Seed(rng.Uint64()))
		if err != nil {
			return nil, err
		}
		n.layers[i] = index
		n.bias[i] = make(map[uint32]float32, out)
		n.lsh2pool[i] = make(map[uint32]int, out)

		scale := float32(1 / math.Sqrt(float64(in)))
		for j := 0; j < out; j++ {
			p := make([]float32, in)
			for k := range p {
				p[k] = float32(rng.NormFloat64()) * scale
			}
			id, err := index.StoreVec(p)
			if err != nil {
				return nil, err
			}
			n.lsh2pool[i][id] = n.pool.add(p)
			n.bias[i][id] = 0
			n.w[i] = append(n.w[i], id)
		}
	}
	return n, nil
}

// GetWeight returns the current weight vector of neuron j in layer i.
func (n *Network) GetWeight(i int, j uint32) []float32 {
	p := n.pool.pool[n.lsh2pool[i][j]]
	out := make([]float32, len(p))
	copy(out, p)
	return out
}

// applyLayer activates the neurons of layer i that collide with input.
func (n *Network) applyLayer(i int, input []float32) ([]Computation, error) {
	ids, err := n.layers[i].QueryBucketIDs(input)
	if err != nil {
		return nil, err
	}
	act := n.acts[i]
	comp := make([]Computation, 0, len(ids))
	for _, id := range ids {
		p := n.pool.pool[n.lsh2pool[i][id]]
		z := n.bias[i][id]
		for k := range p {
			z += input[k] * p[k]
		}
		comp = append(comp, Computation{Layer: i, J: id, Z: z, A: act.Activate(z)})
	}
	return comp, nil
}

// Forward runs a sparse forward pass and returns the active computations per
// layer.
func (n *Network) Forward(x []float32) ([][]Computation, error) {
	comps := make([][]Computation, len(n.layers))
	var err error
	if comps[0], err = n.applyLayer(0, x); err != nil {
		return nil, err
	}
	for i := 1; i < len(n.layers); i++ {
		input := makeInputNextLayer(comps[i-1], n.dims[i])
		if comps[i], err = n.applyLayer(i, input); err != nil {
			return nil, err
		}
	}
	return comps, nil
}

// Backprop updates the weights and biases of the neurons active in comps and
// rehashes every moved perceptron in its layer index.
func (n *Network) Backprop(x []float32, comps [][]Computation, yTrue []float32) error {
	nLayers := len(n.layers)

	inputs := make([][]float32, nLayers)
	inputs[0] = x
	for i := 1; i < nLayers; i++ {
		inputs[i] = makeInputNextLayer(comps[i-1], n.dims[i])
	}

	deltas := make([]map[uint32]float32, nLayers)
	loss := MSELoss{Act: n.acts[nLayers-1]}
	deltas[nLayers-1] = make(map[uint32]float32)
	for _, c := range comps[nLayers-1] {
		deltas[nLayers-1][c.J] = loss.Delta(yTrue[c.J], c.Z, c.A)
	}
	for i := nLayers - 2; i >= 0; i-- {
		deltas[i] = make(map[uint32]float32)
		for _, c := range comps[i] {
			var sum float32
			for _, next := range comps[i+1] {
				wNext := n.pool.pool[n.lsh2pool[i+1][next.J]]
				sum += deltas[i+1][next.J] * wNext[c.J]
			}
			deltas[i][c.J] = sum * n.acts[i].Prime(c.Z)
		}
	}

	for i := 0; i < nLayers; i++ {
		for _, c := range comps[i] {
			d := deltas[i][c.J]
			p := n.pool.pool[n.lsh2pool[i][c.J]]
			old := make([]float32, len(p))
			copy(old, p)
			for k := range p {
				p[k] -= n.lr * d * inputs[i][k]
			}
			n.bias[i][c.J] -= n.lr * d
			if err := n.layers[i].UpdateByIdx(c.J, p, old); err != nil {
				return err
			}
		}
	}
	return nil
}

// Loss returns the summed MSE of a prediction against the targets.
func (n *Network) Loss(yTrue []float32, comps [][]Computation) float32 {
	loss := MSELoss{Act: n.acts[len(n.acts)-1]}
	pred := makeInputNextLayer(comps[len(comps)-1], n.dims[len(n.dims)-1])
	var sum float32
	for j, y := range yTrue {
		sum += loss.Loss(y, pred[j])
	}
	return sum
}

// makeInputNextLayer scatters the sparse activations into a dense zero-filled
// layer input.
func makeInputNextLayer(comp []Computation, size int) []float32 {
	layer := make([]float32, size)
	for _, c := range comp {
		layer[c.J] = c.A
	}
	return layer
}
