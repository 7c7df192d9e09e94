package hash

import (
	"container/heap"
	"errors"
	"sort"
)

// ErrBudgetExhausted is returned when a probing budget exceeds the number of
// distinct perturbations that exist for the codeword length.
var ErrBudgetExhausted = errors.New("probing budget exceeds available perturbations")

// perturbSpace holds the query-directed probing context shared by all
// candidate states: the concatenated slot-boundary distances
// xiMin || xiPlus and their argsort.
//
// A distance index j below switchpoint means "perturb projection j by -1",
// an index at or above it means "perturb projection j-switchpoint by +1".
type perturbSpace struct {
	z           []int
	distances   []float64
	switchpoint int
}

// perturbState is one candidate in the best-first search: a sorted selection
// of indexes into z with the summed distance of the selected perturbations as
// its score.
type perturbState struct {
	selection []int
	score     float64
}

func (p *perturbSpace) initial() *perturbState {
	return &perturbState{selection: []int{0}, score: p.distances[p.z[0]]}
}

// shift replaces the last selected index m with m+1.
func (p *perturbSpace) shift(s *perturbState) (*perturbState, bool) {
	last := s.selection[len(s.selection)-1]
	if last+1 >= len(p.z) {
		return nil, false
	}
	sel := make([]int, len(s.selection))
	copy(sel, s.selection)
	sel[len(sel)-1] = last + 1
	score := s.score - p.distances[p.z[last]] + p.distances[p.z[last+1]]
	return &perturbState{selection: sel, score: score}, true
}

// expand appends m+1 to a selection ending in m.
func (p *perturbSpace) expand(s *perturbState) (*perturbState, bool) {
	last := s.selection[len(s.selection)-1]
	if last+1 >= len(p.z) {
		return nil, false
	}
	sel := make([]int, len(s.selection)+1)
	copy(sel, s.selection)
	sel[len(sel)-1] = last + 1
	return &perturbState{selection: sel, score: s.score + p.distances[p.z[last+1]]}, true
}

// genHash materializes the probing codeword of s by applying its selected
// perturbations to the original codeword.
func genHash[E Element](p *perturbSpace, s *perturbState, code []E) []E {
	h := make([]E, len(code))
	copy(h, code)
	for _, idx := range s.selection {
		zj := p.z[idx]
		if zj >= p.switchpoint {
			h[zj-p.switchpoint]++
		} else {
			h[zj]--
		}
	}
	return h
}

// stateHeap is a min-heap of perturb states ordered by score.
type stateHeap []*perturbState

func (h stateHeap) Len() int            { return len(h) }
func (h stateHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h stateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *stateHeap) Push(x any)         { *h = append(*h, x.(*perturbState)) }
func (h *stateHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	*h = old[:n-1]
	return s
}

// probeSequence runs the best-first search over perturbation sets and returns
// the original codeword followed by budget probing codewords.
func probeSequence[E Element](code []E, xiMin, xiPlus []float64, budget int) ([][]E, error) {
	space := &perturbSpace{
		distances:   append(append([]float64{}, xiMin...), xiPlus...),
		switchpoint: len(xiMin),
	}
	space.z = argsort(space.distances)

	hashes := make([][]E, 0, budget+1)
	hashes = append(hashes, code)
	if budget == 0 {
		return hashes, nil
	}

	h := &stateHeap{space.initial()}
	heap.Init(h)
	for i := 0; i < budget; i++ {
		if h.Len() == 0 {
			return nil, ErrBudgetExhausted
		}
		a := heap.Pop(h).(*perturbState)
		if s, ok := space.shift(a); ok {
			heap.Push(h, s)
		}
		if e, ok := space.expand(a); ok {
			heap.Push(h, e)
		}
		hashes = append(hashes, genHash(space, a, code))
	}
	return hashes, nil
}

// argsort returns the indexes of d ordered by ascending value.
func argsort(d []float64) []int {
	idx := make([]int, len(d))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return d[idx[i]] < d[idx[j]] })
	return idx
}
