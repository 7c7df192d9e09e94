package hash

// SignRandomProjections hashes for cosine similarity, also known as SimHash.
// Each of the K codeword bits is the sign of the projection of the input on a
// random hyperplane, encoded as 0 or 1.
type SignRandomProjections[N Float, E Element] struct {
	// Planes holds K random hyperplanes of the input dimension.
	Planes [][]N
}

// NewSignRandomProjections samples k Gaussian hyperplanes of dimension dim.
func NewSignRandomProjections[N Float, E Element](k, dim int, seed uint64) *SignRandomProjections[N, E] {
	rng := NewRNG(seed)
	planes := make([][]N, k)
	for i := range planes {
		row := make([]N, dim)
		for j := range row {
			row[j] = N(rng.NormFloat64())
		}
		planes[i] = row
	}
	return &SignRandomProjections[N, E]{Planes: planes}
}

func (s *SignRandomProjections[N, E]) hashVec(v []N) []E {
	code := make([]E, len(s.Planes))
	for i, row := range s.Planes {
		var dot N
		for j := range row {
			dot += row[j] * v[j]
		}
		if dot > 0 {
			code[i] = 1
		}
	}
	return code
}

// HashVecQuery implements Hasher.
func (s *SignRandomProjections[N, E]) HashVecQuery(v []N) []E {
	return s.hashVec(v)
}

// HashVecPut implements Hasher.
func (s *SignRandomProjections[N, E]) HashVecPut(v []N) []E {
	return s.hashVec(v)
}

// StepWiseProbe enumerates perturbed codewords in order of increasing Hamming
// weight: first all single-bit flips, then all two-bit flips and so on,
// truncated to budget. The original codeword is not included.
func (s *SignRandomProjections[N, E]) StepWiseProbe(code []E, budget int) [][]E {
	k := len(code)
	probes := make([][]E, 0, budget)
	for weight := 1; weight <= k && len(probes) < budget; weight++ {
		combinations(k, weight, func(idx []int) bool {
			h := make([]E, k)
			copy(h, code)
			for _, i := range idx {
				h[i] ^= 1
			}
			probes = append(probes, h)
			return len(probes) < budget
		})
	}
	return probes
}

// combinations calls fn with every k-subset of [0, n) in lexicographic order
// until fn returns false.
func combinations(n, k int, fn func(idx []int) bool) {
	if k > n || k <= 0 {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if !fn(idx) {
			return
		}
		// advance the rightmost index that still has room
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
