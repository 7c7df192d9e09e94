package lsh

import (
	"github.com/lshkit/lshkit/pkg/hash"
)

// multiProbeBucketUnion widens the query to nearby codewords within the
// probing budget. The strategy follows the capability of the hasher family:
// query-directed probing when available (L2, MIPS), step-wise bit flips
// otherwise (SRP). Families with neither capability fall back to the single
// original bucket per table.
func (l *LSH[N, E]) multiProbeBucketUnion(v []N) (map[uint32]struct{}, error) {
	union := make(map[uint32]struct{})

	if _, ok := l.hashers[0].(hash.QueryDirectedProber[N, E]); ok {
		for t, h := range l.hashers {
			qdp := h.(hash.QueryDirectedProber[N, E])
			codes, err := qdp.QueryDirectedProbe(v, l.probeBudget)
			if err != nil {
				return nil, wrapError("multi_probe", err)
			}
			for _, code := range codes {
				if err := l.processBucket(code, t, union); err != nil {
					return nil, wrapError("multi_probe", err)
				}
			}
		}
		return union, nil
	}

	for t, h := range l.hashers {
		code := h.HashVecQuery(v)
		if err := l.processBucket(code, t, union); err != nil {
			return nil, wrapError("multi_probe", err)
		}
		swp, ok := h.(hash.StepWiseProber[E])
		if !ok {
			continue
		}
		for _, probe := range swp.StepWiseProbe(code, l.probeBudget) {
			if err := l.processBucket(probe, t, union); err != nil {
				return nil, wrapError("multi_probe", err)
			}
		}
	}
	return union, nil
}
