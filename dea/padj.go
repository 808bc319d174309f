package dea

import (
	"math"
	"sort"
)

// AdjustBH adjusts p-values for multiple testing with the Benjamini-Hochberg procedure. NaN
// p-values are left as NaN and do not count towards the number of tests.
func AdjustBH(p []float64) []float64 {
	adj := make([]float64, len(p))
	idx := make([]int, 0, len(p))
	for i, v := range p {
		if math.IsNaN(v) {
			adj[i] = math.NaN()
			continue
		}
		idx = append(idx, i)
	}
	// Largest p-value first.
	sort.SliceStable(idx, func(i, j int) bool {
		return p[idx[i]] > p[idx[j]]
	})

	m := float64(len(idx))
	min := 1.0
	for k, i := range idx {
		rank := m - float64(k)
		v := p[i] * m / rank
		if v < min {
			min = v
		}
		adj[i] = min
	}
	return adj
}
