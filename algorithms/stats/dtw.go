package stats

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
)

// DTWAlignment aligns chroma sequences with dynamic time warping using the
// symmetric three-neighbour step pattern and 1 - cosine similarity as the
// local cost.
type DTWAlignment struct{}

// PrefixResult is the outcome of aligning a query against the leading part
// of a reference.
type PrefixResult struct {
	PrefixLen int     `json:"prefix_len"` // j*: reference frames consumed
	Offset    int     `json:"offset"`     // j* - len(query)
	Cost      float64 `json:"cost"`       // D[K][j*]
}

// NewDTWAlignment creates a new DTW alignment instance
func NewDTWAlignment() *DTWAlignment {
	return &DTWAlignment{}
}

// CosineDistance is 1 - cosine similarity
func CosineDistance(a, b []float64) float64 {
	return 1 - common.CosineSimilarity(a, b)
}

// PrefixAlign finds the prefix length j* of reference whose DTW cost against
// all of query is smallest. Ties go to the j with the smallest |j - K| where
// K = len(query), then to the smaller j. The signed offset j* - K says how
// many frames reference runs ahead of (positive) or behind query.
func (dtw *DTWAlignment) PrefixAlign(query, reference [][]float64) (*PrefixResult, error) {
	if len(query) == 0 || len(reference) == 0 {
		return nil, fmt.Errorf("empty sequences provided")
	}

	k := len(query)
	m := len(reference)

	cost := make([][]float64, k+1)
	for i := range cost {
		cost[i] = make([]float64, m+1)
		for j := range cost[i] {
			cost[i][j] = math.Inf(1)
		}
	}
	cost[0][0] = 0

	for i := 1; i <= k; i++ {
		for j := 1; j <= m; j++ {
			local := CosineDistance(query[i-1], reference[j-1])
			best := math.Min(math.Min(cost[i-1][j], cost[i][j-1]), cost[i-1][j-1])
			cost[i][j] = local + best
		}
	}

	bestJ := -1
	for j := 1; j <= m; j++ {
		c := cost[k][j]
		if math.IsInf(c, 1) {
			continue
		}
		if bestJ < 0 || c < cost[k][bestJ]-1e-12 {
			bestJ = j
			continue
		}
		if math.Abs(c-cost[k][bestJ]) <= 1e-12 && abs(j-k) < abs(bestJ-k) {
			bestJ = j
		}
	}
	if bestJ < 0 {
		return nil, fmt.Errorf("no finite alignment cost")
	}

	return &PrefixResult{
		PrefixLen: bestJ,
		Offset:    bestJ - k,
		Cost:      cost[k][bestJ],
	}, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
