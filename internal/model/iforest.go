// Package model provides the unsupervised anomaly scorer: an isolation
// forest over per-account feature vectors, persisted as a single artifact.
package model

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Forest is an ensemble of randomized partitioning trees. Points that
// isolate in fewer splits than the rest of the batch are anomalous.
type Forest struct {
	Trees         []*treeNode `json:"trees"`
	SampleSize    int         `json:"sampleSize"`
	Contamination float64     `json:"contamination"`
	Seed          int64       `json:"seed"`
	Dim           int         `json:"dim"`
	TrainedAt     time.Time   `json:"trainedAt"`
}

// treeNode is one node of an isolation tree. Leaves carry the size of the
// unsplit sample so path lengths can be adjusted with the average-depth
// estimate c(n).
type treeNode struct {
	SplitAttr int       `json:"a,omitempty"`
	SplitVal  float64   `json:"v,omitempty"`
	Left      *treeNode `json:"l,omitempty"`
	Right     *treeNode `json:"r,omitempty"`
	Size      int       `json:"s,omitempty"`
}

func (n *treeNode) leaf() bool {
	return n.Left == nil && n.Right == nil
}

// NewForest creates an unfitted forest. The seed fixes the random source
// so repeated fits over the same matrix produce identical trees.
func NewForest(trees, sampleSize int, contamination float64, seed int64) *Forest {
	if trees <= 0 {
		trees = 100
	}
	if sampleSize <= 0 {
		sampleSize = 256
	}
	return &Forest{
		Trees:         make([]*treeNode, 0, trees),
		SampleSize:    sampleSize,
		Contamination: contamination,
		Seed:          seed,
	}
}

// Fit builds the ensemble over the feature matrix.
func (f *Forest) Fit(x [][]float64) error {
	if len(x) == 0 {
		return fmt.Errorf("cannot fit on an empty feature matrix")
	}

	f.Dim = len(x[0])
	rng := rand.New(rand.NewSource(f.Seed))

	sample := f.SampleSize
	if sample > len(x) {
		sample = len(x)
	}
	// Persist the subsample size actually used; DecisionFunction
	// normalizes path lengths with c(sample), not the configured cap.
	f.SampleSize = sample
	heightLimit := int(math.Ceil(math.Log2(float64(sample) + 1)))

	trees := cap(f.Trees)
	if trees == 0 {
		trees = 100
	}
	f.Trees = f.Trees[:0]
	for i := 0; i < trees; i++ {
		subset := subsample(x, sample, rng)
		f.Trees = append(f.Trees, buildTree(subset, 0, heightLimit, rng))
	}
	f.TrainedAt = time.Now().UTC()
	return nil
}

// DecisionFunction returns one raw anomaly measure per input row.
// Lower values are more anomalous, consistent with shorter isolation
// paths. Values lie in (-0.5, 0.5).
func (f *Forest) DecisionFunction(x [][]float64) []float64 {
	scores := make([]float64, len(x))
	norm := avgPathLength(f.SampleSize)
	if norm <= 0 {
		norm = 1
	}

	for i, point := range x {
		var total float64
		for _, tree := range f.Trees {
			total += pathLength(tree, point, 0)
		}
		mean := total / float64(len(f.Trees))
		anomaly := math.Pow(2, -mean/norm)
		scores[i] = 0.5 - anomaly
	}
	return scores
}

// buildTree grows an isolation tree by recursive random splits until the
// height limit, a single point, or an unsplittable region.
func buildTree(x [][]float64, depth, limit int, rng *rand.Rand) *treeNode {
	if depth >= limit || len(x) <= 1 {
		return &treeNode{Size: len(x)}
	}

	dim := len(x[0])
	attr := rng.Intn(dim)

	lo, hi := x[0][attr], x[0][attr]
	for _, point := range x {
		if point[attr] < lo {
			lo = point[attr]
		}
		if point[attr] > hi {
			hi = point[attr]
		}
	}
	if lo == hi {
		return &treeNode{Size: len(x)}
	}

	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, point := range x {
		if point[attr] < split {
			left = append(left, point)
		} else {
			right = append(right, point)
		}
	}

	return &treeNode{
		SplitAttr: attr,
		SplitVal:  split,
		Left:      buildTree(left, depth+1, limit, rng),
		Right:     buildTree(right, depth+1, limit, rng),
	}
}

func pathLength(node *treeNode, point []float64, depth int) float64 {
	if node.leaf() {
		return float64(depth) + avgPathLength(node.Size)
	}
	if node.SplitAttr < len(point) && point[node.SplitAttr] < node.SplitVal {
		return pathLength(node.Left, point, depth+1)
	}
	return pathLength(node.Right, point, depth+1)
}

// avgPathLength is c(n): the average path length of an unsuccessful BST
// search over n points, used to normalize isolation depths.
func avgPathLength(n int) float64 {
	switch {
	case n > 2:
		fn := float64(n)
		return 2*(math.Log(fn-1)+0.5772156649) - 2*(fn-1)/fn
	case n == 2:
		return 1
	default:
		return 0
	}
}

func subsample(x [][]float64, size int, rng *rand.Rand) [][]float64 {
	if size >= len(x) {
		return x
	}
	idx := rng.Perm(len(x))[:size]
	out := make([][]float64, size)
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}
