package anomaly

import (
	"math"
	"math/rand"
)

const (
	// subSampleSize is the per-tree training subsample, the standard 256 used
	// for isolation forests.
	subSampleSize = 256
)

// isoNode is one node of a randomized binary partitioning tree. Leaves carry
// the number of training points that settled there.
type isoNode struct {
	splitFeature int
	splitValue   float64
	left, right  *isoNode
	size         int
}

func (n *isoNode) isLeaf() bool { return n.left == nil && n.right == nil }

// Forest is an ensemble of randomized partitioning trees. Points isolated in
// few splits score as more anomalous.
type Forest struct {
	trees      []*isoNode
	sampleSize int
}

// NewForest trains a forest of treeCount trees over the row-major feature
// matrix. rng drives subsampling and split selection so training is
// reproducible for a fixed seed.
func NewForest(data [][]float64, treeCount int, rng *rand.Rand) *Forest {
	if treeCount < 1 {
		treeCount = 1
	}
	sample := subSampleSize
	if sample > len(data) {
		sample = len(data)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sample) + 1)))

	f := &Forest{trees: make([]*isoNode, 0, treeCount), sampleSize: sample}
	for t := 0; t < treeCount; t++ {
		subset := make([][]float64, sample)
		for i := range subset {
			subset[i] = data[rng.Intn(len(data))]
		}
		f.trees = append(f.trees, buildTree(subset, 0, maxDepth, rng))
	}
	return f
}

func buildTree(data [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if depth >= maxDepth || len(data) <= 1 {
		return &isoNode{size: len(data)}
	}

	dims := len(data[0])
	// Pick a feature with spread; give up after a few attempts on constant
	// data.
	var feature int
	var lo, hi float64
	found := false
	for attempt := 0; attempt < dims; attempt++ {
		feature = rng.Intn(dims)
		lo, hi = data[0][feature], data[0][feature]
		for _, row := range data[1:] {
			if row[feature] < lo {
				lo = row[feature]
			}
			if row[feature] > hi {
				hi = row[feature]
			}
		}
		if hi > lo {
			found = true
			break
		}
	}
	if !found {
		return &isoNode{size: len(data)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{size: len(data)}
	}

	return &isoNode{
		splitFeature: feature,
		splitValue:   split,
		left:         buildTree(left, depth+1, maxDepth, rng),
		right:        buildTree(right, depth+1, maxDepth, rng),
	}
}

// pathLength walks the point down a tree, adding the usual adjustment for
// unresolved leaves.
func pathLength(node *isoNode, point []float64, depth float64) float64 {
	if node.isLeaf() {
		return depth + averagePathLength(node.size)
	}
	if point[node.splitFeature] < node.splitValue {
		return pathLength(node.left, point, depth+1)
	}
	return pathLength(node.right, point, depth+1)
}

// averagePathLength is c(n): the expected path length of an unsuccessful BST
// search among n points.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649 // Euler-Mascheroni
	return 2*h - 2*float64(n-1)/float64(n)
}

// AnomalyMeasure returns the classic isolation score in (0, 1]; higher is
// more anomalous.
func (f *Forest) AnomalyMeasure(point []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, point, 0)
	}
	avg := total / float64(len(f.trees))
	c := averagePathLength(f.sampleSize)
	if c == 0 {
		return 0
	}
	return math.Pow(2, -avg/c)
}

// DecisionScore converts the isolation measure into a signed score where
// LOWER means MORE anomalous and zero is the natural midpoint.
func (f *Forest) DecisionScore(point []float64) float64 {
	return 0.5 - f.AnomalyMeasure(point)
}
