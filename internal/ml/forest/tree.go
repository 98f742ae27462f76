package forest

import (
	"math/rand"
	"sort"
)

// leaf marks a terminal node
const leaf = -1

// Node is one vertex of a regression tree stored in a flat slice.
// Internal nodes route x[Feature] <= Threshold to Left, else Right.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a CART regression tree
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree from the root
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return 0
		}
		l, r := walk(n.Left), walk(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

// treeBuilder grows one tree; it is owned by a single goroutine
type treeBuilder struct {
	x           [][]float64
	y           []float64
	maxDepth    int
	minLeaf     int
	maxFeatures int
	rng         *rand.Rand
	nodes       []Node
}

func (b *treeBuilder) build(rows []int) Tree {
	b.nodes = b.nodes[:0]
	b.grow(rows, 0)
	return Tree{Nodes: b.nodes}
}

// grow appends the subtree for rows and returns its root index
func (b *treeBuilder) grow(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leaf, Value: b.meanOf(rows)})

	if depth >= b.maxDepth || len(rows) < 2*b.minLeaf {
		return idx
	}

	feature, threshold, ok := b.bestSplit(rows)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, r := range rows {
		if b.x[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = threshold
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

// bestSplit searches a random subset of features for the split with the
// lowest summed squared error of the two children.
func (b *treeBuilder) bestSplit(rows []int) (int, float64, bool) {
	n := len(rows)
	var total, totalSq float64
	for _, r := range rows {
		total += b.y[r]
		totalSq += b.y[r] * b.y[r]
	}
	bestScore := totalSq - total*total/float64(n)
	if bestScore <= 1e-12 {
		return 0, 0, false
	}

	bestFeature, bestThreshold, found := 0, 0.0, false
	sorted := make([]int, n)
	features := b.rng.Perm(len(b.x[rows[0]]))[:b.maxFeatures]

	for _, f := range features {
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })

		var leftSum, leftSq float64
		for i := 0; i < n-1; i++ {
			v := b.y[sorted[i]]
			leftSum += v
			leftSq += v * v

			nl := i + 1
			nr := n - nl
			if nl < b.minLeaf || nr < b.minLeaf {
				continue
			}
			cur, next := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
			if cur == next {
				continue
			}

			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			score := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if score < bestScore-1e-12 {
				bestScore = score
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				found = true
			}
		}
	}

	return bestFeature, bestThreshold, found
}

func (b *treeBuilder) meanOf(rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	var s float64
	for _, r := range rows {
		s += b.y[r]
	}
	return s / float64(len(rows))
}
