package forest

import (
	"math/rand/v2"
	"slices"

	"github.com/cyclopcam/landcover/pkg/stats"
)

// builder grows a single tree
type builder struct {
	X          [][]float64
	y          []int // class indices
	numClasses int
	params     Params
	rng        *rand.Rand
	tree       *Tree
}

// bootstrap draws BagFraction * N rows, with replacement
func (b *builder) bootstrap() []int {
	n := max(1, int(b.params.BagFraction*float64(len(b.X))))
	idx := make([]int, n)
	for i := range idx {
		idx[i] = b.rng.IntN(len(b.X))
	}
	return idx
}

// build grows the subtree for the rows in idx, and returns the index of its root node.
// idx is reordered.
func (b *builder) build(idx []int) int {
	id := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: -1, Class: b.majority(idx)})

	if len(idx) < 2*b.params.MinLeafPopulation || b.isPure(idx) {
		return id
	}
	// A split adds two nodes
	if b.params.MaxNodes > 0 && len(b.tree.Nodes)+2 > b.params.MaxNodes {
		return id
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	// Partition idx into [left | right]
	split := 0
	for i, row := range idx {
		if b.X[row][feature] <= threshold {
			idx[i], idx[split] = idx[split], idx[i]
			split++
		}
	}
	left := b.build(idx[:split])
	right := b.build(idx[split:])
	// Nodes may have been reallocated by the recursive calls
	n := &b.tree.Nodes[id]
	n.Feature = feature
	n.Threshold = threshold
	n.Left = left
	n.Right = right
	return id
}

func (b *builder) majority(idx []int) int {
	classes := make([]int, len(idx))
	for i, row := range idx {
		classes[i] = b.y[row]
	}
	mode, _ := stats.Mode(classes)
	return mode
}

func (b *builder) isPure(idx []int) bool {
	for _, row := range idx[1:] {
		if b.y[row] != b.y[idx[0]] {
			return false
		}
	}
	return true
}

// bestSplit searches a random subset of the predictors for the threshold that
// minimizes the weighted Gini impurity of the two children.
// Returns false if no predictor can separate the rows while honoring MinLeafPopulation.
func (b *builder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	nf := len(b.X[0])
	candidates := b.rng.Perm(nf)[:b.params.VariablesPerSplit]
	minLeaf := b.params.MinLeafPopulation

	sorted := slices.Clone(idx)
	total := make([]int, b.numClasses)
	for _, row := range idx {
		total[b.y[row]]++
	}
	left := make([]int, b.numClasses)
	right := make([]int, b.numClasses)
	bestScore := 0.0

	for _, f := range candidates {
		slices.SortFunc(sorted, func(i, j int) int {
			if b.X[i][f] < b.X[j][f] {
				return -1
			} else if b.X[i][f] > b.X[j][f] {
				return 1
			}
			return 0
		})
		clear(left)
		copy(right, total)
		n := len(sorted)
		for i := 0; i < n-1; i++ {
			c := b.y[sorted[i]]
			left[c]++
			right[c]--
			nl := i + 1
			nr := n - nl
			v0 := b.X[sorted[i]][f]
			v1 := b.X[sorted[i+1]][f]
			if v0 == v1 || nl < minLeaf || nr < minLeaf {
				continue
			}
			score := weightedGini(left, nl) + weightedGini(right, nr)
			if !ok || score < bestScore {
				ok = true
				bestScore = score
				feature = f
				threshold = v0 + (v1-v0)/2
				if threshold >= v1 {
					threshold = v0
				}
			}
		}
	}
	return
}

// weightedGini returns n * Gini impurity of the class counts
func weightedGini(counts []int, n int) float64 {
	sumSq := 0.0
	for _, c := range counts {
		sumSq += float64(c) * float64(c)
	}
	return float64(n) - sumSq/float64(n)
}
