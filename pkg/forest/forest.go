// Package forest is a Random Forest classifier.
// Trees are CART trees split on Gini impurity, each grown on a bootstrap sample of the
// training rows, considering a random subset of the predictors at every split.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

var ErrNoTrainingData = errors.New("No training data")
var ErrInvalidShape = errors.New("Training data has inconsistent dimensions")

// Params controls training
type Params struct {
	NumTrees          int     `json:"numTrees"`
	VariablesPerSplit int     `json:"variablesPerSplit"` // 0 = sqrt(number of predictors)
	MinLeafPopulation int     `json:"minLeafPopulation"`
	BagFraction       float64 `json:"bagFraction"`
	MaxNodes          int     `json:"maxNodes"` // 0 = unlimited
	Seed              uint64  `json:"seed"`
}

func DefaultParams() Params {
	return Params{
		NumTrees:          300,
		VariablesPerSplit: 5,
		MinLeafPopulation: 1,
		BagFraction:       0.5,
	}
}

// Node of a decision tree. Leaves have Feature = -1.
// Samples with X[Feature] <= Threshold go left.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Class     int     `json:"c"` // index into Forest.Labels
}

// Tree is a flattened decision tree. The root is Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is a trained classifier. It is read-only after training, so it is safe
// to call Predict from many goroutines.
type Forest struct {
	NumFeatures int     `json:"numFeatures"`
	Labels      []int   `json:"labels"` // sorted, distinct
	Trees       []*Tree `json:"trees"`
}

// Train builds a forest from the feature matrix X (one row per sample) and labels y.
func Train(ctx context.Context, X [][]float64, y []int, params Params) (*Forest, error) {
	if len(X) == 0 {
		return nil, ErrNoTrainingData
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %v rows but %v labels", ErrInvalidShape, len(X), len(y))
	}
	nf := len(X[0])
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("%w: row %v has %v values, expected %v", ErrInvalidShape, i, len(row), nf)
		}
	}
	if nf == 0 {
		return nil, fmt.Errorf("%w: no predictors", ErrInvalidShape)
	}
	if params.NumTrees < 1 {
		params.NumTrees = 1
	}
	if params.VariablesPerSplit <= 0 {
		params.VariablesPerSplit = int(math.Floor(math.Sqrt(float64(nf))))
	}
	params.VariablesPerSplit = min(max(params.VariablesPerSplit, 1), nf)
	params.MinLeafPopulation = max(params.MinLeafPopulation, 1)
	if params.BagFraction <= 0 || params.BagFraction > 1 {
		params.BagFraction = 1
	}

	f := &Forest{
		NumFeatures: nf,
		Labels:      slices.Compact(slices.Sorted(slices.Values(y))),
		Trees:       make([]*Tree, params.NumTrees),
	}
	classes := make([]int, len(y))
	for i, label := range y {
		classes[i], _ = slices.BinarySearch(f.Labels, label)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))
	for t := range f.Trees {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b := &builder{
				X:          X,
				y:          classes,
				numClasses: len(f.Labels),
				params:     params,
				rng:        rand.New(rand.NewPCG(params.Seed, uint64(t))),
				tree:       &Tree{},
			}
			b.build(b.bootstrap())
			f.Trees[t] = b.tree
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

// Predict returns the majority vote of all trees. Ties go to the smallest label.
func (f *Forest) Predict(x []float64) int {
	votes := make([]int, len(f.Labels))
	return f.Labels[f.vote(x, votes)]
}

// PredictAll classifies every row of X
func (f *Forest) PredictAll(X [][]float64) []int {
	votes := make([]int, len(f.Labels))
	out := make([]int, len(X))
	for i, x := range X {
		clear(votes)
		out[i] = f.Labels[f.vote(x, votes)]
	}
	return out
}

func (f *Forest) vote(x []float64, votes []int) int {
	for _, t := range f.Trees {
		votes[t.classify(x)]++
	}
	best := 0
	for c := 1; c < len(votes); c++ {
		if votes[c] > votes[best] {
			best = c
		}
	}
	return best
}

func (t *Tree) classify(x []float64) int {
	n := &t.Nodes[0]
	for n.Feature >= 0 {
		if x[n.Feature] <= n.Threshold {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
	}
	return n.Class
}
