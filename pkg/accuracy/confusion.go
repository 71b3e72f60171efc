// Package accuracy computes confusion (error) matrices and the agreement statistics
// that are derived from them.
package accuracy

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// ConfusionMatrix counts (actual, predicted) label pairs.
// Rows are actual labels and columns are predicted labels, both in the order of Labels.
type ConfusionMatrix struct {
	Labels []int
	m      *mat.Dense
}

// NewConfusionMatrix builds a matrix over the sorted union of labels that appear
// in either actual or predicted.
func NewConfusionMatrix(actual, predicted []int) (*ConfusionMatrix, error) {
	if len(actual) != len(predicted) {
		return nil, fmt.Errorf("Confusion matrix needs equal length inputs, but got %v actual and %v predicted", len(actual), len(predicted))
	}
	all := append(slices.Clone(actual), predicted...)
	slices.Sort(all)
	labels := slices.Compact(all)
	cm := &ConfusionMatrix{Labels: labels}
	if len(labels) == 0 {
		return cm, nil
	}
	cm.m = mat.NewDense(len(labels), len(labels), nil)
	for i := range actual {
		r, _ := slices.BinarySearch(labels, actual[i])
		c, _ := slices.BinarySearch(labels, predicted[i])
		cm.m.Set(r, c, cm.m.At(r, c)+1)
	}
	return cm, nil
}

// Size returns the number of classes
func (c *ConfusionMatrix) Size() int {
	return len(c.Labels)
}

// At returns the number of samples of class actual that were predicted as predicted
func (c *ConfusionMatrix) At(actual, predicted int) int {
	r, ok1 := slices.BinarySearch(c.Labels, actual)
	k, ok2 := slices.BinarySearch(c.Labels, predicted)
	if !ok1 || !ok2 {
		return 0
	}
	return int(c.m.At(r, k))
}

// Counts returns the matrix as a row-major table
func (c *ConfusionMatrix) Counts() [][]int {
	n := c.Size()
	out := make([][]int, n)
	for r := 0; r < n; r++ {
		out[r] = make([]int, n)
		for k := 0; k < n; k++ {
			out[r][k] = int(c.m.At(r, k))
		}
	}
	return out
}

// Total returns the number of samples
func (c *ConfusionMatrix) Total() float64 {
	if c.m == nil {
		return 0
	}
	return mat.Sum(c.m)
}

// Accuracy is the fraction of samples on the diagonal. An empty matrix has accuracy 0.
func (c *ConfusionMatrix) Accuracy() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return mat.Trace(c.m) / total
}

// Kappa is Cohen's kappa, (po - pe) / (1 - pe).
// Returns 0 when the matrix is empty, or when chance agreement is total (pe == 1).
func (c *ConfusionMatrix) Kappa() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	po := mat.Trace(c.m) / total
	rows, cols := c.marginals()
	pe := 0.0
	for i := range rows {
		pe += rows[i] * cols[i]
	}
	pe /= total * total
	if pe >= 1 {
		return 0
	}
	return (po - pe) / (1 - pe)
}

// ProducersAccuracy returns, per class, the fraction of actual samples that were
// classified correctly. A class with no actual samples scores 0.
func (c *ConfusionMatrix) ProducersAccuracy() []float64 {
	rows, _ := c.marginals()
	return c.diagonalOver(rows)
}

// ConsumersAccuracy returns, per class, the fraction of predictions that were correct.
// A class that was never predicted scores 0.
func (c *ConfusionMatrix) ConsumersAccuracy() []float64 {
	_, cols := c.marginals()
	return c.diagonalOver(cols)
}

func (c *ConfusionMatrix) diagonalOver(totals []float64) []float64 {
	out := make([]float64, len(totals))
	for i, t := range totals {
		if t != 0 {
			out[i] = c.m.At(i, i) / t
		}
	}
	return out
}

// marginals returns row sums and column sums
func (c *ConfusionMatrix) marginals() (rows, cols []float64) {
	n := c.Size()
	rows = make([]float64, n)
	cols = make([]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = mat.Sum(c.m.RowView(i))
		cols[i] = mat.Sum(c.m.ColView(i))
	}
	return
}

// Summary is a serializable snapshot of a confusion matrix and its statistics
type Summary struct {
	Labels            []int     `json:"labels"`
	Counts            [][]int   `json:"counts"`
	Accuracy          float64   `json:"accuracy"`
	Kappa             float64   `json:"kappa"`
	ProducersAccuracy []float64 `json:"producersAccuracy"`
	ConsumersAccuracy []float64 `json:"consumersAccuracy"`
}

func (c *ConfusionMatrix) Summary() Summary {
	return Summary{
		Labels:            c.Labels,
		Counts:            c.Counts(),
		Accuracy:          c.Accuracy(),
		Kappa:             c.Kappa(),
		ProducersAccuracy: c.ProducersAccuracy(),
		ConsumersAccuracy: c.ConsumersAccuracy(),
	}
}

func (c *ConfusionMatrix) String() string {
	if c.m == nil {
		return "[]"
	}
	return fmt.Sprintf("labels %v\n%v", c.Labels, mat.Formatted(c.m, mat.Squeeze()))
}
