package stats

import (
	"math"
	"slices"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Float | constraints.Integer
}

// Returns (mean, variance) of the given samples.
// The variance is the population variance (divide by N).
func MeanVar[T Number](samples []T) (float64, float64) {
	mean := Mean(samples)
	variance := Variance(samples, mean)
	return mean, variance
}

// Returns the mean of the given samples, or NaN if samples is empty.
func Mean[T Number](samples []T) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range samples {
		sum += float64(v)
	}
	return sum / float64(len(samples))
}

// Returns the population variance of the given samples.
func Variance[T Number](samples []T, mean float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range samples {
		diff := float64(v) - mean
		sum += diff * diff
	}
	return sum / float64(len(samples))
}

// Returns the population standard deviation of the given samples.
func StdDev[T Number](samples []T) float64 {
	_, v := MeanVar(samples)
	return math.Sqrt(v)
}

// Median returns the middle value of samples, or the mean of the two middle values
// when len(samples) is even. Returns NaN for empty input.
// The input slice is reordered.
func Median[T Number](samples []T) float64 {
	n := len(samples)
	if n == 0 {
		return math.NaN()
	}
	slices.Sort(samples)
	if n%2 == 1 {
		return float64(samples[n/2])
	}
	return (float64(samples[n/2-1]) + float64(samples[n/2])) / 2
}

// Returns the mode and count of the most frequent element in the given samples.
// Ties are broken by the smallest value, so that the result is deterministic.
func Mode[T constraints.Ordered](src []T) (mode T, count int) {
	counts := make(map[T]int)
	for _, v := range src {
		counts[v]++
	}
	first := true
	for k, v := range counts {
		if v > count || (v == count && (first || k < mode)) {
			mode = k
			count = v
			first = false
		}
	}
	return
}
