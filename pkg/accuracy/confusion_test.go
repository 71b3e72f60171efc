package accuracy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfusionMatrix(t *testing.T) {
	actual := []int{101, 101, 101, 102, 102, 105}
	predicted := []int{101, 101, 102, 102, 101, 105}
	cm, err := NewConfusionMatrix(actual, predicted)
	require.NoError(t, err)
	require.Equal(t, []int{101, 102, 105}, cm.Labels)
	require.Equal(t, [][]int{{2, 1, 0}, {1, 1, 0}, {0, 0, 1}}, cm.Counts())
	require.Equal(t, 1, cm.At(102, 101))
	require.Equal(t, 0, cm.At(999, 101))
	require.InDelta(t, 4.0/6.0, cm.Accuracy(), 1e-12)

	// pe = (3*3 + 2*2 + 1*1) / 36
	pe := 14.0 / 36.0
	require.InDelta(t, (4.0/6.0-pe)/(1-pe), cm.Kappa(), 1e-12)

	require.InDeltaSlice(t, []float64{2.0 / 3.0, 0.5, 1}, cm.ProducersAccuracy(), 1e-12)
	require.InDeltaSlice(t, []float64{2.0 / 3.0, 0.5, 1}, cm.ConsumersAccuracy(), 1e-12)
}

func TestLabelUnion(t *testing.T) {
	// 103 is predicted but never observed
	cm, err := NewConfusionMatrix([]int{101, 102}, []int{103, 102})
	require.NoError(t, err)
	require.Equal(t, []int{101, 102, 103}, cm.Labels)
	require.Equal(t, []float64{0, 1, 0}, cm.ProducersAccuracy())
	require.Equal(t, []float64{0, 1, 0}, cm.ConsumersAccuracy())
}

func TestKappaChance(t *testing.T) {
	// Predictions independent of the truth
	actual := []int{1, 1, 2, 2}
	predicted := []int{1, 2, 1, 2}
	cm, err := NewConfusionMatrix(actual, predicted)
	require.NoError(t, err)
	require.InDelta(t, 0.5, cm.Accuracy(), 1e-12)
	require.InDelta(t, 0, cm.Kappa(), 1e-12)

	// Perfect agreement
	cm, err = NewConfusionMatrix(actual, actual)
	require.NoError(t, err)
	require.Equal(t, 1.0, cm.Accuracy())
	require.Equal(t, 1.0, cm.Kappa())
}

func TestDegenerate(t *testing.T) {
	cm, err := NewConfusionMatrix(nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0.0, cm.Accuracy())
	require.Equal(t, 0.0, cm.Kappa())
	require.Equal(t, 0, cm.Size())

	// A single class gives pe == 1
	cm, err = NewConfusionMatrix([]int{5, 5, 5}, []int{5, 5, 5})
	require.NoError(t, err)
	require.Equal(t, 1.0, cm.Accuracy())
	require.Equal(t, 0.0, cm.Kappa())

	_, err = NewConfusionMatrix([]int{1}, nil)
	require.Error(t, err)
}

func TestBounds(t *testing.T) {
	// Worst case: always wrong
	cm, err := NewConfusionMatrix([]int{1, 2, 1, 2}, []int{2, 1, 2, 1})
	require.NoError(t, err)
	require.Equal(t, 0.0, cm.Accuracy())
	require.InDelta(t, -1.0, cm.Kappa(), 1e-12)

	s := cm.Summary()
	require.Equal(t, []int{1, 2}, s.Labels)
	require.Equal(t, [][]int{{0, 2}, {2, 0}}, s.Counts)
}
