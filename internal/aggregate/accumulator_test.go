package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularMean(t *testing.T) {
	tests := []struct {
		name     string
		angles   []float64
		expected float64
	}{
		{"straddles north", []float64{350, 10}, 0},
		{"three around north", []float64{355, 5, 15}, 5},
		{"single", []float64{270}, 270},
		{"east and south", []float64{90, 180}, 135},
		{"just below north", []float64{340, 350}, 345},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAccumulator(map[string]Kind{"dir": KindAngle})
			for _, d := range tt.angles {
				require.NoError(t, a.Add(Sample{Metric: "dir", Value: d}))
			}
			got, ok := a.Angle("dir")
			require.True(t, ok)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestAccumulatorRejectsBadSamples(t *testing.T) {
	a := NewAccumulator(map[string]Kind{"t": KindMean, "w": KindFlow})

	assert.ErrorIs(t, a.Add(Sample{Metric: "t", Value: math.NaN()}), ErrNonFinite)
	assert.ErrorIs(t, a.Add(Sample{Metric: "t", Value: math.Inf(1)}), ErrNonFinite)
	assert.ErrorIs(t, a.Add(Sample{Metric: "nope", Value: 1}), ErrUnknownMetric)
	assert.Error(t, a.Add(Sample{Metric: "w", Value: 3}))

	assert.Equal(t, 0, a.Count("t"))
	assert.Equal(t, 0, a.Count("w"))
}

func TestAccumulatorFlow(t *testing.T) {
	a := NewAccumulator(map[string]Kind{"wind": KindFlow})

	require.NoError(t, a.Add(Sample{Metric: "wind", Value: 10, Elapsed: 10 * time.Second}))
	require.NoError(t, a.Add(Sample{Metric: "wind", Value: 40, Elapsed: 10 * time.Second}))
	require.NoError(t, a.Add(Sample{Metric: "wind", Value: 10, Elapsed: 10 * time.Second}))

	rate, ok := a.Rate("wind")
	require.True(t, ok)
	assert.InDelta(t, 2.0, rate, 1e-9)

	peak, ok := a.Peak("wind")
	require.True(t, ok)
	assert.InDelta(t, 4.0, peak, 1e-9)
}

func TestAccumulatorReset(t *testing.T) {
	a := NewAccumulator(map[string]Kind{"t": KindMean, "r": KindTotal})
	require.NoError(t, a.Add(Sample{Metric: "t", Value: 20}))
	require.NoError(t, a.Add(Sample{Metric: "t", Value: 22}))
	require.NoError(t, a.Add(Sample{Metric: "r", Value: 3}))

	mean, ok := a.Mean("t")
	require.True(t, ok)
	assert.InDelta(t, 21.0, mean, 1e-9)

	a.Reset()

	_, ok = a.Mean("t")
	assert.False(t, ok)
	_, ok = a.Total("r")
	assert.False(t, ok)
}
