package estimator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lattice returns training rows on a 2x2 sensor layout observed at three
// time steps.
func lattice(value func(x [3]float64) float64) ([][3]float64, []float64) {
	var xs [][3]float64
	var ys []float64
	for _, tm := range []float64{0, 6, 12} {
		for _, pos := range [][2]float64{{40.70, -111.90}, {40.75, -111.90}, {40.70, -111.85}, {40.76, -111.84}} {
			x := [3]float64{pos[0], pos[1], tm}
			xs = append(xs, x)
			ys = append(ys, value(x))
		}
	}
	return xs, ys
}

func TestGaussianProcess_ConstantField(t *testing.T) {
	t.Parallel()

	xs, ys := lattice(func([3]float64) float64 { return 12.5 })
	params := DefaultHyperparameters()
	params.BasisDegree = 0
	in := Input{
		Query:  [][3]float64{{40.72, -111.88, 0}, {40.60, -112.00, 0}},
		TrainX: xs,
		TrainY: ys,
		Params: params,
	}
	out, err := NewGaussianProcess().Estimate(context.Background(), in)
	require.NoError(t, err)
	require.NoError(t, CheckOutput(in, out))
	for _, m := range out.Mean {
		assert.InDelta(t, 12.5, m, 1e-6)
	}
}

func TestGaussianProcess_LinearTrendRecovered(t *testing.T) {
	t.Parallel()

	xs, ys := lattice(func(x [3]float64) float64 { return 3 + 0.5*x[2] })
	in := Input{
		Query:  [][3]float64{{40.72, -111.88, 0}, {40.73, -111.87, 24}},
		TrainX: xs,
		TrainY: ys,
		Params: DefaultHyperparameters(),
	}
	out, err := NewGaussianProcess().Estimate(context.Background(), in)
	require.NoError(t, err)
	assert.InDelta(t, 3, out.Mean[0], 1e-5)
	assert.InDelta(t, 15, out.Mean[1], 1e-5)
}

func TestGaussianProcess_VarianceGrowsAwayFromData(t *testing.T) {
	t.Parallel()

	xs, ys := lattice(func(x [3]float64) float64 { return 10 + x[2] })
	params := DefaultHyperparameters()
	params.SigmaN = 0.5
	in := Input{
		Query:  [][3]float64{{40.70, -111.90, 0}, {41.50, -112.80, 0}},
		TrainX: xs,
		TrainY: ys,
		Params: params,
	}
	out, err := NewGaussianProcess().Estimate(context.Background(), in)
	require.NoError(t, err)
	for _, v := range out.Variance {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.Less(t, out.Variance[0], out.Variance[1])
	assert.Less(t, out.Variance[0], params.SigmaF*params.SigmaF)
}

func TestGaussianProcess_SingleTimeStep(t *testing.T) {
	t.Parallel()

	var xs [][3]float64
	var ys []float64
	for _, pos := range [][2]float64{{40.70, -111.90}, {40.75, -111.90}, {40.70, -111.85}, {40.76, -111.84}, {40.72, -111.80}} {
		xs = append(xs, [3]float64{pos[0], pos[1], 0})
		ys = append(ys, 9)
	}
	in := Input{
		Query:  [][3]float64{{40.72, -111.88, 0}, {40.80, -111.70, 0}},
		TrainX: xs,
		TrainY: ys,
		Params: DefaultHyperparameters(),
	}
	out, err := NewGaussianProcess().Estimate(context.Background(), in)
	require.NoError(t, err)
	require.NoError(t, CheckOutput(in, out))
	for _, m := range out.Mean {
		assert.InDelta(t, 9, m, 1e-6)
	}
}

func TestGaussianProcess_SingleSensor(t *testing.T) {
	t.Parallel()

	var xs [][3]float64
	var ys []float64
	for _, tm := range []float64{0, 6, 12} {
		xs = append(xs, [3]float64{40.72, -111.88, tm})
		ys = append(ys, 4+0.5*tm)
	}
	in := Input{
		Query:  [][3]float64{{40.72, -111.88, 0}, {40.60, -112.00, 24}},
		TrainX: xs,
		TrainY: ys,
		Params: DefaultHyperparameters(),
	}
	out, err := NewGaussianProcess().Estimate(context.Background(), in)
	require.NoError(t, err)
	require.NoError(t, CheckOutput(in, out))
	assert.InDelta(t, 4, out.Mean[0], 1e-5)
	assert.InDelta(t, 16, out.Mean[1], 1e-5)
}

func TestIndependentRows(t *testing.T) {
	t.Parallel()

	// Two distinct times make t^2 affine in t; one location zeroes lat and lng.
	x := [][3]float64{{0, 0, -1}, {0, 0, 1}, {0, 0, 1}}
	assert.Equal(t, []int{0, 3}, independentRows(basis(x, 2)))

	x = [][3]float64{{1, 2, 0}, {2, 1, 3}, {0, 0, 7}, {3, 5, 1}}
	assert.Equal(t, []int{0, 1, 2, 3}, independentRows(basis(x, 1)))
}

func TestGaussianProcess_Deterministic(t *testing.T) {
	t.Parallel()

	xs, ys := lattice(func(x [3]float64) float64 { return x[0] * x[2] })
	in := Input{Query: [][3]float64{{40.71, -111.89, 0}}, TrainX: xs, TrainY: ys, Params: DefaultHyperparameters()}
	a, err := NewGaussianProcess().Estimate(context.Background(), in)
	require.NoError(t, err)
	b, err := NewGaussianProcess().Estimate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGaussianProcess_Flags(t *testing.T) {
	t.Parallel()

	xs, ys := lattice(func([3]float64) float64 { return 1 })
	in := Input{Query: [][3]float64{{40.7, -111.9, 0}}, TrainX: xs, TrainY: ys, Params: DefaultHyperparameters()}

	in.Params.Fit = true
	_, err := NewGaussianProcess().Estimate(context.Background(), in)
	assert.ErrorIs(t, err, ErrFitUnsupported)

	in.Params.Fit = false
	in.Params.Predict = false
	out, err := NewGaussianProcess().Estimate(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, out.Mean)
	assert.ErrorIs(t, CheckOutput(in, out), ErrLengthMismatch)
}

func TestGaussianProcess_InputErrors(t *testing.T) {
	t.Parallel()

	gp := NewGaussianProcess()
	_, err := gp.Estimate(context.Background(), Input{Params: DefaultHyperparameters()})
	assert.ErrorIs(t, err, ErrNoTrainingData)

	_, err = gp.Estimate(context.Background(), Input{
		TrainX: [][3]float64{{1, 2, 3}},
		TrainY: []float64{1, 2},
		Params: DefaultHyperparameters(),
	})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gp.Estimate(ctx, Input{TrainX: [][3]float64{{1, 2, 3}}, TrainY: []float64{1}, Params: DefaultHyperparameters()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHyperparameters_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultHyperparameters().Validate())

	tests := []struct {
		name   string
		mutate func(h *Hyperparameters)
	}{
		{"sigma_f", func(h *Hyperparameters) { h.SigmaF = 0 }},
		{"length_space", func(h *Hyperparameters) { h.LengthSpace = -1 }},
		{"length_time", func(h *Hyperparameters) { h.LengthTime = 0 }},
		{"sigma_n", func(h *Hyperparameters) { h.SigmaN = -0.1 }},
		{"degree", func(h *Hyperparameters) { h.BasisDegree = 4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := DefaultHyperparameters()
			tt.mutate(&h)
			assert.Error(t, h.Validate())
		})
	}
}
