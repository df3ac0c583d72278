// Package estimator is the boundary to the regression step. The core treats
// an Estimator as a deterministic function of its Input: it owns no state
// between calls.
package estimator

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrFitUnsupported is returned when hyperparameter fitting is requested
	// from an estimator that only evaluates fixed hyperparameters.
	ErrFitUnsupported = errors.New("hyperparameter fitting not supported")
	// ErrNoTrainingData is returned for an empty training set.
	ErrNoTrainingData = errors.New("no training data")
	// ErrLengthMismatch is returned when an estimator's output does not have
	// one entry per query point.
	ErrLengthMismatch = errors.New("estimate length does not match query")
)

// Hyperparameters is the fixed parameter bundle handed to the estimator.
type Hyperparameters struct {
	SigmaF      float64 `json:"sigma_f"`      // signal standard deviation
	LengthSpace float64 `json:"length_space"` // characteristic length, km
	LengthTime  float64 `json:"length_time"`  // characteristic length, hours
	SigmaN      float64 `json:"sigma_n"`      // observation noise standard deviation
	BasisDegree int     `json:"basis_degree"` // polynomial degree of the trend
	Fit         bool    `json:"fit"`          // re-fit hyperparameters
	Predict     bool    `json:"predict"`      // produce predictions
}

// DefaultHyperparameters are the values found by the last offline training.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		SigmaF:      8.3779,
		LengthSpace: 4.7273,
		LengthTime:  7.5732,
		SigmaN:      5.81,
		BasisDegree: 1,
		Fit:         false,
		Predict:     true,
	}
}

// Validate checks the bundle is usable.
func (h Hyperparameters) Validate() error {
	if h.SigmaF <= 0 {
		return fmt.Errorf("sigma_f must be positive, got %f", h.SigmaF)
	}
	if h.LengthSpace <= 0 || h.LengthTime <= 0 {
		return fmt.Errorf("length scales must be positive, got space=%f time=%f", h.LengthSpace, h.LengthTime)
	}
	if h.SigmaN < 0 {
		return fmt.Errorf("sigma_n must be non-negative, got %f", h.SigmaN)
	}
	if h.BasisDegree < 0 || h.BasisDegree > 3 {
		return fmt.Errorf("basis_degree must be in [0, 3], got %d", h.BasisDegree)
	}
	return nil
}

// Input is one estimation request. Rows of Query and TrainX are
// [lat, lng, relTime].
type Input struct {
	Query  [][3]float64
	TrainX [][3]float64
	TrainY []float64
	Params Hyperparameters
}

// Output holds one mean and one variance per query row, in query order.
type Output struct {
	Mean     []float64 `json:"mean"`
	Variance []float64 `json:"variance"`
}

// Estimator evaluates the regression for one Input.
type Estimator interface {
	Estimate(ctx context.Context, in Input) (*Output, error)
}

// CheckOutput verifies that out has one mean and variance per query point.
func CheckOutput(in Input, out *Output) error {
	if out == nil {
		return fmt.Errorf("%w: nil output", ErrLengthMismatch)
	}
	if len(out.Mean) != len(in.Query) || len(out.Variance) != len(in.Query) {
		return fmt.Errorf("%w: %d queries, %d means, %d variances",
			ErrLengthMismatch, len(in.Query), len(out.Mean), len(out.Variance))
	}
	return nil
}

func checkInput(in Input) error {
	if err := in.Params.Validate(); err != nil {
		return err
	}
	if len(in.TrainY) == 0 {
		return ErrNoTrainingData
	}
	if len(in.TrainX) != len(in.TrainY) {
		return fmt.Errorf("training set misaligned: %d rows, %d targets", len(in.TrainX), len(in.TrainY))
	}
	return nil
}
