// Package training turns raw per-sensor time series into the cleaned,
// calibrated and row-aligned training set consumed by the estimator.
package training

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrMalformedObservations is returned when the parallel arrays of a
	// RawObservationSet disagree on their dimensions.
	ErrMalformedObservations = errors.New("malformed observation set")
	// ErrEmptyTrainingSet is returned when no observation survives cleaning.
	ErrEmptyTrainingSet = errors.New("training set is empty")
	// ErrCalibrationGap marks a sensor with no calibration coefficients. It is
	// never returned from Assemble; it is recorded in Report.ExcludedSensors.
	ErrCalibrationGap = errors.New("no calibration for sensor model")
)

// Reading is one concentration value that may be missing.
type Reading struct {
	Value float64
	Valid bool
}

// Value wraps a measured concentration.
func Value(v float64) Reading { return Reading{Value: v, Valid: true} }

// Missing is the reading for an absent or unreadable measurement.
func Missing() Reading { return Reading{} }

// usable reports whether r carries a finite measurement.
func (r Reading) usable() bool {
	return r.Valid && !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0)
}

// RawObservationSet is the upstream query result for one window.
// Concentration is indexed [time][sensor]; every per-sensor slice has one
// entry per sensor and Timestamps has one entry per time step.
type RawObservationSet struct {
	Concentration [][]Reading
	Latitudes     []float64
	Longitudes    []float64
	Timestamps    []time.Time
	// SensorIDs is optional and only used for reporting.
	SensorIDs []string
	// SensorModels selects calibration coefficients. An empty string means
	// the model is unknown.
	SensorModels []string
}

// Sensors is the number of sensor columns.
func (r *RawObservationSet) Sensors() int { return len(r.Latitudes) }

// Steps is the number of time rows.
func (r *RawObservationSet) Steps() int { return len(r.Timestamps) }

// Validate checks that the parallel arrays line up.
func (r *RawObservationSet) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil set", ErrMalformedObservations)
	}
	n := len(r.Latitudes)
	if len(r.Longitudes) != n {
		return fmt.Errorf("%w: %d latitudes but %d longitudes", ErrMalformedObservations, n, len(r.Longitudes))
	}
	if len(r.SensorModels) != n {
		return fmt.Errorf("%w: %d sensors but %d sensor models", ErrMalformedObservations, n, len(r.SensorModels))
	}
	if r.SensorIDs != nil && len(r.SensorIDs) != n {
		return fmt.Errorf("%w: %d sensors but %d sensor ids", ErrMalformedObservations, n, len(r.SensorIDs))
	}
	if len(r.Concentration) != len(r.Timestamps) {
		return fmt.Errorf("%w: %d concentration rows but %d timestamps", ErrMalformedObservations, len(r.Concentration), len(r.Timestamps))
	}
	for t, row := range r.Concentration {
		if len(row) != n {
			return fmt.Errorf("%w: concentration row %d has %d entries, want %d", ErrMalformedObservations, t, len(row), n)
		}
	}
	return nil
}

func (r *RawObservationSet) sensorID(s int) string {
	if s < len(r.SensorIDs) {
		return r.SensorIDs[s]
	}
	return fmt.Sprintf("sensor-%d", s)
}
