// Package estimate assembles the persisted output of one estimation run.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/airquality.report/internal/contour"
	"github.com/banshee-data/airquality.report/internal/grid"
)

// DefaultModelVersion tags records when no version is configured.
const DefaultModelVersion = "1.0.0"

// ErrInconsistent is returned when the parts of a record disagree in size.
var ErrInconsistent = errors.New("estimate: inconsistent record parts")

// Pending is a record written to a store but not yet visible to readers.
// Exactly one of Commit or Rollback should be called.
type Pending interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Point is one mesh point of the estimated field.
type Point struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Concentration float64 `json:"concentration"`
	Variance      float64 `json:"variance"`
}

// Record is the insert-only document written once per run. Estimate is in
// grid.MeshOrder.
type Record struct {
	ID            string      `json:"id,omitempty"`
	EstimationFor time.Time   `json:"estimationFor"`
	ModelVersion  string      `json:"modelVersion"`
	Rows          int         `json:"numberOfGridCells_LAT"`
	Cols          int         `json:"numberOfGridCells_LONG"`
	Estimate      []Point     `json:"estimate"`
	Contours      contour.Set `json:"contours"`
}

// Meta identifies a record.
type Meta struct {
	ID            string
	EstimationFor time.Time
	ModelVersion  string
}

// Parts are the per-run outputs a record is built from. Latitudes,
// Longitudes, Mean and Variance are flat vectors in mesh order.
type Parts struct {
	Latitudes  []float64
	Longitudes []float64
	Mean       []float64
	Variance   []float64
	Contours   contour.Set
	Rows       int
	Cols       int
	Bands      int
}

// Assemble builds a record from the parts of one run. Only sizes and band
// indices are checked.
func Assemble(meta Meta, p Parts) (*Record, error) {
	if p.Rows < 1 || p.Cols < 1 {
		return nil, fmt.Errorf("%w: resolution %dx%d", ErrInconsistent, p.Rows, p.Cols)
	}
	n := p.Rows * p.Cols
	for _, col := range []struct {
		name string
		len  int
	}{
		{"latitudes", len(p.Latitudes)},
		{"longitudes", len(p.Longitudes)},
		{"mean", len(p.Mean)},
		{"variance", len(p.Variance)},
	} {
		if col.len != n {
			return nil, fmt.Errorf("%w: %d %s for a %dx%d grid", ErrInconsistent, col.len, col.name, p.Rows, p.Cols)
		}
	}
	if err := p.Contours.Validate(p.Bands); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInconsistent, err)
	}

	version := meta.ModelVersion
	if version == "" {
		version = DefaultModelVersion
	}
	points := make([]Point, n)
	for i := range points {
		points[i] = Point{
			Latitude:      p.Latitudes[i],
			Longitude:     p.Longitudes[i],
			Concentration: p.Mean[i],
			Variance:      p.Variance[i],
		}
	}
	contours := p.Contours
	if contours == nil {
		contours = contour.Set{}
	}
	return &Record{
		ID:            meta.ID,
		EstimationFor: meta.EstimationFor.UTC(),
		ModelVersion:  version,
		Rows:          p.Rows,
		Cols:          p.Cols,
		Estimate:      points,
		Contours:      contours,
	}, nil
}

// Validate re-checks the size invariant on a decoded record.
func (r *Record) Validate() error {
	if r.Rows < 1 || r.Cols < 1 || len(r.Estimate) != r.Rows*r.Cols {
		return fmt.Errorf("%w: %d points for a %dx%d grid", ErrInconsistent, len(r.Estimate), r.Rows, r.Cols)
	}
	return nil
}

func (r *Record) column(f func(Point) float64) []float64 {
	out := make([]float64, len(r.Estimate))
	for i, p := range r.Estimate {
		out[i] = f(p)
	}
	return out
}

// Surfaces reshapes the record's coordinate and concentration columns.
func (r *Record) Surfaces() (lat, lng, conc *grid.Surface, err error) {
	if err := r.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if lat, err = grid.Reshape(r.column(func(p Point) float64 { return p.Latitude }), r.Rows, r.Cols); err != nil {
		return nil, nil, nil, err
	}
	if lng, err = grid.Reshape(r.column(func(p Point) float64 { return p.Longitude }), r.Rows, r.Cols); err != nil {
		return nil, nil, nil, err
	}
	if conc, err = grid.Reshape(r.column(func(p Point) float64 { return p.Concentration }), r.Rows, r.Cols); err != nil {
		return nil, nil, nil, err
	}
	return lat, lng, conc, nil
}

// Summary is the list view of a record.
type Summary struct {
	ID            string    `json:"id"`
	EstimationFor time.Time `json:"estimationFor"`
	ModelVersion  string    `json:"modelVersion"`
	Rows          int       `json:"numberOfGridCells_LAT"`
	Cols          int       `json:"numberOfGridCells_LONG"`
	Contours      int       `json:"contourCount"`
}

func (r *Record) Summary() Summary {
	return Summary{
		ID:            r.ID,
		EstimationFor: r.EstimationFor,
		ModelVersion:  r.ModelVersion,
		Rows:          r.Rows,
		Cols:          r.Cols,
		Contours:      len(r.Contours),
	}
}
