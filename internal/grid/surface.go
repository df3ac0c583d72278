package grid

import "fmt"

// Surface is a rows x cols view of a flat per-point vector laid out in
// MeshOrder.
type Surface struct {
	Rows   int
	Cols   int
	values []float64
}

// Reshape wraps flat as a rows x cols surface. flat must hold exactly
// rows*cols values in MeshOrder; it is copied.
func Reshape(flat []float64, rows, cols int) (*Surface, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("%w: surface dimensions %dx%d", ErrInvalidGrid, rows, cols)
	}
	if len(flat) != rows*cols {
		return nil, fmt.Errorf("%w: %d values cannot be reshaped to %dx%d", ErrInvalidGrid, len(flat), rows, cols)
	}
	values := make([]float64, len(flat))
	copy(values, flat)
	return &Surface{Rows: rows, Cols: cols, values: values}, nil
}

// At returns the value at (row, col).
func (s *Surface) At(row, col int) float64 {
	return s.values[MeshOrder.Index(row, col, s.Rows, s.Cols)]
}

// Flat returns a copy of the values in MeshOrder.
func (s *Surface) Flat() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// MinMax returns the smallest and largest value on the surface.
func (s *Surface) MinMax() (lo, hi float64) {
	lo, hi = s.values[0], s.values[0]
	for _, v := range s.values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
