package grid

import "fmt"

// Ordering describes how a (row, col) lattice position maps to an index in a
// flat per-point vector. Rows run along latitude, columns along longitude.
type Ordering int

const (
	// ColumnMajor emits every row of column 0, then every row of column 1,
	// and so on: the outer loop is over longitude, the inner over latitude.
	ColumnMajor Ordering = iota
	// RowMajor emits every column of row 0 first.
	RowMajor
)

// MeshOrder is the ordering used by GenerateMesh and every consumer that
// reshapes a per-point vector produced from a mesh.
const MeshOrder = ColumnMajor

func (o Ordering) String() string {
	switch o {
	case ColumnMajor:
		return "column-major"
	case RowMajor:
		return "row-major"
	default:
		return fmt.Sprintf("Ordering(%d)", int(o))
	}
}

// Index returns the flat index of (row, col) in a rows x cols lattice.
func (o Ordering) Index(row, col, rows, cols int) int {
	if o == RowMajor {
		return row*cols + col
	}
	return col*rows + row
}

// Position is the inverse of Index.
func (o Ordering) Position(idx, rows, cols int) (row, col int) {
	if o == RowMajor {
		return idx / cols, idx % cols
	}
	return idx % rows, idx / rows
}

// Spec is an immutable grid resolution over a bounding box.
type Spec struct {
	Rows int
	Cols int
	Box  BoundingBox
}

// NewSpec validates the resolution and the box.
func NewSpec(rows, cols int, box BoundingBox) (Spec, error) {
	if rows < 1 {
		return Spec{}, fmt.Errorf("%w: row count must be at least 1, got %d", ErrInvalidGrid, rows)
	}
	if cols < 1 {
		return Spec{}, fmt.Errorf("%w: column count must be at least 1, got %d", ErrInvalidGrid, cols)
	}
	if err := box.Validate(); err != nil {
		return Spec{}, err
	}
	return Spec{Rows: rows, Cols: cols, Box: box}, nil
}

// Len is the number of mesh points, Rows*Cols.
func (s Spec) Len() int { return s.Rows * s.Cols }

// CellHeight is the latitude step between rows.
func (s Spec) CellHeight() float64 { return s.Box.LatSpan() / float64(s.Rows) }

// CellWidth is the longitude step between columns.
func (s Spec) CellWidth() float64 { return s.Box.LngSpan() / float64(s.Cols) }

// Latitude of row i.
func (s Spec) Latitude(i int) float64 {
	return s.Box.BottomLeft.Lat + float64(i)*s.CellHeight()
}

// Longitude of column j.
func (s Spec) Longitude(j int) float64 {
	return s.Box.BottomLeft.Lng + float64(j)*s.CellWidth()
}

// Mesh is the ordered query lattice for one run.
type Mesh struct {
	Spec   Spec
	Points []Point
}

// GenerateMesh builds a rows x cols lattice anchored at bottomLeft. Points are
// emitted in MeshOrder.
func GenerateMesh(rows, cols int, bottomLeft, topRight LatLng) (*Mesh, error) {
	spec, err := NewSpec(rows, cols, BoundingBox{BottomLeft: bottomLeft, TopRight: topRight})
	if err != nil {
		return nil, err
	}
	return spec.Mesh(), nil
}

// Mesh generates the lattice for an already validated spec.
func (s Spec) Mesh() *Mesh {
	points := make([]Point, s.Len())
	for j := 0; j < s.Cols; j++ {
		lng := s.Longitude(j)
		for i := 0; i < s.Rows; i++ {
			points[MeshOrder.Index(i, j, s.Rows, s.Cols)] = Point{Lat: s.Latitude(i), Lng: lng}
		}
	}
	return &Mesh{Spec: s, Points: points}
}

// Len is the number of points in the mesh.
func (m *Mesh) Len() int { return len(m.Points) }

// Latitudes returns the latitude of every point in mesh order.
func (m *Mesh) Latitudes() []float64 {
	out := make([]float64, len(m.Points))
	for i, p := range m.Points {
		out[i] = p.Lat
	}
	return out
}

// Longitudes returns the longitude of every point in mesh order.
func (m *Mesh) Longitudes() []float64 {
	out := make([]float64, len(m.Points))
	for i, p := range m.Points {
		out[i] = p.Lng
	}
	return out
}

// Features returns the mesh as [lat, lng, relTime] rows, the layout the
// estimator expects for query points.
func (m *Mesh) Features() [][3]float64 {
	out := make([][3]float64, len(m.Points))
	for i, p := range m.Points {
		out[i] = [3]float64{p.Lat, p.Lng, p.RelTime}
	}
	return out
}
