package contour

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var (
	// ErrBreakpoints is returned for an empty or non-ascending breakpoint list.
	ErrBreakpoints = errors.New("contour: breakpoints must be non-empty and strictly ascending")
	// ErrShape is returned when the coordinate and value surfaces disagree.
	ErrShape = errors.New("contour: surface shapes differ")
	// ErrNonFinite is returned when a surface holds NaN or Inf.
	ErrNonFinite = errors.New("contour: surface holds a non-finite value")
)

// Op is a path instruction code.
type Op string

const (
	MoveTo Op = "M"
	LineTo Op = "L"
)

// PathOp is one typed point of a contour path. It encodes as a
// three-element JSON array: ["M", x, y].
type PathOp struct {
	Op Op
	X  float64
	Y  float64
}

func (p PathOp) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{string(p.Op), p.X, p.Y})
}

func (p *PathOp) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode path op: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("decode path op: want 3 elements, got %d", len(raw))
	}
	var op string
	if err := json.Unmarshal(raw[0], &op); err != nil {
		return fmt.Errorf("decode path op code: %w", err)
	}
	if Op(op) != MoveTo && Op(op) != LineTo {
		return fmt.Errorf("decode path op: unknown code %q", op)
	}
	var x, y float64
	if err := json.Unmarshal(raw[1], &x); err != nil {
		return fmt.Errorf("decode path op x: %w", err)
	}
	if err := json.Unmarshal(raw[2], &y); err != nil {
		return fmt.Errorf("decode path op y: %w", err)
	}
	*p = PathOp{Op: Op(op), X: x, Y: y}
	return nil
}

// Contour is one closed ring of a filled band. X is latitude and Y is
// longitude. Level and K both carry the band index.
type Contour struct {
	Path  []PathOp `json:"path"`
	Level int      `json:"level"`
	K     int      `json:"k"`
}

// Ring returns the contour as a closed orb ring with X = latitude.
func (c Contour) Ring() orb.Ring {
	ring := make(orb.Ring, 0, len(c.Path)+1)
	for _, op := range c.Path {
		ring = append(ring, orb.Point{op.X, op.Y})
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// Set is the ordered output of Extract: bands ascend, and within a band
// rings are ordered by descending area.
type Set []Contour

// Validate checks that every band index addresses one of n breakpoints and
// that every path opens with a single move.
func (s Set) Validate(n int) error {
	for i, c := range s {
		if c.Level < 0 || c.Level >= n || c.K != c.Level {
			return fmt.Errorf("contour %d: band index level=%d k=%d outside [0,%d)", i, c.Level, c.K, n)
		}
		if len(c.Path) == 0 {
			return fmt.Errorf("contour %d: empty path", i)
		}
		for j, op := range c.Path {
			want := LineTo
			if j == 0 {
				want = MoveTo
			}
			if op.Op != want {
				return fmt.Errorf("contour %d: op %d is %q, want %q", i, j, op.Op, want)
			}
			if math.IsNaN(op.X) || math.IsNaN(op.Y) || math.IsInf(op.X, 0) || math.IsInf(op.Y, 0) {
				return fmt.Errorf("contour %d: op %d is not finite", i, j)
			}
		}
	}
	return nil
}

// Band is the filled region of one band: outer rings with their holes.
type Band struct {
	Level    int
	Polygons []orb.Polygon
}

// Bands groups the set into polygons per band. Counter-clockwise rings are
// exteriors; each clockwise ring becomes a hole of the smallest exterior of
// the same band that contains it.
func (s Set) Bands() []Band {
	byLevel := map[int][]orb.Ring{}
	var levels []int
	for _, c := range s {
		if _, ok := byLevel[c.Level]; !ok {
			levels = append(levels, c.Level)
		}
		byLevel[c.Level] = append(byLevel[c.Level], c.Ring())
	}
	sort.Ints(levels)

	bands := make([]Band, 0, len(levels))
	for _, level := range levels {
		var polys []orb.Polygon
		var holes []orb.Ring
		for _, r := range byLevel[level] {
			if len(r) < 4 {
				continue
			}
			if r.Orientation() == orb.CW {
				holes = append(holes, r)
				continue
			}
			polys = append(polys, orb.Polygon{r})
		}
		for _, h := range holes {
			best, bestArea := -1, math.Inf(1)
			for i, p := range polys {
				if !planar.RingContains(p[0], interiorPoint(h)) {
					continue
				}
				if a := planar.Area(p[0]); a < bestArea {
					best, bestArea = i, a
				}
			}
			if best >= 0 {
				polys[best] = append(polys[best], h)
			}
		}
		bands = append(bands, Band{Level: level, Polygons: polys})
	}
	return bands
}

// interiorPoint returns the midpoint of a ring's first edge. A hole may
// share a vertex with its exterior at a pinch but never an edge.
func interiorPoint(r orb.Ring) orb.Point {
	a, b := r[0], r[1]
	return orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}
