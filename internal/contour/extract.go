package contour

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/airquality.report/internal/grid"
)

// Precision is the number of decimal places kept in path coordinates.
const Precision = 3

// degenerateArea is the index-space area below which a clipped piece is
// dropped.
const degenerateArea = 1e-12

// Extract computes filled contour rings of values over the coordinate
// surfaces lat and lng. Band i covers breakpoints[i] <= z <
// breakpoints[i+1]; the last band is open above. Values below the lowest
// breakpoint belong to no band.
//
// Each grid cell is split into two triangles along its (r,c)-(r+1,c+1)
// diagonal and every triangle is clipped to each band with linear
// interpolation. Pieces are merged by cancelling shared edges, so rings
// are the exact boundaries of the band regions. Exterior rings are
// counter-clockwise and holes clockwise, with latitude as X.
func Extract(lat, lng, values *grid.Surface, breakpoints []float64) (Set, error) {
	if err := checkBreakpoints(breakpoints); err != nil {
		return nil, err
	}
	if lat == nil || lng == nil || values == nil {
		return nil, fmt.Errorf("%w: nil surface", ErrShape)
	}
	if lat.Rows != values.Rows || lat.Cols != values.Cols || lng.Rows != values.Rows || lng.Cols != values.Cols {
		return nil, fmt.Errorf("%w: lat %dx%d, lng %dx%d, values %dx%d",
			ErrShape, lat.Rows, lat.Cols, lng.Rows, lng.Cols, values.Rows, values.Cols)
	}
	for _, s := range []*grid.Surface{lat, lng, values} {
		for _, v := range s.Flat() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, ErrNonFinite
			}
		}
	}

	e := &extractor{lat: lat, lng: lng, z: values}
	if values.Rows > 1 && values.Cols > 1 {
		// Keep exteriors counter-clockwise when a surface runs backwards.
		dr := [2]float64{lat.At(1, 0) - lat.At(0, 0), lng.At(1, 0) - lng.At(0, 0)}
		dc := [2]float64{lat.At(0, 1) - lat.At(0, 0), lng.At(0, 1) - lng.At(0, 0)}
		e.flipped = dr[0]*dc[1]-dr[1]*dc[0] < 0
	}
	set := Set{}
	for k := range breakpoints {
		hi := math.Inf(1)
		if k+1 < len(breakpoints) {
			hi = breakpoints[k+1]
		}
		set = append(set, e.band(k, breakpoints[k], hi)...)
	}
	return set, nil
}

func checkBreakpoints(bp []float64) error {
	if len(bp) == 0 {
		return ErrBreakpoints
	}
	for i, b := range bp {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return fmt.Errorf("%w: breakpoint %d is %v", ErrBreakpoints, i, b)
		}
		if i > 0 && b <= bp[i-1] {
			return fmt.Errorf("%w: %v follows %v", ErrBreakpoints, b, bp[i-1])
		}
	}
	return nil
}

type node struct{ r, c int }

func (n node) less(o node) bool {
	if n.r != o.r {
		return n.r < o.r
	}
	return n.c < o.c
}

// vkey identifies a vertex independently of the triangle that produced it.
// Grid nodes have a == b and threshold -1; crossings sit on the canonical
// edge a < b at the threshold with the given index.
type vkey struct {
	a, b      node
	threshold int
}

type vertex struct {
	key  vkey
	z    float64
	r, c float64
}

type edge struct{ from, to vkey }

type extractor struct {
	lat, lng, z *grid.Surface
	flipped     bool
}

func (e *extractor) node(n node) vertex {
	return vertex{
		key: vkey{a: n, b: n, threshold: -1},
		z:   e.z.At(n.r, n.c),
		r:   float64(n.r),
		c:   float64(n.c),
	}
}

// crossing returns the point on edge (u, v) where z equals level. A
// crossing that lands on an endpoint is that endpoint.
func (e *extractor) crossing(u, v node, idx int, level float64) vertex {
	if v.less(u) {
		u, v = v, u
	}
	zu, zv := e.z.At(u.r, u.c), e.z.At(v.r, v.c)
	t := (level - zu) / (zv - zu)
	if t <= 0 {
		return e.node(u)
	}
	if t >= 1 {
		return e.node(v)
	}
	return vertex{
		key: vkey{a: u, b: v, threshold: idx},
		z:   level,
		r:   float64(u.r) + t*float64(v.r-u.r),
		c:   float64(u.c) + t*float64(v.c-u.c),
	}
}

// support returns the triangle edge that the segment p-q lies on. It is
// only asked about segments whose ends straddle a threshold, and those
// always run along a triangle edge.
func support(p, q vertex) (node, node) {
	pn := p.key.a == p.key.b
	qn := q.key.a == q.key.b
	switch {
	case pn && qn:
		return p.key.a, q.key.a
	case pn:
		return q.key.a, q.key.b
	default:
		return p.key.a, p.key.b
	}
}

// clip keeps the part of poly where inside holds, adding crossings at
// level on the edges that leave or enter it.
func (e *extractor) clip(poly []vertex, inside func(float64) bool, idx int, level float64) []vertex {
	out := make([]vertex, 0, len(poly)+2)
	n := len(poly)
	for i := 0; i < n; i++ {
		p, q := poly[(i+n-1)%n], poly[i]
		pin, qin := inside(p.z), inside(q.z)
		switch {
		case pin && qin:
			out = append(out, q)
		case pin:
			u, v := support(p, q)
			out = append(out, e.crossing(u, v, idx, level))
		case qin:
			u, v := support(p, q)
			out = append(out, e.crossing(u, v, idx, level), q)
		}
	}
	return dedupe(out)
}

func dedupe(poly []vertex) []vertex {
	out := poly[:0]
	for _, v := range poly {
		if len(out) > 0 && out[len(out)-1].key == v.key {
			continue
		}
		out = append(out, v)
	}
	for len(out) > 1 && out[0].key == out[len(out)-1].key {
		out = out[:len(out)-1]
	}
	return out
}

func indexArea(poly []vertex) float64 {
	var a float64
	for i := range poly {
		p, q := poly[i], poly[(i+1)%len(poly)]
		a += p.r*q.c - q.r*p.c
	}
	return a / 2
}

// triangles returns the two triangles of every cell in row then column
// order. Both wind clockwise with r as X and c as Y.
func (e *extractor) triangles() [][3]node {
	var tris [][3]node
	for r := 0; r+1 < e.z.Rows; r++ {
		for c := 0; c+1 < e.z.Cols; c++ {
			a, b := node{r, c}, node{r, c + 1}
			cc, d := node{r + 1, c + 1}, node{r + 1, c}
			tris = append(tris, [3]node{a, b, cc}, [3]node{a, cc, d})
		}
	}
	return tris
}

// band returns the rings of band idx covering lo <= z < hi.
func (e *extractor) band(idx int, lo, hi float64) []Contour {
	counts := map[edge]int{}
	var order []edge
	verts := map[vkey]vertex{}

	above := func(z float64) bool { return z >= lo }
	below := func(z float64) bool { return z < hi }

	for _, tri := range e.triangles() {
		poly := []vertex{e.node(tri[0]), e.node(tri[1]), e.node(tri[2])}
		poly = e.clip(poly, above, idx, lo)
		if len(poly) >= 3 && !math.IsInf(hi, 1) {
			poly = e.clip(poly, below, idx+1, hi)
		}
		if len(poly) < 3 || math.Abs(indexArea(poly)) < degenerateArea {
			continue
		}
		for i, v := range poly {
			verts[v.key] = v
			ed := edge{from: v.key, to: poly[(i+1)%len(poly)].key}
			rev := edge{from: ed.to, to: ed.from}
			if counts[rev] > 0 {
				counts[rev]--
				continue
			}
			if _, seen := counts[ed]; !seen {
				order = append(order, ed)
			}
			counts[ed]++
		}
	}

	outgoing := map[vkey][]edge{}
	for _, ed := range order {
		if counts[ed] > 0 {
			outgoing[ed.from] = append(outgoing[ed.from], ed)
		}
	}
	next := func(from vkey) (edge, bool) {
		for _, ed := range outgoing[from] {
			if counts[ed] > 0 {
				counts[ed]--
				return ed, true
			}
		}
		return edge{}, false
	}

	var rings []orb.Ring
	for _, ed := range order {
		for counts[ed] > 0 {
			counts[ed]--
			chain := []vertex{verts[ed.from]}
			cur := ed.to
			for cur != ed.from {
				chain = append(chain, verts[cur])
				nx, ok := next(cur)
				if !ok {
					break
				}
				cur = nx.to
			}
			chain = dropCollinear(chain)
			if len(chain) < 3 {
				continue
			}
			if r := e.ring(chain); r != nil {
				rings = append(rings, r)
			}
		}
	}

	sort.SliceStable(rings, func(i, j int) bool {
		ai, aj := math.Abs(planar.Area(rings[i])), math.Abs(planar.Area(rings[j]))
		if ai != aj {
			return ai > aj
		}
		return pointLess(rings[i][0], rings[j][0])
	})

	out := make([]Contour, 0, len(rings))
	for _, r := range rings {
		out = append(out, encode(r, idx))
	}
	return out
}

// dropCollinear removes vertices that lie on the straight line through
// their neighbours.
func dropCollinear(chain []vertex) []vertex {
	for len(chain) >= 3 {
		n := len(chain)
		kept := make([]vertex, 0, n)
		for i := 0; i < n; i++ {
			p, v, q := chain[(i+n-1)%n], chain[i], chain[(i+1)%n]
			cross := (v.r-p.r)*(q.c-v.c) - (v.c-p.c)*(q.r-v.r)
			if math.Abs(cross) >= degenerateArea {
				kept = append(kept, v)
			}
		}
		if len(kept) == n {
			break
		}
		chain = kept
	}
	return chain
}

// ring maps an index-space chain to quantized (lat, lng) coordinates with
// exteriors counter-clockwise, rotates it to start at its smallest point and
// closes it. It returns nil when quantization collapses the ring.
func (e *extractor) ring(chain []vertex) orb.Ring {
	pts := make([]orb.Point, 0, len(chain))
	for i := range chain {
		// Triangle pieces wind clockwise in index space.
		v := chain[len(chain)-1-i]
		if e.flipped {
			v = chain[i]
		}
		p := e.position(v)
		if len(pts) > 0 && pts[len(pts)-1] == p {
			continue
		}
		pts = append(pts, p)
	}
	for len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return nil
	}
	start := 0
	for i, p := range pts {
		if pointLess(p, pts[start]) {
			start = i
		}
	}
	ring := make(orb.Ring, 0, len(pts)+1)
	ring = append(ring, pts[start:]...)
	ring = append(ring, pts[:start]...)
	return append(ring, ring[0])
}

// position interpolates the coordinate surfaces at an index-space vertex.
func (e *extractor) position(v vertex) orb.Point {
	if v.key.a == v.key.b {
		n := v.key.a
		return orb.Point{quantize(e.lat.At(n.r, n.c)), quantize(e.lng.At(n.r, n.c))}
	}
	a, b := v.key.a, v.key.b
	var t float64
	if b.r != a.r {
		t = (v.r - float64(a.r)) / float64(b.r-a.r)
	} else {
		t = (v.c - float64(a.c)) / float64(b.c-a.c)
	}
	lerp := func(s *grid.Surface) float64 {
		return s.At(a.r, a.c) + t*(s.At(b.r, b.c)-s.At(a.r, a.c))
	}
	return orb.Point{quantize(lerp(e.lat)), quantize(lerp(e.lng))}
}

func encode(r orb.Ring, level int) Contour {
	path := make([]PathOp, 0, len(r)-1)
	for i, p := range r[:len(r)-1] {
		op := LineTo
		if i == 0 {
			op = MoveTo
		}
		path = append(path, PathOp{Op: op, X: p[0], Y: p[1]})
	}
	return Contour{Path: path, Level: level, K: level}
}

func quantize(v float64) float64 {
	scale := math.Pow10(Precision)
	return math.Round(v*scale) / scale
}

func pointLess(a, b orb.Point) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}
