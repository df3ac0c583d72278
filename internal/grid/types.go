package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrInvalidGrid is returned for malformed resolutions and degenerate boxes.
var ErrInvalidGrid = errors.New("invalid grid")

// LatLng is a geographic coordinate in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox is the region of interest, given by its bottom-left and
// top-right corners.
type BoundingBox struct {
	BottomLeft LatLng `json:"bottom_left"`
	TopRight   LatLng `json:"top_right"`
}

// Validate reports a degenerate box. The corners must differ in both axes and
// the bottom-left corner must be south-west of the top-right one.
func (b BoundingBox) Validate() error {
	if b.BottomLeft.Lat >= b.TopRight.Lat {
		return fmt.Errorf("%w: bottom-left latitude %f must be below top-right latitude %f",
			ErrInvalidGrid, b.BottomLeft.Lat, b.TopRight.Lat)
	}
	if b.BottomLeft.Lng >= b.TopRight.Lng {
		return fmt.Errorf("%w: bottom-left longitude %f must be west of top-right longitude %f",
			ErrInvalidGrid, b.BottomLeft.Lng, b.TopRight.Lng)
	}
	return nil
}

// Bound returns the box as an orb.Bound (X = longitude, Y = latitude).
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.BottomLeft.Lng, b.BottomLeft.Lat},
		Max: orb.Point{b.TopRight.Lng, b.TopRight.Lat},
	}
}

// Contains reports whether p lies inside the box, edges included.
func (b BoundingBox) Contains(p LatLng) bool {
	return b.Bound().Contains(orb.Point{p.Lng, p.Lat})
}

// LatSpan is the absolute latitude extent of the box.
func (b BoundingBox) LatSpan() float64 {
	return math.Abs(b.BottomLeft.Lat - b.TopRight.Lat)
}

// LngSpan is the absolute longitude extent of the box.
func (b BoundingBox) LngSpan() float64 {
	return math.Abs(b.BottomLeft.Lng - b.TopRight.Lng)
}

// Point is one query coordinate. RelTime is always 0 for mesh points: the
// estimate is requested at the reference instant of the training batch.
type Point struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RelTime float64 `json:"rel_time"`
}
