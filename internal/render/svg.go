// Package render draws the filled contour bands of an estimate as an SVG
// image. The image is a side artifact and never feeds back into a record.
package render

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/airquality.report/internal/contour"
	"github.com/banshee-data/airquality.report/internal/grid"
)

// FileTimeLayout names artifacts after the end of their window.
const FileTimeLayout = "2006-01-02T15:04:05Z"

var (
	width  = 8 * vg.Inch
	height = 6 * vg.Inch
)

// FilePath returns the artifact path for a window ending at end.
func FilePath(dir string, end time.Time) string {
	return filepath.Join(dir, end.UTC().Format(FileTimeLayout)+".svg")
}

// ParseColour parses "#rrggbb" or "#rrggbbaa".
func ParseColour(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("colour %q: want #rrggbb", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// Plot builds a plot of the bands in set, longitude on X, clipped to box.
// colours[i] fills band i.
func Plot(set contour.Set, colours []string, box grid.BoundingBox) (*plot.Plot, error) {
	palette := make([]color.Color, len(colours))
	for i, c := range colours {
		rgba, err := ParseColour(c)
		if err != nil {
			return nil, err
		}
		palette[i] = rgba
	}

	p := plot.New()
	p.HideAxes()
	p.X.Min, p.X.Max = box.BottomLeft.Lng, box.TopRight.Lng
	p.Y.Min, p.Y.Max = box.BottomLeft.Lat, box.TopRight.Lat

	for _, band := range set.Bands() {
		if band.Level >= len(palette) {
			return nil, fmt.Errorf("band %d has no colour (%d configured)", band.Level, len(palette))
		}
		for _, poly := range band.Polygons {
			rings := make([]plotter.XYer, 0, len(poly))
			for _, ring := range poly {
				xys := make(plotter.XYs, 0, len(ring))
				for _, pt := range ring {
					xys = append(xys, plotter.XY{X: pt[1], Y: pt[0]})
				}
				rings = append(rings, xys)
			}
			pg, err := plotter.NewPolygon(rings...)
			if err != nil {
				return nil, fmt.Errorf("band %d polygon: %w", band.Level, err)
			}
			pg.Color = palette[band.Level]
			pg.LineStyle.Width = 0
			p.Add(pg)
		}
	}
	return p, nil
}

// WriteSVGTo renders set as SVG into w.
func WriteSVGTo(w io.Writer, set contour.Set, colours []string, box grid.BoundingBox) error {
	p, err := Plot(set, colours, box)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, "svg")
	if err != nil {
		return fmt.Errorf("svg writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

// WriteSVG renders set to path, creating its directory.
func WriteSVG(path string, set contour.Set, colours []string, box grid.BoundingBox) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteSVGTo(f, set, colours, box); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
