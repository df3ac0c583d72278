package api

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/airquality.report/internal/estimate"
	"github.com/banshee-data/airquality.report/internal/httputil"
	"github.com/banshee-data/airquality.report/internal/render"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// contourImage draws the stored contour set of one record as SVG.
func (s *Server) contourImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	rec, err := s.store.GetEstimate(r.Context(), r.PathValue("id"))
	if !s.found(w, err) {
		return
	}

	var buf bytes.Buffer
	if err := render.WriteSVGTo(&buf, rec.Contours, s.colours, s.box); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render contours: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(buf.Bytes())
}

// heatmap renders the latest concentration field as an HTML scatter chart.
func (s *Server) heatmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	rec, err := s.store.LatestEstimate(r.Context())
	if !s.found(w, err) {
		return
	}

	scatter := fieldChart(rec)
	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		log.Printf("api: render heatmap: %v", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func fieldChart(rec *estimate.Record) *charts.Scatter {
	points := make([]opts.ScatterData, 0, len(rec.Estimate))
	lats := make([]float64, 0, len(rec.Estimate))
	lngs := make([]float64, 0, len(rec.Estimate))
	conc := make([]float64, 0, len(rec.Estimate))
	for _, p := range rec.Estimate {
		points = append(points, opts.ScatterData{Value: []interface{}{p.Longitude, p.Latitude, p.Concentration}})
		lats = append(lats, p.Latitude)
		lngs = append(lngs, p.Longitude)
		conc = append(conc, p.Concentration)
	}
	lo, hi := span(conc)
	if hi <= lo {
		hi = lo + 1
	}
	latLo, latHi := span(lats)
	lngLo, lngHi := span(lngs)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "PM2.5 Estimate", Theme: "dark", Width: "900px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "PM2.5 Estimate", Subtitle: fmt.Sprintf("%s grid=%dx%d", rec.EstimationFor.Format(time.RFC3339), rec.Rows, rec.Cols)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: lngLo, Max: lngHi, Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: latLo, Max: latHi, Name: "Latitude", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("concentration", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))
	return scatter
}

// span returns the extremes of v, or zeros when v is empty.
func span(v []float64) (lo, hi float64) {
	if len(v) == 0 {
		return 0, 0
	}
	return floats.Min(v), floats.Max(v)
}
