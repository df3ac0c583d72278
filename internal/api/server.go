// Package api serves stored estimate records over HTTP.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/airquality.report/internal/db"
	"github.com/banshee-data/airquality.report/internal/estimate"
	"github.com/banshee-data/airquality.report/internal/grid"
	"github.com/banshee-data/airquality.report/internal/httputil"
	"github.com/banshee-data/airquality.report/internal/version"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Query parameter timestamps accept RFC 3339 as well as the layout the batch
// job uses on its command line.
var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02"}

var endOfTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// Store is the read side of the estimate table.
type Store interface {
	LatestEstimate(ctx context.Context) (*estimate.Record, error)
	GetEstimate(ctx context.Context, id string) (*estimate.Record, error)
	ListEstimates(ctx context.Context, start, end time.Time, limit int) ([]estimate.Summary, error)
}

// Server answers estimate queries. Colours and Box are used to draw
// contour images on request.
type Server struct {
	store   Store
	colours []string
	box     grid.BoundingBox
}

func NewServer(store Store, colours []string, box grid.BoundingBox) *Server {
	return &Server{store: store, colours: colours, box: box}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/estimates", s.listEstimates)
	mux.HandleFunc("/api/estimates/latest", s.latestEstimate)
	mux.HandleFunc("/api/estimates/{id}", s.getEstimate)
	mux.HandleFunc("/api/estimates/{id}/contours.svg", s.contourImage)
	mux.HandleFunc("/debug/estimates/heatmap", s.heatmap)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, version.Current())
}

func parseTime(v string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

func (s *Server) listEstimates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	q := r.URL.Query()
	start, end := time.Unix(0, 0).UTC(), endOfTime
	if v := q.Get("start"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'start' parameter")
			return
		}
		start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'end' parameter")
			return
		}
		end = t
	}
	if !end.After(start) {
		httputil.BadRequest(w, "'end' must be after 'start'")
		return
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}

	summaries, err := s.store.ListEstimates(r.Context(), start, end, limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list estimates")
		log.Printf("api: list estimates: %v", err)
		return
	}
	httputil.WriteJSONOK(w, summaries)
}

func (s *Server) latestEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	rec, err := s.store.LatestEstimate(r.Context())
	if !s.found(w, err) {
		return
	}
	httputil.WriteJSONOK(w, rec)
}

func (s *Server) getEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	rec, err := s.store.GetEstimate(r.Context(), r.PathValue("id"))
	if !s.found(w, err) {
		return
	}
	httputil.WriteJSONOK(w, rec)
}

// found writes the error response for a failed lookup and reports whether
// the caller should continue.
func (s *Server) found(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, db.ErrNotFound):
		httputil.NotFound(w, "estimate not found")
	default:
		httputil.InternalServerError(w, "failed to load estimate")
		log.Printf("api: load estimate: %v", err)
	}
	return false
}
