// Package pipeline runs one estimation end to end: query the window, build
// the training set, call the estimator, contour the predicted field and
// persist a single record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/airquality.report/internal/config"
	"github.com/banshee-data/airquality.report/internal/contour"
	"github.com/banshee-data/airquality.report/internal/estimate"
	"github.com/banshee-data/airquality.report/internal/estimator"
	"github.com/banshee-data/airquality.report/internal/grid"
	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/render"
	"github.com/banshee-data/airquality.report/internal/timeutil"
	"github.com/banshee-data/airquality.report/internal/training"
)

// LockName is the run lock shared by every estimate run.
const LockName = "estimate"

// Source returns the raw observations for a window and region, binned by step.
type Source interface {
	Query(ctx context.Context, window training.Window, box grid.BoundingBox, step time.Duration) (*training.RawObservationSet, error)
}

// Sink persists a finished record in two steps. Stage writes it without
// making it visible; the run commits every staged write only after all
// sinks have accepted the record.
type Sink interface {
	Stage(ctx context.Context, rec *estimate.Record) (estimate.Pending, error)
}

// Locker provides the named lease that keeps runs from overlapping.
type Locker interface {
	TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

// RunContext identifies one run. It is created once when the run starts and
// its timestamp is the only clock reading the run makes.
type RunContext struct {
	ID        string
	Timestamp time.Time
	Window    training.Window
	Rows      int
	Cols      int
}

// Settings are the fixed parameters of every run.
type Settings struct {
	Box             grid.BoundingBox
	Step            time.Duration
	Breakpoints     []float64
	Colours         []string
	Hyperparameters estimator.Hyperparameters
	Calibration     training.CalibrationTable
	ModelVersion    string
	// SVGDir enables the contour image when non-empty.
	SVGDir  string
	LockTTL time.Duration
}

// SettingsFromConfig resolves cfg into run settings.
func SettingsFromConfig(cfg *config.EstimateConfig) Settings {
	return Settings{
		Box:             cfg.Box(),
		Step:            cfg.GetTimeStep(),
		Breakpoints:     cfg.GetBreakpoints(),
		Colours:         cfg.GetColours(),
		Hyperparameters: cfg.GetHyperparameters(),
		Calibration:     cfg.GetCalibration(),
		ModelVersion:    cfg.GetModelVersion(),
		SVGDir:          cfg.GetSVGDir(),
		LockTTL:         cfg.GetLockTTL(),
	}
}

// Validate checks the settings that do not depend on the requested grid.
func (s Settings) Validate() error {
	if err := s.Box.Validate(); err != nil {
		return err
	}
	if s.Step <= 0 {
		return fmt.Errorf("time step must be positive, got %s", s.Step)
	}
	if len(s.Breakpoints) == 0 || !sort.Float64sAreSorted(s.Breakpoints) {
		return fmt.Errorf("breakpoints must be non-empty and ascending: %v", s.Breakpoints)
	}
	for i := 1; i < len(s.Breakpoints); i++ {
		if s.Breakpoints[i] == s.Breakpoints[i-1] {
			return fmt.Errorf("breakpoint %v is repeated", s.Breakpoints[i])
		}
	}
	if s.SVGDir != "" && len(s.Colours) < len(s.Breakpoints) {
		return fmt.Errorf("%d colours for %d bands", len(s.Colours), len(s.Breakpoints))
	}
	if err := s.Hyperparameters.Validate(); err != nil {
		return err
	}
	if !s.Hyperparameters.Predict {
		return errors.New("hyperparameters must request predictions")
	}
	if s.Hyperparameters.Fit {
		return estimator.ErrFitUnsupported
	}
	return s.Calibration.Validate()
}

// Pipeline holds the collaborators of a run. Locker may be nil, in which
// case overlapping runs are not prevented.
type Pipeline struct {
	Source    Source
	Estimator estimator.Estimator
	Sinks     []Sink
	Locker    Locker
	Clock     timeutil.Clock
	Settings  Settings
}

// Result describes a completed run.
type Result struct {
	Run     RunContext
	Report  *training.Report
	Record  *estimate.Record
	SVGPath string
}

func (p *Pipeline) clock() timeutil.Clock {
	if p.Clock == nil {
		return timeutil.RealClock{}
	}
	return p.Clock
}

// NewRunContext stamps a run of the given resolution over window.
func (p *Pipeline) NewRunContext(rows, cols int, window training.Window) RunContext {
	return RunContext{
		ID:        uuid.NewString(),
		Timestamp: p.clock().Now().UTC().Truncate(time.Second),
		Window:    window,
		Rows:      rows,
		Cols:      cols,
	}
}

// Run executes one estimation of a rows x cols grid over window. Either one
// record reaches every sink or the run fails. Records are staged in every
// sink before any is committed.
func (p *Pipeline) Run(ctx context.Context, rows, cols int, window training.Window) (*Result, error) {
	rc := p.NewRunContext(rows, cols, window)
	return p.RunWith(ctx, rc)
}

// RunWith executes the run described by rc.
func (p *Pipeline) RunWith(ctx context.Context, rc RunContext) (*Result, error) {
	spec, err := p.check(rc)
	if err != nil {
		return nil, err
	}
	logf := monitoring.Prefixed("pipeline: run " + rc.ID + ": ")

	if p.Locker != nil {
		ok, err := p.Locker.TryAcquireLock(ctx, LockName, rc.ID, p.Settings.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: acquire run lock: %v", ErrExternalCall, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: lock %q is held", ErrRunInProgress, LockName)
		}
		defer func() {
			// The run's own context may already be cancelled.
			if err := p.Locker.ReleaseLock(context.Background(), LockName, rc.ID); err != nil {
				logf("release lock: %v", err)
			}
		}()
	}

	raw, err := p.Source.Query(ctx, rc.Window, p.Settings.Box, p.Settings.Step)
	if err != nil {
		return nil, fmt.Errorf("%w: query observations: %v", ErrExternalCall, err)
	}

	ts, report, err := training.NewAssembler(p.Settings.Calibration).Assemble(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataQuality, err)
	}
	logf("%d sensors x %d steps, %d missing, %d sensors excluded, %d rows kept, %d dropped",
		report.Sensors, report.Steps, report.MissingReadings, len(report.ExcludedSensors), report.Kept, report.Dropped)

	mesh := spec.Mesh()
	in := estimator.Input{
		Query:  mesh.Features(),
		TrainX: ts.X,
		TrainY: ts.Y,
		Params: p.Settings.Hyperparameters,
	}
	out, err := p.Estimator.Estimate(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: estimate: %v", ErrExternalCall, err)
	}
	if err := estimator.CheckOutput(in, out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalCall, err)
	}

	set, err := p.contours(mesh, out.Mean)
	if err != nil {
		return nil, err
	}

	rec, err := estimate.Assemble(
		estimate.Meta{ID: rc.ID, EstimationFor: rc.Timestamp, ModelVersion: p.Settings.ModelVersion},
		estimate.Parts{
			Latitudes:  mesh.Latitudes(),
			Longitudes: mesh.Longitudes(),
			Mean:       out.Mean,
			Variance:   out.Variance,
			Contours:   set,
			Rows:       rc.Rows,
			Cols:       rc.Cols,
			Bands:      len(p.Settings.Breakpoints),
		})
	if err != nil {
		return nil, fmt.Errorf("%w: assemble record: %w", ErrExternalCall, err)
	}

	if err := p.persist(ctx, rec, logf); err != nil {
		return nil, err
	}

	res := &Result{Run: rc, Report: report, Record: rec}
	if p.Settings.SVGDir != "" {
		path := render.FilePath(p.Settings.SVGDir, rc.Window.End)
		if err := render.WriteSVG(path, set, p.Settings.Colours, p.Settings.Box); err != nil {
			logf("write contour image: %v", err)
		} else {
			res.SVGPath = path
		}
	}

	logf("at %s: %dx%d grid, %d contours, record %s",
		rc.Timestamp.Format(time.RFC3339), rc.Rows, rc.Cols, len(set), rec.ID)
	return res, nil
}

func (p *Pipeline) check(rc RunContext) (grid.Spec, error) {
	spec, err := grid.NewSpec(rc.Rows, rc.Cols, p.Settings.Box)
	if err != nil {
		return grid.Spec{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := rc.Window.Validate(); err != nil {
		return grid.Spec{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := p.Settings.Validate(); err != nil {
		return grid.Spec{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if p.Source == nil || p.Estimator == nil || len(p.Sinks) == 0 {
		return grid.Spec{}, fmt.Errorf("%w: pipeline needs a source, an estimator and at least one sink", ErrConfiguration)
	}
	return spec, nil
}

// contours reshapes the mean field onto the mesh and extracts the bands.
func (p *Pipeline) contours(mesh *grid.Mesh, mean []float64) (contour.Set, error) {
	rows, cols := mesh.Spec.Rows, mesh.Spec.Cols
	lat, err := grid.Reshape(mesh.Latitudes(), rows, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	lng, err := grid.Reshape(mesh.Longitudes(), rows, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	conc, err := grid.Reshape(mean, rows, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalCall, err)
	}
	set, err := contour.Extract(lat, lng, conc, p.Settings.Breakpoints)
	if errors.Is(err, contour.ErrNonFinite) {
		return nil, fmt.Errorf("%w: estimator returned %w", ErrExternalCall, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return set, nil
}

// persist stages rec in every sink and then commits them in order. A staging
// failure rolls back what was staged, so no sink keeps the record. A commit
// failure rolls back the sinks not yet committed.
func (p *Pipeline) persist(ctx context.Context, rec *estimate.Record, logf func(string, ...interface{})) error {
	staged := make([]estimate.Pending, 0, len(p.Sinks))
	rollback := func(pending []estimate.Pending) {
		for _, pend := range pending {
			if err := pend.Rollback(context.Background()); err != nil {
				logf("rollback estimate %s: %v", rec.ID, err)
			}
		}
	}
	for i, sink := range p.Sinks {
		pend, err := sink.Stage(ctx, rec)
		if err != nil {
			rollback(staged)
			return fmt.Errorf("%w: store estimate %s in sink %d: %v", ErrExternalCall, rec.ID, i, err)
		}
		staged = append(staged, pend)
	}
	for i, pend := range staged {
		if err := pend.Commit(ctx); err != nil {
			rollback(staged[i+1:])
			if i > 0 {
				logf("estimate %s committed to %d of %d sinks", rec.ID, i, len(staged))
			}
			return fmt.Errorf("%w: commit estimate %s in sink %d: %v", ErrExternalCall, rec.ID, i, err)
		}
	}
	return nil
}
