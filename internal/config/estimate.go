package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/airquality.report/internal/estimate"
	"github.com/banshee-data/airquality.report/internal/estimator"
	"github.com/banshee-data/airquality.report/internal/grid"
	"github.com/banshee-data/airquality.report/internal/training"
)

// DefaultConfigPath is the path to the canonical estimation defaults file.
const DefaultConfigPath = "config/estimate.defaults.json"

// Storage drivers.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Environment overrides applied by ApplyEnv.
const (
	EnvDBPath       = "AIRQ_DB_PATH"
	EnvPostgresDSN  = "AIRQ_PG_DSN"
	EnvEstimatorURL = "AIRQ_ESTIMATOR_URL"
	EnvSVGDir       = "AIRQ_SVG_DIR"
)

// EstimateConfig is the root configuration of the estimation job and the
// API server. Unset fields fall back to the defaults returned by the Get*
// methods, so partial files are safe.
type EstimateConfig struct {
	// Region, as [lat, lng] pairs.
	BottomLeft *[2]float64 `json:"bottom_left,omitempty"`
	TopRight   *[2]float64 `json:"top_right,omitempty"`

	// Grid resolution used when the caller gives none.
	Rows *int `json:"rows,omitempty"`
	Cols *int `json:"cols,omitempty"`

	// Aggregation bin width of upstream readings, e.g. "6h".
	TimeStep *string `json:"time_step,omitempty"`
	// Scheduled runs: lookback window and tick interval.
	Window   *string `json:"window,omitempty"`
	Interval *string `json:"interval,omitempty"`

	Breakpoints []float64 `json:"breakpoints,omitempty"`
	Colours     []string  `json:"colours,omitempty"`

	Hyperparameters *GPConfig                       `json:"hyperparameters,omitempty"`
	Calibration     map[string]training.Calibration `json:"calibration,omitempty"`

	ModelVersion *string `json:"model_version,omitempty"`
	SVGDir       *string `json:"svg_dir,omitempty"`
	LockTTL      *string `json:"lock_ttl,omitempty"`

	Storage      *string `json:"storage,omitempty"`
	DBPath       *string `json:"db_path,omitempty"`
	PostgresDSN  *string `json:"postgres_dsn,omitempty"`
	EstimatorURL *string `json:"estimator_url,omitempty"` // empty runs the in-process estimator
}

// GPConfig overrides individual estimator hyperparameters.
type GPConfig struct {
	SigmaF      *float64 `json:"sigma_f,omitempty"`
	LengthSpace *float64 `json:"length_space,omitempty"`
	LengthTime  *float64 `json:"length_time,omitempty"`
	SigmaN      *float64 `json:"sigma_n,omitempty"`
	BasisDegree *int     `json:"basis_degree,omitempty"`
	Fit         *bool    `json:"fit,omitempty"`
	Predict     *bool    `json:"predict,omitempty"`
}

var (
	defaultBottomLeft  = [2]float64{40.598850, -112.001349}
	defaultTopRight    = [2]float64{40.810476, -111.713403}
	defaultBreakpoints = []float64{0.0, 12.0, 35.4, 55.4, 150.4, 250.4}
	defaultColours     = []string{"#a6d96a", "#ffffbf", "#fdae61", "#d7191c", "#bd0026", "#a63603"}
)

func ptrString(v string) *string { return &v }

// EmptyEstimateConfig returns a config with every field unset.
func EmptyEstimateConfig() *EstimateConfig {
	return &EstimateConfig{}
}

// LoadEstimateConfig loads an EstimateConfig from a JSON file. The file must
// have a .json extension and be under 1MB.
func LoadEstimateConfig(path string) (*EstimateConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEstimateConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded; intended for
// test setup.
func MustLoadDefaultConfig() *EstimateConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadEstimateConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// ApplyEnv overrides storage and output locations from the environment.
// lookup is normally os.LookupEnv.
func (c *EstimateConfig) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst **string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = ptrString(v)
		}
	}
	set(EnvDBPath, &c.DBPath)
	set(EnvPostgresDSN, &c.PostgresDSN)
	set(EnvEstimatorURL, &c.EstimatorURL)
	set(EnvSVGDir, &c.SVGDir)
}

// Validate checks that the configuration values are valid.
func (c *EstimateConfig) Validate() error {
	if err := c.Box().Validate(); err != nil {
		return err
	}
	if c.Rows != nil && *c.Rows < 1 {
		return fmt.Errorf("rows must be at least 1, got %d", *c.Rows)
	}
	if c.Cols != nil && *c.Cols < 1 {
		return fmt.Errorf("cols must be at least 1, got %d", *c.Cols)
	}

	for _, f := range []struct {
		name string
		v    *string
	}{
		{"time_step", c.TimeStep},
		{"window", c.Window},
		{"interval", c.Interval},
		{"lock_ttl", c.LockTTL},
	} {
		name, v := f.name, f.v
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	bp := c.GetBreakpoints()
	for i := 1; i < len(bp); i++ {
		if bp[i] <= bp[i-1] {
			return fmt.Errorf("breakpoints must be strictly ascending: %v follows %v", bp[i], bp[i-1])
		}
	}
	if n, m := len(c.GetColours()), len(bp); n != m {
		return fmt.Errorf("%d colours configured for %d breakpoints", n, m)
	}

	if err := c.GetHyperparameters().Validate(); err != nil {
		return err
	}
	if err := c.GetCalibration().Validate(); err != nil {
		return err
	}

	switch c.GetStorage() {
	case StorageSQLite:
	case StoragePostgres:
		if c.GetPostgresDSN() == "" {
			return fmt.Errorf("storage %q requires postgres_dsn", StoragePostgres)
		}
	default:
		return fmt.Errorf("unknown storage %q", c.GetStorage())
	}
	return nil
}

// Box returns the configured region.
func (c *EstimateConfig) Box() grid.BoundingBox {
	bl, tr := defaultBottomLeft, defaultTopRight
	if c.BottomLeft != nil {
		bl = *c.BottomLeft
	}
	if c.TopRight != nil {
		tr = *c.TopRight
	}
	return grid.BoundingBox{
		BottomLeft: grid.LatLng{Lat: bl[0], Lng: bl[1]},
		TopRight:   grid.LatLng{Lat: tr[0], Lng: tr[1]},
	}
}

// GetRows returns the rows value or the default.
func (c *EstimateConfig) GetRows() int {
	if c.Rows == nil {
		return 10 // default
	}
	return *c.Rows
}

// GetCols returns the cols value or the default.
func (c *EstimateConfig) GetCols() int {
	if c.Cols == nil {
		return 16 // default
	}
	return *c.Cols
}

func duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetTimeStep returns the aggregation bin width.
func (c *EstimateConfig) GetTimeStep() time.Duration { return duration(c.TimeStep, 6*time.Hour) }

// GetWindow returns the lookback of a scheduled run.
func (c *EstimateConfig) GetWindow() time.Duration { return duration(c.Window, 96*time.Hour) }

// GetInterval returns the tick interval of scheduled runs.
func (c *EstimateConfig) GetInterval() time.Duration { return duration(c.Interval, time.Hour) }

// GetLockTTL returns how long a run lock lease lasts.
func (c *EstimateConfig) GetLockTTL() time.Duration { return duration(c.LockTTL, 30*time.Minute) }

// GetBreakpoints returns a copy of the band thresholds.
func (c *EstimateConfig) GetBreakpoints() []float64 {
	src := c.Breakpoints
	if len(src) == 0 {
		src = defaultBreakpoints
	}
	return append([]float64(nil), src...)
}

// GetColours returns a copy of the band colours.
func (c *EstimateConfig) GetColours() []string {
	src := c.Colours
	if len(src) == 0 {
		src = defaultColours
	}
	return append([]string(nil), src...)
}

// GetHyperparameters overlays the configured values on the estimator
// defaults.
func (c *EstimateConfig) GetHyperparameters() estimator.Hyperparameters {
	h := estimator.DefaultHyperparameters()
	g := c.Hyperparameters
	if g == nil {
		return h
	}
	if g.SigmaF != nil {
		h.SigmaF = *g.SigmaF
	}
	if g.LengthSpace != nil {
		h.LengthSpace = *g.LengthSpace
	}
	if g.LengthTime != nil {
		h.LengthTime = *g.LengthTime
	}
	if g.SigmaN != nil {
		h.SigmaN = *g.SigmaN
	}
	if g.BasisDegree != nil {
		h.BasisDegree = *g.BasisDegree
	}
	if g.Fit != nil {
		h.Fit = *g.Fit
	}
	if g.Predict != nil {
		h.Predict = *g.Predict
	}
	return h
}

// GetCalibration returns the calibration table. A configured table replaces
// the built-in one entirely.
func (c *EstimateConfig) GetCalibration() training.CalibrationTable {
	if len(c.Calibration) == 0 {
		return training.DefaultCalibrationTable()
	}
	out := make(training.CalibrationTable, len(c.Calibration))
	for k, v := range c.Calibration {
		out[k] = v
	}
	return out
}

// GetModelVersion returns the record schema version tag.
func (c *EstimateConfig) GetModelVersion() string {
	if c.ModelVersion == nil || *c.ModelVersion == "" {
		return estimate.DefaultModelVersion
	}
	return *c.ModelVersion
}

// GetSVGDir returns the artifact directory; empty disables the artifact.
func (c *EstimateConfig) GetSVGDir() string {
	if c.SVGDir == nil {
		return ""
	}
	return *c.SVGDir
}

// GetStorage returns the storage driver.
func (c *EstimateConfig) GetStorage() string {
	if c.Storage == nil || *c.Storage == "" {
		return StorageSQLite
	}
	return *c.Storage
}

// GetDBPath returns the sqlite database path.
func (c *EstimateConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "airquality.db"
	}
	return *c.DBPath
}

// GetPostgresDSN returns the Postgres connection string.
func (c *EstimateConfig) GetPostgresDSN() string {
	if c.PostgresDSN == nil {
		return ""
	}
	return *c.PostgresDSN
}

// GetEstimatorURL returns the remote estimator base URL, or "".
func (c *EstimateConfig) GetEstimatorURL() string {
	if c.EstimatorURL == nil {
		return ""
	}
	return *c.EstimatorURL
}
