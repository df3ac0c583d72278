package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/airquality.report/internal/estimator"
	"github.com/banshee-data/airquality.report/internal/training"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := EmptyEstimateConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.GetRows())
	assert.Equal(t, 16, cfg.GetCols())
	assert.Equal(t, 6*time.Hour, cfg.GetTimeStep())
	assert.Equal(t, 96*time.Hour, cfg.GetWindow())
	assert.Equal(t, time.Hour, cfg.GetInterval())
	assert.Equal(t, 30*time.Minute, cfg.GetLockTTL())
	assert.Equal(t, []float64{0.0, 12.0, 35.4, 55.4, 150.4, 250.4}, cfg.GetBreakpoints())
	assert.Len(t, cfg.GetColours(), 6)
	assert.Equal(t, estimator.DefaultHyperparameters(), cfg.GetHyperparameters())
	assert.Equal(t, training.DefaultCalibrationTable(), cfg.GetCalibration())
	assert.Equal(t, "1.0.0", cfg.GetModelVersion())
	assert.Equal(t, StorageSQLite, cfg.GetStorage())
	assert.Equal(t, "airquality.db", cfg.GetDBPath())
	assert.Empty(t, cfg.GetSVGDir())
	assert.Empty(t, cfg.GetEstimatorURL())

	box := cfg.Box()
	assert.Equal(t, 40.598850, box.BottomLeft.Lat)
	assert.Equal(t, -111.713403, box.TopRight.Lng)
}

func TestDefaultsFileMatchesCompiledDefaults(t *testing.T) {
	t.Parallel()

	file := MustLoadDefaultConfig()
	empty := EmptyEstimateConfig()
	assert.Equal(t, empty.Box(), file.Box())
	assert.Equal(t, empty.GetRows(), file.GetRows())
	assert.Equal(t, empty.GetCols(), file.GetCols())
	assert.Equal(t, empty.GetTimeStep(), file.GetTimeStep())
	assert.Equal(t, empty.GetBreakpoints(), file.GetBreakpoints())
	assert.Equal(t, empty.GetColours(), file.GetColours())
	assert.Equal(t, empty.GetHyperparameters(), file.GetHyperparameters())
	assert.Equal(t, empty.GetCalibration(), file.GetCalibration())
	assert.Equal(t, empty.GetModelVersion(), file.GetModelVersion())
	assert.Equal(t, empty.GetLockTTL(), file.GetLockTTL())
}

func TestLoadEstimateConfig_PartialOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "partial.json", `{
  "rows": 4,
  "time_step": "1h",
  "hyperparameters": {"sigma_n": 2.5},
  "calibration": {"SDS011": {"slope": 0.9, "intercept": 0.1}}
}`)
	cfg, err := LoadEstimateConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.GetRows())
	assert.Equal(t, 16, cfg.GetCols())
	assert.Equal(t, time.Hour, cfg.GetTimeStep())

	h := cfg.GetHyperparameters()
	assert.Equal(t, 2.5, h.SigmaN)
	assert.Equal(t, estimator.DefaultHyperparameters().SigmaF, h.SigmaF)

	table := cfg.GetCalibration()
	require.Len(t, table, 1)
	c, ok := table.Lookup("sds011")
	require.True(t, ok)
	assert.Equal(t, 0.9, c.Slope)
}

func TestLoadEstimateConfig_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"degenerate box":   `{"bottom_left": [40, -112], "top_right": [40, -111]}`,
		"zero rows":        `{"rows": 0}`,
		"bad duration":     `{"time_step": "six hours"}`,
		"negative window":  `{"window": "-1h"}`,
		"unsorted bands":   `{"breakpoints": [0, 35.4, 12], "colours": ["#000000", "#111111", "#222222"]}`,
		"colour count":     `{"colours": ["#000000"]}`,
		"bad degree":       `{"hyperparameters": {"basis_degree": 7}}`,
		"zero slope":       `{"calibration": {"PMS5003": {"slope": 0, "intercept": 1}}}`,
		"unknown storage":  `{"storage": "mongo"}`,
		"postgres, no dsn": `{"storage": "postgres"}`,
		"not json":         `{rows: 1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadEstimateConfig(writeConfig(t, "c.json", body))
			assert.Error(t, err)
		})
	}
}

func TestLoadEstimateConfig_FileChecks(t *testing.T) {
	t.Parallel()

	_, err := LoadEstimateConfig(writeConfig(t, "c.yaml", `{}`))
	assert.ErrorContains(t, err, ".json extension")

	_, err = LoadEstimateConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	big := `{"model_version": "` + strings.Repeat("x", 1024*1024) + `"}`
	_, err = LoadEstimateConfig(writeConfig(t, "big.json", big))
	assert.ErrorContains(t, err, "too large")
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvDBPath:       "/var/lib/airq/airq.db",
		EnvEstimatorURL: "http://gp:8000",
		EnvSVGDir:       "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := EmptyEstimateConfig()
	cfg.SVGDir = ptrString("/srv/svg")
	cfg.ApplyEnv(lookup)

	assert.Equal(t, "/var/lib/airq/airq.db", cfg.GetDBPath())
	assert.Equal(t, "http://gp:8000", cfg.GetEstimatorURL())
	assert.Equal(t, "/srv/svg", cfg.GetSVGDir(), "empty env value keeps the file value")
	assert.Empty(t, cfg.GetPostgresDSN())
}
