package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/airquality.report/internal/db"
	"github.com/banshee-data/airquality.report/internal/estimator"
	"github.com/banshee-data/airquality.report/internal/timeutil"
	"github.com/banshee-data/airquality.report/internal/training"
)

// seedStore fills a fresh database with three sensors observed over the
// first two 6 h bins of the window.
func seedStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.OpenDB(filepath.Join(t.TempDir(), "airq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	for _, s := range []db.Sensor{
		{ID: "A-1", Source: "airu", Model: "PMS3003", Latitude: 40.65, Longitude: -111.80},
		{ID: "B-2", Source: "purpleair", Model: "PMS5003", Latitude: 40.70, Longitude: -111.90},
		{ID: "C-3", Source: "purpleair", Model: "PMS5003", Latitude: 40.76, Longitude: -111.85},
	} {
		require.NoError(t, store.UpsertSensor(ctx, s))
	}
	var readings []db.Reading
	for i, id := range []string{"A-1", "B-2", "C-3"} {
		for h := 0; h < 12; h += 2 {
			readings = append(readings, db.Reading{
				SensorID: id,
				Time:     windowStart.Add(time.Duration(h) * time.Hour),
				Value:    training.Value(float64(8 + 6*i + h)),
			})
		}
	}
	require.NoError(t, store.InsertReadings(ctx, readings))
	return store
}

func TestRun_EndToEndWithSQLite(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	clock := timeutil.NewMockClock(runAt)
	store.SetClock(clock)

	p := &Pipeline{
		Source:    store,
		Estimator: estimator.NewGaussianProcess(),
		Sinks:     []Sink{store},
		Locker:    store,
		Clock:     clock,
		Settings:  testSettings(),
	}
	res, err := p.Run(context.Background(), 4, 5, training.Window{Start: windowStart, End: windowStart.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Report.Kept)
	assert.Equal(t, 6, res.Report.Dropped, "the last two bins are empty")

	got, err := store.LatestEstimate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Record.ID, got.ID)
	require.NoError(t, got.Validate())
	_, _, conc, err := got.Surfaces()
	require.NoError(t, err)
	lo, hi := conc.MinMax()
	assert.Greater(t, hi, lo)
	assert.NotEmpty(t, got.Contours)

	_, _, err = store.LockHolder(context.Background(), LockName)
	assert.ErrorIs(t, err, db.ErrNotFound, "lock is released after the run")
}

func TestRun_SQLiteLockExcludesOverlap(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	clock := timeutil.NewMockClock(runAt)
	store.SetClock(clock)
	ok, err := store.TryAcquireLock(context.Background(), LockName, "cron-run", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	p := &Pipeline{
		Source:    store,
		Estimator: estimator.NewGaussianProcess(),
		Sinks:     []Sink{store},
		Locker:    store,
		Clock:     clock,
		Settings:  testSettings(),
	}
	_, err = p.Run(context.Background(), 2, 2, window)
	assert.ErrorIs(t, err, ErrRunInProgress)

	// Once the lease expires a new run may take it over.
	clock.Advance(2 * time.Hour)
	_, err = p.Run(context.Background(), 2, 2, training.Window{Start: windowStart, End: windowStart.Add(24 * time.Hour)})
	assert.NoError(t, err)
}
