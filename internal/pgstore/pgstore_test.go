package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/airquality.report/internal/contour"
	"github.com/banshee-data/airquality.report/internal/estimate"
)

// openTestStore connects to AIRQ_TEST_PG_DSN or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("AIRQ_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AIRQ_TEST_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStore_InsertLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Far in the future so it sorts after anything already in the table.
	at := time.Date(2999, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &estimate.Record{
		ID:            uuid.NewString(),
		EstimationFor: at,
		ModelVersion:  estimate.DefaultModelVersion,
		Rows:          1,
		Cols:          1,
		Estimate:      []estimate.Point{{Latitude: 40.6, Longitude: -112, Concentration: 7, Variance: 1}},
		Contours:      contour.Set{},
	}
	require.NoError(t, s.Insert(ctx, rec))
	assert.Error(t, s.Insert(ctx, rec), "records are insert-only")

	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Estimate, got.Estimate)

	_, err = s.pool.Exec(ctx, `DELETE FROM time_sliced_estimates WHERE id = $1`, rec.ID)
	require.NoError(t, err)
}

func TestStore_InsertRejectsInconsistentRecord(t *testing.T) {
	t.Parallel()

	// Validation runs before any database access.
	s := &Store{}
	err := s.Insert(context.Background(), &estimate.Record{Rows: 2, Cols: 2})
	assert.ErrorIs(t, err, estimate.ErrInconsistent)
}
