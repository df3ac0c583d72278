package training

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_Bins(t *testing.T) {
	t.Parallel()

	start := time.Date(2018, 1, 7, 0, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(24 * time.Hour)}

	bins, err := w.Bins(6 * time.Hour)
	require.NoError(t, err)
	require.Len(t, bins, 4)
	assert.Equal(t, start, bins[0])
	assert.Equal(t, start.Add(18*time.Hour), bins[3])

	bins, err = w.Bins(7 * time.Hour)
	require.NoError(t, err)
	assert.Len(t, bins, 4, "partial trailing bin is kept")
}

func TestWindow_Errors(t *testing.T) {
	t.Parallel()

	start := time.Date(2018, 1, 7, 0, 0, 0, 0, time.UTC)
	_, err := Window{Start: start, End: start}.Bins(time.Hour)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = Window{Start: start, End: start.Add(-time.Hour)}.Bins(time.Hour)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = Window{Start: start, End: start.Add(time.Hour)}.Bins(0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
