package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_Now(t *testing.T) {
	t.Parallel()

	before := time.Now()
	got := RealClock{}.Now()
	assert.False(t, got.Before(before))

	tk := RealClock{}.NewTicker(time.Hour)
	assert.NotNil(t, tk.C())
	tk.Stop()
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2018, 1, 11, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestMockTicker_FiresWhenDue(t *testing.T) {
	t.Parallel()

	start := time.Date(2018, 1, 11, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	tk := c.NewTicker(time.Hour)
	require.Equal(t, 1, c.Tickers())

	c.Advance(30 * time.Minute)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(30 * time.Minute)
	select {
	case got := <-tk.C():
		assert.Equal(t, start.Add(time.Hour), got)
	default:
		t.Fatal("ticker did not fire")
	}

	tk.Stop()
	c.Advance(2 * time.Hour)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}
