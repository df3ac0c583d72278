package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/airquality.report/internal/estimate"
	"github.com/banshee-data/airquality.report/internal/training"
)

type chanSink chan *estimate.Record

func (s chanSink) Stage(_ context.Context, rec *estimate.Record) (estimate.Pending, error) {
	return chanPending{sink: s, rec: rec}, nil
}

type chanPending struct {
	sink chanSink
	rec  *estimate.Record
}

func (p chanPending) Commit(context.Context) error {
	p.sink <- p.rec
	return nil
}

func (chanPending) Rollback(context.Context) error { return nil }

func TestWorker_RunOnceCoversTrailingWindow(t *testing.T) {
	t.Parallel()

	f := newFixture()
	w := NewWorker(f.p, 2, 3, time.Hour, 96*time.Hour)
	res, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	end := runAt.Truncate(time.Second)
	assert.Equal(t, training.Window{Start: end.Add(-96 * time.Hour), End: end}, f.source.window)
	assert.Equal(t, 2, res.Record.Rows)
	assert.Equal(t, 3, res.Record.Cols)
}

func TestWorker_RunsOnEachTick(t *testing.T) {
	t.Parallel()

	f := newFixture()
	sink := make(chanSink, 4)
	f.p.Sinks = []Sink{sink}

	w := NewWorker(f.p, 2, 2, time.Hour, 24*time.Hour)
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool { return f.clock.Tickers() == 1 }, time.Second, time.Millisecond)

	for i := 1; i <= 2; i++ {
		f.clock.Advance(time.Hour)
		select {
		case rec := <-sink:
			want := runAt.Add(time.Duration(i) * time.Hour).Truncate(time.Second)
			assert.Equal(t, want, rec.EstimationFor)
		case <-time.After(5 * time.Second):
			t.Fatalf("no run after tick %d", i)
		}
	}
}

func TestWorker_StopWithoutStart(t *testing.T) {
	t.Parallel()

	w := NewWorker(newFixture().p, 2, 2, time.Hour, time.Hour)
	w.Stop()
	select {
	case <-w.StopChan:
	default:
		t.Fatal("stop channel not closed")
	}
}

func TestWorker_StopTwice(t *testing.T) {
	t.Parallel()

	w := NewWorker(newFixture().p, 2, 2, time.Hour, time.Hour)
	w.Start()
	w.Stop()
	assert.NotPanics(t, w.Stop)
}
