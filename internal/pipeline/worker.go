package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/training"
)

// Worker runs the pipeline on a fixed schedule, each run covering the
// trailing Window that ends at the tick.
type Worker struct {
	Pipeline *Pipeline
	Rows     int
	Cols     int
	Interval time.Duration // how often to run (e.g., 1h)
	Window   time.Duration // lookback window (e.g., 96h)
	StopChan chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a worker producing rows x cols estimates.
func NewWorker(p *Pipeline, rows, cols int, interval, window time.Duration) *Worker {
	return &Worker{
		Pipeline: p,
		Rows:     rows,
		Cols:     cols,
		Interval: interval,
		Window:   window,
		StopChan: make(chan struct{}),
	}
}

// Start launches the scheduling loop.
func (w *Worker) Start() {
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		ticker := w.Pipeline.clock().NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if _, err := w.RunOnce(context.Background()); err != nil {
					monitoring.Logf("estimate worker run error: %v", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight run to finish. Calling it
// again is a no-op.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.StopChan) })
	if w.done != nil {
		<-w.done
	}
}

// RunOnce estimates the window ending now.
func (w *Worker) RunOnce(ctx context.Context) (*Result, error) {
	rc := w.Pipeline.NewRunContext(w.Rows, w.Cols, training.Window{})
	rc.Window = training.Window{Start: rc.Timestamp.Add(-w.Window), End: rc.Timestamp}
	return w.Pipeline.RunWith(ctx, rc)
}
